package metrics

import (
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Instruction results.
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
)

// OfferMetrics tracks escrow instruction outcomes and the lamports held in
// offer custody.
type OfferMetrics struct {
	instructions *prometheus.CounterVec
	errors       *prometheus.CounterVec
	custody      prometheus.Gauge
}

var (
	offersOnce     sync.Once
	offersRegistry *OfferMetrics
)

// Offers returns the process-wide offer metrics registry.
func Offers() *OfferMetrics {
	offersOnce.Do(func() {
		offersRegistry = &OfferMetrics{
			instructions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "offer_instructions_total",
				Help: "Count of escrow instructions processed by name and result.",
			}, []string{"instruction", "result"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "offer_errors_total",
				Help: "Count of rejected escrow instructions by error code and kind.",
			}, []string{"code", "kind"}),
			custody: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "offer_custody_lamports",
				Help: "Lamports currently escrowed in open offers, excluding rent minimums.",
			}),
		}
		prometheus.MustRegister(
			offersRegistry.instructions,
			offersRegistry.errors,
			offersRegistry.custody,
		)
	})
	return offersRegistry
}

// RecordInstruction counts one processed instruction.
func (m *OfferMetrics) RecordInstruction(instruction, result string) {
	if m == nil {
		return
	}
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		instruction = "unknown"
	}
	m.instructions.WithLabelValues(instruction, result).Inc()
}

// RecordError counts one rejected instruction. Non-program failures use code 0.
func (m *OfferMetrics) RecordError(code uint32, kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "internal"
	}
	m.errors.WithLabelValues(strconv.FormatUint(uint64(code), 10), kind).Inc()
}

// AddCustody moves the custody gauge by delta lamports.
func (m *OfferMetrics) AddCustody(delta float64) {
	if m == nil {
		return
	}
	m.custody.Add(delta)
}

// SetCustody overwrites the custody gauge with a committed total.
func (m *OfferMetrics) SetCustody(lamports float64) {
	if m == nil {
		return
	}
	m.custody.Set(lamports)
}
