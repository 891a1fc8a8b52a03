package events

import (
	"context"
	"sync"
)

const (
	brokerHistoryLimit = 2048
	subscriberBuffer   = 32
)

// Record is a committed event stamped with its position in the node's log.
type Record struct {
	Sequence   uint64            `json:"sequence"`
	TxHash     string            `json:"txHash"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func cloneRecord(r Record) Record {
	cloned := r
	if r.Attributes != nil {
		cloned.Attributes = make(map[string]string, len(r.Attributes))
		for k, v := range r.Attributes {
			cloned.Attributes[k] = v
		}
	}
	return cloned
}

// Sink consumes committed records synchronously, in order.
type Sink interface {
	Consume(ctx context.Context, records []Record) error
}

// Broker fans committed records out to subscribers. Delivery never blocks:
// a subscriber whose buffer is full misses the record and must resync from
// history using its last seen sequence.
type Broker struct {
	mu      sync.Mutex
	subs    map[uint64]chan Record
	nextID  uint64
	history []Record
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[uint64]chan Record)}
}

// Publish records into history and offers them to every subscriber.
func (b *Broker) Publish(records ...Record) {
	if b == nil || len(records) == 0 {
		return
	}
	b.mu.Lock()
	for _, r := range records {
		b.history = append(b.history, cloneRecord(r))
	}
	if len(b.history) > brokerHistoryLimit {
		excess := len(b.history) - brokerHistoryLimit
		trimmed := make([]Record, brokerHistoryLimit)
		copy(trimmed, b.history[excess:])
		b.history = trimmed
	}
	subscribers := make([]chan Record, 0, len(b.subs))
	for _, ch := range b.subs {
		subscribers = append(subscribers, ch)
	}
	// Sends happen under the lock so cancel cannot close a channel mid-send.
	for _, r := range records {
		for _, ch := range subscribers {
			select {
			case ch <- cloneRecord(r):
			default:
			}
		}
	}
	b.mu.Unlock()
}

// Subscribe registers a subscriber. The backlog holds retained records with a
// sequence greater than since. The returned cancel func is idempotent and is
// also invoked when ctx ends.
func (b *Broker) Subscribe(ctx context.Context, since uint64) (<-chan Record, func(), []Record) {
	updates := make(chan Record, subscriberBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = updates
	backlog := make([]Record, 0, len(b.history))
	for _, r := range b.history {
		if r.Sequence > since {
			backlog = append(backlog, cloneRecord(r))
		}
	}
	b.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			b.mu.Lock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
			b.mu.Unlock()
		})
	}

	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				cancel()
			case <-done:
			}
		}()
	}

	return updates, cancel, backlog
}

// Subscribers returns the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
