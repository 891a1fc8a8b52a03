package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"offerchain/core/events"
	"offerchain/native/escrow"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultListLimit = 50
	maxListLimit     = 500
)

// ErrOfferNotIndexed is returned when the index holds no row for an offer.
var ErrOfferNotIndexed = errors.New("indexer: offer not indexed")

// Indexer persists committed offer events and the offer views derived from
// them. It implements events.Sink.
type Indexer struct {
	db *gorm.DB
}

var _ events.Sink = (*Indexer)(nil)

// Open connects to the configured database and migrates the schema.
func Open(driver, dsn string) (*Indexer, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("indexer: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	return New(db)
}

// New wraps an open gorm handle and migrates the schema.
func New(db *gorm.DB) (*Indexer, error) {
	if db == nil {
		return nil, errors.New("indexer: nil database")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return &Indexer{db: db}, nil
}

// Close releases the underlying connection pool.
func (ix *Indexer) Close() error {
	sqlDB, err := ix.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Consume indexes records in one database transaction. Records at or below
// the highest indexed sequence are skipped, so replaying a batch is harmless.
func (ix *Indexer) Consume(ctx context.Context, records []events.Record) error {
	if len(records) == 0 {
		return nil
	}
	return ix.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		last, err := lastSequence(tx)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if rec.Sequence <= last {
				continue
			}
			if err := applyRecord(tx, rec); err != nil {
				return fmt.Errorf("indexer: apply sequence %d: %w", rec.Sequence, err)
			}
			last = rec.Sequence
		}
		return nil
	})
}

func lastSequence(tx *gorm.DB) (uint64, error) {
	var last uint64
	if err := tx.Model(&Event{}).Select("COALESCE(MAX(sequence), 0)").Scan(&last).Error; err != nil {
		return 0, fmt.Errorf("indexer: read last sequence: %w", err)
	}
	return last, nil
}

// LastSequence returns the highest indexed event sequence.
func (ix *Indexer) LastSequence(ctx context.Context) (uint64, error) {
	return lastSequence(ix.db.WithContext(ctx))
}

func applyRecord(tx *gorm.DB, rec events.Record) error {
	attrs, err := json.Marshal(rec.Attributes)
	if err != nil {
		return err
	}
	address := rec.Attributes["offer"]
	evt := Event{
		ID:         uuid.New(),
		Sequence:   rec.Sequence,
		TxHash:     rec.TxHash,
		Type:       rec.Type,
		Offer:      address,
		Attributes: string(attrs),
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&evt).Error; err != nil {
		return err
	}
	if address == "" {
		return nil
	}

	if rec.Type == escrow.EventTypeOfferCreated {
		amount, err := strconv.ParseUint(rec.Attributes["amount"], 10, 64)
		if err != nil {
			return fmt.Errorf("amount: %w", err)
		}
		offer := Offer{
			Address:      address,
			Creator:      rec.Attributes["creator"],
			OfferID:      rec.Attributes["offerId"],
			Amount:       amount,
			Status:       rec.Attributes["status"],
			Category:     rec.Attributes["category"],
			Deliverables: rec.Attributes["deliverables"],
			Description:  rec.Attributes["description"],
			CreatedSeq:   rec.Sequence,
			LastSeq:      rec.Sequence,
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&offer).Error
	}

	updates := map[string]any{
		"status":   rec.Attributes["status"],
		"last_seq": rec.Sequence,
	}
	if receiver := rec.Attributes["receiver"]; receiver != "" {
		updates["receiver"] = receiver
	}
	return tx.Model(&Offer{}).Where("address = ?", address).Updates(updates).Error
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// Offer returns the indexed view of the offer at address.
func (ix *Indexer) Offer(ctx context.Context, address string) (*Offer, error) {
	var offer Offer
	err := ix.db.WithContext(ctx).First(&offer, "address = ?", address).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOfferNotIndexed
	}
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

// ListByCreator returns creator's offers, oldest first.
func (ix *Indexer) ListByCreator(ctx context.Context, creator string, limit int) ([]Offer, error) {
	var offers []Offer
	err := ix.db.WithContext(ctx).
		Where("creator = ?", creator).
		Order("created_seq ASC").
		Limit(clampLimit(limit)).
		Find(&offers).Error
	return offers, err
}

// ListByReceiver returns the offers address has accepted, oldest first.
func (ix *Indexer) ListByReceiver(ctx context.Context, receiver string, limit int) ([]Offer, error) {
	var offers []Offer
	err := ix.db.WithContext(ctx).
		Where("receiver = ?", receiver).
		Order("created_seq ASC").
		Limit(clampLimit(limit)).
		Find(&offers).Error
	return offers, err
}

// ListEvents returns the events of one offer in commit order.
func (ix *Indexer) ListEvents(ctx context.Context, offer string, limit int) ([]Event, error) {
	var out []Event
	err := ix.db.WithContext(ctx).
		Where("offer = ?", offer).
		Order("sequence ASC").
		Limit(clampLimit(limit)).
		Find(&out).Error
	return out, err
}
