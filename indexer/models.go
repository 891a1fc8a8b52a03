package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Offer is the indexed view of one offer account, rebuilt from its events.
// CreatedSeq orders a creator's offers; LastSeq is the latest event applied.
type Offer struct {
	Address      string    `gorm:"primaryKey;size:64" json:"address"`
	Creator      string    `gorm:"size:64;index" json:"creator"`
	OfferID      string    `gorm:"size:64" json:"offerId"`
	Receiver     string    `gorm:"size:64;index" json:"receiver,omitempty"`
	Amount       uint64    `gorm:"not null" json:"amount"`
	Status       string    `gorm:"size:16;index" json:"status"`
	Category     string    `gorm:"size:256" json:"category"`
	Deliverables string    `gorm:"size:256" json:"deliverables"`
	Description  string    `gorm:"type:text" json:"description"`
	CreatedSeq   uint64    `gorm:"index" json:"createdSequence"`
	LastSeq      uint64    `json:"lastSequence"`
	CreatedAt    time.Time `json:"indexedAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Event is one committed program event.
type Event struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Sequence   uint64    `gorm:"uniqueIndex" json:"sequence"`
	TxHash     string    `gorm:"size:66;index" json:"txHash"`
	Type       string    `gorm:"size:32;index" json:"type"`
	Offer      string    `gorm:"size:64;index" json:"offer"`
	Attributes string    `gorm:"type:text" json:"attributes"`
	CreatedAt  time.Time `json:"indexedAt"`
}

// AutoMigrate performs all schema migrations for the index.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Offer{}, &Event{})
}
