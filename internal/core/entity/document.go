// Package entity holds the fields shared by workflow documents
// (orders, shipments, receipts, returns).
package entity

import (
	"time"

	"storeflow/internal/core/id"
)

// BaseDocument contains identity, numbering and audit fields of a document.
type BaseDocument struct {
	// ID is the primary key (UUIDv7)
	ID id.ID `db:"id" json:"id"`

	// Number is the human-readable sequence number (SO-2026-00001)
	Number string `db:"number" json:"number"`

	// Version for optimistic locking (incremented on each update)
	Version int `db:"version" json:"version"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
	CreatedBy string    `db:"created_by" json:"createdBy,omitempty"`
}

// NewBaseDocument creates a new BaseDocument with generated ID and timestamps.
func NewBaseDocument() BaseDocument {
	now := time.Now().UTC()
	return BaseDocument{
		ID:        id.New(),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch updates the UpdatedAt timestamp. Version is bumped by the repository
// when the update lands.
func (b *BaseDocument) Touch() {
	b.UpdatedAt = time.Now().UTC()
}

// GetID returns the document id.
func (b *BaseDocument) GetID() id.ID { return b.ID }

// GetVersion returns the optimistic lock version.
func (b *BaseDocument) GetVersion() int { return b.Version }
