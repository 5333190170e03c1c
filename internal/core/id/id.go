// Package id issues the identifiers of documents, lots and ledger rows.
// They are UUIDv7, so byte order is creation order.
package id

import (
	"bytes"

	"github.com/google/uuid"
)

type ID = uuid.UUID

// Nil is the zero id. A ledger key without a lot carries Nil.
var Nil = uuid.Nil

// New returns a UUIDv7, or a random v4 when the v7 generator fails.
func New() ID {
	if v, err := uuid.NewV7(); err == nil {
		return v
	}
	return uuid.New()
}

func Parse(s string) (ID, error) { return uuid.Parse(s) }

// MustParse is for fixtures.
func MustParse(s string) ID { return uuid.MustParse(s) }

func IsNil(v ID) bool { return v == Nil }

// FromPtr maps nil to Nil.
func FromPtr(p *ID) ID {
	if p != nil {
		return *p
	}
	return Nil
}

// ToPtr maps Nil to nil.
func ToPtr(v ID) *ID {
	if v == Nil {
		return nil
	}
	return &v
}

// Compare orders ids bytewise, which for v7 ids is by creation time.
func Compare(a, b ID) int { return bytes.Compare(a[:], b[:]) }
