package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"storeflow/internal/core/entity"
	"storeflow/internal/core/id"
)

type sampleDoc struct {
	entity.BaseDocument
	StoreID id.ID      `db:"store_id"`
	Status  string     `db:"status"`
	ShipAt  *time.Time `db:"ship_at"`
	Lines   []string   `db:"-"`
	Notes   string
}

func TestColumns_EmbeddedDocument(t *testing.T) {
	cols := Columns[sampleDoc]()

	assert.Equal(t, []string{
		"id", "number", "version", "created_at", "updated_at", "created_by",
		"store_id", "status", "ship_at",
	}, cols)
}

func TestColumnMap_EmbeddedDocument(t *testing.T) {
	now := time.Now().UTC()
	doc := sampleDoc{
		BaseDocument: entity.BaseDocument{
			ID:        id.New(),
			Number:    "SO-2026-00001",
			Version:   5,
			CreatedAt: now,
		},
		StoreID: id.New(),
		Status:  "DRAFT",
		ShipAt:  &now,
		Lines:   []string{"ignored"},
		Notes:   "ignored",
	}

	m := ColumnMap(&doc)

	assert.Equal(t, doc.ID, m["id"])
	assert.Equal(t, "SO-2026-00001", m["number"])
	assert.Equal(t, 5, m["version"])
	assert.Equal(t, doc.StoreID, m["store_id"])
	assert.Equal(t, &now, m["ship_at"])
	assert.NotContains(t, m, "Lines")
	assert.NotContains(t, m, "Notes")
	assert.Len(t, m, 9)

	vals := ColumnValues(doc)
	cols := Columns[sampleDoc]()
	if assert.Len(t, vals, len(cols)) {
		for i, c := range cols {
			assert.Equal(t, m[c], vals[i], c)
		}
	}
}

func TestColumnMap_NotARow(t *testing.T) {
	assert.Nil(t, ColumnMap(42))
	assert.Nil(t, ColumnValues((*sampleDoc)(nil)))
}
