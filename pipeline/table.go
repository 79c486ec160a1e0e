package pipeline

import (
	"sync"

	"github.com/aluiziolira/marketplace-capture/models"
)

// Table is a column-ordered set of rows ready to be persisted.
type Table interface {
	Columns() []string
	Rows() [][]any
	Len() int
}

// ListingTable accumulates listing records in append order.
type ListingTable struct {
	mu      sync.Mutex
	records []models.ListingRecord
}

// NewListingTable returns an empty table.
func NewListingTable() *ListingTable {
	return &ListingTable{}
}

// Append stores rec. Duplicates are kept.
func (t *ListingTable) Append(rec models.ListingRecord) {
	t.mu.Lock()
	t.records = append(t.records, rec)
	t.mu.Unlock()
}

// DropLast removes the most recently appended record, if any.
func (t *ListingTable) DropLast() (models.ListingRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.records) == 0 {
		return models.ListingRecord{}, false
	}
	last := t.records[len(t.records)-1]
	t.records = t.records[:len(t.records)-1]
	return last, true
}

// Len returns the number of stored records.
func (t *ListingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// Records returns a copy of the stored records.
func (t *ListingTable) Records() []models.ListingRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.ListingRecord, len(t.records))
	copy(out, t.records)
	return out
}

// Columns implements Table.
func (t *ListingTable) Columns() []string {
	return models.ListingColumns
}

// Rows implements Table.
func (t *ListingTable) Rows() [][]any {
	records := t.Records()
	rows := make([][]any, len(records))
	for i := range records {
		rows[i] = records[i].Values()
	}
	return rows
}
