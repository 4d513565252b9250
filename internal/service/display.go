package service

import (
	"sync"

	"github.com/vbonduro/folio/internal/domain"
)

// Display holds the records currently shown to visitors. It only moves
// forward in time: an offered record older than the shown one is ignored.
type Display struct {
	mu      sync.RWMutex
	records map[domain.Kind]domain.Record
}

func NewDisplay() *Display {
	return &Display{records: make(map[domain.Kind]domain.Record)}
}

// Get returns a copy of the shown record of kind, or nil.
func (d *Display) Get(kind domain.Kind) *domain.Record {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.records[kind]
	if !ok {
		return nil
	}
	return &rec
}

// Offer shows rec unless a strictly newer record is already shown. It
// reports whether rec is now shown.
func (d *Display) Offer(rec *domain.Record) bool {
	if rec == nil || rec.Data == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.records[rec.Kind]; ok && cur.Timestamp.After(rec.Timestamp) {
		return false
	}
	d.records[rec.Kind] = *rec
	return true
}
