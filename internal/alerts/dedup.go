package alerts

import (
	"sync"
	"time"
)

// record tracks one sent alert for deduplication.
type record struct {
	sentAt time.Time
	count  int
}

// DedupStore remembers recently sent alerts so a window that stays in the
// danger tier across consecutive cycles fires once per dedup window, not
// once per cycle.
type DedupStore struct {
	mu      sync.RWMutex
	records map[string]*record
	window  time.Duration
}

// NewDedupStore creates a deduplication store.
func NewDedupStore(window time.Duration) *DedupStore {
	if window <= 0 {
		window = 30 * time.Minute
	}
	return &DedupStore{
		records: make(map[string]*record),
		window:  window,
	}
}

// IsDuplicate reports whether an alert with this key was sent within the
// window.
func (d *DedupStore) IsDuplicate(key string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, exists := d.records[key]
	if !exists {
		return false
	}
	return time.Since(rec.sentAt) < d.window
}

// Record marks an alert key as sent now.
func (d *DedupStore) Record(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if rec, exists := d.records[key]; exists {
		rec.sentAt = time.Now()
		rec.count++
	} else {
		d.records[key] = &record{sentAt: time.Now(), count: 1}
	}
}

// Cleanup removes records older than the window.
func (d *DedupStore) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for key, rec := range d.records {
		if now.Sub(rec.sentAt) > d.window {
			delete(d.records, key)
		}
	}
}

// Size returns the number of tracked records.
func (d *DedupStore) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records)
}
