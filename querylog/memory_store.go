package querylog

import "sync"

// MemoryStore is an in-memory Store for embedding and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	byFP    map[string][]int // fingerprint -> positions in records
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byFP: make(map[string][]int),
	}
}

// Append persists one record.
func (ms *MemoryStore) Append(record Record) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.byFP[record.Fingerprint] = append(ms.byFP[record.Fingerprint], len(ms.records))
	ms.records = append(ms.records, record)
	return nil
}

// ByFingerprint returns all records sharing a fingerprint, oldest first.
func (ms *MemoryStore) ByFingerprint(fingerprint string) ([]Record, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	positions := ms.byFP[fingerprint]
	out := make([]Record, 0, len(positions))
	for _, pos := range positions {
		out = append(out, ms.records[pos])
	}
	return out, nil
}

// Len returns the number of stored records.
func (ms *MemoryStore) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.records)
}

// Close is a no-op for the in-memory store.
func (ms *MemoryStore) Close() error {
	return nil
}
