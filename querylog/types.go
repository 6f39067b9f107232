// Package querylog persists per-statement rewrite emissions for the
// analytics collaborator: the fingerprint, verdict, and warnings of every
// processed statement, keyed by caller session.
package querylog

import (
	"time"

	"github.com/google/uuid"
)

// Record is one per-statement emission.
type Record struct {
	ID          uuid.UUID     `json:"id"`
	SessionID   string        `json:"session_id,omitempty"`
	Fingerprint string        `json:"fingerprint"`
	Verdict     string        `json:"verdict"`
	Outcome     string        `json:"outcome"`
	Warnings    []string      `json:"warnings,omitempty"`
	Workers     int           `json:"workers,omitempty"`
	Branches    int           `json:"branches,omitempty"`
	CacheHit    bool          `json:"cache_hit,omitempty"`
	Elapsed     time.Duration `json:"elapsed_ns"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Store persists rewrite records. Implementations must be safe for
// concurrent use.
type Store interface {
	// Append persists one record.
	Append(record Record) error

	// ByFingerprint returns all records sharing a query fingerprint,
	// oldest first.
	ByFingerprint(fingerprint string) ([]Record, error)

	// Close releases any underlying resources.
	Close() error
}
