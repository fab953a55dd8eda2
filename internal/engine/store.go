// Package engine defines the record store used to track per-user key usage, and its backends.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/celerix-dev/key-switcher/pkg/schema"
)

var (
	// ErrUserNotFound is returned when no record exists for a PID.
	ErrUserNotFound = errors.New("user not found")
	// ErrDuplicatePID is returned when inserting a PID that is already registered.
	ErrDuplicatePID = errors.New("user already exists")
)

// RecordReader defines lookups by PID.
type RecordReader interface {
	// Get returns the record for pid or ErrUserNotFound.
	Get(ctx context.Context, pid string) (schema.StudentRecord, error)
}

// RecordWriter defines record creation and usage updates.
type RecordWriter interface {
	// Insert stores a new record. It returns ErrDuplicatePID if the PID exists.
	Insert(ctx context.Context, rec schema.StudentRecord) error
	// RecordUsage increments the call counter by one and sets LastKeyTime to keyTime in a single
	// store-level operation, returning the updated record. It returns ErrUserNotFound if pid is unknown.
	RecordUsage(ctx context.Context, pid string, keyTime time.Time) (schema.StudentRecord, error)
}

// RecordLister allows bulk export, ordered by PID.
type RecordLister interface {
	List(ctx context.Context) ([]schema.StudentRecord, error)
}

// Store is the full contract implemented by every backend.
type Store interface {
	RecordReader
	RecordWriter
	RecordLister

	// Close flushes pending writes and releases backend resources.
	Close() error
}
