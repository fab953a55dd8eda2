package engine

import (
	"context"
	"errors"
	"fmt"
)

// MigrationResult counts what Migrate did.
type MigrationResult struct {
	Copied  int `json:"copied"`
	Skipped int `json:"skipped"`
}

// Migrate copies every record from src into dst. This works for any pair of backends, e.g.
// memory -> postgres (the "upgrade") or postgres -> memory (the "backup").
// Records whose PID already exists in dst are skipped, never overwritten.
func Migrate(ctx context.Context, src RecordLister, dst RecordWriter) (MigrationResult, error) {
	var res MigrationResult

	records, err := src.List(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list records: %w", err)
	}

	for _, rec := range records {
		err := dst.Insert(ctx, rec)
		switch {
		case errors.Is(err, ErrDuplicatePID):
			res.Skipped++
		case err != nil:
			return res, fmt.Errorf("failed to copy record %s: %w", rec.PID, err)
		default:
			res.Copied++
		}
	}
	return res, nil
}
