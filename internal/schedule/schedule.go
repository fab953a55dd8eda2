// Package schedule maps fixed points in time to the key identifier that is active from that point on.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrNoApplicableKey is returned when the requested instant precedes the first slot.
var ErrNoApplicableKey = errors.New("no available key")

const (
	// Slots is the number of entries in the rotation table.
	Slots = 36
	// Interval is the spacing between consecutive slots.
	Interval = 30 * time.Minute
)

// Anchor returns the instant of the first slot in the given location.
func Anchor(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(2025, time.April, 5, 10, 0, 0, 0, loc)
}

// Entry is a single slot: from At onwards KeyID is the active key until the next slot begins.
type Entry struct {
	Index int
	At    time.Time
	KeyID string
}

// Schedule is an immutable, ascending table of entries. It is safe for concurrent reads.
type Schedule struct {
	entries []Entry
}

// Build generates the fixed table anchored in loc.
func Build(loc *time.Location) *Schedule {
	return New(Anchor(loc), Slots, Interval)
}

// New generates n entries starting at anchor, spaced by step.
// Entry i starts at anchor + i*step and is named KEY_<i>.
func New(anchor time.Time, n int, step time.Duration) *Schedule {
	entries := make([]Entry, n)
	for i := range entries {
		entries[i] = Entry{
			Index: i,
			At:    anchor.Add(time.Duration(i) * step),
			KeyID: KeyID(i),
		}
	}
	return &Schedule{entries: entries}
}

// KeyID returns the identifier of slot i.
func KeyID(i int) string {
	return fmt.Sprintf("KEY_%d", i)
}

// Resolve returns the most recent entry whose start is not after now.
func (s *Schedule) Resolve(now time.Time) (Entry, error) {
	// first entry strictly after now
	i := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].At.After(now)
	})
	if i == 0 {
		return Entry{}, ErrNoApplicableKey
	}
	return s.entries[i-1], nil
}

// Entries returns a copy of the table in ascending order.
func (s *Schedule) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of slots.
func (s *Schedule) Len() int { return len(s.entries) }

// Start returns the first slot's instant, or the zero time for an empty schedule.
func (s *Schedule) Start() time.Time {
	if len(s.entries) == 0 {
		return time.Time{}
	}
	return s.entries[0].At
}
