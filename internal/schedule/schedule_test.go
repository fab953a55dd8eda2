package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_Shape(t *testing.T) {
	s := Build(time.UTC)
	entries := s.Entries()

	require.Len(t, entries, Slots)
	assert.Equal(t, Anchor(time.UTC), s.Start())

	seen := make(map[string]bool)
	for i, e := range entries {
		assert.Equal(t, i, e.Index)
		assert.Equal(t, KeyID(i), e.KeyID)
		assert.False(t, seen[e.KeyID], "duplicate identifier %s", e.KeyID)
		seen[e.KeyID] = true
		if i > 0 {
			assert.True(t, e.At.After(entries[i-1].At), "entry %d not strictly increasing", i)
			assert.Equal(t, Interval, e.At.Sub(entries[i-1].At))
		}
	}
}

func TestResolve_ExactBoundaries(t *testing.T) {
	s := Build(time.UTC)
	anchor := Anchor(time.UTC)

	for i := 0; i < Slots; i++ {
		e, err := s.Resolve(anchor.Add(time.Duration(i) * Interval))
		require.NoError(t, err)
		assert.Equal(t, KeyID(i), e.KeyID)
	}
}

func TestResolve_WithinFirstSlot(t *testing.T) {
	s := Build(time.UTC)
	anchor := Anchor(time.UTC)

	for _, off := range []time.Duration{0, time.Nanosecond, time.Minute, 29*time.Minute + 59*time.Second, Interval - time.Nanosecond} {
		e, err := s.Resolve(anchor.Add(off))
		require.NoError(t, err)
		assert.Equal(t, "KEY_0", e.KeyID, "offset %v", off)
	}
}

func TestResolve_BeforeAnchor(t *testing.T) {
	s := Build(time.UTC)

	_, err := s.Resolve(Anchor(time.UTC).Add(-time.Nanosecond))
	assert.ErrorIs(t, err, ErrNoApplicableKey)

	_, err = s.Resolve(time.Time{})
	assert.ErrorIs(t, err, ErrNoApplicableKey)
}

func TestResolve_AfterLastSlot(t *testing.T) {
	s := Build(time.UTC)

	e, err := s.Resolve(Anchor(time.UTC).Add(365 * 24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, KeyID(Slots-1), e.KeyID)
}

func TestResolve_MidSlotReturnsSlotStart(t *testing.T) {
	s := Build(time.UTC)
	anchor := Anchor(time.UTC)

	e, err := s.Resolve(anchor.Add(45 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "KEY_1", e.KeyID)
	assert.Equal(t, anchor.Add(30*time.Minute), e.At)
}

func TestResolve_OtherLocationSameInstant(t *testing.T) {
	s := Build(time.UTC)
	tokyo := time.FixedZone("JST", 9*60*60)

	e, err := s.Resolve(Anchor(time.UTC).Add(time.Hour).In(tokyo))
	require.NoError(t, err)
	assert.Equal(t, "KEY_2", e.KeyID)
}

func TestEntries_ReturnsCopy(t *testing.T) {
	s := Build(time.UTC)
	entries := s.Entries()
	entries[0].KeyID = "mutated"

	assert.Equal(t, "KEY_0", s.Entries()[0].KeyID)
}

func TestResolve_EmptySchedule(t *testing.T) {
	s := New(time.Now(), 0, Interval)

	_, err := s.Resolve(time.Now())
	assert.ErrorIs(t, err, ErrNoApplicableKey)
	assert.True(t, s.Start().IsZero())
}
