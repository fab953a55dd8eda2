// Package service implements user registration and schedule-based key issuance on top of a record store.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/celerix-dev/key-switcher/internal/engine"
	"github.com/celerix-dev/key-switcher/internal/metrics"
	"github.com/celerix-dev/key-switcher/internal/schedule"
	"github.com/celerix-dev/key-switcher/internal/secrets"
	"github.com/celerix-dev/key-switcher/pkg/schema"
	"github.com/rs/zerolog"
)

var (
	// ErrMissingParameters is returned by Register when name or PID is empty.
	ErrMissingParameters = errors.New("missing parameters")
	// ErrMissingPID is returned when a lookup is attempted without a PID.
	ErrMissingPID = errors.New("missing PID")
	// ErrUserNotFound is returned when the PID is not registered.
	ErrUserNotFound = engine.ErrUserNotFound
	// ErrUserExists is returned when registering a PID twice.
	ErrUserExists = engine.ErrDuplicatePID
	// ErrNoApplicableKey is returned before the first schedule slot.
	ErrNoApplicableKey = schedule.ErrNoApplicableKey
)

// KeyNotConfiguredError reports a resolved slot whose secret value is unset.
type KeyNotConfiguredError struct {
	KeyID string
}

func (e *KeyNotConfiguredError) Error() string {
	return fmt.Sprintf("Key %s not set in environment", e.KeyID)
}

func (e *KeyNotConfiguredError) Unwrap() error { return secrets.ErrKeyNotConfigured }

// Grant is the outcome of a successful key request.
type Grant struct {
	Key    string
	Entry  schedule.Entry
	Record schema.StudentRecord
}

// Service orchestrates the record store, the schedule and the secrets provider.
// It holds no mutable state of its own and is safe for concurrent use.
type Service struct {
	store    engine.Store
	schedule *schedule.Schedule
	secrets  secrets.Provider
	metrics  *metrics.Recorder
	log      zerolog.Logger
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source used by FetchKey.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// New creates a Service. The schedule is shared read-only.
func New(store engine.Store, sched *schedule.Schedule, provider secrets.Provider, opts ...Option) *Service {
	s := &Service{
		store:    store,
		schedule: sched,
		secrets:  provider,
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule returns the rotation table in use.
func (s *Service) Schedule() *schedule.Schedule { return s.schedule }

// Register creates a user with zero calls and no last key time.
func (s *Service) Register(ctx context.Context, name, pid string) error {
	name, pid = strings.TrimSpace(name), strings.TrimSpace(pid)
	if name == "" || pid == "" {
		return ErrMissingParameters
	}

	err := s.store.Insert(ctx, schema.StudentRecord{User: name, PID: pid})
	if err != nil {
		if errors.Is(err, engine.ErrDuplicatePID) {
			return ErrUserExists
		}
		return fmt.Errorf("failed to register user: %w", err)
	}

	s.metrics.UserRegistered()
	s.log.Info().Str("pid", pid).Msg("user registered")
	return nil
}

// Lookup returns the full record for pid.
func (s *Service) Lookup(ctx context.Context, pid string) (schema.StudentRecord, error) {
	pid = strings.TrimSpace(pid)
	if pid == "" {
		return schema.StudentRecord{}, ErrMissingPID
	}
	rec, err := s.store.Get(ctx, pid)
	if err != nil {
		if errors.Is(err, engine.ErrUserNotFound) {
			return schema.StudentRecord{}, ErrUserNotFound
		}
		return schema.StudentRecord{}, fmt.Errorf("failed to look up user: %w", err)
	}
	return rec, nil
}

// GetCounters returns the number of keys issued to pid so far.
func (s *Service) GetCounters(ctx context.Context, pid string) (int, error) {
	rec, err := s.Lookup(ctx, pid)
	if err != nil {
		return 0, err
	}
	return rec.Calls, nil
}

// FetchKey issues the key for the current time. See FetchAndRotate.
func (s *Service) FetchKey(ctx context.Context, pid string) (Grant, error) {
	return s.FetchAndRotate(ctx, pid, s.now())
}

// FetchAndRotate issues the key active at now to pid and records the usage.
//
// The record is only written once the user exists, a slot applies and its secret is
// configured, so a failed request never changes the counters.
func (s *Service) FetchAndRotate(ctx context.Context, pid string, now time.Time) (Grant, error) {
	if _, err := s.Lookup(ctx, pid); err != nil {
		s.recordFailure(err)
		return Grant{}, err
	}
	pid = strings.TrimSpace(pid)

	entry, err := s.schedule.Resolve(now)
	if err != nil {
		s.metrics.KeyFailed(metrics.ReasonNoApplicableKey)
		return Grant{}, err
	}

	key, err := s.secrets.GetSecret(ctx, entry.KeyID)
	if err != nil {
		if errors.Is(err, secrets.ErrKeyNotConfigured) {
			s.metrics.KeyFailed(metrics.ReasonKeyNotConfigured)
			s.log.Error().Str("key_id", entry.KeyID).Msg("resolved key has no configured value")
			return Grant{}, &KeyNotConfiguredError{KeyID: entry.KeyID}
		}
		s.metrics.KeyFailed(metrics.ReasonStore)
		return Grant{}, fmt.Errorf("failed to read key %s: %w", entry.KeyID, err)
	}

	rec, err := s.store.RecordUsage(ctx, pid, entry.At)
	if err != nil {
		s.recordFailure(err)
		if errors.Is(err, engine.ErrUserNotFound) {
			return Grant{}, ErrUserNotFound
		}
		return Grant{}, fmt.Errorf("failed to record usage: %w", err)
	}

	s.metrics.KeyIssued(entry.KeyID)
	s.log.Debug().Str("pid", pid).Str("key_id", entry.KeyID).Int("calls", rec.Calls).Msg("key issued")
	return Grant{Key: key, Entry: entry, Record: rec}, nil
}

func (s *Service) recordFailure(err error) {
	switch {
	case errors.Is(err, ErrMissingPID):
	case errors.Is(err, ErrUserNotFound):
		s.metrics.KeyFailed(metrics.ReasonUserNotFound)
	default:
		s.metrics.KeyFailed(metrics.ReasonStore)
	}
}
