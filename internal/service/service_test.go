package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/celerix-dev/key-switcher/internal/engine"
	"github.com/celerix-dev/key-switcher/internal/metrics"
	"github.com/celerix-dev/key-switcher/internal/schedule"
	"github.com/celerix-dev/key-switcher/internal/secrets"
	"github.com/celerix-dev/key-switcher/pkg/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapProvider map[string]string

func (m mapProvider) GetSecret(_ context.Context, keyID string) (string, error) {
	if v := m[keyID]; v != "" {
		return v, nil
	}
	return "", secrets.ErrKeyNotConfigured
}

func (m mapProvider) Name() string { return "map" }

func allKeys() mapProvider {
	p := mapProvider{}
	for i := 0; i < schedule.Slots; i++ {
		p[schedule.KeyID(i)] = "secret-" + schedule.KeyID(i)
	}
	return p
}

var anchor = schedule.Anchor(time.UTC)

func newTestService(t *testing.T, p secrets.Provider) (*Service, *engine.MemStore) {
	t.Helper()
	store := engine.NewMemStore(nil, nil, zerolog.Nop())
	svc := New(store, schedule.Build(time.UTC), p, WithMetrics(metrics.New()))
	return svc, store
}

func TestRegister_ThenCounters(t *testing.T) {
	svc, _ := newTestService(t, allKeys())
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "Alice", "p1"))

	calls, err := svc.GetCounters(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, calls)

	rec, err := svc.Lookup(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", rec.User)
	assert.Nil(t, rec.LastKeyTime)
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newTestService(t, allKeys())
	ctx := context.Background()

	assert.ErrorIs(t, svc.Register(ctx, "", "p1"), ErrMissingParameters)
	assert.ErrorIs(t, svc.Register(ctx, "Alice", ""), ErrMissingParameters)
	assert.ErrorIs(t, svc.Register(ctx, "  ", "p1"), ErrMissingParameters)
}

func TestRegister_Duplicate(t *testing.T) {
	svc, _ := newTestService(t, allKeys())
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, "Alice", "p1"))
	assert.ErrorIs(t, svc.Register(ctx, "Bob", "p1"), ErrUserExists)
}

func TestGetCounters_Errors(t *testing.T) {
	svc, _ := newTestService(t, allKeys())
	ctx := context.Background()

	_, err := svc.GetCounters(ctx, "")
	assert.ErrorIs(t, err, ErrMissingPID)

	_, err = svc.GetCounters(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestFetchAndRotate_IssuesSlotKeyAndUpdatesRecord(t *testing.T) {
	svc, store := newTestService(t, allKeys())
	ctx := context.Background()
	require.NoError(t, svc.Register(ctx, "Alice", "p1"))

	grant, err := svc.FetchAndRotate(ctx, "p1", anchor.Add(45*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "secret-KEY_1", grant.Key)
	assert.Equal(t, "KEY_1", grant.Entry.KeyID)

	rec, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Calls)
	require.NotNil(t, rec.LastKeyTime)
	assert.True(t, anchor.Add(30*time.Minute).Equal(*rec.LastKeyTime))
	assert.Equal(t, rec, grant.Record)
}

func TestFetchAndRotate_UnknownUser(t *testing.T) {
	svc, _ := newTestService(t, allKeys())
	ctx := context.Background()

	for _, now := range []time.Time{anchor.Add(-time.Hour), anchor, anchor.Add(48 * time.Hour)} {
		_, err := svc.FetchAndRotate(ctx, "ghost", now)
		assert.ErrorIs(t, err, ErrUserNotFound, "at %v", now)
	}
}

func TestFetchAndRotate_MissingPID(t *testing.T) {
	svc, _ := newTestService(t, allKeys())

	_, err := svc.FetchAndRotate(context.Background(), " ", anchor)
	assert.ErrorIs(t, err, ErrMissingPID)
}

func TestFetchAndRotate_BeforeAnchor(t *testing.T) {
	svc, store := newTestService(t, allKeys())
	ctx := context.Background()
	require.NoError(t, svc.Register(ctx, "Alice", "p1"))

	_, err := svc.FetchAndRotate(ctx, "p1", anchor.Add(-time.Second))
	assert.ErrorIs(t, err, ErrNoApplicableKey)

	rec, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Calls)
}

func TestFetchAndRotate_UnsetKeyLeavesRecordUntouched(t *testing.T) {
	p := allKeys()
	delete(p, "KEY_2")
	svc, store := newTestService(t, p)
	ctx := context.Background()
	require.NoError(t, svc.Register(ctx, "Alice", "p1"))

	_, err := svc.FetchAndRotate(ctx, "p1", anchor)
	require.NoError(t, err)

	_, err = svc.FetchAndRotate(ctx, "p1", anchor.Add(time.Hour))
	require.Error(t, err)
	assert.ErrorIs(t, err, secrets.ErrKeyNotConfigured)
	var cfgErr *KeyNotConfiguredError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "KEY_2", cfgErr.KeyID)
	assert.Equal(t, "Key KEY_2 not set in environment", err.Error())

	rec, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Calls, "configuration error must not change the counter")
	require.NotNil(t, rec.LastKeyTime)
	assert.True(t, anchor.Equal(*rec.LastKeyTime))
}

func TestFetchKey_UsesClock(t *testing.T) {
	store := engine.NewMemStore(nil, nil, zerolog.Nop())
	svc := New(store, schedule.Build(time.UTC), allKeys(),
		WithClock(func() time.Time { return anchor.Add(17*time.Hour + 10*time.Minute) }))
	ctx := context.Background()
	require.NoError(t, svc.Register(ctx, "Alice", "p1"))

	grant, err := svc.FetchKey(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "KEY_34", grant.Entry.KeyID)
}

type brokenStore struct {
	engine.Store
	getErr   error
	usageErr error
	insErr   error
}

func (b brokenStore) Get(ctx context.Context, pid string) (schema.StudentRecord, error) {
	if b.getErr != nil {
		return schema.StudentRecord{}, b.getErr
	}
	return b.Store.Get(ctx, pid)
}

func (b brokenStore) Insert(ctx context.Context, rec schema.StudentRecord) error {
	if b.insErr != nil {
		return b.insErr
	}
	return b.Store.Insert(ctx, rec)
}

func (b brokenStore) RecordUsage(ctx context.Context, pid string, t time.Time) (schema.StudentRecord, error) {
	if b.usageErr != nil {
		return schema.StudentRecord{}, b.usageErr
	}
	return b.Store.RecordUsage(ctx, pid, t)
}

func TestStoreFailuresPropagate(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection refused")
	base := engine.NewMemStore(nil, nil, zerolog.Nop())
	require.NoError(t, base.Insert(ctx, schema.StudentRecord{User: "Alice", PID: "p1"}))

	svc := New(brokenStore{Store: base, insErr: boom}, schedule.Build(time.UTC), allKeys())
	err := svc.Register(ctx, "Bob", "p2")
	assert.ErrorIs(t, err, boom)

	svc = New(brokenStore{Store: base, getErr: boom}, schedule.Build(time.UTC), allKeys())
	_, err = svc.FetchAndRotate(ctx, "p1", anchor)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrUserNotFound)

	svc = New(brokenStore{Store: base, usageErr: boom}, schedule.Build(time.UTC), allKeys())
	_, err = svc.FetchAndRotate(ctx, "p1", anchor)
	assert.ErrorIs(t, err, boom)
}

type erroringProvider struct{ err error }

func (e erroringProvider) GetSecret(context.Context, string) (string, error) { return "", e.err }
func (e erroringProvider) Name() string                                      { return "broken" }

func TestFetchAndRotate_ProviderFailure(t *testing.T) {
	boom := errors.New("throttled")
	svc, store := newTestService(t, erroringProvider{err: boom})
	ctx := context.Background()
	require.NoError(t, svc.Register(ctx, "Alice", "p1"))

	_, err := svc.FetchAndRotate(ctx, "p1", anchor)
	assert.ErrorIs(t, err, boom)
	var cfgErr *KeyNotConfiguredError
	assert.False(t, errors.As(err, &cfgErr))

	rec, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Calls)
}
