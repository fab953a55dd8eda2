package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/celerix-dev/key-switcher/pkg/schema"
	"github.com/rs/zerolog"
)

// MemStore is a thread-safe in-process store, optionally snapshotted to disk.
type MemStore struct {
	mu sync.RWMutex
	// Structure: [pid]record
	data      map[string]schema.StudentRecord
	version   uint64
	persister *Persistence
	log       zerolog.Logger
	wg        sync.WaitGroup
}

// NewMemStore initializes a store.
// It accepts existing data (from LoadAll) and a persister, either of which may be nil.
func NewMemStore(initialData map[string]schema.StudentRecord, p *Persistence, log zerolog.Logger) *MemStore {
	if initialData == nil {
		initialData = make(map[string]schema.StudentRecord)
	}
	return &MemStore{
		data:      initialData,
		persister: p,
		log:       log,
	}
}

// Wait waits for all background persistence tasks to complete.
func (m *MemStore) Wait() {
	m.wg.Wait()
}

func (m *MemStore) Get(_ context.Context, pid string) (schema.StudentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.data[pid]
	if !ok {
		return schema.StudentRecord{}, ErrUserNotFound
	}
	return copyRecord(rec), nil
}

func (m *MemStore) Insert(_ context.Context, rec schema.StudentRecord) error {
	m.mu.Lock()
	if _, exists := m.data[rec.PID]; exists {
		m.mu.Unlock()
		return ErrDuplicatePID
	}
	m.data[rec.PID] = copyRecord(rec)
	version, snapshot := m.snapshot()
	m.mu.Unlock()

	m.persist(version, snapshot)
	return nil
}

func (m *MemStore) RecordUsage(_ context.Context, pid string, keyTime time.Time) (schema.StudentRecord, error) {
	m.mu.Lock()
	rec, ok := m.data[pid]
	if !ok {
		m.mu.Unlock()
		return schema.StudentRecord{}, ErrUserNotFound
	}
	rec.Calls++
	t := keyTime
	rec.LastKeyTime = &t
	m.data[pid] = rec
	version, snapshot := m.snapshot()
	m.mu.Unlock()

	m.persist(version, snapshot)
	return copyRecord(rec), nil
}

func (m *MemStore) List(_ context.Context) ([]schema.StudentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]schema.StudentRecord, 0, len(m.data))
	for _, rec := range m.data {
		list = append(list, copyRecord(rec))
	}
	sort.Slice(list, func(i, j int) bool { return list[i].PID < list[j].PID })
	return list, nil
}

// Close waits for pending snapshots; the in-memory data stays readable.
func (m *MemStore) Close() error {
	m.Wait()
	return nil
}

// snapshot bumps the version and creates a deep copy of the table.
// It MUST be called while holding m.mu.Lock.
func (m *MemStore) snapshot() (uint64, map[string]schema.StudentRecord) {
	m.version++
	out := make(map[string]schema.StudentRecord, len(m.data))
	for k, v := range m.data {
		out[k] = copyRecord(v)
	}
	return m.version, out
}

// persist writes the snapshot in the background.
func (m *MemStore) persist(version uint64, snapshot map[string]schema.StudentRecord) {
	if m.persister == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.persister.Save(version, snapshot); err != nil {
			m.log.Error().Err(err).Msg("failed to persist student records")
		}
	}()
}

func copyRecord(rec schema.StudentRecord) schema.StudentRecord {
	if rec.LastKeyTime != nil {
		t := *rec.LastKeyTime
		rec.LastKeyTime = &t
	}
	return rec
}
