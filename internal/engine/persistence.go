package engine

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/celerix-dev/key-switcher/pkg/schema"
)

const snapshotFile = "students.json"

// Persistence handles the disk I/O for the MemStore.
type Persistence struct {
	DataDir string
	mu      sync.Mutex // Protects concurrent writes to the filesystem
	written uint64     // version of the newest snapshot on disk
}

// NewPersistence initializes a persistence handler.
func NewPersistence(dir string) (*Persistence, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Persistence{DataDir: dir}, nil
}

// Save writes a snapshot of all records atomically.
// Snapshots older than the last one written are dropped, so background saves
// finishing out of order never roll the file back.
func (p *Persistence) Save(version uint64, data map[string]schema.StudentRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if version <= p.written {
		return nil
	}

	filePath := filepath.Join(p.DataDir, snapshotFile)
	tempPath := filePath + ".tmp"

	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(tempPath, bytes, 0600); err != nil {
		return err
	}
	// Either the old file or the new one survives a crash, never a partial write.
	if err := os.Rename(tempPath, filePath); err != nil {
		return err
	}
	p.written = version
	return nil
}

// LoadAll returns the records found in the data directory, or an empty map if none were saved yet.
func (p *Persistence) LoadAll() (map[string]schema.StudentRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	content, err := os.ReadFile(filepath.Join(p.DataDir, snapshotFile))
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]schema.StudentRecord), nil
	}
	if err != nil {
		return nil, err
	}

	data := make(map[string]schema.StudentRecord)
	if err := json.Unmarshal(content, &data); err != nil {
		return nil, err
	}
	return data, nil
}
