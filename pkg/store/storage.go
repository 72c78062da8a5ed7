package store

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Storage keeps the latest snapshot of a logical device.
type Storage interface {
	// Save replaces the stored snapshot.
	Save(s *Snapshot) error

	// Load returns the stored snapshot, or nil, nil when there is none.
	Load() (*Snapshot, error)

	// Clear removes the stored snapshot.
	Clear() error
}

// MemoryStorage keeps the snapshot in memory. It is safe for concurrent
// use.
type MemoryStorage struct {
	mu   sync.Mutex
	data []byte
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Save implements Storage. The snapshot is stored encoded, so later
// changes to s do not affect it.
func (m *MemoryStorage) Save(s *Snapshot) error {
	b, err := Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = b
	return nil
}

// Load implements Storage.
func (m *MemoryStorage) Load() (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	return Unmarshal(m.data)
}

// Clear implements Storage.
func (m *MemoryStorage) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	return nil
}

// FileStorage keeps the snapshot in a CBOR file. Writes go to a temporary
// file that is renamed over the target.
type FileStorage struct {
	mu   sync.Mutex
	path string
}

// NewFileStorage creates a file storage at path.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Path returns the snapshot file path.
func (f *FileStorage) Path() string { return f.path }

// Save implements Storage.
func (f *FileStorage) Save(s *Snapshot) error {
	b, err := Marshal(s)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return writeFile(f.path, b)
}

// Load implements Storage.
func (f *FileStorage) Load() (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}

// Clear implements Storage.
func (f *FileStorage) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// CounterFile persists an invocation counter on its own, for hosts that
// cipher frames more often than they snapshot objects. Its Save method
// fits security.Config.PersistCounter.
type CounterFile struct {
	mu   sync.Mutex
	path string
}

// NewCounterFile creates a counter file at path.
func NewCounterFile(path string) *CounterFile {
	return &CounterFile{path: path}
}

// Save stores next.
func (c *CounterFile) Save(next uint32) error {
	b, err := encMode.Marshal(next)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return writeFile(c.path, b)
}

// Load returns the stored counter. ok is false when no counter was stored.
func (c *CounterFile) Load() (next uint32, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if err := cbor.Unmarshal(data, &next); err != nil {
		return 0, false, err
	}
	return next, true, nil
}

var (
	_ Storage = (*MemoryStorage)(nil)
	_ Storage = (*FileStorage)(nil)
)
