// Package disk is the file-backed cache store. Entries live as one JSON
// file per fingerprint; writes go through an atomic rename and a flock so
// concurrent eval processes sharing a cache directory never observe a torn
// entry.
package disk

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"

	"github.com/ginmihq/ginmi/internal/model/contract"
)

type record struct {
	Expiry *time.Time            `json:"expiry,omitempty"`
	Output *contract.ModelOutput `json:"output"`
}

// Store is a cache.Store rooted at a directory.
type Store struct {
	dir    string
	expiry time.Duration
}

// NewStore opens a disk store at dir, applying expiry to newly written
// entries (zero disables expiry).
func NewStore(dir string, expiry time.Duration) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir, expiry: expiry}, nil
}

func (s *Store) entryPath(fingerprint string) string {
	// Shard by the first two hex chars to keep directories small.
	return filepath.Join(s.dir, fingerprint[:2], fingerprint+".json")
}

func (s *Store) lockPath(fingerprint string) string {
	return s.entryPath(fingerprint) + ".lock"
}

func (s *Store) Fetch(fingerprint string) (*contract.ModelOutput, bool, error) {
	path := s.entryPath(fingerprint)

	lock := flock.New(s.lockPath(fingerprint))
	if err := lock.RLock(); err != nil {
		return nil, false, err
	}
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		// A corrupt entry is treated as a miss; the next Put repairs it.
		slog.Warn("Discarding unreadable cache entry", "path", path, "error", err)
		return nil, false, nil
	}

	if rec.Expiry != nil && time.Now().After(*rec.Expiry) {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove expired cache entry", "path", path, "error", err)
		}
		return nil, false, nil
	}

	return rec.Output, true, nil
}

func (s *Store) Put(fingerprint string, output *contract.ModelOutput) error {
	path := s.entryPath(fingerprint)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	rec := record{Output: output}
	if s.expiry > 0 {
		expiry := time.Now().Add(s.expiry)
		rec.Expiry = &expiry
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	lock := flock.New(s.lockPath(fingerprint))
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	return atomic.WriteFile(path, bytes.NewReader(data))
}
