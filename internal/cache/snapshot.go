package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/sheetsync/sheetsync/pkg/errors"
)

// Snapshot is the durable representation of the cache: the full entry map,
// the per-collection last sync times, and the time the snapshot was taken.
type Snapshot struct {
	Data         map[string]Entry     `json:"data"`
	LastSyncTime map[string]time.Time `json:"lastSyncTime"`
	Timestamp    time.Time            `json:"timestamp"`
}

// SnapshotStore persists cache snapshots to a single durable slot. Load
// returns (nil, nil) when no snapshot exists yet.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
}

// FileSnapshotStore persists snapshots to a local JSON file with an atomic
// tmp-file-then-rename write.
type FileSnapshotStore struct {
	path string
}

// NewFileSnapshotStore creates a file-backed snapshot store at path.
func NewFileSnapshotStore(path string) (*FileSnapshotStore, error) {
	if path == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "snapshot path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, errors.NewError(errors.ErrCodeSnapshotSave, "failed to create snapshot directory").WithCause(err)
	}
	return &FileSnapshotStore{path: path}, nil
}

// Save writes the snapshot atomically.
func (f *FileSnapshotStore) Save(_ context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.NewError(errors.ErrCodeSnapshotSave, "failed to encode snapshot").WithCause(err)
	}

	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return errors.NewError(errors.ErrCodeSnapshotSave, "failed to write snapshot").WithCause(err)
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		_ = os.Remove(tmpPath) // Ignore cleanup error
		return errors.NewError(errors.ErrCodeSnapshotSave, "failed to replace snapshot").WithCause(err)
	}

	return nil
}

// Load reads the snapshot. Missing files yield (nil, nil); unreadable or
// corrupt files yield an error the caller treats as an empty cache.
func (f *FileSnapshotStore) Load(_ context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewError(errors.ErrCodeSnapshotLoad, "failed to read snapshot").WithCause(err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.NewError(errors.ErrCodeSnapshotLoad, "corrupt snapshot").WithCause(err)
	}

	return &snap, nil
}
