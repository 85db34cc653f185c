// Package store is the persistence engine of the guild bot. A Store owns the single
// authoritative state value, flushes it to a JSON snapshot after every change,
// mirrors each flush into an optional SQLite backup, and reloads the snapshot
// when another process replaces it.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/guildkeeper/internal/backup"
	"github.com/MarcoPoloResearchLab/guildkeeper/internal/metrics"
	"github.com/MarcoPoloResearchLab/guildkeeper/internal/state"
	"github.com/MarcoPoloResearchLab/guildkeeper/internal/timestamps"
)

// Mirror receives every successfully written snapshot.
type Mirror interface {
	Write(ctx context.Context, payload []byte) error
}

// Config configures a Store. When Mirror is nil and BackupPath is set, a SQLite
// mirror is created at BackupPath.
type Config struct {
	Path       string
	BackupPath string
	Clock      *timestamps.Clock
	Mirror     Mirror
	Metrics    metrics.Recorder
	Logger     *zap.Logger
}

// Signature identifies one on-disk version of the snapshot.
type Signature struct {
	ModTime time.Time
	Size    int64
}

// Equal reports whether both signatures describe the same file version.
func (s Signature) Equal(other Signature) bool {
	return s.Size == other.Size && s.ModTime.Equal(other.ModTime)
}

// Store serializes access to the state. Writers hold mu exclusively; flushMu
// orders whole flushes and reloads and is always taken before mu.
type Store struct {
	path     string
	clock    *timestamps.Clock
	metrics  metrics.Recorder
	logger   *zap.Logger
	openTemp tempFileOpener

	flushMu sync.Mutex

	mu          sync.RWMutex
	state       *state.State
	signature   *Signature
	mirror      Mirror
	persistence bool

	dirty atomic.Bool
}

// New validates cfg and returns a Store holding an empty state. Call Load to read
// the snapshot.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, newServiceError(opStoreNew, "missing_path", errMissingPath)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = timestamps.NewClock("")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Noop{}
	}

	mirror := cfg.Mirror
	if mirror == nil && cfg.BackupPath != "" {
		sqliteMirror, err := backup.NewMirror(backup.MirrorConfig{
			Path:   cfg.BackupPath,
			Clock:  clock,
			Logger: logger,
		})
		if err != nil {
			return nil, newServiceError(opStoreNew, "invalid_backup", err)
		}
		mirror = sqliteMirror
	}

	return &Store{
		path:        cfg.Path,
		clock:       clock,
		metrics:     recorder,
		logger:      logger,
		openTemp:    openTempFile,
		state:       state.New(),
		mirror:      mirror,
		persistence: true,
	}, nil
}

// Path returns the primary snapshot location.
func (s *Store) Path() string {
	return s.path
}

// Clock returns the timestamp service used for stored timestamps.
func (s *Store) Clock() *timestamps.Clock {
	return s.clock
}

// DisablePersistence turns the store into an in-memory store: Load, Save and
// EnsureLatestSnapshot become no-ops and the backup mirror is dropped.
func (s *Store) DisablePersistence() {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persistence = false
	s.mirror = nil
	s.signature = nil
}

// PersistenceEnabled reports whether changes are written to disk.
func (s *Store) PersistenceEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persistence
}

// Dirty reports whether the last flush failed, leaving in-memory changes that are
// not on disk yet.
func (s *Store) Dirty() bool {
	return s.dirty.Load()
}

// Signature returns the signature of the last snapshot this store read or wrote.
func (s *Store) Signature() (Signature, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.signature == nil {
		return Signature{}, false
	}
	return *s.signature, true
}

// Load replaces the state with the snapshot on disk. A missing file yields an
// empty state and creates the parent directory; an empty or corrupt file is logged
// and leaves the state untouched. Only a failure to create the directory is
// returned.
func (s *Store) Load(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *Store) loadLocked(_ context.Context) error {
	if !s.persistence {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		if mkdirErr := os.MkdirAll(filepath.Dir(s.path), 0o755); mkdirErr != nil {
			s.logError(opLoad, "mkdir_failed", mkdirErr, zap.String("path", s.path))
			return newServiceError(opLoad, "mkdir_failed", mkdirErr)
		}
		s.state = state.New()
		s.signature = nil
		return nil
	}
	if err != nil {
		s.logError(opLoad, "read_failed", err, zap.String("path", s.path))
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	loaded, err := state.Unmarshal(data, s.clock)
	if err != nil {
		s.logger.Error("storage load failed", zap.String("path", s.path), zap.Error(err))
		return nil
	}

	s.state = loaded
	s.signature = currentSignature(s.path)
	s.logger.Info("storage loaded", zap.String("path", s.path))
	return nil
}

// Save flushes the full state to disk and then to the backup mirror. Backup
// failures are logged and counted but not returned.
func (s *Store) Save(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.RLock()
	enabled := s.persistence
	mirror := s.mirror
	var (
		payload []byte
		err     error
	)
	if enabled {
		payload, err = state.Marshal(s.state)
	}
	s.mu.RUnlock()
	if !enabled {
		return nil
	}
	if err != nil {
		s.logError(opPersist, "encode_failed", err)
		s.dirty.Store(true)
		return newServiceError(opPersist, "encode_failed", err)
	}

	started := time.Now()
	if err := writeSnapshotAtomic(s.path, payload, s.openTemp); err != nil {
		s.dirty.Store(true)
		s.metrics.ObserveSave(metrics.OutcomeFailure, time.Since(started))
		s.logError(opPersist, "write_failed", err, zap.String("path", s.path))
		return newServiceError(opPersist, "write_failed", err)
	}

	signature := currentSignature(s.path)
	s.mu.Lock()
	s.signature = signature
	s.mu.Unlock()

	if mirror != nil {
		if err := mirror.Write(ctx, payload); err != nil {
			s.metrics.ObserveBackup(metrics.OutcomeFailure)
			s.logger.Error("sqlite backup failed", zap.String("path", s.path), zap.Error(err))
		} else {
			s.metrics.ObserveBackup(metrics.OutcomeSuccess)
		}
	}

	s.dirty.Store(false)
	s.metrics.ObserveSave(metrics.OutcomeSuccess, time.Since(started))
	s.logger.Debug("storage flushed", zap.String("path", s.path), zap.Int("bytes", len(payload)))
	return nil
}

// EnsureLatestSnapshot reloads the snapshot when the file on disk no longer
// matches the version last read or written. A removed file resets the state to
// empty if a version had been seen before. An unchanged file is detected under
// the read lock, so readers do not queue behind a flush.
func (s *Store) EnsureLatestSnapshot(ctx context.Context) error {
	if s.snapshotUnchanged() {
		return nil
	}

	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.persistence {
		return nil
	}

	current := currentSignature(s.path)
	switch {
	case current == nil && s.signature == nil:
		return nil
	case current == nil:
		s.state = state.New()
		s.signature = nil
		s.metrics.ObserveReload(metrics.ReloadRemoved)
		s.logger.Info("snapshot removed, state reset", zap.String("path", s.path))
		return nil
	case s.signature != nil && current.Equal(*s.signature):
		return nil
	}

	s.metrics.ObserveReload(metrics.ReloadChanged)
	return s.loadLocked(ctx)
}

func (s *Store) snapshotUnchanged() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.persistence {
		return true
	}
	current := currentSignature(s.path)
	if current == nil {
		return s.signature == nil
	}
	return s.signature != nil && current.Equal(*s.signature)
}

// Restore writes payload as the primary snapshot and loads it. It is used to
// rebuild the snapshot from a backup.
func (s *Store) Restore(ctx context.Context, payload []byte) error {
	if _, err := state.Unmarshal(payload, s.clock); err != nil {
		return newServiceError(opRestore, "invalid_snapshot", err)
	}

	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeSnapshotAtomic(s.path, payload, s.openTemp); err != nil {
		s.logError(opRestore, "write_failed", err, zap.String("path", s.path))
		return newServiceError(opRestore, "write_failed", err)
	}
	s.signature = nil
	return s.loadLocked(ctx)
}

func currentSignature(path string) *Signature {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	return &Signature{ModTime: info.ModTime(), Size: info.Size()}
}

// commit flushes after a mutation that changed the state.
func (s *Store) commit(ctx context.Context, event string, fields ...zap.Field) error {
	if err := s.Save(ctx); err != nil {
		return fmt.Errorf("%s: %w", event, err)
	}
	s.logger.Info(event, fields...)
	return nil
}
