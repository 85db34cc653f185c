package store

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// snapshotFile is the subset of *os.File used while writing a temp snapshot.
type snapshotFile interface {
	io.Writer
	Sync() error
	Close() error
}

type tempFileOpener func(path string) (snapshotFile, error)

func openTempFile(path string) (snapshotFile, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
}

func tempPath(path string) string {
	return path + ".tmp"
}

// writeSnapshotAtomic replaces path with payload. Readers observe either the old
// or the new file, never a partial one. The temp file is removed on failure.
func writeSnapshotAtomic(path string, payload []byte, open tempFileOpener) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	tmp := tempPath(path)
	defer func() {
		if err != nil {
			if removeErr := os.Remove(tmp); removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
				err = errors.Join(err, fmt.Errorf("remove temp snapshot: %w", removeErr))
			}
		}
	}()

	file, err := open(tmp)
	if err != nil {
		return fmt.Errorf("open temp snapshot: %w", err)
	}
	if _, err := file.Write(payload); err != nil {
		_ = file.Close()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
