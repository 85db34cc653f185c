package backup

import (
	"context"
	"fmt"
	"os"

	"github.com/MarcoPoloResearchLab/guildkeeper/internal/state"
)

// RawSnapshot is the snapshot document preserved inside a backup.
type RawSnapshot struct {
	Payload    []byte
	ExportedAt string
	ExportID   string
}

// ReadRawSnapshot loads the preserved snapshot from the backup at path. The
// payload is validated before it is returned.
func ReadRawSnapshot(ctx context.Context, path string) (RawSnapshot, error) {
	if path == "" {
		return RawSnapshot{}, errMissingPath
	}
	if _, err := os.Stat(path); err != nil {
		return RawSnapshot{}, fmt.Errorf("stat backup: %w", err)
	}

	db, err := openSQLite(path)
	if err != nil {
		return RawSnapshot{}, err
	}
	defer closeSQLite(db) //nolint:errcheck

	var rows []metadataRow
	err = db.WithContext(ctx).
		Where("key IN ?", []string{metadataRawSnapshot, metadataExportedAt, metadataExportID}).
		Find(&rows).Error
	if err != nil {
		return RawSnapshot{}, fmt.Errorf("read backup metadata: %w", err)
	}

	var snapshot RawSnapshot
	for _, row := range rows {
		switch row.Key {
		case metadataRawSnapshot:
			snapshot.Payload = []byte(row.Value)
		case metadataExportedAt:
			snapshot.ExportedAt = row.Value
		case metadataExportID:
			snapshot.ExportID = row.Value
		}
	}
	if len(snapshot.Payload) == 0 {
		return RawSnapshot{}, errMissingSnapshot
	}
	if _, err := state.Unmarshal(snapshot.Payload, nil); err != nil {
		return RawSnapshot{}, fmt.Errorf("backup snapshot is invalid: %w", err)
	}
	return snapshot, nil
}
