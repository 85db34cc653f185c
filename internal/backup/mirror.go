// Package backup mirrors guild snapshots into a relational SQLite file.
//
// Every write rebuilds the whole database from the snapshot bytes it is given, so
// the backup never diverges from the primary file it was produced from. The raw
// snapshot is kept in the metadata table for lossless restores.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarcoPoloResearchLab/guildkeeper/internal/state"
	"github.com/MarcoPoloResearchLab/guildkeeper/internal/timestamps"
)

const insertBatchSize = 200

var (
	errMissingPath     = errors.New("backup path is required")
	errMissingSnapshot = errors.New("backup holds no raw snapshot")
	noOpLogger         = zap.NewNop()
)

// MirrorConfig configures a Mirror.
type MirrorConfig struct {
	Path   string
	Clock  *timestamps.Clock
	Logger *zap.Logger
}

// Mirror writes snapshots into the SQLite file at Path.
type Mirror struct {
	path   string
	clock  *timestamps.Clock
	logger *zap.Logger
}

// NewMirror validates cfg and returns a Mirror.
func NewMirror(cfg MirrorConfig) (*Mirror, error) {
	if cfg.Path == "" {
		return nil, errMissingPath
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timestamps.NewClock("")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Mirror{path: cfg.Path, clock: clock, logger: logger}, nil
}

// Path returns the backup file location.
func (m *Mirror) Path() string {
	return m.path
}

// Write replaces the backup contents with the snapshot encoded in payload. All
// tables are dropped and recreated inside one transaction.
func (m *Mirror) Write(ctx context.Context, payload []byte) error {
	snapshot, err := state.Unmarshal(payload, nil)
	if err != nil {
		return fmt.Errorf("decode snapshot for backup: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	db, err := openSQLite(m.path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeSQLite(db); closeErr != nil {
			m.logger.Warn("sqlite backup close failed", zap.String("path", m.path), zap.Error(closeErr))
		}
	}()

	// Foreign keys are declared for readers of the backup but history rows may
	// outlive their application.
	if err := db.WithContext(ctx).Exec("PRAGMA foreign_keys = OFF").Error; err != nil {
		return fmt.Errorf("disable foreign keys: %w", err)
	}

	rows := buildRows(snapshot)
	metadata := []metadataRow{
		{Key: metadataRawSnapshot, Value: string(payload)},
		{Key: metadataExportedAt, Value: m.clock.Now()},
		{Key: metadataExportID, Value: uuid.NewString()},
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		models := creationOrder()
		dropOrder := slices.Clone(models)
		slices.Reverse(dropOrder)
		for _, model := range dropOrder {
			if err := tx.Migrator().DropTable(model); err != nil {
				return fmt.Errorf("drop table: %w", err)
			}
		}
		for _, model := range models {
			if err := tx.Migrator().CreateTable(model); err != nil {
				return fmt.Errorf("create table: %w", err)
			}
		}
		if err := insertAll(tx, rows.admins); err != nil {
			return err
		}
		if err := insertAll(tx, rows.adminProfiles); err != nil {
			return err
		}
		if err := insertAll(tx, rows.applications); err != nil {
			return err
		}
		if err := insertAll(tx, rows.responses); err != nil {
			return err
		}
		if err := insertAll(tx, rows.history); err != nil {
			return err
		}
		if err := insertAll(tx, rows.xp); err != nil {
			return err
		}
		if err := insertAll(tx, rows.xpProfiles); err != nil {
			return err
		}
		if err := insertAll(tx, rows.cups); err != nil {
			return err
		}
		if err := insertAll(tx, rows.questions); err != nil {
			return err
		}
		return insertAll(tx, metadata)
	})
	if err != nil {
		return fmt.Errorf("write sqlite backup: %w", err)
	}

	m.logger.Debug("sqlite backup written",
		zap.String("path", m.path),
		zap.Int("applications", len(rows.applications)),
		zap.Int("xp_rows", len(rows.xp)))
	return nil
}

func insertAll[T any](tx *gorm.DB, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	if err := tx.Omit(clause.Associations).CreateInBatches(rows, insertBatchSize).Error; err != nil {
		var model T
		return fmt.Errorf("insert %T rows: %w", model, err)
	}
	return nil
}

type rowSet struct {
	admins        []adminRow
	adminProfiles []adminProfileRow
	applications  []applicationRow
	responses     []responseRow
	history       []historyEntryRow
	xp            []xpRow
	xpProfiles    []xpProfileRow
	cups          []cupRow
	questions     []questionRow
}

func buildRows(snapshot *state.State) rowSet {
	var rows rowSet
	for _, userID := range snapshot.Admins {
		rows.admins = append(rows.admins, adminRow{UserID: userID})
	}
	for _, userID := range sortedIDs(snapshot.AdminProfiles) {
		profile := snapshot.AdminProfiles[userID]
		rows.adminProfiles = append(rows.adminProfiles, adminProfileRow{
			UserID:   userID,
			Username: nullable(profile.Username),
			FullName: nullable(profile.FullName),
		})
	}
	for _, userID := range sortedIDs(snapshot.Applications) {
		app := snapshot.Applications[userID]
		rows.applications = append(rows.applications, applicationRow{
			UserID:       userID,
			FullName:     app.FullName,
			Username:     nullable(app.Username),
			Answer:       nullable(app.Answer),
			CreatedAtRaw: app.CreatedAt,
			LanguageCode: nullable(app.LanguageCode),
		})
		for position, response := range app.Responses {
			rows.responses = append(rows.responses, responseRow{
				UserID:     userID,
				Position:   position,
				QuestionID: response.QuestionID,
				Question:   response.Question,
				Answer:     response.Answer,
			})
		}
	}
	for _, userID := range sortedIDs(snapshot.History) {
		entry := snapshot.History[userID]
		rows.history = append(rows.history, historyEntryRow{
			UserID:       userID,
			Status:       string(entry.Status),
			UpdatedAtRaw: entry.UpdatedAt,
			Note:         nullable(entry.Note),
			LanguageCode: nullable(entry.LanguageCode),
		})
	}
	snapshot.XP.Range(func(chatKey string, scores *state.ScoreTable) bool {
		scores.Range(func(userKey string, score int64) bool {
			rows.xp = append(rows.xp, xpRow{ChatID: chatKey, UserID: userKey, Score: score})
			return true
		})
		return true
	})
	for _, userKey := range sortedStrings(snapshot.XPProfiles) {
		profile := snapshot.XPProfiles[userKey]
		rows.xpProfiles = append(rows.xpProfiles, xpProfileRow{
			UserID:       userKey,
			Username:     nullable(profile.Username),
			FullName:     nullable(profile.FullName),
			Chats:        encodeList(profile.Chats),
			LastChat:     nullable(profile.LastChat),
			UpdatedAtRaw: nullable(profile.UpdatedAt),
			UpdatedAtISO: nullable(profile.UpdatedAtISO),
		})
	}
	snapshot.Cups.Range(func(chatKey string, cups []state.Cup) bool {
		for position, cup := range cups {
			rows.cups = append(rows.cups, cupRow{
				ChatID:       chatKey,
				Position:     position,
				Title:        cup.Title,
				Description:  cup.Description,
				Podium:       encodeList(cup.Podium),
				CreatedAtRaw: cup.CreatedAt,
			})
		}
		return true
	})
	for _, language := range sortedStrings(snapshot.Questions) {
		bucket := snapshot.Questions[language]
		for _, questionID := range sortedStrings(bucket) {
			rows.questions = append(rows.questions, questionRow{
				LanguageCode: language,
				QuestionID:   questionID,
				Prompt:       bucket[questionID],
			})
		}
	}
	return rows
}

func encodeList(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}

func sortedIDs[V any](values map[int64]V) []int64 {
	keys := make([]int64, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

func sortedStrings[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
