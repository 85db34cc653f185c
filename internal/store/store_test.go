package store

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarcoPoloResearchLab/guildkeeper/internal/backup"
	"github.com/MarcoPoloResearchLab/guildkeeper/internal/state"
	"github.com/MarcoPoloResearchLab/guildkeeper/internal/stats"
	"github.com/MarcoPoloResearchLab/guildkeeper/internal/timestamps"
)

type recordedEvents struct {
	mu      sync.Mutex
	saves   map[string]int
	backups map[string]int
	reloads map[string]int
}

func newRecordedEvents() *recordedEvents {
	return &recordedEvents{saves: map[string]int{}, backups: map[string]int{}, reloads: map[string]int{}}
}

func (r *recordedEvents) ObserveSave(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves[outcome]++
}

func (r *recordedEvents) ObserveBackup(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backups[outcome]++
}

func (r *recordedEvents) ObserveReload(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reloads[reason]++
}

func (r *recordedEvents) count(table map[string]int, key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return table[key]
}

type failingMirror struct {
	calls int
}

func (m *failingMirror) Write(context.Context, []byte) error {
	m.calls++
	return errors.New("backup disk unavailable")
}

type blockingMirror struct {
	entered chan struct{}
	release chan struct{}
}

func (m *blockingMirror) Write(context.Context, []byte) error {
	select {
	case m.entered <- struct{}{}:
	default:
	}
	<-m.release
	return nil
}

type partialFile struct {
	*os.File
}

func (f partialFile) Write(payload []byte) (int, error) {
	written, _ := f.File.Write(payload[:len(payload)/2])
	return written, errors.New("disk full")
}

func partialOpener(path string) (snapshotFile, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return partialFile{File: file}, nil
}

func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "data", "store.json")
	}
	if cfg.Clock == nil {
		cfg.Clock = timestamps.NewClock("UTC")
	}
	s, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Load(context.Background()))
	return s
}

func readSnapshot(t *testing.T, path string) *state.State {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	decoded, err := state.Unmarshal(data, nil)
	require.NoError(t, err)
	return decoded
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New(Config{})
	var serviceErr *ServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.Equal(t, "store.new.missing_path", serviceErr.Code())
}

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "store.json")
	s := newTestStore(t, Config{Path: path})

	assert.DirExists(t, filepath.Dir(path))
	assert.NoFileExists(t, path)
	assert.True(t, s.Snapshot().IsZero())
	_, ok := s.Signature()
	assert.False(t, ok)
}

func TestLoadKeepsStateOnCorruptOrEmptyFile(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{})
	_, err := s.AddAdmin(ctx, 1, "one", "")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(s.Path(), []byte("{broken"), 0o644))
	require.NoError(t, s.Load(ctx))
	assert.True(t, s.IsAdmin(1))

	require.NoError(t, os.WriteFile(s.Path(), nil, 0o644))
	require.NoError(t, s.Load(ctx))
	assert.True(t, s.IsAdmin(1))
}

func TestSaveRoundTripsThroughDisk(t *testing.T) {
	ctx := context.Background()
	first := newTestStore(t, Config{})
	_, err := first.AddAdmin(ctx, 10, "@lead", "Lead")
	require.NoError(t, err)
	_, err = first.AddApplication(ctx, NewApplication{UserID: 20, FullName: "Applicant", LanguageCode: "en"})
	require.NoError(t, err)
	_, err = first.SetApplicationQuestion(ctx, "q1", "Why?", "")
	require.NoError(t, err)

	second := newTestStore(t, Config{Path: first.Path()})

	assert.Equal(t, first.Snapshot(), second.Snapshot())
	assert.Equal(t, "lead", second.AnyProfile(10).Username)
	assert.NoFileExists(t, tempPath(first.Path()))
}

func TestFailedWriteKeepsPreviousSnapshot(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{})
	_, err := s.AddAdmin(ctx, 1, "first", "")
	require.NoError(t, err)
	before, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	s.openTemp = partialOpener
	applied, err := s.AddAdmin(ctx, 2, "second", "")

	assert.True(t, applied, "mutation stays applied in memory")
	var serviceErr *ServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.Equal(t, "store.persist.write_failed", serviceErr.Code())
	assert.True(t, s.Dirty())
	assert.True(t, s.IsAdmin(2))

	after, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after, "primary snapshot must be untouched")
	assert.NoFileExists(t, tempPath(s.Path()))

	s.openTemp = openTempFile
	require.NoError(t, s.Save(ctx))
	assert.False(t, s.Dirty())
	assert.Equal(t, []int64{1, 2}, readSnapshot(t, s.Path()).Admins)
}

func TestAddAdminIsIdempotentOnDisk(t *testing.T) {
	ctx := context.Background()
	events := newRecordedEvents()
	s := newTestStore(t, Config{Metrics: events})

	added, err := s.AddAdmin(ctx, 7, "@mod", "")
	require.NoError(t, err)
	require.True(t, added)
	added, err = s.AddAdmin(ctx, 7, "mod", "")
	require.NoError(t, err)
	assert.False(t, added)

	assert.Equal(t, 1, events.count(events.saves, "success"), "unchanged admin must not flush")
	assert.Equal(t, []int64{7}, readSnapshot(t, s.Path()).Admins)
}

func TestApplicationExclusivity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{})

	added, err := s.AddApplication(ctx, NewApplication{UserID: 5, FullName: "Sam", LanguageCode: "fa"})
	require.NoError(t, err)
	require.True(t, added)
	added, err = s.AddApplication(ctx, NewApplication{UserID: 5, FullName: "Sam"})
	require.NoError(t, err)
	assert.False(t, added)

	popped, err := s.PopApplication(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, popped)
	require.NoError(t, s.MarkApplicationStatus(ctx, 5, state.StatusApproved, "", ""))

	added, err = s.AddApplication(ctx, NewApplication{UserID: 5, FullName: "Sam"})
	require.NoError(t, err)
	assert.False(t, added)
	assert.False(t, s.HasApplication(5))

	entry, ok := s.ApplicationStatus(5)
	require.True(t, ok)
	assert.Equal(t, state.StatusApproved, entry.Status)
	assert.Equal(t, "fa", entry.LanguageCode)

	missing, err := s.PopApplication(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestWithdrawApplication(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{})
	_, err := s.AddApplication(ctx, NewApplication{UserID: 8, LanguageCode: "en"})
	require.NoError(t, err)

	withdrawn, err := s.WithdrawApplication(ctx, 8)
	require.NoError(t, err)
	require.True(t, withdrawn)
	withdrawn, err = s.WithdrawApplication(ctx, 8)
	require.NoError(t, err)
	assert.False(t, withdrawn)

	applicants := s.ApplicantsByStatus(state.StatusWithdrawn)
	require.Len(t, applicants, 1)
	assert.Equal(t, "en", applicants[0].Entry.LanguageCode)
}

func TestQuestionOverrideShadowing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{})

	_, err := s.SetApplicationQuestion(ctx, "q1", "X", "")
	require.NoError(t, err)
	_, err = s.SetApplicationQuestion(ctx, "q1", "Y", "fa")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"q1": "Y"}, s.ApplicationQuestions("fa"))
	assert.Equal(t, map[string]string{"q1": "X"}, s.ApplicationQuestions("en"))

	changed, err := s.SetApplicationQuestion(ctx, "q1", "", "fa")
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, map[string]string{"q1": "X"}, s.ApplicationQuestions("fa"))
	assert.NotContains(t, readSnapshot(t, s.Path()).Questions, "fa")
}

func TestLanguageOnlyOverrideStaysInItsLanguage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{})

	_, err := s.SetApplicationQuestion(ctx, "goals_prompt", "Goals?", "")
	require.NoError(t, err)
	_, err = s.SetApplicationQuestion(ctx, "role_prompt", "Role?", "fa")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"goals_prompt": "Goals?"}, s.ApplicationQuestions("en"))
	assert.Equal(t, map[string]string{"goals_prompt": "Goals?", "role_prompt": "Role?"}, s.ApplicationQuestions("fa"))

	reloaded := newTestStore(t, Config{Path: s.Path()})
	assert.NotContains(t, reloaded.ApplicationQuestions("en"), "role_prompt")
	assert.Equal(t, "Role?", reloaded.ApplicationQuestions("fa")["role_prompt"])
}

func TestHugeXPScoresStayUsable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{})

	total, err := s.AddXP(ctx, 100, 1, math.MaxInt64, state.XPIdentity{})
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), total)
	total, err = s.AddXP(ctx, 100, 1, 1, state.XPIdentity{})
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), total)

	snapshot := s.GroupSnapshot(100)
	require.NotNil(t, snapshot.TopMember)
	assert.Positive(t, snapshot.TopMember.Level)
	assert.Equal(t, []stats.XPEntry{{UserKey: "1", Score: math.MaxInt64}}, s.XPLeaderboard(100, 5))
}

func TestXPAndCupScenario(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{})

	total, err := s.AddXP(ctx, 100, 1, 5, state.XPIdentity{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	total, err = s.AddXP(ctx, 100, 1, 5, state.XPIdentity{})
	require.NoError(t, err)
	assert.Equal(t, int64(10), total)

	leaderboard := s.XPLeaderboard(100, 5)
	require.Len(t, leaderboard, 1)
	assert.Equal(t, "1", leaderboard[0].UserKey)
	assert.Equal(t, int64(10), leaderboard[0].Score)

	require.NoError(t, s.AddCup(ctx, 100, "Cup", "Desc", []string{"A", "B", "C"}))
	cups := s.Cups(100, 5)
	require.Len(t, cups, 1)
	assert.Equal(t, "Cup", cups[0].Title)
	assert.Equal(t, []string{"A", "B", "C"}, cups[0].Podium)

	score, ok := s.UserXP(100, 1)
	assert.True(t, ok)
	assert.Equal(t, int64(10), score)
	_, ok = s.UserXP(100, 2)
	assert.False(t, ok)

	profile, ok := s.XPProfile(1)
	require.True(t, ok)
	assert.Equal(t, []string{"100"}, profile.Chats)
	assert.NotEmpty(t, profile.UpdatedAtISO)
}

func TestEnsureLatestSnapshotDetectsExternalChanges(t *testing.T) {
	ctx := context.Background()
	events := newRecordedEvents()
	s := newTestStore(t, Config{Metrics: events})
	_, err := s.AddAdmin(ctx, 1, "", "")
	require.NoError(t, err)

	require.NoError(t, s.EnsureLatestSnapshot(ctx))
	assert.Zero(t, events.count(events.reloads, "changed"), "own flush must not trigger a reload")
	assert.True(t, s.IsAdmin(1))

	external := state.New()
	external.AddAdmin(1, "", "")
	external.AddAdmin(2, "", "")
	external.AddAdmin(3, "", "")
	payload, err := state.Marshal(external)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.Path(), payload, 0o644))

	require.NoError(t, s.EnsureLatestSnapshot(ctx))
	assert.Equal(t, 1, events.count(events.reloads, "changed"))
	assert.Equal(t, []int64{1, 2, 3}, s.ListAdmins())

	require.NoError(t, os.Remove(s.Path()))
	require.NoError(t, s.EnsureLatestSnapshot(ctx))
	assert.Equal(t, 1, events.count(events.reloads, "removed"))
	assert.True(t, s.Snapshot().IsZero())

	require.NoError(t, s.EnsureLatestSnapshot(ctx))
	assert.Equal(t, 1, events.count(events.reloads, "removed"), "absent file stays a no-op")
}

func TestBackupMirrorReceivesEveryFlush(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	backupPath := filepath.Join(dir, "backup", "store.sqlite")
	s := newTestStore(t, Config{Path: filepath.Join(dir, "store.json"), BackupPath: backupPath})

	_, err := s.AddXP(ctx, -10, 3, 4, state.XPIdentity{Username: "x"})
	require.NoError(t, err)

	raw, err := backup.ReadRawSnapshot(ctx, backupPath)
	require.NoError(t, err)
	primary, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.JSONEq(t, string(primary), string(raw.Payload))
}

func TestBackupFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	events := newRecordedEvents()
	mirror := &failingMirror{}
	s := newTestStore(t, Config{Mirror: mirror, Metrics: events})

	added, err := s.AddAdmin(ctx, 1, "", "")
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, 1, mirror.calls)
	assert.Equal(t, 1, events.count(events.backups, "failure"))
	assert.False(t, s.Dirty())
	assert.FileExists(t, s.Path())
}

func TestDisablePersistenceKeepsEverythingInMemory(t *testing.T) {
	ctx := context.Background()
	mirror := &failingMirror{}
	s := newTestStore(t, Config{Mirror: mirror})
	s.DisablePersistence()

	_, err := s.AddAdmin(ctx, 1, "", "")
	require.NoError(t, err)
	assert.True(t, s.IsAdmin(1))
	assert.NoFileExists(t, s.Path())
	assert.Zero(t, mirror.calls)
	assert.False(t, s.PersistenceEnabled())
}

func TestConcurrentMutationsAreAllFlushed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{})

	const workers = 16
	const awards = 10
	var wg sync.WaitGroup
	for worker := 0; worker < workers; worker++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			for award := 0; award < awards; award++ {
				if _, err := s.AddXP(ctx, 1, userID, 1, state.XPIdentity{}); err != nil {
					t.Errorf("add xp failed: %v", err)
				}
				_ = s.XPLeaderboard(1, 3)
			}
		}(int64(worker))
	}
	wg.Wait()

	onDisk := readSnapshot(t, s.Path())
	for worker := 0; worker < workers; worker++ {
		assert.Equal(t, int64(awards), onDisk.UserXP(1, int64(worker)))
	}
}

func TestRestoreReplacesSnapshot(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Config{})
	_, err := s.AddAdmin(ctx, 1, "", "")
	require.NoError(t, err)

	replacement := state.New()
	replacement.AddAdmin(9, "nine", "")
	payload, err := state.Marshal(replacement)
	require.NoError(t, err)

	require.NoError(t, s.Restore(ctx, payload))
	assert.Equal(t, []int64{9}, s.ListAdmins())

	var onDisk map[string]json.RawMessage
	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.JSONEq(t, `[9]`, string(onDisk["admins"]))

	err = s.Restore(ctx, []byte("not json"))
	var serviceErr *ServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.Equal(t, "store.restore.invalid_snapshot", serviceErr.Code())
}

func TestUnchangedSnapshotCheckDoesNotWaitForBackup(t *testing.T) {
	ctx := context.Background()
	mirror := &blockingMirror{entered: make(chan struct{}, 1), release: make(chan struct{})}
	s := newTestStore(t, Config{Mirror: mirror})

	saved := make(chan error, 1)
	go func() {
		_, err := s.AddAdmin(ctx, 1, "", "")
		saved <- err
	}()
	<-mirror.entered

	checked := make(chan error, 1)
	go func() {
		checked <- s.EnsureLatestSnapshot(ctx)
	}()
	select {
	case err := <-checked:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		close(mirror.release)
		t.Fatal("snapshot check waited for the backup dump")
	}
	assert.True(t, s.IsAdmin(1))

	close(mirror.release)
	require.NoError(t, <-saved)
}
