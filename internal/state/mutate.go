package state

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/guildkeeper/internal/xp"
)

// AddAdmin registers userID and merges any newly learned profile data. It reports
// whether anything changed.
func (s *State) AddAdmin(userID int64, username, fullName string) bool {
	normalizedUsername := NormalizeUsername(username)
	normalizedFullName := strings.TrimSpace(fullName)

	changed := false
	if !slices.Contains(s.Admins, userID) {
		s.Admins = append(s.Admins, userID)
		changed = true
	}

	profile := s.AdminProfiles[userID]
	if normalizedUsername != "" && profile.Username != normalizedUsername {
		profile.Username = normalizedUsername
		changed = true
	}
	if normalizedFullName != "" && profile.FullName != normalizedFullName {
		profile.FullName = normalizedFullName
		changed = true
	}
	if profile.isEmpty() {
		delete(s.AdminProfiles, userID)
	} else {
		s.AdminProfiles[userID] = profile
	}
	return changed
}

// RemoveAdmin drops userID and its profile. It reports false when userID was not an
// admin.
func (s *State) RemoveAdmin(userID int64) bool {
	index := slices.Index(s.Admins, userID)
	if index < 0 {
		return false
	}
	s.Admins = slices.Delete(s.Admins, index, index+1)
	if len(s.Admins) == 0 {
		s.Admins = nil
	}
	delete(s.AdminProfiles, userID)
	return true
}

// IsAdmin reports whether userID is registered as an admin.
func (s *State) IsAdmin(userID int64) bool {
	return slices.Contains(s.Admins, userID)
}

// AddApplication stores app and writes a pending history entry stamped with now.
// Users whose last status is approved, or who already have a live application, are
// refused.
func (s *State) AddApplication(app Application, now string) bool {
	if entry, ok := s.History[app.UserID]; ok && entry.Status == StatusApproved {
		return false
	}
	if _, exists := s.Applications[app.UserID]; exists {
		return false
	}
	stored := app.Clone()
	stored.CreatedAt = now
	s.Applications[app.UserID] = stored
	s.History[app.UserID] = HistoryEntry{
		Status:       StatusPending,
		UpdatedAt:    now,
		LanguageCode: app.LanguageCode,
	}
	return true
}

// PopApplication removes and returns the live application of userID.
func (s *State) PopApplication(userID int64) (Application, bool) {
	app, ok := s.Applications[userID]
	if !ok {
		return Application{}, false
	}
	delete(s.Applications, userID)
	return app, true
}

// WithdrawApplication removes the live application of userID and records a
// withdrawn history entry in the application's language.
func (s *State) WithdrawApplication(userID int64, now string) bool {
	app, ok := s.PopApplication(userID)
	if !ok {
		return false
	}
	s.History[userID] = HistoryEntry{
		Status:       StatusWithdrawn,
		UpdatedAt:    now,
		LanguageCode: app.LanguageCode,
	}
	return true
}

// MarkApplicationStatus overwrites the history entry of userID. An empty
// languageCode keeps the language of the previous entry.
func (s *State) MarkApplicationStatus(userID int64, status Status, note, languageCode, now string) {
	language := languageCode
	if language == "" {
		language = s.History[userID].LanguageCode
	}
	s.History[userID] = HistoryEntry{
		Status:       status,
		UpdatedAt:    now,
		Note:         note,
		LanguageCode: language,
	}
}

// ApplicantsByStatus lists history entries with the given status, ordered by user id.
func (s *State) ApplicantsByStatus(status Status) []UserHistory {
	matches := make([]UserHistory, 0)
	for _, userID := range sortedKeys(s.History) {
		entry := s.History[userID]
		if entry.Status == status {
			matches = append(matches, UserHistory{UserID: userID, Entry: entry})
		}
	}
	return matches
}

// UserHistory pairs a user id with its history entry.
type UserHistory struct {
	UserID int64
	Entry  HistoryEntry
}

// QuestionsFor returns the effective overrides for languageCode: the default bucket
// with the language bucket layered on top.
func (s *State) QuestionsFor(languageCode string) map[string]string {
	key := NormalizeLanguageKey(languageCode)
	overrides := make(map[string]string)
	for questionID, prompt := range s.Questions[DefaultLanguageKey] {
		overrides[questionID] = prompt
	}
	if key != DefaultLanguageKey {
		for questionID, prompt := range s.Questions[key] {
			overrides[questionID] = prompt
		}
	}
	return overrides
}

// SetQuestion sets or, for an empty prompt, removes an override. It reports whether
// the stored overrides changed.
func (s *State) SetQuestion(questionID, prompt, languageCode string) bool {
	id := strings.TrimSpace(questionID)
	if id == "" {
		return false
	}
	text := strings.TrimSpace(prompt)
	key := NormalizeLanguageKey(languageCode)
	bucket := s.Questions[key]

	if text == "" {
		if _, exists := bucket[id]; !exists {
			return false
		}
		delete(bucket, id)
		if len(bucket) == 0 {
			delete(s.Questions, key)
		}
		return true
	}

	if current, exists := bucket[id]; exists && current == text {
		return false
	}
	if bucket == nil {
		bucket = make(map[string]string)
		s.Questions[key] = bucket
	}
	bucket[id] = text
	return true
}

// XPIdentity is the optional display identity reported with an XP award.
type XPIdentity struct {
	Username string
	FullName string
}

// AddXP adds amount to the score of userID in chatID, refreshes the user's XP
// profile and returns the new total. The score saturates at math.MaxInt64 and never
// drops below zero. display is the formatted rendering of now.
func (s *State) AddXP(chatID, userID, amount int64, identity XPIdentity, now time.Time, display string) int64 {
	chatKey := strconv.FormatInt(chatID, 10)
	userKey := strconv.FormatInt(userID, 10)

	scores, ok := s.XP.Get(chatKey)
	if !ok {
		scores = &ScoreTable{}
		s.XP.Set(chatKey, scores)
	}
	current, _ := scores.Get(userKey)
	total := xp.AddScore(current, amount)
	scores.Set(userKey, total)

	profile := s.XPProfiles[userKey]
	if username := NormalizeUsername(identity.Username); username != "" {
		profile.Username = username
	}
	if fullName := strings.TrimSpace(identity.FullName); fullName != "" {
		profile.FullName = fullName
	}
	if !slices.Contains(profile.Chats, chatKey) {
		profile.Chats = append(slices.Clone(profile.Chats), chatKey)
	}
	profile.LastChat = chatKey
	profile.UpdatedAt = display
	profile.UpdatedAtISO = now.Format(time.RFC3339Nano)
	s.XPProfiles[userKey] = profile
	return total
}

// UserXP returns the score of userID in chatID, zero when unknown.
func (s *State) UserXP(chatID, userID int64) int64 {
	scores, ok := s.XP.Get(strconv.FormatInt(chatID, 10))
	if !ok {
		return 0
	}
	score, _ := scores.Get(strconv.FormatInt(userID, 10))
	return score
}

// AddCup appends cup to the history of chatID.
func (s *State) AddCup(chatID int64, cup Cup) {
	chatKey := strconv.FormatInt(chatID, 10)
	cups, _ := s.Cups.Get(chatKey)
	s.Cups.Set(chatKey, append(slices.Clip(cups), cup.Clone()))
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	clone := New()
	if len(s.Admins) > 0 {
		clone.Admins = slices.Clone(s.Admins)
	}
	for userID, profile := range s.AdminProfiles {
		clone.AdminProfiles[userID] = profile
	}
	for userID, app := range s.Applications {
		clone.Applications[userID] = app.Clone()
	}
	for userID, entry := range s.History {
		clone.History[userID] = entry
	}
	s.XP.Range(func(chatKey string, scores *ScoreTable) bool {
		copied := &ScoreTable{}
		scores.Range(func(userKey string, score int64) bool {
			copied.Set(userKey, score)
			return true
		})
		clone.XP.Set(chatKey, copied)
		return true
	})
	for userKey, profile := range s.XPProfiles {
		clone.XPProfiles[userKey] = profile.Clone()
	}
	s.Cups.Range(func(chatKey string, cups []Cup) bool {
		var copied []Cup
		for _, cup := range cups {
			copied = append(copied, cup.Clone())
		}
		clone.Cups.Set(chatKey, copied)
		return true
	})
	for language, bucket := range s.Questions {
		copied := make(map[string]string, len(bucket))
		for questionID, prompt := range bucket {
			copied[questionID] = prompt
		}
		clone.Questions[language] = copied
	}
	return clone
}

// IsZero reports whether the state holds no data at all.
func (s *State) IsZero() bool {
	return len(s.Admins) == 0 &&
		len(s.AdminProfiles) == 0 &&
		len(s.Applications) == 0 &&
		len(s.History) == 0 &&
		s.XP.Len() == 0 &&
		len(s.XPProfiles) == 0 &&
		s.Cups.Len() == 0 &&
		len(s.Questions) == 0
}

func sortedKeys[V any](values map[int64]V) []int64 {
	keys := make([]int64, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
