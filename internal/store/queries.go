package store

import (
	"slices"
	"strconv"

	"github.com/MarcoPoloResearchLab/guildkeeper/internal/state"
	"github.com/MarcoPoloResearchLab/guildkeeper/internal/stats"
)

// Read accessors hold the read lock and return copies.

// IsAdmin reports whether userID is a registered admin.
func (s *Store) IsAdmin(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.IsAdmin(userID)
}

// ListAdmins returns admin ids in registration order.
func (s *Store) ListAdmins() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.state.Admins)
}

// AdminDetails lists admins with their best known profile.
func (s *Store) AdminDetails() []stats.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stats.AdminDetails(s.state)
}

// AdminProfile resolves an admin's identity; false for non-admins.
func (s *Store) AdminProfile(userID int64) (stats.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stats.AdminProfile(s.state, userID)
}

// AnyProfile merges everything known about userID.
func (s *Store) AnyProfile(userID int64) stats.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stats.AnyProfile(s.state, userID)
}

// ProfileByIdentifier resolves a numeric id or a username; see
// stats.ProfileByIdentifier.
func (s *Store) ProfileByIdentifier(identifier string) (stats.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stats.ProfileByIdentifier(s.state, identifier)
}

// HasApplication reports whether userID has a live application.
func (s *Store) HasApplication(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.state.Applications[userID]
	return ok
}

// Application returns a copy of the live application of userID.
func (s *Store) Application(userID int64) (state.Application, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	application, ok := s.state.Applications[userID]
	if !ok {
		return state.Application{}, false
	}
	return application.Clone(), true
}

// PendingApplications returns copies of the live applications ordered by user id.
func (s *Store) PendingApplications() []state.Application {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stats.PendingApplications(s.state)
}

// ApplicationStatus returns the latest history entry of userID.
func (s *Store) ApplicationStatus(userID int64) (state.HistoryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.state.History[userID]
	return entry, ok
}

// ApplicantsByStatus lists users whose latest entry has status.
func (s *Store) ApplicantsByStatus(status state.Status) []state.UserHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.ApplicantsByStatus(status)
}

// ApplicationQuestions returns the prompt overrides effective for languageCode.
func (s *Store) ApplicationQuestions(languageCode string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.QuestionsFor(languageCode)
}

// UserXP returns a member's score; false when the chat or member is unknown.
func (s *Store) UserXP(chatID, userID int64) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scores, ok := s.state.XP.Get(strconv.FormatInt(chatID, 10))
	if !ok {
		return 0, false
	}
	return scores.Get(strconv.FormatInt(userID, 10))
}

// XPProfile returns the XP profile of userID.
func (s *Store) XPProfile(userID int64) (state.XPProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.state.XPProfiles[strconv.FormatInt(userID, 10)]
	return profile.Clone(), ok
}

// XPLeaderboard ranks the members of chatID; limit <= 0 returns everyone.
func (s *Store) XPLeaderboard(chatID int64, limit int) []stats.XPEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stats.XPLeaderboard(s.state, chatID, limit)
}

// GlobalXPTop ranks users by their score summed across chats.
func (s *Store) GlobalXPTop(limit int) []stats.XPEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stats.GlobalXPTop(s.state, limit)
}

// CupWinsTop ranks users by podium appearances.
func (s *Store) CupWinsTop(limit int) []stats.CupWins {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stats.CupWinsTop(s.state, limit)
}

// Cups returns the cups of chatID, newest first.
func (s *Store) Cups(chatID int64, limit int) []state.Cup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stats.RecentCups(s.state, chatID, limit)
}

// GroupSnapshot summarizes the activity of chatID.
func (s *Store) GroupSnapshot(chatID int64) stats.GroupSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stats.BuildGroupSnapshot(s.state, chatID, s.clock)
}

// ApplicationStatistics aggregates history and the pending queue.
func (s *Store) ApplicationStatistics() stats.ApplicationStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stats.BuildApplicationStatistics(s.state)
}

// DashboardMetrics adds decision counts and the approval rate.
func (s *Store) DashboardMetrics() stats.DashboardMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stats.BuildDashboardMetrics(s.state)
}

// Snapshot returns a deep copy of the whole state.
func (s *Store) Snapshot() *state.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}
