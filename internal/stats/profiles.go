package stats

import (
	"slices"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/guildkeeper/internal/state"
)

// Profile is the best known display identity of a user.
type Profile struct {
	UserID   int64
	Username string
	FullName string
}

// AnyProfile merges what is known about userID: admin profile first, then the live
// application, then the XP profile. Missing fields stay empty.
func AnyProfile(s *state.State, userID int64) Profile {
	admin := s.AdminProfiles[userID]
	profile := Profile{UserID: userID, Username: admin.Username, FullName: admin.FullName}
	if app, ok := s.Applications[userID]; ok {
		profile.Username = firstNonEmpty(profile.Username, app.Username)
		profile.FullName = firstNonEmpty(profile.FullName, app.FullName)
	}
	if xpProfile, ok := s.XPProfiles[strconv.FormatInt(userID, 10)]; ok {
		profile.Username = firstNonEmpty(profile.Username, xpProfile.Username)
		profile.FullName = firstNonEmpty(profile.FullName, xpProfile.FullName)
	}
	return profile
}

// AdminProfile resolves an admin's identity; it reports false for non-admins.
func AdminProfile(s *state.State, userID int64) (Profile, bool) {
	if !s.IsAdmin(userID) {
		return Profile{}, false
	}
	return AnyProfile(s, userID), true
}

// AdminDetails lists every admin in registration order, completing missing
// fields from their live application.
func AdminDetails(s *state.State) []Profile {
	details := make([]Profile, 0, len(s.Admins))
	for _, userID := range s.Admins {
		admin := s.AdminProfiles[userID]
		profile := Profile{UserID: userID, Username: admin.Username, FullName: admin.FullName}
		if app, ok := s.Applications[userID]; ok {
			profile.Username = firstNonEmpty(profile.Username, app.Username)
			profile.FullName = firstNonEmpty(profile.FullName, app.FullName)
		}
		details = append(details, profile)
	}
	return details
}

// ProfileByIdentifier resolves a numeric id or a username. Usernames match
// case-insensitively against admin profiles, then applications, then XP profiles.
// The boolean reports whether a user id was resolved; when it is false the
// returned profile carries the normalized username that was searched for.
func ProfileByIdentifier(s *state.State, identifier string) (Profile, bool) {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return Profile{}, false
	}
	if userID, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return AnyProfile(s, userID), true
	}

	wanted := state.NormalizeUsername(trimmed)
	if wanted == "" {
		return Profile{}, false
	}

	for _, userID := range sortedIDs(s.AdminProfiles) {
		stored := state.NormalizeUsername(s.AdminProfiles[userID].Username)
		if stored != "" && strings.EqualFold(stored, wanted) {
			profile := AnyProfile(s, userID)
			profile.Username = firstNonEmpty(profile.Username, stored)
			return profile, true
		}
	}

	for _, userID := range sortedIDs(s.Applications) {
		app := s.Applications[userID]
		stored := state.NormalizeUsername(app.Username)
		if stored != "" && strings.EqualFold(stored, wanted) {
			profile := AnyProfile(s, userID)
			profile.Username = firstNonEmpty(profile.Username, stored)
			profile.FullName = firstNonEmpty(profile.FullName, app.FullName)
			return profile, true
		}
	}

	userKeys := make([]string, 0, len(s.XPProfiles))
	for userKey := range s.XPProfiles {
		userKeys = append(userKeys, userKey)
	}
	slices.Sort(userKeys)
	for _, userKey := range userKeys {
		xpProfile := s.XPProfiles[userKey]
		stored := state.NormalizeUsername(xpProfile.Username)
		if stored == "" || !strings.EqualFold(stored, wanted) {
			continue
		}
		userID, err := strconv.ParseInt(userKey, 10, 64)
		if err != nil {
			return Profile{Username: stored, FullName: xpProfile.FullName}, false
		}
		profile := AnyProfile(s, userID)
		profile.Username = firstNonEmpty(profile.Username, stored)
		profile.FullName = firstNonEmpty(profile.FullName, xpProfile.FullName)
		return profile, true
	}

	return Profile{Username: wanted}, false
}
