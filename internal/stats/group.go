package stats

import (
	"slices"
	"strconv"
	"time"

	"github.com/MarcoPoloResearchLab/guildkeeper/internal/state"
	"github.com/MarcoPoloResearchLab/guildkeeper/internal/timestamps"
	"github.com/MarcoPoloResearchLab/guildkeeper/internal/xp"
)

// TopMember is the highest scoring member of a chat.
type TopMember struct {
	UserKey string
	Display string
	XP      int64
	Level   int
}

// CupSummary names the most recent cup of a chat.
type CupSummary struct {
	Title     string
	CreatedAt string
}

// GroupSnapshot summarizes the activity of one chat.
type GroupSnapshot struct {
	MembersTracked int
	TotalXP        int64
	TopMember      *TopMember
	CupCount       int
	RecentCup      *CupSummary
	AdminsTracked  int
	LastActivity   string
}

// BuildGroupSnapshot summarizes chatID. LastActivity comes from the newest
// machine-readable XP timestamp among the chat's members, rendered through clock,
// and falls back to a stored display timestamp.
func BuildGroupSnapshot(s *state.State, chatID int64, clock *timestamps.Clock) GroupSnapshot {
	chatKey := strconv.FormatInt(chatID, 10)
	snapshot := GroupSnapshot{AdminsTracked: len(s.Admins)}

	if scores, ok := s.XP.Get(chatKey); ok {
		scores.Range(func(userKey string, score int64) bool {
			snapshot.MembersTracked++
			snapshot.TotalXP = xp.AddScore(snapshot.TotalXP, score)
			if snapshot.TopMember == nil || score > snapshot.TopMember.XP {
				snapshot.TopMember = &TopMember{UserKey: userKey, XP: score}
			}
			return true
		})
	}
	if top := snapshot.TopMember; top != nil {
		profile := s.XPProfiles[top.UserKey]
		top.Display = firstNonEmpty(profile.FullName, profile.Username, top.UserKey)
		top.Level = xp.Progress(top.XP).Level
	}

	cups, _ := s.Cups.Get(chatKey)
	snapshot.CupCount = len(cups)
	for index, cup := range cups {
		if index == 0 || cup.CreatedAt > snapshot.RecentCup.CreatedAt {
			snapshot.RecentCup = &CupSummary{Title: cup.Title, CreatedAt: cup.CreatedAt}
		}
	}

	snapshot.LastActivity = lastActivity(s, chatKey, clock)
	return snapshot
}

func lastActivity(s *state.State, chatKey string, clock *timestamps.Clock) string {
	userKeys := make([]string, 0, len(s.XPProfiles))
	for userKey, profile := range s.XPProfiles {
		if slices.Contains(profile.Chats, chatKey) {
			userKeys = append(userKeys, userKey)
		}
	}
	slices.Sort(userKeys)

	var latest time.Time
	found := false
	for _, userKey := range userKeys {
		candidate, ok := parseISO(s.XPProfiles[userKey].UpdatedAtISO, clock)
		if ok && (!found || candidate.After(latest)) {
			latest = candidate
			found = true
		}
	}
	if found {
		if clock == nil {
			return latest.Format(time.RFC3339)
		}
		return clock.Format(latest)
	}
	for _, userKey := range userKeys {
		if display := s.XPProfiles[userKey].UpdatedAt; display != "" {
			return display
		}
	}
	return ""
}

func parseISO(raw string, clock *timestamps.Clock) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	if clock != nil {
		return clock.Parse(raw)
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	return parsed, err == nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
