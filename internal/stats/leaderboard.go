// Package stats derives leaderboards, group summaries, application insights and
// profile lookups from a state value. Functions never mutate their input; callers
// hold whatever lock protects it.
package stats

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/guildkeeper/internal/state"
	"github.com/MarcoPoloResearchLab/guildkeeper/internal/xp"
)

// XPEntry is one leaderboard row. UserKey is the decimal user id as stored.
type XPEntry struct {
	UserKey string
	Score   int64
}

// CupWins counts podium appearances of a user across every chat.
type CupWins struct {
	UserKey string
	Wins    int
}

// XPLeaderboard ranks the members of chatID by score, highest first. Ties keep
// insertion order. A limit of zero or less returns every member.
func XPLeaderboard(s *state.State, chatID int64, limit int) []XPEntry {
	scores, ok := s.XP.Get(strconv.FormatInt(chatID, 10))
	if !ok {
		return []XPEntry{}
	}
	entries := make([]XPEntry, 0, scores.Len())
	scores.Range(func(userKey string, score int64) bool {
		entries = append(entries, XPEntry{UserKey: userKey, Score: score})
		return true
	})
	return rankXP(entries, limit)
}

// GlobalXPTop sums every user's score across chats and ranks the totals.
func GlobalXPTop(s *state.State, limit int) []XPEntry {
	totals := make(map[string]int64)
	var order []string
	s.XP.Range(func(_ string, scores *state.ScoreTable) bool {
		scores.Range(func(userKey string, score int64) bool {
			if _, seen := totals[userKey]; !seen {
				order = append(order, userKey)
			}
			totals[userKey] = xp.AddScore(totals[userKey], score)
			return true
		})
		return true
	})
	entries := make([]XPEntry, 0, len(order))
	for _, userKey := range order {
		entries = append(entries, XPEntry{UserKey: userKey, Score: totals[userKey]})
	}
	return rankXP(entries, limit)
}

// CupWinsTop counts podium entries that parse as integer user ids. Other entries,
// such as free-form names, are ignored.
func CupWinsTop(s *state.State, limit int) []CupWins {
	wins := make(map[string]int)
	var order []string
	s.Cups.Range(func(_ string, cups []state.Cup) bool {
		for _, cup := range cups {
			for _, entry := range cup.Podium {
				userID, err := strconv.ParseInt(strings.TrimSpace(entry), 10, 64)
				if err != nil {
					continue
				}
				userKey := strconv.FormatInt(userID, 10)
				if _, seen := wins[userKey]; !seen {
					order = append(order, userKey)
				}
				wins[userKey]++
			}
		}
		return true
	})
	entries := make([]CupWins, 0, len(order))
	for _, userKey := range order {
		entries = append(entries, CupWins{UserKey: userKey, Wins: wins[userKey]})
	}
	slices.SortStableFunc(entries, func(a, b CupWins) int {
		return cmp.Compare(b.Wins, a.Wins)
	})
	return truncate(entries, limit)
}

// RecentCups returns the cups of chatID, newest first by their recorded timestamp.
func RecentCups(s *state.State, chatID int64, limit int) []state.Cup {
	cups, _ := s.Cups.Get(strconv.FormatInt(chatID, 10))
	ordered := make([]state.Cup, 0, len(cups))
	for _, cup := range cups {
		ordered = append(ordered, cup.Clone())
	}
	slices.SortStableFunc(ordered, func(a, b state.Cup) int {
		return cmp.Compare(b.CreatedAt, a.CreatedAt)
	})
	return truncate(ordered, limit)
}

func rankXP(entries []XPEntry, limit int) []XPEntry {
	slices.SortStableFunc(entries, func(a, b XPEntry) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return truncate(entries, limit)
}

func truncate[T any](values []T, limit int) []T {
	if limit > 0 && len(values) > limit {
		return values[:limit]
	}
	return values
}
