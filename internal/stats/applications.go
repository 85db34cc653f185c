package stats

import (
	"cmp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/guildkeeper/internal/state"
)

const (
	unknownLanguage    = "unknown"
	recentUpdatesLimit = 5
)

// RecentUpdate is a history entry surfaced on dashboards.
type RecentUpdate struct {
	UserID    int64
	Status    state.Status
	UpdatedAt string
}

// ApplicationStatistics aggregates the application history and pending queue.
type ApplicationStatistics struct {
	Total                      int
	Pending                    int
	StatusCounts               map[string]int
	Languages                  map[string]int
	AveragePendingAnswerLength float64
	RecentUpdates              []RecentUpdate
}

// DashboardMetrics extends ApplicationStatistics with decision counts.
type DashboardMetrics struct {
	ApplicationStatistics
	Approved          int
	Denied            int
	Withdrawn         int
	ApprovalRate      float64
	PendingByLanguage map[string]int
}

// BuildApplicationStatistics counts history entries by status, languages across
// history and pending applications, and the average answer length of pending
// applications.
func BuildApplicationStatistics(s *state.State) ApplicationStatistics {
	statistics := ApplicationStatistics{
		Total:         len(s.History),
		Pending:       len(s.Applications),
		StatusCounts:  make(map[string]int),
		Languages:     make(map[string]int),
		RecentUpdates: []RecentUpdate{},
	}

	updates := make([]RecentUpdate, 0, len(s.History))
	for _, userID := range sortedIDs(s.History) {
		entry := s.History[userID]
		statistics.StatusCounts[string(entry.Status)]++
		if entry.LanguageCode != "" {
			statistics.Languages[entry.LanguageCode]++
		}
		updates = append(updates, RecentUpdate{UserID: userID, Status: entry.Status, UpdatedAt: entry.UpdatedAt})
	}

	totalLength := 0
	for _, app := range s.Applications {
		statistics.Languages[cmp.Or(app.LanguageCode, unknownLanguage)]++
		totalLength += answerLength(app)
	}
	if len(s.Applications) > 0 {
		statistics.AveragePendingAnswerLength = float64(totalLength) / float64(len(s.Applications))
	}

	slices.SortStableFunc(updates, func(a, b RecentUpdate) int {
		return cmp.Compare(b.UpdatedAt, a.UpdatedAt)
	})
	statistics.RecentUpdates = append(statistics.RecentUpdates, truncate(updates, recentUpdatesLimit)...)
	return statistics
}

// BuildDashboardMetrics derives the approval rate over completed decisions.
func BuildDashboardMetrics(s *state.State) DashboardMetrics {
	statistics := BuildApplicationStatistics(s)
	metrics := DashboardMetrics{
		ApplicationStatistics: statistics,
		Approved:              statistics.StatusCounts[string(state.StatusApproved)],
		Denied:                statistics.StatusCounts[string(state.StatusDenied)],
		Withdrawn:             statistics.StatusCounts[string(state.StatusWithdrawn)],
		PendingByLanguage:     PendingByLanguage(s),
	}
	if completed := metrics.Approved + metrics.Denied + metrics.Withdrawn; completed > 0 {
		metrics.ApprovalRate = float64(metrics.Approved) / float64(completed)
	}
	return metrics
}

// PendingByLanguage counts pending applications by lowercased language code.
func PendingByLanguage(s *state.State) map[string]int {
	counts := make(map[string]int)
	for _, app := range s.Applications {
		counts[applicationLanguage(app)]++
	}
	return counts
}

// PendingApplications returns copies of the live applications ordered by user id.
func PendingApplications(s *state.State) []state.Application {
	applications := make([]state.Application, 0, len(s.Applications))
	for _, userID := range sortedIDs(s.Applications) {
		applications = append(applications, s.Applications[userID].Clone())
	}
	return applications
}

// Sort orders for PendingQuery.
const (
	SortRecent = "recent"
	SortOldest = "oldest"
	SortName   = "name"
)

// PendingQuery filters and pages the pending queue.
type PendingQuery struct {
	Sort      string
	Limit     int
	Offset    int
	Search    string
	Languages []string
}

// QueryPending filters applications by language and search text, orders them and
// applies the page window. It returns the number of matches before paging.
func QueryPending(applications []state.Application, query PendingQuery) (int, []state.Application) {
	languages := make(map[string]struct{})
	for _, language := range query.Languages {
		if normalized := strings.ToLower(strings.TrimSpace(language)); normalized != "" {
			languages[normalized] = struct{}{}
		}
	}
	needle := strings.ToLower(query.Search)

	matches := make([]state.Application, 0, len(applications))
	for _, app := range applications {
		if len(languages) > 0 {
			if _, ok := languages[applicationLanguage(app)]; !ok {
				continue
			}
		}
		if needle != "" && !matchesSearch(app, needle) {
			continue
		}
		matches = append(matches, app)
	}

	switch query.Sort {
	case SortName:
		slices.SortStableFunc(matches, func(a, b state.Application) int {
			return cmp.Compare(displayName(a), displayName(b))
		})
	case SortOldest:
		slices.SortStableFunc(matches, func(a, b state.Application) int {
			return cmp.Compare(a.CreatedAt, b.CreatedAt)
		})
	default:
		slices.SortStableFunc(matches, func(a, b state.Application) int {
			return cmp.Compare(b.CreatedAt, a.CreatedAt)
		})
	}

	total := len(matches)
	if query.Offset > 0 {
		if query.Offset >= len(matches) {
			return total, []state.Application{}
		}
		matches = matches[query.Offset:]
	}
	return total, truncate(matches, query.Limit)
}

func matchesSearch(app state.Application, needle string) bool {
	haystacks := []string{app.FullName, app.Username, app.Answer, app.LanguageCode}
	for _, response := range app.Responses {
		haystacks = append(haystacks, response.Question, response.Answer)
	}
	for _, haystack := range haystacks {
		if haystack != "" && strings.Contains(strings.ToLower(haystack), needle) {
			return true
		}
	}
	return false
}

func displayName(app state.Application) string {
	return strings.ToLower(firstNonEmpty(app.FullName, app.Username))
}

func applicationLanguage(app state.Application) string {
	return strings.ToLower(cmp.Or(app.LanguageCode, unknownLanguage))
}

func answerLength(app state.Application) int {
	length := 0
	for _, response := range app.Responses {
		length += utf8.RuneCountInString(response.Answer)
	}
	if length == 0 {
		length = utf8.RuneCountInString(app.Answer)
	}
	return length
}

func sortedIDs[V any](values map[int64]V) []int64 {
	keys := make([]int64, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
