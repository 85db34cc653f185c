package server

import (
	"strconv"

	"github.com/MarcoPoloResearchLab/guildkeeper/internal/state"
	"github.com/MarcoPoloResearchLab/guildkeeper/internal/stats"
)

type errorPayload struct {
	Error string `json:"error"`
}

type healthPayload struct {
	Status          string `json:"status"`
	StorageLoaded   bool   `json:"storage_loaded"`
	StorageReadOnly bool   `json:"storage_read_only"`
}

type tokenResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type adminPayload struct {
	UserID   int64   `json:"user_id"`
	Username *string `json:"username"`
	FullName *string `json:"full_name"`
}

type adminListPayload struct {
	Total  int            `json:"total"`
	Admins []adminPayload `json:"admins"`
}

type adminDetailPayload struct {
	Admin adminPayload `json:"admin"`
}

type adminRequestPayload struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

type adminMutationPayload struct {
	Status string `json:"status"`
}

type responsePayload struct {
	QuestionID string `json:"question_id"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
}

type applicationPayload struct {
	UserID       int64             `json:"user_id"`
	FullName     *string           `json:"full_name"`
	Username     *string           `json:"username"`
	Answer       *string           `json:"answer"`
	CreatedAt    string            `json:"created_at"`
	LanguageCode *string           `json:"language_code"`
	Responses    []responsePayload `json:"responses"`
}

type pendingApplicationsPayload struct {
	Total        int                  `json:"total"`
	Applications []applicationPayload `json:"applications"`
}

type historyPayload struct {
	Status       string  `json:"status"`
	UpdatedAt    string  `json:"updated_at"`
	Note         *string `json:"note"`
	LanguageCode *string `json:"language_code"`
}

type applicationDetailPayload struct {
	Application *applicationPayload `json:"application"`
	History     *historyPayload     `json:"history"`
}

type recentUpdatePayload struct {
	UserID    int64  `json:"user_id"`
	Status    string `json:"status"`
	UpdatedAt string `json:"updated_at"`
}

type insightsPayload struct {
	Pending                    int                   `json:"pending"`
	StatusCounts               map[string]int        `json:"status_counts"`
	Languages                  map[string]int        `json:"languages"`
	Total                      int                   `json:"total"`
	AveragePendingAnswerLength float64               `json:"average_pending_answer_length"`
	RecentUpdates              []recentUpdatePayload `json:"recent_updates"`
}

type dashboardPayload struct {
	Total                      int                   `json:"total"`
	Pending                    int                   `json:"pending"`
	Approved                   int                   `json:"approved"`
	Denied                     int                   `json:"denied"`
	Withdrawn                  int                   `json:"withdrawn"`
	StatusCounts               map[string]int        `json:"status_counts"`
	ApprovalRate               float64               `json:"approval_rate"`
	Languages                  map[string]int        `json:"languages"`
	PendingByLanguage          map[string]int        `json:"pending_by_language"`
	AveragePendingAnswerLength float64               `json:"average_pending_answer_length"`
	RecentUpdates              []recentUpdatePayload `json:"recent_updates"`
}

type chatLeaderboardEntryPayload struct {
	UserID any   `json:"user_id"`
	Score  int64 `json:"score"`
	Level  int   `json:"level"`
}

type chatLeaderboardPayload struct {
	ChatID      int64                         `json:"chat_id"`
	Limit       int                           `json:"limit"`
	Leaderboard []chatLeaderboardEntryPayload `json:"leaderboard"`
}

type cupPayload struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Podium      []string `json:"podium"`
	CreatedAt   string   `json:"created_at"`
}

type cupHistoryPayload struct {
	ChatID int64        `json:"chat_id"`
	Limit  int          `json:"limit"`
	Cups   []cupPayload `json:"cups"`
}

type xpTopEntryPayload struct {
	Rank     int     `json:"rank"`
	UserID   any     `json:"user_id"`
	Username *string `json:"username"`
	FullName *string `json:"full_name"`
	XP       int64   `json:"xp"`
	Level    int     `json:"level"`
}

type xpTopPayload struct {
	Total       int                 `json:"total"`
	Leaderboard []xpTopEntryPayload `json:"leaderboard"`
}

type cupsTopEntryPayload struct {
	Rank     int     `json:"rank"`
	UserID   any     `json:"user_id"`
	Username *string `json:"username"`
	FullName *string `json:"full_name"`
	Cups     int     `json:"cups"`
}

type cupsTopPayload struct {
	Total       int                   `json:"total"`
	Leaderboard []cupsTopEntryPayload `json:"leaderboard"`
}

type profilePayload struct {
	UserID   *int64  `json:"user_id"`
	Username *string `json:"username"`
	FullName *string `json:"full_name"`
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

// userKeyValue renders numeric user keys as numbers and anything else verbatim.
func userKeyValue(key string) any {
	if userID, err := strconv.ParseInt(key, 10, 64); err == nil {
		return userID
	}
	return key
}

func toAdminPayload(profile stats.Profile) adminPayload {
	return adminPayload{
		UserID:   profile.UserID,
		Username: optional(profile.Username),
		FullName: optional(profile.FullName),
	}
}

func toApplicationPayload(app state.Application) applicationPayload {
	responses := make([]responsePayload, 0, len(app.Responses))
	for _, response := range app.Responses {
		responses = append(responses, responsePayload{
			QuestionID: response.QuestionID,
			Question:   response.Question,
			Answer:     response.Answer,
		})
	}
	return applicationPayload{
		UserID:       app.UserID,
		FullName:     optional(app.FullName),
		Username:     optional(app.Username),
		Answer:       optional(app.Answer),
		CreatedAt:    app.CreatedAt,
		LanguageCode: optional(app.LanguageCode),
		Responses:    responses,
	}
}

func toHistoryPayload(entry state.HistoryEntry) historyPayload {
	return historyPayload{
		Status:       string(entry.Status),
		UpdatedAt:    entry.UpdatedAt,
		Note:         optional(entry.Note),
		LanguageCode: optional(entry.LanguageCode),
	}
}

func toRecentUpdates(updates []stats.RecentUpdate) []recentUpdatePayload {
	payload := make([]recentUpdatePayload, 0, len(updates))
	for _, update := range updates {
		payload = append(payload, recentUpdatePayload{
			UserID:    update.UserID,
			Status:    string(update.Status),
			UpdatedAt: update.UpdatedAt,
		})
	}
	return payload
}

func toCupPayloads(cups []state.Cup) []cupPayload {
	payload := make([]cupPayload, 0, len(cups))
	for _, cup := range cups {
		podium := make([]string, 0, len(cup.Podium))
		payload = append(payload, cupPayload{
			Title:       cup.Title,
			Description: cup.Description,
			Podium:      append(podium, cup.Podium...),
			CreatedAt:   cup.CreatedAt,
		})
	}
	return payload
}
