package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/MarcoPoloResearchLab/guildkeeper/internal/xp"
)

const (
	defaultTopLimit = 10
	maxTopLimit     = 100
)

func (h *httpHandler) handleChatXP(c *gin.Context) {
	chatID, ok := requiredInt64Query(c, "chat_id")
	if !ok {
		return
	}
	limit, ok := optionalIntQuery(c, "limit", h.xpSize, 1, 0)
	if !ok {
		return
	}

	entries := h.repository.XPLeaderboard(chatID, limit)
	leaderboard := make([]chatLeaderboardEntryPayload, 0, len(entries))
	for _, entry := range entries {
		leaderboard = append(leaderboard, chatLeaderboardEntryPayload{
			UserID: userKeyValue(entry.UserKey),
			Score:  entry.Score,
			Level:  xp.Progress(entry.Score).Level,
		})
	}
	c.JSON(http.StatusOK, chatLeaderboardPayload{ChatID: chatID, Limit: limit, Leaderboard: leaderboard})
}

func (h *httpHandler) handleChatCups(c *gin.Context) {
	chatID, ok := requiredInt64Query(c, "chat_id")
	if !ok {
		return
	}
	limit, ok := optionalIntQuery(c, "limit", h.cupSize, 1, 0)
	if !ok {
		return
	}
	cups := h.repository.Cups(chatID, limit)
	c.JSON(http.StatusOK, cupHistoryPayload{ChatID: chatID, Limit: limit, Cups: toCupPayloads(cups)})
}

func (h *httpHandler) handleXPTop(c *gin.Context) {
	limit, ok := optionalIntQuery(c, "limit", defaultTopLimit, 1, maxTopLimit)
	if !ok {
		return
	}
	entries := h.repository.GlobalXPTop(limit)
	leaderboard := make([]xpTopEntryPayload, 0, len(entries))
	for index, entry := range entries {
		userID := userKeyValue(entry.UserKey)
		row := xpTopEntryPayload{
			Rank:   index + 1,
			UserID: userID,
			XP:     entry.Score,
			Level:  xp.Progress(entry.Score).Level,
		}
		if numericID, isNumeric := userID.(int64); isNumeric {
			profile := h.repository.AnyProfile(numericID)
			row.Username = optional(profile.Username)
			row.FullName = optional(profile.FullName)
		}
		leaderboard = append(leaderboard, row)
	}
	c.JSON(http.StatusOK, xpTopPayload{Total: len(leaderboard), Leaderboard: leaderboard})
}

func (h *httpHandler) handleCupsTop(c *gin.Context) {
	limit, ok := optionalIntQuery(c, "limit", defaultTopLimit, 1, maxTopLimit)
	if !ok {
		return
	}
	entries := h.repository.CupWinsTop(limit)
	leaderboard := make([]cupsTopEntryPayload, 0, len(entries))
	for index, entry := range entries {
		userID := userKeyValue(entry.UserKey)
		row := cupsTopEntryPayload{
			Rank:   index + 1,
			UserID: userID,
			Cups:   entry.Wins,
		}
		if numericID, isNumeric := userID.(int64); isNumeric {
			profile := h.repository.AnyProfile(numericID)
			row.Username = optional(profile.Username)
			row.FullName = optional(profile.FullName)
		}
		leaderboard = append(leaderboard, row)
	}
	c.JSON(http.StatusOK, cupsTopPayload{Total: len(leaderboard), Leaderboard: leaderboard})
}

func (h *httpHandler) handleProfile(c *gin.Context) {
	profile, resolved := h.repository.ProfileByIdentifier(c.Param("identifier"))
	payload := profilePayload{
		Username: optional(profile.Username),
		FullName: optional(profile.FullName),
	}
	if resolved {
		userID := profile.UserID
		payload.UserID = &userID
	}
	c.JSON(http.StatusOK, payload)
}

func requiredInt64Query(c *gin.Context, name string) (int64, bool) {
	raw := strings.TrimSpace(c.Query(name))
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorPayload{Error: "invalid_" + name})
		return 0, false
	}
	return value, true
}

// optionalIntQuery parses an integer query parameter within [minimum, maximum]; a
// maximum of zero leaves the upper bound open.
func optionalIntQuery(c *gin.Context, name string, fallback, minimum, maximum int) (int, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < minimum || (maximum > 0 && value > maximum) {
		c.JSON(http.StatusBadRequest, errorPayload{Error: "invalid_" + name})
		return 0, false
	}
	return value, true
}
