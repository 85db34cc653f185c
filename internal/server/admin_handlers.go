package server

import (
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/guildkeeper/internal/stats"
)

const (
	maxUsernameLength = 64
	maxFullNameLength = 128
	maxPendingLimit   = 200
	minSearchLength   = 2
	maxSearchLength   = 64
)

func (h *httpHandler) handleListAdmins(c *gin.Context) {
	details := h.repository.AdminDetails()
	admins := make([]adminPayload, 0, len(details))
	for _, profile := range details {
		admins = append(admins, toAdminPayload(profile))
	}
	c.JSON(http.StatusOK, adminListPayload{Total: len(admins), Admins: admins})
}

func (h *httpHandler) handleGetAdmin(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}
	profile, found := h.repository.AdminProfile(userID)
	if !found {
		c.JSON(http.StatusNotFound, errorPayload{Error: "admin_not_found"})
		return
	}
	c.JSON(http.StatusOK, adminDetailPayload{Admin: toAdminPayload(profile)})
}

func (h *httpHandler) handleCreateAdmin(c *gin.Context) {
	var request adminRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.UserID < 1 {
		c.JSON(http.StatusBadRequest, errorPayload{Error: "invalid_request"})
		return
	}
	if utf8.RuneCountInString(request.Username) > maxUsernameLength || utf8.RuneCountInString(request.FullName) > maxFullNameLength {
		c.JSON(http.StatusBadRequest, errorPayload{Error: "invalid_request"})
		return
	}

	existing := h.repository.IsAdmin(request.UserID)
	changed, err := h.repository.AddAdmin(c.Request.Context(), request.UserID, request.Username, request.FullName)
	if err != nil {
		h.logger.Error("failed to persist admin", zap.Int64("user_id", request.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorPayload{Error: "persist_failed"})
		return
	}
	if !changed && existing {
		c.JSON(http.StatusConflict, errorPayload{Error: "admin_exists"})
		return
	}
	if !changed {
		c.JSON(http.StatusBadRequest, errorPayload{Error: "admin_not_added"})
		return
	}

	h.publishChange("admin_saved")
	status := "created"
	if existing {
		status = "updated"
	}
	c.JSON(http.StatusOK, adminMutationPayload{Status: status})
}

func (h *httpHandler) handleDeleteAdmin(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}
	removed, err := h.repository.RemoveAdmin(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to persist admin removal", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorPayload{Error: "persist_failed"})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, errorPayload{Error: "admin_not_found"})
		return
	}
	h.publishChange("admin_removed")
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handlePendingApplications(c *gin.Context) {
	query := stats.PendingQuery{Sort: stats.SortRecent}
	if sort := strings.TrimSpace(c.Query("sort")); sort != "" {
		switch sort {
		case stats.SortRecent, stats.SortOldest, stats.SortName:
			query.Sort = sort
		default:
			c.JSON(http.StatusBadRequest, errorPayload{Error: "invalid_sort"})
			return
		}
	}
	limit, ok := optionalIntQuery(c, "limit", 0, 1, maxPendingLimit)
	if !ok {
		return
	}
	offset, ok := optionalIntQuery(c, "offset", 0, 0, 0)
	if !ok {
		return
	}
	query.Limit = limit
	query.Offset = offset

	if search, present := c.GetQuery("search"); present {
		length := utf8.RuneCountInString(search)
		if length < minSearchLength || length > maxSearchLength {
			c.JSON(http.StatusBadRequest, errorPayload{Error: "invalid_search"})
			return
		}
		query.Search = search
	}
	query.Languages = c.QueryArray("language")

	total, page := stats.QueryPending(h.repository.PendingApplications(), query)
	applications := make([]applicationPayload, 0, len(page))
	for _, app := range page {
		applications = append(applications, toApplicationPayload(app))
	}
	c.JSON(http.StatusOK, pendingApplicationsPayload{Total: total, Applications: applications})
}

func (h *httpHandler) handleApplicationInsights(c *gin.Context) {
	statistics := h.repository.ApplicationStatistics()
	c.JSON(http.StatusOK, insightsPayload{
		Pending:                    statistics.Pending,
		StatusCounts:               statistics.StatusCounts,
		Languages:                  statistics.Languages,
		Total:                      statistics.Total,
		AveragePendingAnswerLength: statistics.AveragePendingAnswerLength,
		RecentUpdates:              toRecentUpdates(statistics.RecentUpdates),
	})
}

func (h *httpHandler) handleApplicationDashboard(c *gin.Context) {
	metrics := h.repository.DashboardMetrics()
	c.JSON(http.StatusOK, dashboardPayload{
		Total:                      metrics.Total,
		Pending:                    metrics.Pending,
		Approved:                   metrics.Approved,
		Denied:                     metrics.Denied,
		Withdrawn:                  metrics.Withdrawn,
		StatusCounts:               metrics.StatusCounts,
		ApprovalRate:               metrics.ApprovalRate,
		Languages:                  metrics.Languages,
		PendingByLanguage:          metrics.PendingByLanguage,
		AveragePendingAnswerLength: metrics.AveragePendingAnswerLength,
		RecentUpdates:              toRecentUpdates(metrics.RecentUpdates),
	})
}

func (h *httpHandler) handleApplicationDetail(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}
	app, hasApplication := h.repository.Application(userID)
	entry, hasHistory := h.repository.ApplicationStatus(userID)
	if !hasApplication && !hasHistory {
		c.JSON(http.StatusNotFound, errorPayload{Error: "application_not_found"})
		return
	}

	var payload applicationDetailPayload
	if hasApplication {
		converted := toApplicationPayload(app)
		payload.Application = &converted
	}
	if hasHistory {
		converted := toHistoryPayload(entry)
		payload.History = &converted
	}
	c.JSON(http.StatusOK, payload)
}

func userIDParam(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(strings.TrimSpace(c.Param("user_id")), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorPayload{Error: "invalid_user_id"})
		return 0, false
	}
	return userID, true
}
