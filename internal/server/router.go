// Package server exposes the guild storage over a read-mostly dashboard REST API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/guildkeeper/internal/auth"
	"github.com/MarcoPoloResearchLab/guildkeeper/internal/state"
	"github.com/MarcoPoloResearchLab/guildkeeper/internal/stats"
	"github.com/MarcoPoloResearchLab/guildkeeper/internal/store"
)

const (
	adminSubjectContextKey    = "guildkeeper_admin_subject"
	defaultXPLeaderboardSize  = 10
	defaultCupLeaderboardSize = 5
)

var (
	errMissingRepository    = errors.New("repository dependency required")
	errMissingAuthenticator = errors.New("admin authenticator dependency required")
)

// Repository is the storage surface the dashboard reads and mutates.
type Repository interface {
	EnsureLatestSnapshot(ctx context.Context) error
	Signature() (store.Signature, bool)
	PersistenceEnabled() bool

	IsAdmin(userID int64) bool
	AdminDetails() []stats.Profile
	AdminProfile(userID int64) (stats.Profile, bool)
	AddAdmin(ctx context.Context, userID int64, username, fullName string) (bool, error)
	RemoveAdmin(ctx context.Context, userID int64) (bool, error)
	AnyProfile(userID int64) stats.Profile
	ProfileByIdentifier(identifier string) (stats.Profile, bool)

	Application(userID int64) (state.Application, bool)
	ApplicationStatus(userID int64) (state.HistoryEntry, bool)
	PendingApplications() []state.Application
	ApplicationStatistics() stats.ApplicationStatistics
	DashboardMetrics() stats.DashboardMetrics

	XPLeaderboard(chatID int64, limit int) []stats.XPEntry
	GlobalXPTop(limit int) []stats.XPEntry
	CupWinsTop(limit int) []stats.CupWins
	Cups(chatID int64, limit int) []state.Cup
}

// AdminTokenIssuer issues bearer tokens for dashboard sessions.
type AdminTokenIssuer interface {
	IssueAdminToken(ctx context.Context, subject string) (string, int64, error)
}

// Dependencies wires the HTTP handler.
type Dependencies struct {
	Repository         Repository
	Authenticator      *auth.AdminAuthenticator
	TokenIssuer        AdminTokenIssuer
	Realtime           *RealtimeDispatcher
	MetricsHandler     http.Handler
	XPLeaderboardSize  int
	CupLeaderboardSize int
	AllowedOrigins     []string
	Logger             *zap.Logger
}

// NewHTTPHandler builds the gin engine serving the dashboard API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Repository == nil {
		return nil, errMissingRepository
	}
	if deps.Authenticator == nil {
		return nil, errMissingAuthenticator
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	xpSize := deps.XPLeaderboardSize
	if xpSize <= 0 {
		xpSize = defaultXPLeaderboardSize
	}
	cupSize := deps.CupLeaderboardSize
	if cupSize <= 0 {
		cupSize = defaultCupLeaderboardSize
	}

	handler := &httpHandler{
		repository:    deps.Repository,
		syncer:        deps.Repository,
		authenticator: deps.Authenticator,
		tokens:        deps.TokenIssuer,
		realtime:      deps.Realtime,
		xpSize:        xpSize,
		cupSize:       cupSize,
		logger:        logger,
	}
	if deps.Realtime != nil {
		handler.syncer = NewSnapshotNotifier(deps.Repository, deps.Realtime)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	if deps.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	api := router.Group("/api")
	api.Use(handler.ensureLatestSnapshot)
	api.GET("/health", handler.handleHealth)
	api.GET("/xp", handler.handleChatXP)
	api.GET("/cups", handler.handleChatCups)
	api.GET("/leaderboard/xp/top", handler.handleXPTop)
	api.GET("/leaderboard/cups/top", handler.handleCupsTop)
	api.GET("/profile/:identifier", handler.handleProfile)
	api.POST("/auth/token", handler.handleIssueToken)

	admin := api.Group("/")
	admin.Use(handler.authorizeAdmin)
	admin.GET("/admins", handler.handleListAdmins)
	admin.POST("/admins", handler.handleCreateAdmin)
	admin.GET("/admins/:user_id", handler.handleGetAdmin)
	admin.DELETE("/admins/:user_id", handler.handleDeleteAdmin)
	admin.GET("/applications/pending", handler.handlePendingApplications)
	admin.GET("/applications/insights", handler.handleApplicationInsights)
	admin.GET("/applications/dashboard", handler.handleApplicationDashboard)
	admin.GET("/applications/:user_id", handler.handleApplicationDetail)
	if deps.Realtime != nil {
		admin.GET("/events", handler.handleEventStream)
	}

	return router, nil
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", auth.APIKeyHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

type snapshotSyncer interface {
	EnsureLatestSnapshot(ctx context.Context) error
}

type httpHandler struct {
	repository    Repository
	syncer        snapshotSyncer
	authenticator *auth.AdminAuthenticator
	tokens        AdminTokenIssuer
	realtime      *RealtimeDispatcher
	xpSize        int
	cupSize       int
	logger        *zap.Logger
}

// ensureLatestSnapshot picks up snapshot files replaced by the bot process before
// any handler reads the state.
func (h *httpHandler) ensureLatestSnapshot(c *gin.Context) {
	if err := h.syncer.EnsureLatestSnapshot(c.Request.Context()); err != nil {
		h.logger.Warn("snapshot sync failed", zap.Error(err))
	}
	c.Next()
}

func (h *httpHandler) authorizeAdmin(c *gin.Context) {
	subject, err := h.authenticator.ValidateRequest(c.Request)
	switch {
	case errors.Is(err, auth.ErrAdminAuthNotConfigured):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorPayload{Error: "admin_api_key_not_configured"})
		return
	case err != nil:
		h.logger.Info("admin authorization failed", zap.Error(err), zap.String("path", c.FullPath()))
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorPayload{Error: "unauthorized"})
		return
	}
	c.Set(adminSubjectContextKey, subject)
	c.Next()
}

func (h *httpHandler) handleIssueToken(c *gin.Context) {
	if h.tokens == nil {
		c.JSON(http.StatusServiceUnavailable, errorPayload{Error: "token_issuer_unavailable"})
		return
	}
	if err := h.authenticator.ValidateAPIKey(c.GetHeader(auth.APIKeyHeader)); err != nil {
		if errors.Is(err, auth.ErrAdminAuthNotConfigured) {
			c.JSON(http.StatusServiceUnavailable, errorPayload{Error: "admin_api_key_not_configured"})
			return
		}
		c.JSON(http.StatusUnauthorized, errorPayload{Error: "unauthorized"})
		return
	}

	token, expiresIn, err := h.tokens.IssueAdminToken(c.Request.Context(), auth.APIKeySubject)
	if err != nil {
		h.logger.Error("failed to issue admin token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorPayload{Error: "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, tokenResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	_, loaded := h.repository.Signature()
	c.JSON(http.StatusOK, healthPayload{
		Status:          "ok",
		StorageLoaded:   loaded,
		StorageReadOnly: !h.repository.PersistenceEnabled(),
	})
}

func (h *httpHandler) publishChange(reason string) {
	if h.realtime == nil {
		return
	}
	signature, ok := h.repository.Signature()
	h.realtime.Publish(snapshotMessage(RealtimeEventSnapshotChanged, reason, signature, ok))
}
