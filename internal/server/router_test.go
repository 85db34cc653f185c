package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MarcoPoloResearchLab/guildkeeper/internal/auth"
	"github.com/MarcoPoloResearchLab/guildkeeper/internal/metrics"
	"github.com/MarcoPoloResearchLab/guildkeeper/internal/state"
	"github.com/MarcoPoloResearchLab/guildkeeper/internal/store"
	"github.com/MarcoPoloResearchLab/guildkeeper/internal/timestamps"
)

const testAPIKey = "test-admin-key"

type testServer struct {
	handler http.Handler
	store   *store.Store
	issuer  *auth.TokenIssuer
}

type testServerOptions struct {
	apiKey   string
	registry *prometheus.Registry
	realtime *RealtimeDispatcher
}

// steppingClock advances one second on every reading so stored timestamps are
// strictly ordered.
func steppingClock() *timestamps.Clock {
	var mu sync.Mutex
	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return timestamps.NewClock("UTC").WithNow(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	})
}

func newTestServer(t *testing.T, options testServerOptions) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var recorder metrics.Recorder = metrics.Noop{}
	var metricsHandler http.Handler
	if options.registry != nil {
		recorder = metrics.NewPrometheus(options.registry)
		metricsHandler = promhttp.HandlerFor(options.registry, promhttp.HandlerOpts{})
	}

	repository, err := store.New(store.Config{
		Path:    filepath.Join(t.TempDir(), "storage.json"),
		Clock:   steppingClock(),
		Metrics: recorder,
	})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	if err := repository.Load(context.Background()); err != nil {
		t.Fatalf("failed to load store: %v", err)
	}

	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "guildkeeper-dashboard",
		Audience:      "guildkeeper-admin",
		TokenTTL:      time.Minute,
	})
	if err != nil {
		t.Fatalf("failed to construct token issuer: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Repository:         repository,
		Authenticator:      auth.NewAdminAuthenticator(auth.AdminAuthenticatorConfig{APIKey: options.apiKey, Tokens: issuer}),
		TokenIssuer:        issuer,
		Realtime:           options.realtime,
		MetricsHandler:     metricsHandler,
		XPLeaderboardSize:  10,
		CupLeaderboardSize: 5,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return testServer{handler: handler, store: repository, issuer: issuer}
}

func (s testServer) do(t *testing.T, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var request *http.Request
	if body == "" {
		request = httptest.NewRequest(method, target, http.NoBody)
	} else {
		request = httptest.NewRequest(method, target, strings.NewReader(body))
		request.Header.Set("Content-Type", "application/json")
	}
	for name, value := range headers {
		request.Header.Set(name, value)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func (s testServer) admin(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, method, target, body, map[string]string{auth.APIKeyHeader: testAPIKey})
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var payload T
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func expectStatus(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Fatalf("expected status %d, got %d: %s", expected, recorder.Code, recorder.Body.String())
	}
}

func TestNewHTTPHandlerRequiresDependencies(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); err == nil {
		t.Fatalf("expected missing repository error")
	}
	repository, err := store.New(store.Config{Path: filepath.Join(t.TempDir(), "storage.json")})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	if _, err := NewHTTPHandler(Dependencies{Repository: repository}); err == nil {
		t.Fatalf("expected missing authenticator error")
	}
}

func TestHealthReportsStorageState(t *testing.T) {
	server := newTestServer(t, testServerOptions{apiKey: testAPIKey})

	recorder := server.do(t, http.MethodGet, "/api/health", "", nil)
	expectStatus(t, recorder, http.StatusOK)
	health := decodeBody[healthPayload](t, recorder)
	if health.Status != "ok" || health.StorageLoaded || health.StorageReadOnly {
		t.Fatalf("unexpected health for empty store: %+v", health)
	}

	if _, err := server.store.AddAdmin(context.Background(), 1, "", ""); err != nil {
		t.Fatalf("failed to add admin: %v", err)
	}
	health = decodeBody[healthPayload](t, server.do(t, http.MethodGet, "/api/health", "", nil))
	if !health.StorageLoaded {
		t.Fatalf("expected storage to be loaded after a flush: %+v", health)
	}

	server.store.DisablePersistence()
	health = decodeBody[healthPayload](t, server.do(t, http.MethodGet, "/api/health", "", nil))
	if !health.StorageReadOnly {
		t.Fatalf("expected read-only storage: %+v", health)
	}
}

func TestAdminRoutesRequireAPIKey(t *testing.T) {
	unconfigured := newTestServer(t, testServerOptions{})
	recorder := unconfigured.do(t, http.MethodGet, "/api/admins", "", map[string]string{auth.APIKeyHeader: "anything"})
	expectStatus(t, recorder, http.StatusServiceUnavailable)

	server := newTestServer(t, testServerOptions{apiKey: testAPIKey})
	expectStatus(t, server.do(t, http.MethodGet, "/api/admins", "", nil), http.StatusUnauthorized)
	expectStatus(t, server.do(t, http.MethodGet, "/api/admins", "", map[string]string{auth.APIKeyHeader: "wrong"}), http.StatusUnauthorized)
	expectStatus(t, server.admin(t, http.MethodGet, "/api/admins", ""), http.StatusOK)
}

func TestAdminLifecycle(t *testing.T) {
	server := newTestServer(t, testServerOptions{apiKey: testAPIKey})

	recorder := server.admin(t, http.MethodPost, "/api/admins", `{"user_id": 5, "username": "@mod"}`)
	expectStatus(t, recorder, http.StatusOK)
	if status := decodeBody[adminMutationPayload](t, recorder).Status; status != "created" {
		t.Fatalf("expected created, got %s", status)
	}

	expectStatus(t, server.admin(t, http.MethodPost, "/api/admins", `{"user_id": 5, "username": "mod"}`), http.StatusConflict)

	recorder = server.admin(t, http.MethodPost, "/api/admins", `{"user_id": 5, "full_name": "Moderator"}`)
	expectStatus(t, recorder, http.StatusOK)
	if status := decodeBody[adminMutationPayload](t, recorder).Status; status != "updated" {
		t.Fatalf("expected updated, got %s", status)
	}

	expectStatus(t, server.admin(t, http.MethodPost, "/api/admins", `{"user_id": 0}`), http.StatusBadRequest)
	expectStatus(t, server.admin(t, http.MethodPost, "/api/admins", `not json`), http.StatusBadRequest)

	list := decodeBody[adminListPayload](t, server.admin(t, http.MethodGet, "/api/admins", ""))
	if list.Total != 1 || list.Admins[0].UserID != 5 {
		t.Fatalf("unexpected admin list: %+v", list)
	}

	detail := decodeBody[adminDetailPayload](t, server.admin(t, http.MethodGet, "/api/admins/5", ""))
	if detail.Admin.Username == nil || *detail.Admin.Username != "mod" {
		t.Fatalf("unexpected username: %+v", detail.Admin)
	}
	if detail.Admin.FullName == nil || *detail.Admin.FullName != "Moderator" {
		t.Fatalf("unexpected full name: %+v", detail.Admin)
	}

	expectStatus(t, server.admin(t, http.MethodDelete, "/api/admins/5", ""), http.StatusNoContent)
	expectStatus(t, server.admin(t, http.MethodDelete, "/api/admins/5", ""), http.StatusNotFound)
	expectStatus(t, server.admin(t, http.MethodGet, "/api/admins/5", ""), http.StatusNotFound)
	expectStatus(t, server.admin(t, http.MethodGet, "/api/admins/abc", ""), http.StatusBadRequest)
}

func seedApplications(t *testing.T, repository *store.Store) {
	t.Helper()
	ctx := context.Background()
	applications := []store.NewApplication{
		{UserID: 1, FullName: "Zed", LanguageCode: "EN", Responses: []state.Response{{QuestionID: "q1", Question: "Why?", Answer: "hello world"}}},
		{UserID: 2, FullName: "Amy", LanguageCode: "fa"},
		{UserID: 3, Username: "bob"},
	}
	for _, application := range applications {
		added, err := repository.AddApplication(ctx, application)
		if err != nil || !added {
			t.Fatalf("failed to add application %d: %v", application.UserID, err)
		}
	}
}

func pendingIDs(t *testing.T, recorder *httptest.ResponseRecorder) (int, []int64) {
	t.Helper()
	expectStatus(t, recorder, http.StatusOK)
	payload := decodeBody[pendingApplicationsPayload](t, recorder)
	ids := make([]int64, 0, len(payload.Applications))
	for _, application := range payload.Applications {
		ids = append(ids, application.UserID)
	}
	return payload.Total, ids
}

func TestPendingApplicationsQuery(t *testing.T) {
	server := newTestServer(t, testServerOptions{apiKey: testAPIKey})
	seedApplications(t, server.store)

	testCases := []struct {
		name          string
		query         string
		expectedTotal int
		expectedIDs   []int64
	}{
		{name: "default recent", query: "", expectedTotal: 3, expectedIDs: []int64{3, 2, 1}},
		{name: "oldest", query: "?sort=oldest", expectedTotal: 3, expectedIDs: []int64{1, 2, 3}},
		{name: "name", query: "?sort=name", expectedTotal: 3, expectedIDs: []int64{2, 3, 1}},
		{name: "language", query: "?language=fa", expectedTotal: 1, expectedIDs: []int64{2}},
		{name: "unknown language", query: "?language=unknown&language=EN", expectedTotal: 2, expectedIDs: []int64{3, 1}},
		{name: "search answers", query: "?search=HELLO", expectedTotal: 1, expectedIDs: []int64{1}},
		{name: "paging", query: "?sort=oldest&limit=1&offset=1", expectedTotal: 3, expectedIDs: []int64{2}},
		{name: "offset past end", query: "?offset=10", expectedTotal: 3, expectedIDs: []int64{}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			total, ids := pendingIDs(t, server.admin(t, http.MethodGet, "/api/applications/pending"+testCase.query, ""))
			if total != testCase.expectedTotal {
				t.Fatalf("expected total %d, got %d", testCase.expectedTotal, total)
			}
			if len(ids) != len(testCase.expectedIDs) {
				t.Fatalf("expected ids %v, got %v", testCase.expectedIDs, ids)
			}
			for index := range ids {
				if ids[index] != testCase.expectedIDs[index] {
					t.Fatalf("expected ids %v, got %v", testCase.expectedIDs, ids)
				}
			}
		})
	}

	for _, query := range []string{"?sort=random", "?limit=0", "?limit=201", "?offset=-1", "?search=h"} {
		expectStatus(t, server.admin(t, http.MethodGet, "/api/applications/pending"+query, ""), http.StatusBadRequest)
	}
}

func TestApplicationDashboardAndInsights(t *testing.T) {
	server := newTestServer(t, testServerOptions{apiKey: testAPIKey})
	seedApplications(t, server.store)
	ctx := context.Background()
	if _, err := server.store.PopApplication(ctx, 3); err != nil {
		t.Fatalf("failed to pop application: %v", err)
	}
	if err := server.store.MarkApplicationStatus(ctx, 3, state.StatusApproved, "", ""); err != nil {
		t.Fatalf("failed to mark status: %v", err)
	}
	if err := server.store.MarkApplicationStatus(ctx, 4, state.StatusDenied, "spam", "de"); err != nil {
		t.Fatalf("failed to mark status: %v", err)
	}

	recorder := server.admin(t, http.MethodGet, "/api/applications/dashboard", "")
	expectStatus(t, recorder, http.StatusOK)
	dashboard := decodeBody[dashboardPayload](t, recorder)
	if dashboard.Total != 4 || dashboard.Pending != 2 {
		t.Fatalf("unexpected totals: %+v", dashboard)
	}
	if dashboard.Approved != 1 || dashboard.Denied != 1 || dashboard.Withdrawn != 0 {
		t.Fatalf("unexpected decision counts: %+v", dashboard)
	}
	if dashboard.ApprovalRate != 0.5 {
		t.Fatalf("expected approval rate 0.5, got %v", dashboard.ApprovalRate)
	}
	if dashboard.PendingByLanguage["en"] != 1 || dashboard.PendingByLanguage["fa"] != 1 {
		t.Fatalf("unexpected pending languages: %v", dashboard.PendingByLanguage)
	}
	if len(dashboard.RecentUpdates) == 0 || dashboard.RecentUpdates[0].UserID != 4 {
		t.Fatalf("expected newest update first: %+v", dashboard.RecentUpdates)
	}

	insights := decodeBody[insightsPayload](t, server.admin(t, http.MethodGet, "/api/applications/insights", ""))
	if insights.Total != 4 || insights.StatusCounts["pending"] != 2 {
		t.Fatalf("unexpected insights: %+v", insights)
	}
}

func TestApplicationDetail(t *testing.T) {
	server := newTestServer(t, testServerOptions{apiKey: testAPIKey})
	seedApplications(t, server.store)

	detail := decodeBody[applicationDetailPayload](t, server.admin(t, http.MethodGet, "/api/applications/1", ""))
	if detail.Application == nil || len(detail.Application.Responses) != 1 {
		t.Fatalf("expected application with responses: %+v", detail)
	}
	if detail.History == nil || detail.History.Status != "pending" {
		t.Fatalf("expected pending history: %+v", detail.History)
	}

	if _, err := server.store.WithdrawApplication(context.Background(), 2); err != nil {
		t.Fatalf("failed to withdraw: %v", err)
	}
	detail = decodeBody[applicationDetailPayload](t, server.admin(t, http.MethodGet, "/api/applications/2", ""))
	if detail.Application != nil || detail.History == nil || detail.History.Status != "withdrawn" {
		t.Fatalf("expected history-only detail: %+v", detail)
	}

	expectStatus(t, server.admin(t, http.MethodGet, "/api/applications/99", ""), http.StatusNotFound)
}

func TestChatLeaderboardAndCups(t *testing.T) {
	server := newTestServer(t, testServerOptions{apiKey: testAPIKey})
	ctx := context.Background()
	if _, err := server.store.AddXP(ctx, 100, 1, 30, state.XPIdentity{Username: "alice"}); err != nil {
		t.Fatalf("failed to add xp: %v", err)
	}
	if _, err := server.store.AddXP(ctx, 100, 2, 5, state.XPIdentity{}); err != nil {
		t.Fatalf("failed to add xp: %v", err)
	}
	if err := server.store.AddCup(ctx, 100, "Cup", "Desc", []string{"1", "2", "Carol"}); err != nil {
		t.Fatalf("failed to add cup: %v", err)
	}

	leaderboard := decodeBody[struct {
		ChatID      int64 `json:"chat_id"`
		Limit       int   `json:"limit"`
		Leaderboard []struct {
			UserID int64 `json:"user_id"`
			Score  int64 `json:"score"`
			Level  int   `json:"level"`
		} `json:"leaderboard"`
	}](t, server.do(t, http.MethodGet, "/api/xp?chat_id=100", "", nil))
	if leaderboard.ChatID != 100 || leaderboard.Limit != 10 || len(leaderboard.Leaderboard) != 2 {
		t.Fatalf("unexpected leaderboard: %+v", leaderboard)
	}
	if first := leaderboard.Leaderboard[0]; first.UserID != 1 || first.Score != 30 || first.Level != 2 {
		t.Fatalf("unexpected first row: %+v", first)
	}

	cups := decodeBody[cupHistoryPayload](t, server.do(t, http.MethodGet, "/api/cups?chat_id=100&limit=1", "", nil))
	if cups.Limit != 1 || len(cups.Cups) != 1 || cups.Cups[0].Title != "Cup" || len(cups.Cups[0].Podium) != 3 {
		t.Fatalf("unexpected cups: %+v", cups)
	}

	expectStatus(t, server.do(t, http.MethodGet, "/api/xp", "", nil), http.StatusBadRequest)
	expectStatus(t, server.do(t, http.MethodGet, "/api/cups?chat_id=100&limit=0", "", nil), http.StatusBadRequest)
}

func TestGlobalLeaderboards(t *testing.T) {
	server := newTestServer(t, testServerOptions{apiKey: testAPIKey})
	ctx := context.Background()
	if _, err := server.store.AddXP(ctx, 100, 1, 10, state.XPIdentity{Username: "alice", FullName: "Alice"}); err != nil {
		t.Fatalf("failed to add xp: %v", err)
	}
	if _, err := server.store.AddXP(ctx, 200, 1, 20, state.XPIdentity{}); err != nil {
		t.Fatalf("failed to add xp: %v", err)
	}
	if _, err := server.store.AddXP(ctx, 200, 2, 25, state.XPIdentity{}); err != nil {
		t.Fatalf("failed to add xp: %v", err)
	}
	for _, podium := range [][]string{{"2", "1"}, {"2"}} {
		if err := server.store.AddCup(ctx, 100, "Cup", "", podium); err != nil {
			t.Fatalf("failed to add cup: %v", err)
		}
	}

	xpTop := decodeBody[struct {
		Total       int `json:"total"`
		Leaderboard []struct {
			Rank     int     `json:"rank"`
			UserID   int64   `json:"user_id"`
			Username *string `json:"username"`
			XP       int64   `json:"xp"`
		} `json:"leaderboard"`
	}](t, server.do(t, http.MethodGet, "/api/leaderboard/xp/top?limit=5", "", nil))
	if xpTop.Total != 2 || xpTop.Leaderboard[0].UserID != 1 || xpTop.Leaderboard[0].XP != 30 {
		t.Fatalf("unexpected xp top: %+v", xpTop)
	}
	if xpTop.Leaderboard[0].Username == nil || *xpTop.Leaderboard[0].Username != "alice" {
		t.Fatalf("expected username from xp profile: %+v", xpTop.Leaderboard[0])
	}
	if xpTop.Leaderboard[1].Rank != 2 || xpTop.Leaderboard[1].Username != nil {
		t.Fatalf("unexpected second row: %+v", xpTop.Leaderboard[1])
	}

	cupsTop := decodeBody[struct {
		Total       int `json:"total"`
		Leaderboard []struct {
			UserID int64 `json:"user_id"`
			Cups   int   `json:"cups"`
		} `json:"leaderboard"`
	}](t, server.do(t, http.MethodGet, "/api/leaderboard/cups/top", "", nil))
	if cupsTop.Total != 2 || cupsTop.Leaderboard[0].UserID != 2 || cupsTop.Leaderboard[0].Cups != 2 {
		t.Fatalf("unexpected cups top: %+v", cupsTop)
	}

	expectStatus(t, server.do(t, http.MethodGet, "/api/leaderboard/xp/top?limit=101", "", nil), http.StatusBadRequest)
}

func TestProfileLookup(t *testing.T) {
	server := newTestServer(t, testServerOptions{apiKey: testAPIKey})
	if _, err := server.store.AddAdmin(context.Background(), 42, "@Alice", "Alice A"); err != nil {
		t.Fatalf("failed to add admin: %v", err)
	}

	profile := decodeBody[profilePayload](t, server.do(t, http.MethodGet, "/api/profile/alice", "", nil))
	if profile.UserID == nil || *profile.UserID != 42 || profile.FullName == nil || *profile.FullName != "Alice A" {
		t.Fatalf("unexpected profile: %+v", profile)
	}

	profile = decodeBody[profilePayload](t, server.do(t, http.MethodGet, "/api/profile/@ghost", "", nil))
	if profile.UserID != nil || profile.Username == nil || *profile.Username != "ghost" {
		t.Fatalf("unexpected unresolved profile: %+v", profile)
	}
}

func TestIssuedTokenAuthorizesAdminRoutes(t *testing.T) {
	server := newTestServer(t, testServerOptions{apiKey: testAPIKey})

	expectStatus(t, server.do(t, http.MethodPost, "/api/auth/token", "", nil), http.StatusUnauthorized)

	recorder := server.admin(t, http.MethodPost, "/api/auth/token", "")
	expectStatus(t, recorder, http.StatusOK)
	token := decodeBody[tokenResponsePayload](t, recorder)
	if token.TokenType != "Bearer" || token.ExpiresIn != 60 || token.AccessToken == "" {
		t.Fatalf("unexpected token payload: %+v", token)
	}

	recorder = server.do(t, http.MethodGet, "/api/admins", "", map[string]string{"Authorization": "Bearer " + token.AccessToken})
	expectStatus(t, recorder, http.StatusOK)
}

func TestRequestsPickUpExternalSnapshotChanges(t *testing.T) {
	server := newTestServer(t, testServerOptions{apiKey: testAPIKey})
	if _, err := server.store.AddAdmin(context.Background(), 1, "", ""); err != nil {
		t.Fatalf("failed to add admin: %v", err)
	}

	external := state.New()
	external.AddAdmin(1, "", "")
	external.AddAdmin(77, "botadmin", "")
	payload, err := state.Marshal(external)
	if err != nil {
		t.Fatalf("failed to encode snapshot: %v", err)
	}
	if err := os.WriteFile(server.store.Path(), payload, 0o644); err != nil {
		t.Fatalf("failed to write snapshot: %v", err)
	}

	list := decodeBody[adminListPayload](t, server.admin(t, http.MethodGet, "/api/admins", ""))
	if list.Total != 2 || list.Admins[1].UserID != 77 {
		t.Fatalf("expected reloaded admins, got %+v", list)
	}
}

func TestMetricsEndpointExposesStoreCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	server := newTestServer(t, testServerOptions{apiKey: testAPIKey, registry: registry})
	if _, err := server.store.AddAdmin(context.Background(), 1, "", ""); err != nil {
		t.Fatalf("failed to add admin: %v", err)
	}

	recorder := server.do(t, http.MethodGet, "/metrics", "", nil)
	expectStatus(t, recorder, http.StatusOK)
	if !strings.Contains(recorder.Body.String(), `guildkeeper_snapshot_saves_total{outcome="success"} 1`) {
		t.Fatalf("expected save counter in metrics output:\n%s", recorder.Body.String())
	}
}

func TestCORSMiddlewareAllowsAdminKeyHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(corsMiddleware(nil))
	router.OPTIONS("/api/admins", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	request := httptest.NewRequest(http.MethodOptions, "/api/admins", http.NoBody)
	request.Header.Set("Origin", "https://dashboard.example.com")
	request.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	request.Header.Set("Access-Control-Request-Headers", auth.APIKeyHeader)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, recorder.Code)
	}
	allowHeaders := recorder.Header().Get("Access-Control-Allow-Headers")
	if !strings.Contains(strings.ToLower(allowHeaders), strings.ToLower(auth.APIKeyHeader)) {
		t.Fatalf("expected Access-Control-Allow-Headers to include %s, got %q", auth.APIKeyHeader, allowHeaders)
	}
	if recorder.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("expected credentials to be enabled")
	}
}
