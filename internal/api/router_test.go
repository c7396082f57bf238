package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepquest/prepquest/internal/api"
	"github.com/prepquest/prepquest/internal/api/models"
	"github.com/prepquest/prepquest/internal/audience"
	"github.com/prepquest/prepquest/internal/auth"
	"github.com/prepquest/prepquest/internal/campaign"
	"github.com/prepquest/prepquest/internal/device"
	"github.com/prepquest/prepquest/internal/dispatch"
	"github.com/prepquest/prepquest/internal/notification"
	"github.com/prepquest/prepquest/internal/quest"
	"github.com/prepquest/prepquest/internal/rateguard"
	"github.com/prepquest/prepquest/internal/selection"
	"github.com/prepquest/prepquest/internal/user"
)

const testUserID = "usr_testuser123"

// testJWTService creates a JWT service for generating test tokens.
func testJWTService() *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{
		SigningKey: "test-secret-key-for-testing-only",
		Issuer:     "https://api.prepquest.app",
		Audience:   "prepquest-api",
	})
}

// testEnv bundles the router with the in-memory services behind it, so
// tests can seed state the HTTP surface cannot reach directly.
type testEnv struct {
	router   http.Handler
	gateway  *dispatch.Recorder
	registry *device.Registry
}

// newTestRouter wires a full router over in-memory stores with one seeded
// user. The returned gateway records every push dispatched through the
// admin endpoints.
func newTestRouter(t *testing.T) (http.Handler, *dispatch.Recorder) {
	t.Helper()
	env := newTestEnv(t)
	return env.router, env.gateway
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)

	users := user.NewService(user.NewInMemoryRepository(), logger)
	require.NoError(t, users.Upsert(context.Background(), &user.User{
		ID:          testUserID,
		DisplayName: "Deniz",
		ExamType:    "tyt",
		Locale:      "tr-TR",
	}))

	registry := device.NewRegistry(device.NewInMemoryRepository(), logger)
	guard := rateguard.NewGuard(rateguard.NewInMemoryRepository(), logger)

	questEngine := selection.NewEngine(selection.Config{
		Domain:    selection.DomainQuest,
		Templates: selection.MustLoad(selection.LoadQuestTemplates, logger),
		Logger:    logger,
	})
	quests := quest.NewService(quest.NewInMemoryRepository(), users, questEngine, logger)

	gateway := dispatch.NewRecorder()
	notifEngine := selection.NewEngine(selection.Config{
		Domain:    selection.DomainNotification,
		Templates: selection.MustLoad(selection.LoadNotificationTemplates, logger),
		Logger:    logger,
	})
	notifier := notification.NewService(
		notification.NewInMemoryRepository(),
		users,
		registry,
		quests,
		guard,
		gateway,
		notifEngine,
		logger,
	)
	orchestrator := campaign.NewOrchestrator(
		campaign.NewInMemoryRepository(),
		audience.NewResolver(users, logger),
		registry,
		gateway,
		logger,
	)

	router := api.NewRouter(api.RouterConfig{
		Version:             "test",
		BuildTime:           "2024-01-01T00:00:00Z",
		Logger:              logger,
		JWTService:          testJWTService(),
		UserService:         users,
		DeviceRegistry:      registry,
		QuestService:        quests,
		NotificationService: notifier,
		Orchestrator:        orchestrator,
		Guard:               guard,
	})
	return &testEnv{router: router, gateway: gateway, registry: registry}
}

// addAuthHeader adds a valid Bearer token to the request.
func addAuthHeader(t *testing.T, req *http.Request, admin bool) {
	t.Helper()
	token, _, err := testJWTService().GenerateAccessToken(testUserID, admin)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}, admin bool) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	addAuthHeader(t, req, admin)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRouter_HealthCheck(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var health models.Health
	err := json.Unmarshal(w.Body.Bytes(), &health)
	require.NoError(t, err)

	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.NotEmpty(t, health.Time)
}

func TestRouter_ReadinessCheck(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/ready", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var health models.Health
	err := json.Unmarshal(w.Body.Bytes(), &health)
	require.NoError(t, err)

	assert.Equal(t, models.HealthStatusOK, health.Status)
}

func TestRouter_MeRequiresAuth(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/me/quests", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
}

func TestRouter_RegisterDevice(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/me/devices", models.RegisterDeviceRequest{
		Token:    "abc123token456xyz789",
		Platform: "ios",
	}, false)

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp models.DeviceResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "ios", resp.Platform)
}

func TestRouter_RegisterDevice_InvalidPlatform(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/me/devices", models.RegisterDeviceRequest{
		Token:    "abc123token456xyz789",
		Platform: "blackberry",
	}, false)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var problem models.Problem
	err := json.Unmarshal(w.Body.Bytes(), &problem)
	require.NoError(t, err)

	assert.Equal(t, models.ProblemTypeValidation, problem.Type)
	assert.NotEmpty(t, problem.TraceID)
}

func TestRouter_RegisterDevice_CapExhausted(t *testing.T) {
	env := newTestEnv(t)

	// Fill the cap through the registry; the per-user mutation budget on
	// the HTTP surface is tighter than the cap itself.
	for i := 0; i < device.MaxActiveDevices; i++ {
		_, err := env.registry.Register(context.Background(), testUserID, fmt.Sprintf("cap-token-%02d", i), device.PlatformIOS, nil, "")
		require.NoError(t, err)
	}

	w := doJSON(t, env.router, http.MethodPost, "/v1/me/devices", models.RegisterDeviceRequest{
		Token:    "cap-token-overflow",
		Platform: "ios",
	}, false)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var problem models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	assert.Equal(t, models.ProblemTypeTooManyRequests, problem.Type)
}

func TestRouter_UnregisterDevice(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/me/devices", models.RegisterDeviceRequest{
		Token:    "abc123token456xyz789",
		Platform: "android",
	}, false)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/v1/me/devices", models.UnregisterDeviceRequest{
		Token: "abc123token456xyz789",
	}, false)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Unregistering a token that was never registered is a no-op.
	w = doJSON(t, router, http.MethodDelete, "/v1/me/devices", models.UnregisterDeviceRequest{
		Token: "never-registered-token",
	}, false)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRouter_ListQuests_AssignsDailySet(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/me/quests", http.NoBody)
	addAuthHeader(t, req, false)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.QuestListResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)

	require.NotEmpty(t, resp.Quests)
	for _, q := range resp.Quests {
		assert.NotEmpty(t, q.ID)
		assert.NotEmpty(t, q.Title)
		assert.Positive(t, q.Goal)
		assert.False(t, q.Completed)
	}
}

func TestRouter_RefreshQuests_Idempotent(t *testing.T) {
	router, _ := newTestRouter(t)

	first := doJSON(t, router, http.MethodPost, "/v1/me/quests:refresh", nil, false)
	require.Equal(t, http.StatusOK, first.Code)
	var a models.QuestListResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))

	second := doJSON(t, router, http.MethodPost, "/v1/me/quests:refresh", nil, false)
	require.Equal(t, http.StatusOK, second.Code)
	var b models.QuestListResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))

	require.Equal(t, len(a.Quests), len(b.Quests))
	for i := range a.Quests {
		assert.Equal(t, a.Quests[i].ID, b.Quests[i].ID)
	}
}

func TestRouter_ReportProgress(t *testing.T) {
	router, _ := newTestRouter(t)

	// Assign the daily set first.
	w := doJSON(t, router, http.MethodGet, "/v1/me/quests", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var before models.QuestListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &before))
	require.NotEmpty(t, before.Quests)

	w = doJSON(t, router, http.MethodPost, "/v1/me/progress", models.ProgressRequest{
		Category: before.Quests[0].Category,
		Amount:   5,
	}, false)
	assert.Equal(t, http.StatusOK, w.Code)

	// The response carries the updated instances for the category;
	// progress is clamped at each quest's goal.
	var after models.QuestListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &after))
	require.NotEmpty(t, after.Quests)
	for _, q := range after.Quests {
		assert.Equal(t, before.Quests[0].Category, q.Category)
		assert.Positive(t, q.Progress)
	}
}

func TestRouter_ReportProgress_InvalidAmount(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/me/progress", models.ProgressRequest{
		Category: "practice",
		Amount:   0,
	}, false)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_ClaimBeforeComplete_Conflicts(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/v1/me/quests", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.QuestListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Quests)

	w = doJSON(t, router, http.MethodPost, "/v1/me/quests/"+resp.Quests[0].ID+":claim", nil, false)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRouter_CompleteThenClaim(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/v1/me/quests", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.QuestListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Quests)
	questID := resp.Quests[0].ID

	// Completion requires the goal to be met.
	w = doJSON(t, router, http.MethodPost, "/v1/me/quests/"+questID+":complete", nil, false)
	require.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, router, http.MethodPost, "/v1/me/progress", models.ProgressRequest{
		Category: resp.Quests[0].Category,
		Amount:   resp.Quests[0].Goal,
	}, false)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/v1/me/quests/"+questID+":complete", nil, false)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/v1/me/quests/"+questID+":claim", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)

	var claimed models.QuestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &claimed))
	assert.True(t, claimed.RewardClaimed)

	// Second claim conflicts.
	w = doJSON(t, router, http.MethodPost, "/v1/me/quests/"+questID+":claim", nil, false)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRouter_CompleteUnknownQuest(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/me/quests/qst_missing:complete", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_DeleteAccount_PurgesOwnedData(t *testing.T) {
	router, _ := newTestRouter(t)

	// Give the account some owned rows first.
	w := doJSON(t, router, http.MethodPost, "/v1/me/devices", models.RegisterDeviceRequest{
		Token:    "token-abc-123",
		Platform: "ios",
	}, false)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodGet, "/v1/me/quests", nil, false)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/v1/me", nil, false)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Profile is gone, so quest access now misses.
	w = doJSON(t, router, http.MethodGet, "/v1/me/quests", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Repeating the purge is a no-op, not an error.
	w = doJSON(t, router, http.MethodDelete, "/v1/me", nil, false)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRouter_AdminRequiresAdminClaim(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/admin/push", models.SendPushRequest{
		Title:    "Hello",
		Body:     "World",
		Audience: audience.Spec{Type: audience.TypeAll},
		SendType: "push",
	}, false)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_AdminEstimateAudience(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/admin/audience:estimate", models.EstimateAudienceRequest{
		Audience: audience.Spec{Type: audience.TypeAll},
	}, true)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.EstimateAudienceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Matched)
}

func TestRouter_AdminPush_Immediate(t *testing.T) {
	router, gateway := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/me/devices", models.RegisterDeviceRequest{
		Token:    "abc123token456xyz789",
		Platform: "ios",
	}, false)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodPost, "/v1/admin/push", models.SendPushRequest{
		Title:    "New mock exam",
		Body:     "A fresh TYT mock exam is live.",
		Route:    "/exams",
		Audience: audience.Spec{Type: audience.TypeAll},
		SendType: "push",
	}, true)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, w.Header().Get("Location"))

	var resp models.CampaignResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, string(campaign.StatusCompleted), resp.Status)
	assert.Equal(t, 1, resp.TargetCount)
	assert.Equal(t, 1, resp.SuccessCount)
	require.Len(t, gateway.Sent(), 1)
	assert.Equal(t, "New mock exam", gateway.Sent()[0].Title)
}

func TestRouter_AdminPush_PerAdminBudget(t *testing.T) {
	router, _ := newTestRouter(t)

	send := models.SendPushRequest{
		Title:    "Budget",
		Body:     "Check",
		Audience: audience.Spec{Type: audience.TypeAll},
		SendType: "push",
	}

	for i := 0; i < 10; i++ {
		w := doJSON(t, router, http.MethodPost, "/v1/admin/push", send, true)
		require.Equal(t, http.StatusCreated, w.Code, "send %d should be within budget", i+1)
	}

	w := doJSON(t, router, http.MethodPost, "/v1/admin/push", send, true)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var problem models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	assert.Equal(t, models.ProblemTypeTooManyRequests, problem.Type)
}

func TestRouter_AdminPush_InvalidCampaign(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/admin/push", models.SendPushRequest{
		Body:     "missing title",
		Audience: audience.Spec{Type: audience.TypeAll},
		SendType: "push",
	}, true)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_AdminGetCampaign(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/admin/push", models.SendPushRequest{
		Title:    "Hello",
		Body:     "World",
		Audience: audience.Spec{Type: audience.TypeAll},
		SendType: "inapp",
	}, true)
	require.Equal(t, http.StatusCreated, w.Code)

	var created models.CampaignResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = doJSON(t, router, http.MethodGet, "/v1/admin/campaigns/"+created.ID, nil, true)
	assert.Equal(t, http.StatusOK, w.Code)

	var fetched models.CampaignResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	assert.Equal(t, created.ID, fetched.ID)

	w = doJSON(t, router, http.MethodGet, "/v1/admin/campaigns/cmp_missing", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_RequestID_Generated(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	requestID := w.Header().Get("X-Request-Id")
	assert.NotEmpty(t, requestID)
	assert.Contains(t, requestID, "req_")
}

func TestRouter_RequestID_Preserved(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	req.Header.Set("X-Request-Id", "custom_request_id")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, "custom_request_id", w.Header().Get("X-Request-Id"))
}

func TestRouter_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/nonexistent", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
