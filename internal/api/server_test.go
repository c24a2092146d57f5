package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-openclaw-autoapply/internal/applier"
	"go-openclaw-autoapply/internal/database"
	"go-openclaw-autoapply/internal/ledger"
	"go-openclaw-autoapply/internal/models"
	"go-openclaw-autoapply/internal/risk"
)

const testSecret = "s3cret"

type fakeApplier struct {
	userID     string
	maxApplies int
	res        *applier.RunResult
	err        error
}

func (f *fakeApplier) Run(_ context.Context, userID string, maxApplies int) (*applier.RunResult, error) {
	f.userID, f.maxApplies = userID, maxApplies
	return f.res, f.err
}

func init() {
	gin.SetMode(gin.TestMode)
}

var apiNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestServer(a AutoApplier) (*Server, *database.Memory) {
	store := database.NewMemory()
	l := ledger.New(store, time.UTC, ledger.WithClock(func() time.Time { return apiNow }))
	return NewServer(a, risk.NewGuard(l), testSecret), store
}

func do(t *testing.T, h http.Handler, method, path, secret string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(secretHeader, secret)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthNeedsNoSecret(t *testing.T) {
	s, _ := newTestServer(&fakeApplier{})
	w := do(t, s.Router(), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestAgentRoutesRequireSecret(t *testing.T) {
	s, _ := newTestServer(&fakeApplier{})
	r := s.Router()

	for _, path := range []string{"/api/agents/auto-apply", "/api/agents/anti-ban"} {
		w := do(t, r, http.MethodPost, path, "", gin.H{"user_id": "u1"})
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)

		w = do(t, r, http.MethodPost, path, "wrong", gin.H{"user_id": "u1"})
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestEmptySecretLocksAgentRoutes(t *testing.T) {
	s, _ := newTestServer(&fakeApplier{})
	s.secret = ""
	w := do(t, s.Router(), http.MethodPost, "/api/agents/auto-apply", "", gin.H{"user_id": "u1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAutoApply(t *testing.T) {
	fa := &fakeApplier{res: &applier.RunResult{RunID: "run-1", UserID: "u1", Status: models.RunCompleted, Applied: 2}}
	s, _ := newTestServer(fa)

	w := do(t, s.Router(), http.MethodPost, "/api/agents/auto-apply", testSecret, gin.H{"user_id": "u1", "max_applies": 3})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", fa.userID)
	assert.Equal(t, 3, fa.maxApplies)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "run-1", body["run_id"])
	assert.Equal(t, "completed", body["status"])
}

func TestAutoApplyValidation(t *testing.T) {
	s, _ := newTestServer(&fakeApplier{})
	r := s.Router()

	w := do(t, r, http.MethodPost, "/api/agents/auto-apply", testSecret, gin.H{"max_applies": 3})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/agents/auto-apply", testSecret, gin.H{"user_id": "u1", "max_applies": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAutoApplyRunFailure(t *testing.T) {
	fa := &fakeApplier{
		res: &applier.RunResult{RunID: "run-2", UserID: "u1", Status: models.RunFailed, Reason: "select jobs: boom"},
		err: errors.New("select jobs: boom"),
	}
	s, _ := newTestServer(fa)

	w := do(t, s.Router(), http.MethodPost, "/api/agents/auto-apply", testSecret, gin.H{"user_id": "u1"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "run-2")
}

func TestAntiBan(t *testing.T) {
	s, store := newTestServer(&fakeApplier{})
	r := s.Router()

	req := gin.H{"user_id": "u1", "action_type": "apply", "context": gin.H{"platform": "linkedin"}}
	w := do(t, r, http.MethodPost, "/api/agents/anti-ban", testSecret, req)
	require.Equal(t, http.StatusOK, w.Code)

	var low antiBanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &low))
	assert.True(t, low.Proceed)
	assert.Equal(t, risk.Low, low.RiskLevel)

	store.SetPlatformCount(models.PlatformLinkedIn, apiNow.Format(ledger.DayKeyLayout), 1500)
	w = do(t, r, http.MethodPost, "/api/agents/anti-ban", testSecret, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"risk_level":"critical"`)
	assert.Contains(t, w.Body.String(), `"proceed":false`)
}

func TestAntiBanValidation(t *testing.T) {
	s, _ := newTestServer(&fakeApplier{})
	r := s.Router()

	w := do(t, r, http.MethodPost, "/api/agents/anti-ban", testSecret, gin.H{"action_type": "post", "context": gin.H{"platform": "linkedin"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPost, "/api/agents/anti-ban", testSecret, gin.H{"action_type": "apply"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
