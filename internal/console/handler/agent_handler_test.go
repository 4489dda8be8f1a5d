package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/crmflow-prototype/internal/domain"
	"github.com/xela07ax/crmflow-prototype/internal/infra/auth"
)

type fakeAgentService struct {
	saveErr   error
	statusErr error
	newToken  time.Time
}

func (f *fakeAgentService) GetAgent(ctx context.Context, workspaceID, agentID string) (*domain.Agent, error) {
	return &domain.Agent{ID: agentID, WorkspaceID: workspaceID, Name: "Bot", Status: domain.StatusDraft}, nil
}

func (f *fakeAgentService) ListAgents(ctx context.Context, workspaceID string) ([]*domain.Agent, error) {
	return []*domain.Agent{}, nil
}

func (f *fakeAgentService) CreateAgent(ctx context.Context, workspaceID, name, editorID string) (*domain.Agent, error) {
	return &domain.Agent{WorkspaceID: workspaceID, Name: name, Status: domain.StatusDraft}, nil
}

func (f *fakeAgentService) SaveSection(ctx context.Context, workspaceID, agentID string, sec domain.Section, value json.RawMessage, expected time.Time, editorID string) (time.Time, error) {
	if f.saveErr != nil {
		return time.Time{}, f.saveErr
	}
	return f.newToken, nil
}

func (f *fakeAgentService) ChangeStatus(ctx context.Context, workspaceID, agentID string, next domain.AgentStatus, expected time.Time, editorID string) (time.Time, error) {
	if f.statusErr != nil {
		return time.Time{}, f.statusErr
	}
	return f.newToken, nil
}

// testRouter собирает chi-роутер с нужными URL-параметрами и claims в контексте.
func testRouter(h *AgentHandler, claims *domain.CustomClaims) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(auth.WithClaims(req.Context(), claims)))
		})
	})
	r.Route("/workspaces/{workspaceID}/agents", func(r chi.Router) {
		r.Get("/", h.List)
		r.Route("/{agentID}", func(r chi.Router) {
			r.Patch("/sections/{section}", h.SaveSection)
			r.Post("/status", h.ChangeStatus)
		})
	})
	return r
}

func workspaceClaims(workspaceID string) *domain.CustomClaims {
	return &domain.CustomClaims{
		UserID: "user-1",
		Scopes: map[string]bool{domain.WorkspaceScope(workspaceID): true},
	}
}

func saveBody(t *testing.T) string {
	t.Helper()
	return `{"value": "be nice", "expected_updated_at": "2026-03-01T10:00:00Z"}`
}

func TestSaveSection_SuccessEnvelope(t *testing.T) {
	newToken := time.Date(2026, 3, 1, 10, 0, 1, 0, time.UTC)
	h := NewAgentHandler(&fakeAgentService{newToken: newToken})
	router := testRouter(h, workspaceClaims("ws-1"))

	req := httptest.NewRequest(http.MethodPatch,
		"/workspaces/ws-1/agents/a-1/sections/instructions", strings.NewReader(saveBody(t)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success   bool      `json:"success"`
		UpdatedAt time.Time `json:"updated_at"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.True(t, resp.UpdatedAt.Equal(newToken))
}

func TestSaveSection_ConflictEnvelope(t *testing.T) {
	staleAt := time.Date(2026, 3, 1, 9, 59, 0, 0, time.UTC)
	h := NewAgentHandler(&fakeAgentService{
		saveErr: &domain.ConflictError{UpdatedBy: "bob", UpdatedAt: staleAt},
	})
	router := testRouter(h, workspaceClaims("ws-1"))

	req := httptest.NewRequest(http.MethodPatch,
		"/workspaces/ws-1/agents/a-1/sections/instructions", strings.NewReader(saveBody(t)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)

	var resp struct {
		Success  bool                  `json:"success"`
		Conflict *domain.ConflictError `json:"conflict"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Conflict)
	assert.Equal(t, "bob", resp.Conflict.UpdatedBy)
	assert.True(t, resp.Conflict.UpdatedAt.Equal(staleAt))
}

func TestSaveSection_ValidationEnvelope(t *testing.T) {
	h := NewAgentHandler(&fakeAgentService{
		saveErr: &domain.ValidationError{Details: []domain.FieldError{
			{Path: "instructions", Message: "must not be empty"},
		}},
	})
	router := testRouter(h, workspaceClaims("ws-1"))

	req := httptest.NewRequest(http.MethodPatch,
		"/workspaces/ws-1/agents/a-1/sections/instructions", strings.NewReader(saveBody(t)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp struct {
		Success bool                `json:"success"`
		Error   string              `json:"error"`
		Details []domain.FieldError `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "validation failed", resp.Error)
	require.Len(t, resp.Details, 1)
	assert.Equal(t, "instructions", resp.Details[0].Path)
}

// Чужой workspace — 403 без обращения к сервису.
func TestSaveSection_ForeignWorkspaceForbidden(t *testing.T) {
	h := NewAgentHandler(&fakeAgentService{newToken: time.Now()})
	router := testRouter(h, workspaceClaims("ws-other"))

	req := httptest.NewRequest(http.MethodPatch,
		"/workspaces/ws-1/agents/a-1/sections/instructions", strings.NewReader(saveBody(t)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)

	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "permission denied", resp.Error)
}

func TestSaveSection_AdminScopeAllowed(t *testing.T) {
	h := NewAgentHandler(&fakeAgentService{newToken: time.Now()})
	admin := &domain.CustomClaims{UserID: "root", Scopes: map[string]bool{"admin": true}}
	router := testRouter(h, admin)

	req := httptest.NewRequest(http.MethodPatch,
		"/workspaces/any-ws/agents/a-1/sections/memory",
		strings.NewReader(`{"value": {"k": 1}, "expected_updated_at": "2026-03-01T10:00:00Z"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSaveSection_UnknownSection(t *testing.T) {
	h := NewAgentHandler(&fakeAgentService{newToken: time.Now()})
	router := testRouter(h, workspaceClaims("ws-1"))

	req := httptest.NewRequest(http.MethodPatch,
		"/workspaces/ws-1/agents/a-1/sections/bogus", strings.NewReader(saveBody(t)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChangeStatus_InvalidTransition(t *testing.T) {
	h := NewAgentHandler(&fakeAgentService{statusErr: domain.ErrInvalidTransition})
	router := testRouter(h, workspaceClaims("ws-1"))

	req := httptest.NewRequest(http.MethodPost,
		"/workspaces/ws-1/agents/a-1/status",
		strings.NewReader(`{"status": "paused", "expected_updated_at": "2026-03-01T10:00:00Z"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp struct {
		Details []domain.FieldError `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Details, 1)
	assert.Equal(t, "status", resp.Details[0].Path)
}

func TestListAgents_EmptyArrayNotNull(t *testing.T) {
	h := NewAgentHandler(&fakeAgentService{})
	router := testRouter(h, workspaceClaims("ws-1"))

	req := httptest.NewRequest(http.MethodGet, "/workspaces/ws-1/agents/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"agents":[]`)
}
