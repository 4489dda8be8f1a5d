package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/crmflow-prototype/internal/domain"
)

func TestClient_SaveSectionReturnsNewToken(t *testing.T) {
	newToken := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/workspaces/ws-1/agents/a-1/sections/instructions", r.URL.Path)
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))

		var body struct {
			Value             json.RawMessage `json:"value"`
			ExpectedUpdatedAt time.Time       `json:"expected_updated_at"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, json.RawMessage(`"be nice"`), body.Value)
		assert.False(t, body.ExpectedUpdatedAt.IsZero())

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":    true,
			"updated_at": newToken,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, WithToken("token-123"))
	got, err := c.SaveSection(context.Background(), "ws-1", "a-1",
		domain.SectionInstructions, json.RawMessage(`"be nice"`), time.Now())

	require.NoError(t, err)
	assert.True(t, got.Equal(newToken))
}

func TestClient_ConflictEnvelope(t *testing.T) {
	updatedAt := time.Date(2026, 3, 1, 11, 30, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"conflict": map[string]interface{}{
				"updated_by": "bob",
				"updated_at": updatedAt,
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.SaveSection(context.Background(), "ws-1", "a-1",
		domain.SectionMemory, json.RawMessage(`{}`), time.Now())

	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "bob", conflict.UpdatedBy)
	assert.True(t, conflict.UpdatedAt.Equal(updatedAt))
}

// Легаси-форма 409: метаданные конфликта в корне ответа, без обертки.
func TestClient_ConflictLegacyShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"updated_by": "carol", "updated_at": "2026-03-01T09:00:00Z"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.SaveSection(context.Background(), "ws-1", "a-1",
		domain.SectionTriggers, json.RawMessage(`[]`), time.Now())

	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "carol", conflict.UpdatedBy)
}

func TestClient_ValidationEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{
			"success": false,
			"error": "validation failed",
			"details": [{"path": "instructions", "message": "must not be empty"}]
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.SaveSection(context.Background(), "ws-1", "a-1",
		domain.SectionInstructions, json.RawMessage(`""`), time.Now())

	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)
	require.Len(t, validation.Details, 1)
	assert.Equal(t, "instructions", validation.Details[0].Path)
}

func TestClient_PermissionAndUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/workspaces/ws-forbidden/agents":
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"success": false, "error": "permission denied"}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)

	_, err := c.ListAgents(context.Background(), "ws-forbidden")
	var permission *PermissionError
	require.ErrorAs(t, err, &permission)
	assert.Equal(t, "permission denied", permission.Error())

	_, err = c.GetAgent(context.Background(), "ws-1", "a-1")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

// Нормализация легаси-форм: {"agent": ...} и {"data": {"agent": ...}}
// дают один и тот же результат без fallback-цепочек у вызывающего.
func TestClient_LegacyDataEnvelope(t *testing.T) {
	agentJSON := `{"id": "a-1", "workspace_id": "ws-1", "name": "Bot", "status": "draft"}`

	cases := map[string]string{
		"flat":   `{"success": true, "agent": ` + agentJSON + `}`,
		"nested": `{"success": true, "data": {"agent": ` + agentJSON + `}}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(body))
			}))
			defer srv.Close()

			agent, err := New(srv.URL).GetAgent(context.Background(), "ws-1", "a-1")
			require.NoError(t, err)
			assert.Equal(t, "a-1", agent.ID)
			assert.Equal(t, domain.StatusDraft, agent.Status)
		})
	}
}

func TestClient_LoginStoresToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/token":
			json.NewEncoder(w).Encode(domain.TokenResponse{
				AccessToken: "fresh-token",
				TokenType:   "Bearer",
				ExpiresIn:   3600,
			})
		default:
			assert.Equal(t, "Bearer fresh-token", r.Header.Get("Authorization"))
			w.Write([]byte(`{"success": true, "agents": []}`))
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	tok, err := c.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", tok.AccessToken)

	agents, err := c.ListAgents(context.Background(), "ws-1")
	require.NoError(t, err)
	assert.Empty(t, agents)
}

func TestClient_LoginInvalidCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Login(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)
}
