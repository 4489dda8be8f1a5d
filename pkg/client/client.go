package client

/*
Пакет client — типизированный адаптер к Console API.

Единственное место, где разбирается конверт ответов и коды ошибок.
Вызывающий код (редакторы секций, канбан, визард) работает с доменными
типами и errors.As, никогда не трогая HTTP и не дублируя fallback-цепочки
по легаси-формам ответа ("agent" против "data.agent").
*/

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/xela07ax/crmflow-prototype/internal/domain"
)

const defaultTimeout = 15 * time.Second

type Client struct {
	baseURL string
	hc      *http.Client

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

// WithHTTPClient подменяет транспорт (httptest, прокси, кастомные таймауты).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithToken задает bearer-токен заранее (минуя Login).
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login аутентифицируется и запоминает выданный токен для последующих вызовов.
func (c *Client) Login(ctx context.Context, username, password string) (*domain.TokenResponse, error) {
	body := domain.LoginRequest{Username: username, Password: password}

	req, err := c.newRequest(ctx, http.MethodPost, "/auth/token", body)
	if err != nil {
		return nil, err
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: login transport failure: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("client: login failed with status %d", resp.StatusCode)
	}

	var tok domain.TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, fmt.Errorf("client: malformed token response: %w", err)
	}

	c.mu.Lock()
	c.token = tok.AccessToken
	c.mu.Unlock()
	return &tok, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("client: failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("client: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do выполняет вызов и нормализует конверт. Возвращает сырые поля успешного
// ответа; ошибочные статусы превращаются в типизированные ошибки таксономии.
func (c *Client) do(ctx context.Context, method, path string, body interface{}) (map[string]json.RawMessage, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: transport failure: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("client: failed to read response: %w", err)
	}

	env := map[string]json.RawMessage{}
	if len(data) > 0 {
		// Конверт может быть и не-JSON (прокси, 502 от nginx) — тогда разбираем только статус
		_ = json.Unmarshal(data, &env)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized

	case resp.StatusCode == http.StatusForbidden:
		return nil, &PermissionError{Message: envString(env, "error")}

	case resp.StatusCode == http.StatusConflict:
		conflict := &domain.ConflictError{}
		if raw, ok := env["conflict"]; ok {
			_ = json.Unmarshal(raw, conflict)
		} else {
			// Легаси-форма: метаданные конфликта лежали в корне ответа
			_ = json.Unmarshal(data, conflict)
		}
		return nil, conflict

	case resp.StatusCode == http.StatusUnprocessableEntity:
		validation := &domain.ValidationError{}
		if raw, ok := env["details"]; ok {
			_ = json.Unmarshal(raw, &validation.Details)
		}
		return nil, validation

	case resp.StatusCode >= 400:
		msg := envString(env, "error")
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("client: api error [%d]: %s", resp.StatusCode, msg)
	}

	return env, nil
}

// extract достает типизированный payload из конверта.
// Терпим легаси-формы: {"agent": ...}, {"data": {"agent": ...}} и {"data": ...}.
func extract(env map[string]json.RawMessage, key string, dest interface{}) error {
	if raw, ok := env[key]; ok {
		return json.Unmarshal(raw, dest)
	}

	if raw, ok := env["data"]; ok {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(raw, &nested); err == nil {
			if inner, ok := nested[key]; ok {
				return json.Unmarshal(inner, dest)
			}
		}
		// Старый бэкенд мог положить объект прямо в data
		return json.Unmarshal(raw, dest)
	}

	return fmt.Errorf("client: response is missing %q payload", key)
}

func envString(env map[string]json.RawMessage, key string) string {
	var s string
	if raw, ok := env[key]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

// extractToken достает новый updated_at из ответа на сохранение.
func extractToken(env map[string]json.RawMessage) (time.Time, error) {
	var token time.Time
	if err := extract(env, "updated_at", &token); err != nil {
		return time.Time{}, err
	}
	if token.IsZero() {
		return time.Time{}, fmt.Errorf("client: response carries zero updated_at token")
	}
	return token, nil
}
