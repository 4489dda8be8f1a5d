package connectors

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GeneratorConnector — HTTP-адаптер к AI-провайдеру генерации шаблонов.
// Один вызов на шаг "preview" визарда; повторная генерация — новый вызов.
type GeneratorConnector struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewGeneratorConnector(baseURL, apiKey string, timeout time.Duration) *GeneratorConnector {
	return &GeneratorConnector{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *GeneratorConnector) Call(ctx context.Context, op string, payload []byte) ([]byte, error) {
	if op != OpTemplateGenerate {
		return nil, fmt.Errorf("operation %s not supported by generator connector", op)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/templates/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read generation response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &ThrottleError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Cause:      fmt.Errorf("generator rate limit"),
		}
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("generator returned error [%d]: %s", resp.StatusCode, body)
	}

	return body, nil
}
