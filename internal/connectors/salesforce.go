package connectors

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// SalesforceConnector — HTTP-адаптер к Salesforce REST API.
// Реализует интерфейс Caller; ограничивается операцией salesforce.sync.
type SalesforceConnector struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewSalesforceConnector(baseURL, token string, timeout time.Duration) *SalesforceConnector {
	return &SalesforceConnector{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *SalesforceConnector) Call(ctx context.Context, op string, payload []byte) ([]byte, error) {
	if op != OpSalesforceSync {
		return nil, fmt.Errorf("operation %s not supported by salesforce connector", op)
	}

	// Защитный таймаут на уровне вызова.
	// Даже если ReliabilityWrapper имеет свой, адаптер должен иметь свой предел
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/services/data/crm/sync", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build salesforce request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("salesforce call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read salesforce response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		// Salesforce отдает Retry-After в секундах — пробрасываем в ReliabilityWrapper,
		// чтобы бэкофф ждал ровно столько, сколько попросил апстрим
		return nil, &ThrottleError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Cause:      fmt.Errorf("salesforce rate limit"),
		}
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("salesforce returned error [%d]: %s", resp.StatusCode, body)
	}

	return body, nil
}

func parseRetryAfter(header string) time.Duration {
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 5 * time.Second // Дефолт, если заголовка нет или он битый
}
