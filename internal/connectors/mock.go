package connectors

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// MockSystemsConnector эмулирует внешние системы в dev-режиме (пустые URL в конфиге).
type MockSystemsConnector struct{}

func NewMockSystemsConnector() *MockSystemsConnector {
	return &MockSystemsConnector{}
}

func (c *MockSystemsConnector) Call(ctx context.Context, op string, payload []byte) ([]byte, error) {
	// Имитируем задержку 50-300мс
	latency := time.Duration(50+rand.Intn(250)) * time.Millisecond

	select {
	case <-time.After(latency):
		// Имитация работы
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if op == "unstable.service" {
		return nil, fmt.Errorf("service internal error")
	}

	switch op {
	case OpSalesforceSync:
		return []byte(`{"status": "synced", "integration": "salesforce", "records": 42}`), nil

	case OpTemplateGenerate:
		return []byte(`{"subject": "Your weekly product digest", "html": "<h1>Hello!</h1><p>Generated preview.</p>"}`), nil

	default:
		return nil, fmt.Errorf("operation %s not supported by connector", op)
	}
}
