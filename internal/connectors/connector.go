package connectors

import "context"

// Операции, которые умеют коннекторы.
const (
	OpSalesforceSync   = "salesforce.sync"
	OpTemplateGenerate = "template.generate"
)

// Caller — единый контракт исходящего вызова внешней системы.
// Реализуется коннекторами и оборачивается в ReliabilityWrapper (Retries/CB/Rate).
type Caller interface {
	Call(ctx context.Context, op string, payload []byte) ([]byte, error)
}
