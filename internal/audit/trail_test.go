package audit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStorage struct {
	mu      sync.Mutex
	batches [][]ChangeEvent
}

func (f *fakeStorage) WriteBatch(ctx context.Context, events []ChangeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := make([]ChangeEvent, len(events))
	copy(batch, events)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeStorage) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func TestTrail_FlushOnStop(t *testing.T) {
	storage := &fakeStorage{}
	trail := NewTrail(storage, 100, time.Hour, zap.NewNop()) // Таймер не успеет сработать
	trail.Start()

	for i := 0; i < 7; i++ {
		trail.Record(ChangeEvent{ID: fmt.Sprintf("e-%d", i), Action: ActionSectionSave})
	}
	trail.Stop()

	// Drain Pattern: все события дописаны финальным flush
	assert.Equal(t, 7, storage.total())
}

func TestTrail_BatchSizeTriggersFlush(t *testing.T) {
	storage := &fakeStorage{}
	trail := NewTrail(storage, 500, time.Hour, zap.NewNop())
	trail.Start()

	for i := 0; i < 250; i++ {
		trail.Record(ChangeEvent{ID: fmt.Sprintf("e-%d", i)})
	}

	require.Eventually(t, func() bool {
		return storage.total() >= 200
	}, time.Second, 10*time.Millisecond, "full batches must flush without waiting for the ticker")

	trail.Stop()
	assert.Equal(t, 250, storage.total())
}

func TestTrail_RecordAfterStopDropped(t *testing.T) {
	storage := &fakeStorage{}
	trail := NewTrail(storage, 10, time.Hour, zap.NewNop())
	trail.Start()
	trail.Stop()

	assert.NotPanics(t, func() {
		trail.Record(ChangeEvent{ID: "late"})
	})
	assert.Equal(t, 0, storage.total())
}

func TestTrail_TimestampDefaulted(t *testing.T) {
	storage := &fakeStorage{}
	trail := NewTrail(storage, 10, time.Hour, zap.NewNop())
	trail.Start()

	trail.Record(ChangeEvent{ID: "no-ts"})
	trail.Stop()

	require.Equal(t, 1, storage.total())
	assert.False(t, storage.batches[0][0].Timestamp.IsZero())
}
