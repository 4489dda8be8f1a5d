package editor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmGate_RequestResolve(t *testing.T) {
	gate := NewConfirmGate()

	result := make(chan bool, 1)
	go func() {
		confirmed, err := gate.Request(context.Background(), "instructions")
		require.NoError(t, err)
		result <- confirmed
	}()

	pending := waitPending(t, gate, 1)
	require.NoError(t, gate.Resolve(pending[0].ID, true))

	select {
	case confirmed := <-result:
		assert.True(t, confirmed)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for confirmation")
	}

	assert.Empty(t, gate.Pending())
}

func TestConfirmGate_DeclineReachesWaiter(t *testing.T) {
	gate := NewConfirmGate()

	result := make(chan bool, 1)
	go func() {
		confirmed, err := gate.Request(context.Background(), "memory")
		require.NoError(t, err)
		result <- confirmed
	}()

	pending := waitPending(t, gate, 1)
	require.NoError(t, gate.Resolve(pending[0].ID, false))

	select {
	case confirmed := <-result:
		assert.False(t, confirmed)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for decline")
	}
}

// Два одновременных запроса не затирают друг друга: каждый ждет своего
// решения, решения строго в порядке поступления.
func TestConfirmGate_ConcurrentRequestsFIFO(t *testing.T) {
	gate := NewConfirmGate()

	firstDone := make(chan bool, 1)
	go func() {
		confirmed, _ := gate.Request(context.Background(), "instructions")
		firstDone <- confirmed
	}()
	waitPending(t, gate, 1)

	secondDone := make(chan bool, 1)
	go func() {
		confirmed, _ := gate.Request(context.Background(), "restrictions")
		secondDone <- confirmed
	}()

	pending := waitPending(t, gate, 2)
	require.Len(t, pending, 2)
	assert.Equal(t, "instructions", pending[0].Section)
	assert.Equal(t, "restrictions", pending[1].Section)

	// Решение не с головы очереди отклоняется
	err := gate.Resolve(pending[1].ID, true)
	assert.ErrorIs(t, err, ErrOutOfOrder)

	require.NoError(t, gate.Resolve(pending[0].ID, true))
	require.NoError(t, gate.Resolve(pending[1].ID, false))

	assert.True(t, <-firstDone)
	assert.False(t, <-secondDone)
}

func TestConfirmGate_ContextCancelRemovesEntry(t *testing.T) {
	gate := NewConfirmGate()

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		confirmed, err := gate.Request(ctx, "triggers")
		assert.False(t, confirmed)
		assert.ErrorIs(t, err, context.Canceled)
	}()

	waitPending(t, gate, 1)
	cancel()
	wg.Wait()

	assert.Empty(t, gate.Pending())
}

func TestConfirmGate_ResolveUnknown(t *testing.T) {
	gate := NewConfirmGate()
	assert.ErrorIs(t, gate.Resolve("missing", true), ErrUnknownRequest)
}

func waitPending(t *testing.T, gate *ConfirmGate, n int) []PendingRequest {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if pending := gate.Pending(); len(pending) >= n {
			return pending
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %d pending requests", n)
	return nil
}
