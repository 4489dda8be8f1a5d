package editor

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrOutOfOrder — попытка решить запрос не с головы очереди.
	// Подтверждения обрабатываются строго в порядке поступления.
	ErrOutOfOrder = errors.New("confirmation resolved out of order")

	ErrUnknownRequest = errors.New("unknown confirmation request")
)

// PendingRequest — элемент очереди на подтверждение, как его видит UI.
type PendingRequest struct {
	ID      string
	Section string
}

type pendingEntry struct {
	id      string
	section string
	done    chan bool // true = подтверждено, false = отклонено
}

// ConfirmGate — шлюз подтверждения сохранений live-агента.
//
// Каждый Request встает в FIFO-очередь со своим id и резолвером.
// Одновременные сохранения разных секций не затирают друг друга:
// каждый ждет ровно своего решения, решения идут строго по порядку.
// Состояния записи: closed -> awaiting-confirmation -> closed.
type ConfirmGate struct {
	mu    sync.Mutex
	queue []*pendingEntry
}

func NewConfirmGate() *ConfirmGate {
	return &ConfirmGate{}
}

// Request ставит запрос в очередь и блокируется до решения или отмены ctx.
// Возвращает true, если пользователь подтвердил сохранение.
func (g *ConfirmGate) Request(ctx context.Context, section string) (bool, error) {
	entry := &pendingEntry{
		id:      uuid.New().String(),
		section: section,
		done:    make(chan bool, 1),
	}

	g.mu.Lock()
	g.queue = append(g.queue, entry)
	g.mu.Unlock()

	select {
	case confirmed := <-entry.done:
		return confirmed, nil
	case <-ctx.Done():
		g.remove(entry.id)
		return false, ctx.Err()
	}
}

// Pending возвращает очередь в порядке поступления (для диалога подтверждения).
func (g *ConfirmGate) Pending() []PendingRequest {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]PendingRequest, 0, len(g.queue))
	for _, e := range g.queue {
		out = append(out, PendingRequest{ID: e.id, Section: e.section})
	}
	return out
}

// Resolve решает запрос с указанным id. Решать можно только голову очереди:
// это защищает от гонки, когда второй диалог "перепрыгивает" первый.
func (g *ConfirmGate) Resolve(id string, confirmed bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.queue) == 0 {
		return ErrUnknownRequest
	}

	head := g.queue[0]
	if head.id != id {
		for _, e := range g.queue[1:] {
			if e.id == id {
				return ErrOutOfOrder
			}
		}
		return ErrUnknownRequest
	}

	g.queue = g.queue[1:]
	head.done <- confirmed
	return nil
}

// remove убирает отмененный по контексту запрос, где бы он ни стоял.
func (g *ConfirmGate) remove(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, e := range g.queue {
		if e.id == id {
			g.queue = append(g.queue[:i], g.queue[i+1:]...)
			return
		}
	}
}
