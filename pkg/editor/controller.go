package editor

/*
Пакет editor координирует независимые редакторы секций одного агента.

Ключевой инвариант: все редакторы разделяют ОДИН токен expected_updated_at.
Успешное сохранение любой секции продвигает общий токен, поэтому
последовательные сохранения разных секций не конфликтуют друг с другом.
Конфликт поднимается только когда агента успел поменять кто-то другой.
*/

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/xela07ax/crmflow-prototype/internal/domain"
)

// SaveAPI — то, что контроллеру нужно от типизированного клиента консоли.
type SaveAPI interface {
	GetAgent(ctx context.Context, workspaceID, agentID string) (*domain.Agent, error)
	SaveSection(ctx context.Context, workspaceID, agentID string, sec domain.Section, value json.RawMessage, expected time.Time) (time.Time, error)
	ChangeStatus(ctx context.Context, workspaceID, agentID string, status domain.AgentStatus, expected time.Time) (time.Time, error)
}

// EventType перечисляет наблюдаемые переходы состояния контроллера.
type EventType string

const (
	EventTokenAdvanced    EventType = "token_advanced"
	EventConflictRaised   EventType = "conflict_raised"
	EventConflictResolved EventType = "conflict_resolved"
	EventPermissionNotice EventType = "permission_notice"
	EventValidationNotice EventType = "validation_notice"
	EventReloaded         EventType = "reloaded"
)

type Event struct {
	Type    EventType
	Section domain.Section
	Message string
}

// Controller — явный контейнер наблюдаемого состояния редактирования агента:
// канонический агент, общий токен, статус и единое окно конфликта.
type Controller struct {
	api         SaveAPI
	workspaceID string
	agentID     string
	gate        *ConfirmGate

	mu        sync.Mutex
	agent     *domain.Agent
	token     time.Time
	conflict  *domain.ConflictError
	editors   map[domain.Section]*SectionEditor
	observers []func(Event)
}

func NewController(api SaveAPI, workspaceID, agentID string) *Controller {
	return &Controller{
		api:         api,
		workspaceID: workspaceID,
		agentID:     agentID,
		gate:        NewConfirmGate(),
		editors:     make(map[domain.Section]*SectionEditor),
	}
}

// Load загружает агента и инициализирует редакторы всех секций.
func (c *Controller) Load(ctx context.Context) error {
	agent, err := c.api.GetAgent(ctx, c.workspaceID, c.agentID)
	if err != nil {
		return fmt.Errorf("editor: failed to load agent: %w", err)
	}

	c.mu.Lock()
	c.agent = agent
	c.token = agent.UpdatedAt
	for _, sec := range domain.Sections {
		ed, ok := c.editors[sec]
		if !ok {
			ed = &SectionEditor{ctrl: c, section: sec}
			c.editors[sec] = ed
		}
		ed.reset(agent.SectionValue(sec))
	}
	c.mu.Unlock()

	c.notify(Event{Type: EventReloaded})
	return nil
}

// Editor возвращает редактор секции. До Load редакторов не существует.
func (c *Controller) Editor(sec domain.Section) *SectionEditor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editors[sec]
}

// Gate отдает шлюз подтверждений (UI слушает Pending и зовет Resolve).
func (c *Controller) Gate() *ConfirmGate {
	return c.gate
}

// Subscribe регистрирует наблюдателя переходов состояния.
func (c *Controller) Subscribe(fn func(Event)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// Token возвращает текущий общий токен оптимистичной блокировки.
func (c *Controller) Token() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Status возвращает текущий статус агента (live-агенты требуют подтверждения).
func (c *Controller) Status() domain.AgentStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.agent == nil {
		return ""
	}
	return c.agent.Status
}

// ConflictPending возвращает активный конфликт (nil — окно не показано).
func (c *Controller) ConflictPending() *domain.ConflictError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conflict
}

// ChangeStatus переключает статус агента через общий токен.
func (c *Controller) ChangeStatus(ctx context.Context, next domain.AgentStatus) error {
	newToken, err := c.api.ChangeStatus(ctx, c.workspaceID, c.agentID, next, c.Token())
	if err != nil {
		c.dispatchSaveError("", err)
		return err
	}

	c.mu.Lock()
	c.token = newToken
	if c.agent != nil {
		c.agent.Status = next
		c.agent.UpdatedAt = newToken
	}
	c.mu.Unlock()

	c.notify(Event{Type: EventTokenAdvanced})
	return nil
}

// ResolveConflict закрывает окно конфликта.
// reload=true: перечитать агента, заменить токен, перезаполнить ВСЕ редакторы
// (локальные правки отбрасываются). reload=false: закрыть окно, правки остаются,
// следующее сохранение снова упрется в конфликт. Слияния нет намеренно.
func (c *Controller) ResolveConflict(ctx context.Context, reload bool) error {
	c.mu.Lock()
	if c.conflict == nil {
		c.mu.Unlock()
		return nil
	}
	c.conflict = nil
	c.mu.Unlock()

	if !reload {
		c.notify(Event{Type: EventConflictResolved})
		return nil
	}

	if err := c.Load(ctx); err != nil {
		return err
	}
	c.notify(Event{Type: EventConflictResolved})
	return nil
}

// advanceToken продвигает общий токен после успешного сохранения секции.
func (c *Controller) advanceToken(sec domain.Section, value json.RawMessage, newToken time.Time) {
	c.mu.Lock()
	c.token = newToken
	if c.agent != nil {
		_ = c.agent.ApplySection(sec, value)
		c.agent.UpdatedAt = newToken
	}
	c.mu.Unlock()

	c.notify(Event{Type: EventTokenAdvanced, Section: sec})
}

// raiseConflict показывает единое окно конфликта. Повторные конфликты,
// прилетевшие пока окно открыто, не создают второго окна.
func (c *Controller) raiseConflict(sec domain.Section, conflict *domain.ConflictError) {
	c.mu.Lock()
	already := c.conflict != nil
	if !already {
		c.conflict = conflict
	}
	c.mu.Unlock()

	if !already {
		c.notify(Event{
			Type:    EventConflictRaised,
			Section: sec,
			Message: fmt.Sprintf("updated by %s", conflict.UpdatedBy),
		})
	}
}

func (c *Controller) notify(e Event) {
	c.mu.Lock()
	observers := make([]func(Event), len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	for _, fn := range observers {
		fn(e)
	}
}
