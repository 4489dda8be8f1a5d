package editor

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/xela07ax/crmflow-prototype/internal/domain"
	"github.com/xela07ax/crmflow-prototype/pkg/client"
)

var (
	// ErrSaveInFlight — у секции уже идет сохранение. Повторный клик
	// не должен породить второй запрос с тем же токеном.
	ErrSaveInFlight = errors.New("save already in flight for this section")

	// ErrSaveDeclined — пользователь отклонил подтверждение для live-агента.
	ErrSaveDeclined = errors.New("save declined by confirmation gate")
)

// SectionEditor — независимый редактор одного слайса агента.
// Правит локальный черновик и сохраняет его через общий токен контроллера.
type SectionEditor struct {
	ctrl    *Controller
	section domain.Section

	mu     sync.Mutex
	value  json.RawMessage // Локальный черновик
	saving bool
	notice string // Последнее уведомление о правах или валидации
}

func (e *SectionEditor) Section() domain.Section {
	return e.section
}

// Value возвращает текущий локальный черновик.
func (e *SectionEditor) Value() json.RawMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

// SetValue правит локальный черновик (ввод пользователя).
func (e *SectionEditor) SetValue(v json.RawMessage) {
	e.mu.Lock()
	e.value = v
	e.mu.Unlock()
}

// Notice возвращает последнее уведомление (пустая строка — нет уведомления).
func (e *SectionEditor) Notice() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.notice
}

// reset перезаполняет редактор каноническим значением (Load или reload).
func (e *SectionEditor) reset(v json.RawMessage) {
	e.mu.Lock()
	e.value = v
	e.saving = false
	e.notice = ""
	e.mu.Unlock()
}

// Save сохраняет черновик секции.
//
// Для live-агента сохранение сначала проходит шлюз подтверждения (FIFO).
// Пока запрос в полете, повторный Save той же секции отбивается: иначе два
// запроса уйдут с одним токеном и второй гарантированно словит 409.
func (e *SectionEditor) Save(ctx context.Context) error {
	if e.ctrl.Status() == domain.StatusLive {
		confirmed, err := e.ctrl.gate.Request(ctx, string(e.section))
		if err != nil {
			return err
		}
		if !confirmed {
			return ErrSaveDeclined
		}
	}

	e.mu.Lock()
	if e.saving {
		e.mu.Unlock()
		return ErrSaveInFlight
	}
	e.saving = true
	value := e.value
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.saving = false
		e.mu.Unlock()
	}()

	newToken, err := e.ctrl.api.SaveSection(ctx,
		e.ctrl.workspaceID, e.ctrl.agentID, e.section, value, e.ctrl.Token())
	if err != nil {
		e.handleSaveError(err)
		return err
	}

	e.mu.Lock()
	e.notice = ""
	e.mu.Unlock()

	e.ctrl.advanceToken(e.section, value, newToken)
	return nil
}

// handleSaveError разводит исходы неудачного сохранения:
// конфликт — общее окно (черновик не трогаем), права — локальное
// уведомление БЕЗ окна конфликта, валидация — сообщение из деталей.
func (e *SectionEditor) handleSaveError(err error) {
	var conflict *domain.ConflictError
	var permission *client.PermissionError
	var validation *domain.ValidationError

	switch {
	case errors.As(err, &conflict):
		e.ctrl.raiseConflict(e.section, conflict)

	case errors.As(err, &permission):
		e.setNotice(permission.Error())
		e.ctrl.notify(Event{Type: EventPermissionNotice, Section: e.section, Message: permission.Error()})

	case errors.As(err, &validation):
		msg := composeValidationNotice(validation)
		e.setNotice(msg)
		e.ctrl.notify(Event{Type: EventValidationNotice, Section: e.section, Message: msg})
	}
}

func (e *SectionEditor) setNotice(msg string) {
	e.mu.Lock()
	e.notice = msg
	e.mu.Unlock()
}

// dispatchSaveError — тот же разбор для операций уровня контроллера (статус).
func (c *Controller) dispatchSaveError(sec domain.Section, err error) {
	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		c.raiseConflict(sec, conflict)
		return
	}

	var permission *client.PermissionError
	if errors.As(err, &permission) {
		c.notify(Event{Type: EventPermissionNotice, Section: sec, Message: permission.Error()})
	}
}

// composeValidationNotice собирает человекочитаемое сообщение из деталей 422.
func composeValidationNotice(v *domain.ValidationError) string {
	if len(v.Details) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(v.Details))
	for _, d := range v.Details {
		parts = append(parts, d.Path+": "+d.Message)
	}
	return strings.Join(parts, "; ")
}
