package wizard

/*
Пакет wizard реализует линейный мастер создания email-шаблона:

	type -> purpose -> details -> preview

Каждый шаг пускает дальше только при заполненных полях. Первый вход
в preview делает ровно один вызов генерации; каждый явный Regenerate —
ровно один дополнительный. Ошибка генерации остается внутри шага preview
и никогда не откатывает мастер назад.
*/

import (
	"context"
	"errors"
	"sync"

	"github.com/xela07ax/crmflow-prototype/internal/domain"
)

type Step string

const (
	StepType    Step = "type"
	StepPurpose Step = "purpose"
	StepDetails Step = "details"
	StepPreview Step = "preview"
)

var steps = []Step{StepType, StepPurpose, StepDetails, StepPreview}

var (
	// ErrStepIncomplete — Next вызван, а обязательные поля шага пусты.
	ErrStepIncomplete = errors.New("current step is incomplete")

	// ErrNoPreview — Regenerate вызван вне шага preview.
	ErrNoPreview = errors.New("regenerate is only available on the preview step")

	// ErrFirstStep — Back с первого шага невозможен.
	ErrFirstStep = errors.New("already on the first step")
)

// Generator — вызов AI-генерации. Реализуется типизированным клиентом консоли,
// генерация идет через тот же коннекторный стек, что и остальные вызовы.
type Generator interface {
	GenerateTemplate(ctx context.Context, workspaceID string, req domain.GenerateRequest) (*domain.GeneratedTemplate, error)
}

type Wizard struct {
	gen         Generator
	workspaceID string

	mu      sync.Mutex
	step    int // Индекс в steps
	req     domain.GenerateRequest
	preview *domain.GeneratedTemplate
	genErr  error
	entered bool // В preview уже входили: повторный вход не генерирует заново
}

func New(gen Generator, workspaceID string) *Wizard {
	return &Wizard{gen: gen, workspaceID: workspaceID}
}

func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return steps[w.step]
}

// Request возвращает накопленные поля (для отрисовки шагов).
func (w *Wizard) Request() domain.GenerateRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.req
}

// Preview возвращает результат генерации (nil до первого успешного вызова).
func (w *Wizard) Preview() *domain.GeneratedTemplate {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.preview
}

// Err возвращает ошибку последней генерации (состояние внутри preview).
func (w *Wizard) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.genErr
}

func (w *Wizard) SetType(t domain.TemplateType) {
	w.mu.Lock()
	w.req.Type = t
	w.mu.Unlock()
}

func (w *Wizard) SetPurpose(purpose, tone string) {
	w.mu.Lock()
	w.req.Purpose = purpose
	w.req.Tone = tone
	w.mu.Unlock()
}

func (w *Wizard) SetDetails(audience, details string) {
	w.mu.Lock()
	w.req.Audience = audience
	w.req.Details = details
	w.mu.Unlock()
}

// CanNext проверяет предикат полноты текущего шага.
func (w *Wizard) CanNext() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stepComplete()
}

func (w *Wizard) stepComplete() bool {
	switch steps[w.step] {
	case StepType:
		return w.req.Type.Valid()
	case StepPurpose:
		return w.req.Purpose != "" && w.req.Tone != ""
	case StepDetails:
		return w.req.Audience != ""
	}
	return false // С preview шага Next нет
}

// Next переходит на следующий шаг. Переход details -> preview при первом
// входе делает ровно один вызов генерации; неудача входа не откатывает шаг.
func (w *Wizard) Next(ctx context.Context) error {
	w.mu.Lock()
	if !w.stepComplete() {
		w.mu.Unlock()
		return ErrStepIncomplete
	}

	entering := steps[w.step+1] == StepPreview && !w.entered
	if entering {
		w.entered = true
	}
	w.step++
	req := w.req
	w.mu.Unlock()

	if !entering {
		return nil
	}
	return w.generate(ctx, req)
}

// Regenerate делает еще один вызов генерации (только на шаге preview).
func (w *Wizard) Regenerate(ctx context.Context) error {
	w.mu.Lock()
	if steps[w.step] != StepPreview {
		w.mu.Unlock()
		return ErrNoPreview
	}
	req := w.req
	w.mu.Unlock()

	return w.generate(ctx, req)
}

// Back возвращает на предыдущий шаг. Результат генерации не сбрасывается:
// вернувшийся в preview пользователь видит прошлый вариант без нового вызова.
func (w *Wizard) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.step == 0 {
		return ErrFirstStep
	}
	w.step--
	return nil
}

func (w *Wizard) generate(ctx context.Context, req domain.GenerateRequest) error {
	result, err := w.gen.GenerateTemplate(ctx, w.workspaceID, req)

	w.mu.Lock()
	defer w.mu.Unlock()

	if err != nil {
		w.genErr = err
		return err
	}
	w.preview = result
	w.genErr = nil
	return nil
}
