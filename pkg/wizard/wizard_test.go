package wizard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/crmflow-prototype/internal/domain"
)

type fakeGenerator struct {
	calls int
	err   error
}

func (f *fakeGenerator) GenerateTemplate(ctx context.Context, workspaceID string, req domain.GenerateRequest) (*domain.GeneratedTemplate, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &domain.GeneratedTemplate{
		Subject: "Subject " + string(req.Type),
		HTML:    "<p>variant</p>",
	}, nil
}

func completeWizard(gen Generator) *Wizard {
	w := New(gen, "ws-1")
	w.SetType(domain.TemplatePromo)
	w.SetPurpose("spring sale", "friendly")
	w.SetDetails("existing customers", "discount 20%")
	return w
}

func TestWizard_NextGatedPerStep(t *testing.T) {
	gen := &fakeGenerator{}
	w := New(gen, "ws-1")

	// Шаг type: без выбора типа дальше нельзя
	assert.False(t, w.CanNext())
	assert.ErrorIs(t, w.Next(context.Background()), ErrStepIncomplete)
	assert.Equal(t, StepType, w.Step())

	w.SetType(domain.TemplateNewsletter)
	require.NoError(t, w.Next(context.Background()))
	assert.Equal(t, StepPurpose, w.Step())

	// Шаг purpose: нужны и purpose, и tone
	w.SetPurpose("weekly digest", "")
	assert.False(t, w.CanNext())
	w.SetPurpose("weekly digest", "formal")
	require.NoError(t, w.Next(context.Background()))
	assert.Equal(t, StepDetails, w.Step())

	// Шаг details: нужна аудитория
	assert.ErrorIs(t, w.Next(context.Background()), ErrStepIncomplete)
	w.SetDetails("subscribers", "")
	require.NoError(t, w.Next(context.Background()))
	assert.Equal(t, StepPreview, w.Step())

	assert.Equal(t, 1, gen.calls, "entering preview fires exactly one generation")
}

func TestWizard_FirstPreviewEntryGeneratesOnce(t *testing.T) {
	gen := &fakeGenerator{}
	w := completeWizard(gen)

	require.NoError(t, w.Next(context.Background())) // -> purpose
	require.NoError(t, w.Next(context.Background())) // -> details
	require.NoError(t, w.Next(context.Background())) // -> preview, генерация

	require.Equal(t, 1, gen.calls)
	require.NotNil(t, w.Preview())

	// Back и повторный вход в preview не генерируют заново
	require.NoError(t, w.Back())
	assert.Equal(t, StepDetails, w.Step())
	require.NoError(t, w.Next(context.Background()))
	assert.Equal(t, StepPreview, w.Step())

	assert.Equal(t, 1, gen.calls, "re-entering preview must not regenerate")
}

func TestWizard_RegenerateFiresOnePerCall(t *testing.T) {
	gen := &fakeGenerator{}
	w := completeWizard(gen)

	require.NoError(t, w.Next(context.Background()))
	require.NoError(t, w.Next(context.Background()))
	require.NoError(t, w.Next(context.Background()))
	require.Equal(t, 1, gen.calls)

	require.NoError(t, w.Regenerate(context.Background()))
	require.NoError(t, w.Regenerate(context.Background()))
	assert.Equal(t, 3, gen.calls)
}

func TestWizard_RegenerateOnlyOnPreview(t *testing.T) {
	gen := &fakeGenerator{}
	w := completeWizard(gen)

	assert.ErrorIs(t, w.Regenerate(context.Background()), ErrNoPreview)
	assert.Zero(t, gen.calls)
}

// Ошибка генерации — состояние внутри preview, шаг не откатывается.
func TestWizard_GenerationFailureStaysInPreview(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("provider down")}
	w := completeWizard(gen)

	require.NoError(t, w.Next(context.Background()))
	require.NoError(t, w.Next(context.Background()))

	err := w.Next(context.Background())
	require.Error(t, err)

	assert.Equal(t, StepPreview, w.Step(), "failure must not kick the user back")
	assert.Error(t, w.Err())
	assert.Nil(t, w.Preview())

	// Провайдер ожил — Regenerate чинит состояние
	gen.err = nil
	require.NoError(t, w.Regenerate(context.Background()))
	assert.NoError(t, w.Err())
	assert.NotNil(t, w.Preview())
	assert.Equal(t, 2, gen.calls)
}

func TestWizard_BackFromFirstStep(t *testing.T) {
	w := New(&fakeGenerator{}, "ws-1")
	assert.ErrorIs(t, w.Back(), ErrFirstStep)
}
