package editor

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/crmflow-prototype/internal/domain"
	"github.com/xela07ax/crmflow-prototype/pkg/client"
)

// fakeAPI эмулирует консоль: хранит канонического агента и проверяет токен,
// как это делает условный UPDATE в Postgres.
type fakeAPI struct {
	mu        sync.Mutex
	agent     domain.Agent
	saveErr   error // Если задан, следующий Save вернет эту ошибку
	saveCalls int
	block     chan struct{} // Если задан, Save висит до закрытия канала
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		agent: domain.Agent{
			ID:           "agent-1",
			WorkspaceID:  "ws-1",
			Name:         "Onboarding bot",
			Status:       domain.StatusDraft,
			Instructions: "be helpful",
			Restrictions: "no spam",
			Memory:       json.RawMessage(`{}`),
			ApprovalConfig: json.RawMessage(
				`{"require_confirm": true, "timeout_seconds": 30}`),
			Triggers:  json.RawMessage(`[]`),
			UpdatedBy: "alice",
			UpdatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		},
	}
}

func (f *fakeAPI) GetAgent(ctx context.Context, workspaceID, agentID string) (*domain.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.agent
	return &a, nil
}

func (f *fakeAPI) SaveSection(ctx context.Context, workspaceID, agentID string, sec domain.Section, value json.RawMessage, expected time.Time) (time.Time, error) {
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++

	if f.saveErr != nil {
		return time.Time{}, f.saveErr
	}
	if !expected.Equal(f.agent.UpdatedAt) {
		return time.Time{}, &domain.ConflictError{UpdatedBy: "bob", UpdatedAt: f.agent.UpdatedAt}
	}

	if err := f.agent.ApplySection(sec, value); err != nil {
		return time.Time{}, err
	}
	f.agent.UpdatedAt = f.agent.UpdatedAt.Add(time.Second)
	return f.agent.UpdatedAt, nil
}

func (f *fakeAPI) ChangeStatus(ctx context.Context, workspaceID, agentID string, status domain.AgentStatus, expected time.Time) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !expected.Equal(f.agent.UpdatedAt) {
		return time.Time{}, &domain.ConflictError{UpdatedBy: "bob", UpdatedAt: f.agent.UpdatedAt}
	}
	f.agent.Status = status
	f.agent.UpdatedAt = f.agent.UpdatedAt.Add(time.Second)
	return f.agent.UpdatedAt, nil
}

func loadedController(t *testing.T, api *fakeAPI) *Controller {
	t.Helper()
	ctrl := NewController(api, "ws-1", "agent-1")
	require.NoError(t, ctrl.Load(context.Background()))
	return ctrl
}

// Последовательные сохранения РАЗНЫХ секций не конфликтуют: успех каждой
// продвигает общий токен, которым пользуются все редакторы.
func TestController_SequentialSectionSavesShareToken(t *testing.T) {
	api := newFakeAPI()
	ctrl := loadedController(t, api)

	t0 := ctrl.Token()

	instructions := ctrl.Editor(domain.SectionInstructions)
	instructions.SetValue(json.RawMessage(`"be very helpful"`))
	require.NoError(t, instructions.Save(context.Background()))

	t1 := ctrl.Token()
	assert.True(t, t1.After(t0), "token must advance after a successful save")

	restrictions := ctrl.Editor(domain.SectionRestrictions)
	restrictions.SetValue(json.RawMessage(`"no spam, no caps"`))
	require.NoError(t, restrictions.Save(context.Background()))

	assert.True(t, ctrl.Token().After(t1))
	assert.Nil(t, ctrl.ConflictPending())
	assert.Equal(t, 2, api.saveCalls)
}

// Конфликт: токен протух — окно поднимается один раз, черновик не трогается.
func TestController_ConflictRaisesSinglePrompt(t *testing.T) {
	api := newFakeAPI()
	ctrl := loadedController(t, api)

	var raised int
	ctrl.Subscribe(func(e Event) {
		if e.Type == EventConflictRaised {
			raised++
		}
	})

	// Кто-то другой успел обновить агента
	api.mu.Lock()
	api.agent.UpdatedAt = api.agent.UpdatedAt.Add(time.Minute)
	api.mu.Unlock()

	draft := json.RawMessage(`"my local edit"`)
	ed := ctrl.Editor(domain.SectionInstructions)
	ed.SetValue(draft)

	err := ed.Save(context.Background())
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "bob", conflict.UpdatedBy)

	require.NotNil(t, ctrl.ConflictPending())
	assert.Equal(t, draft, ed.Value(), "local draft must stay untouched on conflict")

	// Второй конфликт, пока окно открыто, не создает второго окна
	other := ctrl.Editor(domain.SectionMemory)
	other.SetValue(json.RawMessage(`{"k": "v"}`))
	require.Error(t, other.Save(context.Background()))

	assert.Equal(t, 1, raised)
}

func TestController_ResolveConflictReload(t *testing.T) {
	api := newFakeAPI()
	ctrl := loadedController(t, api)

	api.mu.Lock()
	api.agent.Instructions = "rewritten elsewhere"
	api.agent.UpdatedAt = api.agent.UpdatedAt.Add(time.Minute)
	remoteToken := api.agent.UpdatedAt
	api.mu.Unlock()

	ed := ctrl.Editor(domain.SectionInstructions)
	ed.SetValue(json.RawMessage(`"doomed local edit"`))
	require.Error(t, ed.Save(context.Background()))
	require.NotNil(t, ctrl.ConflictPending())

	// Reload: свежие данные, свежий токен, локальные правки отброшены
	require.NoError(t, ctrl.ResolveConflict(context.Background(), true))

	assert.Nil(t, ctrl.ConflictPending())
	assert.True(t, ctrl.Token().Equal(remoteToken))
	assert.Equal(t, json.RawMessage(`"rewritten elsewhere"`), ed.Value())

	// После перезагрузки сохранение проходит
	ed.SetValue(json.RawMessage(`"edit on fresh data"`))
	require.NoError(t, ed.Save(context.Background()))
}

func TestController_ResolveConflictCancelKeepsEdits(t *testing.T) {
	api := newFakeAPI()
	ctrl := loadedController(t, api)

	api.mu.Lock()
	api.agent.UpdatedAt = api.agent.UpdatedAt.Add(time.Minute)
	api.mu.Unlock()

	draft := json.RawMessage(`"stubborn local edit"`)
	ed := ctrl.Editor(domain.SectionInstructions)
	ed.SetValue(draft)
	require.Error(t, ed.Save(context.Background()))

	staleToken := ctrl.Token()
	require.NoError(t, ctrl.ResolveConflict(context.Background(), false))

	// Окно закрыто, правки на месте, токен все еще протухший
	assert.Nil(t, ctrl.ConflictPending())
	assert.Equal(t, draft, ed.Value())
	assert.True(t, ctrl.Token().Equal(staleToken))

	// Следующее сохранение снова упрется в конфликт
	require.Error(t, ed.Save(context.Background()))
	assert.NotNil(t, ctrl.ConflictPending())
}

// 403 — уведомление о правах, окно конфликта НЕ показывается.
func TestController_PermissionDeniedNoConflictPrompt(t *testing.T) {
	api := newFakeAPI()
	ctrl := loadedController(t, api)

	api.mu.Lock()
	api.saveErr = &client.PermissionError{Message: "permission denied"}
	api.mu.Unlock()

	ed := ctrl.Editor(domain.SectionInstructions)
	ed.SetValue(json.RawMessage(`"edit"`))

	err := ed.Save(context.Background())
	var permission *client.PermissionError
	require.ErrorAs(t, err, &permission)

	assert.Nil(t, ctrl.ConflictPending(), "permission failure must not raise the conflict prompt")
	assert.Equal(t, "permission denied", ed.Notice())
}

func TestController_ValidationNoticeFromDetails(t *testing.T) {
	api := newFakeAPI()
	ctrl := loadedController(t, api)

	api.mu.Lock()
	api.saveErr = &domain.ValidationError{Details: []domain.FieldError{
		{Path: "instructions", Message: "must not be empty"},
	}}
	api.mu.Unlock()

	ed := ctrl.Editor(domain.SectionInstructions)
	ed.SetValue(json.RawMessage(`""`))
	require.Error(t, ed.Save(context.Background()))

	assert.Equal(t, "instructions: must not be empty", ed.Notice())
	assert.Nil(t, ctrl.ConflictPending())
}

// Пока сохранение секции в полете, повторный Save той же секции отбивается.
func TestSectionEditor_InFlightGuard(t *testing.T) {
	api := newFakeAPI()
	api.block = make(chan struct{})
	ctrl := loadedController(t, api)

	ed := ctrl.Editor(domain.SectionInstructions)
	ed.SetValue(json.RawMessage(`"first"`))

	firstDone := make(chan error, 1)
	go func() { firstDone <- ed.Save(context.Background()) }()

	// Ждем, пока первый Save займет слот
	require.Eventually(t, func() bool {
		ed.mu.Lock()
		defer ed.mu.Unlock()
		return ed.saving
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, ed.Save(context.Background()), ErrSaveInFlight)

	close(api.block)
	require.NoError(t, <-firstDone)
	assert.Equal(t, 1, api.saveCalls)
}

// Сохранение live-агента проходит через шлюз подтверждения.
func TestSectionEditor_LiveAgentConfirmationGate(t *testing.T) {
	api := newFakeAPI()
	api.agent.Status = domain.StatusLive
	ctrl := loadedController(t, api)

	ed := ctrl.Editor(domain.SectionInstructions)
	ed.SetValue(json.RawMessage(`"careful live edit"`))

	done := make(chan error, 1)
	go func() { done <- ed.Save(context.Background()) }()

	pending := waitPending(t, ctrl.Gate(), 1)
	require.Len(t, pending, 1)
	assert.Equal(t, string(domain.SectionInstructions), pending[0].Section)
	assert.Equal(t, 0, api.saveCalls, "no API call before confirmation")

	require.NoError(t, ctrl.Gate().Resolve(pending[0].ID, true))
	require.NoError(t, <-done)
	assert.Equal(t, 1, api.saveCalls)
}

func TestSectionEditor_LiveAgentDeclinedSave(t *testing.T) {
	api := newFakeAPI()
	api.agent.Status = domain.StatusLive
	ctrl := loadedController(t, api)

	ed := ctrl.Editor(domain.SectionMemory)
	ed.SetValue(json.RawMessage(`{"note": "draft"}`))

	done := make(chan error, 1)
	go func() { done <- ed.Save(context.Background()) }()

	pending := waitPending(t, ctrl.Gate(), 1)
	require.NoError(t, ctrl.Gate().Resolve(pending[0].ID, false))

	assert.ErrorIs(t, <-done, ErrSaveDeclined)
	assert.Equal(t, 0, api.saveCalls, "declined save must not reach the API")
}

// Сквозной сценарий: загрузка (T0) -> инструкции (T1) -> ограничения (T2),
// оба сохранения успешны без единого конфликта.
func TestController_EndToEndTokenChain(t *testing.T) {
	api := newFakeAPI()
	ctrl := loadedController(t, api)

	tokens := []time.Time{ctrl.Token()}

	for _, step := range []struct {
		sec   domain.Section
		value string
	}{
		{domain.SectionInstructions, `"updated instructions"`},
		{domain.SectionRestrictions, `"updated restrictions"`},
	} {
		ed := ctrl.Editor(step.sec)
		ed.SetValue(json.RawMessage(step.value))
		require.NoError(t, ed.Save(context.Background()))
		tokens = append(tokens, ctrl.Token())
	}

	for i := 1; i < len(tokens); i++ {
		assert.True(t, tokens[i].After(tokens[i-1]), "token chain must be strictly increasing")
	}
	assert.Nil(t, ctrl.ConflictPending())
}
