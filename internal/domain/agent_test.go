package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgent_CanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to AgentStatus
		ok       bool
	}{
		{StatusDraft, StatusLive, true},
		{StatusDraft, StatusPaused, false}, // Паузить можно только живого
		{StatusLive, StatusPaused, true},
		{StatusLive, StatusDraft, true},
		{StatusPaused, StatusLive, true},
		{StatusPaused, StatusDraft, true},
		{StatusLive, StatusLive, false}, // Переход в себя запрещен
	}

	for _, tc := range cases {
		a := &Agent{Status: tc.from}
		err := a.CanTransitionTo(tc.to)
		if tc.ok {
			assert.NoError(t, err, "%s -> %s", tc.from, tc.to)
		} else {
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", tc.from, tc.to)
		}
	}
}

func TestAgent_SectionValueRoundTrip(t *testing.T) {
	a := &Agent{
		Instructions: "be helpful",
		Memory:       json.RawMessage(`{"context": "b2b"}`),
	}

	// Строковые секции оборачиваются в JSON-строку
	assert.Equal(t, json.RawMessage(`"be helpful"`), a.SectionValue(SectionInstructions))
	assert.Equal(t, json.RawMessage(`{"context": "b2b"}`), a.SectionValue(SectionMemory))

	require.NoError(t, a.ApplySection(SectionInstructions, json.RawMessage(`"be terse"`)))
	assert.Equal(t, "be terse", a.Instructions)

	require.NoError(t, a.ApplySection(SectionTriggers, json.RawMessage(`[{"event": "x"}]`)))
	assert.Equal(t, json.RawMessage(`[{"event": "x"}]`), a.Triggers)

	assert.ErrorIs(t, a.ApplySection(Section("bogus"), json.RawMessage(`{}`)), ErrUnknownSection)
}

func TestSection_Valid(t *testing.T) {
	for _, sec := range Sections {
		assert.True(t, sec.Valid())
	}
	assert.False(t, Section("bogus").Valid())
}

func TestCustomClaims_AllowsWorkspace(t *testing.T) {
	member := &CustomClaims{Scopes: map[string]bool{WorkspaceScope("ws-1"): true}}
	assert.True(t, member.AllowsWorkspace("ws-1"))
	assert.False(t, member.AllowsWorkspace("ws-2"))

	admin := &CustomClaims{Scopes: map[string]bool{"admin": true}}
	assert.True(t, admin.AllowsWorkspace("ws-1"))
	assert.True(t, admin.AllowsWorkspace("anything"))
}
