package service

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/crmflow-prototype/internal/domain"
)

func TestValidateSection_Instructions(t *testing.T) {
	require.NoError(t, validateSection(domain.SectionInstructions, json.RawMessage(`"be helpful"`)))

	err := validateSection(domain.SectionInstructions, json.RawMessage(`""`))
	var validation *domain.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "instructions", validation.Details[0].Path)

	// Не строка
	err = validateSection(domain.SectionInstructions, json.RawMessage(`{"text": "x"}`))
	require.ErrorAs(t, err, &validation)

	// Превышение лимита
	long := `"` + strings.Repeat("a", maxInstructionsLen+1) + `"`
	err = validateSection(domain.SectionInstructions, json.RawMessage(long))
	require.ErrorAs(t, err, &validation)
	assert.Contains(t, validation.Details[0].Message, "maximum length")
}

func TestValidateSection_RestrictionsMayBeEmpty(t *testing.T) {
	assert.NoError(t, validateSection(domain.SectionRestrictions, json.RawMessage(`""`)))
}

func TestValidateSection_Memory(t *testing.T) {
	require.NoError(t, validateSection(domain.SectionMemory, json.RawMessage(`{"context": "b2b"}`)))

	var validation *domain.ValidationError
	err := validateSection(domain.SectionMemory, json.RawMessage(`["not", "an", "object"]`))
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "memory", validation.Details[0].Path)
}

func TestValidateSection_ApprovalConfig(t *testing.T) {
	ok := json.RawMessage(`{"require_confirm": true, "timeout_seconds": 30}`)
	require.NoError(t, validateSection(domain.SectionApproval, ok))

	var validation *domain.ValidationError
	bad := json.RawMessage(`{"require_confirm": true, "timeout_seconds": -5}`)
	err := validateSection(domain.SectionApproval, bad)
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "approval_config.timeout_seconds", validation.Details[0].Path)
}

func TestValidateSection_TriggersFieldPaths(t *testing.T) {
	ok := json.RawMessage(`[{"event": "lead.created", "action": "notify"}]`)
	require.NoError(t, validateSection(domain.SectionTriggers, ok))

	var validation *domain.ValidationError
	bad := json.RawMessage(`[{"event": "lead.created", "action": "notify"}, {"event": "", "action": ""}]`)
	err := validateSection(domain.SectionTriggers, bad)
	require.ErrorAs(t, err, &validation)

	require.Len(t, validation.Details, 2)
	assert.Equal(t, "triggers[1].event", validation.Details[0].Path)
	assert.Equal(t, "triggers[1].action", validation.Details[1].Path)
}

func TestValidateSection_Unknown(t *testing.T) {
	err := validateSection(domain.Section("bogus"), json.RawMessage(`{}`))
	assert.ErrorIs(t, err, domain.ErrUnknownSection)
}
