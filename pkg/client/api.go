package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/xela07ax/crmflow-prototype/internal/audit"
	"github.com/xela07ax/crmflow-prototype/internal/domain"
)

// --- Агенты ---

func (c *Client) ListAgents(ctx context.Context, workspaceID string) ([]*domain.Agent, error) {
	env, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/workspaces/%s/agents", workspaceID), nil)
	if err != nil {
		return nil, err
	}
	var agents []*domain.Agent
	if err := extract(env, "agents", &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

func (c *Client) GetAgent(ctx context.Context, workspaceID, agentID string) (*domain.Agent, error) {
	env, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/workspaces/%s/agents/%s", workspaceID, agentID), nil)
	if err != nil {
		return nil, err
	}
	var agent domain.Agent
	if err := extract(env, "agent", &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (c *Client) CreateAgent(ctx context.Context, workspaceID, name string) (*domain.Agent, error) {
	body := map[string]string{"name": name}
	env, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/workspaces/%s/agents", workspaceID), body)
	if err != nil {
		return nil, err
	}
	var agent domain.Agent
	if err := extract(env, "agent", &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

// SaveSection сохраняет один слайс агента. Успех возвращает новый токен
// updated_at, которым вызывающая сторона обязана заменить общий токен
// ВСЕХ редакторов секций этого агента.
func (c *Client) SaveSection(ctx context.Context, workspaceID, agentID string, sec domain.Section, value json.RawMessage, expected time.Time) (time.Time, error) {
	body := map[string]interface{}{
		"value":               value,
		"expected_updated_at": expected,
	}
	env, err := c.do(ctx, http.MethodPatch,
		fmt.Sprintf("/workspaces/%s/agents/%s/sections/%s", workspaceID, agentID, sec), body)
	if err != nil {
		return time.Time{}, err
	}
	return extractToken(env)
}

// ChangeStatus переводит агента между draft/live/paused по тому же токену.
func (c *Client) ChangeStatus(ctx context.Context, workspaceID, agentID string, status domain.AgentStatus, expected time.Time) (time.Time, error) {
	body := map[string]interface{}{
		"status":              status,
		"expected_updated_at": expected,
	}
	env, err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("/workspaces/%s/agents/%s/status", workspaceID, agentID), body)
	if err != nil {
		return time.Time{}, err
	}
	return extractToken(env)
}

// --- Воронки и сделки ---

func (c *Client) ListPipelines(ctx context.Context, workspaceID string) ([]*domain.Pipeline, error) {
	env, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/workspaces/%s/pipelines", workspaceID), nil)
	if err != nil {
		return nil, err
	}
	var pipelines []*domain.Pipeline
	if err := extract(env, "pipelines", &pipelines); err != nil {
		return nil, err
	}
	return pipelines, nil
}

func (c *Client) CreatePipeline(ctx context.Context, workspaceID, name string, stages []domain.Stage) (*domain.Pipeline, error) {
	body := map[string]interface{}{"name": name, "stages": stages}
	env, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/workspaces/%s/pipelines", workspaceID), body)
	if err != nil {
		return nil, err
	}
	var pipeline domain.Pipeline
	if err := extract(env, "pipeline", &pipeline); err != nil {
		return nil, err
	}
	return &pipeline, nil
}

func (c *Client) ListOpportunities(ctx context.Context, workspaceID, pipelineID string) ([]*domain.Opportunity, error) {
	env, err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("/workspaces/%s/pipelines/%s/opportunities", workspaceID, pipelineID), nil)
	if err != nil {
		return nil, err
	}
	var opps []*domain.Opportunity
	if err := extract(env, "opportunities", &opps); err != nil {
		return nil, err
	}
	return opps, nil
}

func (c *Client) CreateOpportunity(ctx context.Context, o *domain.Opportunity) (*domain.Opportunity, error) {
	body := map[string]interface{}{
		"stage_id":   o.StageID,
		"title":      o.Title,
		"amount":     o.Amount,
		"contact_id": o.ContactID,
	}
	env, err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("/workspaces/%s/pipelines/%s/opportunities", o.WorkspaceID, o.PipelineID), body)
	if err != nil {
		return nil, err
	}
	var created domain.Opportunity
	if err := extract(env, "opportunity", &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateOpportunity двигает сделку по стадиям с тем же протоколом expected_updated_at.
func (c *Client) UpdateOpportunity(ctx context.Context, workspaceID, pipelineID, id, stageID, title string, amount float64, expected time.Time) (time.Time, error) {
	body := map[string]interface{}{
		"stage_id":            stageID,
		"title":               title,
		"amount":              amount,
		"expected_updated_at": expected,
	}
	env, err := c.do(ctx, http.MethodPatch,
		fmt.Sprintf("/workspaces/%s/pipelines/%s/opportunities/%s", workspaceID, pipelineID, id), body)
	if err != nil {
		return time.Time{}, err
	}
	return extractToken(env)
}

// --- Шаблоны ---

func (c *Client) ListTemplates(ctx context.Context, workspaceID string) ([]*domain.Template, error) {
	env, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/workspaces/%s/templates", workspaceID), nil)
	if err != nil {
		return nil, err
	}
	var templates []*domain.Template
	if err := extract(env, "templates", &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

func (c *Client) CreateTemplate(ctx context.Context, t *domain.Template) (*domain.Template, error) {
	env, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/workspaces/%s/templates", t.WorkspaceID), t)
	if err != nil {
		return nil, err
	}
	var created domain.Template
	if err := extract(env, "template", &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// GenerateTemplate — один вызов AI-провайдера для предпросмотра.
// Визард зовет его ровно один раз на первый вход в preview и по разу
// на каждый явный Regenerate.
func (c *Client) GenerateTemplate(ctx context.Context, workspaceID string, req domain.GenerateRequest) (*domain.GeneratedTemplate, error) {
	env, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/workspaces/%s/templates/generate", workspaceID), req)
	if err != nil {
		return nil, err
	}
	var generated domain.GeneratedTemplate
	if err := extract(env, "generated", &generated); err != nil {
		return nil, err
	}
	return &generated, nil
}

// --- Синхронизация ---

func (c *Client) TriggerSync(ctx context.Context, workspaceID string) (*domain.SyncRun, error) {
	env, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/workspaces/%s/sync/salesforce", workspaceID), nil)
	if err != nil {
		return nil, err
	}
	var run domain.SyncRun
	if err := extract(env, "run", &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (c *Client) LastSyncRun(ctx context.Context, workspaceID string) (*domain.SyncRun, error) {
	env, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/workspaces/%s/sync/salesforce", workspaceID), nil)
	if err != nil {
		return nil, err
	}
	var run domain.SyncRun
	if err := extract(env, "run", &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// --- Журнал изменений ---

func (c *Client) GetChanges(ctx context.Context, workspaceID, entityType, entityID string) ([]audit.ChangeEvent, error) {
	q := url.Values{}
	if entityType != "" {
		q.Set("entity_type", entityType)
	}
	if entityID != "" {
		q.Set("entity_id", entityID)
	}

	path := fmt.Sprintf("/workspaces/%s/audit", workspaceID)
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}

	env, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var changes []audit.ChangeEvent
	if err := extract(env, "changes", &changes); err != nil {
		return nil, err
	}
	return changes, nil
}
