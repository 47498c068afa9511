// Package client is a small Go client for the agentd REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"AgentTodo/internal/delegate"
	"AgentTodo/internal/todo"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with agentd.
type Client struct {
	baseURL     *url.URL
	httpClient  *http.Client
	accessToken string
}

// PlanResult is the response of CreatePlan.
type PlanResult struct {
	Plan  *todo.WorkPlan `json:"plan"`
	Todos []*todo.Todo   `json:"todos"`
}

// TodoUpdate carries the optional fields of a todo patch.
type TodoUpdate struct {
	Status   *todo.Status `json:"status,omitempty"`
	Progress *int         `json:"progress,omitempty"`
}

// APIError represents an error payload returned by agentd.
type APIError struct {
	StatusCode int               `json:"-"`
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("agentd api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("agentd api error (%d): %s", e.StatusCode, e.Message)
}

// New instantiates a client for the agentd API. When httpClient is nil a
// default client with DefaultHTTPTimeout is used.
func New(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url: %q", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SetAccessToken sets the bearer token sent with every request.
func (c *Client) SetAccessToken(token string) {
	c.accessToken = strings.TrimSpace(token)
}

// CreatePlan plans goal for agentID. A non-empty server also executes the todos.
func (c *Client) CreatePlan(ctx context.Context, agentID, goal, server string) (*PlanResult, error) {
	payload := map[string]string{"agent_id": agentID, "goal": goal}
	if server != "" {
		payload["server"] = server
	}
	var out PlanResult
	if err := c.send(ctx, http.MethodPost, "/api/v1/plans", nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPlan fetches a plan by id.
func (c *Client) GetPlan(ctx context.Context, planID string) (*todo.WorkPlan, error) {
	var plan todo.WorkPlan
	if err := c.send(ctx, http.MethodGet, "/api/v1/plans/"+url.PathEscape(planID), nil, nil, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// AgentTodos lists the todos of an agent in insertion order. Extra query
// parameters (status, tag, min_priority, limit, offset, sort) are passed through.
func (c *Client) AgentTodos(ctx context.Context, agentID string, query url.Values) ([]*todo.Todo, error) {
	var todos []*todo.Todo
	endpoint := "/api/v1/agents/" + url.PathEscape(agentID) + "/todos"
	if err := c.send(ctx, http.MethodGet, endpoint, query, nil, &todos); err != nil {
		return nil, err
	}
	return todos, nil
}

// AgentStats returns aggregate counters for an agent.
func (c *Client) AgentStats(ctx context.Context, agentID string) (todo.Stats, error) {
	var stats todo.Stats
	endpoint := "/api/v1/agents/" + url.PathEscape(agentID) + "/stats"
	if err := c.send(ctx, http.MethodGet, endpoint, nil, nil, &stats); err != nil {
		return todo.Stats{}, err
	}
	return stats, nil
}

// UpdateTodo patches the status and/or progress of a todo.
func (c *Client) UpdateTodo(ctx context.Context, todoID string, update TodoUpdate) error {
	return c.send(ctx, http.MethodPatch, "/api/v1/todos/"+url.PathEscape(todoID), nil, update, nil)
}

// Delegate forwards payload to a configured server through agentd.
func (c *Client) Delegate(ctx context.Context, server string, payload any) (*delegate.Result, error) {
	var result delegate.Result
	if err := c.send(ctx, http.MethodPost, "/api/v1/delegate/"+url.PathEscape(server), nil, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// WaitForPlan polls until the plan is completed or failed.
func (c *Client) WaitForPlan(ctx context.Context, planID string, interval time.Duration) (*todo.WorkPlan, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		plan, err := c.GetPlan(ctx, planID)
		if err != nil {
			return nil, err
		}
		if plan.Status == todo.PlanCompleted || plan.Status == todo.PlanFailed {
			return plan, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) send(ctx context.Context, method, endpoint string, query url.Values, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	target := strings.TrimRight(c.baseURL.String(), "/") + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}
