package jarvis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// Request statuses reported by the orchestrator.
const (
	StatusPending              = "pending"
	StatusRunning              = "running"
	StatusAwaitingConfirmation = "awaiting_confirmation"
	StatusSucceeded            = "succeeded"
	StatusDenied               = "denied"
	StatusNoPlan               = "no_plan"
	StatusFailed               = "failed"
)

// Client wraps the HTTP interactions with the Jarvis orchestrator REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Intent is a classified user request.
type Intent struct {
	Name       string         `json:"intent"`
	Confidence float64        `json:"confidence"`
	Entities   map[string]any `json:"entities,omitempty"`
	Text       string         `json:"text,omitempty"`
	Agent      string         `json:"agent,omitempty"`
}

// Conditions carries the runtime context evaluated by the policy engine.
type Conditions struct {
	Hour           *int     `json:"time_hour,omitempty"`
	Battery        *float64 `json:"battery,omitempty"`
	UserConfidence *float64 `json:"user_confidence,omitempty"`
	UserConfirmed  bool     `json:"user_confirmed,omitempty"`
	AgentRisk      string   `json:"agent_risk,omitempty"`
	PreferAgent    string   `json:"prefer_agent,omitempty"`
}

// Submission is the payload used to enqueue a new request. Mode is either
// "plan" (default) or "delegate".
type Submission struct {
	ID         string     `json:"id,omitempty"`
	Mode       string     `json:"mode,omitempty"`
	Intent     Intent     `json:"intent"`
	Conditions Conditions `json:"conditions"`
}

// Task is one planned action.
type Task struct {
	Agent  string         `json:"agent"`
	Action string         `json:"action"`
	Args   map[string]any `json:"args"`
	Risk   string         `json:"agent_risk"`
}

// Decision is the routing verdict attached to a request.
type Decision struct {
	Kind         string `json:"kind"`
	Reason       string `json:"reason,omitempty"`
	Tasks        []Task `json:"tasks,omitempty"`
	Confirmation *struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	} `json:"confirmation,omitempty"`
}

// TaskResult is the execution outcome of one task.
type TaskResult struct {
	Success bool           `json:"success"`
	Result  map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
	Reason  string         `json:"reason,omitempty"`
}

// Outcome is the result of a delegated request.
type Outcome struct {
	OK      bool           `json:"ok"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Confirmation is the answer recorded for an awaiting request.
type Confirmation struct {
	Approve       bool `json:"approve"`
	RememberHours int  `json:"remember_hours"`
}

// Request is the server side view of a submitted request.
type Request struct {
	ID           string        `json:"id"`
	Mode         string        `json:"mode"`
	Intent       Intent        `json:"intent"`
	Conditions   Conditions    `json:"conditions"`
	Status       string        `json:"status"`
	Decision     *Decision     `json:"decision,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	Results      []TaskResult  `json:"results,omitempty"`
	Outcome      *Outcome      `json:"outcome,omitempty"`
	Confirmation *Confirmation `json:"confirmation,omitempty"`
	Error        string        `json:"error,omitempty"`
	ErrorCode    string        `json:"error_code,omitempty"`
	CreatedAt    int64         `json:"created_at"`
	UpdatedAt    int64         `json:"updated_at"`
}

// Settled reports whether the request reached a terminal status or is
// waiting for a confirmation answer.
func (r Request) Settled() bool {
	switch r.Status {
	case StatusSucceeded, StatusDenied, StatusNoPlan, StatusFailed:
		return true
	case StatusAwaitingConfirmation:
		return r.Confirmation == nil
	default:
		return false
	}
}

// ListOptions filters ListIntents.
type ListOptions struct {
	Statuses  []string
	Mode      string
	Limit     int
	Offset    int
	Ascending bool
}

// Event is one entry of the append-only event log.
type Event struct {
	ID        string         `json:"id"`
	Timestamp float64        `json:"timestamp"`
	Version   string         `json:"version"`
	Event     map[string]any `json:"event"`
}

// Grant is an active approval.
type Grant struct {
	Key    string    `json:"key"`
	Expiry time.Time `json:"expiry"`
}

// Agent describes a registered provider.
type Agent struct {
	Name         string   `json:"name"`
	Priority     int      `json:"priority"`
	Risk         string   `json:"risk"`
	Capabilities []string `json:"capabilities"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("jarvis api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("jarvis api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the orchestrator API. When httpClient
// is nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SubmitIntent enqueues a request and returns its pending record.
func (c *Client) SubmitIntent(ctx context.Context, sub Submission) (Request, error) {
	var out Request
	if err := c.send(ctx, http.MethodPost, "/api/v1/intents", nil, sub, &out); err != nil {
		return Request{}, err
	}
	return out, nil
}

// GetIntent fetches a request by identifier.
func (c *Client) GetIntent(ctx context.Context, id string) (Request, error) {
	var out Request
	if err := c.send(ctx, http.MethodGet, "/api/v1/intents/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return Request{}, err
	}
	return out, nil
}

// ListIntents returns the most recently updated requests.
func (c *Client) ListIntents(ctx context.Context, opts ListOptions) ([]Request, error) {
	query := url.Values{}
	if len(opts.Statuses) > 0 {
		query.Set("status", strings.Join(opts.Statuses, ","))
	}
	if opts.Mode != "" {
		query.Set("mode", opts.Mode)
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		query.Set("offset", strconv.Itoa(opts.Offset))
	}
	if opts.Ascending {
		query.Set("order", "asc")
	}
	var out struct {
		Requests []Request `json:"requests"`
	}
	if err := c.send(ctx, http.MethodGet, "/api/v1/intents", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Requests, nil
}

// Stats is the status breakdown of the requests matching a filter.
type Stats struct {
	Total                int   `json:"total"`
	Pending              int   `json:"pending"`
	Running              int   `json:"running"`
	AwaitingConfirmation int   `json:"awaiting_confirmation"`
	Succeeded            int   `json:"succeeded"`
	Denied               int   `json:"denied"`
	NoPlan               int   `json:"no_plan"`
	Failed               int   `json:"failed"`
	OldestUpdatedAt      int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt      int64 `json:"newest_updated_at,omitempty"`
}

// Stats counts requests by status. Only the status and mode filters of opts
// apply.
func (c *Client) Stats(ctx context.Context, opts ListOptions) (Stats, error) {
	query := url.Values{}
	if len(opts.Statuses) > 0 {
		query.Set("status", strings.Join(opts.Statuses, ","))
	}
	if opts.Mode != "" {
		query.Set("mode", opts.Mode)
	}
	var out Stats
	if err := c.send(ctx, http.MethodGet, "/api/v1/intents/stats", query, nil, &out); err != nil {
		return Stats{}, err
	}
	return out, nil
}

// Confirm answers a request awaiting confirmation. A positive rememberHours
// also grants a time-bounded approval for the confirmed actions.
func (c *Client) Confirm(ctx context.Context, id string, approve bool, rememberHours int) (Request, error) {
	var out Request
	body := Confirmation{Approve: approve, RememberHours: rememberHours}
	if err := c.send(ctx, http.MethodPost, "/api/v1/intents/"+url.PathEscape(id)+"/confirm", nil, body, &out); err != nil {
		return Request{}, err
	}
	return out, nil
}

// WaitIntent polls a request until it settles or ctx is done.
func (c *Client) WaitIntent(ctx context.Context, id string, interval time.Duration) (Request, error) {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		req, err := c.GetIntent(ctx, id)
		if err != nil {
			return Request{}, err
		}
		if req.Settled() {
			return req, nil
		}
		select {
		case <-ctx.Done():
			return req, ctx.Err()
		case <-ticker.C:
		}
	}
}

// TailEvents returns the last n event log entries.
func (c *Client) TailEvents(ctx context.Context, n int) ([]Event, error) {
	query := url.Values{}
	if n > 0 {
		query.Set("tail", strconv.Itoa(n))
	}
	var out struct {
		Events []Event `json:"events"`
	}
	if err := c.send(ctx, http.MethodGet, "/api/v1/events", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// ListApprovals returns the active approvals sorted by key.
func (c *Client) ListApprovals(ctx context.Context) ([]Grant, error) {
	var out struct {
		Approvals []Grant `json:"approvals"`
	}
	if err := c.send(ctx, http.MethodGet, "/api/v1/approvals", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Approvals, nil
}

// Grant approves agent/action for the given number of hours. Use "*" as
// action to approve every action of the agent.
func (c *Client) Grant(ctx context.Context, agent, action string, hours float64) (Grant, error) {
	body := struct {
		Agent  string  `json:"agent"`
		Action string  `json:"action"`
		Hours  float64 `json:"hours"`
	}{Agent: agent, Action: action, Hours: hours}
	var out Grant
	if err := c.send(ctx, http.MethodPost, "/api/v1/approvals", nil, body, &out); err != nil {
		return Grant{}, err
	}
	return out, nil
}

// Revoke removes an approval. Revoking an unknown key is not an error.
func (c *Client) Revoke(ctx context.Context, agent, action string) error {
	endpoint := "/api/v1/approvals/" + url.PathEscape(agent) + "/" + url.PathEscape(action)
	return c.send(ctx, http.MethodDelete, endpoint, nil, nil, nil)
}

// Agents lists the registered providers.
func (c *Client) Agents(ctx context.Context) ([]Agent, error) {
	var out struct {
		Agents []Agent `json:"agents"`
	}
	if err := c.send(ctx, http.MethodGet, "/api/v1/agents", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Agents, nil
}

// Health checks that the server is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.send(ctx, http.MethodGet, "/healthz", nil, nil, nil)
}

func (c *Client) send(ctx context.Context, method, endpoint string, query url.Values, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, endpoint, query, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	u, err := url.Parse(strings.TrimSuffix(c.baseURL.String(), "/") + endpoint)
	if err != nil {
		return nil, fmt.Errorf("build url: %w", err)
	}
	u.RawQuery = query.Encode()
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
