package santasdk

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
)

// Client is a minimal Secret Santa HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

type Participant struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type PriorAssignment struct {
	GiverName      string `json:"giver_name,omitempty"`
	GiverEmail     string `json:"giver_email"`
	RecipientName  string `json:"recipient_name,omitempty"`
	RecipientEmail string `json:"recipient_email"`
}

type Assignment struct {
	GiverName      string `json:"giver_name"`
	GiverEmail     string `json:"giver_email"`
	RecipientName  string `json:"recipient_name"`
	RecipientEmail string `json:"recipient_email"`
}

type AssignRequest struct {
	Participants []Participant     `json:"participants"`
	Prior        []PriorAssignment `json:"prior,omitempty"`
	Record       bool              `json:"record,omitempty"`
}

type AssignResponse struct {
	RunID       string       `json:"run_id,omitempty"`
	Attempts    int          `json:"attempts"`
	Assignments []Assignment `json:"assignments"`
}

// Run is a recorded round (partial).
type Run struct {
	ID               string `json:"id"`
	CreatedAt        string `json:"created_at"`
	Attempts         int    `json:"attempts"`
	Repair           string `json:"repair"`
	ParticipantCount int    `json:"participant_count"`
}

type RunDetail struct {
	Run         Run          `json:"run"`
	Assignments []Assignment `json:"assignments"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Health reports whether the server answers its health check.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "health", nil, nil)
}

// CreateAssignments draws a round on the server.
func (c *Client) CreateAssignments(ctx context.Context, req AssignRequest) (AssignResponse, error) {
	var resp AssignResponse
	err := c.do(ctx, http.MethodPost, "assignments", req, &resp)
	return resp, err
}

// Runs lists recorded runs, newest first.
func (c *Client) Runs(ctx context.Context, limit int) ([]Run, error) {
	endpoint := "runs"
	if limit > 0 {
		endpoint = fmt.Sprintf("runs?limit=%d", limit)
	}
	var resp struct {
		Items []Run `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Run fetches one recorded run with its assignments.
func (c *Client) Run(ctx context.Context, id string) (RunDetail, error) {
	var resp RunDetail
	err := c.do(ctx, http.MethodGet, "runs/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	basePath := c.BasePath
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	return strings.TrimRight(c.BaseURL, "/") + strings.TrimRight(basePath, "/")
}
