package launchpathsdk

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

// Client is a minimal LaunchPath HTTP API client.
type Client struct {
	BaseURL    string
	OwnerID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, ownerID string) *Client {
	return &Client{
		BaseURL: baseURL,
		OwnerID: ownerID,
		Timeout: 10 * time.Second,
	}
}

// Idea represents the API idea model.
type Idea struct {
	ID             string `json:"id"`
	OwnerID        string `json:"owner_id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
	LastModifiedAt string `json:"last_modified_at"`
}

// SavedIdea wraps the upsert response.
type SavedIdea struct {
	Idea
	Created bool `json:"created"`
}

// ValidationResult represents one scored assessment.
type ValidationResult struct {
	ID                        string   `json:"id"`
	IdeaID                    string   `json:"idea_id"`
	IdeaTitle                 string   `json:"idea_title"`
	IdeaDescription           string   `json:"idea_description"`
	OverallScore              int      `json:"overall_score"`
	MarketPotentialScore      int      `json:"market_potential_score"`
	FeasibilityScore          int      `json:"feasibility_score"`
	CompetitiveLandscapeScore int      `json:"competitive_landscape_score"`
	Summary                   string   `json:"summary"`
	Strengths                 []string `json:"strengths"`
	Challenges                []string `json:"challenges"`
	Recommendations           []string `json:"recommendations"`
	NextSteps                 []string `json:"next_steps"`
	CreatedAt                 string   `json:"created_at"`
}

// Task represents one registration checklist item.
type Task struct {
	ID            string   `json:"id"`
	IdeaID        string   `json:"idea_id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Category      string   `json:"category"`
	Priority      string   `json:"priority"`
	EstimatedTime string   `json:"estimated_time"`
	Completed     bool     `json:"completed"`
	Resources     []string `json:"resources"`
	Position      int      `json:"position"`
}

// ValidateOutcome bundles the result and the generated tasks.
type ValidateOutcome struct {
	Result ValidationResult `json:"result"`
	Tasks  []Task           `json:"tasks"`
}

// Progress is the checklist completion summary.
type Progress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Progress  int `json:"progress"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	OwnerID    string         `json:"owner_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// SaveIdea upserts a draft by title.
func (c *Client) SaveIdea(ctx context.Context, title, description string) (SavedIdea, error) {
	body := map[string]any{
		"title":       title,
		"description": description,
	}
	var resp SavedIdea
	err := c.do(ctx, http.MethodPost, "v0/ideas", body, &resp)
	return resp, err
}

// ListIdeas returns the owner's drafts.
func (c *Client) ListIdeas(ctx context.Context) ([]Idea, error) {
	var resp []Idea
	err := c.do(ctx, http.MethodGet, "v0/ideas", nil, &resp)
	return resp, err
}

// ValidateIdea runs validation and task generation for an idea.
func (c *Client) ValidateIdea(ctx context.Context, ideaID string) (ValidateOutcome, error) {
	var resp ValidateOutcome
	endpoint := fmt.Sprintf("v0/ideas/%s/validate", url.PathEscape(ideaID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Validations returns the owner's history, oldest first.
func (c *Client) Validations(ctx context.Context) ([]ValidationResult, error) {
	var resp []ValidationResult
	err := c.do(ctx, http.MethodGet, "v0/validations", nil, &resp)
	return resp, err
}

// LatestValidation returns the newest result.
func (c *Client) LatestValidation(ctx context.Context) (ValidationResult, error) {
	var resp ValidationResult
	err := c.do(ctx, http.MethodGet, "v0/validations/latest", nil, &resp)
	return resp, err
}

// Tasks returns the registration checklist in generation order.
func (c *Client) Tasks(ctx context.Context) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, "v0/tasks", nil, &resp)
	return resp, err
}

// ToggleTask sets a task's completed flag.
func (c *Client) ToggleTask(ctx context.Context, taskID string, completed bool) (Task, error) {
	body := map[string]any{"completed": completed}
	var resp Task
	endpoint := fmt.Sprintf("v0/tasks/%s", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPatch, endpoint, body, &resp)
	return resp, err
}

// TaskProgress returns the completion summary.
func (c *Client) TaskProgress(ctx context.Context) (Progress, error) {
	var resp Progress
	err := c.do(ctx, http.MethodGet, "v0/tasks/progress", nil, &resp)
	return resp, err
}

// SetOnboarding stores the onboarding record.
func (c *Client) SetOnboarding(ctx context.Context, path, ideaTitle, ideaDescription string) error {
	body := map[string]any{
		"path":             path,
		"idea_title":       ideaTitle,
		"idea_description": ideaDescription,
	}
	return c.do(ctx, http.MethodPut, "v0/onboarding", body, nil)
}

// LoadOnboarding triggers the pipeline from the stored onboarding record.
func (c *Client) LoadOnboarding(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "v0/onboarding/load", nil, nil)
}

// Events returns recent events, newest first.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.OwnerID != "" {
		req.Header.Set("X-Owner-Id", c.OwnerID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
