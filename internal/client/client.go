// Package client provides a REST client for the fieldwork backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"fieldwork/internal/metrics"
	"fieldwork/internal/models"
)

// Client is a REST client for the fieldwork backend.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	metrics    *metrics.Collector
}

// New creates a new API client.
// If baseURL is empty, uses FIELDWORK_API_URL env var or defaults to localhost:8787.
// Timeout can be configured via FIELDWORK_CLIENT_TIMEOUT env var (default 30s).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("FIELDWORK_API_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8787"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeout := 30 * time.Second
	if t := os.Getenv("FIELDWORK_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: baseURL,
		token:   os.Getenv("FIELDWORK_API_TOKEN"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetToken overrides the bearer token used for API requests.
func (c *Client) SetToken(token string) {
	c.token = token
}

// SetMetrics attaches a collector that records API call timings.
func (c *Client) SetMetrics(collector *metrics.Collector) {
	c.metrics = collector
}

// do sends a JSON request and decodes the JSON response into result.
// result may be nil for operations without a response body.
func (c *Client) do(ctx context.Context, method, path string, payload, result any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(start, err)
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(start, err)
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
		c.observe(start, apiErr)
		return apiErr
	}
	c.observe(start, nil)

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

func (c *Client) observe(start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	if err != nil {
		c.metrics.RecordFailure(metrics.OpAPICall, time.Since(start))
		return
	}
	c.metrics.RecordTiming(metrics.OpAPICall, time.Since(start))
}

// decodeSession normalizes and validates a session that arrived over the
// wire. Invalid payloads are rejected here, at the boundary, so bad data
// never reaches the state.
func decodeSession(sess *models.Session) (*models.Session, error) {
	sess.Normalize()
	if err := sess.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session payload: %w", err)
	}
	return sess, nil
}

// =============================================================================
// SESSION OPERATIONS
// =============================================================================

// CreateSession creates the session on the backend and returns the server's
// copy, which the caller adopts wholesale.
func (c *Client) CreateSession(ctx context.Context, sess *models.Session) (*models.Session, error) {
	var result models.Session
	if err := c.do(ctx, http.MethodPost, "/sessions", sess, &result); err != nil {
		return nil, err
	}
	return decodeSession(&result)
}

// GetSession retrieves a session by ID.
func (c *Client) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var result models.Session
	if err := c.do(ctx, http.MethodGet, "/sessions/"+id, nil, &result); err != nil {
		return nil, err
	}
	return decodeSession(&result)
}

// ListSessions returns all sessions stored on the backend.
func (c *Client) ListSessions(ctx context.Context) ([]*models.Session, error) {
	var result []models.Session
	if err := c.do(ctx, http.MethodGet, "/sessions", nil, &result); err != nil {
		return nil, err
	}

	sessions := make([]*models.Session, 0, len(result))
	for i := range result {
		sess, err := decodeSession(&result[i])
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// UpdateSession pushes the full session document. The server resolves
// concurrent writers last-write-wins by updated_at.
func (c *Client) UpdateSession(ctx context.Context, sess *models.Session) (*models.Session, error) {
	var result models.Session
	if err := c.do(ctx, http.MethodPatch, "/sessions/"+sess.SessionID, sess, &result); err != nil {
		return nil, err
	}
	return decodeSession(&result)
}

// DeleteSession removes a session from the backend.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/sessions/"+id, nil, nil)
}

// =============================================================================
// RESEARCH OPERATIONS
// =============================================================================

// QuestionRequest carries the business context and conversation history the
// research endpoint works from. This endpoint speaks camelCase; the session
// routes do not.
type QuestionRequest struct {
	BusinessIdea   string            `json:"businessIdea"`
	TargetCustomer string            `json:"targetCustomer"`
	Problem        string            `json:"problem"`
	Industry       string            `json:"industry"`
	Messages       []QuestionMessage `json:"messages,omitempty"`
}

// QuestionMessage is one conversation turn in a QuestionRequest.
type QuestionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// QuestionResponse holds the generated interview questions.
type QuestionResponse struct {
	ProblemDiscovery   []string `json:"problemDiscovery"`
	SolutionValidation []string `json:"solutionValidation"`
	FollowUp           []string `json:"followUp"`
}

// Questionnaire converts the response into the session questionnaire model,
// stamping the generation time.
func (r *QuestionResponse) Questionnaire() models.Questionnaire {
	now := time.Now().UTC()
	return models.Questionnaire{
		Questions: models.QuestionSet{
			ProblemDiscovery:   r.ProblemDiscovery,
			SolutionValidation: r.SolutionValidation,
			FollowUp:           r.FollowUp,
		},
		Generated:   true,
		GeneratedAt: &now,
	}
}

// GenerateQuestions asks the backend to generate interview questions from
// the session's business context and conversation so far.
func (c *Client) GenerateQuestions(ctx context.Context, sess *models.Session) (*QuestionResponse, error) {
	req := QuestionRequest{
		BusinessIdea:   sess.BusinessContext.BusinessIdea,
		TargetCustomer: sess.BusinessContext.TargetCustomer,
		Problem:        sess.BusinessContext.Problem,
		Industry:       sess.BusinessContext.Industry,
	}
	for _, m := range sess.Messages {
		req.Messages = append(req.Messages, QuestionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	start := time.Now()
	var result QuestionResponse
	err := c.do(ctx, http.MethodPost, "/research/generate-questions", req, &result)
	if c.metrics != nil {
		if err != nil {
			c.metrics.RecordFailure(metrics.OpQuestionGen, time.Since(start))
		} else {
			c.metrics.RecordTiming(metrics.OpQuestionGen, time.Since(start))
		}
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// PersonaImageRequest identifies the stakeholder persona to render.
type PersonaImageRequest struct {
	Name     string `json:"name"`
	Role     string `json:"role"`
	Industry string `json:"industry,omitempty"`
}

// PersonaImageResponse carries the rendered portrait and the analysis epoch
// it belongs to. A new epoch means every previously cached portrait is stale.
type PersonaImageResponse struct {
	ImageURL   string `json:"imageUrl"`
	AnalysisID string `json:"analysisId"`
}

// GeneratePersonaImage asks the backend to render a portrait for one
// stakeholder persona.
func (c *Client) GeneratePersonaImage(ctx context.Context, name, role, industry string) (*PersonaImageResponse, error) {
	req := PersonaImageRequest{Name: name, Role: role, Industry: industry}
	var result PersonaImageResponse
	if err := c.do(ctx, http.MethodPost, "/research/persona-image", req, &result); err != nil {
		return nil, err
	}
	if result.ImageURL == "" || result.AnalysisID == "" {
		return nil, fmt.Errorf("invalid persona image payload: missing imageUrl or analysisId")
	}
	return &result, nil
}

// =============================================================================
// HEALTH
// =============================================================================

// Health probes the backend. A nil error means the backend is reachable
// and serving.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}
