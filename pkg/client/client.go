package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/terra-clan/estimator/internal/models"
)

// Client is a Go SDK for the estimator API
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

// Option configures the client
type Option func(*Client)

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new estimator client authenticated with a backend access token
func NewClient(baseURL, accessToken string, opts ...Option) *Client {
	c := &Client{
		baseURL:     baseURL,
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is an error envelope returned by the API
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %s - %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the API
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Payment is the result of a monthly payment calculation
type Payment struct {
	Principal      float64 `json:"principal"`
	APR            float64 `json:"apr"`
	Months         int     `json:"months"`
	MonthlyPayment int     `json:"monthly_payment"`
}

// Board retrieves the full kanban board
func (c *Client) Board(ctx context.Context) (*models.Board, error) {
	var board models.Board
	if err := c.call(ctx, http.MethodGet, "/api/v1/board", nil, &board); err != nil {
		return nil, err
	}
	return &board, nil
}

// ListOpportunities retrieves opportunities, optionally limited to a column
func (c *Client) ListOpportunities(ctx context.Context, filters models.OpportunityFilters) ([]*models.Opportunity, error) {
	q := url.Values{}
	if filters.Column != "" {
		q.Set("column_id", string(filters.Column))
	}
	if filters.Limit > 0 {
		q.Set("limit", strconv.Itoa(filters.Limit))
	}
	if filters.Offset > 0 {
		q.Set("offset", strconv.Itoa(filters.Offset))
	}

	path := "/api/v1/opportunities"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var result struct {
		Opportunities []*models.Opportunity `json:"opportunities"`
		Total         int                   `json:"total"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Opportunities, nil
}

// CreateOpportunity creates a new opportunity
func (c *Client) CreateOpportunity(ctx context.Context, req models.CreateOpportunityRequest) (*models.Opportunity, error) {
	var o models.Opportunity
	if err := c.call(ctx, http.MethodPost, "/api/v1/opportunities", req, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// MoveOpportunity moves an opportunity to a column and position
func (c *Client) MoveOpportunity(ctx context.Context, id string, req models.MoveRequest) (*models.Opportunity, error) {
	var o models.Opportunity
	if err := c.call(ctx, http.MethodPost, "/api/v1/opportunities/"+url.PathEscape(id)+"/move", req, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// AddOption adds a priced option to an opportunity
func (c *Client) AddOption(ctx context.Context, opportunityID string, req models.OptionRequest) (*models.Option, error) {
	var opt models.Option
	if err := c.call(ctx, http.MethodPost, "/api/v1/opportunities/"+url.PathEscape(opportunityID)+"/options", req, &opt); err != nil {
		return nil, err
	}
	return &opt, nil
}

// MonthlyPayment asks the API for the rounded monthly payment
func (c *Client) MonthlyPayment(ctx context.Context, principal, apr float64, months int) (*Payment, error) {
	q := url.Values{}
	q.Set("principal", strconv.FormatFloat(principal, 'f', -1, 64))
	q.Set("apr", strconv.FormatFloat(apr, 'f', -1, 64))
	q.Set("months", strconv.Itoa(months))

	var p Payment
	if err := c.call(ctx, http.MethodGet, "/api/v1/finance/payment?"+q.Encode(), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Invite invites a team member. Requires an admin token.
func (c *Client) Invite(ctx context.Context, req models.InviteRequest) (*models.TeamMember, error) {
	var m models.TeamMember
	if err := c.call(ctx, http.MethodPost, "/api/v1/invites", req, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/health", nil, nil)
}

// call performs a request and unwraps the response envelope into out
func (c *Client) call(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	status, resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	var result envelope
	if err := json.Unmarshal(resp, &result); err != nil {
		if status >= 400 {
			return &APIError{Status: status, Code: "http_error", Message: string(resp)}
		}
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		apiErr := &APIError{Status: status, Code: "unknown_error"}
		if result.Error != nil {
			apiErr.Code = result.Error.Code
			apiErr.Message = result.Error.Message
		}
		return apiErr
	}

	if out == nil || len(result.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(result.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response data: %w", err)
	}
	return nil
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, respBody, nil
}
