// Package backend is a client for the hosted auth and object storage REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/terra-clan/estimator/internal/models"
)

// Common errors
var (
	ErrInvalidToken        = errors.New("invalid or expired access token")
	ErrServiceRoleRequired = errors.New("service role key is not configured")
)

// APIError is a non-2xx response from the hosted backend
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend error %d: %s", e.Status, e.Message)
}

// Client talks to the hosted backend
type Client struct {
	baseURL        string
	anonKey        string
	serviceRoleKey string
	httpClient     *http.Client
}

// Option configures the client
type Option func(*Client)

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithServiceRoleKey enables admin calls
func WithServiceRoleKey(key string) Option {
	return func(c *Client) {
		c.serviceRoleKey = key
	}
}

// NewClient creates a new hosted backend client
func NewClient(baseURL, anonKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CreateUserParams describes an admin-created user
type CreateUserParams struct {
	Email        string
	Password     string
	EmailConfirm bool
	UserMetadata map[string]any
	AppMetadata  map[string]any
}

// SignUp registers a new user with email and password
func (c *Client) SignUp(ctx context.Context, req models.SignUpRequest, redirectTo string) (*models.User, error) {
	body, err := json.Marshal(map[string]any{
		"email":    req.Email,
		"password": req.Password,
		"data": map[string]string{
			"first_name": req.FirstName,
			"last_name":  req.LastName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	path := "/auth/v1/signup"
	if redirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectTo)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, path, c.anonKey, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	// With auto-confirm a session wrapping the user comes back,
	// otherwise the bare user.
	var session models.Session
	if err := json.Unmarshal(resp, &session); err == nil && session.User != nil {
		return session.User, nil
	}

	var user models.User
	if err := json.Unmarshal(resp, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &user, nil
}

// ExchangeCodeForSession trades an authorization code for a session
func (c *Client) ExchangeCodeForSession(ctx context.Context, code, verifier string) (*models.Session, error) {
	body, err := json.Marshal(map[string]string{
		"auth_code":     code,
		"code_verifier": verifier,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/v1/token?grant_type=pkce", c.anonKey, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var session models.Session
	if err := json.Unmarshal(resp, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if session.AccessToken == "" {
		return nil, fmt.Errorf("token response did not include an access token")
	}

	return &session, nil
}

// GetUser returns the user owning an access token
func (c *Client) GetUser(ctx context.Context, accessToken string) (*models.User, error) {
	if accessToken == "" {
		return nil, ErrInvalidToken
	}

	resp, err := c.doRequest(ctx, http.MethodGet, "/auth/v1/user", accessToken, "", nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	var user models.User
	if err := json.Unmarshal(resp, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &user, nil
}

// CreateUser creates a user with the service role key
func (c *Client) CreateUser(ctx context.Context, params CreateUserParams) (*models.User, error) {
	if c.serviceRoleKey == "" {
		return nil, ErrServiceRoleRequired
	}

	payload := map[string]any{
		"email":         params.Email,
		"email_confirm": params.EmailConfirm,
	}
	if params.Password != "" {
		payload["password"] = params.Password
	}
	if params.UserMetadata != nil {
		payload["user_metadata"] = params.UserMetadata
	}
	if params.AppMetadata != nil {
		payload["app_metadata"] = params.AppMetadata
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/v1/admin/users", c.serviceRoleKey, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := json.Unmarshal(resp, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &user, nil
}

// DeleteUser deletes a user with the service role key
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	if c.serviceRoleKey == "" {
		return ErrServiceRoleRequired
	}

	_, err := c.doRequest(ctx, http.MethodDelete, "/auth/v1/admin/users/"+url.PathEscape(id), c.serviceRoleKey, "", nil)
	return err
}

// Upload stores an object in a bucket and returns its public URL
func (c *Client) Upload(ctx context.Context, bucket, objectPath, contentType string, body io.Reader) (string, error) {
	key := c.serviceRoleKey
	if key == "" {
		key = c.anonKey
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	escaped := escapeObjectPath(objectPath)
	path := fmt.Sprintf("/storage/v1/object/%s/%s", url.PathEscape(bucket), escaped)

	if _, err := c.doRequest(ctx, http.MethodPost, path, key, contentType, body); err != nil {
		return "", err
	}

	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.baseURL, url.PathEscape(bucket), escaped), nil
}

// Health checks if the auth service is reachable
func (c *Client) Health(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, "/auth/v1/health", c.anonKey, "", nil)
	return err
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path, bearer, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if strings.HasPrefix(path, "/storage/") {
		req.Header.Set("x-upsert", "true")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, parseAPIError(resp.StatusCode, respBody)
	}

	return respBody, nil
}

// parseAPIError understands the auth ({msg, error_code}, {error, error_description})
// and storage ({statusCode, error, message}) error bodies
func parseAPIError(status int, body []byte) *APIError {
	var payload struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorCode        string `json:"error_code"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}

	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(body, &payload); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}

	apiErr.Code = firstNonEmpty(payload.ErrorCode, payload.Error)
	apiErr.Message = firstNonEmpty(payload.Msg, payload.Message, payload.ErrorDescription, payload.Error)
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func escapeObjectPath(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
