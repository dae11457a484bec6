package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
)

const (
	restPrefix       = "/rest/v1/"
	authUserPath     = "/auth/v1/user"
	authHealthPath   = "/auth/v1/health"
	singleObjectType = "application/vnd.pgrst.object+json"

	// codeNoRows is returned when a single-object select matches zero or many rows.
	codeNoRows = "PGRST116"
)

// Client talks to the managed backend's REST and auth endpoints with one API key.
type Client struct {
	http    *resty.Client
	baseURL string
	apiKey  string
}

// New builds a client for baseURL authenticating with apiKey, which is either
// the public anonymous key or the privileged service key.
func New(baseURL, apiKey string) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetHeader("User-Agent", "helix/1.0").
		SetHeader("apikey", apiKey).
		SetAuthToken(apiKey)
	return &Client{http: httpClient, baseURL: baseURL, apiKey: apiKey}
}

// BaseURL returns the configured endpoint root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError is an upstream error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details string
	Hint    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("supabase request failed with status %d", e.Status)
}

// NoRows reports whether a single-row request matched nothing.
func (e *APIError) NoRows() bool {
	return e.Code == codeNoRows || e.Status == http.StatusNotAcceptable
}

func parseError(resp *resty.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode()}
	var raw map[string]any
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		apiErr.Message = strings.TrimSpace(resp.String())
		return apiErr
	}
	apiErr.Message = firstString(raw, "message", "msg", "error_description", "error")
	apiErr.Details = firstString(raw, "details")
	apiErr.Hint = firstString(raw, "hint")
	switch code := raw["code"].(type) {
	case string:
		apiErr.Code = code
	case float64:
		apiErr.Code = strconv.Itoa(int(code))
	}
	if apiErr.Code == "" {
		apiErr.Code = firstString(raw, "error_code")
	}
	return apiErr
}

func firstString(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := raw[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// AuthUser is the subset of the auth user object the service relies on.
type AuthUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// GetUser resolves an access token to its user through the auth endpoint.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*AuthUser, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		Get(authUserPath)
	if err != nil {
		return nil, fmt.Errorf("get auth user: %w", err)
	}
	if resp.IsError() {
		return nil, parseError(resp)
	}
	var user AuthUser
	if err := json.Unmarshal(resp.Body(), &user); err != nil {
		return nil, fmt.Errorf("decode auth user: %w", err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("auth user response has no id")
	}
	return &user, nil
}

// Health pings the auth service. err is only set when the upstream was unreachable.
func (c *Client) Health(ctx context.Context) (int, string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Cache-Control", "no-store").
		Get(authHealthPath)
	if err != nil {
		return 0, "", fmt.Errorf("auth health: %w", err)
	}
	return resp.StatusCode(), resp.String(), nil
}
