// Package rest talks to the security backend over its JSON API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/odyssey-erp/security-console/internal/provider"
)

// Config tunes the client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RatePerSec float64
	Burst      int
	// ServiceToken authenticates calls made outside a user request.
	ServiceToken string
}

// Client implements provider.Backend against the REST API.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	limiter      *rate.Limiter
	serviceToken string
}

var _ provider.Backend = (*Client)(nil)

// NewClient constructs a client. A zero RatePerSec disables outbound limiting.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		limiter:      rate.NewLimiter(limit, burst),
		serviceToken: cfg.ServiceToken,
	}
}

func (c *Client) ListRoles(ctx context.Context) ([]provider.Role, error) {
	var roles []provider.Role
	err := c.do(ctx, http.MethodGet, "/api/roles", nil, &roles, http.StatusOK)
	return roles, err
}

func (c *Client) GetRole(ctx context.Context, id int64) (provider.Role, error) {
	var role provider.Role
	err := c.do(ctx, http.MethodGet, "/api/roles/"+strconv.FormatInt(id, 10), nil, &role, http.StatusOK)
	return role, err
}

func (c *Client) ListFunctions(ctx context.Context) ([]provider.Function, error) {
	var fns []provider.Function
	err := c.do(ctx, http.MethodGet, "/api/functions", nil, &fns, http.StatusOK)
	return fns, err
}

func (c *Client) RoleFunctions(ctx context.Context, roleID int64) ([]provider.Function, error) {
	var fns []provider.Function
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/roles/%d/functions", roleID), nil, &fns, http.StatusOK)
	return fns, err
}

type assignFunctionsRequest struct {
	RoleID      int64   `json:"roleId"`
	FunctionIDs []int64 `json:"functionIds"`
}

func (c *Client) ReplaceRoleFunctions(ctx context.Context, roleID int64, functionIDs []int64) error {
	body := assignFunctionsRequest{RoleID: roleID, FunctionIDs: nonNil(functionIDs)}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/roles/%d/functions", roleID), body, nil, http.StatusCreated, http.StatusOK)
}

func (c *Client) ListUsers(ctx context.Context) ([]provider.User, error) {
	var users []provider.User
	err := c.do(ctx, http.MethodGet, "/api/users", nil, &users, http.StatusOK)
	return users, err
}

func (c *Client) CreateUser(ctx context.Context, u provider.NewUser) (provider.User, error) {
	var created provider.User
	err := c.do(ctx, http.MethodPost, "/api/users", u, &created, http.StatusCreated, http.StatusOK)
	return created, err
}

func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/users/%d", id), nil, nil, http.StatusOK, http.StatusNoContent)
}

func (c *Client) UserRoles(ctx context.Context, userID int64) ([]provider.Role, error) {
	var roles []provider.Role
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/users/%d/roles", userID), nil, &roles, http.StatusOK)
	return roles, err
}

type assignRolesRequest struct {
	UserID  int64   `json:"userId"`
	RoleIDs []int64 `json:"roleIds"`
}

func (c *Client) ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	body := assignRolesRequest{UserID: userID, RoleIDs: nonNil(roleIDs)}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/users/%d/roles", userID), body, nil, http.StatusCreated, http.StatusOK)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges credentials for a signed token.
func (c *Client) Login(ctx context.Context, username, password string) (provider.LoginResult, error) {
	var res provider.LoginResult
	err := c.do(ctx, http.MethodPost, "/api/auth/login", loginRequest{Username: username, Password: password}, &res, http.StatusCreated, http.StatusOK)
	return res, err
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

func (c *Client) token(ctx context.Context) string {
	if t := provider.TokenFromContext(ctx); t != "" {
		return t
	}
	return c.serviceToken
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, accept ...int) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rest: %s %s: %w: %v", method, path, provider.ErrTransport, err)
	}
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("rest: encode %s: %w", path, err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("rest: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.token(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rest: %s %s: %w: %v", method, path, provider.ErrTransport, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if !accepted(resp.StatusCode, accept) {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("rest: decode %s: %w: %v", path, provider.ErrTransport, err)
	}
	return nil
}

func accepted(status int, accept []int) bool {
	for _, s := range accept {
		if status == s {
			return true
		}
	}
	return false
}

type errorPayload struct {
	Error       string            `json:"error"`
	Message     json.RawMessage   `json:"message"`
	FieldErrors map[string]string `json:"fieldErrors"`
}

type fieldMessage struct {
	Field  string `json:"field"`
	Errors string `json:"errors"`
}

func decodeError(resp *http.Response) error {
	apiErr := &provider.APIError{Status: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || len(bytes.TrimSpace(raw)) == 0 {
		return apiErr
	}
	var payload errorPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return apiErr
	}
	apiErr.Kind = payload.Error
	apiErr.FieldErrors = payload.FieldErrors

	var text string
	var list []fieldMessage
	switch {
	case json.Unmarshal(payload.Message, &text) == nil:
		apiErr.Message = text
	case json.Unmarshal(payload.Message, &list) == nil:
		msgs := make([]string, 0, len(list))
		for i, fm := range list {
			msgs = append(msgs, fm.Errors)
			if apiErr.FieldErrors == nil {
				apiErr.FieldErrors = make(map[string]string, len(list))
			}
			key := fm.Field
			if key == "" {
				key = strconv.Itoa(i)
			}
			apiErr.FieldErrors[key] = fm.Errors
		}
		apiErr.Message = strings.Join(msgs, "; ")
	}
	return apiErr
}
