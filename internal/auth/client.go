package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arc-sentinel/sentinel-core/internal/config"
	"github.com/arc-sentinel/sentinel-core/internal/models"
	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

// Sentinel errors mapped from identity-provider HTTP responses.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
	ErrRateLimited        = errors.New("too many attempts")
	ErrUnauthorized       = errors.New("invalid or expired token")
	ErrNotConfigured      = errors.New("identity provider not configured")
)

// Provider is the identity surface handlers depend on.
type Provider interface {
	SignUp(ctx context.Context, email, password, fullName string) (*models.AuthSession, error)
	SignIn(ctx context.Context, email, password string) (*models.AuthSession, error)
	Refresh(ctx context.Context, refreshToken string) (*models.AuthSession, error)
	Recover(ctx context.Context, email string) error
	GetUser(ctx context.Context, accessToken string) (*models.AuthUser, error)
	SignOut(ctx context.Context, accessToken string) error
}

// Client talks to a GoTrue-compatible identity provider over REST.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  logger.Logger
}

func NewClient(cfg config.AuthConfig, log logger.Logger) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		logger:  log,
	}
}

func (c *Client) configured() bool { return c.baseURL != "" && c.apiKey != "" }

// providerSession is the token grant response shape.
type providerSession struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int          `json:"expires_in"`
	User         providerUser `json:"user"`
}

type providerUser struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	EmailConfirmedAt string `json:"email_confirmed_at"`
	UserMetadata     struct {
		FullName string `json:"full_name"`
	} `json:"user_metadata"`
}

type providerError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e providerError) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// SignUp registers a new user. Depending on provider settings the returned
// session may carry no tokens (email confirmation pending).
func (c *Client) SignUp(ctx context.Context, email, password, fullName string) (*models.AuthSession, error) {
	if !c.configured() {
		return nil, ErrNotConfigured
	}

	body := map[string]interface{}{
		"email":    email,
		"password": password,
	}
	if fullName != "" {
		body["data"] = map[string]string{"full_name": fullName}
	}

	// confirmation-pending signups return a bare user object instead of a
	// token grant, so both shapes are decoded
	var raw struct {
		providerSession
		providerUser
	}
	if err := c.call(ctx, http.MethodPost, "/auth/v1/signup", "", body, &raw); err != nil {
		return nil, err
	}

	session := toSession(&raw.providerSession)
	if session.User.ID == "" && raw.providerUser.ID != "" {
		session.User = models.AuthUser{
			ID:       raw.providerUser.ID,
			Email:    raw.providerUser.Email,
			FullName: raw.providerUser.UserMetadata.FullName,
		}
	}
	return session, nil
}

// SignIn exchanges credentials for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*models.AuthSession, error) {
	if !c.configured() {
		return nil, ErrNotConfigured
	}

	body := map[string]string{"email": email, "password": password}
	var raw providerSession
	if err := c.call(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", body, &raw); err != nil {
		return nil, err
	}
	if raw.AccessToken == "" {
		return nil, ErrInvalidCredentials
	}
	return toSession(&raw), nil
}

// Refresh exchanges a refresh token for a fresh session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*models.AuthSession, error) {
	if !c.configured() {
		return nil, ErrNotConfigured
	}

	body := map[string]string{"refresh_token": refreshToken}
	var raw providerSession
	if err := c.call(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", body, &raw); err != nil {
		return nil, err
	}
	if raw.AccessToken == "" {
		return nil, ErrUnauthorized
	}
	return toSession(&raw), nil
}

// Recover requests a password reset email. Provider errors other than rate
// limiting are swallowed so callers cannot probe which addresses exist.
func (c *Client) Recover(ctx context.Context, email string) error {
	if !c.configured() {
		return ErrNotConfigured
	}

	err := c.call(ctx, http.MethodPost, "/auth/v1/recover", "", map[string]string{"email": email}, nil)
	if errors.Is(err, ErrRateLimited) {
		return err
	}
	if err != nil {
		c.logger.Debug("password recovery request failed", "error", err)
	}
	return nil
}

// GetUser validates an access token and returns the identity behind it.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*models.AuthUser, error) {
	if !c.configured() {
		return nil, ErrNotConfigured
	}

	var raw providerUser
	if err := c.call(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, &raw); err != nil {
		return nil, err
	}
	if raw.ID == "" {
		return nil, ErrUnauthorized
	}
	return &models.AuthUser{
		ID:       raw.ID,
		Email:    raw.Email,
		FullName: raw.UserMetadata.FullName,
	}, nil
}

// SignOut revokes the token's session at the provider.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if !c.configured() {
		return ErrNotConfigured
	}
	return c.call(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil)
}

func (c *Client) call(ctx context.Context, method, path, bearer string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("identity provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.mapError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) mapError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var perr providerError
	_ = json.Unmarshal(data, &perr)
	msg := strings.ToLower(perr.text())

	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		strings.Contains(msg, "rate"), strings.Contains(msg, "too many"):
		return ErrRateLimited
	case strings.Contains(msg, "not confirmed"):
		return ErrEmailNotConfirmed
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnprocessableEntity:
		if strings.Contains(msg, "invalid login credentials") {
			return ErrInvalidCredentials
		}
		if perr.text() != "" {
			return fmt.Errorf("identity provider rejected request: %s", perr.text())
		}
		return ErrInvalidCredentials
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	default:
		return fmt.Errorf("identity provider returned status %d: %s", resp.StatusCode, perr.text())
	}
}

func toSession(raw *providerSession) *models.AuthSession {
	tokenType := raw.TokenType
	if tokenType == "" {
		tokenType = "bearer"
	}
	return &models.AuthSession{
		AccessToken:  raw.AccessToken,
		RefreshToken: raw.RefreshToken,
		TokenType:    tokenType,
		ExpiresIn:    raw.ExpiresIn,
		User: models.AuthUser{
			ID:       raw.User.ID,
			Email:    raw.User.Email,
			FullName: raw.User.UserMetadata.FullName,
		},
	}
}
