package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"chatsync/internal/content"
)

const (
	DefaultTimeout     = 10 * time.Second
	loginFailedMessage = "Login failed"
)

var (
	ErrAuthFailed = errors.New("authentication failed")
)

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

type RegisterResponse struct {
	Message  string `json:"message,omitempty"`
	Username string `json:"username,omitempty"`
}

// errorResponse covers both error shapes the auth service uses.
type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("auth base URL is required")
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	return nil
}

// Client talks to the REST auth endpoints under /api/auth.
type Client struct {
	Config
	http *http.Client
	log  *slog.Logger
}

func NewClient(config Config, logger *slog.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		Config: config,
		http:   &http.Client{Timeout: config.Timeout},
		log:    logger,
	}, nil
}

func (c *Client) Login(ctx context.Context, creds Credentials) (LoginResponse, error) {
	if err := content.ValidateUsername(creds.Username); err != nil {
		return LoginResponse{}, err
	}

	var resp LoginResponse
	if err := c.post(ctx, "/api/auth/login", creds, "", &resp); err != nil {
		return LoginResponse{}, err
	}
	if resp.Token == "" {
		return LoginResponse{}, fmt.Errorf("%w: %s", ErrAuthFailed, "no token in response")
	}
	if resp.Username == "" {
		resp.Username = creds.Username
	}
	return resp, nil
}

func (c *Client) Register(ctx context.Context, creds Credentials) (RegisterResponse, error) {
	if err := content.ValidateUsername(creds.Username); err != nil {
		return RegisterResponse{}, err
	}

	var resp RegisterResponse
	if err := c.post(ctx, "/api/auth/register", creds, "", &resp); err != nil {
		return RegisterResponse{}, err
	}
	if resp.Username == "" {
		resp.Username = creds.Username
	}
	return resp, nil
}

// Logout revokes token on the server. The response body is ignored.
func (c *Client) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return c.post(ctx, "/api/auth/logout", nil, token, nil)
}

func (c *Client) post(ctx context.Context, path string, body any, token string, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call auth API: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := readErrorMessage(resp)
		c.log.Warn("auth request rejected", "path", path, "status", resp.StatusCode, "message", msg)
		return fmt.Errorf("%w: %s", ErrAuthFailed, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func readErrorMessage(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		switch {
		case er.Message != "":
			return er.Message
		case er.Error != "":
			return er.Error
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return loginFailedMessage
	}
	return http.StatusText(resp.StatusCode)
}
