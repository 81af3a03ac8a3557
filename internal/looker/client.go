package looker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const apiPrefix = "/api/4.0"

type Config struct {
	BaseURL         string
	ClientID        string
	ClientSecret    string
	Timeout         time.Duration
	MaxCharsPerTile int
}

// Client talks to the BI platform REST API. It creates and runs queries,
// describes explores and reads dashboards.
type Client struct {
	baseURL         string
	clientID        string
	clientSecret    string
	maxCharsPerTile int
	client          *http.Client
	logger          *slog.Logger
	now             func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("client id and secret are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	maxChars := cfg.MaxCharsPerTile
	if maxChars <= 0 {
		maxChars = 54000
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:         strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		clientID:        strings.TrimSpace(cfg.ClientID),
		clientSecret:    strings.TrimSpace(cfg.ClientSecret),
		maxCharsPerTile: maxChars,
		client:          &http.Client{Timeout: timeout},
		logger:          logger,
		now:             time.Now,
	}, nil
}

// BaseURL is the host used to build embed links.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// apiError is a non-2xx answer from the platform.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("looker api status=%d message=%s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 answer from the platform.
func IsNotFound(err error) bool {
	var apiErr *apiError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiPrefix+"/login", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read login response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("login: %w", &apiError{Status: resp.StatusCode, Message: errorMessage(body)})
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", fmt.Errorf("login returned no access token")
	}
	// Renew a minute before the session expires.
	lifetime := time.Duration(parsed.ExpiresIn)*time.Second - time.Minute
	if lifetime <= 0 {
		lifetime = time.Duration(parsed.ExpiresIn) * time.Second
	}
	c.token = parsed.AccessToken
	c.expiresAt = c.now().Add(lifetime)
	return c.token, nil
}

func (c *Client) resetToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// do sends an authenticated request and decodes a JSON answer into out. An
// expired session is renewed once.
func (c *Client) do(ctx context.Context, method, path string, payload any, out any) error {
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = encoded
	}

	for attempt := 0; ; attempt++ {
		token, err := c.accessToken(ctx)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "token "+token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		raw, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return fmt.Errorf("read response body: %w", err)
		}
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			c.resetToken()
			continue
		}
		if resp.StatusCode >= 400 {
			return &apiError{Status: resp.StatusCode, Message: errorMessage(raw)}
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
		return nil
	}
}

func errorMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	return strings.TrimSpace(string(body))
}
