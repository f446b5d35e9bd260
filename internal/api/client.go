package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/siritami/gatewaysync/internal/config"
	"github.com/siritami/gatewaysync/internal/iface"
)

const (
	// maxAttempts bounds the total number of real request attempts across
	// all tokens for one logical call.
	maxAttempts = 50
	// fullCycleDelay is the pause inserted after every full, unsuccessful
	// pass through the credential set.
	fullCycleDelay = 5 * time.Second
	// redactLen is how many leading token characters survive in log lines.
	redactLen = 6
)

var (
	// ErrNoTokens is returned when the credential set is empty; no request
	// is attempted in that case.
	ErrNoTokens = errors.New("no api tokens configured")
	// ErrAttemptsExhausted is returned when every attempt has been consumed
	// without a successful response.
	ErrAttemptsExhausted = errors.New("api attempts exhausted")
)

// APIError is a single entry of the gateway response envelope's errors array.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Envelope is the generic gateway response body. Result is kept raw so the
// typed operation wrappers can decode it into their own shapes.
type Envelope struct {
	Success  bool              `json:"success"`
	Errors   []APIError        `json:"errors"`
	Messages []json.RawMessage `json:"messages"`
	Result   json.RawMessage   `json:"result"`
}

// Client issues authenticated JSON requests against the account-scoped
// gateway API, rotating circularly through the configured bearer tokens when
// an attempt fails. The credential set is immutable after construction and
// safe for concurrent calls; all rotation state is local to one call.
type Client struct {
	baseURL  string
	email    string
	tokens   []string
	http     iface.Doer
	notifier iface.Notifier

	// delay is replaced in tests to observe backoff without sleeping.
	delay func(ctx context.Context, d time.Duration) error
}

// New creates a Client from the configuration, an injected HTTP capability,
// and an optional notifier for terminal-failure reports.
func New(cfg *config.Config, doer iface.Doer, notifier iface.Notifier) *Client {
	return &Client{
		baseURL:  strings.TrimSuffix(cfg.APIHost, "/") + "/accounts/" + cfg.AccountID + "/gateway",
		email:    cfg.AccountEmail,
		tokens:   cfg.Tokens(),
		http:     doer,
		notifier: notifier,
		delay:    sleepContext,
	}
}

// Request executes one logical gateway API call. The payload, when non-nil,
// is marshaled to JSON. Caller headers are merged in first; Content-Type and
// Authorization are written last and win on conflict. The response body is
// parsed as JSON regardless of status; any 2xx status returns the envelope
// immediately. Non-2xx statuses, transport errors, and parse errors rotate
// to the next token, pausing for fullCycleDelay whenever the rotation wraps
// around, until maxAttempts real attempts are consumed. Empty token slots
// are skipped for free. On exhaustion the notifier receives a summary and
// the returned error wraps ErrAttemptsExhausted.
func (c *Client) Request(ctx context.Context, method, path string, payload any, headers map[string]string) (*Envelope, error) {
	if !hasToken(c.tokens) {
		return nil, ErrNoTokens
	}

	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request payload: %w", err)
		}
		body = b
	}

	reqID := uuid.New().String()[:8]
	url := c.baseURL + path

	var (
		attempts   int
		tokenIdx   int
		lastStatus int
		lastErr    error
		lastEnv    *Envelope
	)
	for attempts < maxAttempts {
		token := c.tokens[tokenIdx]
		if token == "" {
			// An absent token slot does not consume the attempt budget.
			if err := c.rotate(ctx, &tokenIdx); err != nil {
				return nil, err
			}
			continue
		}

		attempts++
		env, status, err := c.attempt(ctx, method, url, body, headers, token)
		if err == nil {
			log.Printf("DEBUG: [%s] %s %s succeeded with status %d on attempt %d", reqID, method, path, status, attempts)
			return env, nil
		}

		lastErr = err
		if status != 0 {
			lastStatus = status
		}
		if env != nil {
			lastEnv = env
		}
		log.Printf("WARN: [%s] %s %s failed (attempt %d/%d, token %s): %v", reqID, method, path, attempts, maxAttempts, redactToken(token), err)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempts == maxAttempts {
			break
		}
		if err := c.rotate(ctx, &tokenIdx); err != nil {
			return nil, err
		}
	}

	summary := exhaustionSummary(method, path, attempts, lastStatus, lastErr, lastEnv)
	log.Printf("WARN: [%s] %s", reqID, summary)
	if c.notifier != nil {
		c.notifier.Notify(ctx, summary)
	}
	return nil, fmt.Errorf("%s: %w", summary, ErrAttemptsExhausted)
}

// rotate advances the token index circularly. A wrap back to index 0 means a
// full cycle through the credential set failed, so the loop is throttled
// before the next attempt.
func (c *Client) rotate(ctx context.Context, idx *int) error {
	*idx = (*idx + 1) % len(c.tokens)
	if *idx == 0 {
		log.Printf("DEBUG: full token cycle exhausted; pausing %s before retrying", fullCycleDelay)
		if err := c.delay(ctx, fullCycleDelay); err != nil {
			return err
		}
	}
	return nil
}

// attempt performs a single HTTP exchange with one token. The returned
// status is 0 when the transport failed before a response arrived.
func (c *Client) attempt(ctx context.Context, method, url string, body []byte, headers map[string]string, token string) (*Envelope, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	if c.email != "" {
		req.Header.Set("X-Auth-Email", c.email)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response body: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &env, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return &env, resp.StatusCode, nil
}

func exhaustionSummary(method, path string, attempts, status int, lastErr error, env *Envelope) string {
	var b strings.Builder
	fmt.Fprintf(&b, "gateway request %s %s failed after %d attempts", method, path, attempts)
	if status != 0 {
		fmt.Fprintf(&b, " (last status %d)", status)
	}
	if lastErr != nil {
		fmt.Fprintf(&b, ": %v", lastErr)
	}
	if env != nil && len(env.Errors) > 0 && env.Errors[0].Message != "" {
		fmt.Fprintf(&b, ": %s", env.Errors[0].Message)
	}
	return b.String()
}

func hasToken(tokens []string) bool {
	for _, t := range tokens {
		if t != "" {
			return true
		}
	}
	return false
}

func redactToken(token string) string {
	if len(token) <= redactLen {
		return "***"
	}
	return token[:redactLen] + "..."
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
