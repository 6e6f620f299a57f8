// Package csrfclient implements the client half of the double-submit CSRF
// protocol: it caches the current token, attaches it to outgoing mutating
// requests, and transparently refreshes and retries once when the server
// rejects a stale token.
package csrfclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	// HeaderName is the request header the server validates against the cookie
	HeaderName = "X-CSRF-Token"

	// staleMargin treats a token as expired this long before it actually is,
	// covering clock skew and in-flight request time
	staleMargin = 60 * time.Second

	baseBackoff = 1 * time.Second
	maxBackoff  = 30 * time.Second

	// rejectionCode is the machine-readable code the server sends on CSRF 403s
	rejectionCode = "CSRF_INVALID"
)

// tokenResponse is the issuance endpoint's body. expiresAt is epoch millis.
type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

// Manager caches a CSRF token and wraps requests with it. The underlying
// http.Client must carry a cookie jar so the csrf_token and session cookies
// flow alongside the header.
//
// Safe for concurrent use. Concurrent callers may trigger duplicate token
// fetches; that is harmless and deliberately not deduplicated.
type Manager struct {
	endpoint   string
	httpClient *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	failures  int
	lastFetch time.Time

	sleep func(time.Duration)
}

// New creates a Manager fetching tokens from endpoint via client
func New(endpoint string, client *http.Client) *Manager {
	if client == nil {
		client = http.DefaultClient
	}
	return &Manager{
		endpoint:   endpoint,
		httpClient: client,
		sleep:      time.Sleep,
	}
}

// Token returns the cached token, fetching a fresh one when the cache is
// empty or within the staleness margin of expiry. Fetch failures back off
// exponentially (1s, 2s, 4s ... capped at 30s) so a down issuance endpoint
// does not cause a request storm; any success resets the backoff.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" && time.Now().Before(m.expiresAt.Add(-staleMargin)) {
		return m.token, nil
	}

	if m.failures > 0 {
		// min(1s * 2^failures, 30s)
		backoff := baseBackoff << m.failures
		if backoff > maxBackoff || backoff <= 0 {
			backoff = maxBackoff
		}
		if wait := backoff - time.Since(m.lastFetch); wait > 0 {
			m.sleep(wait)
		}
	}
	m.lastFetch = time.Now()

	tok, err := m.fetch(ctx)
	if err != nil {
		m.failures++
		return "", err
	}

	m.failures = 0
	m.token = tok.Token
	m.expiresAt = time.UnixMilli(tok.ExpiresAt)
	return m.token, nil
}

// Refresh discards the cached token and fetches a new one
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.token = ""
	m.expiresAt = time.Time{}
	m.mu.Unlock()
	return m.Token(ctx)
}

func (m *Manager) fetch(ctx context.Context) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("csrf token fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("csrf token fetch failed: status %d", resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tok.Token == "" {
		return nil, fmt.Errorf("token endpoint returned empty token")
	}

	return &tok, nil
}

// Do sends the request with the CSRF header attached. If the server answers
// 403 with the CSRF rejection code, the cached token is discarded, one fresh
// token is fetched, and the request is retried exactly once; whatever that
// retry yields is returned as-is. Requests with a body must be replayable
// (GetBody set, which http.NewRequest does for common body types).
func (m *Manager) Do(req *http.Request) (*http.Response, error) {
	token, err := m.Token(req.Context())
	if err != nil {
		return nil, err
	}

	attempt, err := cloneRequest(req)
	if err != nil {
		return nil, err
	}
	attempt.Header.Set(HeaderName, token)

	resp, err := m.httpClient.Do(attempt)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusForbidden {
		return resp, nil
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}

	if !isCSRFRejection(body) {
		// Not ours: hand the 403 back with its body intact
		resp.Body = io.NopCloser(bytes.NewReader(body))
		return resp, nil
	}

	newToken, err := m.Refresh(req.Context())
	if err != nil {
		return nil, err
	}

	retry, err := cloneRequest(req)
	if err != nil {
		return nil, err
	}
	retry.Header.Set(HeaderName, newToken)

	return m.httpClient.Do(retry)
}

// cloneRequest produces a sendable copy with a fresh body reader
func cloneRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("request body is not replayable")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("failed to rewind request body: %w", err)
	}
	clone.Body = body
	return clone, nil
}

// isCSRFRejection reports whether a 403 body carries the CSRF code
func isCSRFRejection(body []byte) bool {
	var parsed struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return false
	}
	return parsed.Code == rejectionCode || strings.Contains(parsed.Error, "CSRF")
}
