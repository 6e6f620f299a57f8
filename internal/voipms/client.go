// Package voipms wraps the voip.ms REST API for outbound SMS.
package voipms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brasshelm/birdtext/internal/config"
	"github.com/brasshelm/birdtext/pkg/phone"
)

const requestTimeout = 10 * time.Second

// Client sends SMS through the voip.ms REST endpoint
type Client struct {
	apiURL      string
	apiUsername string
	apiPassword string
	did         string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient creates a voip.ms client from configuration
func NewClient(cfg *config.VoipMsConfig, logger *slog.Logger) *Client {
	return &Client{
		apiURL:      cfg.APIURL,
		apiUsername: cfg.APIUsername,
		apiPassword: cfg.APIPassword,
		did:         cfg.DID,
		httpClient:  &http.Client{Timeout: requestTimeout},
		logger:      logger,
	}
}

// DID returns the sending number configured for this account
func (c *Client) DID() string {
	return c.did
}

type apiResponse struct {
	Status string          `json:"status"`
	SMS    json.RawMessage `json:"sms"` // message ID, number or string depending on endpoint version
	Error  string          `json:"error"`
}

func (r *apiResponse) messageID() string {
	return strings.Trim(string(r.SMS), `"`)
}

// SendSMS sends a message to a destination number and returns the
// provider's message ID. The destination is normalized to the 10-digit
// format voip.ms expects.
func (c *Client) SendSMS(ctx context.Context, to, message string) (string, error) {
	if c.apiUsername == "" || c.apiPassword == "" || c.did == "" {
		return "", fmt.Errorf("voipms credentials not configured")
	}

	params := url.Values{}
	params.Set("api_username", c.apiUsername)
	params.Set("api_password", c.apiPassword)
	params.Set("method", "sendSMS")
	params.Set("did", c.did)
	params.Set("dst", phone.ForProvider(to))
	params.Set("message", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(params.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build voipms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("voipms request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("voipms api returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("failed to read voipms response: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to decode voipms response: %w", err)
	}

	if apiResp.Status != "success" {
		if apiResp.Error != "" {
			return "", fmt.Errorf("voipms api error: %s", apiResp.Error)
		}
		return "", fmt.Errorf("voipms api error: %s", apiResp.Status)
	}

	messageID := apiResp.messageID()
	if messageID == "" {
		return "", fmt.Errorf("voipms api did not return a message id")
	}

	c.logger.Debug("sms sent via voipms", slog.String("message_id", messageID))
	return messageID, nil
}
