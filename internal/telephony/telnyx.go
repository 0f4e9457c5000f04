package telephony

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/quickagent/callminder/pkg/logging"
)

const (
	defaultTelnyxBaseURL = "https://api.telnyx.com/v2"
	telnyxCallTimeout    = 15 * time.Second
	defaultMaxSkew       = 5 * time.Minute
)

// TelnyxClient places outbound calls through the Telnyx Call Control API and
// verifies inbound webhook signatures.
type TelnyxClient struct {
	apiKey        string
	connectionID  string
	webhookSecret string
	baseURL       string
	maxSkew       time.Duration
	httpClient    *http.Client
	logger        *logging.Logger
}

// TelnyxConfig configures the Telnyx gateway client.
type TelnyxConfig struct {
	// APIKey is the Telnyx API key (Bearer token).
	APIKey string
	// ConnectionID is the Call Control application id calls originate from.
	ConnectionID string
	// WebhookSecret signs inbound webhook deliveries.
	WebhookSecret string
	// BaseURL overrides the Telnyx API base URL (for testing).
	BaseURL string
	// MaxSkew bounds accepted webhook timestamp age.
	MaxSkew time.Duration
	// HTTPClient overrides the default HTTP client.
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// NewTelnyxClient creates a Telnyx gateway client.
func NewTelnyxClient(cfg TelnyxConfig) (*TelnyxClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("telnyx: API key required")
	}
	if strings.TrimSpace(cfg.ConnectionID) == "" {
		return nil, errors.New("telnyx: connection ID required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultTelnyxBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: telnyxCallTimeout}
	}
	maxSkew := cfg.MaxSkew
	if maxSkew <= 0 {
		maxSkew = defaultMaxSkew
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &TelnyxClient{
		apiKey:        cfg.APIKey,
		connectionID:  cfg.ConnectionID,
		webhookSecret: cfg.WebhookSecret,
		baseURL:       strings.TrimRight(baseURL, "/"),
		maxSkew:       maxSkew,
		httpClient:    httpClient,
		logger:        logger,
	}, nil
}

type telnyxCallRequest struct {
	ConnectionID string `json:"connection_id"`
	To           string `json:"to"`
	From         string `json:"from"`
	ClientState  string `json:"client_state,omitempty"`
}

type telnyxCallResponse struct {
	Data struct {
		CallControlID string `json:"call_control_id"`
		CallSessionID string `json:"call_session_id"`
		IsAlive       bool   `json:"is_alive"`
	} `json:"data"`
}

// OriginateCall requests Telnyx to place an outbound call.
func (c *TelnyxClient) OriginateCall(ctx context.Context, req OriginateRequest) (string, error) {
	if req.From == "" || req.To == "" {
		return "", errors.New("telnyx: from and to phone numbers required")
	}

	body, err := json.Marshal(telnyxCallRequest{
		ConnectionID: c.connectionID,
		To:           req.To,
		From:         req.From,
		ClientState:  req.ClientState,
	})
	if err != nil {
		return "", fmt.Errorf("telnyx: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/calls", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("telnyx: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.Info("telnyx: originating call",
		"from", MaskPhone(req.From),
		"to", MaskPhone(req.To),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("telnyx: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("telnyx: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("telnyx: API error",
			"status", resp.StatusCode,
			"body", string(respBody),
		)
		return "", fmt.Errorf("telnyx: API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp telnyxCallResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("telnyx: decode response: %w", err)
	}
	if apiResp.Data.CallSessionID == "" {
		return "", errors.New("telnyx: response missing call_session_id")
	}

	c.logger.Info("telnyx: call originated",
		"session_id", apiResp.Data.CallSessionID,
		"to", MaskPhone(req.To),
	)
	return apiResp.Data.CallSessionID, nil
}

// VerifyWebhookSignature checks the HMAC signature on an inbound webhook.
func (c *TelnyxClient) VerifyWebhookSignature(timestamp, signature string, payload []byte) error {
	if c.webhookSecret == "" {
		return errors.New("telnyx: webhook secret not configured")
	}
	ts := strings.TrimSpace(timestamp)
	if ts == "" {
		return errors.New("telnyx: missing signature timestamp")
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("telnyx: invalid signature timestamp: %w", err)
	}
	sentAt := time.Unix(sec, 0)
	if diff := time.Since(sentAt); diff > c.maxSkew || diff < -c.maxSkew {
		return fmt.Errorf("telnyx: signature timestamp skew %s exceeds limit", diff)
	}
	unsigned := ts + "." + string(payload)
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write([]byte(unsigned))
	expected := hex.EncodeToString(mac.Sum(nil))
	actual := strings.ToLower(strings.TrimSpace(signature))
	if actual == "" {
		return errors.New("telnyx: missing signature header")
	}
	if !hmac.Equal([]byte(expected), []byte(actual)) {
		return errors.New("telnyx: signature mismatch")
	}
	return nil
}

// MaskPhone hides all but the last four digits of a phone number for logs.
func MaskPhone(value string) string {
	digits := sanitizePhone(value)
	if len(digits) <= 4 {
		return "****"
	}
	return "***" + digits[len(digits)-4:]
}
