// Package telephony wraps the Telnyx Call Control API: placing calls, driving
// in-call prompts and gathers, and parsing the webhook events Telnyx sends
// back. Callers above this package never see provider wire formats.
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

	"github.com/dajobrague/au-call-system-sub004/internal/phone"
	"github.com/dajobrague/au-call-system-sub004/pkg/logging"
)

const (
	defaultBaseURL = "https://api.telnyx.com/v2"
	defaultTimeout = 15 * time.Second
	defaultSkew    = 5 * time.Minute
	maxRetries     = 2
)

// Client issues Call Control commands against the Telnyx API.
type Client struct {
	apiKey        string
	connectionID  string
	baseURL       string
	webhookSecret string
	maxSkew       time.Duration
	httpClient    *http.Client
	logger        *logging.Logger
}

// Config configures the telephony client.
type Config struct {
	APIKey       string
	ConnectionID string
	// WebhookSecret signs inbound webhooks; empty disables verification
	// (local development only).
	WebhookSecret string
	MaxSkew       time.Duration
	BaseURL       string
	HTTPClient    *http.Client
	Logger        *logging.Logger
}

// NewClient creates a telephony client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("telephony: API key required")
	}
	if strings.TrimSpace(cfg.ConnectionID) == "" {
		return nil, fmt.Errorf("telephony: connection ID required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	maxSkew := cfg.MaxSkew
	if maxSkew <= 0 {
		maxSkew = defaultSkew
	}
	return &Client{
		apiKey:        cfg.APIKey,
		connectionID:  cfg.ConnectionID,
		baseURL:       strings.TrimRight(baseURL, "/"),
		webhookSecret: cfg.WebhookSecret,
		maxSkew:       maxSkew,
		httpClient:    httpClient,
		logger:        logger,
	}, nil
}

// DialRequest places an outbound call.
type DialRequest struct {
	From string
	To   string
	// ClientState is carried opaquely through every webhook for this call.
	ClientState string
	// TimeoutSecs bounds ringing before the call counts as unanswered.
	TimeoutSecs int
}

// DialResponse identifies the placed call.
type DialResponse struct {
	CallControlID string `json:"call_control_id"`
	CallLegID     string `json:"call_leg_id"`
	CallSessionID string `json:"call_session_id"`
}

type dialPayload struct {
	ConnectionID string `json:"connection_id"`
	To           string `json:"to"`
	From         string `json:"from"`
	ClientState  string `json:"client_state,omitempty"`
	TimeoutSecs  int    `json:"timeout_secs,omitempty"`
}

// Dial places an outbound call. Webhooks for the call arrive at the
// connection's configured URL with the given client state echoed back.
func (c *Client) Dial(ctx context.Context, req DialRequest) (*DialResponse, error) {
	if req.From == "" || req.To == "" {
		return nil, fmt.Errorf("telephony: from and to numbers required")
	}
	c.logger.Info("telephony: placing outbound call",
		"from", phone.Mask(req.From), "to", phone.Mask(req.To))

	var out struct {
		Data DialResponse `json:"data"`
	}
	err := c.post(ctx, "/calls", dialPayload{
		ConnectionID: c.connectionID,
		To:           req.To,
		From:         req.From,
		ClientState:  req.ClientState,
		TimeoutSecs:  req.TimeoutSecs,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// Answer picks up an inbound call. Until answered, no media commands are
// accepted for the call.
func (c *Client) Answer(ctx context.Context, callControlID string) error {
	return c.action(ctx, callControlID, "answer", struct{}{})
}

// speakPayload is shared by Speak and the two gather variants.
type speakPayload struct {
	Payload       string `json:"payload"`
	Voice         string `json:"voice"`
	Language      string `json:"language"`
	ClientState   string `json:"client_state,omitempty"`
	ValidDigits   string `json:"valid_digits,omitempty"`
	MaximumDigits int    `json:"maximum_digits,omitempty"`
	TimeoutMillis int    `json:"timeout_millis,omitempty"`
	Transcribe    bool   `json:"transcribe,omitempty"`
}

const (
	voiceName     = "female"
	voiceLanguage = "en-AU"
)

// Speak plays a synthesised prompt without gathering input.
func (c *Client) Speak(ctx context.Context, callControlID, text string) error {
	return c.action(ctx, callControlID, "speak", speakPayload{
		Payload: text, Voice: voiceName, Language: voiceLanguage,
	})
}

// GatherSpeech plays the prompt and collects a spoken response, delivered
// later as a speech event.
func (c *Client) GatherSpeech(ctx context.Context, callControlID, prompt string, timeout time.Duration) error {
	return c.action(ctx, callControlID, "gather_using_speak", speakPayload{
		Payload:       prompt,
		Voice:         voiceName,
		Language:      voiceLanguage,
		Transcribe:    true,
		TimeoutMillis: int(timeout.Milliseconds()),
	})
}

// GatherDTMF plays the prompt and collects keypad digits, delivered later as
// a DTMF event.
func (c *Client) GatherDTMF(ctx context.Context, callControlID, prompt, validDigits string, maxDigits int, timeout time.Duration) error {
	return c.action(ctx, callControlID, "gather_using_speak", speakPayload{
		Payload:       prompt,
		Voice:         voiceName,
		Language:      voiceLanguage,
		ValidDigits:   validDigits,
		MaximumDigits: maxDigits,
		TimeoutMillis: int(timeout.Milliseconds()),
	})
}

// Transfer bridges the call to another number.
func (c *Client) Transfer(ctx context.Context, callControlID, to string) error {
	if to == "" {
		return fmt.Errorf("telephony: transfer target required")
	}
	c.logger.Info("telephony: transferring call",
		"call_control_id", callControlID, "to", phone.Mask(to))
	return c.action(ctx, callControlID, "transfer", struct {
		To string `json:"to"`
	}{To: to})
}

// Hangup ends the call.
func (c *Client) Hangup(ctx context.Context, callControlID string) error {
	return c.action(ctx, callControlID, "hangup", struct{}{})
}

func (c *Client) action(ctx context.Context, callControlID, name string, payload any) error {
	if callControlID == "" {
		return fmt.Errorf("telephony: call control ID required")
	}
	path := fmt.Sprintf("/calls/%s/actions/%s", callControlID, name)
	return c.post(ctx, path, payload, nil)
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telephony: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("telephony: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("telephony: http request: %w", err)
			continue
		}
		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("telephony: read response: %w", err)
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("telephony: API returned %d: %s", resp.StatusCode, string(respBody))
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("telephony: API returned %d: %s", resp.StatusCode, string(respBody))
		}
		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("telephony: decode response: %w", err)
			}
		}
		return nil
	}
	return lastErr
}

// VerifyWebhookSignature validates the HMAC signature Telnyx attaches to
// webhook deliveries. Verification is skipped when no secret is configured.
func (c *Client) VerifyWebhookSignature(timestamp, signature string, payload []byte) error {
	if c.webhookSecret == "" {
		return nil
	}
	ts := strings.TrimSpace(timestamp)
	if ts == "" {
		return errors.New("telephony: missing signature timestamp")
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("telephony: invalid signature timestamp: %w", err)
	}
	sentAt := time.Unix(sec, 0)
	if diff := time.Since(sentAt); diff > c.maxSkew || diff < -c.maxSkew {
		return fmt.Errorf("telephony: signature timestamp skew %s exceeds limit", diff)
	}
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write([]byte(ts + "." + string(payload)))
	expected := hex.EncodeToString(mac.Sum(nil))
	actual := strings.ToLower(strings.TrimSpace(signature))
	if actual == "" {
		return errors.New("telephony: missing signature header")
	}
	if !hmac.Equal([]byte(expected), []byte(actual)) {
		return errors.New("telephony: signature mismatch")
	}
	return nil
}
