package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dajobrague/au-call-system-sub004/pkg/logging"
)

var telnyxSendTracer = otel.Tracer("coverage.internal.messaging.telnyx_send")

const telnyxMessagesURL = "https://api.telnyx.com/v2/messages"

// TelnyxSender posts SMS messages using Telnyx's V2 API.
type TelnyxSender struct {
	apiKey             string
	messagingProfileID string
	endpoint           string
	httpClient         *http.Client
	logger             *logging.Logger
}

// NewTelnyxSender builds a sender for the Telnyx V2 API.
func NewTelnyxSender(apiKey, messagingProfileID string, logger *logging.Logger) *TelnyxSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &TelnyxSender{
		apiKey:             apiKey,
		messagingProfileID: messagingProfileID,
		endpoint:           telnyxMessagesURL,
		httpClient:         &http.Client{Timeout: 10 * time.Second},
		logger:             logger,
	}
}

var _ Sender = (*TelnyxSender)(nil)

// Send dispatches a single SMS via Telnyx, retrying transient failures.
func (s *TelnyxSender) Send(ctx context.Context, msg Message) error {
	if s.apiKey == "" {
		return errors.New("messaging: telnyx api key missing")
	}
	if msg.To == "" {
		return errors.New("messaging: to required")
	}
	if msg.From == "" {
		return errors.New("messaging: from required")
	}
	if strings.TrimSpace(msg.Body) == "" {
		return errors.New("messaging: body required")
	}

	ctx, span := telnyxSendTracer.Start(ctx, "messaging.telnyx.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("coverage.provider_id", msg.ProviderID),
		attribute.String("coverage.to", msg.To),
	)

	payload := map[string]interface{}{
		"from": msg.From,
		"to":   msg.To,
		"text": msg.Body,
	}
	if s.messagingProfileID != "" {
		payload["messaging_profile_id"] = s.messagingProfileID
	}
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("messaging: marshal telnyx payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(bodyBytes))
		if err != nil {
			lastErr = err
			break
		}
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				if msg.Metadata != nil && len(body) > 0 {
					var parsed struct {
						Data struct {
							ID     string `json:"id"`
							Status string `json:"status"`
						} `json:"data"`
					}
					if err := json.Unmarshal(body, &parsed); err == nil {
						if parsed.Data.ID != "" {
							msg.Metadata["provider_message_id"] = parsed.Data.ID
						}
						if parsed.Data.Status != "" {
							msg.Metadata["provider_status"] = parsed.Data.Status
						}
					}
				}
				s.logger.Info("telnyx sms sent", "provider_id", msg.ProviderID, "to", msg.To, "from", msg.From)
				return nil
			}
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return fmt.Errorf("messaging: telnyx send failed: status %d: %s", resp.StatusCode, string(body))
			}
			lastErr = fmt.Errorf("messaging: telnyx send failed: status %d", resp.StatusCode)
		}

		if attempt < 3 {
			time.Sleep(time.Duration(200+rand.Intn(300)) * time.Millisecond)
		}
	}

	if lastErr != nil {
		span.RecordError(lastErr)
		s.logger.Error("failed to send telnyx sms", "error", lastErr, "provider_id", msg.ProviderID, "to", msg.To)
	}
	return lastErr
}
