// Package bootstrap wires the coverage pipeline out of configuration: stores,
// queue, arbiter, call flow, outbound engine and the HTTP surface. The API
// and worker binaries both build from here so their wiring cannot drift.
package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/dajobrague/au-call-system-sub004/internal/config"
	"github.com/dajobrague/au-call-system-sub004/internal/messaging"
	"github.com/dajobrague/au-call-system-sub004/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		return nil
	}
	return client
}

// BuildSMSSender picks the wave/confirmation SMS transport from config:
// Telnyx, Twilio, or Telnyx with Twilio failover when both are configured.
func BuildSMSSender(cfg *appconfig.Config, logger *logging.Logger) messaging.Sender {
	if cfg == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	sender, provider, reason := messaging.BuildSender(messaging.ProviderSelectionConfig{
		Preference:       cfg.SMSProvider,
		TelnyxAPIKey:     cfg.TelnyxAPIKey,
		TelnyxProfileID:  cfg.TelnyxMessagingProfileID,
		TwilioAccountSID: cfg.TwilioAccountSID,
		TwilioAuthToken:  cfg.TwilioAuthToken,
		TwilioFromNumber: cfg.TwilioFromNumber,
	}, logger)
	if sender == nil {
		logger.Warn("no SMS transport configured; waves will fail to send", "reason", reason)
		return nil
	}
	logger.Info("SMS transport selected", "provider", provider)
	return sender
}
