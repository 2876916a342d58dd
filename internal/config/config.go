package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	UseMemoryQueue bool
	WorkerCount    int

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// SMS delivery
	SMSProvider              string
	TelnyxAPIKey             string
	TelnyxMessagingProfileID string
	TelnyxWebhookSecret      string
	TwilioAccountSID         string
	TwilioAuthToken          string
	TwilioFromNumber         string

	// Voice
	TelnyxConnectionID string
	VoiceWebhookSecret string
	RingTimeout        time.Duration
	DTMFTimeout        time.Duration

	// Call flow
	SessionTTL      time.Duration
	CallTimeLimit   time.Duration
	DefaultTimezone string

	// Coverage waves
	Wave2Delay     time.Duration
	Wave3Delay     time.Duration
	SMSReplyWindow time.Duration

	// AWS
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	DeadLetterQueueURL  string
	JobStatusTable      string
	TranscriptBucket    string
	BedrockModelID      string

	// Admin alerting
	SESFromEmail      string
	SESFromName       string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	AdminJWTSecret     string
	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 5),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		SMSProvider:              strings.ToLower(strings.TrimSpace(getEnv("SMS_PROVIDER", "auto"))),
		TelnyxAPIKey:             getEnv("TELNYX_API_KEY", ""),
		TelnyxMessagingProfileID: getEnv("TELNYX_MESSAGING_PROFILE_ID", ""),
		TelnyxWebhookSecret:      getEnv("TELNYX_WEBHOOK_SECRET", ""),
		TwilioAccountSID:         getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:          getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:         getEnv("TWILIO_FROM_NUMBER", ""),

		TelnyxConnectionID: getEnv("TELNYX_CONNECTION_ID", ""),
		VoiceWebhookSecret: getEnv("VOICE_WEBHOOK_SECRET", ""),
		RingTimeout:        getEnvAsDuration("OUTBOUND_RING_TIMEOUT", 30*time.Second),
		DTMFTimeout:        getEnvAsDuration("OUTBOUND_DTMF_TIMEOUT", 10*time.Second),

		SessionTTL:      getEnvAsDuration("CALL_SESSION_TTL", time.Hour),
		CallTimeLimit:   getEnvAsDuration("CALL_TIME_LIMIT", 10*time.Minute),
		DefaultTimezone: getEnv("DEFAULT_TIMEZONE", "Australia/Sydney"),

		Wave2Delay:     getEnvAsDuration("WAVE2_DELAY", 15*time.Minute),
		Wave3Delay:     getEnvAsDuration("WAVE3_DELAY", 30*time.Minute),
		SMSReplyWindow: getEnvAsDuration("SMS_REPLY_WINDOW", 24*time.Hour),

		AWSRegion:           getEnv("AWS_REGION", "ap-southeast-2"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		DeadLetterQueueURL:  getEnv("DEAD_LETTER_QUEUE_URL", ""),
		JobStatusTable:      getEnv("JOB_STATUS_TABLE", "coverage_jobs"),
		TranscriptBucket:    getEnv("TRANSCRIPT_BUCKET", ""),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),

		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", "Shift Coverage"),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Shift Coverage"),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated environment variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
