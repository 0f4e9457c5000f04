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
	DatabaseURL   string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Telephony gateway (Telnyx Call Control)
	TelnyxAPIKey        string
	TelnyxConnectionID  string
	TelnyxFromNumber    string
	TelnyxWebhookSecret string

	// Reminder scheduling
	PollInterval        time.Duration
	DayBeforeLead       time.Duration
	ThirtyMinLead       time.Duration
	ReminderWindow      time.Duration
	MaxDispatchAttempts int

	// Policy: when true, a confirmed appointment no longer receives the
	// thirty-minute reminder.
	ConfirmedSuppressesThirtyMin bool

	// Call flow
	InputTimeout   time.Duration
	MaxReprompts   int
	TransferNumber string

	// Conversational interpreter
	AWSRegion        string
	BedrockModelID   string
	InterpretTimeout time.Duration

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	pollInterval := getEnvAsDuration("REMINDER_POLL_INTERVAL", 15*time.Minute)
	// The eligibility window must be at least as wide as the poll interval
	// or appointments can slip between two ticks.
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		TelnyxAPIKey:        getEnv("TELNYX_API_KEY", ""),
		TelnyxConnectionID:  getEnv("TELNYX_CONNECTION_ID", ""),
		TelnyxFromNumber:    getEnv("TELNYX_FROM_NUMBER", ""),
		TelnyxWebhookSecret: getEnv("TELNYX_WEBHOOK_SECRET", ""),

		PollInterval:        pollInterval,
		DayBeforeLead:       getEnvAsDuration("DAY_BEFORE_LEAD", 24*time.Hour),
		ThirtyMinLead:       getEnvAsDuration("THIRTY_MIN_LEAD", 30*time.Minute),
		ReminderWindow:      getEnvAsDuration("REMINDER_WINDOW", pollInterval),
		MaxDispatchAttempts: getEnvAsInt("MAX_DISPATCH_ATTEMPTS", 3),

		ConfirmedSuppressesThirtyMin: getEnvAsBool("CONFIRMED_SUPPRESSES_THIRTY_MIN", false),

		InputTimeout:   getEnvAsDuration("INPUT_TIMEOUT", 5*time.Second),
		MaxReprompts:   getEnvAsInt("MAX_REPROMPTS", 3),
		TransferNumber: getEnv("TRANSFER_NUMBER", ""),

		AWSRegion:        getEnv("AWS_REGION", "us-east-1"),
		BedrockModelID:   getEnv("BEDROCK_MODEL_ID", ""),
		InterpretTimeout: getEnvAsDuration("INTERPRET_TIMEOUT", 8*time.Second),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
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

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
