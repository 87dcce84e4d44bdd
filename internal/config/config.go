package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port      string
	Env       string
	LogLevel  string
	PublicURL string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Notification dispatch
	NotifyQueue        string // "memory", "redis" or "sqs"
	NotifyQueueKey     string
	NotifySQSQueueURL  string
	NotifyQueueBuffer  int
	NotifyWorkerCount  int
	NotifyPollInterval time.Duration

	// Doctors
	DefaultDoctorID string
	DoctorJWTSecret string
	DoctorEmails    map[string]string
	DoctorNames     map[string]string

	// Clinic display metadata
	ClinicName     string
	ClinicPhone    string
	ClinicAddress  string
	ClinicTimezone string

	// Email
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	// SMTP relay
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPUseTLS   bool

	// AWS (SES email)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Google Calendar
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRefreshToken string
	GoogleCalendarID   string

	// AI completion provider. Recognised so deployments can keep setting it;
	// the command interpreter does not call out to a model.
	OpenAIAPIKey string

	// HTTP
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		PublicURL: getEnv("PUBLIC_BASE_URL", ""),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		NotifyQueue:        strings.ToLower(strings.TrimSpace(getEnv("NOTIFY_QUEUE", "memory"))),
		NotifyQueueKey:     getEnv("NOTIFY_QUEUE_KEY", "clinic:notify:tasks"),
		NotifySQSQueueURL:  getEnv("NOTIFY_SQS_QUEUE_URL", ""),
		NotifyQueueBuffer:  getEnvAsInt("NOTIFY_QUEUE_BUFFER", 256),
		NotifyWorkerCount:  getEnvAsInt("NOTIFY_WORKER_COUNT", 1),
		NotifyPollInterval: getEnvAsDuration("NOTIFY_POLL_INTERVAL", 2*time.Second),

		DefaultDoctorID: getEnv("DEFAULT_DOCTOR_ID", "drlee"),
		DoctorJWTSecret: getEnv("DOCTOR_JWT_SECRET", ""),
		DoctorEmails:    getEnvAsMap("DOCTOR_EMAILS"),
		DoctorNames:     getEnvAsMap("DOCTOR_NAMES"),

		ClinicName:     getEnv("CLINIC_NAME", "AI Clinic"),
		ClinicPhone:    getEnv("CLINIC_PHONE", "(555) 123-4567"),
		ClinicAddress:  getEnv("CLINIC_ADDRESS", "123 Healthcare Ave, Medical City, MC 12345"),
		ClinicTimezone: getEnv("CLINIC_TIMEZONE", "UTC"),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "auto"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", getEnv("FROM_EMAIL", "noreply@clinic.example.com")),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", ""),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPUseTLS:   getEnvAsBool("SMTP_USE_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRefreshToken: getEnv("GOOGLE_REFRESH_TOKEN", ""),
		GoogleCalendarID:   getEnv("GOOGLE_CALENDAR_ID", "primary"),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),
	}
}

// GoogleCalendarEnabled reports whether calendar credentials are complete.
func (c *Config) GoogleCalendarEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRefreshToken != ""
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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

func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
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

// getEnvAsMap parses "key=value,key2=value2" pairs. Malformed pairs are skipped.
func getEnvAsMap(key string) map[string]string {
	out := make(map[string]string)
	for _, pair := range getEnvAsList(key) {
		k, v, ok := strings.Cut(pair, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}
