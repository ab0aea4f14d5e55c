package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	SupportPal SupportPalConfig
	Analyzer   AnalyzerConfig
	Slack      SlackConfig
	Schedule   ScheduleConfig
	Retry      RetryConfig
	Redis      RedisConfig
	OTel       OTelConfig
	Env        string
	Port       string
	PublicURL  string
}

type SupportPalConfig struct {
	APIURL        string
	APIKey        string
	TicketBaseURL string // Admin UI root used for ticket links
	PageSize      int
	MaxPages      int
	Timeout       time.Duration
	MaxWindow     time.Duration
}

type AnalyzerConfig struct {
	Provider       string // "openai" or "anthropic"
	APIKey         string
	BaseURL        string // Optional: for custom endpoints
	Model          string
	MaxTokens      int
	Timeout        time.Duration
	MaxTickets     int
	MaxInputChars  int
	CategoriesFile string // Optional: YAML catalog overriding the embedded one
}

type SlackConfig struct {
	WebhookURL         string
	OperatorWebhookURL string
	SigningSecret      string // Optional: only needed for slash commands over HTTP
	AppToken           string // Optional: xapp- token, enables Socket Mode
	BotToken           string
	Timeout            time.Duration
}

type ScheduleConfig struct {
	Cron        string
	Timezone    string
	WindowHours int
}

type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type RedisConfig struct {
	URL          string
	StatusStream string
	StreamMaxLen int64
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
	Environment    string // deployment.environment resource attribute
}

type ServiceType string

const (
	ServiceTypeServer ServiceType = "server"
	ServiceTypeCLI    ServiceType = "cli"
)

// Load loads configuration from environment variables.
// In development, it loads from service-specific .env files:
//   - .env.server for the HTTP server and scheduler
//   - .env.cli for tarsctl
//
// Falls back to .env if service-specific file doesn't exist.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("TARS_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	apiURL := strings.TrimRight(getEnv("SUPPORTPAL_API_URL", ""), "/")
	webhookURL := getEnv("SLACK_WEBHOOK_URL", "")

	cfg := Config{
		Env:       getEnv("TARS_ENV", "development"),
		Port:      getEnv("PORT", "8080"),
		PublicURL: getEnv("PUBLIC_URL", ""),
		SupportPal: SupportPalConfig{
			APIURL:        apiURL,
			APIKey:        getEnv("SUPPORTPAL_API_KEY", ""),
			TicketBaseURL: getEnv("SUPPORTPAL_TICKET_BASE_URL", strings.TrimSuffix(apiURL, "/api")),
			PageSize:      getEnvInt("SUPPORTPAL_PAGE_SIZE", 100),
			MaxPages:      getEnvInt("SUPPORTPAL_MAX_PAGES", 50),
			Timeout:       getEnvDuration("SUPPORTPAL_TIMEOUT", 30*time.Second),
			MaxWindow:     getEnvDuration("MAX_WINDOW", 30*24*time.Hour),
		},
		Analyzer: AnalyzerConfig{
			Provider:       getEnv("ANALYZER_LLM_PROVIDER", "openai"),
			APIKey:         getEnv("ANALYZER_LLM_API_KEY", getEnv("OPENAI_API_KEY", "")),
			BaseURL:        getEnv("ANALYZER_LLM_BASE_URL", ""),
			Model:          getEnv("ANALYZER_LLM_MODEL", "gpt-4o"),
			MaxTokens:      getEnvInt("ANALYZER_LLM_MAX_TOKENS", 8192),
			Timeout:        getEnvDuration("ANALYZER_TIMEOUT", 120*time.Second),
			MaxTickets:     getEnvInt("ANALYZER_MAX_TICKETS", 400),
			MaxInputChars:  getEnvInt("ANALYZER_MAX_INPUT_CHARS", 200_000),
			CategoriesFile: getEnv("CATEGORIES_FILE", ""),
		},
		Slack: SlackConfig{
			WebhookURL:         webhookURL,
			OperatorWebhookURL: getEnv("OPERATOR_WEBHOOK_URL", webhookURL),
			SigningSecret:      getEnv("SLACK_SIGNING_SECRET", ""),
			AppToken:           getEnv("SLACK_APP_TOKEN", ""),
			BotToken:           getEnv("SLACK_BOT_TOKEN", ""),
			Timeout:            getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second),
		},
		Schedule: ScheduleConfig{
			Cron:        getEnv("SCHEDULE_CRON", "0 9 * * *"),
			Timezone:    getEnv("SCHEDULE_TIMEZONE", "UTC"),
			WindowHours: getEnvInt("SCHEDULE_WINDOW_HOURS", 24),
		},
		Retry: RetryConfig{
			MaxAttempts:    getEnvInt("RETRY_MAX_ATTEMPTS", 3),
			InitialBackoff: getEnvDuration("RETRY_INITIAL_BACKOFF", time.Second),
			MaxBackoff:     getEnvDuration("RETRY_MAX_BACKOFF", 10*time.Second),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", ""),
			StatusStream: getEnv("STATUS_STREAM", "tars:runs"),
			StreamMaxLen: int64(getEnvInt("STATUS_STREAM_MAX_LEN", 1000)),
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "tars"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			Environment:    getEnv("TARS_ENV", "development"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks that required settings are present and well formed.
func (c Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"SUPPORTPAL_API_URL", c.SupportPal.APIURL},
		{"SUPPORTPAL_API_KEY", c.SupportPal.APIKey},
		{"ANALYZER_LLM_API_KEY (or OPENAI_API_KEY)", c.Analyzer.APIKey},
		{"SLACK_WEBHOOK_URL", c.Slack.WebhookURL},
	}

	var missing []string
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	var errs []error
	if !strings.HasPrefix(c.SupportPal.APIURL, "http://") && !strings.HasPrefix(c.SupportPal.APIURL, "https://") {
		errs = append(errs, errors.New("SUPPORTPAL_API_URL must start with http:// or https://"))
	}
	if !strings.HasPrefix(c.Slack.WebhookURL, "https://") {
		errs = append(errs, errors.New("SLACK_WEBHOOK_URL must start with https://"))
	}
	if c.Slack.OperatorWebhookURL != "" && !strings.HasPrefix(c.Slack.OperatorWebhookURL, "https://") {
		errs = append(errs, errors.New("OPERATOR_WEBHOOK_URL must start with https://"))
	}
	if c.Slack.AppToken != "" && !strings.HasPrefix(c.Slack.AppToken, "xapp-") {
		errs = append(errs, errors.New("SLACK_APP_TOKEN must be an app-level token starting with xapp-"))
	}
	if c.Analyzer.Provider != "openai" && c.Analyzer.Provider != "anthropic" {
		errs = append(errs, fmt.Errorf("ANALYZER_LLM_PROVIDER must be openai or anthropic, got %q", c.Analyzer.Provider))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("RETRY_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Schedule.WindowHours < 1 {
		errs = append(errs, errors.New("SCHEDULE_WINDOW_HOURS must be at least 1"))
	}
	if c.Schedule.WindowHours > int(c.SupportPal.MaxWindow/time.Hour) {
		errs = append(errs, fmt.Errorf("SCHEDULE_WINDOW_HOURS exceeds MAX_WINDOW (%s)", c.SupportPal.MaxWindow))
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("SCHEDULE_TIMEZONE: %w", err))
	}

	return errors.Join(errs...)
}

// Summary returns a secret-free view of the configuration for startup logs.
func (c Config) Summary() map[string]any {
	return map[string]any{
		"env":                 c.Env,
		"port":                c.Port,
		"supportpal_url":      c.SupportPal.APIURL,
		"analyzer_provider":   c.Analyzer.Provider,
		"analyzer_model":      c.Analyzer.Model,
		"slack_configured":    c.Slack.WebhookURL != "",
		"slash_commands":      c.Slack.SigningSecretEnabled(),
		"socket_mode":         c.Slack.SocketModeEnabled(),
		"schedule":            c.Schedule.Cron,
		"schedule_timezone":   c.Schedule.Timezone,
		"window_hours":        c.Schedule.WindowHours,
		"status_stream":       c.Redis.Enabled(),
		"otel":                c.OTel.Enabled(),
		"retry_max_attempts":  c.Retry.MaxAttempts,
		"max_window":          c.SupportPal.MaxWindow.String(),
		"custom_category_set": c.Analyzer.CategoriesFile != "",
	}
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}

func (c SlackConfig) SigningSecretEnabled() bool {
	return c.SigningSecret != ""
}

func (c SlackConfig) SocketModeEnabled() bool {
	return c.AppToken != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
