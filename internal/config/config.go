package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultSystemPrompt is used when neither DESKCHAT_SYSTEM_PROMPT nor
// DESKCHAT_SYSTEM_PROMPT_FILE is set.
const DefaultSystemPrompt = `You are a friendly and helpful customer support agent for an online store.
Answer questions about orders, shipping, returns, refunds and payments clearly and concisely.
If you do not know the answer, say so and suggest contacting support@example.com.
Never invent order details or policies.`

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Server    ServerConfig
	Chat      ChatConfig
	LLM       LLMConfig
	Retry     RetryConfig
	RateLimit RateLimitConfig
	Slack     SlackConfig
	Telemetry TelemetryConfig
}

// DatabaseConfig selects and configures the conversation store.
type DatabaseConfig struct {
	Driver     string
	Host       string
	Port       int
	User       string
	Password   string //nolint:gosec // G117: DB connection config
	DBName     string
	SSLMode    string
	MaxConns   int
	SQLitePath string
}

// RedisConfig holds Redis connection settings. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
	WebDir       string
	BodyLimit    int64
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Only enable behind a proxy that overwrites those headers.
	TrustProxy   bool
}

// ChatConfig holds turn orchestration settings.
type ChatConfig struct {
	MaxMessageLength int
	HistoryWindow    int
	SystemPrompt     string
}

// LLMConfig selects the completion provider and its generation parameters.
type LLMConfig struct {
	Provider       string
	APIKey         string //nolint:gosec // G117: provider credential config
	Model          string
	BaseURL        string
	MaxTokens      int
	Temperature    float64
	RPS            float64
	// AttemptTimeout bounds a single upstream call.
	AttemptTimeout time.Duration
}

// RetryConfig bounds the completion retry loop.
type RetryConfig struct {
	Retries  int
	MinDelay time.Duration
	MaxDelay time.Duration
	Factor   float64
}

// RateLimitConfig holds the per-client fixed-window limits.
type RateLimitConfig struct {
	Window  time.Duration
	General int
	Message int
}

// SlackConfig holds upstream failure alert settings.
type SlackConfig struct {
	BotToken      string
	AlertChannel  string
	AlertCooldown time.Duration
}

// Enabled reports whether Slack alerts are configured.
func (c SlackConfig) Enabled() bool { return c.BotToken != "" && c.AlertChannel != "" }

// TelemetryConfig holds tracing export settings.
type TelemetryConfig struct {
	OTLPEndpoint string
	ServiceName  string
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only. The provider API key has no
// default and must be set.
func Load() (*Config, error) {
	cfg := &Config{}

	// The first parse error is kept; later parses return their fallback.
	var err error
	parseInt := func(key string, fallback int) int {
		if err != nil {
			return fallback
		}
		var v int
		v, err = getEnvInt(key, fallback)
		return v
	}
	parseDuration := func(key string, fallback time.Duration) time.Duration {
		if err != nil {
			return fallback
		}
		var v time.Duration
		v, err = getEnvDuration(key, fallback)
		return v
	}
	parseBool := func(key string, fallback bool) bool {
		if err != nil {
			return fallback
		}
		var v bool
		v, err = getEnvBool(key, fallback)
		return v
	}
	parseFloat := func(key string, fallback float64) float64 {
		if err != nil {
			return fallback
		}
		var v float64
		v, err = getEnvFloat(key, fallback)
		return v
	}

	cfg.Database = DatabaseConfig{
		Driver:     getEnv("DESKCHAT_DB_DRIVER", "sqlite"),
		Host:       getEnv("DESKCHAT_DB_HOST", "localhost"),
		Port:       parseInt("DESKCHAT_DB_PORT", 5432),
		User:       getEnv("DESKCHAT_DB_USER", "deskchat"),
		Password:   getEnv("DESKCHAT_DB_PASSWORD", ""),
		DBName:     getEnv("DESKCHAT_DB_NAME", "deskchat_dev"),
		SSLMode:    getEnv("DESKCHAT_DB_SSLMODE", "disable"),
		MaxConns:   parseInt("DESKCHAT_DB_MAX_CONNS", 10),
		SQLitePath: getEnv("DESKCHAT_SQLITE_PATH", "chat.db"),
	}
	cfg.Redis = RedisConfig{
		Addr:     getEnv("DESKCHAT_REDIS_ADDR", ""),
		Password: getEnv("DESKCHAT_REDIS_PASSWORD", ""),
		DB:       parseInt("DESKCHAT_REDIS_DB", 0),
	}

	origins := getEnvList("DESKCHAT_CORS_ORIGINS", []string{"http://localhost:5173", "http://127.0.0.1:5173"})
	if frontend := getEnv("DESKCHAT_FRONTEND_URL", ""); frontend != "" && !slices.Contains(origins, frontend) {
		origins = append(origins, frontend)
	}
	cfg.Server = ServerConfig{
		Addr:         getEnv("DESKCHAT_SERVER_ADDR", ":3001"),
		ReadTimeout:  parseDuration("DESKCHAT_SERVER_READ_TIMEOUT", 10*time.Second),
		WriteTimeout: parseDuration("DESKCHAT_SERVER_WRITE_TIMEOUT", 60*time.Second),
		CORSOrigins:  origins,
		WebDir:       getEnv("DESKCHAT_WEB_DIR", ""),
		BodyLimit:    int64(parseInt("DESKCHAT_BODY_LIMIT", 10*1024)),
		TrustProxy:   parseBool("DESKCHAT_TRUST_PROXY", false),
	}

	cfg.Chat = ChatConfig{
		MaxMessageLength: parseInt("DESKCHAT_MAX_MESSAGE_LENGTH", 500),
		HistoryWindow:    parseInt("DESKCHAT_HISTORY_WINDOW", 10),
	}
	cfg.LLM = LLMConfig{
		Provider:       getEnv("DESKCHAT_LLM_PROVIDER", "anthropic"),
		APIKey:         getEnv("DESKCHAT_LLM_API_KEY", ""),
		Model:          getEnv("DESKCHAT_LLM_MODEL", ""),
		BaseURL:        getEnv("DESKCHAT_LLM_BASE_URL", ""),
		MaxTokens:      parseInt("DESKCHAT_LLM_MAX_TOKENS", 500),
		Temperature:    parseFloat("DESKCHAT_LLM_TEMPERATURE", 0.7),
		RPS:            parseFloat("DESKCHAT_LLM_RPS", 0),
		AttemptTimeout: parseDuration("DESKCHAT_LLM_ATTEMPT_TIMEOUT", 12*time.Second),
	}
	cfg.Retry = RetryConfig{
		Retries:  parseInt("DESKCHAT_RETRY_MAX", 3),
		MinDelay: parseDuration("DESKCHAT_RETRY_MIN_DELAY", time.Second),
		MaxDelay: parseDuration("DESKCHAT_RETRY_MAX_DELAY", 5*time.Second),
		Factor:   parseFloat("DESKCHAT_RETRY_FACTOR", 2),
	}
	cfg.RateLimit = RateLimitConfig{
		Window:  parseDuration("DESKCHAT_RATE_LIMIT_WINDOW", time.Minute),
		General: parseInt("DESKCHAT_RATE_LIMIT_GENERAL", 30),
		Message: parseInt("DESKCHAT_RATE_LIMIT_MESSAGE", 20),
	}
	cfg.Slack = SlackConfig{
		BotToken:      getEnv("DESKCHAT_SLACK_BOT_TOKEN", ""),
		AlertChannel:  getEnv("DESKCHAT_SLACK_ALERT_CHANNEL", ""),
		AlertCooldown: parseDuration("DESKCHAT_SLACK_ALERT_COOLDOWN", time.Minute),
	}
	cfg.Telemetry = TelemetryConfig{
		OTLPEndpoint: getEnv("DESKCHAT_OTLP_ENDPOINT", ""),
		ServiceName:  getEnv("DESKCHAT_SERVICE_NAME", "deskchat"),
	}
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	prompt, err := loadSystemPrompt()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	cfg.Chat.SystemPrompt = prompt

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// loadSystemPrompt prefers the inline variable, then the file, then the default.
func loadSystemPrompt() (string, error) {
	if p := getEnv("DESKCHAT_SYSTEM_PROMPT", ""); p != "" {
		return p, nil
	}
	path := getEnv("DESKCHAT_SYSTEM_PROMPT_FILE", "")
	if path == "" {
		return DefaultSystemPrompt, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading DESKCHAT_SYSTEM_PROMPT_FILE: %w", err)
	}
	p := strings.TrimSpace(string(b))
	if p == "" {
		return "", errors.New("DESKCHAT_SYSTEM_PROMPT_FILE is empty")
	}
	return p, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	if c.LLM.APIKey == "" {
		return errors.New("DESKCHAT_LLM_API_KEY is required")
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.SSLMode == "disable" {
			log.Warn().Msg("DESKCHAT_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
		}
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("DESKCHAT_DB_PORT must be 1-65535, got %d", c.Database.Port)
		}
		if c.Database.MaxConns < 1 {
			return fmt.Errorf("DESKCHAT_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return errors.New("DESKCHAT_SQLITE_PATH is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("DESKCHAT_DB_DRIVER must be postgres or sqlite, got %q", c.Database.Driver)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("DESKCHAT_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("DESKCHAT_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Server.BodyLimit < 1 {
		return fmt.Errorf("DESKCHAT_BODY_LIMIT must be >= 1, got %d", c.Server.BodyLimit)
	}

	if c.Chat.MaxMessageLength < 1 {
		return fmt.Errorf("DESKCHAT_MAX_MESSAGE_LENGTH must be >= 1, got %d", c.Chat.MaxMessageLength)
	}
	if c.Chat.HistoryWindow < 0 {
		return fmt.Errorf("DESKCHAT_HISTORY_WINDOW must be >= 0, got %d", c.Chat.HistoryWindow)
	}

	if c.LLM.MaxTokens < 1 {
		return fmt.Errorf("DESKCHAT_LLM_MAX_TOKENS must be >= 1, got %d", c.LLM.MaxTokens)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("DESKCHAT_LLM_TEMPERATURE must be within 0-2, got %g", c.LLM.Temperature)
	}
	if c.LLM.RPS < 0 {
		return fmt.Errorf("DESKCHAT_LLM_RPS must be >= 0, got %g", c.LLM.RPS)
	}
	if c.LLM.AttemptTimeout <= 0 {
		return fmt.Errorf("DESKCHAT_LLM_ATTEMPT_TIMEOUT must be positive, got %s", c.LLM.AttemptTimeout)
	}

	if c.Retry.Retries < 0 {
		return fmt.Errorf("DESKCHAT_RETRY_MAX must be >= 0, got %d", c.Retry.Retries)
	}
	if c.Retry.MinDelay <= 0 {
		return fmt.Errorf("DESKCHAT_RETRY_MIN_DELAY must be positive, got %s", c.Retry.MinDelay)
	}
	if c.Retry.MaxDelay < c.Retry.MinDelay {
		return fmt.Errorf("DESKCHAT_RETRY_MAX_DELAY must be >= DESKCHAT_RETRY_MIN_DELAY, got %s", c.Retry.MaxDelay)
	}
	if c.Retry.Factor < 1 {
		return fmt.Errorf("DESKCHAT_RETRY_FACTOR must be >= 1, got %g", c.Retry.Factor)
	}

	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("DESKCHAT_RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimit.Window)
	}
	if c.RateLimit.General < 1 {
		return fmt.Errorf("DESKCHAT_RATE_LIMIT_GENERAL must be >= 1, got %d", c.RateLimit.General)
	}
	if c.RateLimit.Message < 1 {
		return fmt.Errorf("DESKCHAT_RATE_LIMIT_MESSAGE must be >= 1, got %d", c.RateLimit.Message)
	}

	if (c.Slack.BotToken == "") != (c.Slack.AlertChannel == "") {
		log.Warn().Msg("Slack alerts need both DESKCHAT_SLACK_BOT_TOKEN and DESKCHAT_SLACK_ALERT_CHANNEL; alerts disabled")
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
