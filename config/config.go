package config

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Trade modes.
const (
	ModeSimulation = "SIMULATION"
	ModeReal       = "REAL"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Broker account
	TradeMode     string
	Account       string
	AccountPasswd string
	UserID        string
	UserPassword  string
	TOTPSecret    string
	AgentURL      string // OCX agent base URL (REAL mode only)
	PaperCash     int64  // starting deposit of the paper broker

	// Pre-trade limits (0 = disabled)
	RiskMaxOrderQty    int
	RiskMaxOrderValue  int
	RiskMaxDailyOrders int

	// Infrastructure
	HTTPAddr      string
	MetricsAddr   string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	SignalChannel string

	// Notification backends (empty = disabled)
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   string

	// News / sentiment collaborator
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
	NewsBaseURL   string

	// Loop and queue tuning
	TickInterval  time.Duration
	PollInterval  time.Duration
	QueueCapacity int
	ScanInterval  time.Duration

	// Bridge wait ceilings per call class
	OrderTimeout time.Duration
	CrossTimeout time.Duration
	SlowTimeout  time.Duration

	LogLevel slog.Level
}

// Load reads configuration from the environment (and a .env file when present)
// with sensible defaults.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] .env not loaded: %v", err)
	}

	mode := strings.ToUpper(getEnv("TRADE_MODE", ModeSimulation))
	if mode != ModeReal {
		mode = ModeSimulation
	}

	cfg := &Config{
		TradeMode:     mode,
		Account:       getEnv("ACCNO", "0000000000"),
		AccountPasswd: getEnv("ACCNO_PASSWORD", "0000"),
		UserID:        getEnv("KIWOOM_USER_ID", ""),
		UserPassword:  getEnv("KIWOOM_USER_PASSWORD", ""),
		TOTPSecret:    getEnv("KIWOOM_TOTP_SECRET", ""),
		AgentURL:      getEnv("AGENT_URL", "http://127.0.0.1:8765"),
		PaperCash:     int64(getInt("PAPER_CASH", 10_000_000)),

		RiskMaxOrderQty:    getInt("RISK_MAX_ORDER_QTY", 0),
		RiskMaxOrderValue:  getInt("RISK_MAX_ORDER_VALUE", 0),
		RiskMaxDailyOrders: getInt("RISK_MAX_DAILY_ORDERS", 0),

		HTTPAddr:      getEnv("HTTP_ADDR", ":5000"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		SQLitePath:    getEnv("SQLITE_PATH", "data/indicators.db"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SignalChannel: getEnv("SIGNAL_CHANNEL", "signals"),

		WebhookURL:       getEnv("WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o"),
		NewsBaseURL:   getEnv("NEWS_BASE_URL", "https://www.google.com"),

		TickInterval:  getMillis("TICK_INTERVAL_MS", 500),
		PollInterval:  getMillis("POLL_INTERVAL_MS", 100),
		QueueCapacity: getInt("QUEUE_CAPACITY", 256),
		ScanInterval:  time.Duration(getInt("SCAN_INTERVAL_SEC", 300)) * time.Second,

		OrderTimeout: time.Duration(getInt("ORDER_TIMEOUT_SEC", 10)) * time.Second,
		CrossTimeout: time.Duration(getInt("CROSS_TIMEOUT_SEC", 30)) * time.Second,
		SlowTimeout:  time.Duration(getInt("SLOW_TIMEOUT_SEC", 60)) * time.Second,

		LogLevel: parseLevel(getEnv("LOG_LEVEL", "INFO")),
	}

	if cfg.IsReal() {
		cfg.UserID = mustEnv("KIWOOM_USER_ID")
		cfg.UserPassword = mustEnv("KIWOOM_USER_PASSWORD")
		cfg.Account = mustEnv("ACCNO")
	}
	return cfg
}

// IsReal reports whether orders go to the live broker.
func (c *Config) IsReal() bool { return c.TradeMode == ModeReal }

func parseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getMillis(key string, fallback int) time.Duration {
	return time.Duration(getInt(key, fallback)) * time.Millisecond
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
