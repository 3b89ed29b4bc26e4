package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	ScopeAll    = "all"
	ScopeSender = "sender"

	DedupMemory = "memory"
	DedupRedis  = "redis"
)

type Config struct {
	Chain   ChainConfig
	Tokens  TokenConfig
	Poller  PollerConfig
	Retry   RetryConfig
	RPC     RPCConfig
	Dedup   DedupConfig
	DB      DBConfig
	Alerts  AlertConfig
	Server  ServerConfig
	Log     LogConfig
	Tracing TracingConfig
}

type ChainConfig struct {
	Name                string
	RPCURL              string
	NativeSymbol        string
	NativeDecimals      int
	WrappedNativeSymbol string
	ExplorerTxURL       string
}

type TokenConfig struct {
	ListPath     string
	QuoteSymbols []string
	// DefaultThreshold applies to every quote symbol without an override.
	DefaultThreshold   decimal.Decimal
	ThresholdOverrides map[string]decimal.Decimal
	Scope              string
	InferNativeReceive bool
}

type PollerConfig struct {
	PollInterval   time.Duration
	MaxLagBlocks   int64
	BatchSize      int
	BatchDelay     time.Duration
	MaxTxPerBlock  int
	HeadTimeout    time.Duration
	BlockTimeout   time.Duration
	ReceiptTimeout time.Duration
}

type RetryConfig struct {
	BackoffBase          time.Duration
	BackoffMax           time.Duration
	BlockFetchAttempts   int
	ReceiptFetchAttempts int
}

type RPCConfig struct {
	RateLimitRPS   float64
	RateLimitBurst int
}

type DedupConfig struct {
	TTL      time.Duration
	Backend  string
	RedisURL string
}

// DBConfig is optional; an empty URL disables alert history.
type DBConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type AlertConfig struct {
	TelegramBotToken string
	ChatID           int64
	ThreadID         int64
	ChatTargetsPath  string
	SlackWebhookURL  string
	WebhookURL       string
	Cooldown         time.Duration
	LabelsPath       string
}

type ServerConfig struct {
	HealthPort int
}

type LogConfig struct {
	Level string
}

type TracingConfig struct {
	Enabled  bool
	Endpoint string
	Insecure bool
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Chain: ChainConfig{
			Name:                getEnv("CHAIN_NAME", "viction"),
			RPCURL:              getEnv("RPC_URL", "https://rpc.viction.xyz"),
			NativeSymbol:        getEnv("NATIVE_SYMBOL", "VIC"),
			NativeDecimals:      getEnvInt("NATIVE_DECIMALS", 18),
			WrappedNativeSymbol: getEnv("WRAPPED_NATIVE_SYMBOL", "WVIC"),
			ExplorerTxURL:       getEnv("EXPLORER_TX_URL", "https://vicscan.xyz/tx/"),
		},
		Tokens: TokenConfig{
			ListPath:           getEnv("TOKEN_LIST_PATH", "tokenList.json"),
			QuoteSymbols:       splitList(getEnv("QUOTE_SYMBOLS", "C98,WVIC,RABBIT")),
			Scope:              strings.ToLower(getEnv("PARTICIPANT_SCOPE", ScopeAll)),
			InferNativeReceive: getEnvBool("NATIVE_RECEIVE_INFERENCE", true),
		},
		Poller: PollerConfig{
			PollInterval:   getEnvMillis("POLL_INTERVAL_MS", 2000),
			MaxLagBlocks:   int64(getEnvInt("MAX_LAG_BLOCKS", 50)),
			BatchSize:      getEnvInt("BATCH_SIZE", 1),
			BatchDelay:     getEnvMillis("BATCH_DELAY_MS", 200),
			MaxTxPerBlock:  getEnvInt("MAX_TX_PER_BLOCK", 300),
			HeadTimeout:    getEnvMillis("HEAD_TIMEOUT_MS", 5000),
			BlockTimeout:   getEnvMillis("BLOCK_TIMEOUT_MS", 10000),
			ReceiptTimeout: getEnvMillis("RECEIPT_TIMEOUT_MS", 5000),
		},
		Retry: RetryConfig{
			BackoffBase:          getEnvMillis("BACKOFF_BASE_MS", 1000),
			BackoffMax:           getEnvMillis("BACKOFF_MAX_MS", 60000),
			BlockFetchAttempts:   getEnvInt("BLOCK_FETCH_ATTEMPTS", 3),
			ReceiptFetchAttempts: getEnvInt("RECEIPT_FETCH_ATTEMPTS", 2),
		},
		RPC: RPCConfig{
			RateLimitRPS:   getEnvFloat("RPC_RATE_LIMIT_RPS", 0),
			RateLimitBurst: getEnvInt("RPC_RATE_LIMIT_BURST", 10),
		},
		Dedup: DedupConfig{
			TTL:      time.Duration(getEnvInt("DEDUP_TTL_SEC", 600)) * time.Second,
			Backend:  strings.ToLower(getEnv("DEDUP_BACKEND", DedupMemory)),
			RedisURL: getEnv("REDIS_URL", ""),
		},
		DB: DBConfig{
			URL:             getEnv("DB_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_MIN", 30)) * time.Minute,
		},
		Alerts: AlertConfig{
			TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:           getEnvInt64("CHAT_ID", 0),
			ThreadID:         getEnvInt64("THREAD_ID", 0),
			ChatTargetsPath:  getEnv("CHAT_TARGETS_PATH", "chatIds.json"),
			SlackWebhookURL:  getEnv("SLACK_WEBHOOK_URL", ""),
			WebhookURL:       getEnv("ALERT_WEBHOOK_URL", ""),
			Cooldown:         time.Duration(getEnvInt("ALERT_COOLDOWN_SEC", 300)) * time.Second,
			LabelsPath:       getEnv("ADDRESS_LABELS_PATH", "addressLabels.json"),
		},
		Server: ServerConfig{
			HealthPort: getEnvInt("HEALTH_PORT", 8080),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Tracing: TracingConfig{
			Enabled:  getEnvBool("TRACING_ENABLED", false),
			Endpoint: getEnv("TRACING_ENDPOINT", ""),
			Insecure: getEnvBool("TRACING_INSECURE", true),
		},
	}

	threshold, err := decimal.NewFromString(getEnv("THRESHOLD_TOKEN", "10000"))
	if err != nil {
		return nil, fmt.Errorf("THRESHOLD_TOKEN: %w", err)
	}
	cfg.Tokens.DefaultThreshold = threshold

	overrides, err := ParseThresholdOverrides(getEnv("THRESHOLD_OVERRIDES", ""))
	if err != nil {
		return nil, fmt.Errorf("THRESHOLD_OVERRIDES: %w", err)
	}
	cfg.Tokens.ThresholdOverrides = overrides

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}
	if c.Chain.NativeDecimals < 0 {
		return fmt.Errorf("NATIVE_DECIMALS must be >= 0")
	}
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"POLL_INTERVAL_MS", c.Poller.PollInterval},
		{"HEAD_TIMEOUT_MS", c.Poller.HeadTimeout},
		{"BLOCK_TIMEOUT_MS", c.Poller.BlockTimeout},
		{"RECEIPT_TIMEOUT_MS", c.Poller.ReceiptTimeout},
		{"BACKOFF_BASE_MS", c.Retry.BackoffBase},
		{"BACKOFF_MAX_MS", c.Retry.BackoffMax},
		{"DEDUP_TTL_SEC", c.Dedup.TTL},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%s must be positive", d.name)
		}
	}
	if c.Poller.BatchDelay < 0 {
		return fmt.Errorf("BATCH_DELAY_MS must be >= 0")
	}
	if c.Retry.BackoffMax < c.Retry.BackoffBase {
		return fmt.Errorf("BACKOFF_MAX_MS (%s) must be >= BACKOFF_BASE_MS (%s)", c.Retry.BackoffMax, c.Retry.BackoffBase)
	}
	if c.Poller.BatchSize < 1 {
		return fmt.Errorf("BATCH_SIZE must be >= 1")
	}
	if c.Poller.MaxLagBlocks < 0 || c.Poller.MaxTxPerBlock < 0 {
		return fmt.Errorf("MAX_LAG_BLOCKS and MAX_TX_PER_BLOCK must be >= 0")
	}
	if c.Retry.BlockFetchAttempts < 1 || c.Retry.ReceiptFetchAttempts < 1 {
		return fmt.Errorf("BLOCK_FETCH_ATTEMPTS and RECEIPT_FETCH_ATTEMPTS must be >= 1")
	}
	if c.RPC.RateLimitRPS < 0 {
		return fmt.Errorf("RPC_RATE_LIMIT_RPS must be >= 0")
	}
	if c.Tokens.DefaultThreshold.IsNegative() {
		return fmt.Errorf("THRESHOLD_TOKEN must be >= 0")
	}
	switch c.Tokens.Scope {
	case ScopeAll, ScopeSender:
	default:
		return fmt.Errorf("PARTICIPANT_SCOPE %q is not one of all, sender", c.Tokens.Scope)
	}
	switch c.Dedup.Backend {
	case DedupMemory:
	case DedupRedis:
		if c.Dedup.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when DEDUP_BACKEND=redis")
		}
	default:
		return fmt.Errorf("DEDUP_BACKEND %q is not one of memory, redis", c.Dedup.Backend)
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("TRACING_ENDPOINT is required when TRACING_ENABLED=true")
	}
	return nil
}

// SlogLevel maps LOG_LEVEL onto slog, defaulting to info.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseThresholdOverrides parses "SYM=amount,SYM=amount". Symbols are
// upper-cased.
func ParseThresholdOverrides(raw string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	for _, item := range splitList(raw) {
		sym, amount, ok := strings.Cut(item, "=")
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if !ok || sym == "" {
			return nil, fmt.Errorf("override %q: expected SYMBOL=amount", item)
		}
		v, err := decimal.NewFromString(strings.TrimSpace(amount))
		if err != nil {
			return nil, fmt.Errorf("override %q: %w", item, err)
		}
		if v.IsNegative() {
			return nil, fmt.Errorf("override %q: negative threshold", item)
		}
		out[sym] = v
	}
	return out, nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvMillis(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Millisecond
}
