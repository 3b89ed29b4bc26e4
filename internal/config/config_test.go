package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var managedKeys = []string{
	"CHAIN_NAME", "RPC_URL", "NATIVE_SYMBOL", "NATIVE_DECIMALS", "WRAPPED_NATIVE_SYMBOL",
	"EXPLORER_TX_URL", "TOKEN_LIST_PATH", "QUOTE_SYMBOLS", "THRESHOLD_TOKEN",
	"THRESHOLD_OVERRIDES", "PARTICIPANT_SCOPE", "NATIVE_RECEIVE_INFERENCE",
	"POLL_INTERVAL_MS", "MAX_LAG_BLOCKS", "BATCH_SIZE", "BATCH_DELAY_MS", "MAX_TX_PER_BLOCK",
	"HEAD_TIMEOUT_MS", "BLOCK_TIMEOUT_MS", "RECEIPT_TIMEOUT_MS", "BACKOFF_BASE_MS",
	"BACKOFF_MAX_MS", "BLOCK_FETCH_ATTEMPTS", "RECEIPT_FETCH_ATTEMPTS", "RPC_RATE_LIMIT_RPS",
	"RPC_RATE_LIMIT_BURST", "DEDUP_TTL_SEC", "DEDUP_BACKEND", "REDIS_URL", "DB_URL",
	"TELEGRAM_BOT_TOKEN", "CHAT_ID", "THREAD_ID", "CHAT_TARGETS_PATH", "SLACK_WEBHOOK_URL",
	"ALERT_WEBHOOK_URL", "ALERT_COOLDOWN_SEC", "ADDRESS_LABELS_PATH", "HEALTH_PORT",
	"LOG_LEVEL", "TRACING_ENABLED", "TRACING_ENDPOINT", "TRACING_INSECURE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range managedKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "viction", cfg.Chain.Name)
	assert.Equal(t, "https://rpc.viction.xyz", cfg.Chain.RPCURL)
	assert.Equal(t, "VIC", cfg.Chain.NativeSymbol)
	assert.Equal(t, 18, cfg.Chain.NativeDecimals)
	assert.Equal(t, "WVIC", cfg.Chain.WrappedNativeSymbol)
	assert.Equal(t, "https://vicscan.xyz/tx/", cfg.Chain.ExplorerTxURL)

	assert.Equal(t, "tokenList.json", cfg.Tokens.ListPath)
	assert.Equal(t, []string{"C98", "WVIC", "RABBIT"}, cfg.Tokens.QuoteSymbols)
	assert.True(t, cfg.Tokens.DefaultThreshold.Equal(decimal.NewFromInt(10000)))
	assert.Empty(t, cfg.Tokens.ThresholdOverrides)
	assert.Equal(t, ScopeAll, cfg.Tokens.Scope)
	assert.True(t, cfg.Tokens.InferNativeReceive)

	assert.Equal(t, 2*time.Second, cfg.Poller.PollInterval)
	assert.Equal(t, int64(50), cfg.Poller.MaxLagBlocks)
	assert.Equal(t, 1, cfg.Poller.BatchSize)
	assert.Equal(t, 200*time.Millisecond, cfg.Poller.BatchDelay)
	assert.Equal(t, 300, cfg.Poller.MaxTxPerBlock)
	assert.Equal(t, 5*time.Second, cfg.Poller.HeadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Poller.BlockTimeout)
	assert.Equal(t, 5*time.Second, cfg.Poller.ReceiptTimeout)

	assert.Equal(t, time.Second, cfg.Retry.BackoffBase)
	assert.Equal(t, time.Minute, cfg.Retry.BackoffMax)
	assert.Equal(t, 3, cfg.Retry.BlockFetchAttempts)
	assert.Equal(t, 2, cfg.Retry.ReceiptFetchAttempts)

	assert.Zero(t, cfg.RPC.RateLimitRPS)
	assert.Equal(t, 10, cfg.RPC.RateLimitBurst)

	assert.Equal(t, 10*time.Minute, cfg.Dedup.TTL)
	assert.Equal(t, DedupMemory, cfg.Dedup.Backend)
	assert.Empty(t, cfg.DB.URL)

	assert.Equal(t, 5*time.Minute, cfg.Alerts.Cooldown)
	assert.Equal(t, "addressLabels.json", cfg.Alerts.LabelsPath)
	assert.Equal(t, 8080, cfg.Server.HealthPort)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Tracing.Enabled)
	assert.True(t, cfg.Tracing.Insecure)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHAIN_NAME", "tomo")
	t.Setenv("QUOTE_SYMBOLS", " C98 , ,USDT ")
	t.Setenv("THRESHOLD_TOKEN", "2500.5")
	t.Setenv("THRESHOLD_OVERRIDES", "wvic=50000, C98=20000")
	t.Setenv("PARTICIPANT_SCOPE", "SENDER")
	t.Setenv("NATIVE_RECEIVE_INFERENCE", "false")
	t.Setenv("BATCH_SIZE", "4")
	t.Setenv("MAX_LAG_BLOCKS", "0")
	t.Setenv("RPC_RATE_LIMIT_RPS", "7.5")
	t.Setenv("DEDUP_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("CHAT_ID", "-1001234567890")
	t.Setenv("THREAD_ID", "42")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "tomo", cfg.Chain.Name)
	assert.Equal(t, []string{"C98", "USDT"}, cfg.Tokens.QuoteSymbols)
	assert.Equal(t, "2500.5", cfg.Tokens.DefaultThreshold.String())
	require.Len(t, cfg.Tokens.ThresholdOverrides, 2)
	assert.Equal(t, "50000", cfg.Tokens.ThresholdOverrides["WVIC"].String())
	assert.Equal(t, "20000", cfg.Tokens.ThresholdOverrides["C98"].String())
	assert.Equal(t, ScopeSender, cfg.Tokens.Scope)
	assert.False(t, cfg.Tokens.InferNativeReceive)
	assert.Equal(t, 4, cfg.Poller.BatchSize)
	assert.Zero(t, cfg.Poller.MaxLagBlocks)
	assert.Equal(t, 7.5, cfg.RPC.RateLimitRPS)
	assert.Equal(t, DedupRedis, cfg.Dedup.Backend)
	assert.Equal(t, int64(-1001234567890), cfg.Alerts.ChatID)
	assert.Equal(t, int64(42), cfg.Alerts.ThreadID)
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"zero poll interval", map[string]string{"POLL_INTERVAL_MS": "0"}, "POLL_INTERVAL_MS"},
		{"negative head timeout", map[string]string{"HEAD_TIMEOUT_MS": "-1"}, "HEAD_TIMEOUT_MS"},
		{"backoff max below base", map[string]string{"BACKOFF_BASE_MS": "5000", "BACKOFF_MAX_MS": "1000"}, "BACKOFF_MAX_MS"},
		{"batch size zero", map[string]string{"BATCH_SIZE": "0"}, "BATCH_SIZE"},
		{"unknown scope", map[string]string{"PARTICIPANT_SCOPE": "receivers"}, "PARTICIPANT_SCOPE"},
		{"unknown dedup backend", map[string]string{"DEDUP_BACKEND": "memcached"}, "DEDUP_BACKEND"},
		{"redis without url", map[string]string{"DEDUP_BACKEND": "redis"}, "REDIS_URL"},
		{"bad override", map[string]string{"THRESHOLD_OVERRIDES": "C98"}, "THRESHOLD_OVERRIDES"},
		{"bad override amount", map[string]string{"THRESHOLD_OVERRIDES": "C98=lots"}, "THRESHOLD_OVERRIDES"},
		{"bad threshold", map[string]string{"THRESHOLD_TOKEN": "ten"}, "THRESHOLD_TOKEN"},
		{"zero fetch attempts", map[string]string{"BLOCK_FETCH_ATTEMPTS": "0"}, "BLOCK_FETCH_ATTEMPTS"},
		{"tracing without endpoint", map[string]string{"TRACING_ENABLED": "true"}, "TRACING_ENDPOINT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_EmptyRPCURL(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Chain.RPCURL = ""
	err = cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RPC_URL")
}

func TestParseThresholdOverrides(t *testing.T) {
	got, err := ParseThresholdOverrides("")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = ParseThresholdOverrides("rabbit=1e6")
	require.NoError(t, err)
	assert.True(t, got["RABBIT"].Equal(decimal.NewFromInt(1_000_000)))

	_, err = ParseThresholdOverrides("=5")
	assert.Error(t, err)

	_, err = ParseThresholdOverrides("C98=-5")
	assert.Error(t, err)
}

func TestLogConfig_SlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LogConfig{Level: "DEBUG"}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, LogConfig{Level: "warning"}.SlogLevel())
	assert.Equal(t, slog.LevelError, LogConfig{Level: "error"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LogConfig{Level: "verbose"}.SlogLevel())
}
