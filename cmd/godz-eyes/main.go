package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Godz-Eyes/godz-eyes-bot/internal/alert"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/analysis"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/chain/evm"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/chain/evm/rpc"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/config"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/decoder"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/dedup"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/domain/model"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/labels"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/pipeline"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/pipeline/poller"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/pipeline/processor"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/pipeline/retry"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/store"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/store/postgres"
	redisstore "github.com/Godz-Eyes/godz-eyes-bot/internal/store/redis"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/token"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/tracing"
	"golang.org/x/sync/errgroup"
)

const (
	serviceName         = "godz-eyes"
	dedupSweepInterval  = time.Minute
	dedupMemoryCapacity = 100_000
	dbPoolStatsInterval = 15 * time.Second
	backoffJitter       = 0.2
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	slog.SetDefault(logger)

	logger.Info("starting godz-eyes",
		"chain", cfg.Chain.Name,
		"rpc", cfg.Chain.RPCURL,
		"quotes", cfg.Tokens.QuoteSymbols,
		"threshold", cfg.Tokens.DefaultThreshold.String(),
		"scope", cfg.Tokens.Scope,
		"dedup_backend", cfg.Dedup.Backend,
		"batch_size", cfg.Poller.BatchSize,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("godz-eyes exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("godz-eyes shut down gracefully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracingEndpoint := ""
	if cfg.Tracing.Enabled {
		tracingEndpoint = cfg.Tracing.Endpoint
	}
	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ServiceName: serviceName,
		Endpoint:    tracingEndpoint,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()
	if cfg.Tracing.Enabled {
		logger.Info("tracing enabled", "endpoint", cfg.Tracing.Endpoint)
	}

	native := model.NativeCurrency{Symbol: cfg.Chain.NativeSymbol, Decimals: cfg.Chain.NativeDecimals}
	registry, err := token.LoadFile(cfg.Tokens.ListPath, cfg.Tokens.QuoteSymbols, native, cfg.Chain.WrappedNativeSymbol)
	if err != nil {
		return fmt.Errorf("load token registry: %w", err)
	}
	logger.Info("token registry loaded", "tokens", registry.Len(), "quotes", len(registry.QuoteAddresses()))

	book, err := labels.Load(cfg.Alerts.LabelsPath)
	if err != nil {
		return fmt.Errorf("load address labels: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)

	dedupStore, closeDedup, err := newDedupStore(gCtx, g, cfg)
	if err != nil {
		return err
	}
	defer closeDedup()

	var history store.AlertHistory
	var db *postgres.DB
	if cfg.DB.URL != "" {
		db, err = postgres.New(ctx, postgres.Config{
			URL:             cfg.DB.URL,
			MaxOpenConns:    cfg.DB.MaxOpenConns,
			MaxIdleConns:    cfg.DB.MaxIdleConns,
			ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		})
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()
		if err := db.RunMigrations(ctx); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		history = postgres.NewAlertRepo(db)
		logger.Info("alert history enabled")
	}

	alerter, err := buildAlerter(cfg, logger)
	if err != nil {
		return err
	}
	if alerter.Channels() == 0 {
		logger.Warn("no alert channels configured, trades will only be logged")
	}

	policy := retry.Policy{
		Base:   cfg.Retry.BackoffBase,
		Max:    cfg.Retry.BackoffMax,
		Jitter: backoffJitter,
	}

	adapter := evm.NewAdapter(rpc.NewClient(cfg.Chain.RPCURL, logger), evm.Config{
		Chain:          cfg.Chain.Name,
		RateLimitRPS:   cfg.RPC.RateLimitRPS,
		RateLimitBurst: cfg.RPC.RateLimitBurst,
	}, logger)

	proc := processor.New(processor.Config{
		Chain:               cfg.Chain.Name,
		Native:              registry.Native(),
		ReceiptTimeout:      cfg.Poller.ReceiptTimeout,
		ReceiptAttempts:     cfg.Retry.ReceiptFetchAttempts,
		Retry:               policy,
		Scope:               processor.Scope(cfg.Tokens.Scope),
		InferNativeReceived: cfg.Tokens.InferNativeReceive,
		ExplorerTxURL:       cfg.Chain.ExplorerTxURL,
	}, processor.Deps{
		Client:  adapter,
		Decoder: decoder.New(registry, logger),
		Classifier: analysis.NewClassifier(analysis.Env{
			Quotes:       registry,
			NativeSymbol: registry.Native().Symbol,
			Thresholds:   thresholds(cfg.Tokens),
		}),
		Dedup:   dedup.New(dedupStore, cfg.Chain.Name, logger),
		Alerter: alerter,
		Labels:  book,
		History: history,
	}, logger)

	pl := pipeline.New(pipeline.Config{
		Poller: poller.Config{
			Chain:              cfg.Chain.Name,
			PollInterval:       cfg.Poller.PollInterval,
			HeadTimeout:        cfg.Poller.HeadTimeout,
			BlockTimeout:       cfg.Poller.BlockTimeout,
			MaxLag:             cfg.Poller.MaxLagBlocks,
			BatchSize:          cfg.Poller.BatchSize,
			BatchDelay:         cfg.Poller.BatchDelay,
			MaxTxPerBlock:      cfg.Poller.MaxTxPerBlock,
			Retry:              policy,
			BlockFetchAttempts: cfg.Retry.BlockFetchAttempts,
		},
	}, adapter, proc, alerter, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g.Go(func() error {
		return runHealthServer(gCtx, cfg.Server.HealthPort, newStatusHandler([]healthSource{pl}, history, logger), logger)
	})

	g.Go(func() error {
		return pl.Run(gCtx)
	})

	if db != nil {
		startDBPoolStatsPump(gCtx, db.DB, cfg.Chain.Name, dbPoolStatsInterval, logger)
	}

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newDedupStore builds the configured dedup backend. The memory backend's
// sweeper joins g.
func newDedupStore(ctx context.Context, g *errgroup.Group, cfg *config.Config) (dedup.Store, func(), error) {
	switch cfg.Dedup.Backend {
	case config.DedupRedis:
		client, err := redisstore.NewClient(ctx, cfg.Dedup.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return redisstore.NewDedupStore(client, cfg.Chain.Name, cfg.Dedup.TTL), func() { _ = client.Close() }, nil
	default:
		mem := dedup.NewMemoryStore(cfg.Dedup.TTL, dedupMemoryCapacity, cfg.Chain.Name)
		g.Go(func() error {
			return mem.RunSweeper(ctx, dedupSweepInterval)
		})
		return mem, func() {}, nil
	}
}

func thresholds(cfg config.TokenConfig) analysis.Thresholds {
	return analysis.Thresholds{
		Default:   cfg.DefaultThreshold,
		PerSymbol: cfg.ThresholdOverrides,
	}
}

// buildAlerter fans out to every configured channel. Telegram targets come
// from the chat targets file, falling back to CHAT_ID/THREAD_ID.
func buildAlerter(cfg *config.Config, logger *slog.Logger) (*alert.MultiAlerter, error) {
	var channels []alert.Alerter

	if cfg.Alerts.TelegramBotToken != "" {
		targets, err := telegramTargets(cfg.Alerts)
		if err != nil {
			return nil, err
		}
		if len(targets) == 0 {
			return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN set but no chat targets in %s or CHAT_ID", cfg.Alerts.ChatTargetsPath)
		}
		channels = append(channels, alert.NewTelegramAlerter(alert.TelegramConfig{
			BotToken: cfg.Alerts.TelegramBotToken,
			Targets:  targets,
		}))
		logger.Info("telegram alerts enabled", "targets", len(targets))
	}
	if cfg.Alerts.SlackWebhookURL != "" {
		channels = append(channels, alert.NewSlackAlerter(cfg.Alerts.SlackWebhookURL))
		logger.Info("slack alerts enabled")
	}
	if cfg.Alerts.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookAlerter(cfg.Alerts.WebhookURL))
		logger.Info("webhook alerts enabled")
	}

	return alert.NewMultiAlerter(cfg.Alerts.Cooldown, logger, channels...), nil
}

func telegramTargets(cfg config.AlertConfig) ([]alert.ChatTarget, error) {
	targets, err := alert.LoadChatTargets(cfg.ChatTargetsPath)
	if err != nil {
		return nil, fmt.Errorf("load chat targets: %w", err)
	}
	if len(targets) == 0 && cfg.ChatID != 0 {
		targets = []alert.ChatTarget{{ChatID: cfg.ChatID, ThreadID: cfg.ThreadID}}
	}
	return targets, nil
}
