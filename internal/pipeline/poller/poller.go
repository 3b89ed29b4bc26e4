package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Godz-Eyes/godz-eyes-bot/internal/chain"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/metrics"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/pipeline/retry"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	otelTrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultHeadTimeout  = 5 * time.Second
	defaultBlockTimeout = 10 * time.Second
)

// TxProcessor handles one candidate transaction of a block. Errors are
// logged and counted by the poller; they never stop the block.
type TxProcessor interface {
	Process(ctx context.Context, block *chain.Block, tx chain.Transaction) error
}

// HealthRecorder receives the outcome of every head read and block.
type HealthRecorder interface {
	RecordSuccess() bool
	RecordFailure() bool
	RecordProgress(head, lastProcessed int64)
	RecordLatency(d time.Duration)
}

// TransitionFunc is called when the poller becomes unhealthy (cause is the
// head-read error) or recovers (cause is nil).
type TransitionFunc func(ctx context.Context, unhealthy bool, cause error)

type Config struct {
	Chain        string
	PollInterval time.Duration
	HeadTimeout  time.Duration
	BlockTimeout time.Duration
	// MaxLag is the largest head distance processed block by block. Zero
	// disables the lag jump.
	MaxLag int64
	// BatchSize transactions are processed concurrently; 1 is serial.
	BatchSize  int
	BatchDelay time.Duration
	// MaxTxPerBlock skips blocks with more candidates. Zero means no cap.
	MaxTxPerBlock int
	// Retry supplies the backoff base and cap for head reads and the
	// delays between block fetch attempts.
	Retry              retry.Policy
	BlockFetchAttempts int
}

type Poller struct {
	cfg       Config
	client    chain.Client
	processor TxProcessor
	logger    *slog.Logger

	headPolicy  retry.Policy
	blockPolicy retry.Policy

	health       HealthRecorder
	onTransition TransitionFunc
	sleepFn      func(ctx context.Context, d time.Duration) error
}

type Option func(*Poller)

func WithHealth(h HealthRecorder, onTransition TransitionFunc) Option {
	return func(p *Poller) {
		p.health = h
		p.onTransition = onTransition
	}
}

// WithSleepFunc replaces the timer based wait used between steps and
// batches.
func WithSleepFunc(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Poller) {
		p.sleepFn = fn
	}
}

func New(cfg Config, client chain.Client, processor TxProcessor, logger *slog.Logger, opts ...Option) *Poller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.HeadTimeout <= 0 {
		cfg.HeadTimeout = defaultHeadTimeout
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = defaultBlockTimeout
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.BlockFetchAttempts < 1 {
		cfg.BlockFetchAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "poller", "chain", cfg.Chain)

	p := &Poller{
		cfg:       cfg,
		client:    client,
		processor: processor,
		logger:    logger,
		sleepFn:   sleepCtx,
	}
	p.headPolicy = cfg.Retry
	p.headPolicy.MaxAttempts = 1
	p.headPolicy.Logger = logger
	p.blockPolicy = cfg.Retry
	p.blockPolicy.MaxAttempts = cfg.BlockFetchAttempts
	p.blockPolicy.Logger = logger

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Run drives Step until ctx is cancelled. It never returns on its own.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started",
		"poll_interval", p.cfg.PollInterval,
		"max_lag", p.cfg.MaxLag,
		"batch_size", p.cfg.BatchSize,
	)
	state := State{Phase: PhaseDisconnected}
	for {
		if err := ctx.Err(); err != nil {
			p.logger.Info("poller stopped", "last_processed_block", state.LastProcessedBlock)
			return err
		}
		var wait time.Duration
		state, wait = p.Step(ctx, state)
		if err := p.sleepFn(ctx, wait); err != nil {
			p.logger.Info("poller stopped", "last_processed_block", state.LastProcessedBlock)
			return err
		}
	}
}

// Step performs one unit of work for s and returns the next state and how
// long to wait before the following step.
func (p *Poller) Step(ctx context.Context, s State) (State, time.Duration) {
	if !s.Connected {
		return p.connect(ctx, s)
	}
	return p.poll(ctx, s)
}

func (p *Poller) connect(ctx context.Context, s State) (State, time.Duration) {
	head, err := p.readHead(ctx)
	if err != nil {
		return p.backOff(ctx, s, err)
	}
	p.recordHeadSuccess(ctx)

	s.Connected = true
	s.Phase = PhasePolling
	s.LastProcessedBlock = head
	s.Backoff = p.cfg.Retry.Next(0)
	p.observe(head, s)
	p.logger.Info("connected to chain", "head", head)
	return s, p.cfg.PollInterval
}

func (p *Poller) poll(ctx context.Context, s State) (State, time.Duration) {
	head, err := p.readHead(ctx)
	if err != nil {
		return p.backOff(ctx, s, err)
	}
	p.recordHeadSuccess(ctx)
	s.Phase = PhasePolling
	s.Backoff = p.cfg.Retry.Next(0)

	if head <= s.LastProcessedBlock {
		p.observe(head, s)
		return s, p.cfg.PollInterval
	}

	if lag := head - s.LastProcessedBlock; p.cfg.MaxLag > 0 && lag > p.cfg.MaxLag {
		jumped := head - 1 - s.LastProcessedBlock
		p.logger.Warn("lag exceeds limit, jumping to tip",
			"lag", lag,
			"max_lag", p.cfg.MaxLag,
			"from_block", s.LastProcessedBlock,
			"to_block", head-1,
			"skipped_blocks", jumped,
		)
		metrics.PollerLagJumps.WithLabelValues(p.cfg.Chain).Inc()
		metrics.PollerBlocksJumped.WithLabelValues(p.cfg.Chain).Add(float64(jumped))
		s.LastProcessedBlock = head - 1
	}

	next := s.LastProcessedBlock + 1
	p.processBlock(ctx, next)
	s.LastProcessedBlock = next
	p.observe(head, s)

	if head-s.LastProcessedBlock > 1 {
		return s, 0
	}
	return s, p.cfg.PollInterval
}

// backOff keeps progress and schedules a retry of the same operation after
// the current backoff, doubling it for the next failure.
func (p *Poller) backOff(ctx context.Context, s State, err error) (State, time.Duration) {
	wait := s.Backoff
	if wait <= 0 {
		wait = p.cfg.Retry.Next(0)
	}
	s.Phase = PhaseBackingOff
	s.Backoff = p.cfg.Retry.Next(wait)

	metrics.PollerHeadErrors.WithLabelValues(p.cfg.Chain).Inc()
	metrics.PollerBackoffSeconds.WithLabelValues(p.cfg.Chain).Set(wait.Seconds())
	p.logger.Warn("head read failed, backing off",
		"connected", s.Connected,
		"retry_in", wait,
		"last_processed_block", s.LastProcessedBlock,
		"error", err,
	)
	if p.health != nil && p.health.RecordFailure() && p.onTransition != nil {
		p.onTransition(ctx, true, err)
	}
	return s, wait
}

func (p *Poller) recordHeadSuccess(ctx context.Context) {
	metrics.PollerBackoffSeconds.WithLabelValues(p.cfg.Chain).Set(0)
	if p.health != nil && p.health.RecordSuccess() && p.onTransition != nil {
		p.onTransition(ctx, false, nil)
	}
}

func (p *Poller) observe(head int64, s State) {
	lag := head - s.LastProcessedBlock
	if lag < 0 {
		lag = 0
	}
	metrics.PollerHeadBlock.WithLabelValues(p.cfg.Chain).Set(float64(head))
	metrics.PollerLastProcessedBlock.WithLabelValues(p.cfg.Chain).Set(float64(s.LastProcessedBlock))
	metrics.PollerLagBlocks.WithLabelValues(p.cfg.Chain).Set(float64(lag))
	if p.health != nil {
		p.health.RecordProgress(head, s.LastProcessedBlock)
	}
}

func (p *Poller) readHead(ctx context.Context) (int64, error) {
	var head int64
	err := p.headPolicy.Do(ctx, "current_head", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, p.cfg.HeadTimeout)
		defer cancel()
		var err error
		head, err = p.client.CurrentHead(callCtx)
		return err
	})
	return head, err
}

// processBlock runs the per-block procedure. Failures are logged and the
// block is considered done either way.
func (p *Poller) processBlock(ctx context.Context, number int64) {
	start := time.Now()
	spanCtx, span := tracing.Tracer("poller").Start(ctx, "poller.processBlock",
		otelTrace.WithAttributes(
			attribute.String("chain", p.cfg.Chain),
			attribute.Int64("block", number),
		),
	)
	err := p.runBlock(spanCtx, number)
	tracing.EndSpan(span, err)

	elapsed := time.Since(start)
	metrics.BlockDuration.WithLabelValues(p.cfg.Chain).Observe(elapsed.Seconds())
	if p.health != nil {
		p.health.RecordLatency(elapsed)
	}
}

var errBlockOverloaded = errors.New("too many candidate transactions")

func (p *Poller) runBlock(ctx context.Context, number int64) error {
	log := p.logger.With("block", number)

	block, err := p.fetchBlock(ctx, number)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("block fetch failed, skipping block", "error", err)
		metrics.BlocksSkipped.WithLabelValues(p.cfg.Chain, "fetch_failed").Inc()
		return err
	}

	candidates := make([]chain.Transaction, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		if !tx.HasCallData() {
			metrics.TxSkipped.WithLabelValues(p.cfg.Chain, "no_call_data").Inc()
			continue
		}
		candidates = append(candidates, tx)
	}

	if p.cfg.MaxTxPerBlock > 0 && len(candidates) > p.cfg.MaxTxPerBlock {
		log.Warn("block overloaded, skipping block",
			"candidates", len(candidates),
			"max_tx_per_block", p.cfg.MaxTxPerBlock,
		)
		metrics.BlocksSkipped.WithLabelValues(p.cfg.Chain, "overload").Inc()
		return fmt.Errorf("block %d: %w", number, errBlockOverloaded)
	}

	for start := 0; start < len(candidates); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(candidates))
		p.runBatch(ctx, log, block, candidates[start:end])

		if end < len(candidates) && p.cfg.BatchDelay > 0 {
			if err := p.sleepFn(ctx, p.cfg.BatchDelay); err != nil {
				return err
			}
		}
	}

	metrics.BlocksProcessed.WithLabelValues(p.cfg.Chain).Inc()
	log.Debug("block processed", "txs", len(block.Transactions), "candidates", len(candidates))
	return nil
}

func (p *Poller) fetchBlock(ctx context.Context, number int64) (*chain.Block, error) {
	var block *chain.Block
	err := p.blockPolicy.Do(ctx, "get_block", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, p.cfg.BlockTimeout)
		defer cancel()
		var err error
		block, err = p.client.GetBlock(callCtx, number, true)
		return err
	})
	return block, err
}

// runBatch processes txs concurrently and waits for all of them.
func (p *Poller) runBatch(ctx context.Context, log *slog.Logger, block *chain.Block, txs []chain.Transaction) {
	var g errgroup.Group
	for _, tx := range txs {
		g.Go(func() error {
			if err := p.processTx(ctx, block, tx); err != nil {
				metrics.TxErrors.WithLabelValues(p.cfg.Chain).Inc()
				log.Warn("transaction processing failed", "tx", tx.Hash.Hex(), "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Poller) processTx(ctx context.Context, block *chain.Block, tx chain.Transaction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()
	return p.processor.Process(ctx, block, tx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
