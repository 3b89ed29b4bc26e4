package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/Godz-Eyes/godz-eyes-bot/internal/alert"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/chain"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/pipeline/poller"
)

const defaultRestartDelay = 5 * time.Second

type Config struct {
	Poller             poller.Config
	UnhealthyThreshold int
	// RestartDelay is the pause before the poller is restarted after a panic.
	RestartDelay time.Duration
}

// Pipeline runs the block poller for one chain, tracks its health and
// raises operational alerts on unhealthy/recovery transitions.
type Pipeline struct {
	cfg     Config
	poller  *poller.Poller
	health  *PollerHealth
	alerter alert.Alerter
	logger  *slog.Logger
}

func New(
	cfg Config,
	client chain.Client,
	processor poller.TxProcessor,
	alerter alert.Alerter,
	logger *slog.Logger,
	opts ...poller.Option,
) *Pipeline {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = defaultRestartDelay
	}
	if alerter == nil {
		alerter = &alert.NoopAlerter{}
	}
	p := &Pipeline{
		cfg:     cfg,
		health:  NewPollerHealth(cfg.Poller.Chain).WithUnhealthyThreshold(cfg.UnhealthyThreshold),
		alerter: alerter,
		logger:  logger.With("component", "pipeline", "chain", cfg.Poller.Chain),
	}
	opts = append([]poller.Option{poller.WithHealth(p.health, p.onTransition)}, opts...)
	p.poller = poller.New(cfg.Poller, client, processor, logger, opts...)
	return p
}

func (p *Pipeline) Chain() string { return p.cfg.Poller.Chain }

func (p *Pipeline) Health() *PollerHealth { return p.health }

// Run drives the poller until ctx is cancelled. A panic inside the poller
// is logged and the poller restarts from the chain head.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		err := p.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			p.health.RecordFailure()
			p.logger.Error("poller crashed, restarting", "error", err, "restart_in", p.cfg.RestartDelay)
		}

		timer := time.NewTimer(p.cfg.RestartDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (p *Pipeline) runOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poller panic: %v\n%s", r, debug.Stack())
		}
	}()
	return p.poller.Run(ctx)
}

func (p *Pipeline) onTransition(ctx context.Context, unhealthy bool, cause error) {
	a := alert.Alert{
		Type:    alert.AlertTypeRecovery,
		Chain:   p.cfg.Poller.Chain,
		Title:   "Block poller recovered",
		Message: "Head reads are succeeding again.",
	}
	if unhealthy {
		snap := p.health.Snapshot()
		a = alert.Alert{
			Type:    alert.AlertTypeUnhealthy,
			Chain:   p.cfg.Poller.Chain,
			Title:   "Block poller unhealthy",
			Message: fmt.Sprintf("%d consecutive head read failures.", snap.ConsecutiveFailures),
			Fields: map[string]string{
				"last_processed_block": fmt.Sprintf("%d", snap.LastProcessedBlock),
			},
		}
		if cause != nil {
			a.Fields["error"] = cause.Error()
		}
	}
	if err := p.alerter.Send(ctx, a); err != nil {
		p.logger.Warn("operational alert failed", "type", a.Type, "error", err)
	}
}
