package store

import (
	"context"

	"github.com/Godz-Eyes/godz-eyes-bot/internal/domain/model"
)

// AlertHistory persists dispatched trade alerts.
type AlertHistory interface {
	// Record stores rec. It reports false when an alert with the same
	// (tx hash, token symbol, direction) already exists.
	Record(ctx context.Context, rec *model.AlertRecord) (bool, error)
	Recent(ctx context.Context, limit int) ([]model.AlertRecord, error)
}
