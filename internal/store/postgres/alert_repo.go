package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Godz-Eyes/godz-eyes-bot/internal/domain/model"
	"github.com/google/uuid"
)

type AlertRepo struct {
	db *DB
}

func NewAlertRepo(db *DB) *AlertRepo {
	return &AlertRepo{db: db}
}

func (r *AlertRepo) Record(ctx context.Context, rec *model.AlertRecord) (bool, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO whale_alerts (id, chain, tx_hash, block_number, direction, token_symbol, quote_symbol,
		                          amount_token, amount_quote, participant, rule, delivered, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT ON CONSTRAINT whale_alerts_dedup DO NOTHING
	`, rec.ID, rec.Chain, rec.TxHash, rec.BlockNumber, rec.Direction, rec.TokenSymbol, rec.QuoteSymbol,
		rec.AmountToken, rec.AmountQuote, rec.Participant, rec.Rule, rec.Delivered, rec.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert whale alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// Recent returns the latest alerts, newest first.
func (r *AlertRepo) Recent(ctx context.Context, limit int) ([]model.AlertRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, chain, tx_hash, block_number, direction, token_symbol, quote_symbol,
		       amount_token, amount_quote, participant, rule, delivered, created_at
		FROM whale_alerts
		ORDER BY created_at DESC, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query whale alerts: %w", err)
	}
	defer rows.Close()

	var out []model.AlertRecord
	for rows.Next() {
		var rec model.AlertRecord
		if err := rows.Scan(
			&rec.ID, &rec.Chain, &rec.TxHash, &rec.BlockNumber, &rec.Direction, &rec.TokenSymbol, &rec.QuoteSymbol,
			&rec.AmountToken, &rec.AmountQuote, &rec.Participant, &rec.Rule, &rec.Delivered, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan whale alert: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
