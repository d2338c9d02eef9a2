package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"creditgate/internal/types"
)

// PricingRepo resolves unit prices from the delivery_precos_credito table.
type PricingRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewPricingRepo creates a PricingRepo backed by the given database
// connection (pool or transaction).
func NewPricingRepo(db DBTX, logger *slog.Logger) *PricingRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &PricingRepo{db: db, logger: logger}
}

// GetActiveRangeFor returns the active pricing range whose inclusive
// [faixa_min, faixa_max] interval contains amount. A payment outside every
// configured range is a client-visible configuration error, reported as
// ErrCodeNotFoundPricingRange.
func (r *PricingRepo) GetActiveRangeFor(ctx context.Context, amount decimal.Decimal) (*types.PricingRange, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, faixa_min::text, faixa_max::text,
		        valor_unitario_com_voz::text, valor_unitario_sem_voz::text, ativo
		 FROM delivery_precos_credito
		 WHERE ativo = TRUE
		   AND faixa_min <= $1::numeric
		   AND faixa_max >= $1::numeric
		 LIMIT 1`,
		amount.String(),
	)

	var (
		pr                                       types.PricingRange
		minStr, maxStr, voiceStr, noVoiceStr string
	)
	err := row.Scan(&pr.ID, &minStr, &maxStr, &voiceStr, &noVoiceStr, &pr.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(
				types.ErrCodeNotFoundPricingRange,
				fmt.Sprintf("No pricing range found for amount %s", amount.String()),
				nil,
			)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query pricing range", err)
	}

	if pr.Min, err = decimal.NewFromString(minStr); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "invalid faixa_min value", err)
	}
	if pr.Max, err = decimal.NewFromString(maxStr); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "invalid faixa_max value", err)
	}
	if pr.UnitPriceVoice, err = decimal.NewFromString(voiceStr); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "invalid valor_unitario_com_voz value", err)
	}
	if pr.UnitPriceNoVoice, err = decimal.NewFromString(noVoiceStr); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "invalid valor_unitario_sem_voz value", err)
	}

	return &pr, nil
}
