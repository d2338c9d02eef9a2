package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"creditgate/internal/types"
)

// SettlementStore performs the settlement writes. The claim and the lot
// insert run inside one transaction so a crash between them can never leave
// a paid transaction without its credit lot, and two concurrent deliveries
// can never both credit.
type SettlementStore struct {
	db     TxStarter
	logger *slog.Logger
}

// NewSettlementStore creates a SettlementStore on top of a connection pool.
func NewSettlementStore(db TxStarter, logger *slog.Logger) *SettlementStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettlementStore{db: db, logger: logger}
}

// ClaimAndCreateLot atomically transitions the transaction from pendente to
// pago and inserts the credit lot, in a single database transaction.
//
// The claim is a conditional UPDATE keyed on the current status; zero rows
// affected means another delivery won the race (or the row was already
// settled), in which case the transaction is rolled back and (nil, false,
// nil) is returned so the caller can respond as a duplicate.
func (s *SettlementStore) ClaimAndCreateLot(
	ctx context.Context,
	txn *types.Transaction,
	pricing *types.PricingRange,
) (*types.CreditLot, bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, false, types.NewAppError(types.ErrCodeInternalDB, "failed to begin settlement transaction", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	tag, err := tx.Exec(ctx,
		`UPDATE delivery_credit_transactions
		 SET status = $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND status = $3`,
		types.TxStatusPaid,
		txn.ID,
		types.TxStatusPending,
	)
	if err != nil {
		return nil, false, types.NewAppError(types.ErrCodePersistenceStatusUpdate, "failed to update transaction status", err)
	}

	if tag.RowsAffected() == 0 {
		// Lost the race or already settled. Roll back and report duplicate.
		s.logger.InfoContext(ctx, "settlement claim found transaction already paid",
			slog.String("transaction_id", txn.ID),
		)
		return nil, false, nil
	}

	lot := &types.CreditLot{
		ClientID:            txn.ClientID,
		AmountTotal:         txn.Amount,
		AmountRemaining:     txn.Amount,
		UnitPriceVoice:      pricing.UnitPriceVoice,
		UnitPriceNoVoice:    pricing.UnitPriceNoVoice,
		SourceTransactionID: txn.ID,
		Active:              true,
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO delivery_credit_lotes
		   (id_cliente, valor_reais, saldo_reais,
		    valor_unitario_com_voz, valor_unitario_sem_voz,
		    origem_transacao, ativo)
		 VALUES ($1, $2::numeric, $3::numeric, $4::numeric, $5::numeric, $6, $7)
		 RETURNING id, created_at`,
		lot.ClientID,
		lot.AmountTotal.String(),
		lot.AmountRemaining.String(),
		lot.UnitPriceVoice.String(),
		lot.UnitPriceNoVoice.String(),
		lot.SourceTransactionID,
		lot.Active,
	).Scan(&lot.ID, &lot.CreatedAt)
	if err != nil {
		return nil, false, types.NewAppError(types.ErrCodePersistenceLotCreate, "failed to create credit lot", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, types.NewAppError(types.ErrCodePersistenceStatusUpdate, "failed to commit settlement", err)
	}

	return lot, true, nil
}

// GetLotBySourceTransaction returns the lot disbursed for a transaction, or
// nil when none exists. Used to echo loteId on duplicate deliveries.
func (s *SettlementStore) GetLotBySourceTransaction(ctx context.Context, transactionID string) (*types.CreditLot, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, id_cliente, valor_reais::text, saldo_reais::text,
		        valor_unitario_com_voz::text, valor_unitario_sem_voz::text,
		        origem_transacao, ativo, created_at
		 FROM delivery_credit_lotes
		 WHERE origem_transacao = $1
		 ORDER BY created_at DESC
		 LIMIT 1`,
		transactionID,
	)

	lot, err := scanCreditLot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query credit lot", err)
	}
	return lot, nil
}

// AppendLogEntry writes one ledger line. Callers treat failures as non-fatal.
func (s *SettlementStore) AppendLogEntry(ctx context.Context, entry types.CreditLogEntry) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO delivery_credit_logs (id_cliente, id_lote, valor, tipo)
		 VALUES ($1, $2, $3::numeric, $4)`,
		entry.ClientID,
		entry.LotID,
		entry.Amount.String(),
		entry.Kind,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to append credit log entry", err)
	}
	return nil
}

// ClearManualBlock lifts the manual agent block after a successful
// settlement. Zero rows affected just means the client has no demo config
// row; that is not an error.
func (s *SettlementStore) ClearManualBlock(ctx context.Context, clientID string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE delivery_config_demo
		 SET agent_bloqueado_manual = FALSE
		 WHERE id_cliente = $1`,
		clientID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to clear manual agent block", err)
	}
	return nil
}

func scanCreditLot(row pgx.Row) (*types.CreditLot, error) {
	var (
		lot                                    types.CreditLot
		totalStr, remainStr, voiceStr, novStr string
	)
	if err := row.Scan(
		&lot.ID,
		&lot.ClientID,
		&totalStr,
		&remainStr,
		&voiceStr,
		&novStr,
		&lot.SourceTransactionID,
		&lot.Active,
		&lot.CreatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if lot.AmountTotal, err = decimal.NewFromString(totalStr); err != nil {
		return nil, err
	}
	if lot.AmountRemaining, err = decimal.NewFromString(remainStr); err != nil {
		return nil, err
	}
	if lot.UnitPriceVoice, err = decimal.NewFromString(voiceStr); err != nil {
		return nil, err
	}
	if lot.UnitPriceNoVoice, err = decimal.NewFromString(novStr); err != nil {
		return nil, err
	}
	return &lot, nil
}
