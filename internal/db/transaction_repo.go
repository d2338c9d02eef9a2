package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"creditgate/internal/types"
)

// TransactionRepo reads and correlates rows in delivery_credit_transactions.
//
// Numeric columns are selected as text and parsed into decimals so that
// monetary values never pass through float64.
type TransactionRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewTransactionRepo creates a TransactionRepo backed by the given database
// connection (pool or transaction).
func NewTransactionRepo(db DBTX, logger *slog.Logger) *TransactionRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransactionRepo{db: db, logger: logger}
}

const transactionColumns = `id, id_cliente, valor::text, status, gateway_usado, abacatepay_payment_id, created_at, updated_at`

// GetByGatewayPaymentID returns the transaction carrying the given gateway
// payment id, or ErrCodeNotFoundTransaction when no row matches.
func (r *TransactionRepo) GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*types.Transaction, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+transactionColumns+`
		 FROM delivery_credit_transactions
		 WHERE abacatepay_payment_id = $1`,
		gatewayPaymentID,
	)

	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundTransaction, "Transaction not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query transaction by gateway payment id", err)
	}
	return txn, nil
}

// FindRecentPendingByAmount returns pending transactions for the given
// gateway and exact amount created at or after since, most recent first.
// It is the fallback correlation path for webhooks whose payment id was
// never written to the transaction row.
func (r *TransactionRepo) FindRecentPendingByAmount(
	ctx context.Context,
	gatewayName string,
	amount decimal.Decimal,
	since time.Time,
	limit int,
) ([]*types.Transaction, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+transactionColumns+`
		 FROM delivery_credit_transactions
		 WHERE status = $1
		   AND gateway_usado = $2
		   AND valor = $3::numeric
		   AND created_at >= $4
		 ORDER BY created_at DESC
		 LIMIT $5`,
		types.TxStatusPending,
		gatewayName,
		amount.String(),
		since,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query pending transactions", err)
	}
	defer rows.Close()

	var txns []*types.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan transaction row", err)
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read pending transactions", err)
	}

	return txns, nil
}

// SetGatewayPaymentID backfills the gateway payment id onto a transaction
// matched through fallback correlation. The IS NULL guard makes the write
// lose-safe: a concurrent delivery that already backfilled a different id
// turns this call into ErrCodeConflictPaymentIDSet instead of an overwrite.
func (r *TransactionRepo) SetGatewayPaymentID(ctx context.Context, transactionID, gatewayPaymentID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE delivery_credit_transactions
		 SET abacatepay_payment_id = $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND abacatepay_payment_id IS NULL`,
		gatewayPaymentID,
		transactionID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to backfill gateway payment id", err)
	}

	if tag.RowsAffected() == 0 {
		return types.NewAppError(
			types.ErrCodeConflictPaymentIDSet,
			"transaction already carries a gateway payment id",
			nil,
		)
	}

	return nil
}

func scanTransaction(row pgx.Row) (*types.Transaction, error) {
	var (
		txn      types.Transaction
		valorStr string
	)
	if err := row.Scan(
		&txn.ID,
		&txn.ClientID,
		&valorStr,
		&txn.Status,
		&txn.GatewayName,
		&txn.GatewayPaymentID,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	); err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(valorStr)
	if err != nil {
		return nil, err
	}
	txn.Amount = amount

	return &txn, nil
}
