package reconcile

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"creditgate/internal/gateway"
	"creditgate/internal/types"
)

// PricingLookup resolves the unit-price range for a settlement amount.
type PricingLookup interface {
	GetActiveRangeFor(ctx context.Context, amount decimal.Decimal) (*types.PricingRange, error)
}

// SettlementStore is the persistence surface of the settlement state
// machine. ClaimAndCreateLot must be atomic: either the transaction flips to
// paid and the lot exists, or neither happened.
type SettlementStore interface {
	ClaimAndCreateLot(ctx context.Context, txn *types.Transaction, pricing *types.PricingRange) (*types.CreditLot, bool, error)
	GetLotBySourceTransaction(ctx context.Context, transactionID string) (*types.CreditLot, error)
	AppendLogEntry(ctx context.Context, entry types.CreditLogEntry) error
	ClearManualBlock(ctx context.Context, clientID string) error
}

// SettlerMetrics is the telemetry surface the settler emits to.
type SettlerMetrics interface {
	RecordPaymentSettled(ctx context.Context, amount decimal.Decimal)
	RecordDuplicateDelivery(ctx context.Context)
}

// Result describes the outcome of one settlement attempt.
type Result struct {
	// Processed is false when the fact was not an approved payment and the
	// webhook was acknowledged without crediting.
	Processed bool

	// Duplicate is true when the transaction was already settled; no new
	// credit was granted.
	Duplicate bool

	// LotID is the credit lot granted (or, on duplicates, previously
	// granted when it could be looked up).
	LotID string

	// CreditedAmount is the transaction amount, set whenever Processed.
	CreditedAmount decimal.Decimal
}

// Settler drives a resolved transaction through settlement: price the
// amount, atomically claim the transaction and create the credit lot, then
// perform the non-fatal follow-ups (ledger entry, account unblock).
type Settler struct {
	pricing PricingLookup
	store   SettlementStore
	alerts  AlertPublisher
	metrics SettlerMetrics
	logger  *slog.Logger
}

// NewSettler creates a Settler. alerts and metrics may be nil.
func NewSettler(pricing PricingLookup, store SettlementStore, alerts AlertPublisher, metrics SettlerMetrics, logger *slog.Logger) *Settler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Settler{
		pricing: pricing,
		store:   store,
		alerts:  alerts,
		metrics: metrics,
		logger:  logger,
	}
}

// Settle applies the fact to the resolved transaction.
//
// Unapproved facts are acknowledged without crediting. Already-paid
// transactions and lost claim races both come back as duplicates. The
// ledger entry and the account unblock run after the settlement commit and
// never fail it: balance correctness comes from the lot, those two are
// repairable by operators.
func (s *Settler) Settle(ctx context.Context, fact types.PaymentFact, txn *types.Transaction) (*Result, error) {
	if !gateway.IsApproved(fact) {
		s.logger.InfoContext(ctx, "payment not in approved status, ignoring webhook",
			slog.String("event_type", fact.EventType),
			slog.String("status", fact.Status),
			slog.String("transaction_id", txn.ID),
		)
		return &Result{Processed: false}, nil
	}

	if txn.IsPaid() {
		return s.duplicateResult(ctx, txn), nil
	}

	pricing, err := s.pricing.GetActiveRangeFor(ctx, txn.Amount)
	if err != nil {
		return nil, err
	}

	lot, claimed, err := s.store.ClaimAndCreateLot(ctx, txn, pricing)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return s.duplicateResult(ctx, txn), nil
	}

	s.logger.InfoContext(ctx, "payment settled",
		slog.String("transaction_id", txn.ID),
		slog.String("client_id", txn.ClientID),
		slog.String("lot_id", lot.ID),
		slog.String("amount", txn.Amount.String()),
	)
	if s.metrics != nil {
		s.metrics.RecordPaymentSettled(ctx, txn.Amount)
	}

	s.writeLedgerEntry(ctx, txn, lot)
	s.clearManualBlock(ctx, txn)

	return &Result{
		Processed:      true,
		LotID:          lot.ID,
		CreditedAmount: txn.Amount,
	}, nil
}

// duplicateResult builds the response for an already-settled transaction,
// echoing the original lot id when it can still be found.
func (s *Settler) duplicateResult(ctx context.Context, txn *types.Transaction) *Result {
	s.logger.InfoContext(ctx, "duplicate delivery for settled transaction",
		slog.String("transaction_id", txn.ID),
	)
	if s.metrics != nil {
		s.metrics.RecordDuplicateDelivery(ctx)
	}

	result := &Result{
		Processed:      true,
		Duplicate:      true,
		CreditedAmount: txn.Amount,
	}

	lot, err := s.store.GetLotBySourceTransaction(ctx, txn.ID)
	if err != nil {
		s.logger.WarnContext(ctx, "could not look up lot for duplicate delivery",
			slog.String("transaction_id", txn.ID),
			slog.Any("error", err),
		)
		return result
	}
	if lot != nil {
		result.LotID = lot.ID
	}
	return result
}

func (s *Settler) writeLedgerEntry(ctx context.Context, txn *types.Transaction, lot *types.CreditLot) {
	entry := types.CreditLogEntry{
		ClientID: txn.ClientID,
		LotID:    lot.ID,
		Amount:   txn.Amount,
		Kind:     types.CreditLogKindRecharge,
	}
	if err := s.store.AppendLogEntry(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "failed to write credit log entry",
			slog.String("transaction_id", txn.ID),
			slog.String("lot_id", lot.ID),
			slog.Any("error", err),
		)
		s.publishAlert(ctx, types.ReconAlert{
			Kind:          types.AlertLedgerWriteFailed,
			TransactionID: txn.ID,
			ClientID:      txn.ClientID,
			Amount:        txn.Amount.String(),
			Detail:        err.Error(),
		})
	}
}

func (s *Settler) clearManualBlock(ctx context.Context, txn *types.Transaction) {
	if err := s.store.ClearManualBlock(ctx, txn.ClientID); err != nil {
		s.logger.ErrorContext(ctx, "failed to clear manual agent block",
			slog.String("client_id", txn.ClientID),
			slog.Any("error", err),
		)
		s.publishAlert(ctx, types.ReconAlert{
			Kind:          types.AlertReactivationFailed,
			TransactionID: txn.ID,
			ClientID:      txn.ClientID,
			Detail:        err.Error(),
		})
		return
	}
	s.logger.InfoContext(ctx, "agent unblocked after settlement",
		slog.String("client_id", txn.ClientID),
	)
}

func (s *Settler) publishAlert(ctx context.Context, alert types.ReconAlert) {
	if s.alerts == nil {
		return
	}
	if err := s.alerts.Publish(ctx, alert); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish reconciliation alert",
			slog.String("kind", string(alert.Kind)),
			slog.Any("error", err),
		)
	}
}
