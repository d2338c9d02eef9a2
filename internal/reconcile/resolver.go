// Package reconcile matches inbound gateway payment facts to pending
// transactions and settles them: exactly one credit lot per paid
// transaction, no matter how many times the gateway delivers the webhook.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"creditgate/internal/types"
)

// fallbackWindow bounds how far back the amount-based correlation looks.
// Payments older than this are assumed to belong to a different purchase.
const fallbackWindow = 24 * time.Hour

// fallbackCandidateLimit caps how many candidates the fallback query pulls;
// one winner is used, the rest only feed the ambiguity alert.
const fallbackCandidateLimit = 5

// TransactionFinder is the repository surface the resolver needs.
type TransactionFinder interface {
	GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*types.Transaction, error)
	FindRecentPendingByAmount(ctx context.Context, gatewayName string, amount decimal.Decimal, since time.Time, limit int) ([]*types.Transaction, error)
	SetGatewayPaymentID(ctx context.Context, transactionID, gatewayPaymentID string) error
}

// AlertPublisher publishes operational alerts. Publishing is always
// best-effort; callers never fail a settlement on a publish error.
type AlertPublisher interface {
	Publish(ctx context.Context, alert types.ReconAlert) error
}

// ResolverMetrics is the telemetry surface the resolver emits to.
type ResolverMetrics interface {
	RecordFallbackMatch(ctx context.Context)
}

// Resolver locates the transaction a payment fact refers to: first by the
// gateway's payment id, then by an amount-and-recency heuristic for
// transactions created before the purchase flow learned the gateway id.
type Resolver struct {
	finder  TransactionFinder
	alerts  AlertPublisher
	metrics ResolverMetrics
	gateway string
	logger  *slog.Logger
	now     func() time.Time
}

// NewResolver creates a Resolver. alerts and metrics may be nil, in which
// case ambiguity and fallback signals degrade to log lines.
func NewResolver(finder TransactionFinder, alerts AlertPublisher, metrics ResolverMetrics, gatewayName string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		finder:  finder,
		alerts:  alerts,
		metrics: metrics,
		gateway: gatewayName,
		logger:  logger,
		now:     time.Now,
	}
}

// Resolve returns the transaction the fact settles. Exact lookup by gateway
// payment id wins; otherwise pending transactions with the same amount
// created in the last 24 hours are considered, most recent first. A
// fallback match is backfilled with the gateway payment id best-effort:
// backfill failure is logged and alerted but never fails resolution.
func (r *Resolver) Resolve(ctx context.Context, fact types.PaymentFact) (*types.Transaction, error) {
	txn, err := r.finder.GetByGatewayPaymentID(ctx, fact.GatewayPaymentID)
	if err == nil {
		return txn, nil
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeNotFoundTransaction {
		return nil, err
	}

	r.logger.InfoContext(ctx, "transaction not found by payment id, trying amount fallback",
		slog.String("gateway_payment_id", fact.GatewayPaymentID),
		slog.String("amount", fact.Amount.String()),
	)

	since := r.now().Add(-fallbackWindow)
	candidates, err := r.finder.FindRecentPendingByAmount(ctx, r.gateway, fact.Amount, since, fallbackCandidateLimit)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, types.NewAppError(types.ErrCodeNotFoundTransaction, "Transaction not found", nil)
	}

	winner := candidates[0]

	if r.metrics != nil {
		r.metrics.RecordFallbackMatch(ctx)
	}

	if len(candidates) > 1 {
		r.logger.WarnContext(ctx, "ambiguous fallback match, using most recent candidate",
			slog.Int("candidates", len(candidates)),
			slog.String("transaction_id", winner.ID),
			slog.String("gateway_payment_id", fact.GatewayPaymentID),
		)
		r.publishAlert(ctx, types.ReconAlert{
			Kind:             types.AlertAmbiguousFallback,
			TransactionID:    winner.ID,
			GatewayPaymentID: fact.GatewayPaymentID,
			ClientID:         winner.ClientID,
			Amount:           fact.Amount.String(),
			Detail:           "multiple pending transactions matched the fallback heuristic",
		})
	}

	r.backfillPaymentID(ctx, winner, fact.GatewayPaymentID)

	return winner, nil
}

// backfillPaymentID writes the gateway payment id onto the matched
// transaction so future deliveries resolve exactly. Failures (including a
// concurrently-set id) are alerted but swallowed: the delivery in hand can
// still settle.
func (r *Resolver) backfillPaymentID(ctx context.Context, txn *types.Transaction, gatewayPaymentID string) {
	if err := r.finder.SetGatewayPaymentID(ctx, txn.ID, gatewayPaymentID); err != nil {
		r.logger.ErrorContext(ctx, "failed to backfill gateway payment id",
			slog.String("transaction_id", txn.ID),
			slog.String("gateway_payment_id", gatewayPaymentID),
			slog.Any("error", err),
		)
		r.publishAlert(ctx, types.ReconAlert{
			Kind:             types.AlertBackfillFailed,
			TransactionID:    txn.ID,
			GatewayPaymentID: gatewayPaymentID,
			ClientID:         txn.ClientID,
			Detail:           err.Error(),
		})
		return
	}

	id := gatewayPaymentID
	txn.GatewayPaymentID = &id
}

func (r *Resolver) publishAlert(ctx context.Context, alert types.ReconAlert) {
	if r.alerts == nil {
		return
	}
	if err := r.alerts.Publish(ctx, alert); err != nil {
		r.logger.ErrorContext(ctx, "failed to publish reconciliation alert",
			slog.String("kind", string(alert.Kind)),
			slog.Any("error", err),
		)
	}
}
