package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"creditgate/internal/types"
)

// --- Mocks ---

type mockFinder struct {
	mock.Mock
}

func (m *mockFinder) GetByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*types.Transaction, error) {
	args := m.Called(ctx, gatewayPaymentID)
	if t := args.Get(0); t != nil {
		return t.(*types.Transaction), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockFinder) FindRecentPendingByAmount(ctx context.Context, gatewayName string, amount decimal.Decimal, since time.Time, limit int) ([]*types.Transaction, error) {
	args := m.Called(ctx, gatewayName, amount, since, limit)
	if t := args.Get(0); t != nil {
		return t.([]*types.Transaction), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockFinder) SetGatewayPaymentID(ctx context.Context, transactionID, gatewayPaymentID string) error {
	args := m.Called(ctx, transactionID, gatewayPaymentID)
	return args.Error(0)
}

type mockAlerts struct {
	mock.Mock
}

func (m *mockAlerts) Publish(ctx context.Context, alert types.ReconAlert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

type fakeMetrics struct {
	fallbackMatches     int
	paymentsSettled     int
	duplicateDeliveries int
}

func (f *fakeMetrics) RecordFallbackMatch(context.Context)                   { f.fallbackMatches++ }
func (f *fakeMetrics) RecordPaymentSettled(context.Context, decimal.Decimal) { f.paymentsSettled++ }
func (f *fakeMetrics) RecordDuplicateDelivery(context.Context)               { f.duplicateDeliveries++ }

func notFoundErr() error {
	return types.NewAppError(types.ErrCodeNotFoundTransaction, "Transaction not found", nil)
}

func pendingTxn(id string, createdAt time.Time) *types.Transaction {
	return &types.Transaction{
		ID:          id,
		ClientID:    "client_" + id,
		Amount:      decimal.RequireFromString("150.00"),
		Status:      types.TxStatusPending,
		GatewayName: "abacatepay",
		CreatedAt:   createdAt,
	}
}

func paidFact() types.PaymentFact {
	return types.PaymentFact{
		EventType:        "billing.paid",
		GatewayPaymentID: "pay_123",
		Status:           "PAID",
		Amount:           decimal.RequireFromString("150.00"),
	}
}

// --- Resolver Tests ---

func TestResolver_Resolve_ExactMatch(t *testing.T) {
	finder := new(mockFinder)
	metrics := &fakeMetrics{}
	r := NewResolver(finder, nil, metrics, "abacatepay", nil)

	want := pendingTxn("tx_1", time.Now())
	finder.On("GetByGatewayPaymentID", mock.Anything, "pay_123").Return(want, nil)

	got, err := r.Resolve(context.Background(), paidFact())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// No fallback means no fallback metric.
	assert.Zero(t, metrics.fallbackMatches)
	finder.AssertNotCalled(t, "FindRecentPendingByAmount",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestResolver_Resolve_FallbackSingleCandidate(t *testing.T) {
	finder := new(mockFinder)
	metrics := &fakeMetrics{}
	r := NewResolver(finder, nil, metrics, "abacatepay", nil)

	candidate := pendingTxn("tx_1", time.Now().Add(-time.Hour))
	finder.On("GetByGatewayPaymentID", mock.Anything, "pay_123").Return(nil, notFoundErr())
	finder.On("FindRecentPendingByAmount",
		mock.Anything, "abacatepay", mock.Anything, mock.Anything, fallbackCandidateLimit).
		Return([]*types.Transaction{candidate}, nil)
	finder.On("SetGatewayPaymentID", mock.Anything, "tx_1", "pay_123").Return(nil)

	got, err := r.Resolve(context.Background(), paidFact())
	require.NoError(t, err)
	assert.Equal(t, "tx_1", got.ID)
	require.NotNil(t, got.GatewayPaymentID)
	assert.Equal(t, "pay_123", *got.GatewayPaymentID)
	assert.Equal(t, 1, metrics.fallbackMatches)
	finder.AssertExpectations(t)
}

func TestResolver_Resolve_FallbackUsesMostRecent(t *testing.T) {
	finder := new(mockFinder)
	alerts := new(mockAlerts)
	r := NewResolver(finder, alerts, nil, "abacatepay", nil)

	now := time.Now()
	newest := pendingTxn("tx_new", now.Add(-10*time.Minute))
	oldest := pendingTxn("tx_old", now.Add(-20*time.Hour))

	finder.On("GetByGatewayPaymentID", mock.Anything, "pay_123").Return(nil, notFoundErr())
	// Repository returns candidates most recent first.
	finder.On("FindRecentPendingByAmount",
		mock.Anything, "abacatepay", mock.Anything, mock.Anything, fallbackCandidateLimit).
		Return([]*types.Transaction{newest, oldest}, nil)
	finder.On("SetGatewayPaymentID", mock.Anything, "tx_new", "pay_123").Return(nil)
	alerts.On("Publish", mock.Anything, mock.MatchedBy(func(a types.ReconAlert) bool {
		return a.Kind == types.AlertAmbiguousFallback && a.TransactionID == "tx_new"
	})).Return(nil)

	got, err := r.Resolve(context.Background(), paidFact())
	require.NoError(t, err)
	assert.Equal(t, "tx_new", got.ID)
	alerts.AssertExpectations(t)
}

func TestResolver_Resolve_FallbackWindowIs24Hours(t *testing.T) {
	finder := new(mockFinder)
	r := NewResolver(finder, nil, nil, "abacatepay", nil)

	fixed := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	finder.On("GetByGatewayPaymentID", mock.Anything, "pay_123").Return(nil, notFoundErr())
	finder.On("FindRecentPendingByAmount",
		mock.Anything, "abacatepay", mock.Anything, fixed.Add(-24*time.Hour), fallbackCandidateLimit).
		Return(nil, nil)

	_, err := r.Resolve(context.Background(), paidFact())
	require.Error(t, err)
	finder.AssertExpectations(t)
}

func TestResolver_Resolve_NotFoundAnywhere(t *testing.T) {
	finder := new(mockFinder)
	r := NewResolver(finder, nil, nil, "abacatepay", nil)

	finder.On("GetByGatewayPaymentID", mock.Anything, "pay_123").Return(nil, notFoundErr())
	finder.On("FindRecentPendingByAmount",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, nil)

	_, err := r.Resolve(context.Background(), paidFact())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundTransaction, appErr.Code)
}

func TestResolver_Resolve_BackfillFailureDoesNotFailResolution(t *testing.T) {
	finder := new(mockFinder)
	alerts := new(mockAlerts)
	r := NewResolver(finder, alerts, nil, "abacatepay", nil)

	candidate := pendingTxn("tx_1", time.Now().Add(-time.Hour))
	finder.On("GetByGatewayPaymentID", mock.Anything, "pay_123").Return(nil, notFoundErr())
	finder.On("FindRecentPendingByAmount",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*types.Transaction{candidate}, nil)
	finder.On("SetGatewayPaymentID", mock.Anything, "tx_1", "pay_123").
		Return(types.NewAppError(types.ErrCodeConflictPaymentIDSet, "transaction already carries a gateway payment id", nil))
	alerts.On("Publish", mock.Anything, mock.MatchedBy(func(a types.ReconAlert) bool {
		return a.Kind == types.AlertBackfillFailed && a.TransactionID == "tx_1"
	})).Return(nil)

	got, err := r.Resolve(context.Background(), paidFact())
	require.NoError(t, err)
	assert.Equal(t, "tx_1", got.ID)
	assert.Nil(t, got.GatewayPaymentID)
	alerts.AssertExpectations(t)
}

func TestResolver_Resolve_ExactLookupDBErrorPropagates(t *testing.T) {
	finder := new(mockFinder)
	r := NewResolver(finder, nil, nil, "abacatepay", nil)

	dbErr := types.NewAppError(types.ErrCodeInternalDB, "failed to query transaction by gateway payment id", errors.New("connection refused"))
	finder.On("GetByGatewayPaymentID", mock.Anything, "pay_123").Return(nil, dbErr)

	_, err := r.Resolve(context.Background(), paidFact())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
	finder.AssertNotCalled(t, "FindRecentPendingByAmount",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestResolver_Resolve_AlertPublishFailureIsSwallowed(t *testing.T) {
	finder := new(mockFinder)
	alerts := new(mockAlerts)
	r := NewResolver(finder, alerts, nil, "abacatepay", nil)

	now := time.Now()
	finder.On("GetByGatewayPaymentID", mock.Anything, "pay_123").Return(nil, notFoundErr())
	finder.On("FindRecentPendingByAmount",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]*types.Transaction{pendingTxn("tx_a", now), pendingTxn("tx_b", now.Add(-time.Hour))}, nil)
	finder.On("SetGatewayPaymentID", mock.Anything, "tx_a", "pay_123").Return(nil)
	alerts.On("Publish", mock.Anything, mock.Anything).Return(errors.New("queue unreachable"))

	got, err := r.Resolve(context.Background(), paidFact())
	require.NoError(t, err)
	assert.Equal(t, "tx_a", got.ID)
}
