// Package types defines the domain model and shared error taxonomy for the
// CreditGate reconciliation engine. The entities mirror the production
// Postgres schema (legacy table and column names are preserved in the db
// layer; the Go names here are the canonical vocabulary).
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the lifecycle state of a credit purchase transaction.
// The only legal transition is pending -> paid, performed exactly once by the
// settlement state machine via an atomic conditional update.
type TransactionStatus string

const (
	// TxStatusPending is the initial state set by the purchase flow.
	// Stored as "pendente" (the schema predates this service).
	TxStatusPending TransactionStatus = "pendente"

	// TxStatusPaid is the terminal state. Stored as "pago".
	TxStatusPaid TransactionStatus = "pago"
)

// Transaction is a persisted record of a pending or completed prepaid credit
// purchase. It is created by the upstream purchase flow; this engine only
// transitions status and backfills GatewayPaymentID.
type Transaction struct {
	ID               string
	ClientID         string
	Amount           decimal.Decimal
	Status           TransactionStatus
	GatewayName      string
	GatewayPaymentID *string // nil until the gateway's id is known; immutable once set
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsPaid reports whether the transaction has already been settled.
func (t *Transaction) IsPaid() bool {
	return t.Status == TxStatusPaid
}

// PricingRange is an immutable-at-read-time band mapping an amount interval
// [Min, Max] to the per-unit prices applied to credit purchased inside it.
type PricingRange struct {
	ID               string
	Min              decimal.Decimal
	Max              decimal.Decimal
	UnitPriceVoice   decimal.Decimal
	UnitPriceNoVoice decimal.Decimal
	Active           bool
}

// Contains reports whether amount falls inside the range (inclusive bounds).
func (p *PricingRange) Contains(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(p.Min) && amount.LessThanOrEqual(p.Max)
}

// CreditLot is a disbursed block of spendable credit. Exactly one lot is
// created per settled transaction; AmountRemaining is drawn down by the
// consumption flows outside this engine.
type CreditLot struct {
	ID                  string
	ClientID            string
	AmountTotal         decimal.Decimal
	AmountRemaining     decimal.Decimal
	UnitPriceVoice      decimal.Decimal
	UnitPriceNoVoice    decimal.Decimal
	SourceTransactionID string
	Active              bool
	CreatedAt           time.Time
}

// CreditLogKindRecharge is the ledger entry kind written on settlement.
const CreditLogKindRecharge = "recarga"

// CreditLogEntry is an append-only ledger line. The ledger is an audit trail,
// not the source of truth for balance: a failed insert is reported to the
// operational log but never fails the settlement.
type CreditLogEntry struct {
	ClientID string
	LotID    string
	Amount   decimal.Decimal
	Kind     string
}

// PaymentFact is the canonical projection of an inbound gateway event. It is
// derived by the normalizer and never persisted. Status is carried as the
// gateway's free-form string; classification into approved/unapproved happens
// in the gateway package.
type PaymentFact struct {
	EventType        string
	GatewayPaymentID string
	Status           string
	Amount           decimal.Decimal // major currency units
}
