package types

import "time"

// AlertKind classifies reconciliation alert messages published to the alert
// queue. Alerts cover the conditions the engine deliberately swallows from
// the gateway's perspective but that operators need to see.
type AlertKind string

const (
	// AlertAmbiguousFallback: more than one pending transaction matched the
	// fallback heuristic; the most recent one was used.
	AlertAmbiguousFallback AlertKind = "ambiguous_fallback"

	// AlertBackfillFailed: writing the gateway payment id onto a
	// fallback-matched transaction failed; reconciliation continued.
	AlertBackfillFailed AlertKind = "backfill_failed"

	// AlertLedgerWriteFailed: the credit log insert failed after the lot was
	// committed; balance is correct, the audit trail has a gap.
	AlertLedgerWriteFailed AlertKind = "ledger_write_failed"

	// AlertReactivationFailed: clearing the manual account block failed
	// after credit was granted.
	AlertReactivationFailed AlertKind = "reactivation_failed"
)

// ReconAlert is the message body sent to the reconciliation alert queue and
// consumed by the alert worker.
type ReconAlert struct {
	TraceID          string    `json:"trace_id"`
	Kind             AlertKind `json:"kind"`
	TransactionID    string    `json:"transaction_id,omitempty"`
	GatewayPaymentID string    `json:"gateway_payment_id,omitempty"`
	ClientID         string    `json:"client_id,omitempty"`
	Amount           string    `json:"amount,omitempty"`
	Detail           string    `json:"detail,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}
