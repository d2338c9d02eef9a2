package gateway

import "creditgate/internal/types"

// Event types and statuses AbacatePay uses to signal a settled payment.
// Matching is case-sensitive: these are the exact values the gateway emits.
var (
	approvedEventTypes = map[string]struct{}{
		"billing.paid":     {},
		"PAYMENT_APPROVED": {},
		"payment.paid":     {},
	}
	approvedStatuses = map[string]struct{}{
		"PAID":      {},
		"CONFIRMED": {},
		"paid":      {},
		"approved":  {},
	}
)

// IsApproved reports whether the fact represents a confirmed payment. Either
// an approved event type or an approved payment status qualifies; anything
// else (pending, refunds, cancellations) is acknowledged without crediting.
func IsApproved(fact types.PaymentFact) bool {
	if _, ok := approvedEventTypes[fact.EventType]; ok {
		return true
	}
	_, ok := approvedStatuses[fact.Status]
	return ok
}
