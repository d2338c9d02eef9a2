// Package gateway parses AbacatePay webhook payloads into a normalized
// payment fact, absorbing the several envelope shapes the gateway has
// shipped over time.
package gateway

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"creditgate/internal/types"
)

// envelope covers every payload shape AbacatePay delivers. Older payloads
// carry "event" and a top-level "payment" object; newer ones use "type" and
// nest the payment under data.pixQrCode or data.payment.
type envelope struct {
	Event   string          `json:"event"`
	Type    string          `json:"type"`
	Payment json.RawMessage `json:"payment"`
	Data    *struct {
		PixQrCode json.RawMessage `json:"pixQrCode"`
		Payment   json.RawMessage `json:"payment"`
	} `json:"data"`
}

type paymentObject struct {
	ID     string      `json:"id"`
	Status string      `json:"status"`
	Amount json.Number `json:"amount"`
}

var minorUnitDivisor = decimal.NewFromInt(100)

// Normalize parses a raw webhook body into a PaymentFact. The gateway sends
// amounts in centavos; they are converted to currency units here so the rest
// of the pipeline only ever sees monetary values.
func Normalize(body []byte) (types.PaymentFact, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return types.PaymentFact{}, types.NewAppError(
			types.ErrCodeValidationInvalidJSON,
			"Invalid JSON payload",
			err,
		)
	}

	fact := types.PaymentFact{EventType: firstNonEmpty(env.Event, env.Type)}

	raw := paymentPayload(env)
	if len(raw) > 0 {
		var payment paymentObject
		if err := json.Unmarshal(raw, &payment); err != nil {
			return types.PaymentFact{}, types.NewAppError(
				types.ErrCodeValidationInvalidJSON,
				"Invalid JSON payload",
				err,
			)
		}
		fact.GatewayPaymentID = strings.TrimSpace(payment.ID)
		fact.Status = payment.Status
		if payment.Amount != "" {
			amount, err := decimal.NewFromString(payment.Amount.String())
			if err != nil {
				return types.PaymentFact{}, types.NewAppError(
					types.ErrCodeValidationInvalidJSON,
					"Invalid JSON payload",
					err,
				)
			}
			fact.Amount = amount.Div(minorUnitDivisor)
		}
	}

	if fact.GatewayPaymentID == "" {
		return types.PaymentFact{}, types.NewAppError(
			types.ErrCodeValidationPaymentIDMissing,
			"No payment ID found",
			nil,
		)
	}

	return fact, nil
}

// paymentPayload picks the first payment object present in the envelope:
// top-level payment, then data.pixQrCode, then data.payment.
func paymentPayload(env envelope) json.RawMessage {
	if isPresent(env.Payment) {
		return env.Payment
	}
	if env.Data != nil {
		if isPresent(env.Data.PixQrCode) {
			return env.Data.PixQrCode
		}
		if isPresent(env.Data.Payment) {
			return env.Data.Payment
		}
	}
	return nil
}

func isPresent(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
