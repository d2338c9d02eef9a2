// Package handlers contains the HTTP handler implementations for the
// CreditGate webhook surface.
//
// The gateway webhook handler is NOT behind auth middleware -- it is called
// directly by AbacatePay. Security is provided by the shared webhook secret
// carried in the query string or the x-webhook-secret header.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"creditgate/internal/auth"
	"creditgate/internal/core"
	"creditgate/internal/gateway"
	"creditgate/internal/reconcile"
	"creditgate/internal/types"
)

// maxWebhookBodySize is the maximum allowed size of a gateway webhook
// payload (64 KB). AbacatePay payloads are small; this limit protects
// against abuse.
const maxWebhookBodySize = 64 * 1024

// ---------------------------------------------------------------------------
// Interfaces for webhook handler dependencies
// ---------------------------------------------------------------------------

// SecretAuthenticator validates a presented webhook secret against the
// configured one.
type SecretAuthenticator interface {
	Authenticate(ctx context.Context, presented string) error
}

// TransactionResolver matches a payment fact to a transaction.
type TransactionResolver interface {
	Resolve(ctx context.Context, fact types.PaymentFact) (*types.Transaction, error)
}

// PaymentSettler drives a resolved transaction through settlement.
type PaymentSettler interface {
	Settle(ctx context.Context, fact types.PaymentFact, txn *types.Transaction) (*reconcile.Result, error)
}

// ---------------------------------------------------------------------------
// Gateway Webhook Handler
// ---------------------------------------------------------------------------

// GatewayWebhookHandler sequences authentication, payload normalization,
// transaction resolution, and settlement for AbacatePay deliveries. It owns
// the caller-facing response bodies; the response contract predates this
// service and is kept byte-compatible with the implementation the gateway
// was integrated against.
type GatewayWebhookHandler struct {
	authenticator SecretAuthenticator
	resolver      TransactionResolver
	settler       PaymentSettler
	logger        *slog.Logger
}

// NewGatewayWebhookHandler creates the handler with its dependencies.
func NewGatewayWebhookHandler(
	authenticator SecretAuthenticator,
	resolver TransactionResolver,
	settler PaymentSettler,
	logger *slog.Logger,
) *GatewayWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GatewayWebhookHandler{
		authenticator: authenticator,
		resolver:      resolver,
		settler:       settler,
		logger:        logger,
	}
}

// RegisterRoutes mounts the gateway webhook endpoint under the router's
// /webhooks group.
func (h *GatewayWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/abacatepay", h.Handle)
}

// Handle processes one webhook delivery:
//
//  1. Validates the webhook secret (before touching the payload).
//  2. Requires an application/json content type and a parseable body.
//  3. Normalizes the payload into a PaymentFact.
//  4. Resolves the transaction (exact id, then amount fallback).
//  5. Settles: idempotency guard, pricing, atomic claim + lot, follow-ups.
func (h *GatewayWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Step 1: secret validation, before any payload parsing.
	if err := h.authenticator.Authenticate(ctx, auth.CandidateFromRequest(r)); err != nil {
		h.writeAuthError(w, r, err)
		return
	}

	// Step 2: content type and body.
	if ct := r.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		core.JSON(w, r, http.StatusBadRequest, errorBody{Error: "Invalid content-type"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to read webhook body", "error", err)
		core.JSON(w, r, http.StatusBadRequest, errorBody{Error: "Invalid JSON body"})
		return
	}

	// Step 3: normalize.
	fact, err := gateway.Normalize(body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "gateway webhook received",
		"event_type", fact.EventType,
		"gateway_payment_id", fact.GatewayPaymentID,
		"status", fact.Status,
		"amount", fact.Amount.String(),
	)

	// Step 4: resolve.
	txn, err := h.resolver.Resolve(ctx, fact)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// Step 5: settle.
	result, err := h.settler.Settle(ctx, fact, txn)
	if err != nil {
		h.writeSettlementError(w, r, err, txn)
		return
	}

	if !result.Processed {
		core.JSON(w, r, http.StatusOK, map[string]any{
			"message": "Webhook received but not processed",
		})
		return
	}

	core.JSON(w, r, http.StatusOK, map[string]any{
		"success":     true,
		"message":     "Payment processed successfully",
		"loteId":      result.LotID,
		"creditValue": json.Number(result.CreditedAmount.String()),
	})
}

// errorBody is the legacy {"error": ...} response shape.
type errorBody struct {
	Error string `json:"error"`
}

// writeAuthError maps authenticator failures to the legacy auth bodies,
// which carry an explicit numeric code field.
func (h *GatewayWebhookHandler) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		core.JSON(w, r, http.StatusInternalServerError, errorBody{Error: "Erro desconhecido"})
		return
	}

	status := appErr.HTTPStatus()
	core.JSON(w, r, status, map[string]any{
		"code":    status,
		"message": appErr.Message,
	})
}

// writeError maps normalization and resolution failures to the legacy
// {"error": ...} bodies.
func (h *GatewayWebhookHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		h.logger.ErrorContext(r.Context(), "unexpected webhook processing error", "error", err)
		core.JSON(w, r, http.StatusInternalServerError, errorBody{Error: "Erro desconhecido"})
		return
	}

	switch appErr.Code {
	case types.ErrCodeValidationInvalidJSON:
		core.JSON(w, r, http.StatusBadRequest, errorBody{Error: "Invalid JSON body"})
	case types.ErrCodeValidationPaymentIDMissing:
		core.JSON(w, r, http.StatusBadRequest, errorBody{Error: "No payment ID found"})
	case types.ErrCodeNotFoundTransaction:
		core.JSON(w, r, http.StatusNotFound, errorBody{Error: "Transaction not found"})
	default:
		h.logger.ErrorContext(r.Context(), "webhook processing failed",
			"code", string(appErr.Code),
			"error", appErr,
		)
		core.JSON(w, r, appErr.HTTPStatus(), errorBody{Error: appErr.Message})
	}
}

// writeSettlementError maps settlement failures, which have richer legacy
// bodies than the earlier stages.
func (h *GatewayWebhookHandler) writeSettlementError(w http.ResponseWriter, r *http.Request, err error, txn *types.Transaction) {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		h.logger.ErrorContext(r.Context(), "unexpected settlement error", "error", err)
		core.JSON(w, r, http.StatusInternalServerError, errorBody{Error: "Erro desconhecido"})
		return
	}

	switch appErr.Code {
	case types.ErrCodeNotFoundPricingRange:
		core.JSON(w, r, http.StatusBadRequest, map[string]any{
			"error":        "Pricing range not found",
			"value":        json.Number(txn.Amount.String()),
			"pricingError": appErr.Message,
		})
	case types.ErrCodePersistenceLotCreate:
		h.logger.ErrorContext(r.Context(), "credit lot creation failed",
			"transaction_id", txn.ID,
			"error", appErr,
		)
		core.JSON(w, r, http.StatusInternalServerError, errorBody{Error: "Failed to create credit lote"})
	case types.ErrCodePersistenceStatusUpdate:
		h.logger.ErrorContext(r.Context(), "transaction status update failed",
			"transaction_id", txn.ID,
			"error", appErr,
		)
		core.JSON(w, r, http.StatusInternalServerError, errorBody{Error: "Failed to update transaction"})
	default:
		h.logger.ErrorContext(r.Context(), "settlement failed",
			"transaction_id", txn.ID,
			"code", string(appErr.Code),
			"error", appErr,
		)
		core.JSON(w, r, appErr.HTTPStatus(), errorBody{Error: appErr.Message})
	}
}
