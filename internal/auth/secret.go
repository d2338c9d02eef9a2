// Package auth validates the shared webhook secret presented by the payment
// gateway. The webhook endpoint carries no session or token auth -- the
// secret in the query string or header is the only proof the caller is the
// gateway.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"creditgate/internal/sysconfig"
	"creditgate/internal/types"
)

// Request locations checked for the presented secret, in priority order.
const (
	QueryParamSecret    = "webhookSecret"
	QueryParamSecretAlt = "secret"
	HeaderSecret        = "x-webhook-secret"
)

// EnvFallbackVar is the environment variable consulted when the config store
// has no secret. A value equal to the variable's own name is a template
// placeholder left unexpanded by a broken deploy and is rejected.
const EnvFallbackVar = "ABACATEPAY_WEBHOOK_SECRET"

// CandidateFromRequest extracts the presented secret from the request,
// preferring query parameters over the header. Returns the empty string when
// no candidate is present.
func CandidateFromRequest(r *http.Request) string {
	if v := r.URL.Query().Get(QueryParamSecret); v != "" {
		return v
	}
	if v := r.URL.Query().Get(QueryParamSecretAlt); v != "" {
		return v
	}
	return r.Header.Get(HeaderSecret)
}

// SecretAuthenticator compares a presented webhook secret against the
// configured one. The expected secret is read from the sysconfig store on
// every invocation (it may rotate), falling back to the environment.
//
// It holds no mutable state and performs no side effects beyond comparison.
type SecretAuthenticator struct {
	store     sysconfig.Store
	configKey string
	lookupEnv func(key string) (string, bool)
	logger    *slog.Logger
}

// Option customizes a SecretAuthenticator.
type Option func(*SecretAuthenticator)

// WithEnvLookup injects the environment accessor, so tests do not have to
// mutate process state.
func WithEnvLookup(fn func(key string) (string, bool)) Option {
	return func(a *SecretAuthenticator) {
		a.lookupEnv = fn
	}
}

// NewSecretAuthenticator creates an authenticator reading the expected
// secret from store under configKey.
func NewSecretAuthenticator(store sysconfig.Store, configKey string, logger *slog.Logger, opts ...Option) *SecretAuthenticator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &SecretAuthenticator{
		store:     store,
		configKey: configKey,
		lookupEnv: os.LookupEnv,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate validates the presented secret. Error codes:
//   - ErrCodeAuthSecretMissing: no candidate was presented.
//   - ErrCodeConfigSecretUnavailable: the expected secret cannot be resolved
//     from the store or the environment (operational error, not the
//     caller's fault).
//   - ErrCodeAuthSecretInvalid: the secrets do not match.
func (a *SecretAuthenticator) Authenticate(ctx context.Context, presented string) error {
	if presented == "" {
		return types.NewAppError(
			types.ErrCodeAuthSecretMissing,
			"Missing webhook secret in request",
			nil,
		)
	}

	expected, err := a.expectedSecret(ctx)
	if err != nil {
		return types.NewAppError(
			types.ErrCodeConfigSecretUnavailable,
			"Webhook secret not configured on server",
			err,
		)
	}

	if !secretsEqual(normalizeSecret(presented), expected) {
		a.logger.WarnContext(ctx, "webhook secret mismatch",
			"expected_len", len(expected),
			"received_len", len(normalizeSecret(presented)),
		)
		return types.NewAppError(
			types.ErrCodeAuthSecretInvalid,
			"invalid webhook secret",
			nil,
		)
	}

	return nil
}

// expectedSecret resolves the configured secret: sysconfig store first, then
// the environment fallback. Store values written by the admin tooling may be
// JSON-encoded strings; those are unwrapped before use.
func (a *SecretAuthenticator) expectedSecret(ctx context.Context) (string, error) {
	value, err := a.store.Get(ctx, a.configKey)
	switch {
	case err == nil:
		if s := normalizeSecret(unwrapJSONString(value)); s != "" {
			return s, nil
		}
		a.logger.WarnContext(ctx, "config store returned empty webhook secret, trying environment fallback",
			"config_key", a.configKey,
		)
	case errors.Is(err, sysconfig.ErrNotFound):
		a.logger.InfoContext(ctx, "webhook secret not in config store, trying environment fallback",
			"config_key", a.configKey,
		)
	default:
		a.logger.ErrorContext(ctx, "config store lookup failed, trying environment fallback",
			"config_key", a.configKey,
			"error", err,
		)
	}

	env, ok := a.lookupEnv(EnvFallbackVar)
	if !ok || env == EnvFallbackVar {
		return "", errors.New("webhook secret not found in config store or environment")
	}
	if s := normalizeSecret(env); s != "" {
		return s, nil
	}
	return "", errors.New("webhook secret environment fallback is empty")
}

// unwrapJSONString returns the inner string when value is a JSON-encoded
// string literal, and value unchanged otherwise.
func unwrapJSONString(value string) string {
	var inner string
	if err := json.Unmarshal([]byte(value), &inner); err == nil {
		return inner
	}
	return value
}

// normalizeSecret trims surrounding whitespace and strips carriage returns
// and newlines, which sneak in when secrets are pasted into config stores.
func normalizeSecret(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", "")
}

// secretsEqual compares two secrets in constant time. Hashing both sides
// first keeps the comparison correct for values of differing length.
func secretsEqual(a, b string) bool {
	ah := sha256.Sum256([]byte(a))
	bh := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ah[:], bh[:]) == 1
}
