// Package sysconfig provides read access to the live system configuration
// store. Unlike the startup configuration in internal/config, values here may
// rotate at any time, so callers read them on every invocation and nothing is
// cached in-process.
//
// The production store is AWS SSM Parameter Store. Reads are wrapped in a
// circuit breaker so that an SSM outage fails fast instead of stalling every
// webhook delivery; the caller's environment-variable fallback still applies
// when the breaker is open.
package sysconfig

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/sony/gobreaker/v2"
)

// ErrNotFound is returned when the requested key does not exist in the store.
// It is distinct from transport failures: a missing key is an answer, not an
// outage, and does not count against the circuit breaker.
var ErrNotFound = errors.New("sysconfig: key not found")

// Store is the read-only key/value lookup consumed by the authenticator.
type Store interface {
	// Get returns the plaintext value for key, ErrNotFound if the key does
	// not exist, or a transport error when the store is unreachable.
	Get(ctx context.Context, key string) (string, error)
}

// ssmGetClient is the subset of the SSM SDK used by SSMStore.
type ssmGetClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMStore implements Store against SSM Parameter Store with decryption.
type SSMStore struct {
	client  ssmGetClient
	breaker *gobreaker.CircuitBreaker[string]
	logger  *slog.Logger
}

// NewSSMStore creates an SSMStore around the given SSM client. The breaker
// trips after five consecutive transport failures and probes again after
// thirty seconds.
func NewSSMStore(client ssmGetClient, logger *slog.Logger) *SSMStore {
	if logger == nil {
		logger = slog.Default()
	}

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "sysconfig-ssm",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
	})

	return &SSMStore{
		client:  client,
		breaker: cb,
		logger:  logger,
	}
}

// Get fetches and decrypts a single parameter through the circuit breaker.
func (s *SSMStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.breaker.Execute(func() (string, error) {
		out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           aws.String(key),
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			var notFound *ssmtypes.ParameterNotFound
			if errors.As(err, &notFound) {
				return "", ErrNotFound
			}
			return "", fmt.Errorf("sysconfig: GetParameter %s: %w", key, err)
		}
		if out.Parameter == nil || out.Parameter.Value == nil {
			return "", ErrNotFound
		}
		return *out.Parameter.Value, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			s.logger.WarnContext(ctx, "sysconfig circuit breaker open, failing fast",
				"key", key,
			)
		}
		return "", err
	}
	return value, nil
}

var _ Store = (*SSMStore)(nil)
