package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// mockSSMClient implements SSMClient for testing. It records calls and
// returns configurable responses/errors.
type mockSSMClient struct {
	// getParameterFn, if set, is called for GetParameter requests.
	getParameterFn func(ctx context.Context, input *ssm.GetParameterInput) (*ssm.GetParameterOutput, error)

	// putParameterFn, if set, is called for PutParameter requests.
	putParameterFn func(ctx context.Context, input *ssm.PutParameterInput) (*ssm.PutParameterOutput, error)

	// getCalls records all GetParameter invocations for assertion.
	getCalls []*ssm.GetParameterInput

	// putCalls records all PutParameter invocations for assertion.
	putCalls []*ssm.PutParameterInput
}

func (m *mockSSMClient) GetParameter(ctx context.Context, params *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	m.getCalls = append(m.getCalls, params)
	if m.getParameterFn != nil {
		return m.getParameterFn(ctx, params)
	}
	return &ssm.GetParameterOutput{}, nil
}

func (m *mockSSMClient) PutParameter(ctx context.Context, params *ssm.PutParameterInput, _ ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	m.putCalls = append(m.putCalls, params)
	if m.putParameterFn != nil {
		return m.putParameterFn(ctx, params)
	}
	return &ssm.PutParameterOutput{
		Version: 1,
	}, nil
}

// newTestSSMManager creates an SSMManager with a mock client for testing.
func newTestSSMManager(mock *mockSSMClient, env string) *SSMManager {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	return NewSSMManagerWithClient(mock, env, logger)
}

// notFoundSSMClient returns ParameterNotFound for every GetParameter call.
func notFoundSSMClient() *mockSSMClient {
	return &mockSSMClient{
		getParameterFn: func(_ context.Context, input *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
			return nil, &ssmtypes.ParameterNotFound{Message: aws.String("not found")}
		},
	}
}

func TestSSMPath(t *testing.T) {
	tests := []struct {
		name           string
		env            string
		categoryAndKey string
		expected       string
	}{
		{
			name:           "dev database URL",
			env:            "dev",
			categoryAndKey: "database/url",
			expected:       "/dev/creditgate/database/url",
		},
		{
			name:           "prod webhook secret",
			env:            "prod",
			categoryAndKey: "gateway/abacatepay_webhook_secret",
			expected:       "/prod/creditgate/gateway/abacatepay_webhook_secret",
		},
		{
			name:           "staging queue url",
			env:            "staging",
			categoryAndKey: "queue/recon_alerts_url",
			expected:       "/staging/creditgate/queue/recon_alerts_url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := newTestSSMManager(&mockSSMClient{}, tt.env)
			if got := mgr.SSMPath(tt.categoryAndKey); got != tt.expected {
				t.Errorf("SSMPath(%q) = %q, want %q", tt.categoryAndKey, got, tt.expected)
			}
		})
	}
}

func TestParameterExists_Found(t *testing.T) {
	mock := &mockSSMClient{
		getParameterFn: func(_ context.Context, input *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
			return &ssm.GetParameterOutput{
				Parameter: &ssmtypes.Parameter{Name: input.Name},
			}, nil
		},
	}
	mgr := newTestSSMManager(mock, "dev")

	exists, err := mgr.ParameterExists(context.Background(), "/dev/creditgate/database/url")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Error("expected exists=true")
	}

	// Existence checks must not request decryption.
	if len(mock.getCalls) != 1 {
		t.Fatalf("expected 1 GetParameter call, got %d", len(mock.getCalls))
	}
	if aws.ToBool(mock.getCalls[0].WithDecryption) {
		t.Error("existence check should not request decryption")
	}
}

func TestParameterExists_NotFound(t *testing.T) {
	mgr := newTestSSMManager(notFoundSSMClient(), "dev")

	exists, err := mgr.ParameterExists(context.Background(), "/dev/creditgate/database/url")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exists {
		t.Error("expected exists=false for ParameterNotFound")
	}
}

func TestParameterExists_UnexpectedError(t *testing.T) {
	mock := &mockSSMClient{
		getParameterFn: func(_ context.Context, _ *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
			return nil, fmt.Errorf("access denied")
		},
	}
	mgr := newTestSSMManager(mock, "dev")

	_, err := mgr.ParameterExists(context.Background(), "/dev/creditgate/database/url")
	if err == nil {
		t.Fatal("expected error for unexpected SSM failure")
	}
}

func TestPutSecret_WritesSecureString(t *testing.T) {
	mock := &mockSSMClient{}
	mgr := newTestSSMManager(mock, "dev")

	err := mgr.PutSecret(context.Background(), "/dev/creditgate/database/url", "postgres://u:p@h:6543/db", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mock.putCalls) != 1 {
		t.Fatalf("expected 1 PutParameter call, got %d", len(mock.putCalls))
	}
	call := mock.putCalls[0]
	if call.Type != ssmtypes.ParameterTypeSecureString {
		t.Errorf("expected SecureString type, got %s", call.Type)
	}
	if aws.ToBool(call.Overwrite) {
		t.Error("expected overwrite=false")
	}
}

func TestPutSecret_AlreadyExists(t *testing.T) {
	mock := &mockSSMClient{
		putParameterFn: func(_ context.Context, _ *ssm.PutParameterInput) (*ssm.PutParameterOutput, error) {
			return nil, &ssmtypes.ParameterAlreadyExists{Message: aws.String("exists")}
		},
	}
	mgr := newTestSSMManager(mock, "dev")

	err := mgr.PutSecret(context.Background(), "/dev/creditgate/database/url", "value", false)
	if err == nil {
		t.Fatal("expected error when parameter already exists without overwrite")
	}
}

func TestPutString_AlwaysOverwrites(t *testing.T) {
	mock := &mockSSMClient{}
	mgr := newTestSSMManager(mock, "dev")

	err := mgr.PutString(context.Background(), "/dev/creditgate/queue/recon_alerts_url", "pending_setup")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	call := mock.putCalls[0]
	if call.Type != ssmtypes.ParameterTypeString {
		t.Errorf("expected String type, got %s", call.Type)
	}
	if !aws.ToBool(call.Overwrite) {
		t.Error("PutString should always overwrite")
	}
}

func TestPutParameter_RejectsEmptyInputs(t *testing.T) {
	mgr := newTestSSMManager(&mockSSMClient{}, "dev")

	if err := mgr.PutString(context.Background(), "", "value"); err == nil {
		t.Error("expected error for empty path")
	}
	if err := mgr.PutString(context.Background(), "/dev/creditgate/queue/recon_alerts_url", ""); err == nil {
		t.Error("expected error for empty value")
	}
}

func TestGetParameterValue_Decrypts(t *testing.T) {
	mock := &mockSSMClient{
		getParameterFn: func(_ context.Context, input *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
			return &ssm.GetParameterOutput{
				Parameter: &ssmtypes.Parameter{
					Name:  input.Name,
					Value: aws.String("s3cret"),
				},
			}, nil
		},
	}
	mgr := newTestSSMManager(mock, "dev")

	val, err := mgr.GetParameterValue(context.Background(), "/dev/creditgate/gateway/abacatepay_webhook_secret", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "s3cret" {
		t.Errorf("got %q, want %q", val, "s3cret")
	}
	if !aws.ToBool(mock.getCalls[0].WithDecryption) {
		t.Error("expected decryption to be requested")
	}
}

func TestGetParameterValue_NotFound(t *testing.T) {
	mgr := newTestSSMManager(notFoundSSMClient(), "dev")

	_, err := mgr.GetParameterValue(context.Background(), "/dev/creditgate/database/url", true)
	if err == nil {
		t.Fatal("expected error for missing parameter")
	}
}
