package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// newTestRunner builds a BootstrapRunner with a mock SSM client, scripted
// stdin, and a captured stderr buffer.
func newTestRunner(mock *mockSSMClient, stdin string) (*BootstrapRunner, *bytes.Buffer) {
	stderr := &bytes.Buffer{}
	return &BootstrapRunner{
		SSM:       newTestSSMManager(mock, "dev"),
		Validator: NewValidatorWithDeps(&mockConnector{}),
		Stdin:     strings.NewReader(stdin),
		Stderr:    stderr,
	}, stderr
}

// acceptAll is a validator stub that passes any input.
func acceptAll(_ context.Context, _ string) ValidationResult {
	return ValidationResult{Valid: true, Message: "accepted"}
}

func TestBuildInventory_Shape(t *testing.T) {
	v := NewValidatorWithDeps(&mockConnector{})
	inventory := BuildInventory(v)

	if len(inventory) != 3 {
		t.Fatalf("inventory length = %d, want 3", len(inventory))
	}

	byKey := make(map[string]BootstrapStep)
	for _, step := range inventory {
		byKey[step.SSMCategoryKey] = step
	}

	dbStep, ok := byKey["database/url"]
	if !ok {
		t.Fatal("inventory missing database/url")
	}
	if dbStep.ParamType != ParamSecureString || dbStep.Source != SourcePrompt || !dbStep.IsSecret {
		t.Error("database/url must be a prompted SecureString secret")
	}
	if dbStep.ValidateFn == nil {
		t.Error("database/url must have a validator")
	}

	secretStep, ok := byKey["gateway/abacatepay_webhook_secret"]
	if !ok {
		t.Fatal("inventory missing gateway/abacatepay_webhook_secret")
	}
	if secretStep.ParamType != ParamSecureString || secretStep.Source != SourceGenerated {
		t.Error("webhook secret must be a generated SecureString")
	}

	queueStep, ok := byKey["queue/recon_alerts_url"]
	if !ok {
		t.Fatal("inventory missing queue/recon_alerts_url")
	}
	if queueStep.Source != SourceFixed || queueStep.FixedValue != "pending_setup" {
		t.Error("queue URL must be a fixed pending_setup placeholder")
	}
}

func TestRun_FullBootstrap(t *testing.T) {
	mock := notFoundSSMClient()

	// One prompted value (the database URL); the rest are generated/fixed.
	runner, stderr := newTestRunner(mock, "postgres://u:p@h:6543/db\n")
	runner.inventoryOverride = []BootstrapStep{
		{
			HumanLabel:     "Database URL",
			SSMCategoryKey: "database/url",
			ParamType:      ParamSecureString,
			Source:         SourcePrompt,
			Prompt:         "paste:",
			ValidateFn:     acceptAll,
			IsSecret:       true,
			Phase:          "External Accounts",
		},
		{
			HumanLabel:     "AbacatePay Webhook Secret",
			SSMCategoryKey: "gateway/abacatepay_webhook_secret",
			ParamType:      ParamSecureString,
			Source:         SourceGenerated,
			Phase:          "Internal Secrets",
		},
		{
			HumanLabel:     "Recon Alert Queue URL",
			SSMCategoryKey: "queue/recon_alerts_url",
			ParamType:      ParamString,
			Source:         SourceFixed,
			FixedValue:     "pending_setup",
			Phase:          "Infrastructure Placeholders",
		},
	}

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mock.putCalls) != 3 {
		t.Fatalf("expected 3 PutParameter calls, got %d", len(mock.putCalls))
	}

	written := make(map[string]string)
	for _, call := range mock.putCalls {
		written[aws.ToString(call.Name)] = aws.ToString(call.Value)
	}

	if written["/dev/creditgate/database/url"] != "postgres://u:p@h:6543/db" {
		t.Errorf("database/url = %q", written["/dev/creditgate/database/url"])
	}
	if len(written["/dev/creditgate/gateway/abacatepay_webhook_secret"]) != 64 {
		t.Error("webhook secret should be a 64-char generated token")
	}
	if written["/dev/creditgate/queue/recon_alerts_url"] != "pending_setup" {
		t.Errorf("queue URL = %q", written["/dev/creditgate/queue/recon_alerts_url"])
	}

	out := stderr.String()
	if !strings.Contains(out, "Bootstrap Summary") {
		t.Error("summary not printed")
	}
	// The prompted secret value must never be echoed.
	if strings.Contains(out, "postgres://u:p@h:6543/db") {
		t.Error("secret input was echoed to stderr")
	}
}

func TestProcessStep_ExistingParameterSkipped(t *testing.T) {
	mock := &mockSSMClient{
		getParameterFn: func(_ context.Context, input *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
			return &ssm.GetParameterOutput{
				Parameter: &ssmtypes.Parameter{Name: input.Name},
			}, nil
		},
	}
	runner, _ := newTestRunner(mock, "s\n")

	result, err := runner.processStep(context.Background(), BootstrapStep{
		HumanLabel:     "Database URL",
		SSMCategoryKey: "database/url",
		ParamType:      ParamSecureString,
		Source:         SourcePrompt,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Action != "skipped" {
		t.Errorf("action = %q, want skipped", result.Action)
	}
	if len(mock.putCalls) != 0 {
		t.Error("skip must not write to SSM")
	}
}

func TestProcessStep_ExistingParameterOverwritten(t *testing.T) {
	mock := &mockSSMClient{
		getParameterFn: func(_ context.Context, input *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
			return &ssm.GetParameterOutput{
				Parameter: &ssmtypes.Parameter{Name: input.Name},
			}, nil
		},
	}
	runner, _ := newTestRunner(mock, "o\nnew-value\n")

	result, err := runner.processStep(context.Background(), BootstrapStep{
		HumanLabel:     "Database URL",
		SSMCategoryKey: "database/url",
		ParamType:      ParamSecureString,
		Source:         SourcePrompt,
		ValidateFn:     acceptAll,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Action != "overwritten" {
		t.Errorf("action = %q, want overwritten", result.Action)
	}

	call := mock.putCalls[0]
	if !aws.ToBool(call.Overwrite) {
		t.Error("expected overwrite=true for existing parameter")
	}
	if aws.ToString(call.Value) != "new-value" {
		t.Errorf("value = %q, want new-value", aws.ToString(call.Value))
	}
}

func TestProcessStep_EmptyInputThenSkip(t *testing.T) {
	mock := notFoundSSMClient()
	runner, _ := newTestRunner(mock, "\ns\n")

	result, err := runner.processStep(context.Background(), BootstrapStep{
		HumanLabel:     "Database URL",
		SSMCategoryKey: "database/url",
		ParamType:      ParamSecureString,
		Source:         SourcePrompt,
		ValidateFn:     acceptAll,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Action != "skipped" {
		t.Errorf("action = %q, want skipped", result.Action)
	}
}

func TestPromptAndValidate_RetriesOnValidationFailure(t *testing.T) {
	mock := notFoundSSMClient()
	runner, stderr := newTestRunner(mock, "bad\ngood\n")

	step := BootstrapStep{
		HumanLabel: "Database URL",
		Prompt:     "paste:",
		ValidateFn: func(_ context.Context, input string) ValidationResult {
			if input == "good" {
				return ValidationResult{Valid: true, Message: "ok"}
			}
			return ValidationResult{Valid: false, Message: "bad input"}
		},
	}

	value, err := runner.promptAndValidate(context.Background(), step)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "good" {
		t.Errorf("value = %q, want good", value)
	}
	if !strings.Contains(stderr.String(), "Validation failed: bad input") {
		t.Error("validation failure not reported")
	}
}

func TestPromptAndValidate_MaxRetriesExceeded(t *testing.T) {
	mock := notFoundSSMClient()
	runner, _ := newTestRunner(mock, strings.Repeat("bad\n", maxRetries+1))

	step := BootstrapStep{
		HumanLabel: "Database URL",
		Prompt:     "paste:",
		ValidateFn: func(_ context.Context, _ string) ValidationResult {
			return ValidationResult{Valid: false, Message: "always bad"}
		},
	}

	_, err := runner.promptAndValidate(context.Background(), step)
	if err == nil {
		t.Fatal("expected max retries error")
	}
	if !strings.Contains(err.Error(), "maximum retries") {
		t.Errorf("unexpected error: %v", err)
	}
}
