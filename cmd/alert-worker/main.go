// Package main is the entrypoint for the Alert Worker Lambda function.
//
// The Alert Worker consumes ReconAlert messages from the reconciliation alert
// SQS queue. Alerts are advisory: the webhook already answered the gateway by
// the time one is published. The worker turns each alert into a structured
// log line for the on-call trail and a CloudWatch metric sliced by alert kind,
// so ambiguous fallback matches and failed follow-ups surface on dashboards
// without blocking settlement.
//
// Cold Start (main):
//  1. Initialize structured logger.
//  2. Resolve *_SSM_PARAM environment indirections.
//  3. Load AWS SDK configuration and the CloudWatch client.
//  4. Register handler and call lambda.Start.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"creditgate/internal/config"
	"creditgate/internal/telemetry"
	"creditgate/internal/types"
)

// AlertRecorder is the telemetry surface the worker needs.
type AlertRecorder interface {
	RecordAlert(ctx context.Context, kind string)
}

// Handler holds the dependencies for the alert worker Lambda handler.
type Handler struct {
	metrics AlertRecorder
	logger  *slog.Logger
}

// NewHandler wires a Handler. A nil logger falls back to slog.Default.
func NewHandler(metrics AlertRecorder, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{metrics: metrics, logger: logger}
}

// Handle processes an SQS event containing one or more reconciliation alerts.
// Each record is processed independently; records that fail are reported via
// batchItemFailures so SQS retries only those.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.ErrorContext(ctx, "failed to process alert record",
				"message_id", record.MessageId,
				"error", err,
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// processRecord logs and counts a single alert. A body that does not parse is
// a permanent failure: it is logged and acknowledged, never retried.
func (h *Handler) processRecord(ctx context.Context, record events.SQSMessage) error {
	var alert types.ReconAlert
	if err := json.Unmarshal([]byte(record.Body), &alert); err != nil {
		h.logger.WarnContext(ctx, "discarding unparseable alert message",
			"message_id", record.MessageId,
			"error", err,
		)
		return nil
	}

	h.logger.WarnContext(ctx, "reconciliation alert",
		"kind", string(alert.Kind),
		"trace_id", alert.TraceID,
		"transaction_id", alert.TransactionID,
		"gateway_payment_id", alert.GatewayPaymentID,
		"client_id", alert.ClientID,
		"amount", alert.Amount,
		"detail", alert.Detail,
		"occurred_at", alert.OccurredAt,
	)

	h.metrics.RecordAlert(ctx, string(alert.Kind))
	return nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("alert worker Lambda initializing (cold start)")

	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}

	if err := config.ResolveSecrets(config.NewSSMProvider(region)); err != nil {
		logger.Error("failed to resolve SSM parameters", "error", err)
		os.Exit(1)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}

	namespace := os.Getenv("METRIC_NAMESPACE")
	if namespace == "" {
		namespace = "CreditGate"
	}

	metrics := telemetry.NewMetrics(cloudwatch.NewFromConfig(awsCfg), namespace, logger)
	handler := NewHandler(metrics, logger)

	lambda.Start(handler.Handle)
}
