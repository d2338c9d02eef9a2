// Package queue provides the SQS producer for reconciliation alerts
// consumed by the operational alert worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"creditgate/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// AlertQueue publishes ReconAlert messages to SQS. An empty queue URL
// disables publishing entirely: Publish becomes a logged no-op so local
// environments run without any queue infrastructure.
type AlertQueue struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
	now      func() time.Time
}

// NewAlertQueue creates an AlertQueue bound to the given queue URL.
func NewAlertQueue(client SQSSender, queueURL string, logger *slog.Logger) *AlertQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertQueue{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
		now:      time.Now,
	}
}

// Publish serializes the alert and sends it to the alert queue. A fresh
// trace id and timestamp are stamped on when the caller left them empty.
func (q *AlertQueue) Publish(ctx context.Context, alert types.ReconAlert) error {
	if q.queueURL == "" {
		q.logger.WarnContext(ctx, "alert queue disabled, dropping reconciliation alert",
			"kind", string(alert.Kind),
			"transaction_id", alert.TransactionID,
			"detail", alert.Detail,
		)
		return nil
	}

	if alert.TraceID == "" {
		alert.TraceID = uuid.New().String()
	}
	if alert.OccurredAt.IsZero() {
		alert.OccurredAt = q.now().UTC()
	}

	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal ReconAlert: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(alert.Kind)),
			},
		},
	}

	if _, err := q.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send ReconAlert to %s: %w", q.queueURL, err)
	}

	q.logger.InfoContext(ctx, "reconciliation alert sent",
		"queue_url", q.queueURL,
		"trace_id", alert.TraceID,
		"kind", string(alert.Kind),
		"transaction_id", alert.TransactionID,
	)

	return nil
}
