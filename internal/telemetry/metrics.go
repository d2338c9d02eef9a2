// Package telemetry emits reconciliation metrics to CloudWatch. All emission
// is best-effort: a metrics outage must never affect webhook processing.
package telemetry

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/shopspring/decimal"
)

// Metric names published under the configured namespace.
const (
	MetricPaymentSettled      = "PaymentSettled"
	MetricSettledAmount       = "SettledAmount"
	MetricDuplicateDelivery   = "DuplicateDelivery"
	MetricFallbackMatch       = "FallbackMatch"
	MetricReconciliationAlert = "ReconciliationAlert"
)

// DimAlertKind is the dimension carrying the alert classification on
// ReconciliationAlert data points.
const DimAlertKind = "Kind"

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Metrics publishes reconciliation counters to CloudWatch.
type Metrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewMetrics creates a Metrics emitter for the given namespace.
func NewMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *Metrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &Metrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordPaymentSettled emits one settlement count plus the settled amount.
func (m *Metrics) RecordPaymentSettled(ctx context.Context, amount decimal.Decimal) {
	amountValue, _ := amount.Float64()
	m.put(ctx, []cwtypes.MetricDatum{
		{
			MetricName: aws.String(MetricPaymentSettled),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
		},
		{
			MetricName: aws.String(MetricSettledAmount),
			Value:      aws.Float64(amountValue),
			Unit:       cwtypes.StandardUnitNone,
		},
	})
}

// RecordDuplicateDelivery counts a webhook delivery for an already-settled
// transaction.
func (m *Metrics) RecordDuplicateDelivery(ctx context.Context) {
	m.put(ctx, []cwtypes.MetricDatum{{
		MetricName: aws.String(MetricDuplicateDelivery),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
	}})
}

// RecordFallbackMatch counts a correlation that needed the amount-and-recency
// heuristic instead of the exact payment id.
func (m *Metrics) RecordFallbackMatch(ctx context.Context) {
	m.put(ctx, []cwtypes.MetricDatum{{
		MetricName: aws.String(MetricFallbackMatch),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
	}})
}

// RecordAlert counts a processed reconciliation alert, dimensioned by kind.
func (m *Metrics) RecordAlert(ctx context.Context, kind string) {
	m.put(ctx, []cwtypes.MetricDatum{{
		MetricName: aws.String(MetricReconciliationAlert),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{{
			Name:  aws.String(DimAlertKind),
			Value: aws.String(kind),
		}},
	}})
}

func (m *Metrics) put(ctx context.Context, data []cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to put metric data",
			"namespace", m.namespace,
			"error", err,
		)
	}
}
