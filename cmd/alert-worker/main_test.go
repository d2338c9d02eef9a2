package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedAlert struct {
	kind string
}

type fakeRecorder struct {
	alerts []recordedAlert
}

func (f *fakeRecorder) RecordAlert(_ context.Context, kind string) {
	f.alerts = append(f.alerts, recordedAlert{kind: kind})
}

func sqsEvent(bodies ...string) events.SQSEvent {
	var event events.SQSEvent
	for i, body := range bodies {
		event.Records = append(event.Records, events.SQSMessage{
			MessageId: string(rune('a' + i)),
			Body:      body,
		})
	}
	return event
}

func TestHandle_RecordsAlertMetricPerRecord(t *testing.T) {
	recorder := &fakeRecorder{}
	h := NewHandler(recorder, slog.Default())

	resp, err := h.Handle(context.Background(), sqsEvent(
		`{"trace_id":"t1","kind":"ambiguous_fallback","transaction_id":"tx_1"}`,
		`{"trace_id":"t2","kind":"ledger_write_failed","transaction_id":"tx_2"}`,
	))

	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	require.Len(t, recorder.alerts, 2)
	assert.Equal(t, "ambiguous_fallback", recorder.alerts[0].kind)
	assert.Equal(t, "ledger_write_failed", recorder.alerts[1].kind)
}

func TestHandle_UnparseableBodyIsAcknowledged(t *testing.T) {
	recorder := &fakeRecorder{}
	h := NewHandler(recorder, slog.Default())

	resp, err := h.Handle(context.Background(), sqsEvent(`{not json`))

	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures, "parse failures must not be retried")
	assert.Empty(t, recorder.alerts)
}

func TestHandle_EmptyEvent(t *testing.T) {
	h := NewHandler(&fakeRecorder{}, nil)

	resp, err := h.Handle(context.Background(), events.SQSEvent{})

	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
}
