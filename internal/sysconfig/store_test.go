package sysconfig

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSSMClient struct {
	values map[string]string
	err    error
	calls  int
}

func (f *fakeSSMClient) GetParameter(_ context.Context, params *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	name := aws.ToString(params.Name)
	value, ok := f.values[name]
	if !ok {
		return nil, &ssmtypes.ParameterNotFound{}
	}
	return &ssm.GetParameterOutput{
		Parameter: &ssmtypes.Parameter{
			Name:  params.Name,
			Value: aws.String(value),
		},
	}, nil
}

func TestSSMStore_Get_Found(t *testing.T) {
	client := &fakeSSMClient{values: map[string]string{
		"abacatepay_webhook_secret": "whsec_abc123",
	}}
	store := NewSSMStore(client, nil)

	value, err := store.Get(context.Background(), "abacatepay_webhook_secret")
	require.NoError(t, err)
	assert.Equal(t, "whsec_abc123", value)
	assert.Equal(t, 1, client.calls)
}

func TestSSMStore_Get_NotFound(t *testing.T) {
	client := &fakeSSMClient{values: map[string]string{}}
	store := NewSSMStore(client, nil)

	_, err := store.Get(context.Background(), "missing_key")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSSMStore_Get_NoCaching(t *testing.T) {
	// The secret may rotate, so every Get must hit the store.
	client := &fakeSSMClient{values: map[string]string{"k": "v"}}
	store := NewSSMStore(client, nil)

	for i := 0; i < 3; i++ {
		_, err := store.Get(context.Background(), "k")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, client.calls)
}

func TestSSMStore_Get_BreakerOpensOnConsecutiveFailures(t *testing.T) {
	client := &fakeSSMClient{err: errors.New("ssm unavailable")}
	store := NewSSMStore(client, nil)

	// Drive enough consecutive transport failures to trip the breaker.
	for i := 0; i < 7; i++ {
		_, err := store.Get(context.Background(), "k")
		require.Error(t, err)
	}

	callsBefore := client.calls
	_, err := store.Get(context.Background(), "k")
	require.Error(t, err)
	// Breaker open: the client must not have been called again.
	assert.Equal(t, callsBefore, client.calls)
}

func TestSSMStore_Get_NotFoundDoesNotTripBreaker(t *testing.T) {
	client := &fakeSSMClient{values: map[string]string{}}
	store := NewSSMStore(client, nil)

	for i := 0; i < 10; i++ {
		_, err := store.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	// All calls reached the client: missing keys are answers, not outages.
	assert.Equal(t, 10, client.calls)
}
