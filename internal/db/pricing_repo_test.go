package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"creditgate/internal/types"
)

func TestPricingRepo_GetActiveRangeFor_Found(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPricingRepo(db, nil)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFn: func(dest ...any) error {
			*(dest[0].(*string)) = "range_1"
			*(dest[1].(*string)) = "100.00"
			*(dest[2].(*string)) = "500.00"
			*(dest[3].(*string)) = "0.25"
			*(dest[4].(*string)) = "0.15"
			*(dest[5].(*bool)) = true
			return nil
		}})

	pr, err := repo.GetActiveRangeFor(context.Background(), decimal.RequireFromString("150.00"))
	require.NoError(t, err)

	assert.Equal(t, "range_1", pr.ID)
	assert.Equal(t, "100", pr.Min.String())
	assert.Equal(t, "500", pr.Max.String())
	assert.Equal(t, "0.25", pr.UnitPriceVoice.String())
	assert.Equal(t, "0.15", pr.UnitPriceNoVoice.String())
	assert.True(t, pr.Active)
	assert.True(t, pr.Contains(decimal.RequireFromString("150.00")))
}

func TestPricingRepo_GetActiveRangeFor_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPricingRepo(db, nil)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetActiveRangeFor(context.Background(), decimal.RequireFromString("99999.00"))
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundPricingRange, appErr.Code)
	assert.Contains(t, appErr.Message, "99999")
}

func TestPricingRepo_GetActiveRangeFor_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewPricingRepo(db, nil)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: errors.New("connection refused")})

	_, err := repo.GetActiveRangeFor(context.Background(), decimal.NewFromInt(100))
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
