package rates_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/programador11r-tec/zkt-sub000/internal/rates"
	ratesdomain "github.com/programador11r-tec/zkt-sub000/internal/rates/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:ratesdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&ratesdomain.Setting{}))
	return db
}

func TestRatesUnsetReturnsNil(t *testing.T) {
	ctx := context.Background()
	provider := rates.NewProvider(setupTestDB(t))

	hourly, err := provider.HourlyRate(ctx)
	require.NoError(t, err)
	assert.Nil(t, hourly)

	monthly, err := provider.MonthlyRate(ctx)
	require.NoError(t, err)
	assert.Nil(t, monthly)
}

func TestRatesReadFreshAfterUpdate(t *testing.T) {
	ctx := context.Background()
	provider := rates.NewProvider(setupTestDB(t))

	require.NoError(t, provider.SetHourlyRate(ctx, 10))
	hourly, err := provider.HourlyRate(ctx)
	require.NoError(t, err)
	require.NotNil(t, hourly)
	assert.Equal(t, 10.0, *hourly)

	// an update lands on the very next read, no caching
	require.NoError(t, provider.SetHourlyRate(ctx, 12.5))
	hourly, err = provider.HourlyRate(ctx)
	require.NoError(t, err)
	require.NotNil(t, hourly)
	assert.Equal(t, 12.5, *hourly)
}

func TestRatesRejectNonPositive(t *testing.T) {
	ctx := context.Background()
	provider := rates.NewProvider(setupTestDB(t))

	assert.ErrorIs(t, provider.SetHourlyRate(ctx, 0), ratesdomain.ErrInvalidRate)
	assert.ErrorIs(t, provider.SetMonthlyRate(ctx, -5), ratesdomain.ErrInvalidRate)
}
