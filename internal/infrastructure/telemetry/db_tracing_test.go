package telemetry_test

import (
	"context"
	"testing"

	"github.com/restodash/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type tracedRow struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tracedRow{}))
	return db
}

func TestRegisterDBTracing_Disabled(t *testing.T) {
	db := openSQLite(t)
	require.NoError(t, telemetry.RegisterDBTracing(db, telemetry.DBTracingConfig{Enabled: false}, zaptest.NewLogger(t)))
	assert.Nil(t, db.Callback().Query().Get("pnl_timing:before_query"))
}

func TestRegisterDBTracing_RecordsSpans(t *testing.T) {
	sr := setupTestTracer(t)
	db := openSQLite(t)

	err := telemetry.RegisterDBTracing(db, telemetry.DBTracingConfig{
		Enabled:  true,
		DBSystem: "sqlite",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NotNil(t, db.Callback().Query().Get("pnl_timing:before_query"))

	ctx, span := telemetry.StartSpan(context.Background(), "test.parent")
	require.NoError(t, db.WithContext(ctx).Create(&tracedRow{Name: "a"}).Error)
	var rows []tracedRow
	require.NoError(t, db.WithContext(ctx).Find(&rows).Error)
	span.End()

	assert.Len(t, rows, 1)
	assert.GreaterOrEqual(t, len(sr.Ended()), 3)
}
