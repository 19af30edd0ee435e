package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("select * from subscriptions"))
	assert.Equal(t, "UPDATE", operationFromSQL("WITH x AS (SELECT 1) UPDATE subscriptions SET is_active = false"))
	assert.Equal(t, "DELETE", operationFromSQL("with stale as (select id from billing_checkouts where status = 'EXPIRED') delete from billing_checkouts where id in (select id from stale)"))
	assert.Equal(t, "SELECT", operationFromSQL("WITH a AS (SELECT 1), b AS (UPDATE subscriptions SET is_active = false RETURNING id) SELECT * FROM b"))
	assert.Equal(t, "INSERT", operationFromSQL("INSERT INTO subscriptions (id) SELECT id FROM seed"))
	assert.Equal(t, "UNKNOWN", operationFromSQL("WITH x AS (SELECT 1"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}

func TestGormLoggerTrace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewGormLogger(zap.New(core), GormLoggerConfig{Level: gormlogger.Warn, SlowThreshold: time.Millisecond, IgnoreRecordNotFound: true})

	sql := func() (string, int64) { return "SELECT * FROM subscriptions", 1 }

	l.Trace(context.Background(), time.Now(), sql, gormlogger.ErrRecordNotFound)
	assert.Equal(t, 0, logs.Len())

	l.Trace(context.Background(), time.Now(), sql, errors.New("boom"))
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())

	l.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())

	l.LogMode(gormlogger.Silent).Trace(context.Background(), time.Now(), sql, errors.New("boom"))
	assert.Equal(t, 2, logs.Len())
}
