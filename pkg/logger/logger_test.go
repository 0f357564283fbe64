package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Log
	Log = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	t.Cleanup(func() { Log = prev })
	return &buf
}

func TestFromContext_AddsRequestID(t *testing.T) {
	buf := captureLogs(t)

	FromContext(WithRequestID(context.Background(), "req-42")).Info("hello")
	assert.Contains(t, buf.String(), "request_id=req-42")

	buf.Reset()
	FromContext(context.Background()).Info("plain")
	assert.NotContains(t, buf.String(), "request_id")
}

func TestGormLogger_Trace(t *testing.T) {
	buf := captureLogs(t)
	l := NewGormLogger(gormlogger.Warn, 100*time.Millisecond)
	ctx := WithRequestID(context.Background(), "abc")
	sql := func() (string, int64) { return "SELECT 1", 1 }

	l.Trace(ctx, time.Now(), sql, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String(), "record not found is not an error")

	l.Trace(ctx, time.Now(), sql, errors.New("syntax error"))
	assert.Contains(t, buf.String(), "SQL Error")
	assert.Contains(t, buf.String(), "request_id=abc")

	buf.Reset()
	l.Trace(ctx, time.Now().Add(-time.Second), sql, nil)
	assert.Contains(t, buf.String(), "Slow SQL")

	buf.Reset()
	l.Trace(ctx, time.Now(), sql, nil)
	assert.Empty(t, buf.String(), "fast queries only log at info level")
}
