package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

// testAppender writes through tb.Log so each line is attributed to the running test. Lines are
// in local time and always carry the logger name column, even when empty.
type testAppender struct {
	tb testing.TB
}

// NewTestAppender returns an appender that logs to tb.
func NewTestAppender(tb testing.TB) Appender {
	return &testAppender{tb}
}

// Write logs the formatted entry with tb.Log.
func (tapp *testAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	tapp.tb.Helper()
	line, err := formatLine(entry, fields, false)
	tapp.tb.Log(line)
	return err
}

// Sync is a no-op.
func (tapp *testAppender) Sync() error {
	return nil
}
