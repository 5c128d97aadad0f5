package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap/zapcore"
)

// DefaultTimeFormatStr is the default time format string for log appenders.
const DefaultTimeFormatStr = "2006-01-02T15:04:05.000Z0700"

// Appender is an output for log entries. This is a subset of the `zapcore.Core` interface.
type Appender interface {
	// Write submits a structured log entry to the appender for logging.
	Write(zapcore.Entry, []zapcore.Field) error
	// Sync is for signaling that any buffered logs to `Write` should be flushed. E.g: at shutdown.
	Sync() error
}

// ConsoleAppender will create human readable tab separated lines for each log entry.
type ConsoleAppender struct {
	io.Writer
}

// NewStdoutAppender creates a new appender that outputs to stdout.
func NewStdoutAppender() ConsoleAppender {
	return ConsoleAppender{os.Stdout}
}

// NewWriterAppender creates a new appender that outputs to the input `io.Writer`.
func NewWriterAppender(writer io.Writer) ConsoleAppender {
	return ConsoleAppender{writer}
}

// Write outputs the log entry to the underlying stream.
func (appender ConsoleAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	line, err := formatLine(entry, fields, true)
	fmt.Fprintln(appender.Writer, line)
	return err
}

// formatLine renders an entry as tab separated columns: time, level, logger name, caller,
// message and, if there are any, the fields as one JSON object in the order they were given.
// An empty logger name is dropped when skipEmptyName is set. On an encoding error the line is
// returned without its fields.
func formatLine(entry zapcore.Entry, fields []zapcore.Field, skipEmptyName bool) (string, error) {
	cols := []string{entry.Time.Format(DefaultTimeFormatStr), strings.ToUpper(entry.Level.String())}
	if entry.LoggerName != "" || !skipEmptyName {
		cols = append(cols, entry.LoggerName)
	}
	if entry.Caller.Defined {
		cols = append(cols, callerToString(&entry.Caller))
	}
	cols = append(cols, entry.Message)
	if len(fields) == 0 {
		return strings.Join(cols, "\t"), nil
	}

	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{SkipLineEnding: true})
	buf, err := enc.EncodeEntry(zapcore.Entry{}, fields)
	if err != nil {
		return strings.Join(cols, "\t"), err
	}
	defer buf.Free()
	return strings.Join(append(cols, buf.String()), "\t"), nil
}

// Sync is a no-op.
func (appender ConsoleAppender) Sync() error {
	return nil
}

// appenderCore lets an Appender be teed into a zap logger returned from `AsZap`.
type appenderCore struct {
	appender Appender
	level    zapcore.LevelEnabler
	fields   []zapcore.Field
}

func (core *appenderCore) Enabled(level zapcore.Level) bool {
	return core.level.Enabled(level)
}

func (core *appenderCore) With(fields []zapcore.Field) zapcore.Core {
	copied := make([]zapcore.Field, 0, len(core.fields)+len(fields))
	copied = append(copied, core.fields...)
	copied = append(copied, fields...)
	return &appenderCore{core.appender, core.level, copied}
}

func (core *appenderCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if core.Enabled(entry.Level) {
		return checked.AddCore(entry, core)
	}
	return checked
}

func (core *appenderCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	all := make([]zapcore.Field, 0, len(core.fields)+len(fields))
	all = append(all, core.fields...)
	all = append(all, fields...)
	return core.appender.Write(entry, all)
}

func (core *appenderCore) Sync() error {
	return core.appender.Sync()
}

// callerToString returns "<package>/<file>:<line>" for the entry caller.
func callerToString(caller *zapcore.EntryCaller) string {
	// runtime.Caller paths always use '/', even on windows
	file := caller.File
	if dir := strings.LastIndexByte(file, '/'); dir >= 0 {
		if pkg := strings.LastIndexByte(file[:dir], '/'); pkg >= 0 {
			file = file[pkg+1:]
		}
	}
	return fmt.Sprintf("%s:%d", file, caller.Line)
}
