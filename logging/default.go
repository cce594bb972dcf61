package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
)

// DefaultLogger writes through a log/slog handler.
// Loggers derived with WithFields share the level of their parent.
type DefaultLogger struct {
	logger *slog.Logger
	level  *slog.LevelVar
	exit   func(code int)
}

// NewDefaultLogger creates a text logger on stderr at InfoLevel
func NewDefaultLogger() *DefaultLogger {
	return NewLogger(os.Stderr, InfoLevel)
}

// NewLogger creates a text logger writing to w
func NewLogger(w io.Writer, level Level) *DefaultLogger {
	lv := new(slog.LevelVar)
	lv.Set(level.slogLevel())
	return NewLoggerWithHandler(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       lv,
		ReplaceAttr: replaceFatalLevel,
	}), lv)
}

// NewJSONLogger creates a JSON logger writing to w
func NewJSONLogger(w io.Writer, level Level) *DefaultLogger {
	lv := new(slog.LevelVar)
	lv.Set(level.slogLevel())
	return NewLoggerWithHandler(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       lv,
		ReplaceAttr: replaceFatalLevel,
	}), lv)
}

// NewLoggerWithHandler wraps an existing slog handler. level may be nil, in
// which case SetLevel has no effect and filtering is left to the handler.
func NewLoggerWithHandler(h slog.Handler, level *slog.LevelVar) *DefaultLogger {
	if level == nil {
		level = new(slog.LevelVar)
		level.Set(slog.LevelDebug)
	}
	return &DefaultLogger{
		logger: slog.New(h),
		level:  level,
		exit:   os.Exit,
	}
}

// replaceFatalLevel prints FatalLevel records as FATAL instead of ERROR+4
func replaceFatalLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lv, ok := a.Value.Any().(slog.Level); ok && lv == FatalLevel.slogLevel() {
			a.Value = slog.StringValue(FatalLevel.String())
		}
	}
	return a
}

// fieldAttrs flattens fields into slog key/value pairs with stable ordering
func fieldAttrs(fields ...Fields) []any {
	var keys []string
	merged := Fields{}
	for _, f := range fields {
		for k, v := range f {
			if _, seen := merged[k]; !seen {
				keys = append(keys, k)
			}
			merged[k] = v
		}
	}
	sort.Strings(keys)

	args := make([]any, 0, len(keys))
	for _, k := range keys {
		args = append(args, slog.Any(k, merged[k]))
	}
	return args
}

func (d *DefaultLogger) log(level Level, err error, msg string, fields ...Fields) {
	args := fieldAttrs(fields...)
	if err != nil {
		args = append(args, slog.Any("error", err))
	}
	d.logger.Log(context.Background(), level.slogLevel(), msg, args...)
}

func (d *DefaultLogger) Debug(msg string, fields ...Fields) {
	d.log(DebugLevel, nil, msg, fields...)
}

func (d *DefaultLogger) Info(msg string, fields ...Fields) {
	d.log(InfoLevel, nil, msg, fields...)
}

func (d *DefaultLogger) Warn(msg string, fields ...Fields) {
	d.log(WarnLevel, nil, msg, fields...)
}

func (d *DefaultLogger) Error(err error, msg string, fields ...Fields) {
	d.log(ErrorLevel, err, msg, fields...)
}

func (d *DefaultLogger) Fatal(err error, msg string, fields ...Fields) {
	d.log(FatalLevel, err, msg, fields...)
	d.exit(1)
}

func (d *DefaultLogger) WithFields(fields Fields) Logger {
	if len(fields) == 0 {
		return d
	}
	return &DefaultLogger{
		logger: d.logger.With(fieldAttrs(fields)...),
		level:  d.level,
		exit:   d.exit,
	}
}

func (d *DefaultLogger) WithContext(ctx context.Context) Logger {
	if fields, ok := fieldsFromContext(ctx); ok {
		return d.WithFields(fields)
	}
	return d
}

func (d *DefaultLogger) SetLevel(level Level) {
	d.level.Set(level.slogLevel())
}

// Slog returns the underlying slog logger
func (d *DefaultLogger) Slog() *slog.Logger {
	return d.logger
}

// NoOpLogger is a logger that does nothing, for tests or when logging is disabled
type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, fields ...Fields)            {}
func (n *NoOpLogger) Info(msg string, fields ...Fields)             {}
func (n *NoOpLogger) Warn(msg string, fields ...Fields)             {}
func (n *NoOpLogger) Error(err error, msg string, fields ...Fields) {}
func (n *NoOpLogger) Fatal(err error, msg string, fields ...Fields) {}
func (n *NoOpLogger) WithFields(fields Fields) Logger               { return n }
func (n *NoOpLogger) WithContext(ctx context.Context) Logger        { return n }
func (n *NoOpLogger) SetLevel(level Level)                          {}
