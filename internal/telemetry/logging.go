package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel разбирает уровень логирования: debug, info, warn, error
// в любом регистре, допускается смещение вида "info+2".
// Пустое или неизвестное значение даёт INFO.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// NewLogger создаёт логгер, пишущий в w.
// format "text" — человекочитаемый вывод, всё остальное — JSON.
// Каждая запись несёт атрибут service.
func NewLogger(w io.Writer, service, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler)
	if service != "" {
		logger = logger.With("service", service)
	}
	return logger
}

// SetupLogger настраивает логгер сервиса по LOG_LEVEL и LOG_FORMAT
// и делает его логгером по умолчанию.
func SetupLogger(service string) *slog.Logger {
	logger := NewLogger(os.Stdout, service, os.Getenv("LOG_FORMAT"), ParseLevel(os.Getenv("LOG_LEVEL")))
	slog.SetDefault(logger)
	return logger
}

type loggerKey struct{}

// WithLogger кладёт логгер task'а в контекст.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext достаёт логгер из контекста, иначе slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

func WithTaskID(logger *slog.Logger, taskID string) *slog.Logger {
	return logger.With("task_id", taskID)
}

func WithAccountID(logger *slog.Logger, accountID string) *slog.Logger {
	return logger.With("account_id", accountID)
}

func WithBulkID(logger *slog.Logger, bulkID string) *slog.Logger {
	return logger.With("bulk_id", bulkID)
}
