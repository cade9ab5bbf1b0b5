// Package logging wires the CLI's --log-level/-v flags to a structured
// slog.Logger, the way the teacher's util.InitSlog wires LOG_LEVEL.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Init configures the default slog logger from a level name ("debug", "info",
// "warn", "error") and a verbose flag. An empty level defaults to "info";
// verbose forces "debug" regardless of level.
func Init(level string, verbose bool) *slog.Logger {
	lvl := parseLevel(level)
	if verbose {
		lvl = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// QueryLogger is the narrow logging surface the protocol handlers use to
// trace inbound query text, mirroring the teacher's database.Logger
// interface so both wire protocols share one logging shape.
type QueryLogger interface {
	Print(v ...any)
	Printf(format string, v ...any)
	Println(v ...any)
}

// SlogQueryLogger adapts slog to the QueryLogger interface at debug level.
type SlogQueryLogger struct {
	Logger *slog.Logger
}

func (s SlogQueryLogger) Print(v ...any) { s.Logger.Debug(fmt.Sprint(v...)) }
func (s SlogQueryLogger) Printf(format string, v ...any) {
	s.Logger.Debug(strings.TrimSuffix(fmt.Sprintf(format, v...), "\n"))
}
func (s SlogQueryLogger) Println(v ...any) { s.Logger.Debug(fmt.Sprint(v...)) }
