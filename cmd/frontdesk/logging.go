package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/haasonsaas/frontdesk/internal/config"
	"github.com/haasonsaas/frontdesk/internal/observability"
)

// newLogger builds the process logger and installs it as the slog default.
func newLogger(cfg config.LoggingConfig, out *os.File) *observability.Logger {
	logger := observability.NewLogger(observability.LogConfig{
		Level:     cfg.Level,
		Format:    logFormat(cfg.Format, out),
		Output:    out,
		AddSource: cfg.AddSource,
	})
	slog.SetDefault(logger.Slog())
	return logger
}

// logFormat picks text for interactive terminals and json otherwise, unless
// the configuration names one.
func logFormat(configured string, out io.Writer) string {
	if f := strings.ToLower(strings.TrimSpace(configured)); f != "" {
		return f
	}
	if file, ok := out.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		return "text"
	}
	return "json"
}
