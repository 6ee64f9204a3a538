// Copyright (C) 2026 Meridian Care (engineering@meridiancare.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging configures structured logging for Meridian services.
//
// Built on log/slog with two destinations: stderr (text by default, JSON
// when requested) and an optional JSON log file. Setup installs the
// configured logger as the process-wide slog default so that every
// package logging through slog inherits it.
//
// This package does NOT redact sensitive data. Callers must keep PII,
// tokens and raw user content out of log attributes.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Config controls logger construction. The zero value logs Info and
// above to stderr as text.
type Config struct {
	// Level is the minimum slog level emitted.
	Level slog.Level

	// Service is attached to every record as the "service" attribute.
	Service string

	// LogDir enables file logging. The file is named
	// "{service}_{YYYY-MM-DD}.log" and always written as JSON.
	// Supports a leading ~ for the home directory.
	LogDir string

	// JSON switches the stderr handler to JSON output.
	JSON bool
}

// FromEnv builds a Config from MERIDIAN_LOG_LEVEL, MERIDIAN_LOG_DIR and
// MERIDIAN_LOG_JSON. Unknown values are warned about and ignored.
func FromEnv(service string) Config {
	cfg := Config{Level: slog.LevelInfo, Service: service}

	switch raw := os.Getenv("MERIDIAN_LOG_LEVEL"); raw {
	case "":
	case "debug":
		cfg.Level = slog.LevelDebug
	case "info":
		cfg.Level = slog.LevelInfo
	case "warn":
		cfg.Level = slog.LevelWarn
	case "error":
		cfg.Level = slog.LevelError
	default:
		slog.Warn("Invalid MERIDIAN_LOG_LEVEL, using default", "value", raw, "default", "info")
	}

	cfg.LogDir = os.Getenv("MERIDIAN_LOG_DIR")
	cfg.JSON = os.Getenv("MERIDIAN_LOG_JSON") == "true"
	return cfg
}

// Setup builds the configured logger, installs it as the slog default,
// and returns a close function that flushes the log file, if any.
func Setup(cfg Config) (func() error, error) {
	opts := &slog.HandlerOptions{Level: cfg.Level}

	var stderrHandler slog.Handler
	if cfg.JSON {
		stderrHandler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		stderrHandler = slog.NewTextHandler(os.Stderr, opts)
	}
	handlers := []slog.Handler{stderrHandler}

	var file *os.File
	if cfg.LogDir != "" {
		logDir := expandPath(cfg.LogDir)
		if err := os.MkdirAll(logDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create log directory %q: %w", logDir, err)
		}
		service := cfg.Service
		if service == "" {
			service = "meridian"
		}
		name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
		f, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		handlers = append(handlers, slog.NewJSONHandler(f, opts))
	}

	var handler slog.Handler
	if len(handlers) == 1 {
		handler = handlers[0]
	} else {
		handler = &multiHandler{handlers: handlers}
	}
	if cfg.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", cfg.Service)})
	}

	slog.SetDefault(slog.New(handler))

	closeFn := func() error {
		if file == nil {
			return nil
		}
		if err := file.Sync(); err != nil {
			_ = file.Close()
			return fmt.Errorf("failed to sync log file: %w", err)
		}
		return file.Close()
	}
	return closeFn, nil
}

// NewTestHandler returns a text handler writing to w at debug level, for
// capturing log output in tests.
func NewTestHandler(w io.Writer) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
}

// multiHandler fans one record out to every destination.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
