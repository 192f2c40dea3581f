// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package logging

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// NewSlogLogger returns a *slog.Logger that forwards to the global zerolog
// logger. Used for dependencies that speak slog (the supervisor's event
// hook).
func NewSlogLogger() *slog.Logger {
	return slog.New(&zerologHandler{})
}

// zerologHandler bridges slog records onto zerolog.
type zerologHandler struct {
	attrs []slog.Attr
}

func (h *zerologHandler) Enabled(_ context.Context, level slog.Level) bool {
	return mapLevel(level) >= zerolog.GlobalLevel()
}

func (h *zerologHandler) Handle(_ context.Context, rec slog.Record) error {
	l := Logger()
	ev := l.WithLevel(mapLevel(rec.Level))
	for _, attr := range h.attrs {
		ev = appendAttr(ev, attr)
	}
	rec.Attrs(func(attr slog.Attr) bool {
		ev = appendAttr(ev, attr)
		return true
	})
	ev.Msg(rec.Message)
	return nil
}

func (h *zerologHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &zerologHandler{attrs: merged}
}

func (h *zerologHandler) WithGroup(string) slog.Handler {
	// Groups are flattened; the supervisor emits flat key/value pairs.
	return h
}

func appendAttr(ev *zerolog.Event, attr slog.Attr) *zerolog.Event {
	return ev.Interface(attr.Key, attr.Value.Any())
}

func mapLevel(level slog.Level) zerolog.Level {
	switch {
	case level >= slog.LevelError:
		return zerolog.ErrorLevel
	case level >= slog.LevelWarn:
		return zerolog.WarnLevel
	case level >= slog.LevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}
