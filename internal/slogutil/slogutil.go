// Package slogutil configures the log/slog loggers used by h3mux.
//
// The log level is read from the H3MUX_LOG_LEVEL environment variable.
// Component-specific levels can be given as "debug,read=info,send=error";
// a bare level applies to every component.
package slogutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelNone disables all logging.
const LevelNone slog.Level = slog.LevelError + 1

// ComponentKey is the slog attribute key identifying the emitting component.
const ComponentKey = "component"

type levels struct {
	level      slog.Level
	components map[string]slog.Level
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "none":
		return LevelNone, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %s", s)
	}
}

func parseConfig(config string) (levels, error) {
	l := levels{level: LevelNone}
	for _, part := range strings.Split(config, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if component, levelStr, ok := strings.Cut(part, "="); ok {
			level, err := parseLevel(strings.TrimSpace(levelStr))
			if err != nil {
				return levels{}, fmt.Errorf("component %s: %w", component, err)
			}
			if l.components == nil {
				l.components = make(map[string]slog.Level)
			}
			l.components[strings.TrimSpace(component)] = level
		} else {
			level, err := parseLevel(part)
			if err != nil {
				return levels{}, err
			}
			l.level = level
		}
	}
	return l, nil
}

type filterHandler struct {
	slog.Handler

	levels    levels
	component string
}

var _ slog.Handler = &filterHandler{}

func (h *filterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.levels.components != nil {
		if minLevel, ok := h.levels.components[h.component]; ok {
			return level >= minLevel
		}
	}
	return level >= h.levels.level
}

func (h *filterHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.Handler.Handle(ctx, r)
}

func (h *filterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	component := h.component
	for _, attr := range attrs {
		if attr.Key == ComponentKey {
			component = attr.Value.String()
			break
		}
	}
	return &filterHandler{Handler: h.Handler.WithAttrs(attrs), levels: h.levels, component: component}
}

func (h *filterHandler) WithGroup(name string) slog.Handler {
	return &filterHandler{Handler: h.Handler.WithGroup(name), levels: h.levels, component: h.component}
}

// NewLogger returns a logger writing to w, filtered according to
// H3MUX_LOG_LEVEL.
func NewLogger(w io.Writer) *slog.Logger {
	l, err := parseConfig(os.Getenv("H3MUX_LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse H3MUX_LOG_LEVEL: %v\n", err)
		l = levels{level: LevelNone}
	}
	return slog.New(&filterHandler{
		Handler: slog.NewTextHandler(w, &slog.HandlerOptions{
			// filtering happens in filterHandler
			Level: slog.LevelDebug,
		}),
		levels: l,
	})
}
