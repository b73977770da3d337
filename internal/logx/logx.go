// Package logx carries console and container log annotations across the
// pipeline without repeating fields that the context already holds.
package logx

import (
	"context"

	"pkt.systems/pslog"

	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/schema"
)

type contextKey int

const (
	consoleKey contextKey = iota
	containerKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithConsole annotates the logger with the console id if present.
func WithConsole(ctx context.Context, console schema.ConsoleID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if console != "" {
		if current, ok := ctx.Value(consoleKey).(schema.ConsoleID); ok && current == console {
			return log
		}
		log = log.With("console", console)
	}
	return log
}

// WithContainer annotates the logger with console and container identifiers.
func WithContainer(ctx context.Context, console schema.ConsoleID, container string) pslog.Logger {
	log := WithConsole(ctx, console)
	if container != "" {
		if current, ok := ctx.Value(containerKey).(string); ok && current == container {
			return log
		}
		log = log.With("container", container)
	}
	return log
}

// WithSession annotates the logger with a session id when available.
func WithSession(log pslog.Logger, sessionID string) pslog.Logger {
	if sessionID != "" {
		log = log.With("session", sessionID)
	}
	return log
}

// ContextWithConsole stores the console marker on the context for log
// de-duplication.
func ContextWithConsole(ctx context.Context, console schema.ConsoleID) context.Context {
	if ctx == nil || console == "" {
		return ctx
	}
	return context.WithValue(ctx, consoleKey, console)
}

// ContextWithContainer stores the container marker on the context for log
// de-duplication.
func ContextWithContainer(ctx context.Context, container string) context.Context {
	if ctx == nil || container == "" {
		return ctx
	}
	return context.WithValue(ctx, containerKey, container)
}

// ContextWithConsoleLogger attaches the logger and console marker to the context.
func ContextWithConsoleLogger(ctx context.Context, log pslog.Logger, console schema.ConsoleID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithConsole(ctx, console)
}
