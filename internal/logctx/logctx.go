// Package logctx carries a zerolog logger through context.Context.
//
// Scans enrich the logger once per file (path, row group, operation) and the
// library packages pick it up with FromContext, so every debug line emitted
// while reading a footer or decoding records names the file it belongs to.
//
//	ctx = logctx.WithLogger(ctx, logging.WithPhase("ranges"))
//	ctx = logctx.WithFile(ctx, uri)
//	logger := logctx.FromContext(ctx)
//	logger.Debug().Int("blocks", n).Msg("footer read")
package logctx

import (
	"context"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

type loggerKey struct{}

var (
	fallback     zerolog.Logger
	fallbackOnce sync.Once
	fallbackMu   sync.RWMutex
)

func initFallback() {
	fallbackOnce.Do(func() {
		fallback = zerolog.New(os.Stderr).With().Timestamp().Logger()
	})
}

// DefaultLogger returns the logger used when a context carries none.
func DefaultLogger() zerolog.Logger {
	initFallback()
	fallbackMu.RLock()
	defer fallbackMu.RUnlock()
	return fallback
}

// SetDefaultLogger replaces the fallback logger. main calls it once the
// configured logger exists; tests call it to capture output.
func SetDefaultLogger(l zerolog.Logger) {
	initFallback()
	fallbackMu.Lock()
	fallback = l
	fallbackMu.Unlock()
}

// WithLogger returns a child context holding logger.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the context logger, or DefaultLogger if there is none.
// It never returns a zero-value logger.
func FromContext(ctx context.Context) zerolog.Logger {
	if ctx == nil {
		return DefaultLogger()
	}
	if logger, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
		return logger
	}
	return DefaultLogger()
}

// WithStr adds a string field to the context logger.
func WithStr(ctx context.Context, key, value string) context.Context {
	logger := FromContext(ctx).With().Str(key, value).Logger()
	return WithLogger(ctx, logger)
}

// WithInt adds an int field to the context logger.
func WithInt(ctx context.Context, key string, value int) context.Context {
	logger := FromContext(ctx).With().Int(key, value).Logger()
	return WithLogger(ctx, logger)
}

// WithFile tags the context logger with the file argument being processed,
// which may be an s3:// URI rather than the local path read.
func WithFile(ctx context.Context, uri string) context.Context {
	return WithStr(ctx, "file", uri)
}
