// File: internal/xlog/xlog.go
// Package xlog provides the process-wide structured logger for the
// warning-only conditions surfaced by pool.BufferPool and fifo.BufferFifo
// (pool-outstanding pressure, oversized buffer-size requests, SetEOF called
// with live writers). None of these are fatal; they exist purely for
// operability, which is why a leveled, field-carrying logger is used instead
// of plain fmt/log calls.

package xlog

import (
	"sync"

	"go.uber.org/zap"
)

var (
	once   sync.Once
	logger *zap.SugaredLogger
)

// L returns the shared sugared logger, building a sane production
// configuration (info level, no caller noise) on first use.
func L() *zap.SugaredLogger {
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.DisableStacktrace = true
		cfg.DisableCaller = true
		base, err := cfg.Build()
		if err != nil {
			base = zap.NewNop()
		}
		logger = base.Sugar()
	})
	return logger
}

// SetLogger overrides the shared logger, e.g. to plumb in a test observer or
// a differently configured zap.Logger from the embedding application.
func SetLogger(l *zap.Logger) {
	once.Do(func() {}) // keep a later first L() from replacing l with the default
	logger = l.Sugar()
}
