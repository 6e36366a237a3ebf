// File: fifo/options.go
// Functional-options configuration surface for BufferFifo, following the
// small-typed-config convention the teacher codebase expresses through
// control.ConfigStore — here narrowed to the handful of knobs a FIFO
// actually needs, so construction never depends on package-level globals or
// environment variables.

package fifo

import "go.uber.org/zap"

// Option configures a BufferFifo at construction time.
type Option func(*BufferFifo)

// WithLogger overrides the structured logger used for warning-only
// conditions (SetEOF with live writers, buffer-size outliers, pool pressure).
// Defaults to the shared internal/xlog logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(f *BufferFifo) {
		f.log = l
	}
}

// WithWarningThreshold sets the initial multiple of initialPoolCapacity at
// which outstanding-buffer pressure triggers a warning. Defaults to 4,
// matching the original implementation.
func WithWarningThreshold(multiple int64) Option {
	return func(f *BufferFifo) {
		if multiple > 0 {
			f.warningThreshold.Store(multiple)
		}
	}
}
