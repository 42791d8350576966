package tarx

import "log/slog"

// ProgressEvent reports pack progress after each entry is written.
type ProgressEvent struct {
	// Path of the entry just written.
	Path string

	// Entries written so far.
	Entries int

	// Bytes of file content written so far (headers excluded).
	Bytes int64
}

// ProgressFunc receives progress events. It is called synchronously on
// the packing goroutine and should be inexpensive.
type ProgressFunc func(ProgressEvent)

// packConfig holds configuration for a pack operation.
type packConfig struct {
	logger   *slog.Logger
	progress ProgressFunc
}

// PackOption configures a pack operation.
type PackOption func(*packConfig)

// PackWithLogger enables structured logging during packing.
func PackWithLogger(logger *slog.Logger) PackOption {
	return func(cfg *packConfig) {
		cfg.logger = logger
	}
}

// PackWithProgress registers a callback invoked after each entry.
func PackWithProgress(fn ProgressFunc) PackOption {
	return func(cfg *packConfig) {
		cfg.progress = fn
	}
}

// log returns the logger, falling back to a discard logger if nil.
func (cfg *packConfig) log() *slog.Logger {
	if cfg.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return cfg.logger
}
