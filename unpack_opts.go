package tarx

import "log/slog"

// unpackConfig holds configuration for an unpack operation.
type unpackConfig struct {
	logger        *slog.Logger
	preserveMode  bool
	preserveOwner bool
	preserveTimes bool
}

// UnpackOption configures an unpack operation.
type UnpackOption func(*unpackConfig)

// UnpackWithLogger enables structured logging during unpacking.
func UnpackWithLogger(logger *slog.Logger) UnpackOption {
	return func(cfg *unpackConfig) {
		cfg.logger = logger
	}
}

// UnpackWithPreserveMode controls whether entry permission bits are
// applied to created files and directories. Enabled by default; disable
// to let umask defaults win.
func UnpackWithPreserveMode(preserve bool) UnpackOption {
	return func(cfg *unpackConfig) {
		cfg.preserveMode = preserve
	}
}

// UnpackWithPreserveOwner applies archived UID/GID to created entries.
// Disabled by default; typically requires elevated privileges.
func UnpackWithPreserveOwner(preserve bool) UnpackOption {
	return func(cfg *unpackConfig) {
		cfg.preserveOwner = preserve
	}
}

// UnpackWithPreserveTimes restores archived modification times.
// Disabled by default.
func UnpackWithPreserveTimes(preserve bool) UnpackOption {
	return func(cfg *unpackConfig) {
		cfg.preserveTimes = preserve
	}
}

// log returns the logger, falling back to a discard logger if nil.
func (cfg *unpackConfig) log() *slog.Logger {
	if cfg.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return cfg.logger
}
