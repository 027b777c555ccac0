// Package pkg provides shared utilities for the mpa IPC fabric.
//
// This package contains common functionality used across the server and
// client engines, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error values and a stable negative error-code table
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with mpa-specific context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentServer, "channel created", "name", "imu0")
//
// # Errors
//
// Fabric errors are sentinel values wrapping a stable negative error code,
// matching the code table every mpa binding (C, Python, ...) exposes to
// its own callers:
//
//	if errors.Is(err, pkg.ErrServerNotAvailable) {
//	    // retry later
//	}
package pkg
