// Package logging assembles structured slog loggers and formatting helpers used
// across crdl.
//
// It owns the console and JSON handlers, routes console output to stderr (so
// --json command output on stdout stays machine readable), optionally mirrors
// records as JSON into a log file, and exposes context-aware helpers that tag
// lines with the run's correlation id and the series/season/episode being
// processed. A no-op logger is provided for tests and wiring code.
package logging
