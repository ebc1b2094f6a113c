// Package services defines shared utilities consumed by the download pipeline
// and the CLI.
//
// Key responsibilities:
//   - Context helpers that stamp correlation identifiers, pipeline stages and
//     series/season/episode identifiers for logging.
//   - Structured error markers plus the Wrap helper, and Classify, which turns
//     any failure (including typed Crunchyroll client errors) into a stable
//     error code.
package services
