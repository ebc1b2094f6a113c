// Package main hosts the crdl CLI entrypoint and command graph.
//
// The Cobra command tree logs in to the Crunchyroll API, expands show, season,
// or episode IDs into episodes, and hands resolved streams to ffmpeg. Read-only
// inspection commands expose the same API calls with table or JSON output, and
// small maintenance commands cover download history, dependency checks, and
// configuration scaffolding.
//
// Keep this package lean: behaviour lives in the internal packages and the
// commands here only translate flags into config overrides and render results.
package main
