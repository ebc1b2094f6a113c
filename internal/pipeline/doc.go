// Package pipeline drives a download run: it expands a show, season, or
// episode target into episodes, resolves their stream URLs, and hands them to
// the downloader in episode order.
//
// Stream resolution runs in windows of at most MaxInFlight concurrent requests
// through a bounded conc pool; each window is downloaded before the next one
// is resolved so signed stream URLs are used soon after they are issued. The
// first failure cancels the window and stops the run.
package pipeline
