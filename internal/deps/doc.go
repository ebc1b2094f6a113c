// Package deps reports whether the external binaries crdl hands work to (ffmpeg)
// are installed, for the deps command and the pre-flight check of download.
package deps
