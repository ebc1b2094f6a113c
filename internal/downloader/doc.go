// Package downloader hands a resolved HLS stream URL to ffmpeg and remuxes it
// into an mp4 file.
//
// Output files are named <series>_S<season>E<episode>.mp4 and land either in
// the fixed download directory or in a per-series folder under the base
// directory. A flock lock file guards each output directory so two crdl runs
// cannot write into the same folder at once, and a failed ffmpeg run never
// leaves a partial file behind.
package downloader
