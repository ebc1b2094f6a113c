package downloader

import (
	"fmt"
	"path/filepath"
	"strings"

	"crdl/internal/crunchyroll"
	"crdl/internal/textutil"
)

const (
	outputExtension   = ".mp4"
	unknownSeriesName = "unknown-series"
)

// FileName returns the output file name for an episode.
func FileName(ep crunchyroll.EpisodeRecord) string {
	return textutil.SanitizeFileName(fmt.Sprintf("%s_S%dE%d%s",
		seriesName(ep), ep.SeasonNumber, ep.EpisodeNumber, outputExtension))
}

// OutputDir returns the directory an episode is written to. A non-empty fixed
// directory wins; otherwise episodes are grouped by series under baseDir.
func OutputDir(baseDir, fixedDir string, ep crunchyroll.EpisodeRecord) string {
	if dir := strings.TrimSpace(fixedDir); dir != "" {
		return dir
	}
	return filepath.Join(baseDir, seriesName(ep))
}

func seriesName(ep crunchyroll.EpisodeRecord) string {
	if name := textutil.SanitizeFileName(ep.SeriesTitle); name != "" {
		return name
	}
	return unknownSeriesName
}

// BuildArgs assembles the ffmpeg argument list for a stream copy.
func BuildArgs(userAgent, streamURL, outputPath string, overwrite bool) []string {
	args := []string{"-nostdin", "-loglevel", "error"}
	if ua := strings.TrimSpace(userAgent); ua != "" {
		args = append(args, "-user_agent", ua)
	}
	args = append(args, "-i", streamURL, "-c", "copy")
	if overwrite {
		args = append(args, "-y")
	} else {
		args = append(args, "-n")
	}
	return append(args, outputPath)
}
