package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"crdl/internal/config"
	"crdl/internal/crunchyroll"
	"crdl/internal/logging"
	"crdl/internal/services"
)

const (
	stageDownload = "download"
	lockFileName  = ".crdl.lock"
)

type commandRunner func(ctx context.Context, name string, args ...string) error

// Result reports the outcome of a single episode download.
type Result struct {
	OutputPath string
	Skipped    bool
	Elapsed    time.Duration
}

// Downloader runs ffmpeg against resolved stream URLs.
type Downloader struct {
	logger    *slog.Logger
	binary    string
	userAgent string
	baseDir   string
	directory string
	overwrite bool
	timeout   time.Duration
	run       commandRunner
	now       func() time.Time
}

// Option customizes a Downloader.
type Option func(*Downloader)

// WithLogger sets the logger used for download progress.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Downloader) {
		d.logger = logging.NewComponentLogger(logger, "downloader")
	}
}

// WithDirectory overrides the fixed output directory from config. The path is
// used as given; callers expand "~" first.
func WithDirectory(dir string) Option {
	return func(d *Downloader) {
		if dir = strings.TrimSpace(dir); dir != "" {
			d.directory = dir
		}
	}
}

// WithOverwrite overrides whether existing files are replaced.
func WithOverwrite(overwrite bool) Option {
	return func(d *Downloader) {
		d.overwrite = overwrite
	}
}

// WithCommandRunner replaces the ffmpeg runner, for tests.
func WithCommandRunner(run commandRunner) Option {
	return func(d *Downloader) {
		if run != nil {
			d.run = run
		}
	}
}

// New constructs a downloader from the download and API sections of cfg.
func New(cfg *config.Config, opts ...Option) *Downloader {
	d := &Downloader{
		logger:    logging.NewComponentLogger(logging.NewNop(), "downloader"),
		binary:    cfg.FFmpegBinary(),
		userAgent: cfg.API.UserAgent,
		baseDir:   cfg.Download.BaseDir,
		directory: cfg.Download.Directory,
		overwrite: cfg.Download.Overwrite,
		timeout:   cfg.DownloadTimeout(),
		run:       defaultCommandRunner,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OutputPath returns where the episode would be written.
func (d *Downloader) OutputPath(ep crunchyroll.EpisodeRecord) string {
	return filepath.Join(OutputDir(d.baseDir, d.directory, ep), FileName(ep))
}

// Download writes the stream behind streamURL to the episode's output path.
// An existing file is kept and reported as skipped unless overwrite is set.
func (d *Downloader) Download(ctx context.Context, ep crunchyroll.EpisodeRecord, streamURL string) (Result, error) {
	streamURL = strings.TrimSpace(streamURL)
	if streamURL == "" {
		return Result{}, services.Wrap(services.ErrValidation, stageDownload, "validate", "stream url is empty", nil)
	}

	target := d.OutputPath(ep)
	dir := filepath.Dir(target)
	logger := logging.WithContext(ctx, d.logger).With(
		logging.String(logging.FieldEpisodeLabel, ep.Label()),
		logging.String("output", target),
	)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, services.Wrap(services.ErrConfiguration, stageDownload, "create output dir", dir, err)
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransient, stageDownload, "lock output dir", dir, err)
	}
	if !locked {
		return Result{}, services.Wrap(services.ErrValidation, stageDownload, "lock output dir",
			fmt.Sprintf("another crdl process is writing to %s", dir), nil)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release output dir lock", logging.Error(err))
		}
	}()

	if !d.overwrite {
		if info, err := os.Stat(target); err == nil && !info.IsDir() {
			logger.Info("output exists, skipping", logging.String(logging.FieldEventType, "download_skipped"))
			return Result{OutputPath: target, Skipped: true}, nil
		}
	}

	runCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	logger.Info("downloading, this may take a while", logging.String(logging.FieldEventType, "download_started"))
	started := d.now()
	runErr := d.run(runCtx, d.binary, BuildArgs(d.userAgent, streamURL, target, d.overwrite)...)
	elapsed := d.now().Sub(started)
	if runErr != nil {
		d.removePartial(logger, target)
		return Result{}, d.classifyFailure(ctx, runCtx, runErr)
	}

	info, err := os.Stat(target)
	if err != nil || info.Size() == 0 {
		d.removePartial(logger, target)
		return Result{}, services.Wrap(services.ErrExternalTool, stageDownload, "verify output",
			"ffmpeg finished without producing "+target, err)
	}

	logger.Info("download completed",
		logging.String(logging.FieldEventType, "download_completed"),
		logging.Duration("elapsed", elapsed),
		logging.Int64("size_bytes", info.Size()),
	)
	return Result{OutputPath: target, Elapsed: elapsed}, nil
}

func (d *Downloader) classifyFailure(parent, runCtx context.Context, runErr error) error {
	switch {
	case parent.Err() != nil:
		return fmt.Errorf("download interrupted: %w", parent.Err())
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, stageDownload, "ffmpeg",
			fmt.Sprintf("exceeded %s", d.timeout), runErr)
	default:
		return services.Wrap(services.ErrExternalTool, stageDownload, "ffmpeg", "failed to download episode", runErr)
	}
}

func (d *Downloader) removePartial(logger *slog.Logger, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.WarnWithContext(logger, "failed to remove partial output", "partial_cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "a truncated file may remain in the output directory"),
			logging.String(logging.FieldErrorHint, "delete "+path+" before retrying"),
		)
	}
}

func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(output)); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}
