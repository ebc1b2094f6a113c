package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"crdl/internal/crunchyroll"
	"crdl/internal/downloader"
	"crdl/internal/history"
	"crdl/internal/logging"
	"crdl/internal/services"
)

const (
	stageExpand   = "expand"
	stageResolve  = "resolve"
	stageDownload = "download"
)

// Catalog is the subset of the API client a run needs.
type Catalog interface {
	FetchSeasons(ctx context.Context, seriesID string, locale crunchyroll.Locale) ([]crunchyroll.SeasonRecord, error)
	FetchEpisode(ctx context.Context, episodeID string, locale crunchyroll.Locale) ([]crunchyroll.EpisodeRecord, error)
	FetchSeasonEpisodes(ctx context.Context, seasonID string, locale crunchyroll.Locale) ([]crunchyroll.EpisodeRecord, error)
	ResolveStreamURL(ctx context.Context, streamsLink string, locale crunchyroll.Locale) (string, error)
}

// Fetcher writes a resolved stream to disk.
type Fetcher interface {
	Download(ctx context.Context, ep crunchyroll.EpisodeRecord, streamURL string) (downloader.Result, error)
	OutputPath(ep crunchyroll.EpisodeRecord) string
}

// History records finished downloads. A nil History disables skip tracking.
type History interface {
	Completed(ctx context.Context, episodeID string) (bool, error)
	Record(ctx context.Context, entry history.Entry) error
}

// TargetKind selects how a target ID is expanded into episodes.
type TargetKind int

const (
	TargetShow TargetKind = iota
	TargetSeason
	TargetEpisode
)

func (k TargetKind) String() string {
	switch k {
	case TargetShow:
		return "show"
	case TargetSeason:
		return "season"
	case TargetEpisode:
		return "episode"
	default:
		return "unknown"
	}
}

// Target names what to download.
type Target struct {
	Kind TargetKind
	ID   string
}

// Options tune a run.
type Options struct {
	Locale        crunchyroll.Locale
	MaxInFlight   int
	DryRun        bool
	SkipCompleted bool
}

// OutcomeStatus describes what happened to one episode.
type OutcomeStatus string

const (
	OutcomeDownloaded OutcomeStatus = "downloaded"
	OutcomeExisting   OutcomeStatus = "existing"
	OutcomeCompleted  OutcomeStatus = "already_completed"
	OutcomePlanned    OutcomeStatus = "planned"
)

// Outcome is the per-episode result of a run.
type Outcome struct {
	Episode    crunchyroll.EpisodeRecord `json:"episode"`
	Status     OutcomeStatus             `json:"status"`
	OutputPath string                    `json:"output_path"`
	StreamURL  string                    `json:"stream_url,omitempty"`
}

// Summary reports a finished run.
type Summary struct {
	CorrelationID string    `json:"correlation_id"`
	Outcomes      []Outcome `json:"outcomes"`
}

// Count returns how many outcomes have the given status.
func (s Summary) Count(status OutcomeStatus) int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Runner executes download runs.
type Runner struct {
	catalog Catalog
	fetcher Fetcher
	history History
	logger  *slog.Logger
	opts    Options
	newID   func() string
}

// New constructs a Runner. history may be nil.
func New(catalog Catalog, fetcher Fetcher, hist History, logger *slog.Logger, opts Options) *Runner {
	if opts.MaxInFlight < 1 {
		opts.MaxInFlight = 1
	}
	return &Runner{
		catalog: catalog,
		fetcher: fetcher,
		history: hist,
		logger:  logging.NewComponentLogger(logger, "pipeline"),
		opts:    opts,
		newID:   uuid.NewString,
	}
}

// Run downloads every episode behind target. The returned summary holds the
// outcomes reached before any error.
func (r *Runner) Run(ctx context.Context, target Target) (Summary, error) {
	summary := Summary{CorrelationID: r.newID()}
	ctx = services.WithRequestID(ctx, summary.CorrelationID)

	id := strings.TrimSpace(target.ID)
	if id == "" {
		return summary, services.Wrap(services.ErrValidation, stageExpand, "target", target.Kind.String()+" id is empty", nil)
	}

	logger := logging.WithContext(ctx, r.logger)
	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_started"),
		logging.String("target", target.Kind.String()),
		logging.String("target_id", id),
		logging.Bool("dry_run", r.opts.DryRun),
		logging.Int("max_in_flight", r.opts.MaxInFlight),
	)

	var err error
	switch target.Kind {
	case TargetShow:
		err = r.runShow(ctx, id, &summary)
	case TargetSeason:
		err = r.runSeason(ctx, id, &summary)
	case TargetEpisode:
		err = r.runEpisode(ctx, id, &summary)
	default:
		err = services.Wrap(services.ErrValidation, stageExpand, "target", fmt.Sprintf("unknown target kind %d", target.Kind), nil)
	}
	if err != nil {
		logging.ErrorWithContext(logger, "run failed", "run_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorCode, services.Classify(err)),
		)
		return summary, err
	}

	logger.Info("run finished",
		logging.String(logging.FieldEventType, "run_finished"),
		logging.Int("downloaded", summary.Count(OutcomeDownloaded)),
		logging.Int("existing", summary.Count(OutcomeExisting)),
		logging.Int("already_completed", summary.Count(OutcomeCompleted)),
		logging.Int("planned", summary.Count(OutcomePlanned)),
	)
	return summary, nil
}

func (r *Runner) runShow(ctx context.Context, seriesID string, summary *Summary) error {
	ctx = services.WithSeriesID(ctx, seriesID)
	seasons, err := r.catalog.FetchSeasons(services.WithStage(ctx, stageExpand), seriesID, r.opts.Locale)
	if err != nil {
		return fmt.Errorf("fetch seasons for %s: %w", seriesID, err)
	}
	if len(seasons) == 0 {
		return services.Wrap(services.ErrNotFound, stageExpand, "fetch seasons", "series "+seriesID+" has no seasons", nil)
	}
	logger := logging.WithContext(ctx, r.logger)
	for _, season := range seasons {
		logger.Info("getting episodes for season",
			logging.String(logging.FieldSeasonID, season.ID),
			logging.String("identifier", season.Identifier),
			logging.Int("total_episodes", season.EpisodeCount),
		)
		if err := r.runSeason(ctx, season.ID, summary); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runSeason(ctx context.Context, seasonID string, summary *Summary) error {
	ctx = services.WithSeasonID(ctx, seasonID)
	episodes, err := r.catalog.FetchSeasonEpisodes(services.WithStage(ctx, stageExpand), seasonID, r.opts.Locale)
	if err != nil {
		return fmt.Errorf("fetch episodes for season %s: %w", seasonID, err)
	}
	if len(episodes) == 0 {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "season has no episodes", "season_empty",
			logging.String(logging.FieldImpact, "nothing downloaded for this season"),
			logging.String(logging.FieldErrorHint, "check the season id and locale"),
		)
		return nil
	}
	return r.process(ctx, episodes, summary)
}

func (r *Runner) runEpisode(ctx context.Context, episodeID string, summary *Summary) error {
	ctx = services.WithEpisodeID(ctx, episodeID)
	episodes, err := r.catalog.FetchEpisode(services.WithStage(ctx, stageExpand), episodeID, r.opts.Locale)
	if err != nil {
		return fmt.Errorf("fetch episode %s: %w", episodeID, err)
	}
	if len(episodes) == 0 {
		return services.Wrap(services.ErrNotFound, stageExpand, "fetch episode", "episode "+episodeID+" returned no records", nil)
	}
	return r.process(ctx, episodes[:1], summary)
}

// process handles one ordered batch of episodes.
func (r *Runner) process(ctx context.Context, episodes []crunchyroll.EpisodeRecord, summary *Summary) error {
	pending := make([]crunchyroll.EpisodeRecord, 0, len(episodes))
	for _, ep := range episodes {
		done, err := r.alreadyCompleted(ctx, ep)
		if err != nil {
			return err
		}
		if done {
			summary.Outcomes = append(summary.Outcomes, Outcome{
				Episode:    ep,
				Status:     OutcomeCompleted,
				OutputPath: r.fetcher.OutputPath(ep),
			})
			continue
		}
		pending = append(pending, ep)
	}

	for start := 0; start < len(pending); start += r.opts.MaxInFlight {
		end := min(start+r.opts.MaxInFlight, len(pending))
		window := pending[start:end]
		urls, err := r.resolve(ctx, window)
		if err != nil {
			return err
		}
		for i, ep := range window {
			outcome, err := r.deliver(ctx, ep, urls[i])
			if err != nil {
				return err
			}
			summary.Outcomes = append(summary.Outcomes, outcome)
		}
	}
	return nil
}

func (r *Runner) alreadyCompleted(ctx context.Context, ep crunchyroll.EpisodeRecord) (bool, error) {
	if r.history == nil || !r.opts.SkipCompleted {
		return false, nil
	}
	done, err := r.history.Completed(ctx, ep.ID)
	if err != nil {
		return false, services.Wrap(services.ErrTransient, stageExpand, "check history", ep.ID, err)
	}
	if done {
		logging.WithContext(services.WithEpisodeID(ctx, ep.ID), r.logger).Info("already downloaded, skipping",
			logging.String(logging.FieldEpisodeLabel, ep.Label()),
			logging.String(logging.FieldEventType, "episode_skipped"),
		)
	}
	return done, nil
}

// resolve fetches stream URLs for a window of episodes. Results are indexed
// like the input; the first error cancels the remaining requests.
func (r *Runner) resolve(ctx context.Context, window []crunchyroll.EpisodeRecord) ([]string, error) {
	urls := make([]string, len(window))
	p := pool.New().
		WithContext(services.WithStage(ctx, stageResolve)).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(r.opts.MaxInFlight)
	for i, ep := range window {
		p.Go(func(ctx context.Context) error {
			url, err := r.catalog.ResolveStreamURL(ctx, ep.StreamsLink, r.opts.Locale)
			if err != nil {
				return fmt.Errorf("resolve stream for %s (%s): %w", ep.ID, ep.Label(), err)
			}
			urls[i] = url
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}

func (r *Runner) deliver(ctx context.Context, ep crunchyroll.EpisodeRecord, streamURL string) (Outcome, error) {
	ctx = services.WithStage(services.WithEpisodeID(ctx, ep.ID), stageDownload)
	outcome := Outcome{Episode: ep, OutputPath: r.fetcher.OutputPath(ep)}
	if r.opts.DryRun {
		outcome.Status = OutcomePlanned
		outcome.StreamURL = streamURL
		return outcome, nil
	}

	res, err := r.fetcher.Download(ctx, ep, streamURL)
	if err != nil {
		r.record(ctx, ep, history.Entry{Status: history.StatusFailed, OutputPath: outcome.OutputPath, ErrorMessage: err.Error()})
		return outcome, fmt.Errorf("download %s: %w", ep.Label(), err)
	}
	outcome.OutputPath = res.OutputPath
	outcome.Status = OutcomeDownloaded
	if res.Skipped {
		outcome.Status = OutcomeExisting
	}
	r.record(ctx, ep, history.Entry{Status: history.StatusCompleted, OutputPath: res.OutputPath})
	return outcome, nil
}

func (r *Runner) record(ctx context.Context, ep crunchyroll.EpisodeRecord, entry history.Entry) {
	if r.history == nil {
		return
	}
	entry.EpisodeID = ep.ID
	entry.SeriesTitle = ep.SeriesTitle
	entry.EpisodeTitle = ep.Title
	entry.SeasonNumber = ep.SeasonNumber
	entry.EpisodeNumber = ep.EpisodeNumber
	entry.CorrelationID, _ = services.RequestIDFromContext(ctx)
	// The download outcome stands even if bookkeeping fails.
	if err := r.history.Record(context.WithoutCancel(ctx), entry); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "failed to record download history", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "episode may be downloaded again on the next run"),
			logging.String(logging.FieldErrorHint, "check permissions on the state directory"),
		)
	}
}
