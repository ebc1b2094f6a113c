package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"crdl/internal/crunchyroll"
	"crdl/internal/downloader"
	"crdl/internal/history"
	"crdl/internal/logging"
	"crdl/internal/services"
)

type fakeCatalog struct {
	seasons     map[string][]crunchyroll.SeasonRecord
	episodes    map[string][]crunchyroll.EpisodeRecord
	single      map[string][]crunchyroll.EpisodeRecord
	resolveErrs map[string]error
	delay       time.Duration

	mu       sync.Mutex
	resolved []string
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeCatalog) FetchSeasons(_ context.Context, seriesID string, _ crunchyroll.Locale) ([]crunchyroll.SeasonRecord, error) {
	return f.seasons[seriesID], nil
}

func (f *fakeCatalog) FetchEpisode(_ context.Context, episodeID string, _ crunchyroll.Locale) ([]crunchyroll.EpisodeRecord, error) {
	return f.single[episodeID], nil
}

func (f *fakeCatalog) FetchSeasonEpisodes(_ context.Context, seasonID string, _ crunchyroll.Locale) ([]crunchyroll.EpisodeRecord, error) {
	return f.episodes[seasonID], nil
}

func (f *fakeCatalog) ResolveStreamURL(ctx context.Context, link string, locale crunchyroll.Locale) (string, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := f.resolveErrs[link]; err != nil {
		return "", err
	}
	f.mu.Lock()
	f.resolved = append(f.resolved, link)
	f.mu.Unlock()
	return "https://cdn.example" + link + "/" + locale.SubtitleTrack() + ".m3u8", nil
}

type fakeFetcher struct {
	failures   map[string]error
	existing   map[string]bool
	downloaded []string
	urls       []string
}

func (f *fakeFetcher) Download(_ context.Context, ep crunchyroll.EpisodeRecord, streamURL string) (downloader.Result, error) {
	if err := f.failures[ep.ID]; err != nil {
		return downloader.Result{}, err
	}
	if f.existing[ep.ID] {
		return downloader.Result{OutputPath: f.OutputPath(ep), Skipped: true}, nil
	}
	f.downloaded = append(f.downloaded, ep.ID)
	f.urls = append(f.urls, streamURL)
	return downloader.Result{OutputPath: f.OutputPath(ep)}, nil
}

func (f *fakeFetcher) OutputPath(ep crunchyroll.EpisodeRecord) string {
	return filepath.Join("/library", downloader.FileName(ep))
}

func episode(season, number int) crunchyroll.EpisodeRecord {
	id := fmt.Sprintf("S%dE%d", season, number)
	return crunchyroll.EpisodeRecord{
		ID:            id,
		SeriesTitle:   "Frieren",
		SeasonID:      fmt.Sprintf("season-%d", season),
		SeasonNumber:  season,
		EpisodeNumber: number,
		StreamsLink:   "/streams/" + id,
	}
}

func openHistory(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newRunner(catalog Catalog, fetcher Fetcher, hist History, opts Options) *Runner {
	if opts.Locale == (crunchyroll.Locale{}) {
		opts.Locale = crunchyroll.Locale{Display: "en-US", Audio: "ja-JP", Subtitle: "en-US"}
	}
	r := New(catalog, fetcher, hist, logging.NewNop(), opts)
	r.newID = func() string { return "run-0001" }
	return r
}

func TestRunSeasonDownloadsInEpisodeOrder(t *testing.T) {
	catalog := &fakeCatalog{
		episodes: map[string][]crunchyroll.EpisodeRecord{
			"season-1": {episode(1, 1), episode(1, 2), episode(1, 3), episode(1, 4), episode(1, 5)},
		},
		delay: 2 * time.Millisecond,
	}
	fetcher := &fakeFetcher{}
	hist := openHistory(t)

	summary, err := newRunner(catalog, fetcher, hist, Options{MaxInFlight: 2}).Run(context.Background(), Target{Kind: TargetSeason, ID: "season-1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.CorrelationID != "run-0001" {
		t.Fatalf("unexpected correlation id %q", summary.CorrelationID)
	}
	want := []string{"S1E1", "S1E2", "S1E3", "S1E4", "S1E5"}
	if fmt.Sprint(fetcher.downloaded) != fmt.Sprint(want) {
		t.Fatalf("unexpected download order %v", fetcher.downloaded)
	}
	for i, url := range fetcher.urls {
		if url != "https://cdn.example/streams/"+want[i]+"/en-US.m3u8" {
			t.Fatalf("episode %s got stream %q", want[i], url)
		}
	}
	if summary.Count(OutcomeDownloaded) != 5 {
		t.Fatalf("expected five downloads, got %#v", summary.Outcomes)
	}

	entry, err := hist.Get(context.Background(), "S1E3")
	if err != nil || entry == nil {
		t.Fatalf("expected history entry, got %v / %v", entry, err)
	}
	if entry.Status != history.StatusCompleted || entry.CorrelationID != "run-0001" || entry.EpisodeNumber != 3 {
		t.Fatalf("unexpected history entry %#v", entry)
	}
}

func TestRunShowWalksEverySeason(t *testing.T) {
	catalog := &fakeCatalog{
		seasons: map[string][]crunchyroll.SeasonRecord{
			"series-1": {{ID: "season-1", SeasonNumber: 1, EpisodeCount: 2}, {ID: "season-2", SeasonNumber: 2, EpisodeCount: 1}},
		},
		episodes: map[string][]crunchyroll.EpisodeRecord{
			"season-1": {episode(1, 1), episode(1, 2)},
			"season-2": {episode(2, 1)},
		},
	}
	fetcher := &fakeFetcher{}

	summary, err := newRunner(catalog, fetcher, nil, Options{}).Run(context.Background(), Target{Kind: TargetShow, ID: "series-1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fmt.Sprint(fetcher.downloaded) != "[S1E1 S1E2 S2E1]" {
		t.Fatalf("unexpected download order %v", fetcher.downloaded)
	}
	if len(summary.Outcomes) != 3 {
		t.Fatalf("expected three outcomes, got %d", len(summary.Outcomes))
	}
}

func TestRunEpisodeDownloadsFirstRecord(t *testing.T) {
	catalog := &fakeCatalog{
		single: map[string][]crunchyroll.EpisodeRecord{"S1E7": {episode(1, 7), episode(1, 8)}},
	}
	fetcher := &fakeFetcher{}

	summary, err := newRunner(catalog, fetcher, nil, Options{}).Run(context.Background(), Target{Kind: TargetEpisode, ID: "S1E7"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fmt.Sprint(fetcher.downloaded) != "[S1E7]" {
		t.Fatalf("unexpected downloads %v", fetcher.downloaded)
	}
	if summary.Outcomes[0].OutputPath != filepath.Join("/library", "Frieren_S1E7.mp4") {
		t.Fatalf("unexpected output path %q", summary.Outcomes[0].OutputPath)
	}
}

func TestRunSkipsCompletedEpisodes(t *testing.T) {
	ctx := context.Background()
	hist := openHistory(t)
	if err := hist.Record(ctx, history.Entry{EpisodeID: "S1E1", Status: history.StatusCompleted}); err != nil {
		t.Fatalf("seed history: %v", err)
	}
	if err := hist.Record(ctx, history.Entry{EpisodeID: "S1E2", Status: history.StatusFailed}); err != nil {
		t.Fatalf("seed history: %v", err)
	}
	catalog := &fakeCatalog{
		episodes: map[string][]crunchyroll.EpisodeRecord{"season-1": {episode(1, 1), episode(1, 2)}},
	}
	fetcher := &fakeFetcher{}

	summary, err := newRunner(catalog, fetcher, hist, Options{SkipCompleted: true}).Run(ctx, Target{Kind: TargetSeason, ID: "season-1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fmt.Sprint(fetcher.downloaded) != "[S1E2]" {
		t.Fatalf("expected only the failed episode to be retried, got %v", fetcher.downloaded)
	}
	if fmt.Sprint(catalog.resolved) != "[/streams/S1E2]" {
		t.Fatalf("completed episode must not be resolved, got %v", catalog.resolved)
	}
	if summary.Outcomes[0].Status != OutcomeCompleted || summary.Outcomes[1].Status != OutcomeDownloaded {
		t.Fatalf("unexpected outcomes %#v", summary.Outcomes)
	}
}

func TestRunWithoutSkipCompletedDownloadsAgain(t *testing.T) {
	ctx := context.Background()
	hist := openHistory(t)
	if err := hist.Record(ctx, history.Entry{EpisodeID: "S1E1"}); err != nil {
		t.Fatalf("seed history: %v", err)
	}
	catalog := &fakeCatalog{episodes: map[string][]crunchyroll.EpisodeRecord{"season-1": {episode(1, 1)}}}
	fetcher := &fakeFetcher{}

	if _, err := newRunner(catalog, fetcher, hist, Options{}).Run(ctx, Target{Kind: TargetSeason, ID: "season-1"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(fetcher.downloaded) != 1 {
		t.Fatalf("expected re-download, got %v", fetcher.downloaded)
	}
	entry, _ := hist.Get(ctx, "S1E1")
	if entry == nil || entry.Attempts != 2 {
		t.Fatalf("expected attempts bumped, got %#v", entry)
	}
}

func TestRunExistingFileIsReported(t *testing.T) {
	catalog := &fakeCatalog{episodes: map[string][]crunchyroll.EpisodeRecord{"season-1": {episode(1, 1)}}}
	fetcher := &fakeFetcher{existing: map[string]bool{"S1E1": true}}

	summary, err := newRunner(catalog, fetcher, nil, Options{}).Run(context.Background(), Target{Kind: TargetSeason, ID: "season-1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Count(OutcomeExisting) != 1 {
		t.Fatalf("expected existing outcome, got %#v", summary.Outcomes)
	}
}

func TestRunDryRunResolvesWithoutDownloading(t *testing.T) {
	catalog := &fakeCatalog{episodes: map[string][]crunchyroll.EpisodeRecord{"season-1": {episode(1, 1), episode(1, 2)}}}
	fetcher := &fakeFetcher{}
	hist := openHistory(t)

	summary, err := newRunner(catalog, fetcher, hist, Options{DryRun: true, MaxInFlight: 4}).Run(context.Background(), Target{Kind: TargetSeason, ID: "season-1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(fetcher.downloaded) != 0 {
		t.Fatalf("dry run must not download, got %v", fetcher.downloaded)
	}
	if summary.Count(OutcomePlanned) != 2 {
		t.Fatalf("expected planned outcomes, got %#v", summary.Outcomes)
	}
	if summary.Outcomes[1].StreamURL != "https://cdn.example/streams/S1E2/en-US.m3u8" {
		t.Fatalf("unexpected planned stream %q", summary.Outcomes[1].StreamURL)
	}
	if entries, _ := hist.List(context.Background(), 0); len(entries) != 0 {
		t.Fatalf("dry run must not write history, got %#v", entries)
	}
}

func TestRunStopsOnResolveError(t *testing.T) {
	apiErr := &crunchyroll.APIError{Kind: crunchyroll.APIUnexpectedStatus, Op: "resolve stream", Status: 403}
	catalog := &fakeCatalog{
		episodes:    map[string][]crunchyroll.EpisodeRecord{"season-1": {episode(1, 1), episode(1, 2), episode(1, 3)}},
		resolveErrs: map[string]error{"/streams/S1E2": apiErr},
	}
	fetcher := &fakeFetcher{}

	summary, err := newRunner(catalog, fetcher, nil, Options{MaxInFlight: 1}).Run(context.Background(), Target{Kind: TargetSeason, ID: "season-1"})
	if !errors.Is(err, crunchyroll.ErrUnexpectedStatus) {
		t.Fatalf("expected unexpected status error, got %v", err)
	}
	if services.Classify(err) != services.CodeAPIStatus {
		t.Fatalf("unexpected classification %q", services.Classify(err))
	}
	if fmt.Sprint(fetcher.downloaded) != "[S1E1]" {
		t.Fatalf("expected run to stop after the first episode, got %v", fetcher.downloaded)
	}
	if len(summary.Outcomes) != 1 {
		t.Fatalf("expected outcomes before the failure, got %#v", summary.Outcomes)
	}
}

func TestRunStopsOnDownloadErrorAndRecordsFailure(t *testing.T) {
	ctx := context.Background()
	hist := openHistory(t)
	toolErr := services.Wrap(services.ErrExternalTool, "download", "ffmpeg", "failed to download episode", errors.New("exit status 1"))
	catalog := &fakeCatalog{episodes: map[string][]crunchyroll.EpisodeRecord{"season-1": {episode(1, 1), episode(1, 2)}}}
	fetcher := &fakeFetcher{failures: map[string]error{"S1E1": toolErr}}

	_, err := newRunner(catalog, fetcher, hist, Options{SkipCompleted: true}).Run(ctx, Target{Kind: TargetSeason, ID: "season-1"})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if len(fetcher.downloaded) != 0 {
		t.Fatalf("expected no further downloads, got %v", fetcher.downloaded)
	}
	entry, _ := hist.Get(ctx, "S1E1")
	if entry == nil || entry.Status != history.StatusFailed || entry.ErrorMessage == "" {
		t.Fatalf("expected failed history entry, got %#v", entry)
	}
}

func TestResolveRespectsMaxInFlight(t *testing.T) {
	eps := make([]crunchyroll.EpisodeRecord, 0, 9)
	for i := 1; i <= 9; i++ {
		eps = append(eps, episode(1, i))
	}
	catalog := &fakeCatalog{episodes: map[string][]crunchyroll.EpisodeRecord{"season-1": eps}, delay: 5 * time.Millisecond}
	fetcher := &fakeFetcher{}

	if _, err := newRunner(catalog, fetcher, nil, Options{MaxInFlight: 3}).Run(context.Background(), Target{Kind: TargetSeason, ID: "season-1"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if peak := catalog.peak.Load(); peak > 3 {
		t.Fatalf("expected at most 3 concurrent resolutions, saw %d", peak)
	}
	if len(fetcher.downloaded) != 9 || fetcher.downloaded[8] != "S1E9" {
		t.Fatalf("unexpected downloads %v", fetcher.downloaded)
	}
}

func TestRunTargetErrors(t *testing.T) {
	catalog := &fakeCatalog{}
	runner := newRunner(catalog, &fakeFetcher{}, nil, Options{})

	if _, err := runner.Run(context.Background(), Target{Kind: TargetSeason, ID: " "}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for blank id, got %v", err)
	}
	if _, err := runner.Run(context.Background(), Target{Kind: TargetEpisode, ID: "missing"}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for empty episode response, got %v", err)
	}
	if _, err := runner.Run(context.Background(), Target{Kind: TargetShow, ID: "missing"}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for series without seasons, got %v", err)
	}
	if _, err := runner.Run(context.Background(), Target{Kind: TargetSeason, ID: "empty"}); err != nil {
		t.Fatalf("empty season should not fail the run: %v", err)
	}
	if _, err := runner.Run(context.Background(), Target{Kind: TargetKind(42), ID: "x"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown kind, got %v", err)
	}
}
