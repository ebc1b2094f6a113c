package services

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	stageKey     contextKey = "stage"
	seriesIDKey  contextKey = "series_id"
	seasonIDKey  contextKey = "season_id"
	episodeIDKey contextKey = "episode_id"
)

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, requestIDKey)
}

// WithStage annotates context with the pipeline stage name (resolve, download).
func WithStage(ctx context.Context, stage string) context.Context {
	return withString(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, stageKey)
}

// WithSeriesID annotates context with the series being processed.
func WithSeriesID(ctx context.Context, id string) context.Context {
	return withString(ctx, seriesIDKey, id)
}

// SeriesIDFromContext returns the series identifier if present.
func SeriesIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, seriesIDKey)
}

// WithSeasonID annotates context with the season being processed.
func WithSeasonID(ctx context.Context, id string) context.Context {
	return withString(ctx, seasonIDKey, id)
}

// SeasonIDFromContext returns the season identifier if present.
func SeasonIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, seasonIDKey)
}

// WithEpisodeID annotates context with the episode being processed.
func WithEpisodeID(ctx context.Context, id string) context.Context {
	return withString(ctx, episodeIDKey, id)
}

// EpisodeIDFromContext returns the episode identifier if present.
func EpisodeIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, episodeIDKey)
}

// Blank values leave the context untouched so callers can annotate
// unconditionally.
func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
