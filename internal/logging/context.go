package logging

import (
	"context"
	"log/slog"

	"crdl/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldCorrelationID tags every line of one CLI invocation.
	FieldCorrelationID = "correlation_id"
	// FieldStage is the pipeline stage (resolve, download).
	FieldStage     = "stage"
	FieldSeriesID  = "series_id"
	FieldSeasonID  = "season_id"
	FieldEpisodeID = "episode_id"
	// FieldEpisodeLabel is the user-friendly episode marker (e.g. S01E02); the
	// console handler lifts it into the line header.
	FieldEpisodeLabel = "episode_label"
	// FieldEventType names the kind of event for filtering.
	FieldEventType = "event_type"
	// FieldErrorCode carries services.Classify output.
	FieldErrorCode = "error_code"
	// FieldErrorHint suggests the next step to the operator.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	FieldError  = "error"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 5)
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if id, ok := services.SeriesIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSeriesID, id))
	}
	if id, ok := services.SeasonIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSeasonID, id))
	}
	if id, ok := services.EpisodeIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldEpisodeID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return slog.New(logger.Handler().WithAttrs(fields))
}
