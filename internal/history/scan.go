package history

import (
	"database/sql"
	"fmt"
	"time"
)

const entryColumns = `episode_id, series_title, episode_title, season_number, episode_number,
    output_path, status, error_message, correlation_id, attempts, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		entry         Entry
		seriesTitle   sql.NullString
		episodeTitle  sql.NullString
		outputPath    sql.NullString
		status        string
		errorMessage  sql.NullString
		correlationID sql.NullString
		updatedAt     string
	)
	if err := row.Scan(
		&entry.EpisodeID,
		&seriesTitle,
		&episodeTitle,
		&entry.SeasonNumber,
		&entry.EpisodeNumber,
		&outputPath,
		&status,
		&errorMessage,
		&correlationID,
		&entry.Attempts,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	entry.SeriesTitle = seriesTitle.String
	entry.EpisodeTitle = episodeTitle.String
	entry.OutputPath = outputPath.String
	entry.Status = Status(status)
	entry.ErrorMessage = errorMessage.String
	entry.CorrelationID = correlationID.String
	ts, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at %q: %w", updatedAt, err)
	}
	entry.UpdatedAt = ts
	return &entry, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
