package crunchyroll

import (
	"fmt"
	"strings"
	"time"
)

// DefaultSubtitleLocale is the hardsub track used when a Locale leaves it unset.
const DefaultSubtitleLocale = "en-US"

// AuthToken is the credential state held by a Client.
type AuthToken struct {
	AccessToken  string
	RefreshToken string
	AccountID    string
	Country      string
	IssuedAt     time.Time
	Lifetime     time.Duration
}

// ExpiresAt reports when the access token stops being accepted upstream.
func (t AuthToken) ExpiresAt() time.Time {
	return t.IssuedAt.Add(t.Lifetime)
}

// Locale carries the language preferences sent with content requests.
type Locale struct {
	Display  string
	Audio    string
	Subtitle string
}

// SubtitleTrack returns the stream track key used during stream resolution.
func (l Locale) SubtitleTrack() string {
	if track := strings.TrimSpace(l.Subtitle); track != "" {
		return track
	}
	return DefaultSubtitleLocale
}

// EpisodeRecord is the metadata of a single episode.
type EpisodeRecord struct {
	ID              string   `json:"id"`
	Identifier      string   `json:"identifier"`
	Title           string   `json:"title"`
	SeriesTitle     string   `json:"series_title"`
	SeasonID        string   `json:"season_id"`
	SeasonNumber    int      `json:"season_number"`
	EpisodeNumber   int      `json:"episode_number"`
	DurationMS      int64    `json:"duration_ms"`
	AudioLocale     string   `json:"audio_locale"`
	SubtitleLocales []string `json:"subtitle_locales"`
	HD              bool     `json:"hd"`
	Clip            bool     `json:"clip"`
	Dubbed          bool     `json:"dubbed"`
	Mature          bool     `json:"mature"`
	PremiumOnly     bool     `json:"premium_only"`
	StreamsLink     string   `json:"streams_link"`
}

// Duration converts the millisecond runtime into a time.Duration.
func (e EpisodeRecord) Duration() time.Duration {
	return time.Duration(e.DurationMS) * time.Millisecond
}

// Label renders the conventional SxxEyy marker for the episode.
func (e EpisodeRecord) Label() string {
	return fmt.Sprintf("S%02dE%02d", e.SeasonNumber, e.EpisodeNumber)
}

// SeasonRecord is the metadata of a single season.
type SeasonRecord struct {
	ID           string `json:"id"`
	Identifier   string `json:"identifier"`
	SeasonNumber int    `json:"season_number"`
	AudioLocale  string `json:"audio_locale"`
	EpisodeCount int    `json:"episode_count"`
}

type tokenPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    *int64 `json:"expires_in"`
	AccountID    string `json:"account_id"`
	Country      string `json:"country"`
}

type episodeEnvelope struct {
	Data []episodePayload `json:"data"`
}

type episodePayload struct {
	ID              string   `json:"id"`
	Identifier      string   `json:"identifier"`
	Title           string   `json:"title"`
	SeriesTitle     string   `json:"series_title"`
	SeasonID        string   `json:"season_id"`
	SeasonNumber    int      `json:"season_number"`
	EpisodeNumber   int      `json:"episode_number"`
	DurationMS      int64    `json:"duration_ms"`
	AudioLocale     string   `json:"audio_locale"`
	SubtitleLocales []string `json:"subtitle_locales"`
	HDFlag          bool     `json:"hd_flag"`
	IsClip          bool     `json:"is_clip"`
	IsDubbed        bool     `json:"is_dubbed"`
	IsMature        bool     `json:"is_mature"`
	IsPremiumOnly   bool     `json:"is_premium_only"`
	StreamsLink     string   `json:"streams_link"`
}

func (p episodePayload) record() (EpisodeRecord, error) {
	if strings.TrimSpace(p.ID) == "" {
		return EpisodeRecord{}, fmt.Errorf("episode is missing id")
	}
	if strings.TrimSpace(p.StreamsLink) == "" {
		return EpisodeRecord{}, fmt.Errorf("episode %s is missing streams_link", p.ID)
	}
	if p.SeasonNumber < 0 || p.EpisodeNumber < 0 {
		return EpisodeRecord{}, fmt.Errorf("episode %s has negative season/episode number", p.ID)
	}
	if p.DurationMS < 0 {
		return EpisodeRecord{}, fmt.Errorf("episode %s has negative duration", p.ID)
	}
	subtitles := make([]string, 0, len(p.SubtitleLocales))
	subtitles = append(subtitles, p.SubtitleLocales...)
	return EpisodeRecord{
		ID:              p.ID,
		Identifier:      p.Identifier,
		Title:           p.Title,
		SeriesTitle:     p.SeriesTitle,
		SeasonID:        p.SeasonID,
		SeasonNumber:    p.SeasonNumber,
		EpisodeNumber:   p.EpisodeNumber,
		DurationMS:      p.DurationMS,
		AudioLocale:     p.AudioLocale,
		SubtitleLocales: subtitles,
		HD:              p.HDFlag,
		Clip:            p.IsClip,
		Dubbed:          p.IsDubbed,
		Mature:          p.IsMature,
		PremiumOnly:     p.IsPremiumOnly,
		StreamsLink:     p.StreamsLink,
	}, nil
}

type seasonEnvelope struct {
	Data []seasonPayload `json:"data"`
}

type seasonPayload struct {
	ID               string `json:"id"`
	Identifier       string `json:"identifier"`
	SeasonNumber     int    `json:"season_number"`
	AudioLocale      string `json:"audio_locale"`
	NumberOfEpisodes int    `json:"number_of_episodes"`
}

func (p seasonPayload) record() (SeasonRecord, error) {
	if strings.TrimSpace(p.ID) == "" {
		return SeasonRecord{}, fmt.Errorf("season is missing id")
	}
	if p.SeasonNumber < 0 {
		return SeasonRecord{}, fmt.Errorf("season %s has negative season number", p.ID)
	}
	if p.NumberOfEpisodes < 0 {
		return SeasonRecord{}, fmt.Errorf("season %s has negative episode count", p.ID)
	}
	return SeasonRecord{
		ID:           p.ID,
		Identifier:   p.Identifier,
		SeasonNumber: p.SeasonNumber,
		AudioLocale:  p.AudioLocale,
		EpisodeCount: p.NumberOfEpisodes,
	}, nil
}
