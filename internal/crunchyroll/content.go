package crunchyroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// FetchSeasons lists the seasons of a series.
func (c *Client) FetchSeasons(ctx context.Context, seriesID string, locale Locale) ([]SeasonRecord, error) {
	const op = "fetch seasons"
	path := "/content/v2/cms/series/" + url.PathEscape(strings.TrimSpace(seriesID)) + "/seasons"
	body, err := c.getContent(ctx, op, path, locale, nil)
	if err != nil {
		return nil, err
	}

	var envelope seasonEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &APIError{Kind: APIMalformedResponse, Op: op, Err: err}
	}
	if envelope.Data == nil {
		return nil, &APIError{Kind: APIMalformedResponse, Op: op, Err: errors.New("response is missing data")}
	}
	seasons := make([]SeasonRecord, 0, len(envelope.Data))
	for i, payload := range envelope.Data {
		record, err := payload.record()
		if err != nil {
			return nil, &APIError{Kind: APIMalformedResponse, Op: op, Err: fmt.Errorf("data[%d]: %w", i, err)}
		}
		seasons = append(seasons, record)
	}
	return seasons, nil
}

// FetchEpisode loads a single episode. The result mirrors the upstream shape:
// a list holding the requested episode.
func (c *Client) FetchEpisode(ctx context.Context, episodeID string, locale Locale) ([]EpisodeRecord, error) {
	const op = "fetch episode"
	path := "/content/v2/cms/episodes/" + url.PathEscape(strings.TrimSpace(episodeID))
	episodes, err := c.fetchEpisodes(ctx, op, path, locale)
	if err != nil {
		return nil, err
	}
	if len(episodes) == 0 {
		return nil, &APIError{Kind: APIMalformedResponse, Op: op, Err: errors.New("response contained no episode")}
	}
	return episodes, nil
}

// FetchSeasonEpisodes lists the episodes of a season in response order.
func (c *Client) FetchSeasonEpisodes(ctx context.Context, seasonID string, locale Locale) ([]EpisodeRecord, error) {
	path := "/content/v2/cms/seasons/" + url.PathEscape(strings.TrimSpace(seasonID)) + "/episodes"
	return c.fetchEpisodes(ctx, "fetch season episodes", path, locale)
}

func (c *Client) fetchEpisodes(ctx context.Context, op, path string, locale Locale) ([]EpisodeRecord, error) {
	body, err := c.getContent(ctx, op, path, locale, nil)
	if err != nil {
		return nil, err
	}

	var envelope episodeEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &APIError{Kind: APIMalformedResponse, Op: op, Err: err}
	}
	if envelope.Data == nil {
		return nil, &APIError{Kind: APIMalformedResponse, Op: op, Err: errors.New("response is missing data")}
	}
	episodes := make([]EpisodeRecord, 0, len(envelope.Data))
	for i, payload := range envelope.Data {
		record, err := payload.record()
		if err != nil {
			return nil, &APIError{Kind: APIMalformedResponse, Op: op, Err: fmt.Errorf("data[%d]: %w", i, err)}
		}
		episodes = append(episodes, record)
	}
	return episodes, nil
}

// getContent performs a bearer-authenticated GET and returns the decoded
// body of a 200 response.
func (c *Client) getContent(ctx context.Context, op, path string, locale Locale, extra url.Values) ([]byte, error) {
	token, err := c.ensureFreshToken(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	for key, values := range extra {
		for _, v := range values {
			query.Add(key, v)
		}
	}
	query.Set("locale", locale.Display)
	query.Set("preferred_audio_language", locale.Audio)

	endpoint, err := c.endpoint(path, query)
	if err != nil {
		return nil, &APIError{Kind: APITransportFailure, Op: op, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &APIError{Kind: APITransportFailure, Op: op, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.identity.UserAgent)
	if c.identity.AcceptEncoding != "" {
		req.Header.Set("Accept-Encoding", c.identity.AcceptEncoding)
	}
	req.Header.Set("Accept", "application/json")

	resp, latency, err := c.send(req)
	if err != nil {
		return nil, &APIError{Kind: APITransportFailure, Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("crunchyroll request completed",
		slog.String("operation", op),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", latency),
	)

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Kind: APIUnexpectedStatus, Op: op, Status: resp.StatusCode, Body: readErrorBody(resp)}
	}

	reader, err := bodyReader(resp)
	if err != nil {
		return nil, &APIError{Kind: APIMalformedResponse, Op: op, Err: err}
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, &APIError{Kind: APITransportFailure, Op: op, Err: fmt.Errorf("read body: %w", err)}
	}
	return data, nil
}
