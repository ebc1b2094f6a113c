package crunchyroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const resolveStreamOp = "resolve stream"

// ResolveStreamURL fetches the stream document behind an episode's streams
// link and returns the multi-track HLS URL for the locale's subtitle track.
func (c *Client) ResolveStreamURL(ctx context.Context, streamsLink string, locale Locale) (string, error) {
	link := strings.TrimSpace(streamsLink)
	if link == "" {
		return "", &APIError{Kind: APIUnexpectedShape, Op: resolveStreamOp, Err: errors.New("streams link is empty")}
	}

	extra := url.Values{}
	extra.Set("streams", "all")
	extra.Set("textType", "all")
	body, err := c.getContent(ctx, resolveStreamOp, link, locale, extra)
	if err != nil {
		return "", err
	}
	return extractStreamURL(body, locale.SubtitleTrack())
}

// extractStreamURL reads data[0].multitrack_text_hls[track].url. Bodies that
// are not JSON are malformed; every other deviation is an unexpected shape.
func extractStreamURL(body []byte, track string) (string, error) {
	if !json.Valid(body) {
		return "", &APIError{Kind: APIMalformedResponse, Op: resolveStreamOp, Err: errors.New("stream document is not valid json")}
	}

	var document struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &document); err != nil {
		return "", shapeError("data is not a list", err)
	}
	if len(document.Data) == 0 {
		return "", shapeError("data is missing or empty", nil)
	}

	var entry struct {
		Tracks map[string]json.RawMessage `json:"multitrack_text_hls"`
	}
	if err := json.Unmarshal(document.Data[0], &entry); err != nil {
		return "", shapeError("data[0] is not an object with multitrack_text_hls", err)
	}
	if entry.Tracks == nil {
		return "", shapeError("data[0].multitrack_text_hls is missing", nil)
	}
	raw, ok := entry.Tracks[track]
	if !ok {
		return "", shapeError(fmt.Sprintf("data[0].multitrack_text_hls has no %q track", track), nil)
	}

	var variant struct {
		URL *string `json:"url"`
	}
	if err := json.Unmarshal(raw, &variant); err != nil {
		return "", shapeError(fmt.Sprintf("track %q is not an object with url", track), err)
	}
	if variant.URL == nil {
		return "", shapeError(fmt.Sprintf("track %q is missing url", track), nil)
	}
	streamURL := strings.TrimSpace(*variant.URL)
	if streamURL == "" {
		return "", shapeError(fmt.Sprintf("track %q has an empty url", track), nil)
	}
	return streamURL, nil
}

func shapeError(detail string, err error) error {
	if err != nil {
		return &APIError{Kind: APIUnexpectedShape, Op: resolveStreamOp, Err: fmt.Errorf("%s: %w", detail, err)}
	}
	return &APIError{Kind: APIUnexpectedShape, Op: resolveStreamOp, Err: errors.New(detail)}
}
