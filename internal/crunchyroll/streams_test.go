package crunchyroll

import (
	"errors"
	"testing"
)

func TestExtractStreamURL(t *testing.T) {
	body := []byte(`{"data":[{"multitrack_text_hls":{"en-US":{"url":"https://cdn.example/en.m3u8"},"de-DE":{"url":"https://cdn.example/de.m3u8"}}}]}`)

	got, err := extractStreamURL(body, "en-US")
	if err != nil {
		t.Fatalf("extractStreamURL: %v", err)
	}
	if got != "https://cdn.example/en.m3u8" {
		t.Fatalf("unexpected url %q", got)
	}

	got, err = extractStreamURL(body, "de-DE")
	if err != nil {
		t.Fatalf("extractStreamURL de-DE: %v", err)
	}
	if got != "https://cdn.example/de.m3u8" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestExtractStreamURLRejectsUnexpectedShapes(t *testing.T) {
	cases := map[string]string{
		"null document":        `null`,
		"array document":       `[]`,
		"missing data":         `{"meta":{}}`,
		"data is object":       `{"data":{"multitrack_text_hls":{}}}`,
		"empty data":           `{"data":[]}`,
		"null first entry":     `{"data":[null]}`,
		"first entry string":   `{"data":["nope"]}`,
		"missing tracks":       `{"data":[{"adaptive_hls":{}}]}`,
		"tracks is list":       `{"data":[{"multitrack_text_hls":[]}]}`,
		"missing locale":       `{"data":[{"multitrack_text_hls":{"fr-FR":{"url":"x"}}}]}`,
		"null track":           `{"data":[{"multitrack_text_hls":{"en-US":null}}]}`,
		"track is string":      `{"data":[{"multitrack_text_hls":{"en-US":"https://x"}}]}`,
		"missing url":          `{"data":[{"multitrack_text_hls":{"en-US":{"hardsub_locale":"en-US"}}}]}`,
		"url is number":        `{"data":[{"multitrack_text_hls":{"en-US":{"url":42}}}]}`,
		"url is null":          `{"data":[{"multitrack_text_hls":{"en-US":{"url":null}}}]}`,
		"url is empty":         `{"data":[{"multitrack_text_hls":{"en-US":{"url":""}}}]}`,
		"url is whitespace":    `{"data":[{"multitrack_text_hls":{"en-US":{"url":"   "}}}]}`,
		"second entry ignored": `{"data":[{"multitrack_text_hls":{}},{"multitrack_text_hls":{"en-US":{"url":"x"}}}]}`,
	}

	for name, body := range cases {
		got, err := extractStreamURL([]byte(body), "en-US")
		if err == nil {
			t.Fatalf("%s: expected error, got url %q", name, got)
		}
		if got != "" {
			t.Fatalf("%s: expected empty url alongside error, got %q", name, got)
		}
		if !errors.Is(err, ErrUnexpectedShape) {
			t.Fatalf("%s: expected unexpected shape, got %v", name, err)
		}
	}
}

func TestExtractStreamURLRejectsInvalidJSON(t *testing.T) {
	_, err := extractStreamURL([]byte(`<html>gateway timeout</html>`), "en-US")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected malformed response, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != APIMalformedResponse {
		t.Fatalf("expected *APIError with malformed kind, got %#v", err)
	}
}
