package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"crdl/internal/config"
	"crdl/internal/testsupport"
)

const (
	testSeriesID = "GY5P48XEY"
	testSeasonID = "GYQ4MKDZ6"
)

type fakeAPI struct {
	server   *httptest.Server
	logins   atomic.Int32
	resolves atomic.Int32
}

func episodeJSON(id string, number int) map[string]any {
	return map[string]any{
		"id":              id,
		"identifier":      fmt.Sprintf("%s|S1E%d", testSeriesID, number),
		"title":           fmt.Sprintf("Episode %d", number),
		"series_title":    "Frieren",
		"season_id":       testSeasonID,
		"season_number":   1,
		"episode_number":  number,
		"duration_ms":     1_420_000,
		"audio_locale":    "ja-JP",
		"is_premium_only": number > 1,
		"streams_link":    "/content/v2/cms/videos/" + id + "/streams",
	}
}

func writeTestJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("grant_type") == "password" && r.PostForm.Get("password") != "hunter2" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusUnauthorized)
			return
		}
		api.logins.Add(1)
		writeTestJSON(t, w, map[string]any{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"expires_in":    300,
			"account_id":    "acct-1",
			"country":       "US",
		})
	})
	mux.HandleFunc("GET /content/v2/cms/series/{id}/seasons", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != testSeriesID {
			http.NotFound(w, r)
			return
		}
		writeTestJSON(t, w, map[string]any{"data": []any{map[string]any{
			"id":                 testSeasonID,
			"identifier":         testSeriesID + "|S1",
			"season_number":      1,
			"audio_locale":       "ja-JP",
			"number_of_episodes": 2,
		}}})
	})
	mux.HandleFunc("GET /content/v2/cms/seasons/{id}/episodes", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != testSeasonID {
			http.NotFound(w, r)
			return
		}
		writeTestJSON(t, w, map[string]any{"data": []any{episodeJSON("EP1", 1), episodeJSON("EP2", 2)}})
	})
	mux.HandleFunc("GET /content/v2/cms/episodes/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id != "EP1" && id != "EP2" {
			http.NotFound(w, r)
			return
		}
		number := 1
		if id == "EP2" {
			number = 2
		}
		writeTestJSON(t, w, map[string]any{"data": []any{episodeJSON(id, number)}})
	})
	mux.HandleFunc("GET /content/v2/cms/videos/{id}/streams", func(w http.ResponseWriter, r *http.Request) {
		api.resolves.Add(1)
		track := "en-US"
		url := fmt.Sprintf("https://cdn.example/%s/%s/master.m3u8", r.PathValue("id"), r.URL.Query().Get("locale"))
		writeTestJSON(t, w, map[string]any{"data": []any{map[string]any{
			"multitrack_text_hls": map[string]any{track: map[string]any{"url": url}},
		}}})
	})
	api.server = httptest.NewServer(mux)
	t.Cleanup(api.server.Close)
	return api
}

type cliTestEnv struct {
	api        *fakeAPI
	cfg        *config.Config
	configPath string
	argsLog    string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CRDL_USERNAME", "")
	t.Setenv("CRDL_PASSWORD", "")

	api := newFakeAPI(t)
	opts = append([]testsupport.ConfigOption{
		testsupport.WithBaseURL(api.server.URL),
		testsupport.WithFFmpegScript(testsupport.FakeFFmpegBody),
	}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Logging.Level = "info"

	argsLog := filepath.Join(testsupport.BaseDir(cfg), "ffmpeg-args.log")
	t.Setenv("CRDL_FFMPEG_ARGS_LOG", argsLog)

	configPath := filepath.Join(testsupport.BaseDir(cfg), "crdl.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{api: api, cfg: cfg, configPath: configPath, argsLog: argsLog}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
