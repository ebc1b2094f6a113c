package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"crdl/internal/crunchyroll"
)

//go:embed sample_config.toml
var sampleConfig string

// Auth holds the account credentials used for the password grant.
type Auth struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// API contains the remote API identity and client tuning.
type API struct {
	BaseURL           string  `toml:"base_url"`
	BasicAuth         string  `toml:"basic_auth"`
	UserAgent         string  `toml:"user_agent"`
	AcceptEncoding    string  `toml:"accept_encoding"`
	RequestTimeout    int     `toml:"request_timeout"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	MaxInFlight       int     `toml:"max_in_flight"`
	RefreshPolicy     string  `toml:"refresh_policy"`
}

// Locale contains the language tags sent with content requests.
type Locale struct {
	Locale         string `toml:"locale"`
	AudioLocale    string `toml:"audio_locale"`
	SubtitleLocale string `toml:"subtitle_locale"`
}

// Download contains configuration for the ffmpeg handoff.
type Download struct {
	BaseDir       string `toml:"base_dir"`
	Directory     string `toml:"directory"`
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	Overwrite     bool   `toml:"overwrite"`
	SkipCompleted bool   `toml:"skip_completed"`
	Timeout       int    `toml:"timeout"`
}

// Paths contains state and log directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for crdl.
//
// Configuration sections by subsystem:
//   - Auth: account credentials (env fallback CRDL_USERNAME / CRDL_PASSWORD)
//   - API: product identity, timeouts, rate limiting and refresh policy
//   - Locale: display, audio and subtitle language tags
//   - Download: output layout and ffmpeg invocation
//   - Paths: state (history database) and log directories
//   - Logging: log format and level
type Config struct {
	Auth     Auth     `toml:"auth"`
	API      API      `toml:"api"`
	Locale   Locale   `toml:"locale"`
	Download Download `toml:"download"`
	Paths    Paths    `toml:"paths"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories. The download
// directory is created per run by the downloader.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// Identity returns the product identity handed to the API client.
func (c *Config) Identity() crunchyroll.Identity {
	return crunchyroll.Identity{
		BaseURL:        c.API.BaseURL,
		BasicAuth:      c.API.BasicAuth,
		UserAgent:      c.API.UserAgent,
		AcceptEncoding: c.API.AcceptEncoding,
	}
}

// ContentLocale returns the locale triple sent with content requests.
func (c *Config) ContentLocale() crunchyroll.Locale {
	return crunchyroll.Locale{
		Display:  c.Locale.Locale,
		Audio:    c.Locale.AudioLocale,
		Subtitle: c.Locale.SubtitleLocale,
	}
}

// RefreshPolicy returns the parsed token refresh policy. Validate has already
// rejected unknown values, so strict is only a fallback.
func (c *Config) RefreshPolicy() crunchyroll.RefreshPolicy {
	policy, err := crunchyroll.ParseRefreshPolicy(c.API.RefreshPolicy)
	if err != nil {
		return crunchyroll.RefreshStrict
	}
	return policy
}

// RequestTimeout converts api.request_timeout into a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.API.RequestTimeout) * time.Second
}

// DownloadTimeout converts download.timeout into a duration; zero means none.
func (c *Config) DownloadTimeout() time.Duration {
	if c.Download.Timeout <= 0 {
		return 0
	}
	return time.Duration(c.Download.Timeout) * time.Second
}

// HistoryPath returns the location of the download history database.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, historyFileName)
}

// LogFilePath returns the log file written next to console output.
func (c *Config) LogFilePath() string {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, logFileName)
}

// FFmpegBinary returns the ffmpeg executable name or path.
func (c *Config) FFmpegBinary() string {
	if bin := strings.TrimSpace(c.Download.FFmpegBinary); bin != "" {
		return bin
	}
	return defaultFFmpegBinary
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultStateDir() string {
	if base, ok := os.LookupEnv("XDG_STATE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "crdl")
	}
	return fallbackStateDir
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
