package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/language"

	"crdl/internal/crunchyroll"
)

// Validate ensures the configuration is usable. Credentials are not required
// here because the CLI accepts them as flags.
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateLocale(); err != nil {
		return err
	}
	if err := c.validateDownload(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

// ValidateCredentials reports whether a username and password are available.
func (c *Config) ValidateCredentials() error {
	if strings.TrimSpace(c.Auth.Username) == "" || c.Auth.Password == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("auth.username and auth.password are required. Pass --user/--password, set %s/%s, or edit %s (create with 'crdl config init')", usernameEnv, passwordEnv, defaultPath)
	}
	return nil
}

func (c *Config) validateAPI() error {
	parsed, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("api.base_url must use http or https, got %q", c.API.BaseURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("api.base_url must include a host, got %q", c.API.BaseURL)
	}
	if strings.TrimSpace(c.API.BasicAuth) == "" {
		return errors.New("api.basic_auth must be set")
	}
	if strings.TrimSpace(c.API.UserAgent) == "" {
		return errors.New("api.user_agent must be set")
	}
	if err := ensurePositiveMap(map[string]int{
		"api.request_timeout": c.API.RequestTimeout,
		"api.max_in_flight":   c.API.MaxInFlight,
	}); err != nil {
		return err
	}
	if c.API.MaxInFlight > maxInFlightLimit {
		return fmt.Errorf("api.max_in_flight must be at most %d", maxInFlightLimit)
	}
	if c.API.RequestsPerSecond < 0 || c.API.RequestsPerSecond > maxRequestsPerSecond {
		return fmt.Errorf("api.requests_per_second must be between 0 and %d", maxRequestsPerSecond)
	}
	if _, err := crunchyroll.ParseRefreshPolicy(c.API.RefreshPolicy); err != nil {
		return fmt.Errorf("api.refresh_policy: %w (expected strict or permissive)", err)
	}
	return nil
}

func (c *Config) validateLocale() error {
	for key, value := range map[string]string{
		"locale.locale":          c.Locale.Locale,
		"locale.audio_locale":    c.Locale.AudioLocale,
		"locale.subtitle_locale": c.Locale.SubtitleLocale,
	} {
		if _, err := language.Parse(value); err != nil {
			return fmt.Errorf("%s: invalid language tag %q: %w", key, value, err)
		}
	}
	return nil
}

func (c *Config) validateDownload() error {
	if strings.TrimSpace(c.Download.BaseDir) == "" {
		return errors.New("download.base_dir must be set")
	}
	if strings.TrimSpace(c.Download.FFmpegBinary) == "" {
		return errors.New("download.ffmpeg_binary must be set")
	}
	if c.Download.Timeout < 0 {
		return errors.New("download.timeout must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
