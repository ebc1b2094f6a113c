package config

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/language"

	"crdl/internal/crunchyroll"
)

func (c *Config) normalize() error {
	c.normalizeAuth()
	c.normalizeAPI()
	c.normalizeLocale()
	if err := c.normalizeDownload(); err != nil {
		return err
	}
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeAuth() {
	c.Auth.Username = strings.TrimSpace(c.Auth.Username)
	if c.Auth.Username == "" {
		if value, ok := os.LookupEnv(usernameEnv); ok {
			c.Auth.Username = strings.TrimSpace(value)
		}
	}
	if c.Auth.Password == "" {
		if value, ok := os.LookupEnv(passwordEnv); ok {
			c.Auth.Password = value
		}
	}
}

func (c *Config) normalizeAPI() {
	identity := crunchyroll.DefaultIdentity()
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if c.API.BaseURL == "" {
		c.API.BaseURL = identity.BaseURL
	}
	c.API.BasicAuth = strings.TrimSpace(c.API.BasicAuth)
	if c.API.BasicAuth == "" {
		c.API.BasicAuth = identity.BasicAuth
	}
	c.API.UserAgent = strings.TrimSpace(c.API.UserAgent)
	if c.API.UserAgent == "" {
		c.API.UserAgent = identity.UserAgent
	}
	c.API.AcceptEncoding = strings.TrimSpace(c.API.AcceptEncoding)
	if c.API.AcceptEncoding == "" {
		c.API.AcceptEncoding = identity.AcceptEncoding
	}
	if c.API.RequestTimeout <= 0 {
		c.API.RequestTimeout = defaultRequestTimeout
	}
	if c.API.MaxInFlight <= 0 {
		c.API.MaxInFlight = defaultMaxInFlight
	}
	c.API.RefreshPolicy = strings.ToLower(strings.TrimSpace(c.API.RefreshPolicy))
	if c.API.RefreshPolicy == "" {
		c.API.RefreshPolicy = defaultRefreshPolicy
	}
}

func (c *Config) normalizeLocale() {
	c.Locale.Locale = canonicalTag(c.Locale.Locale, defaultDisplayLocale)
	c.Locale.AudioLocale = canonicalTag(c.Locale.AudioLocale, defaultAudioLocale)
	c.Locale.SubtitleLocale = canonicalTag(c.Locale.SubtitleLocale, crunchyroll.DefaultSubtitleLocale)
}

// canonicalTag rewrites a BCP 47 tag into its canonical casing (ja-jp becomes
// ja-JP). Unparseable values are kept so Validate can report them.
func canonicalTag(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	tag, err := language.Parse(trimmed)
	if err != nil {
		return trimmed
	}
	return tag.String()
}

func (c *Config) normalizeDownload() error {
	var err error
	if strings.TrimSpace(c.Download.BaseDir) == "" {
		c.Download.BaseDir = defaultBaseDir
	}
	if c.Download.BaseDir, err = expandPath(c.Download.BaseDir); err != nil {
		return fmt.Errorf("download.base_dir: %w", err)
	}
	if strings.TrimSpace(c.Download.Directory) != "" {
		if c.Download.Directory, err = expandPath(strings.TrimSpace(c.Download.Directory)); err != nil {
			return fmt.Errorf("download.directory: %w", err)
		}
	} else {
		c.Download.Directory = ""
	}
	c.Download.FFmpegBinary = strings.TrimSpace(c.Download.FFmpegBinary)
	if c.Download.FFmpegBinary == "" {
		c.Download.FFmpegBinary = defaultFFmpegBinary
	}
	if c.Download.Timeout < 0 {
		c.Download.Timeout = 0
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir()
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
