package config

import "crdl/internal/crunchyroll"

const (
	defaultConfigPath        = "~/.config/crdl/config.toml"
	projectConfigName        = "crdl.toml"
	fallbackStateDir         = "~/.local/state/crdl"
	defaultLogDir            = "~/.local/state/crdl/logs"
	defaultBaseDir           = "."
	defaultFFmpegBinary      = "ffmpeg"
	defaultRequestTimeout    = 30
	defaultMaxInFlight       = 1
	defaultRefreshPolicy     = "strict"
	defaultDisplayLocale     = "en-US"
	defaultAudioLocale       = "ja-JP"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	historyFileName          = "history.db"
	logFileName              = "crdl.log"
	usernameEnv              = "CRDL_USERNAME"
	passwordEnv              = "CRDL_PASSWORD"
	maxRequestsPerSecond     = 50
	maxInFlightLimit         = 16
	defaultSkipCompleted     = true
	defaultOverwriteExisting = false
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	identity := crunchyroll.DefaultIdentity()
	return Config{
		API: API{
			BaseURL:        identity.BaseURL,
			BasicAuth:      identity.BasicAuth,
			UserAgent:      identity.UserAgent,
			AcceptEncoding: identity.AcceptEncoding,
			RequestTimeout: defaultRequestTimeout,
			MaxInFlight:    defaultMaxInFlight,
			RefreshPolicy:  defaultRefreshPolicy,
		},
		Locale: Locale{
			Locale:         defaultDisplayLocale,
			AudioLocale:    defaultAudioLocale,
			SubtitleLocale: crunchyroll.DefaultSubtitleLocale,
		},
		Download: Download{
			BaseDir:       defaultBaseDir,
			FFmpegBinary:  defaultFFmpegBinary,
			Overwrite:     defaultOverwriteExisting,
			SkipCompleted: defaultSkipCompleted,
		},
		Paths: Paths{
			StateDir: defaultStateDir(),
			LogDir:   defaultLogDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
