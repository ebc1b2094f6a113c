package config

// Overrides carries command-line values that take precedence over the file.
// Empty strings and nil pointers leave the loaded value untouched.
type Overrides struct {
	Username       string
	Password       string
	Directory      string
	Locale         string
	AudioLocale    string
	SubtitleLocale string
	MaxInFlight    int
	Overwrite      *bool
	// Verbose forces debug logging.
	Verbose bool
}

// ApplyOverrides merges flag values into the config, then normalizes and
// validates the result again.
func (c *Config) ApplyOverrides(o Overrides) error {
	setIfPresent(&c.Auth.Username, o.Username)
	setIfPresent(&c.Auth.Password, o.Password)
	setIfPresent(&c.Download.Directory, o.Directory)
	setIfPresent(&c.Locale.Locale, o.Locale)
	setIfPresent(&c.Locale.AudioLocale, o.AudioLocale)
	setIfPresent(&c.Locale.SubtitleLocale, o.SubtitleLocale)
	if o.MaxInFlight != 0 {
		c.API.MaxInFlight = o.MaxInFlight
	}
	if o.Overwrite != nil {
		c.Download.Overwrite = *o.Overwrite
	}
	if o.Verbose {
		c.Logging.Level = "debug"
	}
	if err := c.normalize(); err != nil {
		return err
	}
	return c.Validate()
}

func setIfPresent(target *string, value string) {
	if value != "" {
		*target = value
	}
}
