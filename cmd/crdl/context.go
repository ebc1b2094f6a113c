package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"crdl/internal/config"
	"crdl/internal/crunchyroll"
	"crdl/internal/logging"
)

type globalFlags struct {
	config         string
	username       string
	password       string
	locale         string
	audioLocale    string
	subtitleLocale string
	verbose        bool
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		err = cfg.ApplyOverrides(config.Overrides{
			Username:       c.flags.username,
			Password:       c.flags.password,
			Locale:         c.flags.locale,
			AudioLocale:    c.flags.audioLocale,
			SubtitleLocale: c.flags.subtitleLocale,
			Verbose:        c.flags.verbose,
		})
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// logger builds the run logger; console output goes to the command's stderr.
func (c *commandContext) logger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	return logging.NewFromConfig(cfg, cmd.ErrOrStderr())
}

func newAPIClient(cfg *config.Config, logger *slog.Logger) (*crunchyroll.Client, error) {
	return crunchyroll.New(cfg.Identity(),
		crunchyroll.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout()}),
		crunchyroll.WithLogger(logging.NewComponentLogger(logger, "crunchyroll")),
		crunchyroll.WithRateLimit(cfg.API.RequestsPerSecond, cfg.API.MaxInFlight),
		crunchyroll.WithRefreshPolicy(cfg.RefreshPolicy()),
	)
}

// session is an authenticated client plus the config and logger it was built from.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	client *crunchyroll.Client
}

func (c *commandContext) login(ctx context.Context, cmd *cobra.Command) (*session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateCredentials(); err != nil {
		return nil, err
	}
	logger, err := c.logger(cmd, cfg)
	if err != nil {
		return nil, err
	}
	client, err := newAPIClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build api client: %w", err)
	}
	token, err := client.Login(ctx, cfg.Auth.Username, cfg.Auth.Password)
	if err != nil {
		return nil, err
	}
	logger.Debug("logged in",
		logging.String("account_id", token.AccountID),
		logging.String("country", token.Country),
		logging.Duration("lifetime", token.Lifetime),
	)
	return &session{cfg: cfg, logger: logger, client: client}, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
