package main

import (
	"fmt"
	"io"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/steward-ai/xpulse/internal/auth"
	"github.com/steward-ai/xpulse/internal/browser"
	"github.com/steward-ai/xpulse/internal/config"
	"github.com/steward-ai/xpulse/internal/logging"
	"github.com/steward-ai/xpulse/internal/scraper"
)

// cli holds state shared by all subcommands, filled in before any of them runs
type cli struct {
	cfgPath  string
	logLevel string

	cfg *config.Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "xpulse",
		Short:         "Scrape X.com search results and track trending posts",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVar(&c.cfgPath, "config", "", "config file (default is the user config dir's xpulse/config.toml)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		c.serveCmd(),
		c.scrapeCmd(),
		c.loginCmd(),
		c.openCmd(),
		c.botTestCmd(),
	)
	return root
}

// init loads .env, the config file and env overrides, then builds the logger
func (c *cli) init(stderr io.Writer) error {
	// A missing .env is fine
	_ = godotenv.Load()

	path := c.cfgPath
	if path == "" {
		var err error
		if path, err = config.ConfigPath(); err != nil {
			return fmt.Errorf("failed to resolve config path: %w", err)
		}
	}

	cfg, created, err := config.LoadOrCreate(path)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, stderr)
	if err != nil {
		return err
	}
	if created {
		log.Info().Str("path", path).Msg("created default config")
	}

	c.cfgPath = path
	c.cfg = cfg
	c.log = log
	return nil
}

func (c *cli) newScraper() *scraper.Scraper {
	s := c.cfg.Scraping
	launcher := browser.NewChrome(browser.Options(s.Headless, s.UserAgent))

	return scraper.New(launcher, scraper.SettingsFromConfig(s),
		scraper.WithSession(auth.NewSnapshotFile(s.SessionPath)),
		scraper.WithLogger(c.log),
	)
}
