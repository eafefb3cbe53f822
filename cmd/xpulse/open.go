package main

import (
	"fmt"
	"path/filepath"

	"github.com/chromedp/chromedp"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	browseropts "github.com/steward-ai/xpulse/internal/browser"
)

func (c *cli) openCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "open <config|session|data>",
		Short:     "Open the config file, session snapshot or database directory",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"config", "session", "data"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			switch args[0] {
			case "config":
				path = c.cfgPath
			case "session":
				path = c.cfg.Scraping.SessionPath
			case "data":
				path = filepath.Dir(c.cfg.Store.DBPath)
			default:
				return fmt.Errorf("unknown target: %s", args[0])
			}

			abs, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("failed to get path: %w", err)
			}
			if err := browser.OpenFile(abs); err != nil {
				return fmt.Errorf("failed to open %s: %w", abs, err)
			}
			return nil
		},
	}
}

// botTestCmd opens bot.sannysoft.com with the scraper's stealth options so
// the browser fingerprint can be audited by eye.
func (c *cli) botTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bot-test",
		Short: "Open bot.sannysoft.com in the stealth browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := browseropts.Options(false, c.cfg.Scraping.UserAgent)

			allocCtx, cancel := chromedp.NewExecAllocator(cmd.Context(), opts...)
			defer cancel()

			ctx, cancel := chromedp.NewContext(allocCtx)
			defer cancel()

			err := chromedp.Run(ctx,
				chromedp.Navigate("https://bot.sannysoft.com"),
				chromedp.WaitVisible("body", chromedp.ByQuery),
			)
			if err != nil {
				return fmt.Errorf("failed to navigate: %w", err)
			}

			c.log.Info().Msg("close the browser window or press Ctrl+C when done inspecting")
			<-ctx.Done()
			return nil
		},
	}
}
