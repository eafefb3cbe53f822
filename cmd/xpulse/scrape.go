package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/steward-ai/xpulse/internal/app"
	"github.com/steward-ai/xpulse/internal/metrics"
	"github.com/steward-ai/xpulse/internal/scraper"
	"github.com/steward-ai/xpulse/internal/store"
)

func (c *cli) scrapeCmd() *cobra.Command {
	var (
		maxItems  int
		save      bool
		exportDir string
	)

	cmd := &cobra.Command{
		Use:   "scrape <keyword>...",
		Short: "Scrape one search and print the posts as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxItems < 0 || maxItems > c.cfg.Scraping.MaxItemsLimit {
				return fmt.Errorf("--max must be between 1 and %d", c.cfg.Scraping.MaxItemsLimit)
			}
			req := scraper.Request{Keyword: strings.Join(args, " "), MaxItems: maxItems}

			res, err := c.scrape(cmd.Context(), req, save)
			if err != nil {
				return err
			}

			if exportDir != "" {
				path, err := store.ExportPosts(exportDir, time.Now(), res.Posts)
				if err != nil {
					return fmt.Errorf("failed to export posts: %w", err)
				}
				c.log.Info().Str("path", path).Msg("exported posts")
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res.Posts)
		},
	}

	cmd.Flags().IntVar(&maxItems, "max", 0, "maximum posts to collect (default from config)")
	cmd.Flags().BoolVar(&save, "save", false, "store the posts in the database")
	cmd.Flags().StringVar(&exportDir, "export", "", "also write the posts to a timestamped JSON file in this directory")
	return cmd
}

func (c *cli) scrape(ctx context.Context, req scraper.Request, save bool) (scraper.Result, error) {
	m := metrics.New(prometheus.NewRegistry())

	if !save {
		res := app.New(c.newScraper(), nil, m, c.log).Scrape(ctx, req)
		return res, scrapeError(res)
	}

	st, err := store.New(c.cfg.Store.DBPath)
	if err != nil {
		return scraper.Result{}, err
	}
	defer st.Close()

	report, err := app.New(c.newScraper(), st, m, c.log).ScrapeAndStore(ctx, req)
	if err != nil {
		return report.Result, err
	}
	if err := scrapeError(report.Result); err != nil {
		return report.Result, err
	}

	c.log.Info().Int("inserted", report.Inserted).Str("db", c.cfg.Store.DBPath).Msg("saved posts")
	return report.Result, nil
}

func scrapeError(res scraper.Result) error {
	if !res.Failed() {
		return nil
	}
	return fmt.Errorf("scrape failed (%s): %w", res.Reason, res.Err)
}
