package main

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/steward-ai/xpulse/internal/app"
	"github.com/steward-ai/xpulse/internal/metrics"
	"github.com/steward-ai/xpulse/internal/scheduler"
	"github.com/steward-ai/xpulse/internal/server"
	"github.com/steward-ai/xpulse/internal/store"
)

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scrape schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.serve(cmd.Context())
		},
	}
}

func (c *cli) serve(ctx context.Context) error {
	st, err := store.New(c.cfg.Store.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	a := app.New(c.newScraper(), st, m, c.log)

	gin.SetMode(gin.ReleaseMode)
	handler, err := server.NewHandler(a, server.Limits{
		DefaultKeyword:  c.cfg.Server.DefaultKeyword,
		DefaultMaxItems: c.cfg.Scraping.DefaultMaxItems,
		MaxItemsLimit:   c.cfg.Scraping.MaxItemsLimit,
	})
	if err != nil {
		return err
	}
	srv := server.New(c.cfg.Server.ListenAddr, server.NewRouter(handler, m.Handler(), c.log), c.log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })

	if sc := c.cfg.Schedule; sc.Enabled {
		sched, err := scheduler.New(sc.Timezone, c.log)
		if err != nil {
			return err
		}
		err = sched.AddScrapeJob(sc.IntervalHours, func(ctx context.Context) error {
			return a.ScrapeKeywords(ctx, sc.Keywords, sc.MaxItems)
		})
		if err != nil {
			return err
		}

		g.Go(func() error {
			sched.Start(ctx)
			<-ctx.Done()
			<-sched.Stop().Done()
			return nil
		})
	}

	return g.Wait()
}
