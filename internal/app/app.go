package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/steward-ai/xpulse/internal/metrics"
	"github.com/steward-ai/xpulse/internal/scraper"
	"github.com/steward-ai/xpulse/internal/store"
	"github.com/steward-ai/xpulse/internal/types"
)

// Scraper runs one search scrape
type Scraper interface {
	Scrape(ctx context.Context, req scraper.Request) scraper.Result
}

// PostStore persists scraped posts
type PostStore interface {
	InsertPosts(ctx context.Context, posts []types.ScrapedPost) (int, error)
	Trending(ctx context.Context, platform string, since time.Time, limit int) ([]store.TrendingPost, error)
	CountPosts(ctx context.Context) (int, error)
}

// Report is the outcome of a scrape whose posts were stored
type Report struct {
	Result   scraper.Result
	Inserted int
}

// App ties the scraper to the store and records metrics around every run.
type App struct {
	scraper Scraper
	store   PostStore
	metrics *metrics.Metrics
	log     zerolog.Logger
	now     func() time.Time
}

// New creates a new App instance.
func New(sc Scraper, st PostStore, m *metrics.Metrics, log zerolog.Logger) *App {
	return &App{
		scraper: sc,
		store:   st,
		metrics: m,
		log:     log.With().Str("component", "app").Logger(),
		now:     time.Now,
	}
}

// Scrape runs a scrape without storing its posts.
func (a *App) Scrape(ctx context.Context, req scraper.Request) scraper.Result {
	res := a.scraper.Scrape(ctx, req)

	reason := "ok"
	if res.Failed() {
		reason = string(res.Reason)
	}
	a.metrics.RecordScrape(reason, len(res.Posts), res.Duration)
	return res
}

// ScrapeAndStore scrapes and stores the posts it finds. The error is only
// non-nil when storing fails; scrape failures are reported in the Result.
func (a *App) ScrapeAndStore(ctx context.Context, req scraper.Request) (Report, error) {
	res := a.Scrape(ctx, req)
	report := Report{Result: res}
	if res.Failed() || len(res.Posts) == 0 {
		return report, nil
	}

	n, err := a.store.InsertPosts(ctx, res.Posts)
	if err != nil {
		return report, fmt.Errorf("failed to store posts: %w", err)
	}
	a.metrics.RecordInserted(n)
	report.Inserted = n

	a.log.Info().
		Str("run_id", res.RunID).
		Str("keyword", res.Keyword).
		Int("scraped", len(res.Posts)).
		Int("inserted", n).
		Msg("posts stored")
	return report, nil
}

// ScrapeKeywords scrapes and stores each keyword in turn. It keeps going
// after a failed keyword and returns the joined failures.
func (a *App) ScrapeKeywords(ctx context.Context, keywords []string, maxItems int) error {
	var errs []error
	for _, kw := range keywords {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		report, err := a.ScrapeAndStore(ctx, scraper.Request{Keyword: kw, MaxItems: maxItems})
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("keyword %q: %w", kw, err))
		case report.Result.Failed():
			errs = append(errs, fmt.Errorf("keyword %q: %s: %w", kw, report.Result.Reason, report.Result.Err))
		}
	}
	return errors.Join(errs...)
}

// Trending returns today's most popular stored X posts, today starting at local midnight.
func (a *App) Trending(ctx context.Context, limit int) ([]store.TrendingPost, error) {
	return a.store.Trending(ctx, types.PlatformX, startOfDay(a.now()), limit)
}

// PostCount returns the number of stored posts
func (a *App) PostCount(ctx context.Context) (int, error) {
	return a.store.CountPosts(ctx)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
