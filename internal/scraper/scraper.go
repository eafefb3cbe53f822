package scraper

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/steward-ai/xpulse/internal/auth"
	"github.com/steward-ai/xpulse/internal/browser"
	"github.com/steward-ai/xpulse/internal/config"
	"github.com/steward-ai/xpulse/internal/types"
)

// SessionSource supplies the saved login state for each scrape
type SessionSource interface {
	Load() (*auth.StorageState, error)
}

// Settings tunes the scroll-and-collect loop
type Settings struct {
	BaseURL           string
	MaxScrolls        int
	DefaultMaxItems   int
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
	MinScrollDelay    time.Duration
	MaxScrollDelay    time.Duration
	ScrollFraction    float64
}

// SettingsFromConfig builds Settings from the [scraping] config section
func SettingsFromConfig(cfg config.ScrapingConfig) Settings {
	lo, hi := cfg.ScrollDelay()
	return Settings{
		BaseURL:           cfg.BaseURL,
		MaxScrolls:        cfg.MaxScrolls,
		DefaultMaxItems:   cfg.DefaultMaxItems,
		NavigationTimeout: cfg.NavigationTimeout(),
		SettleDelay:       cfg.SettleDelay(),
		MinScrollDelay:    lo,
		MaxScrollDelay:    hi,
		ScrollFraction:    cfg.ScrollFraction,
	}
}

// Scraper collects posts from X.com search results
type Scraper struct {
	launcher browser.Launcher
	session  SessionSource
	settings Settings
	log      zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	delay func() time.Duration
}

// Option customizes a Scraper
type Option func(*Scraper)

// WithSession seeds every scrape with the state loaded from src
func WithSession(src SessionSource) Option {
	return func(s *Scraper) { s.session = src }
}

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) Option {
	return func(s *Scraper) { s.log = log.With().Str("component", "scraper").Logger() }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Scraper) { s.now = now }
}

// WithSleep replaces the context-aware sleep used for the settle and scroll delays
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scraper) { s.sleep = sleep }
}

// New creates a new scraper
func New(launcher browser.Launcher, settings Settings, opts ...Option) *Scraper {
	s := &Scraper{
		launcher: launcher,
		settings: settings,
		log:      zerolog.Nop(),
		now:      time.Now,
		sleep:    sleepCtx,
	}
	s.delay = s.randomDelay
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SearchURL returns the "latest" search results URL for keyword
func SearchURL(baseURL, keyword string) string {
	return strings.TrimRight(baseURL, "/") + "/search?q=" + url.QueryEscape(keyword) + "&src=typed_query&f=live"
}

// Scrape collects up to req.MaxItems distinct posts for req.Keyword.
// It never panics and never leaves the browser running: every failure is
// reported through the Result, and the page and browser are closed on every path.
func (s *Scraper) Scrape(ctx context.Context, req Request) (res Result) {
	if req.MaxItems <= 0 {
		req.MaxItems = s.settings.DefaultMaxItems
	}

	res = Result{RunID: uuid.NewString(), Keyword: req.Keyword, MaxItems: req.MaxItems}
	log := s.log.With().Str("run_id", res.RunID).Str("keyword", req.Keyword).Logger()
	start := s.now()

	// Registered first so it runs after the page and browser are closed
	defer func() {
		if r := recover(); r != nil {
			res = res.fail(ReasonPanic, fmt.Errorf("scrape panicked: %v", r))
		}
		res.Duration = s.now().Sub(start)
		logResult(log, res)
	}()

	log.Info().Int("max_items", req.MaxItems).Msg("scrape started")

	session := s.loadSession(log)

	b, err := s.launcher.Launch(ctx)
	if err != nil {
		return res.fail(classify(ctx, err, ReasonLaunch), fmt.Errorf("failed to launch browser: %w", err))
	}
	defer closeQuietly(log, "browser", b.Close)

	p, err := b.NewPage(ctx, session)
	if err != nil {
		return res.fail(classify(ctx, err, ReasonLaunch), fmt.Errorf("failed to open page: %w", err))
	}
	defer closeQuietly(log, "page", p.Close)

	searchURL := SearchURL(s.settings.BaseURL, req.Keyword)
	navCtx, cancel := context.WithTimeout(ctx, s.settings.NavigationTimeout)
	err = p.Navigate(navCtx, searchURL)
	cancel()
	if err != nil {
		return res.fail(classify(ctx, err, ReasonNavigation), fmt.Errorf("failed to load %s: %w", searchURL, err))
	}

	// Let client-side rendering finish before the first pass
	if err := s.sleep(ctx, s.settings.SettleDelay); err != nil {
		return res.fail(ReasonCanceled, err)
	}

	posts, scrolls, reason, err := s.collect(ctx, p, req, log)
	res.Scrolls = scrolls
	if err != nil {
		return res.fail(reason, err)
	}

	res.Posts = posts
	return res
}

// collect runs the scroll-and-collect loop until the cap or the scroll budget is reached
func (s *Scraper) collect(ctx context.Context, p browser.Page, req Request, log zerolog.Logger) ([]types.ScrapedPost, int, Reason, error) {
	acc := newAccumulator(req.MaxItems)
	scrolls := 0

	for pass := 1; pass <= s.settings.MaxScrolls; pass++ {
		if err := ctx.Err(); err != nil {
			return nil, scrolls, ReasonCanceled, err
		}

		html, err := p.HTML(ctx)
		if err != nil {
			return nil, scrolls, classify(ctx, err, ReasonBrowser), fmt.Errorf("failed to read page: %w", err)
		}

		now := s.now()
		added := 0
		for _, raw := range ExtractPosts(html) {
			if post, ok := Normalize(raw, req.Keyword, s.settings.BaseURL, now); ok && acc.add(post) {
				added++
			}
		}
		log.Debug().Int("pass", pass).Int("added", added).Int("total", acc.size()).Msg("extraction pass")

		if acc.full() || pass == s.settings.MaxScrolls {
			break
		}

		if err := p.ScrollBy(ctx, s.settings.ScrollFraction); err != nil {
			return nil, scrolls, classify(ctx, err, ReasonBrowser), fmt.Errorf("failed to scroll: %w", err)
		}
		scrolls++

		if err := s.sleep(ctx, s.delay()); err != nil {
			return nil, scrolls, ReasonCanceled, err
		}
	}

	return acc.posts(), scrolls, ReasonNone, nil
}

// loadSession returns the saved login state, or nil to scrape unauthenticated
func (s *Scraper) loadSession(log zerolog.Logger) *auth.StorageState {
	if s.session == nil {
		return nil
	}

	state, err := s.session.Load()
	if err != nil {
		log.Warn().Err(err).Msg("session snapshot unavailable, scraping unauthenticated")
		return nil
	}
	if !state.Authenticated(s.now()) {
		log.Warn().Msg("session snapshot has no valid auth cookies, results may be limited")
	}
	return state
}

// randomDelay picks a wait in [MinScrollDelay, MaxScrollDelay)
func (s *Scraper) randomDelay() time.Duration {
	lo, hi := s.settings.MinScrollDelay, s.settings.MaxScrollDelay
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}

func (r Result) fail(reason Reason, err error) Result {
	r.Posts = nil
	r.Reason = reason
	r.Err = err
	return r
}

// classify maps a browser error to a Reason. Cancellation of the caller's
// context wins over everything; an expired inner deadline is a timeout.
func classify(ctx context.Context, err error, fallback Reason) Reason {
	switch {
	case ctx.Err() != nil:
		return ReasonCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	default:
		return fallback
	}
}

// closeQuietly runs a close func, logging instead of returning its error or panic
func closeQuietly(log zerolog.Logger, what string, closeFn func() error) {
	if err := safeClose(closeFn); err != nil {
		log.Warn().Err(err).Str("resource", what).Msg("close failed")
	}
}

func safeClose(closeFn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("close panicked: %v", r)
		}
	}()
	return closeFn()
}

func logResult(log zerolog.Logger, res Result) {
	ev := log.Info()
	if res.Failed() {
		ev = log.Error().Err(res.Err)
	}
	ev.Str("outcome", res.Outcome()).
		Int("posts", len(res.Posts)).
		Int("scrolls", res.Scrolls).
		Dur("duration", res.Duration).
		Msg("scrape finished")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// accumulator keeps the first post seen per id, in insertion order, up to a cap
type accumulator struct {
	limit int
	seen  map[string]struct{}
	list  []types.ScrapedPost
}

func newAccumulator(limit int) *accumulator {
	return &accumulator{limit: limit, seen: make(map[string]struct{})}
}

// add inserts p unless its id is known or the cap is reached
func (a *accumulator) add(p types.ScrapedPost) bool {
	if a.full() {
		return false
	}
	if _, ok := a.seen[p.PostID]; ok {
		return false
	}
	a.seen[p.PostID] = struct{}{}
	a.list = append(a.list, p)
	return true
}

func (a *accumulator) full() bool { return len(a.list) >= a.limit }

func (a *accumulator) size() int { return len(a.list) }

func (a *accumulator) posts() []types.ScrapedPost {
	if a.list == nil {
		return []types.ScrapedPost{}
	}
	return a.list
}
