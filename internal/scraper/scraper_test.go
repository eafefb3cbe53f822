package scraper

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steward-ai/xpulse/internal/auth"
	"github.com/steward-ai/xpulse/internal/browser"
)

type fakePage struct {
	pages       []string // HTML per extraction pass; the last one repeats
	navErr      error
	navBlock    bool
	htmlErr     error
	scrollErr   error
	panicOnHTML bool
	closeErr    error

	navURL    string
	htmlCalls int
	fractions []float64
	closes    int
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.navURL = url
	if p.navBlock {
		<-ctx.Done()
		return ctx.Err()
	}
	return p.navErr
}

func (p *fakePage) HTML(_ context.Context) (string, error) {
	if p.panicOnHTML {
		panic("renderer crashed")
	}
	if p.htmlErr != nil {
		return "", p.htmlErr
	}
	if len(p.pages) == 0 {
		return "", nil
	}
	html := p.pages[min(p.htmlCalls, len(p.pages)-1)]
	p.htmlCalls++
	return html, nil
}

func (p *fakePage) ScrollBy(_ context.Context, fraction float64) error {
	p.fractions = append(p.fractions, fraction)
	return p.scrollErr
}

func (p *fakePage) Close() error {
	p.closes++
	return p.closeErr
}

type fakeBrowser struct {
	page     *fakePage
	pageErr  error
	closeErr error

	session *auth.StorageState
	closes  int
}

func (b *fakeBrowser) NewPage(_ context.Context, session *auth.StorageState) (browser.Page, error) {
	b.session = session
	if b.pageErr != nil {
		return nil, b.pageErr
	}
	return b.page, nil
}

func (b *fakeBrowser) Close() error {
	b.closes++
	return b.closeErr
}

type fakeLauncher struct {
	browser *fakeBrowser
	err     error
}

func (l *fakeLauncher) Launch(_ context.Context) (browser.Browser, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.browser, nil
}

type sessionFunc func() (*auth.StorageState, error)

func (f sessionFunc) Load() (*auth.StorageState, error) { return f() }

func article(handle, id, text string) string {
	return fmt.Sprintf(`<article><div dir="ltr"><span>%s</span></div><a href="/%s/status/%s">now</a><div dir="auto">%s</div></article>`,
		strings.ToUpper(handle), handle, id, text)
}

func page(articles ...string) string {
	return "<html><body>" + strings.Join(articles, "") + "</body></html>"
}

func testSettings() Settings {
	return Settings{
		BaseURL:           testBaseURL,
		MaxScrolls:        10,
		DefaultMaxItems:   30,
		NavigationTimeout: time.Minute,
		SettleDelay:       3 * time.Second,
		MinScrollDelay:    2 * time.Second,
		MaxScrollDelay:    5 * time.Second,
		ScrollFraction:    0.8,
	}
}

type harness struct {
	page     *fakePage
	browser  *fakeBrowser
	launcher *fakeLauncher
	sleeps   []time.Duration
}

func newHarness(p *fakePage) *harness {
	b := &fakeBrowser{page: p}
	return &harness{page: p, browser: b, launcher: &fakeLauncher{browser: b}}
}

func (h *harness) scraper(settings Settings, opts ...Option) *Scraper {
	sleep := func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err()
	}
	return New(h.launcher, settings, append([]Option{WithSleep(sleep)}, opts...)...)
}

func (h *harness) assertClosedOnce(t *testing.T) {
	t.Helper()
	assert.Equal(t, 1, h.page.closes, "page closes")
	assert.Equal(t, 1, h.browser.closes, "browser closes")
}

func TestScrapeStopsAtCapWithoutScrolling(t *testing.T) {
	var articles []string
	for i := 1; i <= 5; i++ {
		articles = append(articles, article("user"+strconv.Itoa(i), strconv.Itoa(i), "post"))
	}
	h := newHarness(&fakePage{pages: []string{page(articles...)}})

	res := h.scraper(testSettings()).Scrape(context.Background(), Request{Keyword: "golang", MaxItems: 3})

	require.False(t, res.Failed(), "%v", res.Err)
	require.Len(t, res.Posts, 3)
	assert.Equal(t, []string{"1", "2", "3"}, postIDs(res))
	assert.True(t, res.Complete())
	assert.Equal(t, "complete", res.Outcome())
	assert.Equal(t, 0, res.Scrolls)
	assert.Empty(t, h.page.fractions)
	assert.Equal(t, 1, h.page.htmlCalls)
	assert.Equal(t, []time.Duration{3 * time.Second}, h.sleeps, "only the settle delay")
	assert.Equal(t, "https://x.com/search?q=golang&src=typed_query&f=live", h.page.navURL)
	assert.NotEmpty(t, res.RunID)
	h.assertClosedOnce(t)
}

func TestScrapeDeduplicatesAcrossPasses(t *testing.T) {
	h := newHarness(&fakePage{pages: []string{
		page(article("a", "1", "first"), article("b", "2", "original")),
		page(article("b", "2", "edited"), article("c", "3", "third"), article("c", "3", "again")),
		page(article("c", "3", "third"), article("d", "4", "fourth")),
	}})
	settings := testSettings()
	settings.MaxScrolls = 3

	res := h.scraper(settings).Scrape(context.Background(), Request{Keyword: "k", MaxItems: 10})

	require.False(t, res.Failed(), "%v", res.Err)
	assert.Equal(t, []string{"1", "2", "3", "4"}, postIDs(res))
	assert.Equal(t, "original", res.Posts[1].Content, "first-seen wins")
	assert.Equal(t, "B", res.Posts[1].Author)
	assert.Equal(t, "https://x.com/b/status/2", res.Posts[1].URL)
	assert.Equal(t, "partial", res.Outcome())

	assert.Equal(t, 2, res.Scrolls)
	assert.Equal(t, []float64{0.8, 0.8}, h.page.fractions)
	require.Len(t, h.sleeps, 3)
	for _, d := range h.sleeps[1:] {
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.Less(t, d, 5*time.Second)
	}
	h.assertClosedOnce(t)
}

func TestScrapeNeverExceedsCap(t *testing.T) {
	for limit := 1; limit <= 12; limit++ {
		t.Run(strconv.Itoa(limit), func(t *testing.T) {
			// Each pass exposes five new posts
			var pages []string
			for pass := 0; pass < 10; pass++ {
				var articles []string
				for i := 0; i < 5; i++ {
					id := strconv.Itoa(pass*5 + i + 1)
					articles = append(articles, article("u"+id, id, "x"))
				}
				pages = append(pages, page(articles...))
			}
			h := newHarness(&fakePage{pages: pages})

			res := h.scraper(testSettings()).Scrape(context.Background(), Request{Keyword: "k", MaxItems: limit})

			assert.Len(t, res.Posts, limit)
			assert.Equal(t, (limit-1)/5, res.Scrolls)
		})
	}
}

func TestScrapeBudgetExhaustedReturnsPartial(t *testing.T) {
	h := newHarness(&fakePage{pages: []string{page(article("a", "1", "x"), article("b", "2", "y"))}})

	res := h.scraper(testSettings()).Scrape(context.Background(), Request{Keyword: "k", MaxItems: 30})

	require.False(t, res.Failed(), "%v", res.Err)
	assert.Len(t, res.Posts, 2)
	assert.False(t, res.Complete())
	assert.Equal(t, 10, h.page.htmlCalls, "one extraction pass per budgeted iteration")
	assert.Equal(t, 9, res.Scrolls, "no scroll after the final pass")
	h.assertClosedOnce(t)
}

func TestScrapeDefaultsMaxItems(t *testing.T) {
	var articles []string
	for i := 1; i <= 40; i++ {
		articles = append(articles, article("u", strconv.Itoa(i), "x"))
	}
	h := newHarness(&fakePage{pages: []string{page(articles...)}})

	res := h.scraper(testSettings()).Scrape(context.Background(), Request{Keyword: "k"})

	assert.Equal(t, 30, res.MaxItems)
	assert.Len(t, res.Posts, 30)
}

func TestScrapeEmptyPageIsNoMatches(t *testing.T) {
	h := newHarness(&fakePage{pages: []string{page()}})

	res := h.scraper(testSettings()).Scrape(context.Background(), Request{Keyword: "nothing", MaxItems: 5})

	assert.False(t, res.Failed())
	assert.True(t, res.NoMatches())
	assert.Equal(t, "no_matches", res.Outcome())
	assert.NotNil(t, res.Posts)
	assert.Empty(t, res.Posts)
	h.assertClosedOnce(t)
}

func TestScrapeMalformedDOM(t *testing.T) {
	h := newHarness(&fakePage{pages: []string{`<article><<a href="/x/status/">`, "\x00\xff<article"}})

	res := h.scraper(testSettings()).Scrape(context.Background(), Request{Keyword: "k", MaxItems: 5})

	assert.False(t, res.Failed())
	assert.Empty(t, res.Posts)
	h.assertClosedOnce(t)
}

func TestScrapeNavigationFailureClosesResources(t *testing.T) {
	navErr := errors.New("net::ERR_NAME_NOT_RESOLVED")
	h := newHarness(&fakePage{navErr: navErr, pages: []string{page(article("a", "1", "x"))}})

	res := h.scraper(testSettings()).Scrape(context.Background(), Request{Keyword: "k", MaxItems: 5})

	assert.True(t, res.Failed())
	assert.Equal(t, ReasonNavigation, res.Reason)
	assert.ErrorIs(t, res.Err, navErr)
	assert.Empty(t, res.Posts)
	assert.Equal(t, 0, h.page.htmlCalls)
	h.assertClosedOnce(t)
}

func TestScrapeNavigationTimeout(t *testing.T) {
	h := newHarness(&fakePage{navBlock: true})
	settings := testSettings()
	settings.NavigationTimeout = 10 * time.Millisecond

	res := h.scraper(settings).Scrape(context.Background(), Request{Keyword: "k", MaxItems: 5})

	assert.Equal(t, ReasonTimeout, res.Reason)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Empty(t, res.Posts)
	h.assertClosedOnce(t)
}

func TestScrapeLaunchFailure(t *testing.T) {
	h := newHarness(&fakePage{})
	h.launcher.err = errors.New("chrome not found")

	res := h.scraper(testSettings()).Scrape(context.Background(), Request{Keyword: "k"})

	assert.Equal(t, ReasonLaunch, res.Reason)
	assert.Empty(t, res.Posts)
	assert.Equal(t, 0, h.browser.closes, "nothing was acquired")
}

func TestScrapePageOpenFailureClosesBrowser(t *testing.T) {
	h := newHarness(&fakePage{})
	h.browser.pageErr = errors.New("target crashed")

	res := h.scraper(testSettings()).Scrape(context.Background(), Request{Keyword: "k"})

	assert.Equal(t, ReasonLaunch, res.Reason)
	assert.Equal(t, 1, h.browser.closes)
	assert.Equal(t, 0, h.page.closes)
}

func TestScrapeBrowserFailureMidLoop(t *testing.T) {
	h := newHarness(&fakePage{pages: []string{page(article("a", "1", "x"))}, scrollErr: errors.New("session closed")})

	res := h.scraper(testSettings()).Scrape(context.Background(), Request{Keyword: "k", MaxItems: 5})

	assert.Equal(t, ReasonBrowser, res.Reason)
	assert.Empty(t, res.Posts, "failed scrapes carry no posts")
	h.assertClosedOnce(t)
}

func TestScrapeRecoversPanic(t *testing.T) {
	h := newHarness(&fakePage{panicOnHTML: true})

	var res Result
	require.NotPanics(t, func() {
		res = h.scraper(testSettings()).Scrape(context.Background(), Request{Keyword: "k"})
	})

	assert.Equal(t, ReasonPanic, res.Reason)
	assert.ErrorContains(t, res.Err, "renderer crashed")
	h.assertClosedOnce(t)
}

func TestScrapeSwallowsCloseErrors(t *testing.T) {
	h := newHarness(&fakePage{pages: []string{page(article("a", "1", "x"))}, closeErr: errors.New("already closed")})
	h.browser.closeErr = errors.New("process gone")

	res := h.scraper(testSettings()).Scrape(context.Background(), Request{Keyword: "k", MaxItems: 1})

	assert.False(t, res.Failed())
	assert.Len(t, res.Posts, 1)
	h.assertClosedOnce(t)
}

func TestScrapeCanceledAtIterationBoundary(t *testing.T) {
	h := newHarness(&fakePage{pages: []string{page(article("a", "1", "x"))}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	sleep := func(_ context.Context, _ time.Duration) error {
		calls++
		if calls == 2 {
			// Cancel during the first scroll delay without interrupting it
			cancel()
		}
		return nil
	}

	res := New(h.launcher, testSettings(), WithSleep(sleep)).Scrape(ctx, Request{Keyword: "k", MaxItems: 5})

	assert.Equal(t, ReasonCanceled, res.Reason)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, 1, h.page.htmlCalls)
	h.assertClosedOnce(t)
}

func TestScrapeCanceledBeforeStart(t *testing.T) {
	h := newHarness(&fakePage{pages: []string{page(article("a", "1", "x"))}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := h.scraper(testSettings()).Scrape(ctx, Request{Keyword: "k"})

	assert.Equal(t, ReasonCanceled, res.Reason)
	h.assertClosedOnce(t)
}

func TestScrapeSessionHandling(t *testing.T) {
	state := &auth.StorageState{Cookies: []auth.Cookie{{Name: "auth_token", Value: "t", Domain: ".x.com"}}}

	h := newHarness(&fakePage{pages: []string{page(article("a", "1", "x"))}})
	res := h.scraper(testSettings(), WithSession(sessionFunc(func() (*auth.StorageState, error) {
		return state, nil
	}))).Scrape(context.Background(), Request{Keyword: "k", MaxItems: 1})
	assert.False(t, res.Failed())
	assert.Same(t, state, h.browser.session)

	h = newHarness(&fakePage{pages: []string{page(article("a", "1", "x"))}})
	res = h.scraper(testSettings(), WithSession(sessionFunc(func() (*auth.StorageState, error) {
		return nil, errors.New("open storage/x-auth.json: no such file or directory")
	}))).Scrape(context.Background(), Request{Keyword: "k", MaxItems: 1})
	assert.False(t, res.Failed(), "a missing snapshot degrades to an unauthenticated scrape")
	assert.Len(t, res.Posts, 1)
	assert.Nil(t, h.browser.session)
}

func TestScrapeStampsKeywordAndTime(t *testing.T) {
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	h := newHarness(&fakePage{pages: []string{page(article("a", "1", "x"))}})

	res := h.scraper(testSettings(), WithClock(func() time.Time { return fixed })).
		Scrape(context.Background(), Request{Keyword: "go lang", MaxItems: 1})

	require.Len(t, res.Posts, 1)
	assert.Equal(t, "go lang", res.Posts[0].Keyword)
	assert.Equal(t, fixed, res.Posts[0].PublishTime)
	assert.Equal(t, "https://x.com/search?q=go+lang&src=typed_query&f=live", h.page.navURL)
}

func TestSearchURL(t *testing.T) {
	assert.Equal(t, "https://x.com/search?q=AI+%26+ML%3F&src=typed_query&f=live", SearchURL("https://x.com/", "AI & ML?"))
}

func TestRandomDelay(t *testing.T) {
	s := New(nil, testSettings())
	for i := 0; i < 100; i++ {
		d := s.randomDelay()
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.Less(t, d, 5*time.Second)
	}

	settings := testSettings()
	settings.MaxScrollDelay = settings.MinScrollDelay
	assert.Equal(t, 2*time.Second, New(nil, settings).randomDelay())
}

func TestSleepCtx(t *testing.T) {
	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
}

func postIDs(res Result) []string {
	ids := make([]string, 0, len(res.Posts))
	for _, p := range res.Posts {
		ids = append(ids, p.PostID)
	}
	return ids
}
