package server

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/steward-ai/xpulse/internal/app"
	"github.com/steward-ai/xpulse/internal/digest"
	"github.com/steward-ai/xpulse/internal/scraper"
	"github.com/steward-ai/xpulse/internal/store"
)

const (
	defaultTrendingLimit  = 10
	defaultHotspotResults = 20
)

// Service defines the operations needed by the handlers.
type Service interface {
	Scrape(ctx context.Context, req scraper.Request) scraper.Result
	ScrapeAndStore(ctx context.Context, req scraper.Request) (app.Report, error)
	Trending(ctx context.Context, limit int) ([]store.TrendingPost, error)
	PostCount(ctx context.Context) (int, error)
}

// Limits bounds the item counts callers may ask for
type Limits struct {
	DefaultKeyword  string
	DefaultMaxItems int
	MaxItemsLimit   int
}

// Handler handles the xpulse HTTP API.
type Handler struct {
	svc    Service
	limits Limits
	digest *digest.Builder
	now    func() time.Time
}

// NewHandler creates a new handler.
func NewHandler(svc Service, limits Limits) (*Handler, error) {
	b, err := digest.New()
	if err != nil {
		return nil, err
	}
	return &Handler{svc: svc, limits: limits, digest: b, now: time.Now}, nil
}

// scrapeRequest holds the raw scrape body. Values of the wrong type fall
// back to the defaults instead of failing the request.
type scrapeRequest struct {
	Keyword  any `json:"keyword"`
	MaxItems any `json:"maxItems"`
}

// keyword returns the trimmed keyword, or def when it is absent, blank or not a string
func (r scrapeRequest) keyword(def string) string {
	if s, ok := r.Keyword.(string); ok {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return def
}

// maxItems returns the requested item count when it is a whole number in [1, limit], else def
func (r scrapeRequest) maxItems(def, limit int) int {
	n, ok := r.MaxItems.(float64)
	if !ok || n != math.Trunc(n) || n < 1 || n > float64(limit) {
		return def
	}
	return int(n)
}

// tweet is the hotspot view of a scraped post
type tweet struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	Author       string `json:"author"`
	AuthorHandle string `json:"authorHandle"`
	CreatedAt    string `json:"createdAt"`
	Likes        int    `json:"likes"`
	Retweets     int    `json:"retweets"`
	Replies      int    `json:"replies"`
	URL          string `json:"url"`
}

// ScrapeX handles POST /api/scrape/x.
func (h *Handler) ScrapeX(c *gin.Context) {
	var req scrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	keyword := req.keyword(h.limits.DefaultKeyword)
	maxItems := req.maxItems(h.limits.DefaultMaxItems, h.limits.MaxItemsLimit)

	report, err := h.svc.ScrapeAndStore(c.Request.Context(), scraper.Request{Keyword: keyword, MaxItems: maxItems})
	res := report.Result
	switch {
	case res.Failed():
		_ = c.Error(res.Err)
		c.JSON(http.StatusBadGateway, gin.H{
			"count":  0,
			"error":  "scrape failed: " + res.Err.Error(),
			"reason": string(res.Reason),
		})
	case res.NoMatches():
		c.JSON(http.StatusOK, gin.H{"count": 0, "message": "No posts scraped from X"})
	case err != nil:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{
			"count":   report.Inserted,
			"scraped": len(res.Posts),
			"keyword": keyword,
		})
	}
}

// Trending handles GET /api/posts/trending.
func (h *Handler) Trending(c *gin.Context) {
	items, err := h.svc.Trending(c.Request.Context(), trendingLimit(c))
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

// TrendingDigest handles GET /trending, today's trending posts as a page.
// format=text returns plain text instead of HTML.
func (h *Handler) TrendingDigest(c *gin.Context) {
	items, err := h.svc.Trending(c.Request.Context(), trendingLimit(c))
	if err != nil {
		_ = c.Error(err)
		c.String(http.StatusInternalServerError, "failed to load trending posts")
		return
	}

	d, err := h.digest.Build(items, h.now())
	if err != nil {
		_ = c.Error(err)
		c.String(http.StatusInternalServerError, "failed to render digest")
		return
	}

	if c.Query("format") == "text" {
		c.String(http.StatusOK, d.PlainBody)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(d.HTMLBody))
}

// TwitterHotspots handles GET /api/hotspots/twitter, a live scrape that is not stored.
func (h *Handler) TwitterHotspots(c *gin.Context) {
	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		query = h.limits.DefaultKeyword
	}
	maxResults := defaultHotspotResults
	if n, err := strconv.Atoi(c.Query("maxResults")); err == nil {
		maxResults = min(max(n, 1), h.limits.MaxItemsLimit)
	}

	res := h.svc.Scrape(c.Request.Context(), scraper.Request{Keyword: query, MaxItems: maxResults})
	if res.Failed() {
		_ = c.Error(res.Err)
		c.JSON(http.StatusBadGateway, gin.H{
			"tweets":       []tweet{},
			"totalResults": 0,
			"error":        "scrape failed: " + res.Err.Error(),
			"reason":       string(res.Reason),
		})
		return
	}

	tweets := make([]tweet, 0, len(res.Posts))
	for _, p := range res.Posts {
		tweets = append(tweets, tweet{
			ID:        p.PostID,
			Text:      p.Content,
			Author:    p.Author,
			CreatedAt: p.PublishTime.UTC().Format(time.RFC3339Nano),
			Likes:     p.LikeCount,
			Retweets:  p.RepostCount,
			URL:       p.URL,
		})
	}

	c.JSON(http.StatusOK, gin.H{"tweets": tweets, "totalResults": len(tweets)})
}

// trendingLimit reads ?limit, falling back to the default when absent or out of range
func trendingLimit(c *gin.Context) int {
	if n, err := strconv.Atoi(c.Query("limit")); err == nil && n >= 1 && n <= store.MaxTrendingLimit {
		return n
	}
	return defaultTrendingLimit
}

// Health handles GET /healthz.
func (h *Handler) Health(c *gin.Context) {
	n, err := h.svc.PostCount(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "posts": n})
}
