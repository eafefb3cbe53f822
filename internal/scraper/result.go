package scraper

import (
	"time"

	"github.com/steward-ai/xpulse/internal/types"
)

// Reason classifies why a scrape failed. The zero value means it did not.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonLaunch     Reason = "launch"
	ReasonTimeout    Reason = "timeout"
	ReasonNavigation Reason = "navigation"
	ReasonBrowser    Reason = "browser"
	ReasonCanceled   Reason = "canceled"
	ReasonPanic      Reason = "panic"
)

// Request describes one scrape
type Request struct {
	Keyword  string
	MaxItems int
}

// Result is the outcome of one scrape. Exactly one of these holds:
// the scrape succeeded and Posts holds zero or more posts, or it failed
// with a Reason and Err and Posts is empty.
type Result struct {
	RunID    string
	Keyword  string
	MaxItems int
	Posts    []types.ScrapedPost
	Scrolls  int
	Duration time.Duration
	Reason   Reason
	Err      error
}

// Failed reports whether the scrape failed
func (r Result) Failed() bool {
	return r.Reason != ReasonNone
}

// NoMatches reports a successful scrape that found nothing
func (r Result) NoMatches() bool {
	return !r.Failed() && len(r.Posts) == 0
}

// Complete reports whether the scrape reached its cap
func (r Result) Complete() bool {
	return !r.Failed() && len(r.Posts) >= r.MaxItems
}

// Outcome is a short label for logs and metrics
func (r Result) Outcome() string {
	switch {
	case r.Failed():
		return string(r.Reason)
	case r.NoMatches():
		return "no_matches"
	case r.Complete():
		return "complete"
	default:
		return "partial"
	}
}
