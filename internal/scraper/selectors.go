package scraper

import "regexp"

// X.com search page selectors
// These are isolated here because X changes their DOM frequently
// Update these when scraping breaks

const (
	// One post per article element
	PostArticle = `article`

	// Post content selectors
	PostLink          = `a[href*="/status/"]`
	PostTextBlock     = `div[dir="auto"]`
	PostAuthorPrimary = `div[dir="ltr"] span`
	PostAuthorSpare   = `div[dir="auto"] span`
	PostTimestamp     = `time`

	// Engagement controls carry their counts in aria-label, e.g. "1,234 Likes. Like"
	EngagementButton = `button[aria-label]`
)

var (
	// /{handle}/status/{id}
	statusPathRe = regexp.MustCompile(`^/([^/]+)/status/(\d+)`)

	countRe  = regexp.MustCompile(`\d[\d,]*`)
	likeRe   = regexp.MustCompile(`(?i)like`)
	repostRe = regexp.MustCompile(`(?i)repost|retweet`)
)
