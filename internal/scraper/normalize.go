package scraper

import (
	"net/url"
	"strings"
	"time"

	"github.com/steward-ai/xpulse/internal/types"
)

// UnknownAuthor is used when a post has neither display name nor handle
const UnknownAuthor = "Unknown"

// Normalize converts a raw record into a ScrapedPost for keyword.
// Records without a post id are rejected, as are absolute permalinks on a
// host other than baseURL's. The timestamp must be RFC 3339; now stands in
// for one that is missing or in any other format.
func Normalize(raw RawPost, keyword, baseURL string, now time.Time) (types.ScrapedPost, bool) {
	if raw.PostID == "" {
		return types.ScrapedPost{}, false
	}

	baseURL = strings.TrimRight(baseURL, "/")

	var link string
	switch {
	case isAbsolute(raw.Href):
		if !sameHost(raw.Href, baseURL) {
			return types.ScrapedPost{}, false
		}
		link = raw.Href
	case raw.Href != "":
		link = baseURL + raw.Href
	case raw.Handle != "":
		link = baseURL + "/" + raw.Handle + "/status/" + raw.PostID
	}

	publishTime := now
	if raw.Datetime != "" {
		if parsed, err := time.Parse(time.RFC3339, raw.Datetime); err == nil {
			publishTime = parsed
		}
	}

	author := raw.Author
	if author == "" {
		author = raw.Handle
	}
	if author == "" {
		author = UnknownAuthor
	}

	return types.ScrapedPost{
		Platform:    types.PlatformX,
		PostID:      raw.PostID,
		Author:      author,
		Content:     raw.Content,
		URL:         link,
		LikeCount:   max(raw.LikeCount, 0),
		RepostCount: max(raw.RepostCount, 0),
		PublishTime: publishTime,
		Keyword:     keyword,
	}, true
}

func isAbsolute(href string) bool {
	return strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://")
}

// sameHost reports whether href points at baseURL's host
func sameHost(href, baseURL string) bool {
	h, err := url.Parse(href)
	if err != nil {
		return false
	}
	b, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(h.Hostname(), b.Hostname())
}
