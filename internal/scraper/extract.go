package scraper

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// RawPost is what one article element yields before normalization
type RawPost struct {
	PostID      string `json:"postId"`
	Handle      string `json:"handle"`
	Href        string `json:"href"`
	Author      string `json:"author"`
	Content     string `json:"content"`
	Datetime    string `json:"datetime"`
	LikeCount   int    `json:"likeCount"`
	RepostCount int    `json:"repostCount"`
}

// ExtractPosts maps a snapshot of the rendered search page to raw records,
// one per article element, in document order. An element that fails to
// parse is skipped; the pass itself never fails.
func ExtractPosts(html string) []RawPost {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var posts []RawPost
	doc.Find(PostArticle).Each(func(_ int, article *goquery.Selection) {
		if raw, ok := extractArticle(article); ok {
			posts = append(posts, raw)
		}
	})

	return posts
}

// extractArticle reads one article. A panic while reading it rejects the element.
func extractArticle(article *goquery.Selection) (raw RawPost, ok bool) {
	defer func() {
		if recover() != nil {
			raw, ok = RawPost{}, false
		}
	}()

	href, _ := article.Find(PostLink).First().Attr("href")
	raw.Href = href
	raw.Handle, raw.PostID = parseStatusPath(href)

	var blocks []string
	article.Find(PostTextBlock).Each(func(_ int, block *goquery.Selection) {
		if text := strings.TrimSpace(block.Text()); text != "" {
			blocks = append(blocks, text)
		}
	})
	raw.Content = strings.Join(blocks, "\n")

	authorEl := article.Find(PostAuthorPrimary).First()
	if authorEl.Length() == 0 {
		authorEl = article.Find(PostAuthorSpare).First()
	}
	if authorEl.Length() > 0 {
		raw.Author = strings.TrimSpace(authorEl.Text())
	} else {
		raw.Author = raw.Handle
	}

	raw.Datetime, _ = article.Find(PostTimestamp).First().Attr("datetime")

	// Later controls overwrite earlier ones
	article.Find(EngagementButton).Each(func(_ int, btn *goquery.Selection) {
		label, _ := btn.Attr("aria-label")
		n := parseCount(label)
		if likeRe.MatchString(label) {
			raw.LikeCount = n
		} else if repostRe.MatchString(label) {
			raw.RepostCount = n
		}
	})

	return raw, true
}

// parseStatusPath extracts the author handle and post id from a permalink.
// Absolute links are reduced to their path first.
func parseStatusPath(href string) (handle, id string) {
	path := href
	if isAbsolute(href) {
		u, err := url.Parse(href)
		if err != nil {
			return "", ""
		}
		path = u.Path
	}

	m := statusPathRe.FindStringSubmatch(path)
	if m == nil {
		return "", ""
	}
	return m[1], m[2]
}

// parseCount reads the first comma-grouped digit run in label, e.g. "1,234 Likes" -> 1234.
// Labels without digits, or with counts that overflow an int, yield 0.
func parseCount(label string) int {
	m := countRe.FindString(label)
	if m == "" {
		return 0
	}

	n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
