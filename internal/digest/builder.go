package digest

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/steward-ai/xpulse/internal/store"
)

const maxContentRunes = 280

// Builder renders the trending digest page from ranked posts
type Builder struct {
	template *template.Template
}

// New creates a new digest builder
func New() (*Builder, error) {
	tmpl, err := template.New("digest").Parse(defaultTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	return &Builder{template: tmpl}, nil
}

// Digest is a rendered digest
type Digest struct {
	Title     string
	HTMLBody  string
	PlainBody string
	PostIDs   []string
	CreatedAt time.Time
}

// DigestData is the template data structure
type DigestData struct {
	Title string
	Date  string
	Posts []PostData
}

// PostData represents a post in the digest template
type PostData struct {
	Rank     int
	Author   string
	Content  string
	Likes    int
	Reposts  int
	HotScore int
	Keyword  string
	URL      string
}

// Build renders posts, already ranked, into a digest. No posts renders an empty digest.
func (b *Builder) Build(posts []store.TrendingPost, now time.Time) (*Digest, error) {
	data := DigestData{
		Title: "Trending on X",
		Date:  now.Format("Monday, January 2"),
		Posts: make([]PostData, len(posts)),
	}

	postIDs := make([]string, len(posts))
	for i, p := range posts {
		data.Posts[i] = PostData{
			Rank:     i + 1,
			Author:   p.Author,
			Content:  truncate(p.Content, maxContentRunes),
			Likes:    p.LikeCount,
			Reposts:  p.RepostCount,
			HotScore: p.HotScore,
			Keyword:  p.Keyword,
			URL:      p.URL,
		}
		postIDs[i] = p.PostID
	}

	var htmlBuf bytes.Buffer
	if err := b.template.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}

	return &Digest{
		Title:     data.Title,
		HTMLBody:  htmlBuf.String(),
		PlainBody: buildPlainText(data),
		PostIDs:   postIDs,
		CreatedAt: now,
	}, nil
}

// truncate shortens s to maxLen runes, ellipsis included
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

func buildPlainText(data DigestData) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\n%s\n\n", data.Title, data.Date)

	if len(data.Posts) == 0 {
		buf.WriteString("No trending posts yet.\n")
	}
	for _, p := range data.Posts {
		fmt.Fprintf(&buf, "%d. %s (%d): %s\n", p.Rank, p.Author, p.HotScore, p.Content)
		if p.URL != "" {
			fmt.Fprintf(&buf, "   %s\n", p.URL)
		}
		buf.WriteString("\n")
	}

	return buf.String()
}

const defaultTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; background: #f5f5f5; }
        .container { background: white; border-radius: 8px; padding: 20px; }
        h1 { color: #1da1f2; margin-bottom: 5px; }
        .date { color: #666; margin-bottom: 20px; }
        .post { border-bottom: 1px solid #eee; padding: 15px 0; }
        .post:last-child { border-bottom: none; }
        .author { font-weight: bold; color: #333; }
        .rank { color: #999; margin-right: 6px; }
        .content { margin: 10px 0; line-height: 1.4; white-space: pre-line; }
        .keyword { background: #e8f5fd; color: #1da1f2; padding: 2px 8px; border-radius: 12px; font-size: 12px; }
        .metrics { color: #666; font-size: 13px; }
        .link { color: #1da1f2; text-decoration: none; }
        .empty { color: #999; text-align: center; padding: 30px 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{.Title}}</h1>
        <div class="date">{{.Date}}</div>

        {{range .Posts}}
        <div class="post">
            <div class="author"><span class="rank">#{{.Rank}}</span>{{.Author}}</div>
            <div class="content">{{.Content}}</div>
            <div class="metrics">{{.Likes}} likes · {{.Reposts}} reposts · score {{.HotScore}} {{if .Keyword}}<span class="keyword">{{.Keyword}}</span>{{end}}</div>
            {{if .URL}}<a href="{{.URL}}" class="link">View on X →</a>{{end}}
        </div>
        {{else}}
        <div class="empty">No trending posts yet.</div>
        {{end}}
    </div>
</body>
</html>`
