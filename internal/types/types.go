package types

import "time"

// PlatformX tags posts scraped from X.com
const PlatformX = "x"

// ScrapedPost represents a post scraped from an X search results page
type ScrapedPost struct {
	Platform    string    `json:"platform"`
	PostID      string    `json:"postId"`
	Author      string    `json:"author"`
	Content     string    `json:"content"`
	URL         string    `json:"url"`
	LikeCount   int       `json:"likeCount"`
	RepostCount int       `json:"repostCount"`
	PublishTime time.Time `json:"publishTime"`
	Keyword     string    `json:"keyword"`
}

// HotScore is the popularity score used for trending: likes plus twice the reposts
func (p ScrapedPost) HotScore() int {
	return p.LikeCount + 2*p.RepostCount
}
