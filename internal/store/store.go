package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/steward-ai/xpulse/internal/types"
)

// MaxTrendingLimit caps the number of posts Trending returns
const MaxTrendingLimit = 100

// trendingWindow is how many of the newest posts are ranked by Trending
const trendingWindow = 300

// ErrInvalidLimit is returned by Trending for a limit outside [1, MaxTrendingLimit]
var ErrInvalidLimit = errors.New("limit must be between 1 and 100")

// Store handles all database operations
type Store struct {
	db *sql.DB
}

// TrendingPost is a stored post with its popularity score
type TrendingPost struct {
	types.ScrapedPost
	HotScore int `json:"hotScore"`
}

// New creates a new Store with SQLite backend
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS social_posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		platform TEXT NOT NULL,
		post_id TEXT NOT NULL,
		author TEXT NOT NULL,
		content TEXT NOT NULL,
		url TEXT NOT NULL,
		like_count INTEGER NOT NULL DEFAULT 0,
		repost_count INTEGER NOT NULL DEFAULT 0,
		publish_time INTEGER NOT NULL,
		keyword TEXT NOT NULL,
		scraped_at INTEGER NOT NULL,
		UNIQUE(platform, post_id)
	);

	CREATE INDEX IF NOT EXISTS idx_social_posts_publish_time ON social_posts(platform, publish_time);
	`

	_, err := s.db.Exec(schema)
	return err
}

// InsertPosts stores posts, skipping any already known by (platform, post_id).
// Returns the number of rows actually inserted.
func (s *Store) InsertPosts(ctx context.Context, posts []types.ScrapedPost) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO social_posts (platform, post_id, author, content, url,
			like_count, repost_count, publish_time, keyword, scraped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	scrapedAt := time.Now().UnixMilli()
	inserted := 0
	for _, p := range posts {
		r, err := stmt.ExecContext(ctx, p.Platform, p.PostID, p.Author, p.Content, p.URL,
			p.LikeCount, p.RepostCount, p.PublishTime.UnixMilli(), p.Keyword, scrapedAt)
		if err != nil {
			return 0, fmt.Errorf("failed to insert post %s: %w", p.PostID, err)
		}
		n, err := r.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit posts: %w", err)
	}
	return inserted, nil
}

// Trending ranks the newest posts published at or after since by HotScore
// and returns the first limit of them. Ties keep newest-first order.
func (s *Store) Trending(ctx context.Context, platform string, since time.Time, limit int) ([]TrendingPost, error) {
	if limit < 1 || limit > MaxTrendingLimit {
		return nil, ErrInvalidLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT platform, post_id, author, content, url,
			like_count, repost_count, publish_time, keyword
		FROM social_posts
		WHERE platform = ? AND publish_time >= ?
		ORDER BY publish_time DESC, id DESC
		LIMIT ?
	`, platform, since.UnixMilli(), trendingWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to query trending posts: %w", err)
	}
	defer rows.Close()

	posts, err := scanPosts(rows)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].HotScore > posts[j].HotScore
	})
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

// CountPosts returns the number of stored posts
func (s *Store) CountPosts(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM social_posts`).Scan(&n)
	return n, err
}

func scanPosts(rows *sql.Rows) ([]TrendingPost, error) {
	posts := []TrendingPost{}
	for rows.Next() {
		var p types.ScrapedPost
		var publishMs int64

		err := rows.Scan(
			&p.Platform, &p.PostID, &p.Author, &p.Content, &p.URL,
			&p.LikeCount, &p.RepostCount, &publishMs, &p.Keyword,
		)
		if err != nil {
			return nil, err
		}

		p.PublishTime = time.UnixMilli(publishMs)
		posts = append(posts, TrendingPost{ScrapedPost: p, HotScore: p.HotScore()})
	}
	return posts, rows.Err()
}
