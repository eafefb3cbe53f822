package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/steward-ai/xpulse/internal/types"
)

// ExportPosts serializes posts to JSON and writes them to a timestamped file in dir.
// Returns the path to the saved file.
func ExportPosts(dir string, now time.Time, posts []types.ScrapedPost) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	// Dashes instead of colons for filesystem compatibility
	path := filepath.Join(dir, now.Format("2006-01-02T15-04-05")+".json")

	data, err := json.MarshalIndent(posts, "", "  ")
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}
