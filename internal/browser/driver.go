package browser

import (
	"context"

	"github.com/steward-ai/xpulse/internal/auth"
)

// Launcher starts browser processes
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// Browser is one running browser process. Close releases it and must be
// called exactly once by the owner.
type Browser interface {
	// NewPage opens a tab in a fresh, isolated browser context seeded with
	// session. A nil session yields an unauthenticated context.
	NewPage(ctx context.Context, session *auth.StorageState) (Page, error)
	Close() error
}

// Page is a single tab. Every method honors ctx cancellation.
type Page interface {
	// Navigate loads url and returns once the network has gone idle
	Navigate(ctx context.Context, url string) error
	// HTML returns the outer HTML of the currently rendered document
	HTML(ctx context.Context) (string, error)
	// ScrollBy scrolls the viewport down by fraction of its height
	ScrollBy(ctx context.Context, fraction float64) error
	Close() error
}
