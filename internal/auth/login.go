package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

// Login drives the one-time interactive login that produces a session snapshot.
// It is the only writer of snapshot files; the scraper only reads them.
type Login struct {
	baseURL   string
	allocOpts []chromedp.ExecAllocatorOption
	timeout   time.Duration
	log       zerolog.Logger
}

// NewLogin creates a login flow against baseURL (e.g. https://x.com).
// allocOpts should describe a visible (headful) browser.
func NewLogin(baseURL string, allocOpts []chromedp.ExecAllocatorOption, log zerolog.Logger) *Login {
	return &Login{
		baseURL:   strings.TrimRight(baseURL, "/"),
		allocOpts: allocOpts,
		timeout:   5 * time.Minute, // Give user 5 minutes to log in
		log:       log.With().Str("component", "login").Logger(),
	}
}

// Run opens a browser window for the user to log in and writes the resulting
// session snapshot to path
func (l *Login) Run(ctx context.Context, path string) error {
	allocCtx, cancel := chromedp.NewExecAllocator(ctx, l.allocOpts...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	if err := chromedp.Run(browserCtx, chromedp.Navigate(l.baseURL+"/login")); err != nil {
		return fmt.Errorf("failed to navigate to login page: %w", err)
	}

	l.log.Info().Dur("timeout", l.timeout).Msg("waiting for login in the browser window")

	cookies, err := l.waitForLogin(browserCtx)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	var entries []NameValue
	if err := chromedp.Run(browserCtx, chromedp.Evaluate(
		`Object.keys(localStorage).map(k => ({name: k, value: localStorage.getItem(k)}))`, &entries,
	)); err != nil {
		l.log.Warn().Err(err).Msg("could not read local storage, saving cookies only")
	}

	state := &StorageState{Cookies: FromNetworkCookies(cookies)}
	if len(entries) > 0 {
		state.Origins = []OriginState{{Origin: l.baseURL, LocalStorage: entries}}
	}

	if err := WriteSnapshot(path, state); err != nil {
		return fmt.Errorf("failed to save session snapshot: %w", err)
	}

	l.log.Info().Str("path", path).Int("cookies", len(state.Cookies)).Msg("session snapshot saved")
	return nil
}

// waitForLogin polls until the browser reaches the home timeline with an auth cookie
func (l *Login) waitForLogin(ctx context.Context) ([]*network.Cookie, error) {
	timeout := time.After(l.timeout)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			return nil, errors.New("login timeout exceeded")
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			var url string
			if err := chromedp.Run(ctx, chromedp.Location(&url)); err != nil {
				continue
			}
			if !strings.HasSuffix(strings.TrimRight(url, "/"), "/home") {
				continue
			}

			cookies, err := extractCookies(ctx)
			if err != nil {
				continue
			}
			for _, c := range cookies {
				if c.Name == "auth_token" && c.Value != "" {
					return cookies, nil
				}
			}
		}
	}
}

// extractCookies gets all cookies from the browser
func extractCookies(ctx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie

	err := chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = storage.GetCookies().Do(ctx)
			return err
		}),
	)

	return cookies, err
}

// WriteSnapshot persists a session snapshot with owner-only permissions
func WriteSnapshot(path string, state *StorageState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
