package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
)

// StorageState is a saved browser session: cookies plus per-origin local storage.
// The JSON layout matches Playwright's storageState files so snapshots
// exported with `playwright codegen --save-storage` load unchanged.
type StorageState struct {
	Cookies []Cookie      `json:"cookies"`
	Origins []OriginState `json:"origins"`
}

// Cookie is one persisted cookie. Expires is seconds since the epoch, -1 for session cookies.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// OriginState holds the local storage entries of one origin
type OriginState struct {
	Origin       string      `json:"origin"`
	LocalStorage []NameValue `json:"localStorage"`
}

type NameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SnapshotFile reads a session snapshot from a fixed path. It never writes to it.
type SnapshotFile struct {
	path string
}

// NewSnapshotFile creates a snapshot reader for path
func NewSnapshotFile(path string) *SnapshotFile {
	return &SnapshotFile{path: path}
}

// Path returns the snapshot location
func (f *SnapshotFile) Path() string {
	return f.path
}

// Load reads and decodes the snapshot
func (f *SnapshotFile) Load() (*StorageState, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}

	var state StorageState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode session snapshot %s: %w", f.path, err)
	}

	return &state, nil
}

// Authenticated reports whether the snapshot carries unexpired X.com auth cookies
func (s *StorageState) Authenticated(now time.Time) bool {
	if s == nil {
		return false
	}

	hasAuthToken := false
	hasCT0 := false
	for _, c := range s.Cookies {
		if c.Expires > 0 && now.After(time.Unix(int64(c.Expires), 0)) {
			continue
		}
		switch c.Name {
		case "auth_token":
			hasAuthToken = c.Value != ""
		case "ct0":
			hasCT0 = c.Value != ""
		}
	}

	return hasAuthToken && hasCT0
}

// CookieParams converts the snapshot cookies for Network.setCookies
func (s *StorageState) CookieParams() []*network.CookieParam {
	if s == nil {
		return nil
	}

	params := make([]*network.CookieParam, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		if c.Name == "" || c.Domain == "" {
			continue
		}

		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if p.Path == "" {
			p.Path = "/"
		}
		if c.SameSite != "" {
			p.SameSite = network.CookieSameSite(c.SameSite)
		}
		if c.Expires > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			p.Expires = &exp
		}
		params = append(params, p)
	}

	return params
}

// LocalStorageScript returns a script that restores the snapshot's local
// storage when a document of a matching origin loads. Empty when there is
// nothing to restore.
func (s *StorageState) LocalStorageScript() string {
	if s == nil {
		return ""
	}

	var sb strings.Builder
	for _, o := range s.Origins {
		if o.Origin == "" || len(o.LocalStorage) == 0 {
			continue
		}

		origin, _ := json.Marshal(o.Origin)
		entries, _ := json.Marshal(o.LocalStorage)
		fmt.Fprintf(&sb, "if (location.origin === %s) { for (const e of %s) { try { localStorage.setItem(e.name, e.value); } catch (_) {} } }\n", origin, entries)
	}

	return sb.String()
}

// FromNetworkCookies converts cookies read from a live browser into snapshot form
func FromNetworkCookies(cookies []*network.Cookie) []Cookie {
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		expires := c.Expires
		if c.Session {
			expires = -1
		}
		out = append(out, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return out
}
