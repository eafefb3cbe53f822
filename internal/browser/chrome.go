package browser

import (
	"context"
	"fmt"
	"strconv"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/steward-ai/xpulse/internal/auth"
)

// Chrome launches local Chrome processes through chromedp
type Chrome struct {
	allocOpts []chromedp.ExecAllocatorOption
}

// NewChrome creates a launcher using the given allocator options (see Options)
func NewChrome(allocOpts []chromedp.ExecAllocatorOption) *Chrome {
	return &Chrome{allocOpts: allocOpts}
}

// Launch starts a browser process. The process outlives ctx and is only
// stopped by Close.
func (c *Chrome) Launch(ctx context.Context) (Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), c.allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// An empty Run starts the browser process
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &chromeBrowser{ctx: browserCtx, cancel: browserCancel, allocCancel: allocCancel}, nil
}

type chromeBrowser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

func (b *chromeBrowser) NewPage(ctx context.Context, session *auth.StorageState) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(b.ctx, chromedp.WithNewBrowserContext())

	actions := []chromedp.Action{
		network.Enable(),
		page.SetLifecycleEventsEnabled(true),
	}
	if cookies := session.CookieParams(); len(cookies) > 0 {
		actions = append(actions, network.SetCookies(cookies))
	}
	if script := session.LocalStorageScript(); script != "" {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
			return err
		}))
	}

	// The first Run on a tab context creates the target, so it must not carry
	// a deadline that would tear the tab down when it expires.
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		_ = chromedp.Cancel(tabCtx)
		tabCancel()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	return &chromePage{ctx: tabCtx, cancel: tabCancel}, nil
}

func (b *chromeBrowser) Close() error {
	err := chromedp.Cancel(b.ctx)
	b.cancel()
	b.allocCancel()
	return err
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// run executes actions on the tab, aborting when either the tab or ctx ends.
// Cancelling the derived context does not close the tab.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	mainFrame := cdp.FrameID(chromedp.FromContext(p.ctx).Target.TargetID)

	listenCtx, stopListening := context.WithCancel(p.ctx)
	defer stopListening()

	// Lifecycle events for the main frame start with "init" carrying the new
	// loader id; only that loader's networkIdle counts.
	idle := make(chan struct{})
	var loader cdp.LoaderID
	signaled := false
	chromedp.ListenTarget(listenCtx, func(ev any) {
		e, ok := ev.(*page.EventLifecycleEvent)
		if !ok || e.FrameID != mainFrame || signaled {
			return
		}
		switch e.Name {
		case "init":
			loader = e.LoaderID
		case "networkIdle":
			if loader != "" && e.LoaderID == loader {
				signaled = true
				close(idle)
			}
		}
	})

	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return err
	}

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (p *chromePage) ScrollBy(ctx context.Context, fraction float64) error {
	js := "window.scrollBy(0, window.innerHeight * " + strconv.FormatFloat(fraction, 'f', -1, 64) + ")"
	return p.run(ctx, chromedp.Evaluate(js, nil))
}

func (p *chromePage) Close() error {
	err := chromedp.Cancel(p.ctx)
	p.cancel()
	return err
}
