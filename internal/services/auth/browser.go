package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/balduz84/passdoo/internal/common"
	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
)

// BrowserSurface opens the login page in a dedicated Chrome window driven
// over the DevTools protocol.
type BrowserSurface struct {
	config common.BrowserConfig
	logger arbor.ILogger
}

// NewBrowserSurface creates a chromedp-backed login surface
func NewBrowserSurface(config common.BrowserConfig, logger arbor.ILogger) *BrowserSurface {
	return &BrowserSurface{
		config: config,
		logger: logger,
	}
}

// Open starts a browser and navigates it to loginURL
func (b *BrowserSurface) Open(ctx context.Context, loginURL string) (Window, error) {
	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.config.Headless),
		chromedp.Flag("disable-extensions", true),
		chromedp.WindowSize(b.config.Width, b.config.Height),
	)
	if b.config.ExecPath != "" {
		allocatorOpts = append(allocatorOpts, chromedp.ExecPath(b.config.ExecPath))
	}
	if b.config.UserDataDir != "" {
		allocatorOpts = append(allocatorOpts, chromedp.UserDataDir(b.config.UserDataDir))
	}

	// The window outlives the caller's cancellation until Close runs
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	w := &browserWindow{
		ctx:         browserCtx,
		navigations: make(chan string, 16),
		closed:      make(chan struct{}),
		logger:      b.logger,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
	}

	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventFrameNavigated:
			if e.Frame != nil && e.Frame.ParentID == "" {
				w.push(e.Frame.URL + e.Frame.URLFragment)
			}
		case *page.EventNavigatedWithinDocument:
			w.push(e.URL)
		case *inspector.EventDetached:
			w.markClosed()
		}
	})

	startTime := time.Now()
	if err := chromedp.Run(browserCtx, chromedp.Navigate(loginURL)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to open login page: %w", err)
	}

	// Chrome exiting cancels the browser context
	go func() {
		<-browserCtx.Done()
		w.markClosed()
	}()

	b.logger.Debug().
		Bool("headless", b.config.Headless).
		Dur("startup", time.Since(startTime)).
		Msg("Login window opened")

	return w, nil
}

type browserWindow struct {
	ctx         context.Context
	cancel      context.CancelFunc
	navigations chan string
	closed      chan struct{}
	logger      arbor.ILogger

	closeOnce  sync.Once
	closedOnce sync.Once
}

func (w *browserWindow) push(rawURL string) {
	select {
	case w.navigations <- rawURL:
	default:
		w.logger.Debug().Msg("Dropping navigation event, buffer full")
	}
}

func (w *browserWindow) markClosed() {
	w.closedOnce.Do(func() { close(w.closed) })
}

func (w *browserWindow) Navigations() <-chan string {
	return w.navigations
}

func (w *browserWindow) Closed() <-chan struct{} {
	return w.closed
}

func (w *browserWindow) CurrentURL(ctx context.Context) (string, error) {
	var location string
	if err := chromedp.Run(w.ctx, chromedp.Location(&location)); err != nil {
		return "", err
	}
	return location, nil
}

func (w *browserWindow) Cookies(ctx context.Context, rawURL string) ([]*http.Cookie, error) {
	var cookies []*network.Cookie
	err := chromedp.Run(w.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().WithURLs([]string{rawURL}).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}

	result := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		result = append(result, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		})
	}
	return result, nil
}

func (w *browserWindow) Close() error {
	w.closeOnce.Do(func() {
		w.cancel()
		w.markClosed()
	})
	return nil
}
