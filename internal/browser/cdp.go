package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
)

// CDPConnector connects to a running browser through chromedp.
type CDPConnector struct{}

// Connect attaches to the browser behind endpoint. endpoint may be the
// http://host:port DevTools address or a ws:// debugger URL.
func (CDPConnector) Connect(ctx context.Context, endpoint string) (Browser, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, endpoint)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run dials the browser and attaches to its initial tab.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("connect to %s: %w", endpoint, err)
	}

	return &cdpBrowser{
		ctx: browserCtx,
		close: func() {
			browserCancel()
			allocCancel()
		},
	}, nil
}

type cdpBrowser struct {
	ctx   context.Context
	close func()
	once  sync.Once
}

// NewPage opens a fresh tab. The tab lives until Close or until the browser
// connection is closed.
func (b *cdpBrowser) NewPage(ctx context.Context) (Page, error) {
	pageCtx, cancel := chromedp.NewContext(b.ctx)
	if err := chromedp.Run(pageCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("open page: %w", err)
	}

	stop := context.AfterFunc(ctx, cancel)
	return &cdpPage{ctx: pageCtx, cancel: func() {
		stop()
		cancel()
	}}, nil
}

func (b *cdpBrowser) Close() error {
	b.once.Do(b.close)
	return nil
}

type cdpPage struct {
	ctx    context.Context
	cancel func()
}

func (p *cdpPage) Run(actions ...chromedp.Action) error {
	return chromedp.Run(p.ctx, actions...)
}

func (p *cdpPage) Listen(fn func(ev interface{})) {
	chromedp.ListenTarget(p.ctx, fn)
}

func (p *cdpPage) Close() error {
	p.cancel()
	return nil
}
