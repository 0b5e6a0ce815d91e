package snapshotchromium

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/goliatone/go-snapshot/snapshot"
)

// Browser owns a shared headless Chromium process. Every capture surface and
// every print job gets its own tab.
type Browser struct {
	BrowserPath string
	Headless    bool
	// Timeout bounds page loading and printing. Captures are not bounded.
	Timeout time.Duration
	Args    []string
	// BlockExternal blocks http(s) requests from capture pages.
	BlockExternal bool
	Logger        snapshot.Logger

	initOnce      sync.Once
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewBrowser creates a headless browser handle. The process starts lazily.
func NewBrowser(path string, args ...string) *Browser {
	return &Browser{
		BrowserPath: path,
		Headless:    true,
		Timeout:     30 * time.Second,
		Args:        args,
	}
}

// Close releases Chromium resources if they have been initialized.
func (b *Browser) Close() error {
	if b == nil {
		return nil
	}
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	return nil
}

func (b *Browser) ensureBrowser() error {
	b.initOnce.Do(func() {
		options := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
		if b.BrowserPath != "" {
			options = append(options, chromedp.ExecPath(b.BrowserPath))
		}
		options = append(options, chromedp.Flag("headless", b.Headless))
		options = append(options, chromedp.Flag("hide-scrollbars", true))
		options = append(options, allocatorOptionsFromArgs(b.Args)...)

		b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), options...)
		b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx)
	})
	if b.allocCtx == nil || b.browserCtx == nil {
		return errors.New("chromium allocator unavailable")
	}
	return nil
}

func (b *Browser) logger() snapshot.Logger {
	if b.Logger == nil {
		return snapshot.NopLogger{}
	}
	return b.Logger
}

// newTab opens a tab and loads html into it.
func (b *Browser) newTab(ctx context.Context, html []byte, width, height int) (context.Context, context.CancelFunc, error) {
	if err := b.ensureBrowser(); err != nil {
		return nil, nil, snapshot.NewError(snapshot.KindInternal, "chromium init failed", err)
	}

	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	// The first run allocates the tab; its lifetime follows tabCtx.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, nil, snapshot.NewError(snapshot.KindInternal, "chromium tab allocation failed", err)
	}

	actions := []chromedp.Action{}
	if b.BlockExternal {
		actions = append(actions,
			network.Enable(),
			network.SetBlockedURLs([]string{"http://*", "https://*"}),
		)
	}
	if width > 0 && height > 0 {
		actions = append(actions, chromedp.EmulateViewport(int64(width), int64(height)))
	}
	actions = append(actions,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, string(html)).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)

	if err := b.run(ctx, tabCtx, b.Timeout, actions...); err != nil {
		cancel()
		return nil, nil, err
	}
	return tabCtx, cancel, nil
}

// run executes actions on a tab, bound to both the caller and the tab.
func (b *Browser) run(ctx, tabCtx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if ctx == nil {
		ctx = context.Background()
	}
	execCtx, cancelReq := context.WithCancel(tabCtx)
	defer cancelReq()
	go func() {
		select {
		case <-ctx.Done():
			cancelReq()
		case <-execCtx.Done():
		}
	}()
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		execCtx, cancelTimeout = context.WithTimeout(execCtx, timeout)
		defer cancelTimeout()
	}

	if err := chromedp.Run(execCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func allocatorOptionsFromArgs(args []string) []chromedp.ExecAllocatorOption {
	options := make([]chromedp.ExecAllocatorOption, 0, len(args))
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		arg = strings.TrimPrefix(arg, "--")
		if arg == "" {
			continue
		}
		if name, value, ok := strings.Cut(arg, "="); ok {
			options = append(options, chromedp.Flag(name, value))
			continue
		}
		options = append(options, chromedp.Flag(arg, true))
	}
	return options
}
