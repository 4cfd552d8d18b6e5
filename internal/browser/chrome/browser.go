// Package chrome answers locator queries against a live Chrome tab over the
// DevTools protocol.
package chrome

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-locator/internal/config"
)

// ActionExecutor runs chromedp actions. The implementation combines the
// caller's context with the long lived tab context that carries the CDP target.
type ActionExecutor interface {
	RunActions(ctx context.Context, actions ...chromedp.Action) error
}

// Browser owns one Chrome process with a single tab.
type Browser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	cfg         config.BrowserConfig
	logger      *zap.Logger
}

var _ ActionExecutor = (*Browser)(nil)

// ExecOptions builds the allocator options for cfg. Entries in cfg.Args are
// flags, either "name" or "name=value", with or without leading dashes.
func ExecOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("enable-automation", true),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	for _, arg := range cfg.Args {
		key, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if key == "" {
			continue
		}
		if found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(key, true))
		}
	}
	return opts
}

// Launch starts Chrome and opens a tab. Close must be called to release it.
func Launch(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Browser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("chrome")

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, ExecOptions(cfg)...)
	tabCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Errorf),
	)

	// The first Run starts the browser.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	logger.Debug("Browser started", zap.Bool("headless", cfg.Headless))

	return &Browser{
		ctx:         tabCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		cfg:         cfg,
		logger:      logger,
	}, nil
}

// RunActions runs actions in the tab, canceled when either ctx or the browser is.
func (b *Browser) RunActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(b.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Navigate loads url and waits for the body to be ready.
func (b *Browser) Navigate(ctx context.Context, url string) error {
	timeout := b.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b.logger.Debug("Navigating", zap.String("url", url))
	if err := b.RunActions(navCtx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// Page returns the query scope for the tab's current document.
func (b *Browser) Page() *Page {
	return NewPage(b, b.cfg.QueryTimeout)
}

// Close shuts the tab and the browser down.
func (b *Browser) Close() error {
	b.cancel()
	b.allocCancel()
	return nil
}
