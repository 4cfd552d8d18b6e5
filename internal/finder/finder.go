// Package finder waits for elements by polling a resolver until they appear.
package finder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-locator/internal/config"
	"github.com/xkilldash9x/scalpel-locator/internal/locator"
)

// ErrNotVisible is returned by FindVisible when elements matched but none
// became visible before the timeout.
var ErrNotVisible = errors.New("element found but not visible")

// Resolver is the subset of *locator.Resolver the finder needs.
type Resolver interface {
	Resolve(ctx context.Context, scope locator.Context, req locator.Request) (*locator.Result, error)
}

// Finder retries resolution with exponential backoff. Learning and write-back
// are held back while polling so a slow page is not "healed" to the wrong
// element. A healed match found while polling is resolved once more with
// persistence enabled; the final attempt after polling runs as requested.
type Finder struct {
	resolver Resolver
	cfg      config.FinderConfig
	logger   *zap.Logger
}

func New(resolver Resolver, cfg config.FinderConfig, logger *zap.Logger) *Finder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Finder{resolver: resolver, cfg: cfg, logger: logger.Named("finder")}
}

func (f *Finder) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.cfg.InitialInterval
	b.MaxInterval = f.cfg.MaxInterval
	b.MaxElapsedTime = f.cfg.Timeout
	return backoff.WithContext(b, ctx)
}

// Find resolves req, retrying while nothing matches. A zero timeout means a
// single attempt.
func (f *Finder) Find(ctx context.Context, scope locator.Context, req locator.Request) (*locator.Result, error) {
	return f.poll(ctx, scope, req, func(res *locator.Result) (*locator.Result, error) {
		return res, nil
	})
}

// FindVisible waits until the resolved set contains a visible element and
// returns the first one.
func (f *Finder) FindVisible(ctx context.Context, scope locator.Context, req locator.Request) (locator.Element, error) {
	res, err := f.poll(ctx, scope, req, func(res *locator.Result) (*locator.Result, error) {
		for _, el := range res.Elements {
			if el.Visible(ctx) {
				return &locator.Result{
					ResolutionID: res.ResolutionID,
					Elements:     []locator.Element{el},
					Expression:   res.Expression,
					Index:        res.Index,
					Origin:       res.Origin,
					Attempts:     res.Attempts,
				}, nil
			}
		}
		return nil, fmt.Errorf("%w: %s matched %d", ErrNotVisible, res.Expression, len(res.Elements))
	})
	if err != nil {
		return nil, err
	}
	return res.First(), nil
}

func (f *Finder) poll(ctx context.Context, scope locator.Context, req locator.Request, accept func(*locator.Result) (*locator.Result, error)) (*locator.Result, error) {
	start := time.Now()
	logger := f.logger.With(zap.Stringer("key", req.Key))

	attempt := func(r locator.Request) (*locator.Result, error) {
		res, err := f.resolver.Resolve(ctx, scope, r)
		if err != nil {
			return nil, err
		}
		return accept(res)
	}

	if f.cfg.Timeout <= 0 {
		return attempt(req)
	}

	quiet := req
	quiet.DisableLearning = true
	quiet.DisablePersist = true
	tries := 0
	res, err := backoff.RetryNotifyWithData(func() (*locator.Result, error) {
		tries++
		res, err := attempt(quiet)
		if err != nil && !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return res, err
	}, f.newBackOff(ctx), func(err error, next time.Duration) {
		logger.Debug("Element not ready, retrying.", zap.Error(err), zap.Duration("next", next))
	})
	if err == nil {
		if res.Index == 0 || req.DisablePersist {
			return res, nil
		}
		confirm := req
		confirm.DisableLearning = true
		confirmed, cerr := attempt(confirm)
		if cerr != nil {
			logger.Debug("Healed match did not hold, not persisting.",
				zap.Stringer("expression", res.Expression), zap.Error(cerr))
			return res, nil
		}
		return confirmed, nil
	}
	if ctx.Err() != nil || !errors.Is(err, locator.ErrNotFound) || req.DisableLearning {
		return nil, err
	}

	// Last chance with learning enabled as configured.
	logger.Debug("Polling exhausted, final attempt.", zap.Int("tries", tries), zap.Duration("elapsed", time.Since(start)))
	return attempt(req)
}

func retryable(err error) bool {
	return errors.Is(err, locator.ErrNotFound) || errors.Is(err, ErrNotVisible)
}
