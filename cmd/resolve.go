package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-locator/internal/browser/chrome"
	"github.com/xkilldash9x/scalpel-locator/internal/browser/static"
	"github.com/xkilldash9x/scalpel-locator/internal/config"
	"github.com/xkilldash9x/scalpel-locator/internal/finder"
	"github.com/xkilldash9x/scalpel-locator/internal/locator"
	"github.com/xkilldash9x/scalpel-locator/internal/observability"
	"github.com/xkilldash9x/scalpel-locator/internal/reporting"
	"github.com/xkilldash9x/scalpel-locator/internal/store"
)

type resolveOptions struct {
	namespace   string
	key         string
	fallbacks   []string
	description string
	htmlPath    string
	url         string
	noLearn     bool
	noPersist   bool
	wait        time.Duration
	waitSet     bool
	report      string
	output      string
}

func newResolveCmd() *cobra.Command {
	var opts resolveOptions

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a locator against a page, healing it if it no longer matches",
		Long: `Looks up NAMESPACE/KEY in the locator store and tries the stored expressions,
then each --fallback, then selectors generated from --describe. When none match
and learning is enabled, a locator is derived from the first visible element.
A locator found by anything other than the first expression is written back to
the store.

--html reads a saved document (or fetches a URL without running scripts).
--url drives a headless Chrome.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			opts.waitSet = cmd.Flags().Changed("wait")
			return runResolve(ctx, cmd.OutOrStdout(), cfg, observability.GetLogger(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.namespace, "namespace", "n", "default", "locator namespace (one file or table partition per page)")
	f.StringVarP(&opts.key, "key", "k", "", "locator key (required)")
	f.StringArrayVarP(&opts.fallbacks, "fallback", "f", nil, "fallback expression, tried after the stored value (repeatable)")
	f.StringVarP(&opts.description, "describe", "d", "", "human description used to generate fallbacks, e.g. \"Add to cart button\"")
	f.StringVar(&opts.htmlPath, "html", "", "HTML file or URL to resolve against without a browser")
	f.StringVar(&opts.url, "url", "", "URL to open in headless Chrome")
	f.BoolVar(&opts.noLearn, "no-learn", false, "do not learn a locator when every strategy fails")
	f.BoolVar(&opts.noPersist, "no-persist", false, "do not write a healed locator back to the store")
	f.DurationVar(&opts.wait, "wait", 0, "keep retrying for this long (default: finder.timeout for --url, a single attempt for --html)")
	f.StringVar(&opts.report, "report", "", "write a healing report in this format (json or xml)")
	f.StringVarP(&opts.output, "output", "o", "", "report output path (default stdout)")

	_ = cmd.MarkFlagRequired("key")
	cmd.MarkFlagsMutuallyExclusive("html", "url")
	cmd.MarkFlagsOneRequired("html", "url")
	return cmd
}

func runResolve(ctx context.Context, out io.Writer, cfg *config.Config, logger *zap.Logger, opts resolveOptions) error {
	var fallbacks []locator.Expression
	for _, raw := range opts.fallbacks {
		fallbacks = append(fallbacks, locator.ParseChain(raw)...)
	}

	return useStore(ctx, cfg, func(ctx context.Context, st store.Store) error {
		scope, closeScope, err := openScope(ctx, cfg, opts, logger)
		if err != nil {
			return err
		}
		defer closeScope()

		resolver := locator.NewResolver(st, logger, locator.Options{
			AutoUpdate:        cfg.Healing.AutoUpdate,
			Learning:          cfg.Healing.Learning,
			TestHookAttribute: cfg.Healing.TestHookAttribute,
		})

		fcfg := cfg.Finder
		switch {
		case opts.waitSet:
			fcfg.Timeout = opts.wait
		case opts.url == "":
			// A saved document never changes.
			fcfg.Timeout = 0
		}

		req := locator.Request{
			Key:             locator.Key{Namespace: opts.namespace, Name: opts.key},
			Fallbacks:       fallbacks,
			Description:     opts.description,
			DisableLearning: opts.noLearn,
			DisablePersist:  opts.noPersist,
		}
		res, resolveErr := finder.New(resolver, fcfg, logger).Find(ctx, scope, req)
		if resolveErr == nil {
			printResult(out, res)
		}

		if opts.report != "" {
			if err := writeReport(logger, resolver.Stats(), opts.report, opts.output); err != nil {
				return errors.Join(resolveErr, err)
			}
		}
		if resolveErr != nil {
			return fmt.Errorf("failed to resolve %s: %w", req.Key, resolveErr)
		}
		return nil
	})
}

func openScope(ctx context.Context, cfg *config.Config, opts resolveOptions, logger *zap.Logger) (locator.Context, func(), error) {
	if opts.htmlPath != "" {
		doc, err := static.Load(opts.htmlPath)
		if err != nil {
			return nil, nil, err
		}
		return doc, func() {}, nil
	}

	b, err := chrome.Launch(ctx, cfg.Browser, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := b.Navigate(ctx, opts.url); err != nil {
		_ = b.Close()
		return nil, nil, err
	}
	return b.Page(), func() { _ = b.Close() }, nil
}

func printResult(out io.Writer, res *locator.Result) {
	fmt.Fprintf(out, "locator:  %s\n", res.Expression)
	fmt.Fprintf(out, "strategy: %s\n", res.Expression.Strategy)
	fmt.Fprintf(out, "origin:   %s (step %d)\n", res.Origin, res.Index)
	fmt.Fprintf(out, "healed:   %t\n", !res.WasOriginal())
	fmt.Fprintf(out, "matches:  %d\n", len(res.Elements))
	for _, el := range res.Elements {
		if se, ok := el.(*static.Element); ok {
			fmt.Fprintf(out, "  %s\n", se.XPath())
		}
	}
}

func writeReport(logger *zap.Logger, stats locator.Stats, format, outputPath string) error {
	reporter, err := reporting.New(format, outputPath)
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}
	defer func() {
		if err := reporter.Close(); err != nil {
			logger.Warn("Failed to close reporter cleanly.", zap.Error(err))
		}
	}()

	if err := reporter.Write(stats); err != nil {
		return fmt.Errorf("failed to write healing report: %w", err)
	}
	if outputPath != "" {
		logger.Info("Healing report written.", zap.String("path", outputPath))
	}
	return nil
}
