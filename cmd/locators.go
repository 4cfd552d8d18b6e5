package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-locator/internal/config"
	"github.com/xkilldash9x/scalpel-locator/internal/locator"
	"github.com/xkilldash9x/scalpel-locator/internal/observability"
	"github.com/xkilldash9x/scalpel-locator/internal/store"
)

// openStore is swapped in tests.
var openStore = store.Open

func newLocatorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locators",
		Short: "Read and edit configured locators",
	}
	cmd.AddCommand(newLocatorsGetCmd(), newLocatorsSetCmd(), newLocatorsListCmd())
	return cmd
}

func newLocatorsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get NAMESPACE KEY",
		Short: "Print the configured value of a locator",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st store.Store) error {
				value, ok, err := st.Get(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("locator %s/%s is not set", args[0], args[1])
				}
				fmt.Fprintln(cmd.OutOrStdout(), value)
				return nil
			})
		},
	}
}

func newLocatorsSetCmd() *cobra.Command {
	var comment string

	cmd := &cobra.Command{
		Use:   "set NAMESPACE KEY VALUE",
		Short: "Store a locator value",
		Long: `Stores VALUE under NAMESPACE/KEY. VALUE may hold several expressions
separated by '|'; they are tried in order.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, key, value := args[0], args[1], args[2]
			if len(locator.ParseChain(value)) == 0 {
				return fmt.Errorf("%w: no expressions in %q", locator.ErrInvalidChain, value)
			}
			return withStore(cmd, func(ctx context.Context, st store.Store) error {
				if err := st.Set(ctx, ns, key, value, comment); err != nil {
					return err
				}
				observability.GetLogger().Info("Locator stored.",
					zap.String("namespace", ns), zap.String("key", key), zap.String("value", value))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "comment stored alongside the value")
	return cmd
}

func newLocatorsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list NAMESPACE",
		Short: "Print every locator in a namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st store.Store) error {
				entries, err := st.List(ctx, args[0])
				if err != nil {
					return err
				}
				printEntries(cmd.OutOrStdout(), entries)
				return nil
			})
		},
	}
}

func printEntries(out io.Writer, entries map[string]string) {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "%s = %s\n", k, entries[k])
	}
}

// withStore opens the configured store for the duration of fn.
func withStore(cmd *cobra.Command, fn func(context.Context, store.Store) error) error {
	ctx := cmd.Context()
	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return err
	}
	return useStore(ctx, cfg, fn)
}

func useStore(ctx context.Context, cfg *config.Config, fn func(context.Context, store.Store) error) error {
	st, closeStore, err := openStore(ctx, cfg.Store, observability.GetLogger())
	if err != nil {
		return fmt.Errorf("failed to open locator store: %w", err)
	}
	defer closeStore()
	return fn(ctx, st)
}
