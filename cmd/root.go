package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-locator/internal/config"
	"github.com/xkilldash9x/scalpel-locator/internal/observability"
)

type configKeyType struct{}

var configKey = configKeyType{}

// NewRootCommand builds the command tree. Each call returns a fresh tree so
// flag state never leaks between invocations.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:          "scalpel-locator",
		Short:        "Resolves element locators and heals them when the page changes.",
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := bindGlobalFlags(cmd, v); err != nil {
				return err
			}
			if err := initializeConfig(v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting scalpel-locator", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	root.PersistentFlags().String("store-dir", "", "directory holding locator files (file store)")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(
		newVersionCmd(),
		newParseCmd(),
		newResolveCmd(),
		newLocatorsCmd(),
	)
	return root
}

// Execute runs the command tree with os.Args. Cobra has already printed the
// error when one is returned.
func Execute(ctx context.Context) error {
	defer observability.Sync()
	return NewRootCommand().ExecuteContext(ctx)
}

func bindGlobalFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := cmd.Root().PersistentFlags()
	if err := v.BindPFlag("store.dir", flags.Lookup("store-dir")); err != nil {
		return err
	}
	return v.BindPFlag("logger.level", flags.Lookup("log-level"))
}

// initializeConfig reads the config file, if any, and environment overrides.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}
