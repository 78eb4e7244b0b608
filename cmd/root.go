// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/xkilldash9x/jobagent-cli/api/schemas"
	"github.com/xkilldash9x/jobagent-cli/internal/browser"
	"github.com/xkilldash9x/jobagent-cli/internal/browser/stealth"
	"github.com/xkilldash9x/jobagent-cli/internal/config"
	"github.com/xkilldash9x/jobagent-cli/internal/observability"
	"github.com/xkilldash9x/jobagent-cli/internal/runner"
	"github.com/xkilldash9x/jobagent-cli/internal/store"
	"github.com/xkilldash9x/jobagent-cli/internal/textgen"
	"go.uber.org/zap"
)

const envPrefix = "JOBAGENT"

// dependencies are the constructors commands use for external systems.
// Tests swap them for in-memory versions.
type dependencies struct {
	openStore  func(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (schemas.Store, error)
	newBrowser func(cfg *config.Config, logger *zap.Logger) runner.BrowserFactory
	newTextGen func(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (schemas.TextGenerator, error)
}

func defaultDependencies() dependencies {
	return dependencies{
		openStore: store.Open,
		newBrowser: func(cfg *config.Config, logger *zap.Logger) runner.BrowserFactory {
			return func(ctx context.Context) (schemas.Browser, error) {
				persona := stealth.DefaultPersona.WithOverrides(cfg.Browser.UserAgent, cfg.Browser.Timezone, cfg.Browser.Locale)
				c, err := browser.Launch(ctx, cfg.Browser, persona, logger)
				if err != nil {
					return nil, err
				}
				return c, nil
			}
		},
		newTextGen: func(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (schemas.TextGenerator, error) {
			return textgen.FromConfig(ctx, cfg, logger)
		},
	}
}

// cli is the state shared by the command tree of one invocation.
type cli struct {
	deps    dependencies
	v       *viper.Viper
	cfgFile string
	envFile string
	cfg     *config.Config
	logger  *zap.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(defaultDependencies())
}

func newRootCmd(deps dependencies) *cobra.Command {
	c := &cli{deps: deps, v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "jobagent",
		Short:         "jobagent applies to jobs on your behalf and verifies every submission.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.initialize()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&c.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	rootCmd.AddCommand(
		newRunCmd(c),
		newServeCmd(c),
		newApplicationsCmd(c),
		newGenerateCmd(c),
		newLogsCmd(c),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		observability.Sync()
		os.Exit(1)
	}
	observability.Sync()
}

// initialize loads .env, the config file and the environment, then sets up
// logging. Values already present in the environment win over .env.
func (c *cli) initialize() error {
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error loading %s: %w", c.envFile, err)
		}
	}

	config.SetDefaults(c.v)
	if c.cfgFile != "" {
		c.v.SetConfigFile(c.cfgFile)
	} else {
		c.v.AddConfigPath(".")
		c.v.SetConfigName("config")
		c.v.SetConfigType("yaml")
	}
	c.v.SetEnvPrefix(envPrefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	c.v.AutomaticEnv()

	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg, err := config.NewConfigFromViper(c.v)
	if err != nil {
		observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "jobagent"})
		return err
	}
	c.cfg = cfg

	observability.InitializeLogger(cfg.Logger)
	c.logger = observability.GetLogger()
	c.logger.Debug("Configuration loaded", zap.String("version", Version), zap.String("config", c.v.ConfigFileUsed()))
	return nil
}

// openStore opens the configured persistence backend.
func (c *cli) openStore(ctx context.Context) (schemas.Store, error) {
	s, err := c.deps.openStore(ctx, c.cfg.Database, c.logger)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", c.cfg.Database.Driver, err)
	}
	return s, nil
}

func closeStore(s schemas.Store, logger *zap.Logger) {
	if err := s.Close(); err != nil {
		logger.Warn("Failed to close store", zap.Error(err))
	}
}
