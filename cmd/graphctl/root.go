package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"token-graph-lab/internal/analysis"
	"token-graph-lab/internal/config"
	"token-graph-lab/internal/observability"
)

var (
	brand  = color.New(color.FgHiGreen, color.Bold)
	subtle = color.New(color.FgHiBlack)
	warn   = color.New(color.FgYellow)
	good   = color.New(color.FgGreen)
	bad    = color.New(color.FgRed)
)

// globals are the persistent flags shared by every command.
type globals struct {
	configPath string
	envFile    string
	backendURL string
	logLevel   string
	noColor    bool

	file   *config.File
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:           "graphctl",
		Short:         "Token holder graph layout and analysis client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if g.logger != nil {
				g.logger.Sync()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&g.configPath, "config", "graphctl.toml", "TOML config file (ignored when missing)")
	flags.StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.StringVar(&g.backendURL, "backend-url", "", "Analysis backend base URL (default from config or TGL_BACKEND_URL)")
	flags.StringVar(&g.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	flags.BoolVar(&g.noColor, "no-color", false, "Disable colored output")

	cmd.AddCommand(
		newLayoutCmd(g),
		newAnalyzeCmd(g),
		newStatusCmd(g),
	)
	return cmd
}

func (g *globals) init() error {
	if g.noColor {
		color.NoColor = true
	}
	if err := config.LoadDotEnv(g.envFile); err != nil {
		return err
	}
	file, err := config.LoadFile(g.configPath)
	if err != nil {
		return err
	}
	g.file = file

	logger, err := observability.NewLogger(observability.LoggerConfig{
		Level:   g.logLevel,
		Service: "graphctl",
	})
	if err != nil {
		return err
	}
	g.logger = logger
	return nil
}

// pipelineConfig resolves defaults, then the config file, then the
// environment.
func (g *globals) pipelineConfig() (config.PipelineConfig, error) {
	return config.FromEnv(g.file.Apply(config.Default()))
}

// client builds an analysis client, failing when no backend is configured.
func (g *globals) client() (*analysis.Client, error) {
	url := g.backendURL
	if url == "" {
		url = config.Getenv("TGL_BACKEND_URL", g.file.Backend.URL)
	}
	if url == "" {
		return nil, fmt.Errorf("no analysis backend: set --backend-url, TGL_BACKEND_URL or [backend] url")
	}

	opts := []analysis.ClientOption{analysis.WithLogger(g.logger.Named("analysis"))}
	if d := g.file.Backend.Timeout.Duration; d > 0 {
		opts = append(opts, analysis.WithTimeout(d))
	}
	if n := g.file.Backend.MaxRetries; n > 0 {
		opts = append(opts, analysis.WithMaxRetries(n))
	}
	return analysis.NewClient(url, opts...), nil
}

func (g *globals) pollInterval() time.Duration {
	if d := g.file.Backend.PollInterval.Duration; d > 0 {
		return d
	}
	return analysis.DefaultStatusInterval
}
