package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"token-graph-lab/internal/analysis"
	"token-graph-lab/internal/config"
	"token-graph-lab/internal/domain"
	"token-graph-lab/internal/layout"
	"token-graph-lab/internal/records"
	"token-graph-lab/internal/reporting"
	"token-graph-lab/internal/storage/memory"
)

// Output file names written by the layout command.
const (
	nodesFile   = "nodes.csv"
	linksFile   = "links.csv"
	summaryFile = "summary.md"
)

// layoutOptions are the inputs of one layout run.
type layoutOptions struct {
	TokenID       string
	HoldersPath   string
	TransfersPath string
	PayloadPath   string
	OutputDir     string
	MaxNodes      int // < 0 keeps the configured budget
	MaxTicks      int
	Seed          int64
}

func newLayoutCmd(g *globals) *cobra.Command {
	opts := layoutOptions{}

	cmd := &cobra.Command{
		Use:   "layout TOKEN",
		Short: "Build, reduce and lay out the holder graph of a token",
		Long: `Builds the holder graph of TOKEN and writes nodes.csv, links.csv and
summary.md to the output directory.

Tables are read from --holders and --transactions (delimited text with a
header row), from a --payload JSON file as returned by the backend, or,
when neither is given, downloaded from the analysis backend.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.TokenID = args[0]
			if opts.OutputDir == "" {
				opts.OutputDir = g.file.Output.Dir
			}
			if opts.OutputDir == "" {
				opts.OutputDir = "output"
			}
			if opts.MaxTicks == 0 {
				opts.MaxTicks = g.file.Output.MaxTicks
			}

			cfg, err := g.pipelineConfig()
			if err != nil {
				return err
			}
			if opts.MaxNodes >= 0 {
				cfg.MaxNodes = opts.MaxNodes
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			var fetch datasetFetcher
			if opts.HoldersPath == "" && opts.PayloadPath == "" {
				client, err := g.client()
				if err != nil {
					return err
				}
				fetch = client
			}
			return runLayout(cmd.Context(), opts, cfg, fetch, g.logger, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.HoldersPath, "holders", "", "Holders table (delimited text)")
	flags.StringVar(&opts.TransfersPath, "transactions", "", "Transactions table (delimited text)")
	flags.StringVar(&opts.PayloadPath, "payload", "", "Backend visualize payload (JSON)")
	flags.StringVarP(&opts.OutputDir, "out", "o", "", "Output directory (default from config or \"output\")")
	flags.IntVar(&opts.MaxNodes, "max-nodes", -1, "Node budget, 0 disables reduction (default from config)")
	flags.IntVar(&opts.MaxTicks, "max-ticks", 0, "Layout tick limit, negative skips the layout")
	flags.Int64Var(&opts.Seed, "seed", 1, "Layout seed")
	cmd.MarkFlagsRequiredTogether("holders", "transactions")
	cmd.MarkFlagsMutuallyExclusive("holders", "payload")

	return cmd
}

// datasetFetcher downloads a dataset; satisfied by *analysis.Client.
type datasetFetcher interface {
	Dataset(ctx context.Context, tokenID string) (*domain.Dataset, error)
}

var _ datasetFetcher = (*analysis.Client)(nil)

func runLayout(ctx context.Context, opts layoutOptions, cfg config.PipelineConfig, fetch datasetFetcher, logger *zap.Logger, w io.Writer) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	ds, err := loadDataset(ctx, opts, fetch)
	if err != nil {
		return err
	}
	logger.Info("dataset loaded",
		zap.String("token", ds.TokenID),
		zap.Int("accounts", len(ds.Accounts)),
		zap.Int("transfers", len(ds.Transfers)),
	)

	datasets := memory.NewDatasetStore()
	transfers := memory.NewTransferStore()
	if err := datasets.Save(ctx, ds); err != nil {
		return fmt.Errorf("store dataset: %w", err)
	}
	if err := transfers.InsertBulk(ctx, ds.TokenID, ds.Transfers); err != nil {
		return fmt.Errorf("store transfers: %w", err)
	}

	reducerOpts := cfg.ReducerOptions()
	reducerOpts.Logger = logger
	gen := reporting.NewGenerator(datasets, transfers, reporting.Options{
		Reduce:   cfg.MaxNodes > 0,
		Reducer:  reducerOpts,
		Layout:   layout.Options{Seed: opts.Seed, Logger: logger},
		MaxTicks: opts.MaxTicks,
		Logger:   logger,
	})
	report, err := gen.Generate(ctx, ds.TokenID)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	files := map[string]string{
		nodesFile:   reporting.RenderNodesCSV(report.Nodes),
		linksFile:   reporting.RenderLinksCSV(report.Links),
		summaryFile: reporting.RenderMarkdown(report),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(opts.OutputDir, name), []byte(content), 0644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}

	printSummary(w, report, opts.OutputDir)
	return nil
}

// loadDataset reads local tables when given, otherwise fetches from the backend.
func loadDataset(ctx context.Context, opts layoutOptions, fetch datasetFetcher) (*domain.Dataset, error) {
	var holders, transfers records.Input
	switch {
	case opts.PayloadPath != "":
		data, err := os.ReadFile(opts.PayloadPath)
		if err != nil {
			return nil, err
		}
		payload, err := records.DecodePayload(data)
		if err != nil {
			return nil, err
		}
		holders, transfers = payload.Holders, payload.Transfers
	case opts.HoldersPath != "":
		h, err := os.ReadFile(opts.HoldersPath)
		if err != nil {
			return nil, err
		}
		t, err := os.ReadFile(opts.TransfersPath)
		if err != nil {
			return nil, err
		}
		holders, transfers = records.FromText(string(h)), records.FromText(string(t))
	default:
		if fetch == nil {
			return nil, errors.New("no input: give --holders and --transactions, --payload, or a backend")
		}
		return fetch.Dataset(ctx, opts.TokenID)
	}

	accounts, txs, err := records.Parse(holders, transfers)
	if err != nil {
		return nil, err
	}
	return &domain.Dataset{
		TokenID:   opts.TokenID,
		Accounts:  accounts,
		Transfers: txs,
		FetchedAt: fileTime(opts),
	}, nil
}

// fileTime uses the input's modification time as the fetch time.
func fileTime(opts layoutOptions) (t time.Time) {
	path := opts.PayloadPath
	if path == "" {
		path = opts.HoldersPath
	}
	if info, err := os.Stat(path); err == nil {
		t = info.ModTime().UTC()
	}
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t
}

func printSummary(w io.Writer, r *reporting.Report, dir string) {
	s := r.Summary
	fmt.Fprintf(w, "%s %s\n\n", brand.Sprint("graphctl"), r.TokenID)
	fmt.Fprintf(w, "  Accounts:        %d (%d zero balance)\n", s.Accounts, s.ZeroBalance)
	fmt.Fprintf(w, "  Transfers:       %d (%d dropped, %d self)\n", s.Transfers, s.DroppedTransfers, s.SelfTransfers)
	fmt.Fprintf(w, "  Nodes:           %d (%d aggregated)\n", s.Nodes, s.AggregateNodes)
	fmt.Fprintf(w, "  Links:           %d\n", s.Links)
	fmt.Fprintf(w, "  Total supply:    %s\n", reporting.FormatNumber(s.TotalSupply))
	if s.TreasuryID != "" {
		fmt.Fprintf(w, "  Treasury:        %s (%s)\n", s.TreasuryID, reporting.FormatPercent(s.TreasuryPercentage))
	} else {
		fmt.Fprintf(w, "  Treasury:        %s\n", subtle.Sprint("none"))
	}

	l := r.Layout
	switch {
	case l.Ticks == 0:
		fmt.Fprintf(w, "  Layout:          %s\n", subtle.Sprint("skipped"))
	case l.Settled:
		fmt.Fprintf(w, "  Layout:          %s after %d ticks\n", good.Sprint("settled"), l.Ticks)
	default:
		fmt.Fprintf(w, "  Layout:          %s after %d ticks\n", warn.Sprint(l.State), l.Ticks)
	}

	fmt.Fprintln(w)
	for _, name := range []string{nodesFile, linksFile, summaryFile} {
		fmt.Fprintf(w, "  %s %s\n", good.Sprint("wrote"), filepath.Join(dir, name))
	}
}
