package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/v0xg/mppreview/internal/config"
	"github.com/v0xg/mppreview/internal/gifgen"
	"github.com/v0xg/mppreview/internal/logging"
	"github.com/v0xg/mppreview/internal/preview"
	"github.com/v0xg/mppreview/internal/review"
)

// errPreviewFailed marks a run whose failures were already reported.
var errPreviewFailed = errors.New("preview failed")

type cli struct {
	cfg    config.Tool
	cfgErr error

	settle        time.Duration
	pause         time.Duration
	host          string
	readySelector string
	gifPath       string
	reviewer      string
	model         string
	closeTool     bool
	verbose       bool

	logger *zap.Logger
}

func main() {
	// Load .env file if present (silently ignore if not found)
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errPreviewFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	c.cfg, c.cfgErr = config.LoadTool()

	rootCmd := &cobra.Command{
		Use:   "mppreview <pagePath>[,<pagePath>...] [outputDir] [wsPort]",
		Short: "Capture screenshots and page data of WeChat mini-program pages",
		Long: `mppreview drives the WeChat DevTools automation endpoint to open
mini-program pages, save a screenshot and a JSON report of each page and
count its view, text, button and image elements.

Start the DevTools with automation enabled first:
  cli --auto <project path> --auto-port 9420

Examples:
  mppreview /pages/index/index
  mppreview /pages/index/index,/pages/profile/profile ./shots 9420`,
		Args:              cobra.RangeArgs(0, 3),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
		RunE:              c.run,
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	rootCmd.Flags().DurationVar(&c.settle, "settle", c.cfg.Settle, "Wait after navigation before capturing")
	rootCmd.Flags().DurationVar(&c.pause, "pause", c.cfg.Pause, "Pause between pages of a batch")
	rootCmd.PersistentFlags().StringVar(&c.host, "host", c.cfg.Host, "DevTools automation host")
	rootCmd.Flags().StringVar(&c.readySelector, "ready-selector", "", "Selector to wait for after the settle delay")
	rootCmd.Flags().StringVar(&c.gifPath, "gif", "", "Write a tour GIF of the captured screenshots to this file")
	rootCmd.Flags().StringVar(&c.reviewer, "review", c.cfg.ReviewProvider, "AI review provider: claude, openai (default: off)")
	rootCmd.Flags().StringVar(&c.model, "model", "", "Specific review model override")
	rootCmd.Flags().BoolVar(&c.closeTool, "close-tool", false, "Close the DevTools project after each page")
	rootCmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Show debug logs")

	rootCmd.AddCommand(newLaunchCmd(c))
	return rootCmd
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	if c.cfgErr != nil {
		return c.cfgErr
	}
	logger, err := logging.New(c.cfg.LogLevel, c.verbose)
	if err != nil {
		return err
	}
	c.logger = logger
	return nil
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}

	outputDir := c.cfg.OutputDir
	if len(args) > 1 {
		outputDir = args[1]
	}
	port := c.cfg.WSPort
	if len(args) > 2 {
		var ok bool
		if port, ok = config.ParsePort(args[2], c.cfg.WSPort); !ok {
			c.logger.Warn("invalid port, using default", zap.String("port", args[2]), zap.Int("default", port))
		}
	}

	opts := preview.Options{
		Host:          c.host,
		Settle:        c.settle,
		Pause:         c.pause,
		ReadySelector: c.readySelector,
		CloseTool:     c.closeTool,
		Out:           cmd.OutOrStdout(),
		Logger:        c.logger,
	}
	if c.reviewer != "" {
		provider, err := review.NewProvider(c.reviewer, c.model)
		if err != nil {
			return fmt.Errorf("review provider init failed: %w", err)
		}
		opts.Reviewer = provider
	}
	previewer := preview.New(opts)

	var report *preview.BatchReport
	if preview.IsBatch(args[0]) {
		reqs, err := preview.ParseBatch(args[0], outputDir, port)
		if err != nil {
			return err
		}
		report = previewer.Batch(cmd.Context(), reqs)
	} else {
		req, err := preview.NewRequest(args[0], outputDir, port)
		if err != nil {
			return err
		}
		report = &preview.BatchReport{Results: []preview.Result{previewer.Preview(cmd.Context(), req)}}
	}

	if c.gifPath != "" {
		if err := writeTour(cmd.OutOrStdout(), report.Screenshots(), c.gifPath); err != nil {
			return err
		}
	}

	if !report.AllSucceeded() {
		return errPreviewFailed
	}
	return nil
}

func writeTour(out io.Writer, screenshots []string, path string) error {
	if len(screenshots) == 0 {
		fmt.Fprintln(out, "⚠ No screenshots captured, skipping tour GIF")
		return nil
	}
	fmt.Fprintf(out, "→ Generating tour GIF (%d frames)... ", len(screenshots))
	size, err := gifgen.Generate(screenshots, path, gifgen.Options{})
	if err != nil {
		fmt.Fprintln(out, "failed")
		return fmt.Errorf("GIF generation failed: %w", err)
	}
	fmt.Fprintln(out, "done")
	fmt.Fprintf(out, "✓ Saved to %s (%.1f KB)\n", path, float64(size)/1024)
	return nil
}
