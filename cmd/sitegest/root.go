package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dgallion1/sitegest/internal/config"
)

// app carries what every subcommand needs. It is filled in by the root
// command's PersistentPreRunE.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	logFile io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var (
		configPath string
		dataDir    string
		logLevel   string
		logFormat  string
	)

	cmd := &cobra.Command{
		Use:   "sitegest",
		Short: "Incremental site crawler and chunk ingester",
		Long: `sitegest crawls websites into a content-addressed corpus of pages and
chunks, and submits chunks it has not submitted before to a search index.

Repeated runs only add what is new.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("data-dir") {
				cfg.DataDir = dataDir
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("log-format") {
				cfg.LogFormat = logFormat
			}
			log, closer, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a.cfg, a.log, a.logFile = cfg, log, closer
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logFile != nil {
				return a.logFile.Close()
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML config file (default $SITEGEST_CONFIG)")
	pf.StringVar(&dataDir, "data-dir", "", "directory holding pages, chunks and the ledger")
	pf.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&logFormat, "log-format", "", "json or text")

	cmd.AddCommand(newCrawlCmd(a))
	cmd.AddCommand(newIngestCmd(a))
	cmd.AddCommand(newRunCmd(a))
	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newAskCmd(a))
	return cmd
}

// newLogger builds the process logger. When cfg.LogFile is set, records go
// to both w and the file.
func newLogger(cfg config.Config, w io.Writer) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	if cfg.LogLevel != "" {
		if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			return nil, nil, fmt.Errorf("log level: %w", err)
		}
	}

	var closer io.Closer
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(w, f)
		closer = f
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch cfg.LogFormat {
	case "text":
		h = slog.NewTextHandler(w, opts)
	case "json", "":
		h = slog.NewJSONHandler(w, opts)
	default:
		if closer != nil {
			closer.Close()
		}
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}
	return slog.New(h), closer, nil
}
