package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/sitegest/internal/answer"
	"github.com/dgallion1/sitegest/internal/api"
	"github.com/dgallion1/sitegest/internal/pipeline"
)

func newServeCmd(a *app) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service that queues crawl and ingest passes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Port = port
			}
			if err := a.cfg.ValidateServe(); err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (default $PORT)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg, log := a.cfg, a.log

	c, err := a.openCorpus()
	if err != nil {
		return err
	}
	index := a.indexClient()
	defer index.Close()

	// Answer latency stats are only reported when a model is configured.
	var claude *answer.ClaudeClient
	if cfg.AnthropicAPIKey != "" {
		claude = answer.NewClaudeClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		defer claude.Close()
	}

	runner := pipeline.NewRunner(a.crawlDriver(c), a.ingestDriver(index, c), cfg.MaxQueueSize, cfg.RunTTL, log)
	runner.Start(ctx)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewServer(runner, c.pages, c.chunks, claude, log, cfg),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting sitegest", "port", cfg.Port, "mode", cfg.Mode())
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		runner.Stop()
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "error", err)
	}
	runner.Stop()
	return nil
}
