package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/dgallion1/sitegest/internal/answer"
	"github.com/dgallion1/sitegest/internal/chat"
)

func newAskCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ask",
		Short: "Ask questions answered from the indexed site content",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateAsk(); err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return a.runChat(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func (a *app) runChat(ctx context.Context, in io.Reader, out io.Writer) error {
	search := a.indexClient()
	defer search.Close()
	claude := answer.NewClaudeClient(a.cfg.AnthropicAPIKey, a.cfg.AnthropicModel)
	defer claude.Close()

	return chat.NewSession(search, claude, in, out, a.log).Run(ctx)
}
