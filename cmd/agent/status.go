package main

import (
	"fmt"

	"github.com/petasbytes/toolchat/internal/tokens"
	"github.com/spf13/cobra"
)

func newStatusCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configured limits and the saved conversation's token usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, cleanup, err := load(cmd, f)
			if err != nil {
				return err
			}
			defer cleanup()

			conv, err := newConversation(cfg, tokens.NewCounter(), newComposer(cfg, nil, logger).Base(), logger)
			if err != nil {
				return err
			}
			st := conv.TokenStatus()
			out := cmd.OutOrStdout()
			if cfg.ProfileName != "" {
				fmt.Fprintf(out, "profile:             %s\n", cfg.ProfileName)
			}
			fmt.Fprintf(out, "model:               %s\n", cfg.Model)
			fmt.Fprintf(out, "memory backend:      %s\n", cfg.MemoryBackend)
			fmt.Fprintf(out, "conversation file:   %s\n", orNone(cfg.ConversationPath))
			fmt.Fprintf(out, "tokens:              %d / %d (%.1f%%)\n", st.Current, st.Max, st.UsagePercent)
			fmt.Fprintf(out, "warning threshold:   %.0f%%\n", st.WarningThreshold*100)
			fmt.Fprintf(out, "summarize threshold: %.0f%%\n", st.SummarizeThreshold*100)
			fmt.Fprintf(out, "turns:               %d\n", st.Turns)
			fmt.Fprintf(out, "summarized:          %d time(s)\n", st.SummarizedCount)
			return nil
		},
	}
}

func orNone(s string) string {
	if s == "" {
		return "(not saved)"
	}
	return s
}
