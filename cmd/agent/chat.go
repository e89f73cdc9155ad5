package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newChatCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat (Ctrl-C to quit)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Basic env check (SDK also reads API key)
			if os.Getenv("ANTHROPIC_API_KEY") == "" {
				return errors.New("missing ANTHROPIC_API_KEY; export it before running")
			}
			cfg, logger, cleanup, err := load(cmd, f)
			if err != nil {
				return err
			}
			defer cleanup()

			// Set up graceful shutdown on Ctrl-C (SIGINT) / SIGTERM
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, closeStore, err := openStore(cfg, logger)
			if err != nil {
				return fmt.Errorf("open memory: %w", err)
			}
			defer closeStore()

			m := serveMetrics(ctx, cfg.MetricsAddr, logger)
			sess, err := newSession(cfg, logger, store, newBackend(cfg, logger), m)
			if err != nil {
				return err
			}
			return repl(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), func(ctx context.Context, line string) (string, error) {
				reply, err := sess.runner.RunTurn(ctx, line)
				if err != nil {
					return "", err
				}
				if err := saveSnapshot(cfg, sess.conv); err != nil {
					logger.Warn("conversation not saved", zap.Error(err))
				}
				return reply.Text, nil
			})
		},
	}
}

type turnFunc func(ctx context.Context, line string) (string, error)

// repl reads lines from in until EOF or ctx ends and prints each reply.
// A failed turn is reported and the loop continues.
func repl(ctx context.Context, in io.Reader, out, errOut io.Writer, turn turnFunc) error {
	// stdin reader goroutine -> lines into channel
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	fmt.Fprintln(out, "Chat with Claude (Ctrl-C to quit)")
	for {
		fmt.Fprint(out, "\u001b[94mYou\u001b[0m: ")
		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "\nExiting...")
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			select {
			case err := <-scanErr:
				if err != nil {
					return fmt.Errorf("read input: %w", err)
				}
			default:
			}
			return nil
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		text, err := turn(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Fprintln(out, "\nExiting...")
				return nil
			}
			fmt.Fprintf(errOut, "error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "\u001b[93mClaude\u001b[0m: %s\n", text)
	}
}
