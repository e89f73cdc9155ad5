package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/petasbytes/toolchat/internal/config"
	"github.com/petasbytes/toolchat/internal/conversation"
	"github.com/petasbytes/toolchat/internal/llm"
	"github.com/petasbytes/toolchat/internal/metrics"
	"github.com/petasbytes/toolchat/internal/prompt"
	"github.com/petasbytes/toolchat/internal/provider"
	"github.com/petasbytes/toolchat/internal/runner"
	"github.com/petasbytes/toolchat/internal/safety"
	"github.com/petasbytes/toolchat/internal/tokens"
	"github.com/petasbytes/toolchat/internal/windowing"
	"github.com/petasbytes/toolchat/memory"
	"github.com/petasbytes/toolchat/tools"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// openStore returns the configured memory backend and its closer.
func openStore(cfg *config.Config, logger *zap.Logger) (memory.Store, func() error, error) {
	opts := []memory.Option{memory.WithLogger(logger.Named("memory"))}
	switch cfg.MemoryBackend {
	case "sqlite":
		s, err := memory.NewSQLiteStore(cfg.MemorySQLite, opts...)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "memory":
		return memory.NewMemStore(opts...), func() error { return nil }, nil
	default:
		s, err := memory.NewFileStore(cfg.MemoryDir, opts...)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return nil }, nil
	}
}

// newComposer returns the prompt composer for cfg. Its Base is what the
// conversation stores and counts as the system prompt.
func newComposer(cfg *config.Config, store memory.Store, logger *zap.Logger) *prompt.Composer {
	return &prompt.Composer{
		Identity:     cfg.Identity,
		Capabilities: tools.Describe(tools.Registry()),
		Memory:       store,
		MemoryItems:  cfg.MemoryContextItems,
		Logger:       logger.Named("prompt"),
	}
}

// newConversation builds the session state, restoring the snapshot when one
// exists. The current system prompt and configured limits win over the snapshot's.
func newConversation(cfg *config.Config, counter tokens.Counter, system string, logger *zap.Logger) (*conversation.State, error) {
	conv, err := conversation.New(
		conversation.WithModel(cfg.Model),
		conversation.WithCounter(counter),
		conversation.WithLogger(logger.Named("conversation")),
		conversation.WithLimits(cfg.Limits()),
		conversation.WithKeepExchanges(cfg.KeepExchanges),
	)
	if err != nil {
		return nil, err
	}
	if cfg.ConversationPath != "" {
		snap, err := conversation.LoadSnapshot(cfg.ConversationPath)
		if err != nil {
			logger.Warn("ignoring unreadable conversation snapshot", zap.String("path", cfg.ConversationPath), zap.Error(err))
		} else if snap != nil {
			if err := conv.Restore(*snap); err != nil {
				logger.Warn("ignoring invalid conversation snapshot", zap.Error(err))
			}
		}
	}
	conv.SetSystemPrompt(system)
	if err := conv.SetLimits(cfg.Limits()); err != nil {
		return nil, err
	}
	return conv, nil
}

type session struct {
	runner *runner.Runner
	conv   *conversation.State
}

func newSession(cfg *config.Config, logger *zap.Logger, store memory.Store, backend llm.Backend, m *metrics.Collectors) (*session, error) {
	composer := newComposer(cfg, store, logger)
	conv, err := newConversation(cfg, tokens.NewCounter(), composer.Base(), logger)
	if err != nil {
		return nil, err
	}
	summarizer := conversation.BackendSummarizer{Backend: backend}
	exec := tools.NewExecutor(tools.Env{
		Memory:       store,
		Conversation: conv,
		Summarizer:   summarizer,
		Detector:     safety.NewKeywordDetector(),
	}, tools.Registry(), tools.WithLogger(logger.Named("tools")), tools.WithMetrics(m))
	r := runner.New(backend, conv, exec, composer,
		runner.WithSummarizer(summarizer),
		runner.WithLogger(logger.Named("runner")),
		runner.WithMetrics(m),
	)
	return &session{runner: r, conv: conv}, nil
}

func newBackend(cfg *config.Config, logger *zap.Logger) llm.Backend {
	return provider.NewAnthropic(
		provider.WithModel(cfg.Model),
		provider.WithMaxTokens(cfg.MaxResponseTokens),
		provider.WithTokenBudget(cfg.TokenBudget),
		provider.WithCounter(windowing.ModelCounter{Tokens: tokens.NewCounter(), Model: cfg.Model}),
		provider.WithLogger(logger.Named("provider")),
	)
}

// serveMetrics exposes /metrics on addr until ctx ends. An empty addr serves nothing.
func serveMetrics(ctx context.Context, addr string, logger *zap.Logger) *metrics.Collectors {
	if addr == "" {
		return nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewCollectors(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("metrics listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return m
}

func saveSnapshot(cfg *config.Config, conv *conversation.State) error {
	if cfg.ConversationPath == "" {
		return nil
	}
	if err := conversation.SaveSnapshot(cfg.ConversationPath, conv.Snapshot()); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}
