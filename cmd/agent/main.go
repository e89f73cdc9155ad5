// Command agent is a tool-augmented chat agent with long-term memory.
package main

import (
	"fmt"
	"os"

	"github.com/petasbytes/toolchat/internal/config"
	"github.com/petasbytes/toolchat/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

// flags holds persistent flag values; only flags the user set override config.
type flags struct {
	model        string
	memory       string
	conversation string
	profile      string
	logLevel     string
	tokenBudget  int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:           "agent",
		Short:         "Chat agent with tools and long-term memory",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&f.model, "model", "", "model name (AGT_MODEL)")
	pf.StringVar(&f.memory, "memory-backend", "", "memory backend: file, sqlite or memory (AGT_MEMORY_BACKEND)")
	pf.StringVar(&f.conversation, "conversation", "", "conversation snapshot path; empty string disables saving (AGT_CONVERSATION_PATH)")
	pf.StringVar(&f.profile, "profile", "", "YAML agent profile (AGT_PROFILE)")
	pf.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error (AGT_LOG_LEVEL)")
	pf.IntVar(&f.tokenBudget, "token-budget", 0, "per-request input token budget, 0 = off (AGT_TOKEN_BUDGET)")

	root.AddCommand(newChatCmd(f), newMemoryCmd(f), newStatusCmd(f))
	return root
}

// load resolves configuration for cmd and installs the global logger.
func load(cmd *cobra.Command, f *flags) (*config.Config, *zap.Logger, func(), error) {
	var opts []config.Option
	set := cmd.Flags().Changed
	if set("model") {
		opts = append(opts, config.WithModel(f.model))
	}
	if set("memory-backend") {
		opts = append(opts, config.WithMemoryBackend(f.memory))
	}
	if set("conversation") {
		opts = append(opts, config.WithConversationPath(f.conversation))
	}
	if set("profile") {
		opts = append(opts, config.WithProfile(f.profile))
	}
	if set("log-level") {
		opts = append(opts, config.WithLogLevel(f.logLevel))
	}
	if set("token-budget") {
		opts = append(opts, config.WithTokenBudget(f.tokenBudget))
	}

	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, restore, err := logging.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logging: %w", err)
	}
	cleanup := func() {
		_ = logger.Sync()
		restore()
	}
	return cfg, logger, cleanup, nil
}
