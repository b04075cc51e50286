package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-client/internal/app"
	"github.com/vovakirdan/wirechat-client/internal/config"
	"github.com/vovakirdan/wirechat-client/internal/log"
)

type globalFlags struct {
	configPath string
	server     string
	username   string
	token      string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "wirechat-client:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "wirechat-client",
		Short:         "Terminal client for wirechat topics",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to config file (default ./wirechat-client.yaml)")
	root.PersistentFlags().StringVar(&flags.server, "server", "", "server base URL, e.g. http://localhost:8000")
	root.PersistentFlags().StringVar(&flags.username, "username", "", "local username (overrides the saved login)")
	root.PersistentFlags().StringVar(&flags.token, "token", "", "credential sent on the chat stream")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "debug, info, warn, error or disabled")

	chat := newChatCmd(flags)
	root.RunE = chat.RunE
	root.AddCommand(
		chat,
		newTopicsCmd(flags),
		newEmotesCmd(flags),
		newLoginCmd(flags),
		newSignupCmd(flags),
		newLogoutCmd(flags),
		newWhoamiCmd(flags),
	)
	return root
}

// loadConfig resolves configuration: defaults < file < env < flags.
func loadConfig(flags *globalFlags) (config.Config, string, error) {
	bootLog := log.New("warn", os.Stderr)
	cfg, path, err := config.Load(bootLog, flags.configPath)
	if err != nil {
		return cfg, path, err
	}
	cfg.UpdateFrom(config.Config{
		ServerURL: flags.server,
		Username:  flags.username,
		Token:     flags.token,
		LogLevel:  flags.logLevel,
	})
	return cfg, path, nil
}

// openApp builds the application. When toFile is set, logs go to the
// configured log file so the terminal UI keeps the screen.
func openApp(flags *globalFlags, toFile bool) (*app.App, *zerolog.Logger, func(), error) {
	cfg, path, err := loadConfig(flags)
	if err != nil {
		return nil, nil, nil, err
	}

	var (
		out     io.Writer = os.Stderr
		closers []func()
	)
	if toFile && cfg.LogFile != "" {
		f, err := log.OpenFile(cfg.LogFile)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closers = append(closers, func() { _ = f.Close() })
	}
	logger := log.New(cfg.LogLevel, out)
	logger.Debug().Str("config", path).Str("server", cfg.ServerURL).Msg("config loaded")

	a, err := app.New(cfg, logger)
	if err != nil {
		for _, c := range closers {
			c()
		}
		return nil, nil, nil, err
	}
	cleanup := func() {
		_ = a.Close()
		for _, c := range closers {
			c()
		}
	}
	return a, logger, cleanup, nil
}
