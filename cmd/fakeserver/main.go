package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vovakirdan/wirechat-client/internal/fakeserver"
	"github.com/vovakirdan/wirechat-client/internal/log"
)

func main() {
	addr := flag.String("addr", ":8000", "HTTP listen address")
	topics := flag.String("topics", "general,random", "comma-separated initial topics")
	users := flag.String("users", "", "comma-separated user:password pairs accepted by /login")
	emotes := flag.String("emotes", "heart,smile,wave", "comma-separated emote names to serve")
	logLevel := flag.String("log-level", "info", "log level")
	readHeaderTimeout := flag.Duration("read-header-timeout", 5*time.Second, "HTTP read header timeout")
	shutdownTimeout := flag.Duration("shutdown-timeout", 5*time.Second, "graceful shutdown timeout")
	flag.Parse()

	logger := log.New(*logLevel, os.Stderr)

	srv := fakeserver.New(logger, splitList(*topics)...)
	for _, name := range splitList(*emotes) {
		srv.AddEmote(name, []byte(name))
	}
	for _, pair := range splitList(*users) {
		user, pass, ok := strings.Cut(pair, ":")
		if !ok {
			logger.Fatal().Str("pair", pair).Msg("users must be user:password")
		}
		if err := srv.AddUser(user, pass); err != nil {
			logger.Fatal().Err(err).Msg("failed to add user")
		}
	}

	server := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: *readHeaderTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	logger.Info().Str("addr", *addr).Strs("topics", srv.Topics()).Msg("fake wirechat server listening")

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Fatal().Err(err).Msg("server exited with error")
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
		defer cancel()
		logger.Info().Msg("shutting down http server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown failed")
		}
		<-serverErr
	}
	logger.Info().Msg("server stopped")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
