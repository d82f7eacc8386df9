package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Wyydra/duo/internal/adapter/driven/discovery"
	repo "github.com/Wyydra/duo/internal/adapter/driven/persistence/memory"
	handler "github.com/Wyydra/duo/internal/adapter/driving/http"
	"github.com/Wyydra/duo/internal/config"
	"github.com/Wyydra/duo/internal/core/service"
	"github.com/Wyydra/duo/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var opts config.ServerOptions

var rootCmd = &cobra.Command{
	Use:   "duo-server",
	Short: "Pairs strangers for one-to-one chat and relays their video call signaling",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadServer(opts)
		if err != nil {
			return err
		}
		logging.Init(cfg.LogLevel, cfg.LogJSON)
		return run(cfg)
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&opts.Addr, "addr", "", "listen address (env DUO_ADDR, default "+config.DefaultAddr+")")
	f.StringVar(&opts.StaticDir, "static", "", "directory served at / (env DUO_STATIC_DIR)")
	f.StringVar(&opts.RingTimeout, "ring-timeout", "", "how long an unanswered call rings (env DUO_RING_TIMEOUT, default 30s)")
	f.IntVar(&opts.SendBuffer, "send-buffer", 0, "outbound frames queued per connection (env DUO_SEND_BUFFER)")
	f.Int64Var(&opts.MaxMessageSize, "max-message-size", 0, "largest inbound frame in bytes (env DUO_MAX_MESSAGE_SIZE)")
	f.BoolVar(&opts.MDNS, "mdns", false, "advertise the server over mDNS (env DUO_MDNS)")
	f.StringVar(&opts.LogLevel, "log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
	f.BoolVar(&opts.LogJSON, "log-json", false, "emit JSON logs instead of console output")
}

func run(cfg *config.Server) error {
	rooms := repo.NewRoomRepository()
	registry := service.NewRegistry()
	matcher := service.NewMatcher(registry, rooms)

	chatService := service.NewChatService(registry, rooms)
	callService := service.NewCallService(registry, rooms, cfg.RingTimeout)
	dispatcher := service.NewDispatcher(registry, matcher, rooms, chatService, callService)
	h := handler.NewHandler(dispatcher, cfg)

	go matcher.Run()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Dur("ring_timeout", cfg.RingTimeout).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	if cfg.MDNS {
		port, err := cfg.Port()
		if err != nil {
			return err
		}
		host, _ := os.Hostname()
		adv, err := discovery.Advertise("duo on "+host, port, []string{"path=/ws"})
		if err != nil {
			log.Warn().Err(err).Msg("mDNS advertisement disabled")
		} else {
			defer adv.Shutdown()
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	}
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	matcher.Stop()
	log.Info().Msg("Server exited")
	return nil
}

func main() {
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
