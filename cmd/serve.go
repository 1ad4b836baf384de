package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deepgram/wayfinder/internal/api/v1/routes"
	"github.com/deepgram/wayfinder/internal/config"
	"github.com/deepgram/wayfinder/internal/services"
	"github.com/deepgram/wayfinder/pkg/logger"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reference backend",
	Long: `Run the backend the client talks to: token issuance, the chat WebSocket,
history and enhanced search.

Replies stream from OpenAI when OPENAI_KEY is set and echo the message
otherwise. History is kept in Redis when REDIS_URL answers, in memory otherwise.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		l := logger.For(logger.APP)

		svc, err := services.InitializeServices(cfg.Server)
		if err != nil {
			return err
		}
		defer svc.Close()

		if config.UsingDefaultJWTSecret() {
			l.Warn().Msg("JWT_SECRET not set, signing tokens with the development key")
		}

		server := &http.Server{
			Addr:              ":" + cfg.Server.Port,
			Handler:           routes.NewRouter(svc),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errs := make(chan error, 1)
		go func() {
			l.Info().Str("addr", server.Addr).Msg("Server starting")
			errs <- server.ListenAndServe()
		}()

		select {
		case err := <-errs:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		l.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
