package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-go-golems/forkchat/pkg/server"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(settings)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					log.Warn().Err(err).Msg("error while closing")
				}
			}()

			srv, err := server.NewServer(a.chats,
				server.WithPrompts(a.prompts),
				server.WithProviders(a.registry),
				server.WithSubscriber(a.bus),
				server.WithSummarizer(a.summarizer),
				server.WithCORSOrigins(settings.Server.CORSOrigins...),
			)
			if err != nil {
				return err
			}

			httpServer := &http.Server{
				Addr:              settings.Server.Address,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				log.Info().Str("address", httpServer.Addr).Str("storage", settings.Storage.Backend).Msg("Starting forkchat server")
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return errors.Wrap(err, "http server failed")
				}
				return nil
			})
			eg.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				log.Info().Msg("Shutting down forkchat server")
				return httpServer.Shutdown(shutdownCtx)
			})
			return eg.Wait()
		},
	}
	cmd.Flags().String("address", ":8080", "Address to listen on")
	return cmd
}
