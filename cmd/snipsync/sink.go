// ABOUTME: The sink command runs a reference remote next to the embedded app shell
// ABOUTME: Point sync.url and origin.url at it to exercise the whole pipeline locally

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/snipsync/internal/assets"
	"github.com/2389/snipsync/internal/auth"
	"github.com/2389/snipsync/internal/config"
	"github.com/2389/snipsync/internal/remote"
)

func newSinkCmd() *cobra.Command {
	var addr, secret, level string
	cmd := &cobra.Command{
		Use:   "sink",
		Short: "Run a reference remote that accepts pushed snippets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				secret = os.Getenv("SNIPSYNC_TOKEN_SECRET")
			}
			logger := setupLogger(config.LoggingConfig{Level: level})

			var verifier auth.TokenVerifier
			if secret != "" {
				verifier = auth.NewDeviceTokens([]byte(secret))
			} else {
				logger.Warn("no token secret set, accepting unauthenticated pushes")
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           sinkHandler(remote.NewSink(verifier, logger)),
				ReadHeaderTimeout: 10 * time.Second,
			}

			green := color.New(color.FgGreen)
			green.Print("    ▶ ")
			fmt.Printf("Sink:      http://%s/v1/records\n", addr)
			green.Print("    ▶ ")
			fmt.Printf("App shell: http://%s/\n\n", addr)

			errCh := make(chan error, 1)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "listen", "127.0.0.1:7480", "address to listen on")
	cmd.Flags().StringVar(&secret, "secret", "", "device token secret (default $SNIPSYNC_TOKEN_SECRET)")
	cmd.Flags().StringVar(&level, "log-level", "info", "log level")
	return cmd
}

// sinkHandler serves the sink routes and the embedded app shell, so one
// process can stand in for both origin and remote.
func sinkHandler(sink *remote.Sink) http.Handler {
	api := sink.Handler()
	mux := http.NewServeMux()
	mux.Handle("/v1/", api)
	mux.Handle("/healthz", api)
	mux.Handle("/", assets.FileServer())
	return mux
}
