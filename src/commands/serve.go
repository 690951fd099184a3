package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/username/stakeledger/src/handlers"
	"github.com/username/stakeledger/src/logger"
	"golang.org/x/time/rate"
)

func newServeCommand(a *app) *cobra.Command {
	var port, origins string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port == "" {
				port = a.cfg.Port
			}
			var allowed []string
			for _, o := range strings.Split(origins, ",") {
				if o = strings.TrimSpace(o); o != "" {
					allowed = append(allowed, o)
				}
			}

			limiter := rate.NewLimiter(rate.Every(100*time.Millisecond), 30)
			h := handlers.NewPortfolioHandler(a.portfolio, a.imports, a.ledger)

			serverAddr := ":" + port
			server := &http.Server{
				Addr:         serverAddr,
				Handler:      handlers.NewRouter(h, limiter, allowed...),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 30 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.L.Info("Server starting", "address", serverAddr)
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			logger.L.Info("Shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (default PORT)")
	cmd.Flags().StringVar(&origins, "cors-origins", "", "comma separated origins allowed to call the API")
	return cmd
}
