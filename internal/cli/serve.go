package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"healthwatch/internal/httpx"
	"healthwatch/internal/logging"
	"healthwatch/internal/monitor"
	"healthwatch/internal/server"
)

var flagAddr string

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", ":8787", "listen address for the status server")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Probe the fleet continuously and serve live status over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		params, services, err := loadSetup(cmd)
		if err != nil {
			return err
		}
		initLogging(params.Debug)
		logger := logging.Logger()
		logParams(logger, params)

		pool := httpx.NewPool(httpx.PoolOptions{}, params.Insecure)
		proxies := httpx.NewProxyCache(httpx.PoolOptions{})

		mon := monitor.New(params, services, pool, proxies, logger)
		srv := server.New(flagAddr, mon, logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		mon.Start()
		logger.Info("serving fleet status", "addr", flagAddr, "services", len(services))

		err = srv.Run()
		mon.Stop()
		pool.Close()
		proxies.Close()
		pool.Destroy()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}
