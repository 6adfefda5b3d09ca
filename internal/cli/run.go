package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"healthwatch/internal/httpx"
	"healthwatch/internal/logging"
	"healthwatch/internal/models"
	"healthwatch/internal/monitor"
	"healthwatch/internal/server"
	"healthwatch/internal/tui"
)

var (
	flagListen string
	flagNoUI   bool
)

func init() {
	runCmd.Flags().StringVar(&flagListen, "listen", "", "also serve live status on this address")
	runCmd.Flags().BoolVar(&flagNoUI, "no-ui", false, "disable the terminal dashboard")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Probe the fleet continuously with a terminal dashboard",
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

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var srv *server.Server
		if flagListen != "" {
			srv = server.New(flagListen, mon, logger)
			go func() {
				if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("status server failed", "error", err)
				}
			}()
		}

		mon.Start()
		logger.Info("monitoring fleet", "services", len(services), "interval", params.Interval)

		useUI := !flagNoUI && isatty.IsTerminal(os.Stdout.Fd())
		if useUI {
			// The dashboard owns the terminal until the user quits.
			uiErr := tui.Run(mon)
			shutdown(mon, srv, pool, proxies)
			return uiErr
		}

		mon.Subscribe(logAggregate(logger))
		<-ctx.Done()
		shutdown(mon, srv, pool, proxies)
		return nil
	},
}

// logAggregate is the dashboard-less fallback: one log line per cycle.
func logAggregate(logger *slog.Logger) func(models.AggregateResult) {
	return func(agg models.AggregateResult) {
		attrs := []any{
			"status", string(agg.Status),
			"services", len(agg.Results),
			"took", agg.CompletedAt.Sub(agg.StartedAt).Round(time.Millisecond).String(),
		}
		if !agg.Latency.Empty {
			attrs = append(attrs, "p50_ms", agg.Latency.P50, "p95_ms", agg.Latency.P95)
		}
		logger.Info("cycle complete", attrs...)
	}
}

func shutdown(mon *monitor.Monitor, srv *server.Server, pool *httpx.Pool, proxies *httpx.ProxyCache) {
	mon.Stop()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	pool.Close()
	proxies.Close()
	pool.Destroy()
}
