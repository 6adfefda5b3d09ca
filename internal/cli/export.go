package cli

import (
	"bytes"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"healthwatch/internal/errs"
	"healthwatch/internal/httpx"
	"healthwatch/internal/logging"
	"healthwatch/internal/models"
	"healthwatch/internal/monitor"
	"healthwatch/internal/report"
)

var (
	flagExportFile string
	flagWatch      bool
)

func init() {
	exportCmd.Flags().StringVar(&flagExportFile, "file", "", "write the textfile here instead of stdout")
	exportCmd.Flags().BoolVar(&flagWatch, "watch", false, "keep probing and rewrite the file every cycle")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Probe the fleet and emit Prometheus textfile metrics",
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
		defer pool.Destroy()
		defer proxies.Close()

		mon := monitor.New(params, services, pool, proxies, logger)

		if !flagWatch {
			agg := mon.RunCycle(cmd.Context())
			if err := emitTextfile(agg); err != nil {
				return err
			}
			if code := agg.Status.ExitCode(); code != 0 {
				return &exitError{code: code}
			}
			return nil
		}

		if flagExportFile == "" {
			return errs.Usagef("--watch requires --file")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		mon.Subscribe(func(agg models.AggregateResult) {
			if err := emitTextfile(agg); err != nil {
				logger.Error("write export file", "error", err)
			}
		})
		mon.Start()
		<-ctx.Done()
		mon.Stop()
		return nil
	},
}

func emitTextfile(agg models.AggregateResult) error {
	if flagExportFile == "" {
		return report.WritePrometheus(os.Stdout, agg)
	}
	var buf bytes.Buffer
	if err := report.WritePrometheus(&buf, agg); err != nil {
		return err
	}
	return report.WriteFileAtomic(flagExportFile, buf.Bytes())
}
