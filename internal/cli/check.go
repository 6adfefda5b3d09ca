package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"healthwatch/internal/httpx"
	"healthwatch/internal/logging"
	"healthwatch/internal/monitor"
	"healthwatch/internal/report"
)

func init() {
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe the fleet once and print a report",
	RunE: func(cmd *cobra.Command, args []string) error {
		params, services, err := loadSetup(cmd)
		if err != nil {
			return err
		}
		initLogging(params.Debug)
		logParams(logging.Logger(), params)

		pool := httpx.NewPool(httpx.PoolOptions{}, params.Insecure)
		proxies := httpx.NewProxyCache(httpx.PoolOptions{})
		defer pool.Close()
		defer proxies.Close()

		mon := monitor.New(params, services, pool, proxies, logging.Logger())
		agg := mon.RunCycle(cmd.Context())

		switch params.OutputFormat {
		case "json":
			err = report.WriteJSON(os.Stdout, agg)
		case "ndjson":
			err = report.WriteNDJSON(os.Stdout, agg)
		default:
			err = report.WriteText(os.Stdout, agg)
		}
		if err != nil {
			return err
		}

		if code := agg.Status.ExitCode(); code != 0 {
			return &exitError{code: code}
		}
		return nil
	},
}

func initLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logging.Init(level, os.Stderr)
}
