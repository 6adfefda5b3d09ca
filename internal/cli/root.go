// Package cli wires the probe engine to its command surface.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"healthwatch/internal/errs"
)

var (
	flagConfig      string
	flagInterval    string
	flagTimeout     string
	flagRetries     int
	flagConcurrency int
	flagProxy       string
	flagHeaders     []string
	flagMissing     string
	flagOut         string
	flagInsecure    bool
	flagDebug       bool
)

var rootCmd = &cobra.Command{
	Use:   "healthwatch",
	Short: "Parallel health-probe supervisor for a fleet of HTTP services",
	Long: `healthwatch repeatedly probes the health endpoints of a declared
service fleet, normalizes every response to ok/degraded/down, and
exposes the aggregate as a one-shot report, a terminal dashboard, or a
Prometheus textfile.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "healthwatch.yaml", "path to the fleet configuration file")
	pf.StringVar(&flagInterval, "interval", "", "probe interval, e.g. 15s")
	pf.StringVar(&flagTimeout, "timeout", "", "per-probe timeout, e.g. 3s")
	pf.IntVar(&flagRetries, "retries", 0, "re-attempts after a failed probe")
	pf.IntVar(&flagConcurrency, "concurrency", 0, "max in-flight probes (0 = unlimited)")
	pf.StringVar(&flagProxy, "proxy", "", "proxy URL for outbound probes")
	pf.StringArrayVar(&flagHeaders, "headers", nil, "extra request header 'Name: Value' (repeatable)")
	pf.StringVar(&flagMissing, "missing-status", "", "status for 2xx responses without one (degraded|down)")
	pf.StringVar(&flagOut, "out", "", "output format (json|ndjson)")
	pf.BoolVar(&flagInsecure, "insecure", false, "skip TLS certificate verification")
	pf.BoolVar(&flagDebug, "debug", false, "log one structured record per request")
}

// exitError carries a specific process exit code through cobra.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit %d", e.code) }

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			return exit.code
		}
		var usage *errs.UsageError
		if errors.As(err, &usage) {
			fmt.Fprintln(os.Stderr, "error:", usage.Error())
			return errs.ExitUsage
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		if errs.KindOf(err) == errs.KindInternal {
			return errs.ExitInternal
		}
		// cobra's own parse failures are usage errors.
		return errs.ExitUsage
	}
	return 0
}
