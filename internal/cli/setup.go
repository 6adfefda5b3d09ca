package cli

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"healthwatch/internal/config"
	"healthwatch/internal/errs"
	"healthwatch/internal/models"
	"healthwatch/internal/redact"
)

// parseHeaderFlags turns repeated 'Name: Value' flags into a header
// map. The separator is required and the name must be non-empty.
func parseHeaderFlags(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, found := strings.Cut(h, ":")
		if !found {
			return nil, errs.Usagef("invalid --headers value %q: expected 'Name: Value'", h)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, errs.Usagef("invalid --headers value %q: empty header name", h)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

// logParams emits a diagnostic snapshot of the effective parameters.
// Header values and proxy credentials are masked before they reach the
// log.
func logParams(logger *slog.Logger, params models.Params) {
	if !params.Debug {
		return
	}
	logger.Debug("effective parameters",
		"interval", params.Interval.String(),
		"timeout", params.Timeout.String(),
		"retries", params.Retries,
		"concurrency", params.Concurrency,
		"headers", redact.Values(params.Headers),
		"proxy", redact.URLCredentials(params.Proxy),
		"insecure", params.Insecure,
		"missing_status", string(params.MissingStatus),
	)
}

// loadSetup builds the parameter bundle and fleet: defaults, overlaid
// by the config file, overlaid by explicitly set flags.
func loadSetup(cmd *cobra.Command) (models.Params, []models.Service, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return models.Params{}, nil, err
	}

	params := models.DefaultParams()
	if cfg.Interval > 0 {
		params.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		params.Timeout = cfg.Timeout
	}
	if cfg.Retries != nil {
		params.Retries = *cfg.Retries
	}
	if cfg.Concurrency != nil {
		params.Concurrency = *cfg.Concurrency
	}
	params.Headers = cfg.Headers
	params.Proxy = cfg.Proxy
	params.Insecure = cfg.Insecure

	flags := cmd.Flags()
	if flags.Changed("interval") {
		d, err := models.ParseDuration(flagInterval)
		if err != nil {
			return models.Params{}, nil, errs.Usagef("--interval: %v", err)
		}
		params.Interval = d
	}
	if flags.Changed("timeout") {
		d, err := models.ParseDuration(flagTimeout)
		if err != nil {
			return models.Params{}, nil, errs.Usagef("--timeout: %v", err)
		}
		params.Timeout = d
	}
	if flags.Changed("retries") {
		if flagRetries < 0 {
			return models.Params{}, nil, errs.Usagef("--retries must be >= 0, got %d", flagRetries)
		}
		params.Retries = flagRetries
	}
	if flags.Changed("concurrency") {
		if flagConcurrency < 0 {
			return models.Params{}, nil, errs.Usagef("--concurrency must be >= 0, got %d", flagConcurrency)
		}
		params.Concurrency = flagConcurrency
	}
	if flags.Changed("proxy") {
		params.Proxy = flagProxy
	}
	if flags.Changed("insecure") {
		params.Insecure = flagInsecure
	}
	if flags.Changed("debug") {
		params.Debug = flagDebug
	}
	if flagMissing != "" {
		status, ok := models.ParseStatus(flagMissing)
		if !ok || status == models.StatusOK {
			return models.Params{}, nil, errs.Usagef("--missing-status must be degraded or down, got %q", flagMissing)
		}
		params.MissingStatus = status
	}
	if flagOut != "" {
		if flagOut != "json" && flagOut != "ndjson" {
			return models.Params{}, nil, errs.Usagef("--out must be json or ndjson, got %q", flagOut)
		}
		params.OutputFormat = flagOut
	}

	headerFlags, err := parseHeaderFlags(flagHeaders)
	if err != nil {
		return models.Params{}, nil, err
	}
	if len(headerFlags) > 0 {
		merged := make(map[string]string, len(params.Headers)+len(headerFlags))
		for k, v := range params.Headers {
			merged[k] = v
		}
		for k, v := range headerFlags {
			merged[k] = v
		}
		params.Headers = merged
	}

	return params, cfg.Services, nil
}
