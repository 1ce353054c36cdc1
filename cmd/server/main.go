// Package main provides the standalone comms API server, configured purely
// from the environment for container deployments. The p0comms CLI's serve
// command is the flag-driven equivalent.
package main

import (
	"p0comms/api"
	"p0comms/internal/report"
	"p0comms/internal/ticketing"
	"p0comms/internal/workflow"
	"p0comms/pkg/platform"
)

func main() {
	logger := platform.InitLogger(platform.GetEnv("P0COMMS_LOG_LEVEL", "info"), false)

	reportURL := platform.GetEnv("REPORT_BASE_URL", "")
	reportToken := platform.GetEnv("REPORT_AUTH_TOKEN", "")
	if reportURL == "" || reportToken == "" {
		logger.Fatal().Msg("REPORT_BASE_URL and REPORT_AUTH_TOKEN are required")
	}

	ticketCfg := ticketing.DefaultConfig()
	if path := platform.GetEnv("TICKET_CONFIG", ""); path != "" {
		loaded, err := ticketing.LoadConfig(path)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load ticketing config")
		}
		ticketCfg = loaded
	}
	if domain := platform.GetEnv("DESK_DOMAIN", ""); domain != "" {
		ticketCfg.Domain = domain
	}
	ticketCfg.APIKey = platform.GetEnv("DESK_API_KEY", "")
	if ticketCfg.APIKey == "" || (ticketCfg.Domain == "" && ticketCfg.BaseURL == "") {
		logger.Fatal().Msg("DESK_DOMAIN and DESK_API_KEY are required")
	}

	runner := workflow.NewRunner(
		report.NewClient(reportURL, reportToken, logger),
		ticketing.NewClient(ticketCfg, logger),
		logger,
	)

	cfg := api.DefaultConfig()
	cfg.Port = platform.GetEnvInt("PORT", 8080)
	cfg.APIKey = platform.GetEnv("API_KEY", "")

	if err := api.NewServer(runner, cfg, logger).StartWithGracefulShutdown(); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}
