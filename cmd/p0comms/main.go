// p0comms - impact comms automation
//
// Usage:
//   p0comms run --input impacted.csv [options]
//   p0comms serve [--port 8080]
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"p0comms/api"
	"p0comms/internal/report"
	"p0comms/internal/routing"
	"p0comms/internal/ticketing"
	"p0comms/internal/workflow"
	"p0comms/pkg/platform"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	app := &cli.App{
		Name:    "p0comms",
		Usage:   "Report-driven impact comms - match impacted deployments and open support tickets",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"P0COMMS_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "report-url",
				Usage:   "Report base URL, e.g. https://analytics.example.com/api/org/reports/abc123",
				EnvVars: []string{"REPORT_BASE_URL"},
			},
			&cli.StringFlag{
				Name:    "report-token",
				Usage:   "Base64-encoded basic auth token for the report API",
				EnvVars: []string{"REPORT_AUTH_TOKEN"},
			},
			&cli.StringFlag{
				Name:    "desk-domain",
				Usage:   "Support desk domain, e.g. support.example.com",
				EnvVars: []string{"DESK_DOMAIN"},
			},
			&cli.StringFlag{
				Name:    "desk-key",
				Usage:   "Support desk API key",
				EnvVars: []string{"DESK_API_KEY"},
			},
			&cli.StringFlag{
				Name:    "ticket-config",
				Usage:   "Path to YAML ticketing config (group, responder, custom fields)",
				EnvVars: []string{"TICKET_CONFIG"},
			},
		},

		Commands: []*cli.Command{
			runCommand(),
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// RUN COMMAND
// =============================================================================

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run one comms batch: fetch report, match, open tickets",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "input",
				Aliases:  []string{"i"},
				Usage:    "Path to the user CSV of impacted rows",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "subject",
				Usage: "Subject template ([Deployment Name] is substituted per group)",
			},
			&cli.StringFlag{
				Name:  "body-file",
				Usage: "Path to a body template file",
			},
			&cli.BoolFlag{
				Name:  "test-mode",
				Usage: "Redirect every ticket to --test-email, keeping real contacts on CC",
			},
			&cli.StringFlag{
				Name:  "test-email",
				Usage: "Requester address used in test mode",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Match and route, but log tickets instead of creating them",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "table",
				Usage:   "Output format (table, json)",
			},
		},
		Action: runBatch,
	}
}

func runBatch(c *cli.Context) error {
	logger := platform.InitLogger(c.String("log-level"), true)

	userCSV, err := os.ReadFile(c.String("input"))
	if err != nil {
		return fmt.Errorf("failed to read input CSV: %w", err)
	}

	body := ""
	if path := c.String("body-file"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read body template: %w", err)
		}
		body = string(raw)
	}

	opts := routing.Options{TestMode: c.Bool("test-mode"), TestEmail: c.String("test-email")}
	if err := opts.Validate(); err != nil {
		return err
	}

	if c.String("report-url") == "" || c.String("report-token") == "" {
		return fmt.Errorf("--report-url and --report-token are required")
	}

	tickets, err := ticketClient(c, logger)
	if err != nil {
		return err
	}

	runner := workflow.NewRunner(
		report.NewClient(c.String("report-url"), c.String("report-token"), logger),
		tickets,
		logger,
	)

	summary, err := runner.Run(context.Background(), workflow.RunRequest{
		UserCSV:   string(userCSV),
		Subject:   c.String("subject"),
		Body:      body,
		TestMode:  opts.TestMode,
		TestEmail: opts.TestEmail,
	})
	if err != nil {
		return err
	}

	if c.String("format") == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	printSummary(summary)
	return nil
}

func ticketClient(c *cli.Context, logger zerolog.Logger) (workflow.TicketCreator, error) {
	if c.Bool("dry-run") {
		return &dryRunTickets{logger: logger}, nil
	}

	cfg := ticketing.DefaultConfig()
	if path := c.String("ticket-config"); path != "" {
		loaded, err := ticketing.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if domain := c.String("desk-domain"); domain != "" {
		cfg.Domain = domain
	}
	cfg.APIKey = c.String("desk-key")

	if cfg.Domain == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("--desk-domain (or base_url in --ticket-config) is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("--desk-key is required")
	}

	return ticketing.NewClient(cfg, logger), nil
}

// dryRunTickets logs what would be sent instead of calling the desk API.
type dryRunTickets struct {
	logger zerolog.Logger
}

func (d *dryRunTickets) CreateTicket(ctx context.Context, t ticketing.Ticket) (int64, error) {
	d.logger.Info().
		Str("subject", t.Subject).
		Str("requester", t.RequesterEmail).
		Strs("cc", t.CCEmails).
		Str("attachment", t.Attachments[0].Filename).
		Msg("dry-run: ticket not created")
	return 0, nil
}

func printSummary(summary *workflow.RunSummary) {
	fmt.Printf("\nRun %s: %d rows across %d groups, %d contacts found\n\n",
		summary.RunID, summary.RowsGrouped, summary.Groups, summary.ContactsFound)

	for _, w := range summary.Warnings {
		fmt.Printf("  ⚠️  %s\n", w)
	}

	for _, res := range summary.Results {
		switch res.Status {
		case routing.StatusSuccess:
			fmt.Printf("  ✅ %-30s %s (ticket %d)\n", res.Deployment, res.Status, res.TicketID)
		case routing.StatusSkipped:
			fmt.Printf("  ⚠️  %-30s %s\n", res.Deployment, res.Status)
		default:
			fmt.Printf("  ❌ %-30s %s\n", res.Deployment, res.Status)
		}
	}
	fmt.Println()
}

// =============================================================================
// SERVE COMMAND
// =============================================================================

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Value:   8080,
				Usage:   "Listen port",
				EnvVars: []string{"PORT"},
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "Require this X-API-Key header on /api/v1 routes",
				EnvVars: []string{"API_KEY"},
			},
		},
		Action: func(c *cli.Context) error {
			logger := platform.InitLogger(c.String("log-level"), false)

			if c.String("report-url") == "" || c.String("report-token") == "" {
				return fmt.Errorf("--report-url and --report-token are required")
			}
			tickets, err := ticketClient(c, logger)
			if err != nil {
				return err
			}

			runner := workflow.NewRunner(
				report.NewClient(c.String("report-url"), c.String("report-token"), logger),
				tickets,
				logger,
			)

			cfg := api.DefaultConfig()
			cfg.Port = c.Int("port")
			cfg.APIKey = c.String("api-key")

			return api.NewServer(runner, cfg, logger).StartWithGracefulShutdown()
		},
	}
}
