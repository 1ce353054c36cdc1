// Package workflow orchestrates one comms batch end to end: fetch the
// report, match it against the user dataset, and open one ticket per group.
package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"p0comms/internal/matching"
	"p0comms/internal/routing"
	"p0comms/internal/ticketing"
	perrors "p0comms/pkg/errors"
	"p0comms/pkg/tabular"
)

// PlaceholderDeployment is the token in subject/body templates replaced by
// each group's human-readable deployment label.
const PlaceholderDeployment = "[Deployment Name]"

// DefaultSubject and DefaultBody are used when the caller supplies none.
const DefaultSubject = "Impact Report for " + PlaceholderDeployment

const DefaultBody = `Dear team,

We identified an issue affecting your deployment and are actively remediating the impacted records.

Please find the attached impact list for ` + PlaceholderDeployment + `.

Don't hesitate to reach back with any question, suggestion or update.

All the best,

Support Team`

// ReportJob is the external analytics report collaborator.
type ReportJob interface {
	Trigger(ctx context.Context) (string, error)
	Poll(ctx context.Context, runToken string) error
	FetchResult(ctx context.Context) (string, error)
}

// TicketCreator is the support-desk collaborator.
type TicketCreator interface {
	CreateTicket(ctx context.Context, t ticketing.Ticket) (int64, error)
}

// RunRequest is one batch run's input.
type RunRequest struct {
	// UserCSV is the raw user dataset.
	UserCSV string

	// Subject and Body templates; empty means the defaults.
	Subject string
	Body    string

	TestMode  bool
	TestEmail string
}

// GroupResult is the terminal outcome for one deployment group.
type GroupResult struct {
	Deployment string         `json:"deployment"`
	Status     routing.Status `json:"status"`
	TicketID   int64          `json:"ticket_id,omitempty"`
}

// RunSummary is the always-complete outcome of a run: one entry per group,
// even under partial failure.
type RunSummary struct {
	RunID uuid.UUID `json:"run_id"`

	Results []GroupResult `json:"results"`

	// Statistics carried over from matching.
	RowsGrouped   int      `json:"rows_grouped"`
	Groups        int      `json:"groups"`
	ContactsFound int      `json:"contacts_found"`
	Warnings      []string `json:"warnings,omitempty"`
}

// Runner wires the collaborators around the pure matching/routing core.
// Groups are processed strictly sequentially; one group's ticket failure
// never aborts the rest of the batch.
type Runner struct {
	Report  ReportJob
	Tickets TicketCreator
	Logger  zerolog.Logger
}

// NewRunner creates a batch runner.
func NewRunner(report ReportJob, tickets TicketCreator, logger zerolog.Logger) *Runner {
	return &Runner{Report: report, Tickets: tickets, Logger: logger}
}

// Run executes one batch. Fatal errors (unreadable CSVs, report job
// failure, missing join column) abort the run; everything else degrades to
// a per-group status in the summary.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*RunSummary, error) {
	opts := routing.Options{TestMode: req.TestMode, TestEmail: req.TestEmail}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.New()
	logger := r.Logger.With().Str("run_id", runID.String()).Logger()

	userDS, err := tabular.DecodeString(req.UserCSV)
	if err != nil {
		return nil, fmt.Errorf("failed to parse user dataset: %w", err)
	}
	logger.Info().Int("rows", userDS.Len()).Msg("user dataset loaded")

	reportDS, err := r.fetchReport(ctx, logger)
	if err != nil {
		return nil, err
	}

	result, err := matching.NewEngine(logger).Match(userDS, reportDS)
	if err != nil {
		return nil, fmt.Errorf("no matching data found: %w", err)
	}

	subject := req.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	body := req.Body
	if body == "" {
		body = DefaultBody
	}

	summary := &RunSummary{
		RunID:         runID,
		Results:       make([]GroupResult, 0, len(result.Keys)),
		RowsGrouped:   result.RowsGrouped,
		Groups:        len(result.Keys),
		ContactsFound: result.ContactsFound,
		Warnings:      result.Warnings,
	}

	for _, key := range result.Keys {
		group := result.Groups[key]
		summary.Results = append(summary.Results, r.processGroup(ctx, logger, group, userDS.Headers, subject, body, opts))
	}

	logger.Info().Int("groups", summary.Groups).Msg("run complete")
	return summary, nil
}

func (r *Runner) fetchReport(ctx context.Context, logger zerolog.Logger) (*tabular.Dataset, error) {
	runToken, err := r.Report.Trigger(ctx)
	if err != nil {
		return nil, perrors.NewReportJobError("trigger", err)
	}
	if err := r.Report.Poll(ctx, runToken); err != nil {
		return nil, perrors.NewReportJobError("poll", err)
	}
	content, err := r.Report.FetchResult(ctx)
	if err != nil {
		return nil, perrors.NewReportJobError("fetch", err)
	}

	ds, err := tabular.DecodeString(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse report dataset: %w", err)
	}
	logger.Info().Int("rows", ds.Len()).Msg("report dataset loaded")
	return ds, nil
}

func (r *Runner) processGroup(ctx context.Context, logger zerolog.Logger, group *matching.MatchGroup,
	headers []string, subject, body string, opts routing.Options) GroupResult {

	res := GroupResult{Deployment: group.Label}

	decision := routing.Decide(group, opts)
	if decision.Skipped {
		logger.Warn().Str("deployment", group.Label).Msg("skipping group, no valid requester email")
		res.Status = routing.StatusSkipped
		return res
	}

	ticketSubject := strings.ReplaceAll(subject, PlaceholderDeployment, group.Label)
	ticketBody := strings.ReplaceAll(body, PlaceholderDeployment, group.Label)
	if decision.TestModeNote != "" {
		ticketBody += "\n\n" + decision.TestModeNote
	}

	ticket := ticketing.Ticket{
		Subject:        ticketSubject,
		Description:    ticketBody,
		RequesterEmail: decision.Requester,
		CCEmails:       decision.CCEmails,
		Attachments: []ticketing.Attachment{{
			Filename:    AttachmentName(group.Label),
			Content:     []byte(tabular.Encode(headers, group.ImpactRows)),
			ContentType: "text/csv",
		}},
	}

	id, err := r.Tickets.CreateTicket(ctx, ticket)
	if err != nil {
		logger.Error().Err(perrors.NewTicketCreationError(group.Label, err)).Msg("ticket creation failed")
		res.Status = routing.StatusFailed
		return res
	}

	res.Status = routing.StatusSuccess
	res.TicketID = id
	return res
}

// AttachmentName builds the impact-list filename for a deployment label,
// with spaces and slashes replaced by underscores.
func AttachmentName(label string) string {
	return "Impact_List_" + strings.NewReplacer(" ", "_", "/", "_").Replace(label) + ".csv"
}
