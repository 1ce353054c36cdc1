// Package errors provides severity-aware error types for the comms pipeline.
package errors

import "fmt"

// Severity indicates error impact level.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// PipelineError is a structured error with context. Only fatal errors abort
// a run; everything else degrades to a per-group status or a logged warning.
type PipelineError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	Deployment  string   `json:"deployment,omitempty"`
	Recoverable bool     `json:"recoverable"`
}

func (e *PipelineError) Error() string {
	if e.Deployment != "" {
		return fmt.Sprintf("[%s] %s: %s (deployment: %s)", e.Severity, e.Code, e.Message, e.Deployment)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Code, e.Message)
}

// Error codes
const (
	ErrCodeJoinColumnMissing   = "JOIN_COLUMN_MISSING"
	ErrCodeReportColumnMissing = "REPORT_COLUMN_MISSING"
	ErrCodeMalformedContact    = "MALFORMED_CONTACT_VALUE"
	ErrCodeNoRequesterEmail    = "NO_REQUESTER_EMAIL"
	ErrCodeTicketCreation      = "TICKET_CREATION_FAILED"
	ErrCodeReportJobFailed     = "REPORT_JOB_FAILED"
)

// NewJoinColumnMissingError creates the one fatal matching error: the user
// dataset carries no recognizable deployment column.
func NewJoinColumnMissingError(aliases []string) *PipelineError {
	return &PipelineError{
		Code:        ErrCodeJoinColumnMissing,
		Message:     fmt.Sprintf("no deployment column found in user dataset, expected one of: %v", aliases),
		Severity:    SeverityFatal,
		Recoverable: false,
	}
}

// NewReportColumnMissingError creates a non-fatal warning for a report
// dataset without a deployment column. Groups keep empty contact lists.
func NewReportColumnMissingError(column string) *PipelineError {
	return &PipelineError{
		Code:        ErrCodeReportColumnMissing,
		Message:     fmt.Sprintf("report dataset is missing the %q column, contact enrichment degraded", column),
		Severity:    SeverityWarning,
		Recoverable: true,
	}
}

// NewNoRequesterError marks a group that produced no usable requester email.
func NewNoRequesterError(deployment string) *PipelineError {
	return &PipelineError{
		Code:        ErrCodeNoRequesterEmail,
		Message:     "no valid requester email found for group",
		Severity:    SeverityWarning,
		Deployment:  deployment,
		Recoverable: true,
	}
}

// NewTicketCreationError wraps a ticketing collaborator failure for one group.
func NewTicketCreationError(deployment string, cause error) *PipelineError {
	return &PipelineError{
		Code:        ErrCodeTicketCreation,
		Message:     fmt.Sprintf("ticket creation failed: %v", cause),
		Severity:    SeverityError,
		Deployment:  deployment,
		Recoverable: true,
	}
}

// NewReportJobError wraps a fatal report-job collaborator failure.
func NewReportJobError(stage string, cause error) *PipelineError {
	return &PipelineError{
		Code:        ErrCodeReportJobFailed,
		Message:     fmt.Sprintf("report job %s failed: %v", stage, cause),
		Severity:    SeverityFatal,
		Recoverable: false,
	}
}
