// Package matching provides the matcher/grouper engine at the heart of the
// comms pipeline. It partitions the user dataset into deployment groups and
// enriches each group with contacts and CC addresses harvested from the
// report dataset.
package matching

import (
	"sort"
	"strings"

	"github.com/rs/zerolog"

	perrors "p0comms/pkg/errors"
	"p0comms/pkg/tabular"
)

// ErrJoinColumnMissing is the only fatal matching condition: the user
// dataset has no recognizable deployment column, so no groups can be built.
var ErrJoinColumnMissing = perrors.NewJoinColumnMissingError(tabular.DeploymentAliases)

// Contact is a primary contact harvested from the report dataset.
// Within a group, contact emails are unique.
type Contact struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// UnknownContactName is the placeholder used when the report dataset carries
// no name column, or the cell is empty.
const UnknownContactName = "Unknown Contact"

// MatchGroup holds everything derived for one canonical deployment key.
// Groups are immutable once Match returns.
type MatchGroup struct {
	// Key is the canonical (trimmed, lowercased) deployment value.
	Key string `json:"key"`

	// Label is the first-seen raw deployment value, trimmed but with its
	// original casing. It is what humans see in subjects and filenames.
	Label string `json:"label"`

	// ImpactRows are the user-dataset rows belonging to this deployment,
	// untouched and in source order.
	ImpactRows []tabular.Row `json:"impact_rows"`

	// Contacts are deduplicated by trimmed email, first seen wins.
	Contacts []Contact `json:"contacts"`

	// CCEmails is the deduplicated union of contact emails and account
	// manager emails. Dedup is on the trimmed, case-preserved string.
	CCEmails map[string]struct{} `json:"-"`
}

func (g *MatchGroup) hasContact(email string) bool {
	for _, c := range g.Contacts {
		if c.Email == email {
			return true
		}
	}
	return false
}

// CCList returns the CC set as a sorted slice for deterministic output.
func (g *MatchGroup) CCList() []string {
	out := make([]string, 0, len(g.CCEmails))
	for email := range g.CCEmails {
		out = append(out, email)
	}
	sort.Strings(out)
	return out
}

// MatchResult maps canonical keys to groups. Keys preserves first-seen
// order from the user dataset so downstream processing is deterministic.
type MatchResult struct {
	Keys   []string               `json:"keys"`
	Groups map[string]*MatchGroup `json:"groups"`

	// Statistics
	RowsGrouped       int `json:"rows_grouped"`
	ReportRowsMatched int `json:"report_rows_matched"`
	ContactsFound     int `json:"contacts_found"`

	Warnings []string `json:"warnings,omitempty"`
}

// Engine builds match results from the two datasets. It is stateless and
// side-effect free apart from logging.
type Engine struct {
	logger zerolog.Logger
}

// NewEngine creates a matcher/grouper engine.
func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{logger: logger}
}

// Match joins the user dataset against the report dataset on the normalized
// deployment key.
//
// The user dataset is partitioned into groups first; the report dataset is
// then scanned once to enrich each group with contacts and CC emails. A
// malformed report value skips only its own contribution. The single fatal
// condition is a user dataset without a deployment column.
func (e *Engine) Match(user, report *tabular.Dataset) (*MatchResult, error) {
	joinCol, ok := tabular.ResolveColumn(user.Headers, tabular.DeploymentAliases...)
	if !ok {
		return nil, ErrJoinColumnMissing
	}
	e.logger.Debug().Str("column", joinCol).Msg("resolved user dataset join column")

	result := &MatchResult{
		Keys:   make([]string, 0),
		Groups: make(map[string]*MatchGroup),
	}

	// Partition user rows by canonical key, keeping source order both
	// across groups (first seen) and within each group.
	for _, row := range user.Rows {
		raw := row.Get(joinCol)
		key := NormalizeKey(raw)

		group, ok := result.Groups[key]
		if !ok {
			group = &MatchGroup{
				Key:      key,
				Label:    strings.TrimSpace(raw),
				Contacts: make([]Contact, 0),
				CCEmails: make(map[string]struct{}),
			}
			result.Groups[key] = group
			result.Keys = append(result.Keys, key)
		}
		group.ImpactRows = append(group.ImpactRows, row)
		result.RowsGrouped++
	}

	e.enrichFromReport(result, report)

	e.logger.Info().
		Int("rows", result.RowsGrouped).
		Int("groups", len(result.Keys)).
		Int("contacts", result.ContactsFound).
		Msg("matching complete")

	return result, nil
}

// enrichFromReport scans the report dataset once and fills each group's
// contact list and CC set. A report without a deployment column degrades
// every group to empty enrichment, which is a warning rather than an error.
func (e *Engine) enrichFromReport(result *MatchResult, report *tabular.Dataset) {
	if report == nil {
		return
	}

	depCol, ok := tabular.ResolveColumn(report.Headers, tabular.ReportDeploymentColumn)
	if !ok {
		warn := perrors.NewReportColumnMissingError(tabular.ReportDeploymentColumn)
		result.Warnings = append(result.Warnings, warn.Message)
		e.logger.Warn().Msg(warn.Message)
		return
	}

	emailCol, hasEmail := tabular.ResolveColumn(report.Headers, tabular.EmailColumn)
	nameCol, hasName := tabular.ResolveColumn(report.Headers, tabular.NameColumn)
	amCol, hasAM := tabular.ResolveColumn(report.Headers, tabular.AccountManagerEmailColumn)
	if !hasEmail {
		warn := perrors.NewReportColumnMissingError(tabular.EmailColumn)
		result.Warnings = append(result.Warnings, warn.Message)
		e.logger.Warn().Msg(warn.Message)
	}

	// Index report rows by canonical key, source order preserved per key.
	byKey := make(map[string][]tabular.Row)
	for _, row := range report.Rows {
		key := NormalizeKey(row.Get(depCol))
		byKey[key] = append(byKey[key], row)
	}

	for _, key := range result.Keys {
		group := result.Groups[key]
		for _, row := range byKey[key] {
			result.ReportRowsMatched++

			if hasEmail {
				if added := harvestContact(group, row, emailCol, nameCol, hasName); added {
					result.ContactsFound++
				}
			}
			if hasAM {
				harvestAccountManagers(group, row.Get(amCol))
			}
		}
	}
}

// harvestContact pulls one primary contact out of a report row. The email
// must contain "@"; it is trimmed but deliberately not lowercased, so two
// casings of one address remain distinct entries in the CC set. Reports true
// when a new contact was appended.
func harvestContact(group *MatchGroup, row tabular.Row, emailCol, nameCol string, hasName bool) bool {
	raw := row.Get(emailCol)
	if !strings.Contains(raw, "@") {
		return false
	}
	email := strings.TrimSpace(raw)

	name := UnknownContactName
	if hasName {
		if n := row.Get(nameCol); n != "" {
			name = n
		}
	}

	added := false
	if !group.hasContact(email) {
		group.Contacts = append(group.Contacts, Contact{Email: email, Name: name})
		added = true
	}
	// The CC set takes the email unconditionally, duplicate contact or not.
	group.CCEmails[email] = struct{}{}
	return added
}

// harvestAccountManagers splits a multi-valued account manager cell on
// semicolons, commas and spaces, keeping only pieces that look like emails.
// These only feed the CC set, never the contact list.
func harvestAccountManagers(group *MatchGroup, raw string) {
	if raw == "" {
		return
	}
	cleaned := strings.NewReplacer(";", ",", " ", ",").Replace(raw)
	for _, piece := range strings.Split(cleaned, ",") {
		piece = strings.TrimSpace(piece)
		if strings.Contains(piece, "@") {
			group.CCEmails[piece] = struct{}{}
		}
	}
}
