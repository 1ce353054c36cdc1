// Package routing decides, per matched group, who a ticket goes to and who
// is CC'd. It is pure: the ticketing collaborator performs the actual call.
package routing

import (
	"fmt"
	"strings"

	"p0comms/internal/matching"
)

// NoEmailSentinel marks placeholder contacts that carry no real address.
// Contacts with this email never become requesters.
const NoEmailSentinel = "no_email@example.com"

// Status is the terminal outcome for one group.
type Status string

const (
	StatusSuccess Status = "Success"
	StatusFailed  Status = "Failed"
	StatusSkipped Status = "Skipped (No Requester Email)"
)

// Options parameterize the routing policy. There is exactly one policy;
// test mode is an input to it, not a second copy.
type Options struct {
	// TestMode redirects every ticket to TestEmail as requester while
	// keeping the original contacts on CC, for safe dry-runs.
	TestMode  bool
	TestEmail string
}

// Validate checks that a usable test email accompanies test mode.
func (o Options) Validate() error {
	if o.TestMode && !strings.Contains(o.TestEmail, "@") {
		return fmt.Errorf("test mode requires a valid test email, got %q", o.TestEmail)
	}
	return nil
}

// Decision is the routing outcome for one group.
type Decision struct {
	GroupKey  string   `json:"group_key"`
	Requester string   `json:"requester,omitempty"`
	CCEmails  []string `json:"cc_emails"`

	// TestModeNote is appended to the outgoing body when test mode was
	// used, naming the redirected requester.
	TestModeNote string `json:"test_mode_note,omitempty"`

	// Skipped is set when no requester could be determined. A skipped
	// group never reaches the ticketing collaborator.
	Skipped bool `json:"skipped"`
}

// Decide resolves the requester and CC list for one group.
//
// Live mode: the first real (non-sentinel) contact becomes the requester and
// the group's CC set, minus the requester, becomes the CC list. No real
// contact means the group is skipped, a normal terminal outcome.
//
// Test mode: the test email is the requester unconditionally, and every real
// contact is kept on CC alongside the group's CC set so nothing is lost in
// a dry-run.
func Decide(group *matching.MatchGroup, opts Options) Decision {
	d := Decision{GroupKey: group.Key}

	realContacts := make([]string, 0, len(group.Contacts))
	for _, c := range group.Contacts {
		if c.Email != "" && c.Email != NoEmailSentinel {
			realContacts = append(realContacts, c.Email)
		}
	}

	if opts.TestMode {
		d.Requester = opts.TestEmail
		d.CCEmails = minus(group.CCList(), d.Requester)
		for _, email := range realContacts {
			if email != d.Requester && !contains(d.CCEmails, email) {
				d.CCEmails = append(d.CCEmails, email)
			}
		}
		d.TestModeNote = fmt.Sprintf(
			"--- This ticket was sent in TEST MODE to %s as requester. Original primary contacts and account managers are CC'd. ---",
			opts.TestEmail)
		return d
	}

	if len(realContacts) == 0 {
		d.Skipped = true
		return d
	}

	d.Requester = realContacts[0]
	d.CCEmails = minus(group.CCList(), d.Requester)
	return d
}

func minus(emails []string, exclude string) []string {
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		if e != exclude {
			out = append(out, e)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
