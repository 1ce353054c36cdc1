package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p0comms/internal/routing"
	"p0comms/internal/ticketing"
)

type fakeReport struct {
	csv        string
	triggerErr error
	pollErr    error
	fetchErr   error
}

func (f *fakeReport) Trigger(ctx context.Context) (string, error) {
	return "run-1", f.triggerErr
}

func (f *fakeReport) Poll(ctx context.Context, runToken string) error {
	return f.pollErr
}

func (f *fakeReport) FetchResult(ctx context.Context) (string, error) {
	return f.csv, f.fetchErr
}

type fakeTickets struct {
	created []ticketing.Ticket
	failFor map[string]error
	nextID  int64
}

func (f *fakeTickets) CreateTicket(ctx context.Context, t ticketing.Ticket) (int64, error) {
	if err, ok := f.failFor[t.RequesterEmail]; ok {
		return 0, err
	}
	f.created = append(f.created, t)
	f.nextID++
	return 1000 + f.nextID, nil
}

const userCSV = "Tenant,id\nAcme,1\nacme ,2\nGlobex,3\n"
const reportCSV = "DEPLOYMENT,email,name,account_manager_email\nACME,amy@acme.com,Amy,am@acme.com\n"

func newTestRunner(report ReportJob, tickets TicketCreator) *Runner {
	return NewRunner(report, tickets, zerolog.Nop())
}

func TestRunEndToEnd(t *testing.T) {
	tickets := &fakeTickets{}
	runner := newTestRunner(&fakeReport{csv: reportCSV}, tickets)

	summary, err := runner.Run(context.Background(), RunRequest{UserCSV: userCSV})
	require.NoError(t, err)

	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", summary.RunID.String())
	assert.Equal(t, 3, summary.RowsGrouped)
	assert.Equal(t, 2, summary.Groups)

	require.Len(t, summary.Results, 2)
	acme, globex := summary.Results[0], summary.Results[1]

	assert.Equal(t, "Acme", acme.Deployment)
	assert.Equal(t, routing.StatusSuccess, acme.Status)
	assert.NotZero(t, acme.TicketID)

	// Globex has no report-side match: skipped, no ticket call made.
	assert.Equal(t, "Globex", globex.Deployment)
	assert.Equal(t, routing.StatusSkipped, globex.Status)
	assert.Zero(t, globex.TicketID)

	require.Len(t, tickets.created, 1)
	ticket := tickets.created[0]
	assert.Equal(t, "Impact Report for Acme", ticket.Subject)
	assert.Equal(t, "amy@acme.com", ticket.RequesterEmail)
	assert.Equal(t, []string{"am@acme.com"}, ticket.CCEmails)
	assert.Contains(t, ticket.Description, "impact list for Acme")

	require.Len(t, ticket.Attachments, 1)
	assert.Equal(t, "Impact_List_Acme.csv", ticket.Attachments[0].Filename)
	attached := string(ticket.Attachments[0].Content)
	assert.True(t, strings.HasPrefix(attached, "Tenant,id\n"))
	assert.Contains(t, attached, "Acme,1")
	assert.Contains(t, attached, "acme ,2")
	assert.NotContains(t, attached, "Globex")
}

func TestRunTestMode(t *testing.T) {
	tickets := &fakeTickets{}
	runner := newTestRunner(&fakeReport{csv: reportCSV}, tickets)

	summary, err := runner.Run(context.Background(), RunRequest{
		UserCSV:   userCSV,
		TestMode:  true,
		TestEmail: "t@x.com",
	})
	require.NoError(t, err)

	// In test mode even contact-less groups get a requester.
	for _, res := range summary.Results {
		assert.Equal(t, routing.StatusSuccess, res.Status)
	}

	require.Len(t, tickets.created, 2)
	acme := tickets.created[0]
	assert.Equal(t, "t@x.com", acme.RequesterEmail)
	assert.Contains(t, acme.CCEmails, "amy@acme.com", "original contact preserved on CC")
	assert.Contains(t, acme.Description, "TEST MODE")
}

func TestRunTestModeRequiresValidEmail(t *testing.T) {
	runner := newTestRunner(&fakeReport{csv: reportCSV}, &fakeTickets{})

	_, err := runner.Run(context.Background(), RunRequest{UserCSV: userCSV, TestMode: true, TestEmail: "nope"})
	assert.Error(t, err)
}

func TestRunTicketFailureDoesNotAbortBatch(t *testing.T) {
	report := &fakeReport{csv: "DEPLOYMENT,email\nACME,amy@acme.com\nGLOBEX,gus@globex.com\n"}
	tickets := &fakeTickets{failFor: map[string]error{"amy@acme.com": errors.New("desk down")}}
	runner := newTestRunner(report, tickets)

	summary, err := runner.Run(context.Background(), RunRequest{UserCSV: userCSV})
	require.NoError(t, err)

	require.Len(t, summary.Results, 2)
	assert.Equal(t, routing.StatusFailed, summary.Results[0].Status)
	assert.Equal(t, routing.StatusSuccess, summary.Results[1].Status, "later groups still attempted")
}

func TestRunJoinColumnMissing(t *testing.T) {
	runner := newTestRunner(&fakeReport{csv: reportCSV}, &fakeTickets{})

	_, err := runner.Run(context.Background(), RunRequest{UserCSV: "id,value\n1,a\n"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no matching data found")
}

func TestRunReportJobFailureIsFatal(t *testing.T) {
	runner := newTestRunner(&fakeReport{pollErr: errors.New("timed out")}, &fakeTickets{})

	_, err := runner.Run(context.Background(), RunRequest{UserCSV: userCSV})
	assert.Error(t, err)
}

func TestRunCustomTemplates(t *testing.T) {
	tickets := &fakeTickets{}
	runner := newTestRunner(&fakeReport{csv: reportCSV}, tickets)

	_, err := runner.Run(context.Background(), RunRequest{
		UserCSV: "Tenant\nAcme\n",
		Subject: "Heads up, [Deployment Name]",
		Body:    "All clear for [Deployment Name].",
	})
	require.NoError(t, err)

	require.Len(t, tickets.created, 1)
	assert.Equal(t, "Heads up, Acme", tickets.created[0].Subject)
	assert.Equal(t, "All clear for Acme.", tickets.created[0].Description)
}

func TestAttachmentName(t *testing.T) {
	assert.Equal(t, "Impact_List_Acme.csv", AttachmentName("Acme"))
	assert.Equal(t, "Impact_List_Acme_Corp_EU.csv", AttachmentName("Acme Corp/EU"))
}
