package matching

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p0comms/pkg/tabular"
)

func mustDataset(t *testing.T, csv string) *tabular.Dataset {
	t.Helper()
	ds, err := tabular.DecodeString(csv)
	require.NoError(t, err)
	return ds
}

func newTestEngine() *Engine {
	return NewEngine(zerolog.Nop())
}

func TestMatchJoinColumnMissing(t *testing.T) {
	user := mustDataset(t, "id,value\n1,a\n")
	report := mustDataset(t, "deployment,email\nacme,amy@acme.com\n")

	_, err := newTestEngine().Match(user, report)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrJoinColumnMissing)
}

func TestMatchPartitionsEveryRowExactlyOnce(t *testing.T) {
	user := mustDataset(t, "Tenant,id\nAcme,1\nacme ,2\nGlobex,3\nACME,4\n")
	report := mustDataset(t, "deployment,email\n")

	result, err := newTestEngine().Match(user, report)
	require.NoError(t, err)

	assert.Equal(t, []string{"acme", "globex"}, result.Keys, "first-seen key order")
	assert.Equal(t, 4, result.RowsGrouped)

	total := 0
	seen := map[string]bool{}
	for _, key := range result.Keys {
		for _, row := range result.Groups[key].ImpactRows {
			total++
			id := row.Get("id")
			assert.False(t, seen[id], "row %s appears in more than one group", id)
			seen[id] = true
		}
	}
	assert.Equal(t, user.Len(), total, "union of impact rows equals the user dataset")

	// Within a group, source order holds and rows keep their raw values.
	acme := result.Groups["acme"]
	require.Len(t, acme.ImpactRows, 3)
	assert.Equal(t, "Acme", acme.ImpactRows[0].Get("Tenant"))
	assert.Equal(t, "acme ", acme.ImpactRows[1].Get("Tenant"))
	assert.Equal(t, "Acme", acme.Label, "label is the first-seen raw value, trimmed")
}

func TestMatchContactDedupFirstSeenWins(t *testing.T) {
	user := mustDataset(t, "Tenant\nAcme\n")
	report := mustDataset(t, "deployment,email,name\nacme,amy@acme.com,Amy\nacme,amy@acme.com,Amelia\n")

	result, err := newTestEngine().Match(user, report)
	require.NoError(t, err)

	group := result.Groups["acme"]
	require.Len(t, group.Contacts, 1)
	assert.Equal(t, Contact{Email: "amy@acme.com", Name: "Amy"}, group.Contacts[0])
	assert.Equal(t, []string{"amy@acme.com"}, group.CCList())
}

func TestMatchContactEmailTrimmedNotLowercased(t *testing.T) {
	user := mustDataset(t, "Tenant\nAcme\n")
	report := mustDataset(t, "deployment,email,name\nacme, Amy@Acme.com ,Amy\nacme,amy@acme.com,Amy\n")

	result, err := newTestEngine().Match(user, report)
	require.NoError(t, err)

	// Dedup key is the trimmed but case-preserved email, so the two
	// casings are distinct contacts and distinct CC entries.
	group := result.Groups["acme"]
	assert.Len(t, group.Contacts, 2)
	assert.ElementsMatch(t, []string{"Amy@Acme.com", "amy@acme.com"}, group.CCList())
}

func TestMatchCCSetDedupsAcrossPaths(t *testing.T) {
	user := mustDataset(t, "Tenant\nAcme\n")
	report := mustDataset(t, "deployment,email,account_manager_email\nacme,amy@acme.com,amy@acme.com\n")

	result, err := newTestEngine().Match(user, report)
	require.NoError(t, err)

	// Same address via the contact path and the account manager path is a
	// single CC membership.
	assert.Equal(t, []string{"amy@acme.com"}, result.Groups["acme"].CCList())
}

func TestMatchAccountManagerSplitting(t *testing.T) {
	user := mustDataset(t, "Tenant\nAcme\n")
	report := mustDataset(t, "deployment,account_manager_email\nacme,\"am1@x.com; am2@x.com,am3@x.com am4@x.com\"\n")

	result, err := newTestEngine().Match(user, report)
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"am1@x.com", "am2@x.com", "am3@x.com", "am4@x.com"},
		result.Groups["acme"].CCList())
}

func TestMatchMalformedContactValuesSkipped(t *testing.T) {
	user := mustDataset(t, "Tenant\nAcme\n")
	report := mustDataset(t, "deployment,email,account_manager_email\n"+
		"acme,not-an-email,also-bad\n"+
		"acme,,\n"+
		"acme,ok@acme.com,\n")

	result, err := newTestEngine().Match(user, report)
	require.NoError(t, err)

	group := result.Groups["acme"]
	require.Len(t, group.Contacts, 1)
	assert.Equal(t, "ok@acme.com", group.Contacts[0].Email)
	assert.Equal(t, []string{"ok@acme.com"}, group.CCList())
}

func TestMatchUnknownContactName(t *testing.T) {
	user := mustDataset(t, "Tenant\nAcme\n")
	report := mustDataset(t, "deployment,email\nacme,amy@acme.com\n")

	result, err := newTestEngine().Match(user, report)
	require.NoError(t, err)
	assert.Equal(t, UnknownContactName, result.Groups["acme"].Contacts[0].Name)
}

func TestMatchReportDeploymentColumnMissing(t *testing.T) {
	user := mustDataset(t, "Tenant\nAcme\n")
	report := mustDataset(t, "email,name\namy@acme.com,Amy\n")

	result, err := newTestEngine().Match(user, report)
	require.NoError(t, err)

	assert.NotEmpty(t, result.Warnings)
	group := result.Groups["acme"]
	assert.Empty(t, group.Contacts)
	assert.Empty(t, group.CCEmails)
}

func TestMatchMissingDeploymentValuesCollapse(t *testing.T) {
	user := mustDataset(t, "Tenant,id\n,1\n  ,2\nAcme,3\n")
	report := mustDataset(t, "deployment,email\n")

	result, err := newTestEngine().Match(user, report)
	require.NoError(t, err)

	require.Contains(t, result.Groups, "")
	assert.Len(t, result.Groups[""].ImpactRows, 2)
}

func TestMatchEndToEndScenario(t *testing.T) {
	user := mustDataset(t, "Tenant,id\nAcme,1\nacme ,2\nGlobex,3\n")
	report := mustDataset(t, "DEPLOYMENT,email,name\nACME,amy@acme.com,Amy\n")

	result, err := newTestEngine().Match(user, report)
	require.NoError(t, err)

	require.Len(t, result.Keys, 2)

	acme := result.Groups["acme"]
	require.NotNil(t, acme)
	assert.Len(t, acme.ImpactRows, 2)
	require.Len(t, acme.Contacts, 1)
	assert.Equal(t, Contact{Email: "amy@acme.com", Name: "Amy"}, acme.Contacts[0])
	assert.Equal(t, []string{"amy@acme.com"}, acme.CCList())

	globex := result.Groups["globex"]
	require.NotNil(t, globex)
	assert.Len(t, globex.ImpactRows, 1)
	assert.Empty(t, globex.Contacts)
	assert.Empty(t, globex.CCEmails)
}
