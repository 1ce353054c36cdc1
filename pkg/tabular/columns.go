package tabular

import "strings"

// Column alias sets recognized across both datasets. Sources export the
// deployment key under several spellings; the user dataset accepts all of
// them, the report dataset only the plain "deployment" form.
var DeploymentAliases = []string{"Tenant", "TENANT", "Deployment", "DEPLOYMENT"}

const (
	ReportDeploymentColumn    = "deployment"
	EmailColumn               = "email"
	NameColumn                = "name"
	AccountManagerEmailColumn = "account_manager_email"
)

// ResolveColumn finds the actual header matching one of the accepted
// aliases, comparing case-insensitively. Aliases are tried in priority
// order, so when a dataset carries more than one candidate header the
// earlier alias wins. A miss is a signal for the caller, not an error:
// some columns are optional and their absence only degrades enrichment.
func ResolveColumn(headers []string, aliases ...string) (string, bool) {
	for _, alias := range aliases {
		want := strings.ToLower(alias)
		for _, h := range headers {
			if strings.ToLower(h) == want {
				return h, true
			}
		}
	}
	return "", false
}
