package ticketing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Ticket field defaults matching the support desk's conventions.
const (
	StatusOpen  = 2
	PriorityLow = 1
)

// Config is the explicit ticketing configuration, replacing what used to be
// scattered globals. Zero-valued IDs are omitted from the outgoing payload.
type Config struct {
	// Domain is the support desk domain, e.g. support.example.com. BaseURL
	// overrides the derived https://<domain>/api/v2 when set (tests, proxies).
	Domain  string `yaml:"domain"`
	BaseURL string `yaml:"base_url"`

	// APIKey is never read from the config file.
	APIKey string `yaml:"-"`

	TriageGroupID int64 `yaml:"triage_group_id"`
	ResponderID   int64 `yaml:"responder_id"`

	Status   int      `yaml:"status"`
	Priority int      `yaml:"priority"`
	Tags     []string `yaml:"tags"`

	// CustomFields are sent as custom_fields[<name>] form fields.
	CustomFields map[string]string `yaml:"custom_fields"`

	// DeliverViaReply creates the ticket with a stub description and sends
	// body, CCs and attachments in a public reply, which is what triggers
	// email delivery on some desk configurations.
	DeliverViaReply bool `yaml:"deliver_via_reply"`
}

// DefaultConfig returns the routing defaults for emergency comms tickets.
func DefaultConfig() *Config {
	return &Config{
		Status:       StatusOpen,
		Priority:     PriorityLow,
		Tags:         []string{"Support-emergency"},
		CustomFields: map[string]string{},
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ticketing config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse ticketing config: %w", err)
	}
	return cfg, nil
}

// APIBaseURL resolves the effective API root.
func (c *Config) APIBaseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return fmt.Sprintf("https://%s/api/v2", c.Domain)
}
