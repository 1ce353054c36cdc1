// Package report wraps the external analytics report-job API: trigger a
// run, poll it to a terminal state, fetch the CSV result.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Run states reported by the job API. Anything not listed keeps the poll
// loop going.
const (
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
	StateCancelled = "cancelled"
)

const (
	// DefaultPollInterval between status checks.
	DefaultPollInterval = 5 * time.Second
	// DefaultPollTimeout bounds one poll loop. There is no retry beyond it.
	DefaultPollTimeout = 300 * time.Second
)

// Client talks to one report's run endpoints.
type Client struct {
	// BaseURL is the report root, e.g. https://analytics.example.com/api/acme/reports/abc123
	BaseURL string
	// AuthToken is the pre-encoded basic credential for the Authorization header.
	AuthToken string

	HTTPClient *http.Client
	Interval   time.Duration
	Timeout    time.Duration
	Logger     zerolog.Logger
}

// NewClient creates a report client with default polling behavior.
func NewClient(baseURL, authToken string, logger zerolog.Logger) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		AuthToken:  authToken,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Interval:   DefaultPollInterval,
		Timeout:    DefaultPollTimeout,
		Logger:     logger,
	}
}

// Trigger starts a new report run and returns its run token.
func (c *Client) Trigger(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/runs", strings.NewReader("{}"))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Basic "+c.AuthToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to trigger report run: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("report run trigger returned status %d", resp.StatusCode)
	}

	var run struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		return "", fmt.Errorf("failed to decode run token: %w", err)
	}
	if run.Token == "" {
		return "", fmt.Errorf("report run trigger returned no token")
	}

	c.Logger.Info().Str("run_token", run.Token).Msg("report run triggered")
	return run.Token, nil
}

// Poll blocks until the run reaches a terminal state or the timeout
// elapses, checking once per interval. failed and cancelled states, the
// timeout, and context cancellation are all errors.
func (c *Client) Poll(ctx context.Context, runToken string) error {
	deadline := time.Now().Add(c.Timeout)

	for {
		state, err := c.fetchState(ctx, runToken)
		if err != nil {
			return err
		}

		switch state {
		case StateSucceeded:
			c.Logger.Info().Str("run_token", runToken).Msg("report run succeeded")
			return nil
		case StateFailed, StateCancelled:
			return fmt.Errorf("report run terminated with state %q", state)
		}

		c.Logger.Info().Str("state", state).Dur("interval", c.Interval).Msg("report run still in progress")

		if time.Now().Add(c.Interval).After(deadline) {
			return fmt.Errorf("timed out after %s waiting for report run to complete", c.Timeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.Interval):
		}
	}
}

func (c *Client) fetchState(ctx context.Context, runToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/runs/"+runToken, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Basic "+c.AuthToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to poll report run: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("report run poll returned status %d", resp.StatusCode)
	}

	var status struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return "", fmt.Errorf("failed to decode run state: %w", err)
	}
	return status.State, nil
}

// FetchResult downloads the completed run's result as CSV text.
func (c *Client) FetchResult(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/results/content.csv", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Basic "+c.AuthToken)
	req.Header.Set("Accept", "text/csv")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch report content: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("report content fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read report content: %w", err)
	}

	c.Logger.Info().Int("bytes", len(body)).Msg("report content fetched")
	return string(body), nil
}
