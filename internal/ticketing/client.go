// Package ticketing wraps the support-desk API used to open one ticket per
// matched deployment group.
package ticketing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Attachment is one file attached to a ticket.
type Attachment struct {
	Filename    string
	Content     []byte
	ContentType string
}

// Ticket is the outgoing ticket. Description is plain text; the client
// converts it to HTML on the wire.
type Ticket struct {
	Subject        string
	Description    string
	RequesterEmail string
	CCEmails       []string
	Attachments    []Attachment
}

// Client creates tickets against one desk instance.
type Client struct {
	cfg        *Config
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a ticketing client from an explicit config.
func NewClient(cfg *Config, logger zerolog.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

// CreateTicket opens a ticket and returns its ID. In reply-delivery mode
// the create carries a stub description and a second call posts the real
// body, CC list and attachments as a public reply.
func (c *Client) CreateTicket(ctx context.Context, t Ticket) (int64, error) {
	if c.cfg.DeliverViaReply {
		id, err := c.create(ctx, t, true)
		if err != nil {
			return 0, err
		}
		if err := c.reply(ctx, id, t); err != nil {
			return 0, fmt.Errorf("ticket %d created but reply delivery failed: %w", id, err)
		}
		return id, nil
	}
	return c.create(ctx, t, false)
}

func (c *Client) create(ctx context.Context, t Ticket, stub bool) (int64, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	description := HTMLBody(t.Description)
	if stub {
		description = "<div>Ticket created automatically. Details follow in the first reply.</div>"
	}

	fields := [][2]string{
		{"subject", t.Subject},
		{"description", description},
		{"email", t.RequesterEmail},
		{"status", strconv.Itoa(c.cfg.Status)},
		{"priority", strconv.Itoa(c.cfg.Priority)},
	}
	if c.cfg.TriageGroupID > 0 {
		fields = append(fields, [2]string{"group_id", strconv.FormatInt(c.cfg.TriageGroupID, 10)})
	}
	if c.cfg.ResponderID > 0 {
		fields = append(fields, [2]string{"responder_id", strconv.FormatInt(c.cfg.ResponderID, 10)})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return 0, err
		}
	}
	for _, tag := range c.cfg.Tags {
		if err := w.WriteField("tags[]", tag); err != nil {
			return 0, err
		}
	}
	for name, value := range c.cfg.CustomFields {
		if err := w.WriteField(fmt.Sprintf("custom_fields[%s]", name), value); err != nil {
			return 0, err
		}
	}

	// CCs and attachments ride on the create unless a reply delivers them.
	if !stub {
		if err := writeRecipients(w, t); err != nil {
			return 0, err
		}
	}

	if err := w.Close(); err != nil {
		return 0, err
	}

	var created struct {
		ID int64 `json:"id"`
	}
	if err := c.post(ctx, "/tickets", w.FormDataContentType(), &buf, &created); err != nil {
		return 0, fmt.Errorf("failed to create ticket %q: %w", t.Subject, err)
	}

	c.logger.Info().Int64("ticket_id", created.ID).Str("subject", t.Subject).Msg("ticket created")
	return created.ID, nil
}

func (c *Client) reply(ctx context.Context, ticketID int64, t Ticket) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("body", HTMLBody(t.Description)); err != nil {
		return err
	}
	if err := writeRecipients(w, t); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	path := fmt.Sprintf("/tickets/%d/reply", ticketID)
	if err := c.post(ctx, path, w.FormDataContentType(), &buf, nil); err != nil {
		return err
	}

	c.logger.Info().Int64("ticket_id", ticketID).Msg("public reply sent to trigger delivery")
	return nil
}

func writeRecipients(w *multipart.Writer, t Ticket) error {
	for _, cc := range t.CCEmails {
		if err := w.WriteField("cc_emails[]", cc); err != nil {
			return err
		}
	}
	for _, a := range t.Attachments {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="attachments[]"; filename="%s"`, a.Filename))
		contentType := a.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h.Set("Content-Type", contentType)

		part, err := w.CreatePart(h)
		if err != nil {
			return err
		}
		if _, err := part.Write(a.Content); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBaseURL()+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.SetBasicAuth(c.cfg.APIKey, "X")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("desk API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode desk API response: %w", err)
		}
	}
	return nil
}
