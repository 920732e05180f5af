// Package forwarder posts domain events to the external telemetry
// sink. Delivery is at-least-once: the relay only marks an event
// forwarded after a 2xx response, so the sink must tolerate duplicates.
package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/clinicflow/clinic-scheduling/internal/schedule"
)

type Client struct {
	httpClient *http.Client
	url        string
}

func New(url string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
	}
}

type eventEnvelope struct {
	ID             int64           `json:"id"`
	OrganizationID string          `json:"organization_id"`
	EventType      string          `json:"event_type"`
	AppointmentID  *string         `json:"appointment_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (c *Client) Forward(ctx context.Context, ev schedule.EventLog) error {
	env := eventEnvelope{
		ID:             ev.ID,
		OrganizationID: ev.OrganizationID.String(),
		EventType:      ev.EventType,
		Payload:        ev.Payload,
		CreatedAt:      ev.CreatedAt,
	}
	if ev.AppointmentID != nil {
		s := ev.AppointmentID.String()
		env.AppointmentID = &s
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event %d: %w", ev.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("forward event %d: %w", ev.ID, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("forward event %d: sink returned %d", ev.ID, resp.StatusCode)
	}

	return nil
}
