package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/ride-simulator/internal/models"
)

// Webhook posts a ride event to an HTTP endpoint for every snapshot.
type Webhook struct {
	Endpoint string // e.g. provider HTTP endpoint
	Client   *http.Client
}

func NewWebhook(endpoint string) *Webhook {
	return &Webhook{Endpoint: endpoint, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Publish(ctx context.Context, r models.Ride) error {
	b, err := json.Marshal(models.NewRideEvent(r))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.ID != "" {
		req.Header.Set("X-Ride-ID", r.ID)
	}
	resp, err := w.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}
