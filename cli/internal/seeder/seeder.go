// Package seeder generates synthetic facility change events for load and
// demo environments.
package seeder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

// Options tunes a seeding run.
type Options struct {
	// StreamURL is the stream service base URL; events are submitted to
	// its write-path change endpoint like any other state mutation.
	StreamURL string

	// Count is the number of events to emit.
	Count int

	// Interval between events. Zero emits as fast as possible.
	Interval time.Duration

	// Facilities is the size of the synthetic facility pool events are
	// drawn from.
	Facilities int

	// Seed makes generation deterministic when non-zero.
	Seed uint64
}

var capacityStatuses = []string{"low", "moderate", "high", "critical"}

var serviceNames = []string{
	"emergency", "radiology", "maternity", "pediatrics",
	"surgery", "dialysis", "laboratory", "pharmacy",
}

// changePayload mirrors the stream service's change endpoint request.
type changePayload struct {
	FacilityID    string         `json:"facility_id"`
	EventType     string         `json:"event_type"`
	ChangedFields map[string]any `json:"changed_fields"`
	Location      *location      `json:"location,omitempty"`
}

type location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Runner emits synthetic change events against the stream service.
type Runner struct {
	opts   Options
	faker  *gofakeit.Faker
	client *http.Client
	pool   []seedFacility
}

type seedFacility struct {
	id  string
	loc location
}

// NewRunner builds a Runner with a synthetic facility pool.
func NewRunner(opts Options) *Runner {
	if opts.Count <= 0 {
		opts.Count = 100
	}
	if opts.Facilities <= 0 {
		opts.Facilities = 10
	}

	faker := gofakeit.New(int64(opts.Seed))

	pool := make([]seedFacility, opts.Facilities)
	for i := range pool {
		pool[i] = seedFacility{
			id: fmt.Sprintf("fac-%s", faker.UUID()[:8]),
			loc: location{
				// Cluster around Lagos, where the demo dataset lives.
				Latitude:  6.5244 + faker.Float64Range(-0.5, 0.5),
				Longitude: 3.3792 + faker.Float64Range(-0.5, 0.5),
			},
		}
	}

	return &Runner{
		opts:   opts,
		faker:  faker,
		client: &http.Client{Timeout: 10 * time.Second},
		pool:   pool,
	}
}

// Run emits events until Count is reached or ctx is cancelled. Returns the
// number of events accepted by the stream service.
func (r *Runner) Run(ctx context.Context, progress io.Writer) (int, error) {
	var sent int
	for i := 0; i < r.opts.Count; i++ {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		payload := r.nextEvent()
		if err := r.post(ctx, payload); err != nil {
			return sent, fmt.Errorf("event %d: %w", i+1, err)
		}
		sent++

		if progress != nil && sent%50 == 0 {
			fmt.Fprintf(progress, "sent %d/%d events\n", sent, r.opts.Count)
		}

		if r.opts.Interval > 0 {
			select {
			case <-ctx.Done():
				return sent, ctx.Err()
			case <-time.After(r.opts.Interval):
			}
		}
	}
	return sent, nil
}

// nextEvent picks a facility and fabricates one state change for it.
func (r *Runner) nextEvent() changePayload {
	fac := r.pool[r.faker.IntRange(0, len(r.pool)-1)]
	loc := fac.loc

	payload := changePayload{
		FacilityID: fac.id,
		Location:   &loc,
	}

	switch r.faker.IntRange(0, 3) {
	case 0:
		payload.EventType = "capacity_update"
		payload.ChangedFields = map[string]any{
			"capacity_status": r.faker.RandomString(capacityStatuses),
		}
	case 1:
		payload.EventType = "wait_time_update"
		payload.ChangedFields = map[string]any{
			"avg_wait_minutes": r.faker.IntRange(5, 240),
		}
	case 2:
		payload.EventType = "urgent_care_update"
		payload.ChangedFields = map[string]any{
			"urgent_care_available": r.faker.Bool(),
		}
	default:
		payload.EventType = "service_availability_update"
		payload.ChangedFields = map[string]any{
			"services": r.faker.RandomString(serviceNames),
		}
	}
	return payload
}

func (r *Runner) post(ctx context.Context, payload changePayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.opts.StreamURL+"/internal/v1/changes", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("stream service rejected event (%s): %s", resp.Status, msg)
	}
	return nil
}
