package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetd-io/fleetd/internal/record"
	"github.com/fleetd-io/fleetd/internal/store"
)

// Outcome reports which path a write took.
type Outcome int

const (
	// OutcomeLocal: replication disabled; the write is local-only.
	OutcomeLocal Outcome = iota + 1
	// OutcomeDelivered: the write is durable locally and reached the Hub.
	OutcomeDelivered
	// OutcomeQueued: the write is durable locally; Hub delivery failed
	// and the write sits in the sync queue awaiting replay.
	OutcomeQueued
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeLocal:
		return "local"
	case OutcomeDelivered:
		return "delivered"
	case OutcomeQueued:
		return "queued"
	default:
		return "unknown"
	}
}

// DefaultTimeout bounds a single Hub delivery attempt. Short on purpose:
// a stalled Hub must not stall writers.
const DefaultTimeout = 2 * time.Second

// Write is one pending local write handed to the client.
type Write struct {
	Table   string
	ID      string
	Op      record.Operation
	Payload record.Object
}

// Client wraps local-store writes with best-effort Hub replication.
type Client struct {
	store    *store.Store
	sourceID string
	hubURL   string
	enabled  bool
	timeout  time.Duration
	http     *http.Client
	log      zerolog.Logger
}

// NewClient builds a replication client for one source. An empty hubURL
// disables replication entirely; writes then stay local.
func NewClient(st *store.Store, sourceID, hubURL string, log zerolog.Logger) *Client {
	return &Client{
		store:    st,
		sourceID: sourceID,
		hubURL:   strings.TrimRight(hubURL, "/"),
		enabled:  hubURL != "",
		timeout:  DefaultTimeout,
		http:     &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

// SetTimeout overrides the per-attempt delivery deadline.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// Write applies one write locally, then attempts Hub delivery.
//
// The local apply must succeed or the call fails with nothing queued -
// without local durability there is nothing to replay. Delivery failure
// is absorbed: the write is enqueued durably and the call still returns
// ok. A crash between the local apply and the enqueue loses the Hub copy
// of that one write; this gap is accepted rather than papered over with
// a cross-statement transaction against the network.
func (c *Client) Write(ctx context.Context, w Write) (Outcome, error) {
	if err := c.store.Apply(ctx, w.Table, w.ID, w.Op, w.Payload); err != nil {
		return 0, fmt.Errorf("local write: %w", err)
	}

	if !c.enabled {
		return OutcomeLocal, nil
	}

	if err := c.deliverSingle(ctx, w.Table, w.ID, w.Op, w.Payload); err != nil {
		c.log.Warn().Err(err).Str("table", w.Table).Str("id", w.ID).Msg("hub delivery failed, queueing")
		if _, qerr := c.store.Enqueue(ctx, w.Table, w.ID, w.Op, w.Payload); qerr != nil {
			return 0, fmt.Errorf("queue after delivery failure: %w", qerr)
		}
		return OutcomeQueued, nil
	}

	return OutcomeDelivered, nil
}

// WriteBatch applies every write locally, then attempts one batch
// delivery for the lot. On batch failure every record is enqueued
// individually, preserving per-record retry semantics. A local failure
// aborts immediately; records before the failure stay applied.
func (c *Client) WriteBatch(ctx context.Context, writes []Write) (Outcome, error) {
	for i, w := range writes {
		if err := c.store.Apply(ctx, w.Table, w.ID, w.Op, w.Payload); err != nil {
			return 0, fmt.Errorf("local write %d of %d: %w", i+1, len(writes), err)
		}
	}

	if !c.enabled || len(writes) == 0 {
		return OutcomeLocal, nil
	}

	if err := c.deliverBatch(ctx, writes); err != nil {
		c.log.Warn().Err(err).Int("count", len(writes)).Msg("hub batch delivery failed, queueing individually")
		for _, w := range writes {
			if _, qerr := c.store.Enqueue(ctx, w.Table, w.ID, w.Op, w.Payload); qerr != nil {
				return 0, fmt.Errorf("queue after batch failure: %w", qerr)
			}
		}
		return OutcomeQueued, nil
	}

	return OutcomeDelivered, nil
}

// QueryNetwork runs an ad-hoc read against the Hub for network-wide
// visibility. Failures come back as an empty result set plus a log
// entry - a missing network view must not break the caller.
func (c *Client) QueryNetwork(ctx context.Context, rawSQL string) []map[string]any {
	if !c.enabled {
		return []map[string]any{}
	}

	body := map[string]any{"source_id": c.sourceID, "query": rawSQL}
	var resp struct {
		Results []map[string]any `json:"results"`
	}
	if err := c.postJSON(ctx, "/replicate/query", body, &resp); err != nil {
		c.log.Error().Err(err).Msg("network query failed")
		return []map[string]any{}
	}
	if resp.Results == nil {
		return []map[string]any{}
	}
	return resp.Results
}

// Healthy reports whether the Hub answers its health endpoint.
func (c *Client) Healthy(ctx context.Context) bool {
	if !c.enabled {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.hubURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) deliverSingle(ctx context.Context, table, id string, op record.Operation, payload record.Object) error {
	rec, err := record.New(c.sourceID, table, id, op, payload)
	if err != nil {
		return fmt.Errorf("build record: %w", err)
	}
	return c.postJSON(ctx, "/replicate/single", rec, nil)
}

func (c *Client) deliverBatch(ctx context.Context, writes []Write) error {
	records := make([]map[string]any, len(writes))
	for i, w := range writes {
		// Same envelope discipline as deliverSingle: the id is mirrored
		// into the payload so the Hub can key the row.
		rec, err := record.New(c.sourceID, w.Table, w.ID, w.Op, w.Payload)
		if err != nil {
			return fmt.Errorf("build record %d of %d: %w", i+1, len(writes), err)
		}
		records[i] = map[string]any{
			"table":     rec.Table,
			"operation": string(rec.Op),
			"data":      rec.Payload,
		}
	}
	body := map[string]any{
		"source_id": c.sourceID,
		"records":   records,
		"timestamp": float64(time.Now().UnixNano()) / 1e9,
	}
	return c.postJSON(ctx, "/replicate/batch", body, nil)
}

// postJSON performs one bounded JSON POST against the Hub. Any non-2xx
// status is an error; the caller decides whether that means queueing.
func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.hubURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("hub %s: status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
