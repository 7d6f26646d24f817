package replicate

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetd-io/fleetd/internal/store"
)

// DefaultReplayInterval is how often the replay loop wakes.
const DefaultReplayInterval = 5 * time.Second

// DefaultReplayBatch caps the entries drained per tick.
const DefaultReplayBatch = 100

// Replayer periodically drains the sync queue against the Hub.
type Replayer struct {
	store    *store.Store
	client   *Client
	interval time.Duration
	batch    int
	log      zerolog.Logger
}

// NewReplayer builds a replayer over the given store and client.
func NewReplayer(st *store.Store, client *Client, interval time.Duration, batch int, log zerolog.Logger) *Replayer {
	if interval <= 0 {
		interval = DefaultReplayInterval
	}
	if batch <= 0 {
		batch = DefaultReplayBatch
	}
	return &Replayer{store: st, client: client, interval: interval, batch: batch, log: log}
}

// Run blocks, draining the queue on every tick until the context is
// cancelled. The loop runs even when the queue is empty (a cheap no-op)
// and is fully independent of the write path.
func (r *Replayer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info().Dur("interval", r.interval).Int("batch", r.batch).Msg("sync replayer started")

	for {
		select {
		case <-ticker.C:
			r.Tick(ctx)
		case <-ctx.Done():
			r.log.Info().Msg("sync replayer stopped")
			return
		}
	}
}

// Tick drains one batch: pending entries in FIFO order, delivered
// sequentially to preserve per-source ordering and avoid bursts against
// the Hub. Returns how many entries were delivered and acknowledged.
//
// Delivery failure increments the entry's retry counter and leaves it
// queued; a failed entry does not block later entries this tick, but
// ordering holds for anything the Hub actually receives because apply is
// upsert-by-id and redelivery converges.
func (r *Replayer) Tick(ctx context.Context) int {
	entries, err := r.store.Pending(ctx, r.batch)
	if err != nil {
		r.log.Error().Err(err).Msg("replay: pending select failed")
		return 0
	}
	if len(entries) == 0 {
		return 0
	}

	synced := 0
	for _, entry := range entries {
		if err := r.client.deliverSingle(ctx, entry.Table, entry.RecordID, entry.Op, entry.Payload); err != nil {
			r.log.Warn().Err(err).Int64("seq", entry.Seq).Int("retry", entry.RetryCount+1).Msg("replay delivery failed")
			if ferr := r.store.Fail(ctx, entry.Seq); ferr != nil {
				r.log.Error().Err(ferr).Int64("seq", entry.Seq).Msg("replay: retry increment failed")
			}
			continue
		}
		if err := r.store.Ack(ctx, entry.Seq); err != nil {
			// The Hub has the write; the entry will redeliver next tick
			// and converge via upsert-by-id.
			r.log.Error().Err(err).Int64("seq", entry.Seq).Msg("replay: ack failed")
			continue
		}
		synced++
	}

	r.log.Debug().Int("synced", synced).Int("selected", len(entries)).Msg("replay tick complete")
	return synced
}
