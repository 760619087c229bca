package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gogratta/pm-contracts/internal/domain"
)

// Redis channels carrying committed ledger events. ChannelLedger receives
// every event; the family channels receive their slice of the stream.
const (
	ChannelLedger     = "ch:ledger"
	ChannelConditions = "conditions"
	ChannelPositions  = "positions"
	ChannelTransfers  = "transfers"

	// StreamLedgerEvents is the durable Redis stream for external consumers.
	StreamLedgerEvents = "ledger_events"
)

// familyChannel maps an event type to its per-family Redis channel.
func familyChannel(typ domain.EventType) string {
	switch typ {
	case domain.EventConditionPreparation, domain.EventConditionResolution:
		return ChannelConditions
	case domain.EventPositionSplit, domain.EventPositionMerge, domain.EventPayoutRedemption:
		return ChannelPositions
	case domain.EventTransfer, domain.EventApproval:
		return ChannelTransfers
	}
	return ChannelLedger
}

// Journal is the ledger's event sink. Append runs under the ledger lock and
// only records the event; the heavier work of persisting and publishing
// happens in Flush, which services call once their operation has returned.
//
// The journal never fails a ledger operation: store and bus errors are logged
// and dropped. The Postgres journal tolerates replays (appends are keyed by
// sequence number), so a crash between commit and flush loses nothing that a
// later flush or restart cannot repair.
type Journal struct {
	store  domain.EventStore
	bus    domain.SignalBus
	logger *slog.Logger

	mu      sync.Mutex
	pending []domain.EventRecord
}

// NewJournal creates a Journal. store and bus may be nil, in which case the
// corresponding outputs are skipped.
func NewJournal(store domain.EventStore, bus domain.SignalBus, logger *slog.Logger) *Journal {
	return &Journal{
		store:  store,
		bus:    bus,
		logger: logger.With(slog.String("component", "journal")),
	}
}

// Append implements domain.EventSink. It runs while the ledger lock is held,
// so it must stay cheap and must not call back into the ledger.
func (j *Journal) Append(seq uint64, at time.Time, ev domain.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		// Event payloads are plain structs; this indicates a programming
		// error, not a runtime condition.
		j.logger.Error("journal: marshal event",
			slog.Uint64("seq", seq),
			slog.String("type", string(ev.Type())),
			slog.String("error", err.Error()),
		)
		payload = []byte("{}")
	}

	j.mu.Lock()
	j.pending = append(j.pending, domain.EventRecord{
		Seq:       seq,
		Type:      ev.Type(),
		Payload:   payload,
		CreatedAt: at,
	})
	j.mu.Unlock()
}

// Flush drains every pending record, writes each to the journal store, and
// publishes it to the Redis channels and the durable stream. Failures are
// logged, never returned: the in-memory ledger remains the source of truth.
func (j *Journal) Flush(ctx context.Context) {
	j.mu.Lock()
	records := j.pending
	j.pending = nil
	j.mu.Unlock()

	for _, rec := range records {
		if j.store != nil {
			if err := j.store.Append(ctx, rec); err != nil {
				j.logger.WarnContext(ctx, "journal: store append failed",
					slog.Uint64("seq", rec.Seq),
					slog.String("type", string(rec.Type)),
					slog.String("error", err.Error()),
				)
			}
		}

		if j.bus == nil {
			continue
		}

		data, err := json.Marshal(rec)
		if err != nil {
			j.logger.WarnContext(ctx, "journal: marshal record failed",
				slog.Uint64("seq", rec.Seq),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := j.bus.Publish(ctx, ChannelLedger, data); err != nil {
			j.logger.WarnContext(ctx, "journal: publish failed",
				slog.String("channel", ChannelLedger),
				slog.Uint64("seq", rec.Seq),
				slog.String("error", err.Error()),
			)
		}
		if ch := familyChannel(rec.Type); ch != ChannelLedger {
			if err := j.bus.Publish(ctx, ch, data); err != nil {
				j.logger.WarnContext(ctx, "journal: publish failed",
					slog.String("channel", ch),
					slog.Uint64("seq", rec.Seq),
					slog.String("error", err.Error()),
				)
			}
		}
		if err := j.bus.StreamAppend(ctx, StreamLedgerEvents, data); err != nil {
			j.logger.WarnContext(ctx, "journal: stream append failed",
				slog.Uint64("seq", rec.Seq),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Compile-time interface check.
var _ domain.EventSink = (*Journal)(nil)
