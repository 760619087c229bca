package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gogratta/pm-contracts/internal/domain"
)

// EventReader defines the journal access the event handler requires.
type EventReader interface {
	List(ctx context.Context, typ domain.EventType, opts domain.ListOpts) ([]domain.EventRecord, error)
	MaxSeq(ctx context.Context) (uint64, error)
}

// EventHandler serves the ledger event journal over HTTP.
type EventHandler struct {
	events EventReader
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler with the given journal reader and
// logger.
func NewEventHandler(events EventReader, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		events: events,
		logger: logger,
	}
}

var eventTypes = map[domain.EventType]bool{
	domain.EventConditionPreparation: true,
	domain.EventConditionResolution:  true,
	domain.EventPositionSplit:        true,
	domain.EventPositionMerge:        true,
	domain.EventPayoutRedemption:     true,
	domain.EventTransfer:             true,
	domain.EventApproval:             true,
}

// listEventsResponse wraps the journal list output.
type listEventsResponse struct {
	Events []domain.EventRecord `json:"events"`
	MaxSeq uint64               `json:"max_seq"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// ListEvents returns journal records, newest first, optionally filtered by
// type and created_at window.
// GET /api/events?type=position_split&since=2026-01-02T15:04:05Z&limit=50
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := parseListOpts(r)

	typ := domain.EventType(q.Get("type"))
	if typ != "" && !eventTypes[typ] {
		writeError(w, http.StatusBadRequest, "unknown event type: "+string(typ))
		return
	}

	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC3339 timestamp")
			return
		}
		opts.Since = &t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "until must be an RFC3339 timestamp")
			return
		}
		opts.Until = &t
	}

	events, err := h.events.List(r.Context(), typ, opts)
	if err != nil {
		respondServiceError(w, r, h.logger, "list events", err)
		return
	}
	maxSeq, err := h.events.MaxSeq(r.Context())
	if err != nil {
		respondServiceError(w, r, h.logger, "read journal head", err)
		return
	}

	if events == nil {
		events = []domain.EventRecord{}
	}
	writeJSON(w, http.StatusOK, listEventsResponse{
		Events: events,
		MaxSeq: maxSeq,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}
