package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// PipelineHandler serves maintenance job trigger endpoints.
type PipelineHandler struct {
	logger     *slog.Logger
	snapshotCh chan<- struct{} // when non-nil, sending triggers one snapshot run
	archiveCh  chan<- struct{} // when non-nil, sending triggers one archive run
}

// NewPipelineHandler creates a PipelineHandler with the given logger.
func NewPipelineHandler(logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{logger: logger}
}

// WithSnapshotTrigger sets the channel to send on when a snapshot run is
// requested. The snapshot loop must receive from this channel to run one
// cycle.
func (h *PipelineHandler) WithSnapshotTrigger(ch chan<- struct{}) *PipelineHandler {
	h.snapshotCh = ch
	return h
}

// WithArchiveTrigger sets the channel to send on when an archive run is
// requested.
func (h *PipelineHandler) WithArchiveTrigger(ch chan<- struct{}) *PipelineHandler {
	h.archiveCh = ch
	return h
}

type triggerRequest struct {
	Job string `json:"job"`
}

// Trigger enqueues one maintenance job run. The send is non-blocking, so a
// pending trigger that has not yet been consumed is not duplicated.
// POST /api/pipeline/trigger
func (h *PipelineHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	job := "snapshot"
	if r.Body != nil && r.ContentLength != 0 {
		var req triggerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if req.Job != "" {
			job = req.Job
		}
	}

	var ch chan<- struct{}
	switch job {
	case "snapshot":
		ch = h.snapshotCh
	case "archive":
		ch = h.archiveCh
	default:
		writeError(w, http.StatusBadRequest, "unknown job: "+job)
		return
	}
	if ch == nil {
		writeError(w, http.StatusServiceUnavailable, "job not running: "+job)
		return
	}

	h.logger.InfoContext(r.Context(), "handler: pipeline trigger requested",
		slog.String("job", job),
	)
	select {
	case ch <- struct{}{}:
	default:
		// already triggered and not yet consumed
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"job":          job,
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
