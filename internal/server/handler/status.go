package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SeqSource reports the journal head sequence number.
type SeqSource interface {
	MaxSeq(ctx context.Context) (uint64, error)
}

// StatusHandler serves the deployment status (mode, custody account, journal
// head) for the dashboard.
type StatusHandler struct {
	mode    string
	custody common.Address
	chainID int
	journal SeqSource
	started time.Time
	logger  *slog.Logger
}

// NewStatusHandler creates a StatusHandler with the given deployment
// parameters.
func NewStatusHandler(mode string, custody common.Address, chainID int, journal SeqSource, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		mode:    mode,
		custody: custody,
		chainID: chainID,
		journal: journal,
		started: time.Now().UTC(),
		logger:  logger,
	}
}

// GetStatus responds with the current deployment mode, custody account and
// journal head.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	var lastSeq uint64
	if h.journal != nil {
		seq, err := h.journal.MaxSeq(r.Context())
		if err != nil {
			h.logger.WarnContext(r.Context(), "handler: journal head read failed",
				slog.String("error", err.Error()),
			)
		} else {
			lastSeq = seq
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"custody":        h.custody.Hex(),
		"chain_id":       h.chainID,
		"last_seq":       lastSeq,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
