package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/gogratta/pm-contracts/internal/domain"
	"github.com/gogratta/pm-contracts/internal/server/middleware"
)

// ConditionService defines the methods that the condition handler requires
// from the service layer.
type ConditionService interface {
	Prepare(ctx context.Context, oracle common.Address, questionID common.Hash, outcomeSlotCount uint) (domain.Condition, error)
	Report(ctx context.Context, reporter common.Address, questionID common.Hash, result []byte) (domain.Condition, error)
	Get(ctx context.Context, id common.Hash) (domain.Condition, error)
	ComputeID(oracle common.Address, questionID common.Hash, outcomeSlotCount uint) common.Hash
	GetByQuestion(ctx context.Context, questionID common.Hash) ([]domain.Condition, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Condition, error)
	Count(ctx context.Context) (int64, error)
}

// ConditionHandler serves condition-related HTTP endpoints.
type ConditionHandler struct {
	conditions ConditionService
	logger     *slog.Logger
}

// NewConditionHandler creates a ConditionHandler with the given service and
// logger.
func NewConditionHandler(conditions ConditionService, logger *slog.Logger) *ConditionHandler {
	return &ConditionHandler{
		conditions: conditions,
		logger:     logger,
	}
}

type prepareConditionRequest struct {
	Oracle           string `json:"oracle"`
	QuestionID       string `json:"question_id"`
	OutcomeSlotCount uint   `json:"outcome_slot_count"`
}

// PrepareCondition registers a new condition.
// POST /api/conditions
func (h *ConditionHandler) PrepareCondition(w http.ResponseWriter, r *http.Request) {
	var req prepareConditionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	oracle, err := parseAddress("oracle", req.Oracle)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	questionID, err := parseHash("question_id", req.QuestionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cond, err := h.conditions.Prepare(r.Context(), oracle, questionID, req.OutcomeSlotCount)
	if err != nil {
		respondServiceError(w, r, h.logger, "prepare condition", err)
		return
	}

	writeJSON(w, http.StatusCreated, toConditionDTO(cond))
}

type reportPayoutsRequest struct {
	QuestionID string `json:"question_id"`
	Result     string `json:"result"`
}

// ReportPayouts records an oracle's payout vector. The session account is
// the reporter, so only the preparing oracle can resolve its condition.
// POST /api/reports
func (h *ConditionHandler) ReportPayouts(w http.ResponseWriter, r *http.Request) {
	reporter, ok := middleware.AccountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "session required")
		return
	}

	var req reportPayoutsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	questionID, err := parseHash("question_id", req.QuestionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := hexutil.Decode(req.Result)
	if err != nil {
		writeError(w, http.StatusBadRequest, "result must be 0x-prefixed hex")
		return
	}

	cond, err := h.conditions.Report(r.Context(), reporter, questionID, result)
	if err != nil {
		respondServiceError(w, r, h.logger, "report payouts", err)
		return
	}

	writeJSON(w, http.StatusOK, toConditionDTO(cond))
}

// GetCondition returns a single condition by its id.
// GET /api/conditions/{id}
func (h *ConditionHandler) GetCondition(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash("id", pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cond, err := h.conditions.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, h.logger, "get condition", err)
		return
	}

	writeJSON(w, http.StatusOK, toConditionDTO(cond))
}

// listConditionsResponse wraps the list endpoint output with metadata.
type listConditionsResponse struct {
	Conditions []conditionDTO `json:"conditions"`
	Total      int64          `json:"total"`
	Limit      int            `json:"limit"`
	Offset     int            `json:"offset"`
}

// ListConditions returns stored conditions, optionally filtered by question.
// GET /api/conditions?question_id=0x...&limit=50&offset=0
func (h *ConditionHandler) ListConditions(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	if q := r.URL.Query().Get("question_id"); q != "" {
		questionID, err := parseHash("question_id", q)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		conditions, err := h.conditions.GetByQuestion(r.Context(), questionID)
		if err != nil {
			respondServiceError(w, r, h.logger, "list conditions", err)
			return
		}
		writeJSON(w, http.StatusOK, listConditionsResponse{
			Conditions: toConditionDTOs(conditions),
			Total:      int64(len(conditions)),
			Limit:      opts.Limit,
			Offset:     opts.Offset,
		})
		return
	}

	conditions, err := h.conditions.List(r.Context(), opts)
	if err != nil {
		respondServiceError(w, r, h.logger, "list conditions", err)
		return
	}
	total, err := h.conditions.Count(r.Context())
	if err != nil {
		respondServiceError(w, r, h.logger, "count conditions", err)
		return
	}

	writeJSON(w, http.StatusOK, listConditionsResponse{
		Conditions: toConditionDTOs(conditions),
		Total:      total,
		Limit:      opts.Limit,
		Offset:     opts.Offset,
	})
}

// ComputeConditionID derives the condition id for a triple without touching
// state.
// GET /api/conditions/compute?oracle=0x...&question_id=0x...&outcome_slot_count=2
func (h *ConditionHandler) ComputeConditionID(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	oracle, err := parseAddress("oracle", q.Get("oracle"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	questionID, err := parseHash("question_id", q.Get("question_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	count, err := strconv.ParseUint(q.Get("outcome_slot_count"), 10, 32)
	if err != nil || count == 0 {
		writeError(w, http.StatusBadRequest, "outcome_slot_count must be a positive integer")
		return
	}

	id := h.conditions.ComputeID(oracle, questionID, uint(count))
	writeJSON(w, http.StatusOK, map[string]string{"condition_id": id.Hex()})
}
