// Package handler содержит HTTP-обработчики административного API оценки и присуждения тендеров.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/agrotender/internal/middleware"
	"github.com/mmeshcher/agrotender/internal/model"
)

const maxNotesLength = 2000

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CloseTender(ctx context.Context, tenderID, actorID int64) error
	Evaluate(ctx context.Context, tenderID int64, force bool) (int, error)
	RankedBids(ctx context.Context, tenderID int64) ([]model.RankedBid, error)
	Award(ctx context.Context, tenderID, bidID int64, notes string, actorID int64) error
}

// Handler реализует HTTP-обработчики административного API.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type tenderStatusResponse struct {
	TenderID int64  `json:"tender_id"`
	BidID    int64  `json:"bid_id,omitempty"`
	Status   string `json:"status"`
}

// CloseTender закрывает приём предложений по тендеру.
func (h *Handler) CloseTender(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetActorIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	tenderID, ok := tenderIDParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.CloseTender(r.Context(), tenderID, actorID); err != nil {
		h.writeError(w, err, zap.Int64("tenderID", tenderID))
		return
	}

	writeJSON(w, http.StatusOK, tenderStatusResponse{
		TenderID: tenderID,
		Status:   string(model.TenderStatusClosed),
	})
}

type evaluateResponse struct {
	Evaluated   int      `json:"evaluated"`
	InvalidBids []string `json:"invalid_bids,omitempty"`
}

// Evaluate пересчитывает оценки предложений. Параметр force=true пересчитывает все предложения.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	tenderID, ok := tenderIDParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		force = parsed
	}

	count, err := h.service.Evaluate(r.Context(), tenderID, force)
	resp := evaluateResponse{Evaluated: count}
	if err != nil {
		if !isInvalidInput(err) {
			h.writeError(w, err, zap.Int64("tenderID", tenderID))
			return
		}
		resp.InvalidBids = splitJoined(err)
	}

	writeJSON(w, http.StatusOK, resp)
}

type scoreResponse struct {
	model.ScoreBreakdown
	Total float64 `json:"total"`
}

type rankedBidResponse struct {
	Rank             int            `json:"rank"`
	BidID            int64          `json:"bid_id"`
	VendorID         int64          `json:"vendor_id"`
	Amount           float64        `json:"amount"`
	DeliveryTimeline int            `json:"delivery_timeline"`
	Status           string         `json:"status"`
	SubmittedAt      string         `json:"submitted_at"`
	Score            *scoreResponse `json:"score,omitempty"`
}

// Ranking возвращает предложения тендера в порядке рейтинга.
func (h *Handler) Ranking(w http.ResponseWriter, r *http.Request) {
	tenderID, ok := tenderIDParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	ranked, err := h.service.RankedBids(r.Context(), tenderID)
	if err != nil {
		h.writeError(w, err, zap.Int64("tenderID", tenderID))
		return
	}

	if len(ranked) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]rankedBidResponse, 0, len(ranked))
	for _, rb := range ranked {
		item := rankedBidResponse{
			Rank:             rb.Rank,
			BidID:            rb.Bid.ID,
			VendorID:         rb.Bid.VendorID,
			Amount:           rb.Bid.Amount,
			DeliveryTimeline: rb.Bid.DeliveryTimeline,
			Status:           string(rb.Bid.Status),
			SubmittedAt:      rb.Bid.SubmittedAt.Format(time.RFC3339),
		}
		if rb.Bid.Score != nil {
			item.Score = &scoreResponse{ScoreBreakdown: *rb.Bid.Score, Total: rb.Bid.Score.Total}
		}
		resp = append(resp, item)
	}

	writeJSON(w, http.StatusOK, resp)
}

type awardRequest struct {
	BidID int64  `json:"bid_id"`
	Notes string `json:"notes"`
}

// Award присуждает тендер выбранному предложению от имени текущего администратора.
func (h *Handler) Award(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetActorIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	tenderID, ok := tenderIDParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req awardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.BidID <= 0 || len(req.Notes) > maxNotesLength {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.Award(r.Context(), tenderID, req.BidID, req.Notes, actorID); err != nil {
		h.writeError(w, err, zap.Int64("tenderID", tenderID), zap.Int64("bidID", req.BidID))
		return
	}

	writeJSON(w, http.StatusOK, tenderStatusResponse{
		TenderID: tenderID,
		BidID:    req.BidID,
		Status:   string(model.TenderStatusAwarded),
	})
}

// statusCode сопоставляет доменную ошибку с HTTP-статусом.
func statusCode(err error) int {
	switch {
	case errors.Is(err, model.ErrTenderNotFound), errors.Is(err, model.ErrBidNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrTenderStillOpen),
		errors.Is(err, model.ErrTenderNotOpen),
		errors.Is(err, model.ErrAlreadyAwarded):
		return http.StatusConflict
	case errors.Is(err, model.ErrBidNotEligible),
		errors.Is(err, model.ErrInvalidTenderConfiguration),
		errors.Is(err, model.ErrInvalidBid),
		errors.Is(err, model.ErrInvalidVendorProfile):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrAwardFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error, fields ...zap.Field) {
	code := statusCode(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed", append(fields, zap.Error(err))...)
	}

	msg := http.StatusText(code)
	if code < http.StatusInternalServerError || errors.Is(err, model.ErrAwardFailed) {
		msg = err.Error()
	}
	if errors.Is(err, model.ErrAwardFailed) {
		// Транзакция могла зафиксироваться: клиент должен перечитать статус тендера.
		w.Header().Set("Retry-After", "1")
	}
	http.Error(w, msg, code)
}

func isInvalidInput(err error) bool {
	if errors.Is(err, model.ErrInvalidTenderConfiguration) {
		return false
	}
	return errors.Is(err, model.ErrInvalidBid) || errors.Is(err, model.ErrInvalidVendorProfile)
}

func splitJoined(err error) []string {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []string{err.Error()}
	}
	res := make([]string, 0, len(joined.Unwrap()))
	for _, e := range joined.Unwrap() {
		res = append(res, e.Error())
	}
	return res
}

func tenderIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "tenderID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
