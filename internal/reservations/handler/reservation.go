package handler

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"gymbook/internal/reservations/service"
	httputil "gymbook/pkg/http"
	"gymbook/pkg/logger"
	"gymbook/pkg/middleware"
)

type ReservationHandler struct {
	service service.ReservationService
	log     *logger.Logger
}

func NewReservationHandler(service service.ReservationService, log *logger.Logger) *ReservationHandler {
	return &ReservationHandler{
		service: service,
		log:     log,
	}
}

type reservationRequest struct {
	ClassID string `json:"class_id"`
	// MemberID is only honored when the request carries no bearer token;
	// an authenticated session always acts as itself.
	MemberID string `json:"member_id,omitempty"`
}

type checkInRequest struct {
	Code string `json:"code"`
	// Raw QR payloads that scanners post verbatim.
	MemberID string `json:"member_id,omitempty"`
}

// memberID resolves the acting member: the bearer token subject when
// present, the request body otherwise (internal/admin calls).
func memberID(r *http.Request, bodyMemberID string) string {
	if id := middleware.MemberFromContext(r.Context()); id != "" {
		return id
	}
	return bodyMemberID
}

func (h *ReservationHandler) decode(w http.ResponseWriter, r *http.Request, handler string, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", handler, "operation", "WriteJSON", "error", writeErr)
		}
		return false
	}
	return true
}

func (h *ReservationHandler) requireIDs(w http.ResponseWriter, handler, classID, actingMember string) bool {
	if classID == "" || actingMember == "" {
		if err := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "class_id and member identity are required",
		}); err != nil {
			h.log.Error("failed to write bad request response", "handler", handler, "operation", "WriteJSON", "error", err)
		}
		return false
	}
	return true
}

// Enroll answers 201 for a confirmed seat and 200 for a waitlist spot, so
// clients can tell the outcomes apart without parsing the body.
func (h *ReservationHandler) Enroll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req reservationRequest
	if !h.decode(w, r, "Enroll", &req) {
		return
	}

	acting := memberID(r, req.MemberID)
	if !h.requireIDs(w, "Enroll", req.ClassID, acting) {
		return
	}

	result, err := h.service.Enroll(r.Context(), req.ClassID, acting)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Enroll", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if result.Status == service.StatusConfirmed {
		if err := httputil.WriteCreated(w, result); err != nil {
			h.log.Error("failed to write created response", "handler", "Enroll", "operation", "WriteCreated", "error", err)
		}
		return
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", "Enroll", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req reservationRequest
	if !h.decode(w, r, "Cancel", &req) {
		return
	}

	acting := memberID(r, req.MemberID)
	if !h.requireIDs(w, "Cancel", req.ClassID, acting) {
		return
	}

	result, err := h.service.Cancel(r.Context(), req.ClassID, acting)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Cancel", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", "Cancel", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) Unenroll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req reservationRequest
	if !h.decode(w, r, "Unenroll", &req) {
		return
	}

	acting := memberID(r, req.MemberID)
	if !h.requireIDs(w, "Unenroll", req.ClassID, acting) {
		return
	}

	if err := h.service.Unenroll(r.Context(), req.ClassID, acting); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Unenroll", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	httputil.WriteNoContent(w)
}

func (h *ReservationHandler) CheckIn(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req checkInRequest
	if !h.decode(w, r, "CheckIn", &req) {
		return
	}

	acting := memberID(r, req.MemberID)
	if req.Code == "" || acting == "" {
		if err := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "code and member identity are required",
		}); err != nil {
			h.log.Error("failed to write bad request response", "handler", "CheckIn", "operation", "WriteJSON", "error", err)
		}
		return
	}

	if err := h.service.CheckIn(r.Context(), req.Code, acting); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "CheckIn", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, map[string]string{"status": "checked_in"}); err != nil {
		h.log.Error("failed to write success response", "handler", "CheckIn", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ReservationHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/reservations/enroll", h.Enroll)
	router.POST("/api/v1/reservations/cancel", h.Cancel)
	router.POST("/api/v1/reservations/unenroll", h.Unenroll)
	router.POST("/api/v1/reservations/checkin", h.CheckIn)
}
