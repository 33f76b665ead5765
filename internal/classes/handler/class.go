package handler

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"gymbook/internal/classes/service"
	"gymbook/internal/reservations/checkin"
	"gymbook/pkg/config"
	httputil "gymbook/pkg/http"
	"gymbook/pkg/logger"
	"gymbook/pkg/model"
	"gymbook/pkg/qr"
)

type ClassHandler struct {
	service service.ClassService
	cfg     *config.Config
	log     *logger.Logger
}

func NewClassHandler(service service.ClassService, cfg *config.Config, log *logger.Logger) *ClassHandler {
	return &ClassHandler{
		service: service,
		cfg:     cfg,
		log:     log,
	}
}

func (h *ClassHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var class model.Class
	if err := json.NewDecoder(r.Body).Decode(&class); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Create", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if err := h.service.Create(r.Context(), &class); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Create", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, class); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *ClassHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if id == "" {
		if err := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "ID parameter is required",
		}); err != nil {
			h.log.Error("failed to write bad request response", "handler", "GetByID", "operation", "WriteJSON", "error", err)
		}
		return
	}

	class, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetByID", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, class); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

// List serves the class catalog. The optional fecha query parameter narrows
// to one day; today's listing hides classes that already started.
func (h *ClassHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "List", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	fecha := r.URL.Query().Get("fecha")

	classes, totalCount, err := h.service.List(r.Context(), fecha, limit, offset)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "List", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WritePaginated(w, classes, totalCount, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "List", "operation", "WritePaginated", "error", err)
	}
}

func (h *ClassHandler) Update(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if id == "" {
		if err := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "ID parameter is required",
		}); err != nil {
			h.log.Error("failed to write bad request response", "handler", "Update", "operation", "WriteJSON", "error", err)
		}
		return
	}

	var updates model.ClassUpdate
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Update", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if err := h.service.Update(r.Context(), id, &updates); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Update", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	httputil.WriteNoContent(w)
}

func (h *ClassHandler) Delete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if id == "" {
		if err := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "ID parameter is required",
		}); err != nil {
			h.log.Error("failed to write bad request response", "handler", "Delete", "operation", "WriteJSON", "error", err)
		}
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Delete", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	httputil.WriteNoContent(w)
}

func (h *ClassHandler) Roster(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if id == "" {
		if err := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "ID parameter is required",
		}); err != nil {
			h.log.Error("failed to write bad request response", "handler", "Roster", "operation", "WriteJSON", "error", err)
		}
		return
	}

	roster, err := h.service.Roster(r.Context(), id)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Roster", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, roster); err != nil {
		h.log.Error("failed to write success response", "handler", "Roster", "operation", "WriteSuccess", "error", err)
	}
}

type checkInCodeResponse struct {
	Token   checkin.Code `json:"token"`
	Minimal string       `json:"minimal"`
	QRPNG   string       `json:"qr_png"`
}

// CheckInCode issues the scannable code the studio displays at the door:
// the JSON token, the minimal CLASE form, and a base64 PNG QR of the
// minimal form.
func (h *ClassHandler) CheckInCode(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if id == "" {
		if err := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "ID parameter is required",
		}); err != nil {
			h.log.Error("failed to write bad request response", "handler", "CheckInCode", "operation", "WriteJSON", "error", err)
		}
		return
	}

	// refuse to issue codes for classes that do not exist
	if _, err := h.service.GetByID(r.Context(), id); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "CheckInCode", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	code := checkin.Issue(id, h.cfg.CheckInCodeTTL, time.Now())

	pngData, err := qr.EncodePNG(code.Minimal(), h.cfg.CheckInQRSize)
	if err != nil {
		h.log.Error("failed to render check-in QR", "handler", "CheckInCode", "class_id", id, "error", err)
		if writeErr := httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{
			Error: "Failed to render check-in QR code",
		}); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "CheckInCode", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	response := checkInCodeResponse{
		Token:   code,
		Minimal: code.Minimal(),
		QRPNG:   base64.StdEncoding.EncodeToString(pngData),
	}

	if err := httputil.WriteSuccess(w, response); err != nil {
		h.log.Error("failed to write success response", "handler", "CheckInCode", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ClassHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/classes", h.Create)
	router.GET("/api/v1/classes", h.List)
	router.GET("/api/v1/classes/id/:id", h.GetByID)
	router.PATCH("/api/v1/classes/id/:id", h.Update)
	router.DELETE("/api/v1/classes/id/:id", h.Delete)
	router.GET("/api/v1/classes/id/:id/roster", h.Roster)
	router.GET("/api/v1/classes/id/:id/checkin-code", h.CheckInCode)
}
