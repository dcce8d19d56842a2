package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shorelinehq/courier/internal/models"
	"github.com/shorelinehq/courier/internal/router"
	"github.com/shorelinehq/courier/internal/storage"
)

type MessageHandler struct {
	router *router.Router
	store  storage.Store
}

func NewMessageHandler(rt *router.Router, store storage.Store) *MessageHandler {
	return &MessageHandler{router: rt, store: store}
}

type routeResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
	Message   string `json:"message"`
}

const maxBodySize = 256 * 1024 // 256KB

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var in router.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	out, err := h.router.Route(r.Context(), in)
	if err != nil {
		var verr *router.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, routeResponse{
				Success: false,
				Message: verr.Error(),
			})
			return
		}
		writeJSON(w, http.StatusBadGateway, routeResponse{
			Success: false,
			Message: "failed to route message",
		})
		return
	}

	if out.Duplicate {
		writeJSON(w, http.StatusConflict, routeResponse{
			Success: false,
			TraceID: out.TraceID,
			Message: "Duplicate message detected",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, routeResponse{
		Success:   true,
		MessageID: out.MessageID,
		TraceID:   out.TraceID,
		Message:   "Message routed to queue",
	})
}

func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.store.GetDeliveryRecord(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get message")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "message not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records, err := h.store.ListDeliveryRecords(r.Context(), storage.RecordFilter{
		TraceID: r.URL.Query().Get("trace_id"),
		Channel: models.Channel(r.URL.Query().Get("channel")),
		Status:  models.MessageStatus(r.URL.Query().Get("status")),
		Limit:   limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if records == nil {
		records = []models.DeliveryRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}
