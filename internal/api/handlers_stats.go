package api

import (
	"net/http"

	"github.com/shorelinehq/courier/internal/queue"
	"github.com/shorelinehq/courier/internal/storage"
)

type StatsHandler struct {
	store  storage.Store
	broker queue.Broker
}

func NewStatsHandler(store storage.Store, broker queue.Broker) *StatsHandler {
	return &StatsHandler{store: store, broker: broker}
}

func (h *StatsHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "courier",
	})
}

func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	depths := map[string]int64{}
	for _, q := range []string{queue.EmailQueue, queue.SMSQueue, queue.WhatsAppQueue, queue.DeadLetterQueue} {
		n, err := h.broker.Depth(r.Context(), q)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to get queue depth")
			return
		}
		depths[q] = n
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": stats,
		"queues":  depths,
	})
}
