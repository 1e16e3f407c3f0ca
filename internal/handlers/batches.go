package handlers

import (
	"net/http"
	"strings"
)

func (h *Handler) HandleBatches(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		batches := h.store.GetAll()
		list := make([]batchSummary, 0, len(batches))
		for _, b := range batches {
			list = append(list, summarize(b))
		}
		h.writeJSON(w, list)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) HandleBatchDetail(w http.ResponseWriter, r *http.Request) {
	batchID := strings.TrimPrefix(r.URL.Path, "/api/batches/")

	batch, ok := h.getBatchOrError(w, batchID)
	if !ok {
		return
	}

	switch r.Method {
	case "GET":
		h.writeJSON(w, batch)
	case "DELETE":
		h.store.Delete(batchID)
		w.WriteHeader(http.StatusNoContent)
	default:
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleBatchPage renders a stored batch as a results page.
func (h *Handler) HandleBatchPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	batchID := strings.TrimPrefix(r.URL.Path, "/batches/")
	batch, ok := h.getBatchOrError(w, batchID)
	if !ok {
		return
	}
	h.renderResults(w, batch)
}
