package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	syncx "github.com/vidpod/vidpod-lms/internal/sync"
)

// GET /events?after=0&limit=500
// Pull feed of grading and progress events, consumed by a hosted instance
// syncing from a school server.
func ListEventsHandler(events *syncx.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		after, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
		list, err := events.ListSince(r.Context(),
			after, parseIntDefault(r.URL.Query().Get("limit"), 500))
		if err != nil {
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		type ev struct {
			Offset    int64           `json:"offset"`
			SiteID    string          `json:"site_id"`
			Type      string          `json:"type"`
			Key       string          `json:"key"`
			Data      json.RawMessage `json:"data"`
			CreatedAt int64           `json:"created_at"`
		}
		out := make([]ev, 0, len(list))
		for _, e := range list {
			out = append(out, ev{
				Offset: e.Offset, SiteID: e.SiteID, Type: e.Type,
				Key: e.Key, Data: json.RawMessage(e.DataJSON), CreatedAt: e.CreatedAt,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}
