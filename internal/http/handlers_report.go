package http

import (
	"net/http"
	"time"

	"spendcast/internal/amqp"
	"spendcast/internal/core"
	"spendcast/internal/log"
	"spendcast/internal/services"

	"github.com/go-chi/chi/v5"
)

type queuedResponse struct {
	Status      string    `json:"status"`
	UserID      string    `json:"user_id"`
	From        string    `json:"from,omitempty"`
	To          string    `json:"to,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// handleSync queues a history refresh when a queue is configured and runs it
// inline otherwise, or when publishing fails.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "userID")
	rng, err := parseRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.deps.Store.GetUser(ctx, userID); err != nil {
		writeError(w, r, err)
		return
	}

	if s.deps.Queue != nil {
		msg := amqp.NewHistoryRefreshMessage(userID, rng)
		err := s.deps.Queue.PublishHistoryRefresh(ctx, msg)
		if err == nil {
			writeJSON(w, http.StatusAccepted, queuedResponse{
				Status:      "queued",
				UserID:      userID,
				From:        msg.From,
				To:          msg.To,
				RequestedAt: msg.RequestedAt,
			})
			return
		}
		log.FromContext(ctx).WarnContext(ctx, "refresh queue unavailable, syncing inline",
			log.FieldUserID, userID, log.FieldRange, rangeOrEmpty(rng), log.FieldError, err)
	}

	res, err := s.deps.Sync.Sync(ctx, userID, rng)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	refresh, err := parseBool(r, "refresh")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rng, err := parseRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rep, err := s.deps.Reports.Generate(r.Context(), chi.URLParam(r, "userID"), services.ReportOptions{
		Refresh: refresh,
		Window:  rng,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// rangeOrEmpty renders an optional window for log lines.
func rangeOrEmpty(rng *core.DateRange) string {
	if rng == nil {
		return ""
	}
	return rng.String()
}
