package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"palmtell/internal/queue"
)

// JobAnalyzePalm is the queue callback that runs a palm analysis. Delivery
// is at least once: any non-2xx response makes the queue redeliver, so only
// errors that a retry could fix return one.
func (a *App) JobAnalyzePalm(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "failed to read body")
		return
	}
	if err := a.QueueVerifier.Verify(body, r.Header.Get(queue.SignatureHeader)); err != nil {
		a.Logger.Warn().Err(err).Msg("job signature rejected")
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid signature")
		return
	}
	var job queue.AnalysisJob
	if err := json.Unmarshal(body, &job); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid job payload")
		return
	}
	if err := a.Jobs.Run(r.Context(), job); err != nil {
		a.Logger.Error().Err(err).Str("reading_id", job.ReadingID).Msg("analysis job failed")
		a.error(w, http.StatusInternalServerError, "internal", "job failed, will retry")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
