package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"homesite/internal/history"
	"homesite/internal/update"
	"homesite/pkg/cmdutil"
)

// Outcomes counted in updates_total besides the update.Outcome values.
const (
	outcomeFailed   = "failed"
	outcomeRejected = "rejected"
	outcomeInvalid  = "invalid"
)

// HandleUpdate applies a verified webhook delivery. It runs behind
// VerifyPayload.
func (s *Server) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	source := r.Header.Get("X-GitHub-Delivery")
	if source == "" {
		source = "webhook"
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.Logger.Error("Failed to read request body", "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to read payload"})
		return
	}

	event, err := update.ParsePayload(body)
	if err != nil {
		s.metrics.updates.WithLabelValues(outcomeInvalid).Inc()
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON payload"})
		return
	}

	// GitHub stops waiting after ten seconds; the update must not be
	// cancelled with the request. Each step has its own timeout.
	ctx := context.WithoutCancel(r.Context())

	result, err := s.Updater.Apply(ctx, event)
	if err != nil {
		s.handleUpdateError(ctx, w, source, started, err)
		return
	}

	record := &history.UpdateRecord{Source: source, Status: string(result.Outcome), StartedAt: started}
	response := map[string]string{"status": string(result.Outcome)}
	if result.Release != "" {
		release := filepath.Base(result.Release)
		record.Release = &release
		response["release"] = release
		response["artifact"] = result.Artifact
	}
	if result.Reason != "" {
		response["reason"] = result.Reason
	}
	s.recordUpdate(ctx, record)
	s.metrics.updates.WithLabelValues(string(result.Outcome)).Inc()

	s.respondJSON(w, http.StatusOK, response)

	if result.Outcome == update.OutcomeRestarting {
		s.requestRestart(RestartRequest{Reason: "release installed", Release: result.Release})
	}
}

func (s *Server) handleUpdateError(ctx context.Context, w http.ResponseWriter, source string, started time.Time, err error) {
	if errors.Is(err, update.ErrUpdateInProgress) {
		s.Logger.Warn("Update already in progress, rejecting", "source", source)
		message := "Update already in progress"
		s.recordUpdate(ctx, &history.UpdateRecord{
			Source:       source,
			Status:       history.StatusRejected,
			StartedAt:    started,
			ErrorMessage: &message,
		})
		s.metrics.updates.WithLabelValues(outcomeRejected).Inc()
		s.respondJSON(w, http.StatusTooManyRequests, map[string]string{"error": message})
		return
	}

	status := http.StatusInternalServerError
	response := map[string]string{"error": s.redact(err.Error())}
	record := &history.UpdateRecord{Source: source, Status: history.StatusFailed, StartedAt: started}

	var serr *update.StageError
	if errors.As(err, &serr) {
		status = statusForStage(serr)
		stage := string(serr.Stage)
		record.Stage = &stage
		response["stage"] = stage
		response["error"] = s.redact(serr.Err.Error())
		if s.Config.ExposeOutput && serr.Output != "" {
			response["output"] = s.redact(serr.Output)
		}
	}
	message := response["error"]
	record.ErrorMessage = &message

	s.Logger.Error("Update failed", "source", source, "stage", response["stage"], "error", message)
	s.recordUpdate(ctx, record)
	s.metrics.updates.WithLabelValues(outcomeFailed).Inc()
	s.respondJSON(w, status, response)

	if s.Config.FailurePolicy == FailurePolicyRestart {
		s.requestRestart(RestartRequest{Reason: "update failed at stage " + response["stage"]})
	}
}

// statusForStage maps a failed step to a response status: timeouts to 504,
// remote failures to 502, everything local to 500.
func statusForStage(serr *update.StageError) int {
	switch {
	case serr.Timeout():
		return http.StatusGatewayTimeout
	case serr.Upstream():
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) recordUpdate(ctx context.Context, record *history.UpdateRecord) {
	if s.History == nil {
		return
	}
	completed := time.Now()
	duration := completed.Sub(record.StartedAt).Seconds()
	record.CompletedAt = &completed
	record.DurationSeconds = &duration

	if _, err := s.History.RecordUpdate(ctx, record); err != nil {
		s.Logger.Error("Failed to record update in history", "error", err, "status", record.Status)
	}
}

// redact removes configured secrets from text sent back to the caller.
func (s *Server) redact(text string) string {
	secrets := []string{s.Config.WebhookSecret, s.Config.GalleryToken, s.Config.APIToken, s.Config.GitHubToken}
	return string(cmdutil.SanitizeOutput([]byte(text), secrets))
}
