// internal/handler/trigger_handler.go
package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/unclebandit/mailqueue-backend/internal/service"
)

// SecretVerifier authenticates the shared trigger secret.
type SecretVerifier interface {
	Verify(ctx context.Context, supplied string) (bool, error)
}

// DispatchRunner runs one dispatcher invocation and reports remaining work.
type DispatchRunner interface {
	Tick(ctx context.Context) (*service.TickResult, error)
	HasPendingWork(ctx context.Context) (bool, error)
}

const usageHint = "Forbidden. Usage: GET /cron?trigger=true&secret=<secret>\n"

// TriggerHandler serves the external cron entry point.
type TriggerHandler struct {
	Secrets    SecretVerifier
	Dispatcher DispatchRunner
	Log        zerolog.Logger
	Now        func() time.Time
}

func NewTriggerHandler(secrets SecretVerifier, d DispatchRunner, log zerolog.Logger) *TriggerHandler {
	return &TriggerHandler{
		Secrets:    secrets,
		Dispatcher: d,
		Log:        log.With().Str("component", "trigger").Logger(),
		Now:        time.Now,
	}
}

func (h *TriggerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	defer func() {
		if rec := recover(); rec != nil {
			h.Log.Error().Interface("panic", rec).Msg("dispatch via external trigger panicked")
			h.fail(w)
		}
	}()

	q := r.URL.Query()
	secrets, present := q["secret"]
	if q.Get("trigger") != "true" || !present || len(secrets) != 1 || secrets[0] == "" {
		h.forbid(w, r)
		return
	}

	ok, err := h.Secrets.Verify(r.Context(), secrets[0])
	if err != nil {
		h.Log.Error().Err(err).Msg("secret verification failed")
		h.fail(w)
		return
	}
	if !ok {
		h.forbid(w, r)
		return
	}

	res, err := h.Dispatcher.Tick(r.Context())
	if err != nil {
		h.Log.Error().Err(err).Msg("dispatch via external trigger failed")
		h.fail(w)
		return
	}
	pending, err := h.Dispatcher.HasPendingWork(r.Context())
	if err != nil {
		h.Log.Error().Err(err).Msg("pending work check failed")
		h.fail(w)
		return
	}

	state := "COMPLETE"
	if pending {
		state = "PENDING"
	}
	h.Log.Info().Int64("job_id", res.JobID).Int("sent", res.Sent).Int("failed", res.Failed).Str("state", state).Msg("external trigger ran")

	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK\n%s\n%s\n", state, h.stamp())
}

func (h *TriggerHandler) forbid(w http.ResponseWriter, r *http.Request) {
	h.Log.Warn().Str("remote", r.RemoteAddr).Msg("rejected external trigger")
	w.WriteHeader(http.StatusForbidden)
	fmt.Fprint(w, usageHint)
}

func (h *TriggerHandler) fail(w http.ResponseWriter) {
	w.WriteHeader(http.StatusInternalServerError)
	fmt.Fprintf(w, "ERROR\n%s\n", h.stamp())
}

func (h *TriggerHandler) stamp() string {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	return now().UTC().Format(time.RFC3339)
}
