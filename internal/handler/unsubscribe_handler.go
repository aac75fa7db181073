// internal/handler/unsubscribe_handler.go
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/mailqueue-backend/internal/errors"
)

type Unsubscriber interface {
	UnsubscribeByToken(ctx context.Context, token string) (string, error)
}

// UnsubscribeHandler flips the subscriber owning a token to unsubscribed.
type UnsubscribeHandler struct {
	Subscribers Unsubscriber
	Log         zerolog.Logger
}

func (h *UnsubscribeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing unsubscribe token", http.StatusBadRequest)
		return
	}

	email, err := h.Subscribers.UnsubscribeByToken(r.Context(), token)
	if errors.Is(err, appErrors.ErrTokenNotFound) {
		http.Error(w, "unknown unsubscribe link", http.StatusNotFound)
		return
	}
	if err != nil {
		h.Log.Error().Err(err).Msg("unsubscribe failed")
		http.Error(w, "could not process unsubscribe request", http.StatusInternalServerError)
		return
	}

	h.Log.Info().Str("email", email).Msg("subscriber unsubscribed")
	fmt.Fprintf(w, "%s has been unsubscribed.\n", email)
}
