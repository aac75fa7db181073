// internal/controller/respond.go
package controller

import (
    "encoding/json"
    "errors"
    "net/http"
    "strconv"

    "github.com/go-chi/chi/v5"

    appErrors "github.com/unclebandit/mailqueue-backend/internal/errors"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto status codes. Unknown errors become a
// generic 500.
func writeError(w http.ResponseWriter, err error) {
    var verr *appErrors.ValidationError
    switch {
    case errors.As(err, &verr):
        writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": verr.Error(), "field": verr.Field})
    case errors.Is(err, appErrors.ErrNoRecipients):
        writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
    case appErrors.IsNotFound(err):
        writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
    case errors.Is(err, appErrors.ErrJobNotEditable), errors.Is(err, appErrors.ErrRotationInProgress):
        writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
    default:
        writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
    }
}

func jobIDParam(r *http.Request) (int64, error) {
    id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
    if err != nil || id < 1 {
        return 0, appErrors.NewValidation("id", "must be a positive integer")
    }
    return id, nil
}
