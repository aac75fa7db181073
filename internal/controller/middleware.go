// internal/controller/middleware.go
package controller

import (
    "net/http"
)

// APIKeyAuth guards the admin API. Keys are expected in header X-API-Key. An
// empty key set rejects every request.
func APIKeyAuth(allowed map[string]struct{}) func(http.Handler) http.Handler {
    return func(next http.Handler) http.Handler {
        return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            key := r.Header.Get("X-API-Key")
            if _, ok := allowed[key]; !ok || key == "" {
                writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or missing API key"})
                return
            }
            next.ServeHTTP(w, r)
        })
    }
}

// BodyLimit limits request bodies to maxBytes.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
    return func(next http.Handler) http.Handler {
        return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            if maxBytes > 0 && r.Body != nil {
                r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
            }
            next.ServeHTTP(w, r)
        })
    }
}
