// internal/controller/router.go
package controller

import (
    "net/http"

    "github.com/go-chi/chi/v5"
    "github.com/go-chi/chi/v5/middleware"
)

// Routes collects everything the HTTP surface serves.
type Routes struct {
    Jobs        *JobController
    Admin       *AdminController
    Trigger     http.Handler
    Unsubscribe http.Handler
    APIKeys     map[string]struct{}
}

func NewRouter(rt Routes) http.Handler {
    r := chi.NewRouter()
    r.Use(middleware.RequestID)
    r.Use(middleware.Recoverer)

    r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
        w.WriteHeader(http.StatusOK)
    })
    r.Method(http.MethodGet, "/cron", rt.Trigger)
    r.Method(http.MethodGet, "/unsubscribe", rt.Unsubscribe)

    r.Route("/admin", func(r chi.Router) {
        r.Use(APIKeyAuth(rt.APIKeys))
        r.Use(BodyLimit(8 << 20))

        r.Route("/jobs", func(r chi.Router) {
            r.Post("/", rt.Jobs.CreateJob)
            r.Get("/", rt.Jobs.ListJobs)
            r.Get("/{id}", rt.Jobs.GetJob)
            r.Get("/{id}/items", rt.Jobs.ListItems)
            r.Patch("/{id}", rt.Jobs.UpdateJob)
            r.Delete("/{id}", rt.Jobs.DeleteJob)
        })

        r.Post("/dispatch", rt.Admin.Dispatch)
        r.Get("/notices", rt.Admin.Notices)
        r.Post("/secret/rotate", rt.Admin.RotateSecret)
        r.Get("/secret/url", rt.Admin.SecretURL)
        r.Post("/templates", rt.Admin.CreateTemplate)
    })

    return r
}
