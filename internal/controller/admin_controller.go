// internal/controller/admin_controller.go
package controller

import (
    "context"
    "encoding/json"
    "net/http"
    "strings"

    "github.com/rs/zerolog"

    appErrors "github.com/unclebandit/mailqueue-backend/internal/errors"
    "github.com/unclebandit/mailqueue-backend/internal/model"
    "github.com/unclebandit/mailqueue-backend/internal/secret"
    "github.com/unclebandit/mailqueue-backend/internal/service"
)

type Dispatcher interface {
    Tick(ctx context.Context) (*service.TickResult, error)
}

// SecretAdmin is the operator side of the trigger secret.
type SecretAdmin interface {
    Current(ctx context.Context) (string, error)
    Rotate(ctx context.Context) (string, error)
    PendingNotice(ctx context.Context) (*secret.Notice, error)
}

type TemplateStore interface {
    Create(ctx context.Context, t *model.EmailTemplate) error
}

type AdminController struct {
    Dispatcher Dispatcher
    Secrets    SecretAdmin
    Templates  TemplateStore
    TriggerURL func(secret string) string
    Log        zerolog.Logger
}

// Dispatch is the manual trigger: one dispatcher invocation.
func (c *AdminController) Dispatch(w http.ResponseWriter, r *http.Request) {
    res, err := c.Dispatcher.Tick(r.Context())
    if err != nil {
        c.Log.Error().Err(err).Msg("manual dispatch failed")
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, res)
}

func (c *AdminController) Notices(w http.ResponseWriter, r *http.Request) {
    notice, err := c.Secrets.PendingNotice(r.Context())
    if err != nil {
        c.Log.Error().Err(err).Msg("loading notices failed")
        writeError(w, err)
        return
    }

    notices := []*secret.Notice{}
    if notice != nil {
        notice.TriggerURL = c.TriggerURL(notice.NewSecret)
        notices = append(notices, notice)
    }
    writeJSON(w, http.StatusOK, map[string]interface{}{"data": notices})
}

func (c *AdminController) RotateSecret(w http.ResponseWriter, r *http.Request) {
    fresh, err := c.Secrets.Rotate(r.Context())
    if err != nil {
        c.Log.Error().Err(err).Msg("secret rotation failed")
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, map[string]string{"trigger_url": c.TriggerURL(fresh)})
}

func (c *AdminController) SecretURL(w http.ResponseWriter, r *http.Request) {
    cur, err := c.Secrets.Current(r.Context())
    if err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, map[string]string{"trigger_url": c.TriggerURL(cur)})
}

func (c *AdminController) CreateTemplate(w http.ResponseWriter, r *http.Request) {
    var t model.EmailTemplate
    if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
        writeError(w, appErrors.NewValidation("body", "invalid JSON"))
        return
    }
    switch {
    case strings.TrimSpace(t.ID) == "":
        writeError(w, appErrors.NewValidation("id", "is required"))
        return
    case strings.TrimSpace(t.Subject) == "":
        writeError(w, appErrors.NewValidation("subject", "is required"))
        return
    case strings.TrimSpace(t.HTML) == "":
        writeError(w, appErrors.NewValidation("html", "is required"))
        return
    }

    if err := c.Templates.Create(r.Context(), &t); err != nil {
        c.Log.Error().Err(err).Str("template_ref", t.ID).Msg("saving template failed")
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusCreated, t)
}
