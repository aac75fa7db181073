// internal/controller/job_controller.go
package controller

import (
    "encoding/json"
    "net/http"
    "strconv"
    "time"

    "github.com/rs/zerolog"

    appErrors "github.com/unclebandit/mailqueue-backend/internal/errors"
    "github.com/unclebandit/mailqueue-backend/internal/recipients"
    "github.com/unclebandit/mailqueue-backend/internal/service"
)

type JobController struct {
    JobService *service.JobService
    Log        zerolog.Logger
}

func (c *JobController) CreateJob(w http.ResponseWriter, r *http.Request) {
    var body struct {
        TemplateRef   string     `json:"template_ref"`
        StartAt       *time.Time `json:"start_at"`
        RatePerMinute int        `json:"rate_per_minute"`
        Source        string     `json:"source"`
        Recipients    string     `json:"recipients"`
        S3Key         string     `json:"s3_key"`
    }
    if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
        writeError(w, appErrors.NewValidation("body", "invalid JSON"))
        return
    }

    job, err := c.JobService.CreateJob(r.Context(), service.CreateJobInput{
        TemplateRef:   body.TemplateRef,
        StartAt:       body.StartAt,
        RatePerMinute: body.RatePerMinute,
        Source:        recipients.Source(body.Source),
        Recipients:    body.Recipients,
        S3Key:         body.S3Key,
    })
    if err != nil {
        c.Log.Warn().Err(err).Str("template_ref", body.TemplateRef).Msg("job creation refused")
        writeError(w, err)
        return
    }

    c.Log.Info().Int64("job_id", job.ID).Int("total", job.Total).Msg("job created")
    writeJSON(w, http.StatusCreated, job)
}

func (c *JobController) ListJobs(w http.ResponseWriter, r *http.Request) {
    page, _ := strconv.Atoi(r.URL.Query().Get("page"))
    pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
    status := r.URL.Query().Get("status")

    jobs, pagination, err := c.JobService.ListJobs(r.Context(), page, pageSize, status)
    if err != nil {
        c.Log.Error().Err(err).Msg("list jobs failed")
        writeError(w, err)
        return
    }

    writeJSON(w, http.StatusOK, map[string]interface{}{
        "data":       jobs,
        "pagination": pagination,
    })
}

func (c *JobController) GetJob(w http.ResponseWriter, r *http.Request) {
    id, err := jobIDParam(r)
    if err != nil {
        writeError(w, err)
        return
    }

    details, err := c.JobService.GetJobDetails(r.Context(), id)
    if err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, details)
}

func (c *JobController) ListItems(w http.ResponseWriter, r *http.Request) {
    id, err := jobIDParam(r)
    if err != nil {
        writeError(w, err)
        return
    }
    page, _ := strconv.Atoi(r.URL.Query().Get("page"))
    pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

    items, err := c.JobService.ListItems(r.Context(), id, r.URL.Query().Get("status"), page, pageSize)
    if err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, map[string]interface{}{"data": items})
}

func (c *JobController) UpdateJob(w http.ResponseWriter, r *http.Request) {
    id, err := jobIDParam(r)
    if err != nil {
        writeError(w, err)
        return
    }

    var body struct {
        TemplateRef   *string    `json:"template_ref"`
        StartAt       *time.Time `json:"start_at"`
        RatePerMinute *int       `json:"rate_per_minute"`
    }
    if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
        writeError(w, appErrors.NewValidation("body", "invalid JSON"))
        return
    }

    job, err := c.JobService.UpdateJob(r.Context(), id, service.UpdateJobInput{
        TemplateRef:   body.TemplateRef,
        StartAt:       body.StartAt,
        RatePerMinute: body.RatePerMinute,
    })
    if err != nil {
        writeError(w, err)
        return
    }
    writeJSON(w, http.StatusOK, job)
}

func (c *JobController) DeleteJob(w http.ResponseWriter, r *http.Request) {
    id, err := jobIDParam(r)
    if err != nil {
        writeError(w, err)
        return
    }
    if err := c.JobService.DeleteJob(r.Context(), id); err != nil {
        writeError(w, err)
        return
    }
    c.Log.Info().Int64("job_id", id).Msg("job deleted")
    w.WriteHeader(http.StatusNoContent)
}
