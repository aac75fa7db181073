// internal/service/job_service.go
package service

import (
    "context"
    "fmt"
    "strings"
    "time"

    appErrors "github.com/unclebandit/mailqueue-backend/internal/errors"
    "github.com/unclebandit/mailqueue-backend/internal/model"
    "github.com/unclebandit/mailqueue-backend/internal/recipients"
)

// JobRepository is the admin-facing part of the job store.
type JobRepository interface {
    GetByID(ctx context.Context, id int64) (*model.Job, error)
    List(ctx context.Context, offset, limit int, status string) ([]*model.Job, int, error)
    UpdateSettings(ctx context.Context, j *model.Job) error
    Delete(ctx context.Context, id int64) error
}

type ItemRepository interface {
    List(ctx context.Context, jobID int64, status string, offset, limit int) ([]model.Item, error)
    Stats(ctx context.Context, jobID int64) (map[string]int, error)
}

type TemplateChecker interface {
    Exists(ctx context.Context, ref string) (bool, error)
}

type RecipientResolver interface {
    Resolve(ctx context.Context, req recipients.Request) ([]string, error)
}

// JobCreator persists a job together with its items atomically.
type JobCreator interface {
    CreateWithItems(ctx context.Context, job *model.Job, emails []string) error
}

// UploadSource fetches previously uploaded paste lists.
type UploadSource interface {
    PasteText(ctx context.Context, key string) (string, error)
}

type JobService struct {
    Jobs      JobRepository
    Items     ItemRepository
    Templates TemplateChecker
    Resolver  RecipientResolver
    Creator   JobCreator
    Uploads   UploadSource
    MaxRate   int
    Now       func() time.Time
}

type CreateJobInput struct {
    TemplateRef   string
    StartAt       *time.Time
    RatePerMinute int
    Source        recipients.Source
    Recipients    string
    S3Key         string
}

// UpdateJobInput carries optional edits; nil fields are left unchanged.
type UpdateJobInput struct {
    TemplateRef   *string
    StartAt       *time.Time
    RatePerMinute *int
}

type JobDetails struct {
    *model.Job
    Stats map[string]int `json:"stats"`
}

func (s *JobService) now() time.Time {
    if s.Now != nil {
        return s.Now()
    }
    return time.Now()
}

func (s *JobService) validateRate(rate int) error {
    if rate < 1 {
        return appErrors.NewValidation("rate_per_minute", "must be at least 1")
    }
    if s.MaxRate > 0 && rate > s.MaxRate {
        return appErrors.NewValidation("rate_per_minute", fmt.Sprintf("must not exceed %d", s.MaxRate))
    }
    return nil
}

func (s *JobService) checkTemplate(ctx context.Context, ref string) error {
    if strings.TrimSpace(ref) == "" {
        return appErrors.NewValidation("template_ref", "is required")
    }
    ok, err := s.Templates.Exists(ctx, ref)
    if err != nil {
        return err
    }
    if !ok {
        return appErrors.NewTemplateNotFound(ref)
    }
    return nil
}

// CreateJob validates the input, resolves recipients and persists the job
// with one queued item per recipient. Nothing is written on any error.
func (s *JobService) CreateJob(ctx context.Context, in CreateJobInput) (*model.Job, error) {
    if err := s.checkTemplate(ctx, in.TemplateRef); err != nil {
        return nil, err
    }
    if err := s.validateRate(in.RatePerMinute); err != nil {
        return nil, err
    }

    startAt := s.now().UTC()
    if in.StartAt != nil {
        startAt = in.StartAt.UTC()
    }

    req := recipients.Request{Source: in.Source, Text: in.Recipients}
    if in.Source == recipients.SourcePaste && in.S3Key != "" {
        if s.Uploads == nil {
            return nil, appErrors.NewValidation("s3_key", "uploads are not configured")
        }
        text, err := s.Uploads.PasteText(ctx, in.S3Key)
        if err != nil {
            return nil, fmt.Errorf("fetch upload %s: %w", in.S3Key, err)
        }
        req.Text = text
    }

    emails, err := s.Resolver.Resolve(ctx, req)
    if err != nil {
        return nil, err
    }

    job := &model.Job{
        TemplateRef:   strings.TrimSpace(in.TemplateRef),
        Status:        model.JobPending,
        StartAt:       startAt,
        RatePerMinute: in.RatePerMinute,
    }
    if err := s.Creator.CreateWithItems(ctx, job, emails); err != nil {
        return nil, err
    }
    return job, nil
}

// UpdateJob edits a pending or running job.
func (s *JobService) UpdateJob(ctx context.Context, id int64, in UpdateJobInput) (*model.Job, error) {
    job, err := s.Jobs.GetByID(ctx, id)
    if err != nil {
        return nil, err
    }
    if !job.Status.Dispatchable() {
        return nil, appErrors.ErrJobNotEditable
    }

    if in.TemplateRef != nil {
        if err := s.checkTemplate(ctx, *in.TemplateRef); err != nil {
            return nil, err
        }
        job.TemplateRef = strings.TrimSpace(*in.TemplateRef)
    }
    if in.StartAt != nil {
        job.StartAt = in.StartAt.UTC()
    }
    if in.RatePerMinute != nil {
        if err := s.validateRate(*in.RatePerMinute); err != nil {
            return nil, err
        }
        job.RatePerMinute = *in.RatePerMinute
    }

    if err := s.Jobs.UpdateSettings(ctx, job); err != nil {
        return nil, err
    }
    return job, nil
}

func (s *JobService) DeleteJob(ctx context.Context, id int64) error {
    return s.Jobs.Delete(ctx, id)
}

// ListJobs fetches jobs with pagination
func (s *JobService) ListJobs(ctx context.Context, page, pageSize int, status string) ([]model.Job, map[string]int, error) {
    page, pageSize, offset := paginate(page, pageSize)

    ptrs, total, err := s.Jobs.List(ctx, offset, pageSize, status)
    if err != nil {
        return nil, nil, err
    }

    jobs := make([]model.Job, len(ptrs))
    for i, j := range ptrs {
        jobs[i] = *j
    }

    totalPages := (total + pageSize - 1) / pageSize
    pagination := map[string]int{
        "page":        page,
        "page_size":   pageSize,
        "total_count": total,
        "total_pages": totalPages,
    }

    return jobs, pagination, nil
}

func (s *JobService) GetJobDetails(ctx context.Context, id int64) (*JobDetails, error) {
    job, err := s.Jobs.GetByID(ctx, id)
    if err != nil {
        return nil, err
    }
    stats, err := s.Items.Stats(ctx, id)
    if err != nil {
        return nil, err
    }
    return &JobDetails{Job: job, Stats: stats}, nil
}

// ListItems returns a page of a job's items, optionally filtered by status.
func (s *JobService) ListItems(ctx context.Context, jobID int64, status string, page, pageSize int) ([]model.Item, error) {
    switch model.ItemStatus(status) {
    case "", model.ItemQueued, model.ItemSent, model.ItemFailed:
    default:
        return nil, appErrors.NewValidation("status", "must be queued, sent or failed")
    }
    if _, err := s.Jobs.GetByID(ctx, jobID); err != nil {
        return nil, err
    }
    _, pageSize, offset := paginate(page, pageSize)
    return s.Items.List(ctx, jobID, status, offset, pageSize)
}

func paginate(page, pageSize int) (int, int, int) {
    if page < 1 {
        page = 1
    }
    if pageSize < 1 {
        pageSize = 20
    }
    if pageSize > 100 {
        pageSize = 100
    }
    return page, pageSize, (page - 1) * pageSize
}
