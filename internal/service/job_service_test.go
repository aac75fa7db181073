package service_test

import (
    "context"
    "errors"
    "testing"
    "time"

    appErrors "github.com/unclebandit/mailqueue-backend/internal/errors"
    "github.com/unclebandit/mailqueue-backend/internal/model"
    "github.com/unclebandit/mailqueue-backend/internal/recipients"
    "github.com/unclebandit/mailqueue-backend/internal/service"
)

// MockJobRepo keeps jobs in insertion order; List returns newest first.
type MockJobRepo struct {
    jobs []*model.Job
}

func (m *MockJobRepo) GetByID(ctx context.Context, id int64) (*model.Job, error) {
    for _, j := range m.jobs {
        if j.ID == id {
            cp := *j
            return &cp, nil
        }
    }
    return nil, appErrors.NewJobNotFound(id)
}

func (m *MockJobRepo) List(ctx context.Context, offset, limit int, status string) ([]*model.Job, int, error) {
    var filtered []*model.Job
    for i := len(m.jobs) - 1; i >= 0; i-- {
        if status == "" || string(m.jobs[i].Status) == status {
            filtered = append(filtered, m.jobs[i])
        }
    }
    total := len(filtered)
    if offset > total {
        offset = total
    }
    end := offset + limit
    if end > total {
        end = total
    }
    return filtered[offset:end], total, nil
}

func (m *MockJobRepo) UpdateSettings(ctx context.Context, j *model.Job) error {
    for i, cur := range m.jobs {
        if cur.ID == j.ID {
            if !cur.Status.Dispatchable() {
                return appErrors.ErrJobNotEditable
            }
            cp := *j
            m.jobs[i] = &cp
            return nil
        }
    }
    return appErrors.NewJobNotFound(j.ID)
}

func (m *MockJobRepo) Delete(ctx context.Context, id int64) error {
    for i, j := range m.jobs {
        if j.ID == id {
            m.jobs = append(m.jobs[:i], m.jobs[i+1:]...)
            return nil
        }
    }
    return appErrors.NewJobNotFound(id)
}

type MockItemRepo struct{}

func (MockItemRepo) List(ctx context.Context, jobID int64, status string, offset, limit int) ([]model.Item, error) {
    return []model.Item{{ID: 1, JobID: jobID, Email: "a@example.com", Status: model.ItemFailed, Error: "bounced"}}, nil
}

func (MockItemRepo) Stats(ctx context.Context, jobID int64) (map[string]int, error) {
    return map[string]int{"queued": 1, "sent": 2, "failed": 0}, nil
}

type MockTemplates struct{ known map[string]bool }

func (m MockTemplates) Exists(ctx context.Context, ref string) (bool, error) {
    return m.known[ref], nil
}

type MockResolver struct {
    got recipients.Request
    out []string
    err error
}

func (m *MockResolver) Resolve(ctx context.Context, req recipients.Request) ([]string, error) {
    m.got = req
    return m.out, m.err
}

type MockCreator struct {
    created *model.Job
    emails  []string
}

func (m *MockCreator) CreateWithItems(ctx context.Context, job *model.Job, emails []string) error {
    job.ID = 42
    job.Total = len(emails)
    m.created = job
    m.emails = emails
    return nil
}

type MockUploads struct{ text string }

func (m MockUploads) PasteText(ctx context.Context, key string) (string, error) { return m.text, nil }

func newJobService() (*service.JobService, *MockJobRepo, *MockResolver, *MockCreator) {
    repo := &MockJobRepo{}
    res := &MockResolver{out: []string{"a@example.com", "b@example.com"}}
    creator := &MockCreator{}
    return &service.JobService{
        Jobs:      repo,
        Items:     MockItemRepo{},
        Templates: MockTemplates{known: map[string]bool{"welcome": true, "promo": true}},
        Resolver:  res,
        Creator:   creator,
        MaxRate:   1000,
        Now:       func() time.Time { return noon },
    }, repo, res, creator
}

func TestCreateJob(t *testing.T) {
    svc, _, res, creator := newJobService()

    job, err := svc.CreateJob(context.Background(), service.CreateJobInput{
        TemplateRef:   "welcome",
        RatePerMinute: 100,
        Source:        recipients.SourcePaste,
        Recipients:    "a@example.com\nb@example.com",
    })
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if job.ID != 42 || job.Total != 2 || job.Status != model.JobPending {
        t.Errorf("job = %+v", job)
    }
    if !job.StartAt.Equal(noon) {
        t.Errorf("start_at defaulted to %v, want now", job.StartAt)
    }
    if res.got.Source != recipients.SourcePaste {
        t.Errorf("resolver got %+v", res.got)
    }
    if len(creator.emails) != 2 {
        t.Errorf("creator got %v", creator.emails)
    }
}

func TestCreateJobValidation(t *testing.T) {
    cases := []struct {
        name string
        in   service.CreateJobInput
    }{
        {"missing template", service.CreateJobInput{RatePerMinute: 10, Source: recipients.SourceScan}},
        {"zero rate", service.CreateJobInput{TemplateRef: "welcome", Source: recipients.SourceScan}},
        {"rate above max", service.CreateJobInput{TemplateRef: "welcome", RatePerMinute: 5000, Source: recipients.SourceScan}},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            svc, _, _, creator := newJobService()
            _, err := svc.CreateJob(context.Background(), tc.in)
            var verr *appErrors.ValidationError
            if !errors.As(err, &verr) {
                t.Fatalf("expected validation error, got %v", err)
            }
            if creator.created != nil {
                t.Error("job persisted despite validation error")
            }
        })
    }
}

func TestCreateJobUnknownTemplate(t *testing.T) {
    svc, _, _, creator := newJobService()
    _, err := svc.CreateJob(context.Background(), service.CreateJobInput{
        TemplateRef: "nope", RatePerMinute: 10, Source: recipients.SourceScan,
    })
    if !appErrors.IsNotFound(err) {
        t.Fatalf("expected not found, got %v", err)
    }
    if creator.created != nil {
        t.Error("job persisted for unknown template")
    }
}

func TestCreateJobNoRecipients(t *testing.T) {
    svc, _, res, creator := newJobService()
    res.out, res.err = nil, appErrors.ErrNoRecipients

    _, err := svc.CreateJob(context.Background(), service.CreateJobInput{
        TemplateRef: "welcome", RatePerMinute: 10, Source: recipients.SourceScan,
    })
    if !errors.Is(err, appErrors.ErrNoRecipients) {
        t.Fatalf("expected ErrNoRecipients, got %v", err)
    }
    if creator.created != nil {
        t.Error("job persisted without recipients")
    }
}

func TestCreateJobReadsUpload(t *testing.T) {
    svc, _, res, _ := newJobService()
    svc.Uploads = MockUploads{text: "x@example.com\n"}

    _, err := svc.CreateJob(context.Background(), service.CreateJobInput{
        TemplateRef: "welcome", RatePerMinute: 10, Source: recipients.SourcePaste, S3Key: "lists/x.csv",
    })
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if res.got.Text != "x@example.com\n" {
        t.Errorf("resolver text = %q", res.got.Text)
    }
}

func TestUpdateJob(t *testing.T) {
    svc, repo, _, _ := newJobService()
    repo.jobs = []*model.Job{
        {ID: 1, TemplateRef: "welcome", Status: model.JobRunning, RatePerMinute: 10, StartAt: noon},
        {ID: 2, TemplateRef: "welcome", Status: model.JobDone, RatePerMinute: 10, StartAt: noon},
    }

    rate := 50
    ref := "promo"
    job, err := svc.UpdateJob(context.Background(), 1, service.UpdateJobInput{RatePerMinute: &rate, TemplateRef: &ref})
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if job.RatePerMinute != 50 || job.TemplateRef != "promo" {
        t.Errorf("job = %+v", job)
    }

    if _, err := svc.UpdateJob(context.Background(), 2, service.UpdateJobInput{RatePerMinute: &rate}); !errors.Is(err, appErrors.ErrJobNotEditable) {
        t.Errorf("editing done job: got %v", err)
    }
    if _, err := svc.UpdateJob(context.Background(), 99, service.UpdateJobInput{}); !appErrors.IsNotFound(err) {
        t.Errorf("editing missing job: got %v", err)
    }
}

func TestListJobsPagination(t *testing.T) {
    svc, repo, _, _ := newJobService()
    for i := 1; i <= 25; i++ {
        repo.jobs = append(repo.jobs, &model.Job{ID: int64(i), Status: model.JobPending})
    }

    jobs, pagination, err := svc.ListJobs(context.Background(), 2, 10, "")
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if len(jobs) != 10 {
        t.Fatalf("len = %d, want 10", len(jobs))
    }
    if jobs[0].ID != 15 {
        t.Errorf("first job on page 2 = %d, want 15", jobs[0].ID)
    }
    if pagination["total_count"] != 25 || pagination["total_pages"] != 3 || pagination["page"] != 2 {
        t.Errorf("pagination = %v", pagination)
    }

    _, pagination, _ = svc.ListJobs(context.Background(), 0, 500, "")
    if pagination["page"] != 1 || pagination["page_size"] != 100 {
        t.Errorf("clamped pagination = %v", pagination)
    }
}

func TestGetJobDetailsAndItems(t *testing.T) {
    svc, repo, _, _ := newJobService()
    repo.jobs = []*model.Job{{ID: 7, Status: model.JobRunning, Total: 3, Sent: 2}}

    details, err := svc.GetJobDetails(context.Background(), 7)
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if details.Stats["sent"] != 2 || details.ID != 7 {
        t.Errorf("details = %+v", details)
    }

    items, err := svc.ListItems(context.Background(), 7, "failed", 1, 20)
    if err != nil || len(items) != 1 || items[0].Error != "bounced" {
        t.Errorf("items = %+v err = %v", items, err)
    }

    var verr *appErrors.ValidationError
    if _, err := svc.ListItems(context.Background(), 7, "bogus", 1, 20); !errors.As(err, &verr) {
        t.Errorf("bad status filter: got %v", err)
    }
    if _, err := svc.ListItems(context.Background(), 8, "", 1, 20); !appErrors.IsNotFound(err) {
        t.Errorf("missing job: got %v", err)
    }
}

func TestDeleteJob(t *testing.T) {
    svc, repo, _, _ := newJobService()
    repo.jobs = []*model.Job{{ID: 3}}

    if err := svc.DeleteJob(context.Background(), 3); err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if err := svc.DeleteJob(context.Background(), 3); !appErrors.IsNotFound(err) {
        t.Errorf("second delete: got %v", err)
    }
}
