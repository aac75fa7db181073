package service_test

import (
    "context"
    "errors"
    "fmt"
    "sort"
    "sync"
    "time"

    "github.com/unclebandit/mailqueue-backend/internal/events"
    "github.com/unclebandit/mailqueue-backend/internal/model"
)

// memStore backs both the job and item side of the dispatcher.
type memStore struct {
    mu     sync.Mutex
    jobs   map[int64]*model.Job
    items  []*model.Item
    nextID int64

    // counterFailures makes the next n IncrementCounters calls fail.
    counterFailures int
}

func newMemStore() *memStore {
    return &memStore{jobs: map[int64]*model.Job{}}
}

func (m *memStore) addJob(j model.Job, emails ...string) *model.Job {
    m.mu.Lock()
    defer m.mu.Unlock()
    m.nextID++
    j.ID = m.nextID
    if j.Status == "" {
        j.Status = model.JobPending
    }
    j.Total = len(emails)
    m.jobs[j.ID] = &j
    for i, e := range emails {
        m.items = append(m.items, &model.Item{
            ID:     j.ID*100000 + int64(i+1),
            JobID:  j.ID,
            Email:  e,
            Status: model.ItemQueued,
        })
    }
    return &j
}

func (m *memStore) job(id int64) model.Job {
    m.mu.Lock()
    defer m.mu.Unlock()
    return *m.jobs[id]
}

func (m *memStore) itemsOf(jobID int64) []model.Item {
    m.mu.Lock()
    defer m.mu.Unlock()
    var out []model.Item
    for _, it := range m.items {
        if it.JobID == jobID {
            out = append(out, *it)
        }
    }
    return out
}

func (m *memStore) setItemStatus(id int64, st model.ItemStatus) {
    m.mu.Lock()
    defer m.mu.Unlock()
    for _, it := range m.items {
        if it.ID == id {
            it.Status = st
        }
    }
}

func (m *memStore) NextEligible(ctx context.Context, now, dayStart time.Time, excludeID int64) (*model.Job, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    var candidates []*model.Job
    for _, j := range m.jobs {
        if j.ID == excludeID || !j.Status.Dispatchable() {
            continue
        }
        if j.StartAt.Before(dayStart) || j.StartAt.After(now) {
            continue
        }
        candidates = append(candidates, j)
    }
    if len(candidates) == 0 {
        return nil, nil
    }
    sort.Slice(candidates, func(a, b int) bool { return candidates[a].ID < candidates[b].ID })
    cp := *candidates[0]
    return &cp, nil
}

func (m *memStore) Transition(ctx context.Context, id int64, from []model.JobStatus, to model.JobStatus) (bool, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    j, ok := m.jobs[id]
    if !ok {
        return false, nil
    }
    for _, f := range from {
        if j.Status == f {
            j.Status = to
            return true, nil
        }
    }
    return false, nil
}

func (m *memStore) IncrementCounters(ctx context.Context, id int64, sent, failed int) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    if m.counterFailures > 0 {
        m.counterFailures--
        return errors.New("counter update lost")
    }
    j := m.jobs[id]
    if j.Sent+sent+j.Failed+failed > j.Total {
        return fmt.Errorf("counters would exceed total for job %d", id)
    }
    j.Sent += sent
    j.Failed += failed
    return nil
}

func (m *memStore) SyncCounters(ctx context.Context, id int64) (int, int, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    j, ok := m.jobs[id]
    if !ok {
        return 0, 0, nil
    }
    j.Sent, j.Failed = 0, 0
    for _, it := range m.items {
        if it.JobID != id {
            continue
        }
        switch it.Status {
        case model.ItemSent:
            j.Sent++
        case model.ItemFailed:
            j.Failed++
        }
    }
    return j.Sent, j.Failed, nil
}

func (m *memStore) ExpireStale(ctx context.Context, dayStart time.Time) ([]int64, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    var ids []int64
    for _, j := range m.jobs {
        if j.Status.Dispatchable() && j.StartAt.Before(dayStart) {
            j.Status = model.JobExpired
            ids = append(ids, j.ID)
        }
    }
    sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
    return ids, nil
}

func (m *memStore) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    var n int64
    for id, j := range m.jobs {
        if j.Status == model.JobExpired && j.StartAt.Before(before) {
            delete(m.jobs, id)
            n++
            kept := m.items[:0]
            for _, it := range m.items {
                if it.JobID != id {
                    kept = append(kept, it)
                }
            }
            m.items = kept
        }
    }
    return n, nil
}

func (m *memStore) HasActive(ctx context.Context) (bool, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    for _, j := range m.jobs {
        if j.Status.Dispatchable() {
            return true, nil
        }
    }
    return false, nil
}

func (m *memStore) NextQueued(ctx context.Context, jobID int64, limit int) ([]model.Item, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    var out []model.Item
    for _, it := range m.items {
        if it.JobID == jobID && it.Status == model.ItemQueued {
            out = append(out, *it)
            if len(out) == limit {
                break
            }
        }
    }
    return out, nil
}

func (m *memStore) MarkOutcome(ctx context.Context, id int64, status model.ItemStatus, reason string) (bool, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    for _, it := range m.items {
        if it.ID == id {
            if it.Status != model.ItemQueued {
                return false, nil
            }
            it.Status = status
            it.Error = reason
            it.Attempts++
            return true, nil
        }
    }
    return false, nil
}

func (m *memStore) HasQueued(ctx context.Context, jobID int64) (bool, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    for _, it := range m.items {
        if it.JobID == jobID && it.Status == model.ItemQueued {
            return true, nil
        }
    }
    return false, nil
}

type fakeSubscribers struct {
    unsub   map[string]bool
    failFor map[string]bool
}

func (f *fakeSubscribers) IsUnsubscribed(ctx context.Context, email string) (bool, error) {
    if f.failFor[email] {
        return false, errors.New("subscriber lookup unavailable")
    }
    return f.unsub[email], nil
}

type fakeTemplates struct {
    subject, html string
    err           error
    calls         int
}

func (f *fakeTemplates) Render(ctx context.Context, ref string) (string, string, error) {
    f.calls++
    if f.err != nil {
        return "", "", f.err
    }
    return f.subject, f.html, nil
}

type echoPersonalizer struct{}

func (echoPersonalizer) Personalize(ctx context.Context, html, recipient string) string {
    return html + "|" + recipient
}

type fakeSender struct {
    mu      sync.Mutex
    sent    []string
    errFor  map[string]bool
    rejects map[string]bool
    panics  map[string]bool
}

func (f *fakeSender) Send(ctx context.Context, to, subject, html string) (bool, error) {
    if f.panics[to] {
        panic("transport exploded")
    }
    if f.errFor[to] {
        return false, errors.New("smtp 550 mailbox unavailable")
    }
    if f.rejects[to] {
        return false, nil
    }
    f.mu.Lock()
    f.sent = append(f.sent, to)
    f.mu.Unlock()
    return true, nil
}

type scheduled struct {
    delay time.Duration
    tag   string
}

type fakeScheduler struct {
    calls []scheduled
}

func (f *fakeScheduler) ScheduleOnce(ctx context.Context, delay time.Duration, tag string) error {
    f.calls = append(f.calls, scheduled{delay: delay, tag: tag})
    return nil
}

type recordingPublisher struct {
    events []events.JobEvent
}

func (r *recordingPublisher) Publish(ctx context.Context, ev events.JobEvent) error {
    r.events = append(r.events, ev)
    return nil
}

func (r *recordingPublisher) statuses(jobID int64) []model.JobStatus {
    var out []model.JobStatus
    for _, ev := range r.events {
        if ev.JobID == jobID {
            out = append(out, ev.Status)
        }
    }
    return out
}

func emails(n int) []string {
    out := make([]string, n)
    for i := range out {
        out[i] = fmt.Sprintf("user%03d@example.com", i+1)
    }
    return out
}
