// internal/service/dispatcher.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/unclebandit/mailqueue-backend/internal/email"
	"github.com/unclebandit/mailqueue-backend/internal/events"
	"github.com/unclebandit/mailqueue-backend/internal/model"
)

// JobStore is the part of the job repository the dispatcher drives.
type JobStore interface {
	NextEligible(ctx context.Context, now, dayStart time.Time, excludeID int64) (*model.Job, error)
	Transition(ctx context.Context, id int64, from []model.JobStatus, to model.JobStatus) (bool, error)
	IncrementCounters(ctx context.Context, id int64, sent, failed int) error
	SyncCounters(ctx context.Context, id int64) (sent, failed int, err error)
	ExpireStale(ctx context.Context, dayStart time.Time) ([]int64, error)
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
	HasActive(ctx context.Context) (bool, error)
}

type ItemStore interface {
	NextQueued(ctx context.Context, jobID int64, limit int) ([]model.Item, error)
	MarkOutcome(ctx context.Context, id int64, status model.ItemStatus, reason string) (bool, error)
	HasQueued(ctx context.Context, jobID int64) (bool, error)
}

type UnsubscribeChecker interface {
	IsUnsubscribed(ctx context.Context, email string) (bool, error)
}

type TemplateRenderer interface {
	Render(ctx context.Context, ref string) (subject string, html string, err error)
}

type Personalizer interface {
	Personalize(ctx context.Context, html, recipient string) string
}

type Scheduler interface {
	ScheduleOnce(ctx context.Context, delay time.Duration, tag string) error
}

type DispatcherConfig struct {
	Location         *time.Location
	ContinueDelay    time.Duration
	InterleaveDelay  time.Duration
	ExpiredRetention time.Duration
}

// ReasonUnsubscribed is recorded on items skipped because the recipient opted out.
const ReasonUnsubscribed = "unsubscribed"

var (
	fromDispatchable = []model.JobStatus{model.JobPending, model.JobRunning}
	fromPending      = []model.JobStatus{model.JobPending}
)

// Dispatcher runs one bounded batch per invocation and re-arms itself through
// the Scheduler while work remains.
type Dispatcher struct {
	Jobs         JobStore
	Items        ItemStore
	Subscribers  UnsubscribeChecker
	Templates    TemplateRenderer
	Personalizer Personalizer
	Sender       email.Sender
	Scheduler    Scheduler
	Events       events.Publisher
	Config       DispatcherConfig
	Now          func() time.Time

	log zerolog.Logger
}

func NewDispatcher(d Dispatcher, log zerolog.Logger) *Dispatcher {
	if d.Config.Location == nil {
		d.Config.Location = time.UTC
	}
	if d.Config.ContinueDelay <= 0 {
		d.Config.ContinueDelay = time.Minute
	}
	if d.Config.InterleaveDelay <= 0 {
		d.Config.InterleaveDelay = 2 * time.Minute
	}
	if d.Config.ExpiredRetention <= 0 {
		d.Config.ExpiredRetention = 30 * 24 * time.Hour
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	d.log = log.With().Str("component", "dispatcher").Logger()
	return &d
}

// TickResult summarizes one invocation.
type TickResult struct {
	JobID     int64           `json:"job_id,omitempty"`
	JobStatus model.JobStatus `json:"job_status,omitempty"`
	Sent      int             `json:"sent"`
	Failed    int             `json:"failed"`
	Skipped   int             `json:"skipped"`
	Expired   int             `json:"expired"`
	Purged    int64           `json:"purged"`
	Idle      bool            `json:"idle"`
}

// StartOfDay is midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

func jobTag(id int64) string { return fmt.Sprintf("job-%d", id) }

// Sweep expires jobs whose start day is over and purges expired jobs past retention.
func (d *Dispatcher) Sweep(ctx context.Context) (expired []int64, purged int64, err error) {
	now := d.Now()
	expired, err = d.Jobs.ExpireStale(ctx, StartOfDay(now, d.Config.Location))
	if err != nil {
		return nil, 0, fmt.Errorf("expire stale jobs: %w", err)
	}
	for _, id := range expired {
		d.log.Info().Int64("job_id", id).Msg("job expired")
		d.emit(ctx, &model.Job{ID: id}, model.JobExpired)
	}

	purged, err = d.Jobs.PurgeExpired(ctx, now.Add(-d.Config.ExpiredRetention))
	if err != nil {
		return expired, 0, fmt.Errorf("purge expired jobs: %w", err)
	}
	if purged > 0 {
		d.log.Info().Int64("count", purged).Msg("purged expired jobs")
	}
	return expired, purged, nil
}

// HasPendingWork reports whether any job is still pending or running.
func (d *Dispatcher) HasPendingWork(ctx context.Context) (bool, error) {
	return d.Jobs.HasActive(ctx)
}

// Tick runs one dispatcher invocation.
func (d *Dispatcher) Tick(ctx context.Context) (*TickResult, error) {
	res := &TickResult{}

	expired, purged, err := d.Sweep(ctx)
	if err != nil {
		d.log.Error().Err(err).Msg("sweep failed")
	}
	res.Expired, res.Purged = len(expired), purged

	now := d.Now()
	dayStart := StartOfDay(now, d.Config.Location)

	job, err := d.Jobs.NextEligible(ctx, now, dayStart, 0)
	if err != nil {
		return res, fmt.Errorf("select job: %w", err)
	}
	if job == nil {
		res.Idle = true
		return res, nil
	}
	res.JobID = job.ID
	logger := d.log.With().Int64("job_id", job.ID).Logger()

	if job.Status == model.JobPending {
		ok, err := d.Jobs.Transition(ctx, job.ID, fromPending, model.JobRunning)
		if err != nil {
			return res, fmt.Errorf("start job %d: %w", job.ID, err)
		}
		if ok {
			logger.Info().Msg("job started")
			d.emit(ctx, job, model.JobRunning)
		}
		job.Status = model.JobRunning
	}
	res.JobStatus = job.Status

	items, err := d.Items.NextQueued(ctx, job.ID, job.BatchSize())
	if err != nil {
		return res, fmt.Errorf("select items for job %d: %w", job.ID, err)
	}
	if len(items) == 0 {
		return res, d.finish(ctx, job, now, dayStart, res, logger)
	}

	subject, html, err := d.Templates.Render(ctx, job.TemplateRef)
	if err != nil {
		logger.Error().Err(err).Str("template_ref", job.TemplateRef).Msg("template render failed, failing job")
		if _, terr := d.Jobs.Transition(ctx, job.ID, fromDispatchable, model.JobFailed); terr != nil {
			return res, fmt.Errorf("fail job %d: %w", job.ID, terr)
		}
		res.JobStatus = model.JobFailed
		d.emit(ctx, job, model.JobFailed)
		return res, nil
	}

	for _, it := range items {
		switch d.deliver(ctx, it, subject, html, logger) {
		case model.ItemSent:
			res.Sent++
		case model.ItemFailed:
			res.Failed++
		default:
			res.Skipped++
		}
	}

	if err := d.Jobs.IncrementCounters(ctx, job.ID, res.Sent, res.Failed); err != nil {
		return res, fmt.Errorf("update counters for job %d: %w", job.ID, err)
	}
	job.Sent += res.Sent
	job.Failed += res.Failed

	logger.Info().
		Int("batch", len(items)).
		Int("sent", res.Sent).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Msg("batch dispatched")

	more, err := d.Items.HasQueued(ctx, job.ID)
	if err != nil {
		return res, fmt.Errorf("check remaining items for job %d: %w", job.ID, err)
	}
	if !more {
		return res, d.finish(ctx, job, now, dayStart, res, logger)
	}

	d.rearm(ctx, job.ID, d.Config.ContinueDelay, logger)
	d.interleave(ctx, job.ID, now, dayStart, logger)
	return res, nil
}

// finish recomputes the counters from the items and closes the job.
func (d *Dispatcher) finish(ctx context.Context, job *model.Job, now, dayStart time.Time, res *TickResult, logger zerolog.Logger) error {
	sent, failed, err := d.Jobs.SyncCounters(ctx, job.ID)
	if err != nil {
		logger.Warn().Err(err).Msg("counter reconciliation failed")
	} else {
		job.Sent, job.Failed = sent, failed
	}

	ok, err := d.Jobs.Transition(ctx, job.ID, fromDispatchable, model.JobDone)
	if err != nil {
		return fmt.Errorf("complete job %d: %w", job.ID, err)
	}
	res.JobStatus = model.JobDone
	if ok {
		logger.Info().Int("sent", job.Sent).Int("failed", job.Failed).Msg("job done")
		d.emit(ctx, job, model.JobDone)
	}
	d.interleave(ctx, job.ID, now, dayStart, logger)
	return nil
}

// interleave arms a tick for the next eligible job other than jobID.
func (d *Dispatcher) interleave(ctx context.Context, jobID int64, now, dayStart time.Time, logger zerolog.Logger) {
	other, err := d.Jobs.NextEligible(ctx, now, dayStart, jobID)
	if err != nil {
		logger.Warn().Err(err).Msg("next job lookup failed")
		return
	}
	if other != nil {
		d.rearm(ctx, other.ID, d.Config.InterleaveDelay, logger)
	}
}

func (d *Dispatcher) rearm(ctx context.Context, jobID int64, delay time.Duration, logger zerolog.Logger) {
	if d.Scheduler == nil {
		return
	}
	if err := d.Scheduler.ScheduleOnce(ctx, delay, jobTag(jobID)); err != nil {
		logger.Error().Err(err).Int64("armed_job_id", jobID).Msg("arming follow-up tick failed")
	}
}

// deliver processes one item and returns the terminal status it reached, or
// queued when the item was left for a later tick.
func (d *Dispatcher) deliver(ctx context.Context, it model.Item, subject, html string, logger zerolog.Logger) model.ItemStatus {
	unsub, err := d.Subscribers.IsUnsubscribed(ctx, it.Email)
	if err != nil {
		logger.Warn().Err(err).Str("email", it.Email).Msg("subscriber lookup failed, leaving item queued")
		return model.ItemQueued
	}
	if unsub {
		return d.record(ctx, it, model.ItemFailed, ReasonUnsubscribed, logger)
	}

	body := d.Personalizer.Personalize(ctx, html, it.Email)
	ok, reason := d.send(ctx, it.Email, subject, body)
	if !ok {
		logger.Warn().Str("email", it.Email).Str("reason", reason).Msg("send failed")
		return d.record(ctx, it, model.ItemFailed, reason, logger)
	}
	return d.record(ctx, it, model.ItemSent, "", logger)
}

// send never panics; transport panics and errors become failures.
func (d *Dispatcher) send(ctx context.Context, to, subject, html string) (ok bool, reason string) {
	defer func() {
		if r := recover(); r != nil {
			ok, reason = false, fmt.Sprintf("transport panic: %v", r)
		}
	}()

	sent, err := d.Sender.Send(ctx, to, subject, html)
	if err != nil {
		return false, err.Error()
	}
	if !sent {
		return false, "transport rejected message"
	}
	return true, ""
}

func (d *Dispatcher) record(ctx context.Context, it model.Item, status model.ItemStatus, reason string, logger zerolog.Logger) model.ItemStatus {
	changed, err := d.Items.MarkOutcome(ctx, it.ID, status, reason)
	if err != nil {
		logger.Error().Err(err).Int64("item_id", it.ID).Msg("recording item outcome failed")
		return model.ItemQueued
	}
	if !changed {
		// Another invocation already finished this item.
		return model.ItemQueued
	}
	return status
}

func (d *Dispatcher) emit(ctx context.Context, job *model.Job, status model.JobStatus) {
	ev := events.JobEvent{JobID: job.ID, Status: status, Sent: job.Sent, Failed: job.Failed, At: d.Now().UTC()}
	if err := d.Events.Publish(ctx, ev); err != nil {
		d.log.Warn().Err(err).Int64("job_id", job.ID).Str("status", string(status)).Msg("publish job event failed")
	}
}
