// Package orchestrator drives form-automation runs on the remote engine:
// launching single and batch jobs, polling their status, cancelling them,
// and resuming a failed batch. All job state is mirrored write-through into
// the persistent store so it survives restarts and page reloads.
package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fieldform/dashboard/internal/engine"
	"github.com/fieldform/dashboard/internal/job"
	"github.com/fieldform/dashboard/internal/store"
)

// Persistent store keys. The store is mutated only by this package.
const (
	keyHistory           = "jobs.history"
	keySingleActiveID    = "jobs.single.activeId"
	keySingleIsPolling   = "jobs.single.isPolling"
	keyBatchActiveID     = "jobs.batch.activeId"
	keyBatchIsPolling    = "jobs.batch.isPolling"
	keyBatchCurrent      = "jobs.batch.current"
	keyBatchLastFailedID = "jobs.batch.lastFailedId"
	keyLastURL           = "jobs.lastUrl"
)

// Engine is the remote automation engine contract.
type Engine interface {
	StartSingle(ctx context.Context, url string, headless bool, visitNumber string) (string, error)
	GetSingleStatus(ctx context.Context) (engine.SingleStatus, error)
	StartBatch(ctx context.Context, sourcePath string, headless bool, selected []string, resumeFrom string) (string, int, error)
	GetBatchStatus(ctx context.Context) (engine.BatchStatus, error)
	Cancel(ctx context.Context, jobID string) error
}

// EventSink receives job snapshots on every persisted mutation and a
// one-time notice when a job reaches a terminal state.
type EventSink interface {
	JobUpdated(category job.Category, record any)
	Notice(level, title, message string)
}

type noopSink struct{}

func (noopSink) JobUpdated(job.Category, any) {}
func (noopSink) Notice(string, string, string) {}

type Options struct {
	PollInterval time.Duration // defaults to 2s
	HistoryLimit int           // defaults to job.DefaultHistoryLimit
}

type Orchestrator struct {
	store  *store.Store
	engine Engine
	events EventSink

	pollInterval time.Duration
	historyLimit int
	now          func() time.Time
	newTicker    func(time.Duration) ticker

	mu                sync.Mutex
	history           []*job.SingleJob
	single            *job.SingleJob // currently tracked single record, also lives in history
	batch             *job.BatchJob
	lastFailedBatchID string
	pollers           map[job.Category]*poller
}

func New(st *store.Store, eng Engine, events EventSink, opts Options) *Orchestrator {
	if events == nil {
		events = noopSink{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = job.DefaultHistoryLimit
	}
	return &Orchestrator{
		store:        st,
		engine:       eng,
		events:       events,
		pollInterval: opts.PollInterval,
		historyLimit: opts.HistoryLimit,
		now:          time.Now,
		newTicker:    newRealTicker,
		pollers:      make(map[job.Category]*poller),
	}
}

// Rehydrate loads persisted state into memory. If a poll was in flight when
// the process stopped, remote status is checked once immediately before the
// recurring poller is resumed, so a job that finished in the meantime is
// never shown as still running.
func (o *Orchestrator) Rehydrate(ctx context.Context) {
	o.mu.Lock()
	o.store.Get(keyHistory, &o.history)

	var singleID string
	if o.store.Get(keySingleActiveID, &singleID) && singleID != "" {
		for _, rec := range o.history {
			if rec.RemoteJobID == singleID {
				o.single = rec
				break
			}
		}
	}

	var cur job.BatchJob
	if o.store.Get(keyBatchCurrent, &cur) {
		o.batch = &cur
	}
	o.store.Get(keyBatchLastFailedID, &o.lastFailedBatchID)

	var singlePolling, batchPolling bool
	o.store.Get(keySingleIsPolling, &singlePolling)
	o.store.Get(keyBatchIsPolling, &batchPolling)

	single, batch := o.single, o.batch
	o.mu.Unlock()

	o.resume(ctx, job.CategorySingle, singlePolling, single != nil && !single.Status.Terminal(), remoteID(single))
	o.resume(ctx, job.CategoryBatch, batchPolling, batch != nil && !batch.Status.Terminal(), remoteIDBatch(batch))
}

func (o *Orchestrator) resume(ctx context.Context, cat job.Category, wasPolling, live bool, id string) {
	if !wasPolling {
		return
	}
	if !live || id == "" {
		o.clearActive(cat)
		return
	}
	if o.pollOnce(ctx, cat, id) {
		return
	}
	o.startPoller(cat, id)
}

func remoteID(rec *job.SingleJob) string {
	if rec == nil {
		return ""
	}
	return rec.RemoteJobID
}

func remoteIDBatch(rec *job.BatchJob) string {
	if rec == nil {
		return ""
	}
	return rec.RemoteJobID
}

// SingleRequest describes a single-visit launch. StoreName and
// DispenserCount are optional work-order details carried on the record;
// DispenserCount also backs the normalizer's dispenser-total fallback.
type SingleRequest struct {
	TargetURL      string
	Headless       bool
	VisitNumber    string
	StoreName      string
	DispenserCount int
}

// LaunchSingle starts a form-automation run for one visit. The returned id
// is the engine-assigned job id.
func (o *Orchestrator) LaunchSingle(ctx context.Context, req SingleRequest) (string, error) {
	if strings.TrimSpace(req.TargetURL) == "" {
		return "", &ValidationError{Reason: "url is required"}
	}

	rec := job.NewSingle(req.TargetURL, req.Headless, req.VisitNumber)
	rec.StoreName = req.StoreName
	rec.DispenserCount = req.DispenserCount
	rec.Message = "Initializing automation..."

	o.mu.Lock()
	o.history = job.PrependHistory(o.history, rec, o.historyLimit)
	o.single = rec
	o.persistHistoryLocked()
	o.setKey(keyLastURL, req.TargetURL)
	snapshot := *rec
	o.mu.Unlock()
	o.events.JobUpdated(job.CategorySingle, snapshot)

	id, err := o.engine.StartSingle(ctx, req.TargetURL, req.Headless, req.VisitNumber)
	if err != nil {
		o.failLaunchSingle(rec, err)
		return "", &LaunchError{Err: err}
	}

	o.mu.Lock()
	rec.RemoteJobID = id
	rec.Message = "Processing started..."
	o.persistHistoryLocked()
	o.setKey(keySingleActiveID, id)
	o.setKey(keySingleIsPolling, true)
	snapshot = *rec
	o.mu.Unlock()
	o.events.JobUpdated(job.CategorySingle, snapshot)

	o.startPoller(job.CategorySingle, id)
	return id, nil
}

func (o *Orchestrator) failLaunchSingle(rec *job.SingleJob, err error) {
	o.mu.Lock()
	rec.Status = job.StatusError
	rec.Message = err.Error()
	rec.EndedAt = o.now().UTC().Unix()
	o.persistHistoryLocked()
	snapshot := *rec
	o.mu.Unlock()
	o.events.JobUpdated(job.CategorySingle, snapshot)
	o.events.Notice("error", "Form automation failed", err.Error())
}

// BatchRequest describes a batch launch. ResumeFromBatchID, when set, is
// forwarded to the engine so it continues the named failed batch instead of
// restarting from the beginning.
type BatchRequest struct {
	SourcePath        string
	Headless          bool
	SelectedVisits    []string
	ResumeFromBatchID string
}

func (o *Orchestrator) LaunchBatch(ctx context.Context, req BatchRequest) (string, error) {
	if len(req.SelectedVisits) == 0 {
		return "", &ValidationError{Reason: "no visits selected"}
	}

	rec := job.NewBatch(req.SourcePath, req.Headless, len(req.SelectedVisits))
	rec.Message = "Initializing automation..."

	o.mu.Lock()
	o.batch = rec
	o.persistBatchLocked()
	snapshot := *rec
	o.mu.Unlock()
	o.events.JobUpdated(job.CategoryBatch, snapshot)

	id, _, err := o.engine.StartBatch(ctx, req.SourcePath, req.Headless, req.SelectedVisits, req.ResumeFromBatchID)
	if err != nil {
		o.mu.Lock()
		rec.Status = job.StatusError
		rec.Message = err.Error()
		rec.EndedAt = o.now().UTC().Unix()
		o.persistBatchLocked()
		snapshot = *rec
		o.mu.Unlock()
		o.events.JobUpdated(job.CategoryBatch, snapshot)
		o.events.Notice("error", "Batch automation failed", err.Error())
		return "", &LaunchError{Err: err}
	}

	o.mu.Lock()
	rec.RemoteJobID = id
	rec.Message = "Processing started..."
	o.persistBatchLocked()
	o.setKey(keyBatchActiveID, id)
	o.setKey(keyBatchIsPolling, true)
	snapshot = *rec
	o.mu.Unlock()
	o.events.JobUpdated(job.CategoryBatch, snapshot)

	o.startPoller(job.CategoryBatch, id)
	return id, nil
}

// Cancel asks the engine to stop a run. jobID may be empty, in which case
// the currently tracked running job is cancelled. On remote failure the
// local record is left untouched: the run may still be executing.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) error {
	o.mu.Lock()
	cat, single, batch, id := o.resolveCancelTargetLocked(jobID)
	o.mu.Unlock()

	if single == nil && batch == nil {
		return ErrNoActiveJob
	}

	if err := o.engine.Cancel(ctx, id); err != nil {
		return &CancellationError{Err: err}
	}

	o.mu.Lock()
	// The poller may have finalized the record while the cancel request was
	// in flight; terminal records are never re-entered.
	if (single != nil && single.Status.Terminal()) || (batch != nil && batch.Status.Terminal()) {
		o.mu.Unlock()
		return nil
	}
	ended := o.now().UTC().Unix()
	var snapshot any
	if single != nil {
		single.Status = job.StatusError
		single.Message = "Processing stopped by user"
		single.EndedAt = ended
		o.persistHistoryLocked()
		snapshot = *single
	} else {
		batch.Status = job.StatusError
		batch.Message = "Processing stopped by user"
		batch.EndedAt = ended
		o.persistBatchLocked()
		snapshot = *batch
	}
	o.mu.Unlock()

	o.stopPoller(cat)
	o.clearActive(cat)
	o.events.JobUpdated(cat, snapshot)
	return nil
}

// resolveCancelTargetLocked picks the record a cancel applies to: the one
// matching the explicit id, or the currently running job when no id is
// given. Exactly one of the returned records is non-nil on success.
func (o *Orchestrator) resolveCancelTargetLocked(jobID string) (job.Category, *job.SingleJob, *job.BatchJob, string) {
	if jobID != "" {
		if o.single != nil && o.single.RemoteJobID == jobID && !o.single.Status.Terminal() {
			return job.CategorySingle, o.single, nil, jobID
		}
		if o.batch != nil && o.batch.RemoteJobID == jobID && !o.batch.Status.Terminal() {
			return job.CategoryBatch, nil, o.batch, jobID
		}
		return "", nil, nil, ""
	}
	if o.single != nil && o.single.Status == job.StatusRunning && o.single.RemoteJobID != "" {
		return job.CategorySingle, o.single, nil, o.single.RemoteJobID
	}
	if o.batch != nil && o.batch.Status == job.StatusRunning && o.batch.RemoteJobID != "" {
		return job.CategoryBatch, nil, o.batch, o.batch.RemoteJobID
	}
	return "", nil, nil, ""
}

// SingleState returns a copy of the tracked single job and the history list.
func (o *Orchestrator) SingleState() (*job.SingleJob, []*job.SingleJob) {
	o.mu.Lock()
	defer o.mu.Unlock()

	history := make([]*job.SingleJob, len(o.history))
	for i, rec := range o.history {
		cp := *rec
		history[i] = &cp
	}
	var active *job.SingleJob
	if o.single != nil {
		cp := *o.single
		active = &cp
	}
	return active, history
}

// BatchState returns a copy of the current batch job and the id of the last
// failed batch, usable as a resume target.
func (o *Orchestrator) BatchState() (*job.BatchJob, string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var current *job.BatchJob
	if o.batch != nil {
		cp := *o.batch
		current = &cp
	}
	return current, o.lastFailedBatchID
}

// LastURL returns the last-entered single-visit URL, for form prefill.
func (o *Orchestrator) LastURL() string {
	var url string
	o.store.Get(keyLastURL, &url)
	return url
}

func (o *Orchestrator) persistHistoryLocked() {
	if err := o.store.Set(keyHistory, o.history); err != nil {
		slog.Error("persist job history", "error", err)
	}
}

func (o *Orchestrator) persistBatchLocked() {
	if err := o.store.Set(keyBatchCurrent, o.batch); err != nil {
		slog.Error("persist batch job", "error", err)
	}
}

func (o *Orchestrator) setKey(key string, v any) {
	if err := o.store.Set(key, v); err != nil {
		slog.Error("persist store key", "key", key, "error", err)
	}
}

// clearActive drops the active-job-id key and lowers the polling flag for
// the category.
func (o *Orchestrator) clearActive(cat job.Category) {
	switch cat {
	case job.CategorySingle:
		if err := o.store.Delete(keySingleActiveID); err != nil {
			slog.Error("clear active job id", "category", cat, "error", err)
		}
		o.setKey(keySingleIsPolling, false)
	case job.CategoryBatch:
		if err := o.store.Delete(keyBatchActiveID); err != nil {
			slog.Error("clear active job id", "category", cat, "error", err)
		}
		o.setKey(keyBatchIsPolling, false)
	}
}

func (o *Orchestrator) notifyTerminal(cat job.Category, status job.Status, message string) {
	title := "Form automation"
	if cat == job.CategoryBatch {
		title = "Batch automation"
	}
	if status == job.StatusCompleted {
		o.events.Notice("success", title+" completed", message)
	} else {
		o.events.Notice("error", title+" failed", message)
	}
}
