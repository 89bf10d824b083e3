package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/fieldform/dashboard/internal/job"
)

// ticker abstracts time.Ticker so tests drive polls without wall-clock
// delays.
type ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) Chan() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()                  { r.t.Stop() }

func newRealTicker(d time.Duration) ticker {
	return realTicker{t: time.NewTicker(d)}
}

// poller is one recurring status check, pinned to the remote job id it was
// started for. Updates are applied only to the record carrying that id, so a
// late tick from a stale poller can never touch a newer job.
type poller struct {
	remoteID string
	cancel   context.CancelFunc
	done     chan struct{}
}

// startPoller begins the recurring status check for a category. Starting one
// while another is active for the same category is a no-op.
func (o *Orchestrator) startPoller(cat job.Category, id string) {
	o.mu.Lock()
	if _, active := o.pollers[cat]; active {
		o.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &poller{remoteID: id, cancel: cancel, done: make(chan struct{})}
	o.pollers[cat] = p
	o.mu.Unlock()

	go o.pollLoop(ctx, cat, p)
}

func (o *Orchestrator) pollLoop(ctx context.Context, cat job.Category, p *poller) {
	defer close(p.done)
	defer o.removePoller(cat, p)

	t := o.newTicker(o.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.Chan():
			if o.pollOnce(ctx, cat, p.remoteID) {
				return
			}
		}
	}
}

func (o *Orchestrator) removePoller(cat job.Category, p *poller) {
	o.mu.Lock()
	if o.pollers[cat] == p {
		delete(o.pollers, cat)
	}
	o.mu.Unlock()
}

func (o *Orchestrator) stopPoller(cat job.Category) {
	o.mu.Lock()
	p := o.pollers[cat]
	o.mu.Unlock()
	if p != nil {
		p.cancel()
	}
}

// Shutdown cancels all pollers and waits for their loops to exit.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	ps := make([]*poller, 0, len(o.pollers))
	for _, p := range o.pollers {
		ps = append(ps, p)
	}
	o.mu.Unlock()

	for _, p := range ps {
		p.cancel()
		<-p.done
	}
}

// pollOnce runs a single status check and reports whether polling for this
// job is finished, either because a terminal status was observed or because
// the tracked record no longer matches the polled id.
func (o *Orchestrator) pollOnce(ctx context.Context, cat job.Category, id string) bool {
	if cat == job.CategorySingle {
		return o.pollSingle(ctx, id)
	}
	return o.pollBatch(ctx, id)
}

func (o *Orchestrator) pollSingle(ctx context.Context, id string) bool {
	res, err := o.engine.GetSingleStatus(ctx)
	if err != nil {
		// A lost status check is not evidence of job failure.
		slog.Warn("single status poll failed", "error", err)
		return false
	}

	o.mu.Lock()
	rec := o.single
	if rec == nil || rec.RemoteJobID != id {
		o.mu.Unlock()
		return true
	}
	if rec.Status.Terminal() {
		o.mu.Unlock()
		return true
	}

	status := validStatus(res.Status, rec.Status)
	prog := job.NormalizeProgress(res.Message, status, rec.TargetURL, rec.DispenserCount)
	rec.Status = status
	if prog.Display != "" {
		rec.Message = prog.Display
	}
	terminal := status.Terminal()
	if terminal {
		rec.EndedAt = o.now().UTC().Unix()
	}
	o.persistHistoryLocked()
	snapshot := *rec
	o.mu.Unlock()

	o.events.JobUpdated(job.CategorySingle, snapshot)
	if terminal {
		o.clearActive(job.CategorySingle)
		o.notifyTerminal(job.CategorySingle, status, snapshot.Message)
	}
	return terminal
}

func (o *Orchestrator) pollBatch(ctx context.Context, id string) bool {
	res, err := o.engine.GetBatchStatus(ctx)
	if err != nil {
		slog.Warn("batch status poll failed", "error", err)
		return false
	}
	if res.JobID != "" && res.JobID != id {
		// Status for some other batch; nothing of ours to update.
		return false
	}

	o.mu.Lock()
	rec := o.batch
	if rec == nil || rec.RemoteJobID != id {
		o.mu.Unlock()
		return true
	}
	if rec.Status.Terminal() {
		o.mu.Unlock()
		return true
	}

	status := validStatus(res.Status, rec.Status)
	prog := job.NormalizeProgress(res.Message, status, "", 0)
	rec.Status = status
	if prog.Display != "" {
		rec.Message = prog.Display
	}
	if res.CompletedCount > rec.CompletedVisits {
		rec.CompletedVisits = res.CompletedCount
	}
	terminal := status.Terminal()
	if terminal {
		rec.EndedAt = o.now().UTC().Unix()
		switch status {
		case job.StatusError:
			o.lastFailedBatchID = id
			o.setKey(keyBatchLastFailedID, id)
		case job.StatusCompleted:
			o.lastFailedBatchID = ""
			o.setKey(keyBatchLastFailedID, "")
		}
	}
	o.persistBatchLocked()
	snapshot := *rec
	o.mu.Unlock()

	o.events.JobUpdated(job.CategoryBatch, snapshot)
	if terminal {
		o.clearActive(job.CategoryBatch)
		o.notifyTerminal(job.CategoryBatch, status, snapshot.Message)
	}
	return terminal
}

// validStatus keeps the current status when the engine reports something
// outside the known lifecycle.
func validStatus(reported string, current job.Status) job.Status {
	switch s := job.Status(reported); s {
	case job.StatusRunning, job.StatusCompleted, job.StatusError:
		return s
	default:
		return current
	}
}
