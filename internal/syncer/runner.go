package syncer

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/arencloud/argus/internal/jobs"
	"github.com/arencloud/argus/internal/logging"
)

// ErrBusy means a pass for this provider is already running.
var ErrBusy = errors.New("sync already in progress")

// Runner drives periodic sync passes for one provider: an immediate pass at
// startup, then one per interval. A tick that lands while the previous pass
// is still running is skipped, never queued.
type Runner struct {
	svc      *Service
	provider string
	interval time.Duration
	inFlight atomic.Bool
	log      logging.Logger
}

func NewRunner(svc *Service, provider string, interval time.Duration, log logging.Logger) *Runner {
	return &Runner{svc: svc, provider: provider, interval: interval, log: log}
}

func (r *Runner) Provider() string { return r.provider }

// Start launches the periodic loop. Returns immediately; the loop stops when
// ctx is canceled.
func (r *Runner) Start(ctx context.Context) {
	go func() {
		if _, err := r.RunOnce(ctx, false, nil); err != nil && !errors.Is(err, ErrBusy) {
			r.log.Error("initial sync pass", "provider", r.provider, "error", err)
		}
		t := time.NewTicker(r.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, err := r.RunOnce(ctx, false, nil)
				if errors.Is(err, ErrBusy) {
					r.log.Info("sync tick skipped, previous pass still running", "provider", r.provider)
				} else if err != nil {
					r.log.Error("scheduled sync pass", "provider", r.provider, "error", err)
				}
			}
		}
	}()
}

// RunOnce runs a single pass unless one is already in flight.
func (r *Runner) RunOnce(ctx context.Context, force bool, obs Observer) ([]Result, error) {
	if !r.inFlight.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer r.inFlight.Store(false)
	return r.svc.SyncProvider(ctx, r.provider, force, obs)
}

// Running reports whether a pass is currently in flight.
func (r *Runner) Running() bool { return r.inFlight.Load() }

// trackerObserver mirrors pass progress into a tracked job.
type trackerObserver struct {
	tr *jobs.Tracker
	id string
}

func (o trackerObserver) StartUnit(unitID, label string) { o.tr.StartUnit(o.id, unitID, label) }
func (o trackerObserver) Progress(unitID string, pct int) {
	o.tr.UpdateUnit(o.id, unitID, pct)
}
func (o trackerObserver) FinishUnit(unitID string, errorCount int, err error) {
	o.tr.FinishUnit(o.id, unitID, errorCount, err)
}

// RunJob submits a tracked job for the runner's provider and executes the
// pass in the background. Submission fails fast on conflict or when a pass is
// already in flight, so callers can translate both into an HTTP 409.
func (r *Runner) RunJob(ctx context.Context, tr *jobs.Tracker, owner string, force bool) (*jobs.Job, error) {
	if r.Running() {
		return nil, ErrBusy
	}
	accts, err := r.svc.store.ListAccounts(ctx, r.provider, true)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(accts))
	for _, a := range accts {
		ids = append(ids, a.AccountID)
	}
	j, err := tr.Submit(r.provider, owner, ids)
	if err != nil {
		return nil, err
	}
	// The pass outlives the request that submitted it.
	bg := context.WithoutCancel(ctx)
	go func() {
		tr.Start(j.ID)
		_, err := r.RunOnce(bg, force, trackerObserver{tr: tr, id: j.ID})
		if err != nil {
			tr.Fail(j.ID, err)
			return
		}
		tr.Finish(j.ID)
	}()
	return j, nil
}
