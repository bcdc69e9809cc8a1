package jobs

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusQueued              Status = "queued"
	StatusRunning             Status = "running"
	StatusCompleted           Status = "completed"
	StatusCompletedWithErrors Status = "completed_with_errors"
	StatusFailed              Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCompletedWithErrors || s == StatusFailed
}

// ErrConflict means another job for the same provider is still in flight.
var ErrConflict = errors.New("a job for this provider is already in progress")

// Unit is one account's slice of a job.
type Unit struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	Status     Status    `json:"status"`
	Percent    int       `json:"percent"`
	ErrorCount int       `json:"errorCount"`
	Error      string    `json:"error,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Job aggregate counters (TotalUnits/CompletedUnits/FailedUnits) are derived
// from the unit states at snapshot time, so pollers never have to walk Units.
type Job struct {
	ID             string     `json:"id"`
	Provider       string     `json:"provider"`
	Owner          string     `json:"owner,omitempty"`
	Status         Status     `json:"status"`
	Error          string     `json:"error,omitempty"`
	TotalUnits     int        `json:"totalUnits"`
	CompletedUnits int        `json:"completedUnits"`
	FailedUnits    int        `json:"failedUnits"`
	Units          []*Unit    `json:"units"`
	CreatedAt      time.Time  `json:"createdAt"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
}

// Tracker keeps in-flight jobs plus a bounded history of finished ones,
// newest first. Everything lives in memory; a restart forgets past jobs,
// which is acceptable because the cache itself is the durable record.
type Tracker struct {
	mu      sync.Mutex
	active  map[string]*Job
	history []*Job
	cap     int
	now     func() time.Time
}

func NewTracker(historySize int) *Tracker {
	if historySize < 1 {
		historySize = 50
	}
	return &Tracker{
		active: map[string]*Job{},
		cap:    historySize,
		now:    time.Now,
	}
}

// Submit registers a queued job. At most one non-terminal job per provider:
// two concurrent syncs of the same provider would race on the same rows.
func (t *Tracker) Submit(provider, owner string, unitIDs []string) (*Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, j := range t.active {
		if j.Provider == provider {
			return nil, ErrConflict
		}
	}
	j := &Job{
		ID:        uuid.NewString(),
		Provider:  provider,
		Owner:     owner,
		Status:    StatusQueued,
		CreatedAt: t.now(),
	}
	for _, id := range unitIDs {
		j.Units = append(j.Units, &Unit{ID: id, Status: StatusQueued, UpdatedAt: j.CreatedAt})
	}
	t.active[j.ID] = j
	return snapshot(j), nil
}

func (t *Tracker) Start(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.active[id]
	if !ok || j.Status != StatusQueued {
		return
	}
	now := t.now()
	j.Status = StatusRunning
	j.StartedAt = &now
}

func (t *Tracker) unit(id, unitID string) *Unit {
	j, ok := t.active[id]
	if !ok {
		return nil
	}
	for _, u := range j.Units {
		if u.ID == unitID {
			return u
		}
	}
	u := &Unit{ID: unitID, Status: StatusQueued}
	j.Units = append(j.Units, u)
	return u
}

func (t *Tracker) StartUnit(id, unitID, label string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if u := t.unit(id, unitID); u != nil {
		u.Status = StatusRunning
		if label != "" {
			u.Label = label
		}
		u.UpdatedAt = t.now()
	}
}

func (t *Tracker) UpdateUnit(id, unitID string, percent int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if u := t.unit(id, unitID); u != nil {
		if percent < 0 {
			percent = 0
		}
		if percent > 100 {
			percent = 100
		}
		u.Percent = percent
		u.UpdatedAt = t.now()
	}
}

// FinishUnit records a unit's outcome. errorCount counts per-resource fetch
// failures inside an otherwise successful unit; err marks the whole unit
// failed.
func (t *Tracker) FinishUnit(id, unitID string, errorCount int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u := t.unit(id, unitID)
	if u == nil {
		return
	}
	u.ErrorCount = errorCount
	u.Percent = 100
	u.UpdatedAt = t.now()
	if err != nil {
		u.Status = StatusFailed
		u.Error = err.Error()
		return
	}
	if errorCount > 0 {
		u.Status = StatusCompletedWithErrors
	} else {
		u.Status = StatusCompleted
	}
}

// Finish moves a job to its terminal state based on unit outcomes.
func (t *Tracker) Finish(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.active[id]
	if !ok {
		return
	}
	status := StatusCompleted
	for _, u := range j.Units {
		if u.Status == StatusFailed || u.Status == StatusCompletedWithErrors || u.ErrorCount > 0 {
			status = StatusCompletedWithErrors
			break
		}
	}
	t.retire(j, status, "")
}

// Fail terminates a job that could not run at all (listing failed, provider
// misconfigured).
func (t *Tracker) Fail(id string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.active[id]
	if !ok {
		return
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	t.retire(j, StatusFailed, msg)
}

func (t *Tracker) retire(j *Job, status Status, msg string) {
	now := t.now()
	j.Status = status
	j.Error = msg
	j.FinishedAt = &now
	delete(t.active, j.ID)
	t.history = append([]*Job{j}, t.history...)
	if len(t.history) > t.cap {
		t.history = t.history[:t.cap]
	}
}

// Poll returns a job if it exists and the requester may see it. Jobs with no
// owner are visible to everyone.
func (t *Tracker) Poll(id, requester string) (*Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if j, ok := t.active[id]; ok {
		if visible(j, requester) {
			return snapshot(j), true
		}
		return nil, false
	}
	for _, j := range t.history {
		if j.ID == id {
			if visible(j, requester) {
				return snapshot(j), true
			}
			return nil, false
		}
	}
	return nil, false
}

// List returns the requester's visible jobs: in-flight first, then history
// newest first.
func (t *Tracker) List(requester string) []*Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*Job
	for _, j := range t.active {
		if visible(j, requester) {
			out = append(out, snapshot(j))
		}
	}
	for _, j := range t.history {
		if visible(j, requester) {
			out = append(out, snapshot(j))
		}
	}
	return out
}

func visible(j *Job, requester string) bool {
	return j.Owner == "" || j.Owner == requester
}

func snapshot(j *Job) *Job {
	c := *j
	c.Units = make([]*Unit, len(j.Units))
	c.TotalUnits = len(j.Units)
	c.CompletedUnits, c.FailedUnits = 0, 0
	for i, u := range j.Units {
		uc := *u
		c.Units[i] = &uc
		switch u.Status {
		case StatusCompleted, StatusCompletedWithErrors:
			c.CompletedUnits++
		case StatusFailed:
			c.FailedUnits++
		}
	}
	return &c
}
