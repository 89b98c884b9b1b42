package server

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/zhichaoleo/roboptim-core/internal/errors"
	"github.com/zhichaoleo/roboptim-core/internal/logging"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/callback"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/catalog"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/solver"
)

// Job statuses besides the terminal solver statuses.
const (
	StatusPending   = "pending"
	StatusCancelled = "cancelled"
)

// SolveRequest starts a job.
type SolveRequest struct {
	// Problem is a catalog name.
	Problem string `json:"problem"`
	// Backend defaults to the configured backend.
	Backend string `json:"backend,omitempty"`
	// Start overrides the catalog starting point.
	Start      []float64      `json:"start,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Job is one solve run in the background. The solver and history are safe
// to read while the solve runs.
type Job struct {
	ID        string
	Problem   string
	Backend   string
	StartTime time.Time

	solver  *solver.Solver
	history *callback.History
	ctx     context.Context
	cancel  context.CancelFunc

	mu        sync.Mutex
	started   bool
	endTime   *time.Time
	cancelled bool
}

// Status returns the job status: pending, running, cancelled or the name of
// the terminal solver status.
func (j *Job) Status() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancelled && j.endTime != nil {
		return StatusCancelled
	}
	if !j.started {
		return StatusPending
	}
	status := j.solver.Status()
	if status == solver.StatusCreated {
		status = solver.StatusRunning
	}
	return status.String()
}

func (j *Job) finish(now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.endTime = &now
}

// Cancel requests cooperative cancellation. It fails once the job is over.
func (j *Job) Cancel() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.endTime != nil {
		return apierrors.Errorf("job %s already finished", j.ID).WithStatus(409)
	}
	j.cancelled = true
	j.cancel()
	return nil
}

// MinimumView is the JSON form of a solver outcome.
type MinimumView struct {
	Kind        string    `json:"kind"`
	X           []float64 `json:"x,omitempty"`
	Value       *float64  `json:"value,omitempty"`
	Constraints []float64 `json:"constraints,omitempty"`
	Iterations  int       `json:"iterations"`
	Error       string    `json:"error,omitempty"`
	Warnings    []string  `json:"warnings,omitempty"`
}

// MarshalJSON encodes non-finite coordinates as null.
func (v MinimumView) MarshalJSON() ([]byte, error) {
	type plain MinimumView
	return json.Marshal(struct {
		plain
		X           []solver.JSONFloat `json:"x,omitempty"`
		Constraints []solver.JSONFloat `json:"constraints,omitempty"`
	}{
		plain:       plain(v),
		X:           solver.JSONFloats(v.X),
		Constraints: solver.JSONFloats(v.Constraints),
	})
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// NewMinimumView converts m, nil before the solve ends.
func NewMinimumView(m solver.Minimum) *MinimumView {
	if m == nil {
		return nil
	}
	v := &MinimumView{Kind: solver.StatusOf(m).String()}
	if r, ok := solver.ResultOf(m); ok {
		v.X = r.X
		v.Value = finite(r.Value)
		v.Constraints = r.Constraints
		v.Iterations = r.Iterations
	}
	switch m := m.(type) {
	case *solver.ResultWithWarnings:
		for _, w := range m.Warnings {
			v.Warnings = append(v.Warnings, w.Error())
		}
	case *solver.SolverError:
		v.Error = m.Error()
		for _, w := range m.Warnings {
			v.Warnings = append(v.Warnings, w.Error())
		}
	case solver.NoSolution:
		for _, w := range m.Warnings {
			v.Warnings = append(v.Warnings, w.Error())
		}
	}
	return v
}

// JobStatus is the JSON form of a job.
type JobStatus struct {
	ID         string          `json:"id"`
	Problem    string          `json:"problem"`
	Backend    string          `json:"backend"`
	Status     string          `json:"status"`
	StartTime  time.Time       `json:"start_time"`
	EndTime    *time.Time      `json:"end_time,omitempty"`
	Iterations int             `json:"iterations"`
	Parameters map[string]any  `json:"parameters,omitempty"`
	Minimum    *MinimumView    `json:"minimum,omitempty"`
	History    []*solver.State `json:"history,omitempty"`
}

// Snapshot returns the job status with the stored iterations from since
// onwards; a negative since omits the history.
func (j *Job) Snapshot(since int) JobStatus {
	st := JobStatus{
		ID:        j.ID,
		Problem:   j.Problem,
		Backend:   j.Backend,
		Status:    j.Status(),
		StartTime: j.StartTime,
		Minimum:   NewMinimumView(j.solver.Minimum()),
	}
	j.mu.Lock()
	st.EndTime = j.endTime
	j.mu.Unlock()

	params := j.solver.Parameters()
	st.Parameters = make(map[string]any, len(params))
	for k, p := range params {
		st.Parameters[k] = p.Value
	}
	if last, ok := j.history.Last(); ok {
		st.Iterations = last.Iteration
	}
	if since >= 0 {
		st.History = j.history.Since(since)
	}
	return st
}

// JobManager runs solve jobs with bounded concurrency and keeps finished
// jobs for a retention period.
type JobManager struct {
	defaults  Defaults
	logger    Logger
	metrics   *callback.Metrics
	slots     chan struct{}
	retention time.Duration
	now       func() time.Time

	mu   sync.RWMutex
	jobs map[string]*Job
	wg   sync.WaitGroup
}

// Defaults are the solver settings applied when a request omits them.
type Defaults struct {
	Backend        string
	MaxIterations  int
	CacheCapacity  int
	CacheTolerance float64
	FDStep         float64
	HistoryLimit   int
}

// NewJobManager returns a manager running at most maxRunning solves at once.
func NewJobManager(defaults Defaults, maxRunning int, retention time.Duration, logger Logger, metrics *callback.Metrics) *JobManager {
	if maxRunning < 1 {
		maxRunning = 1
	}
	return &JobManager{
		defaults:  defaults,
		logger:    logger,
		metrics:   metrics,
		slots:     make(chan struct{}, maxRunning),
		retention: retention,
		now:       time.Now,
		jobs:      make(map[string]*Job),
	}
}

// Start validates req, creates the solver and runs it in the background.
func (m *JobManager) Start(req SolveRequest) (*Job, error) {
	m.prune()

	entry, err := catalog.Lookup(req.Problem)
	if err != nil {
		return nil, err
	}
	p, err := entry.Problem()
	if err != nil {
		return nil, err
	}
	if req.Start != nil {
		if err := p.SetStartingPoint(req.Start); err != nil {
			return nil, err
		}
	}

	backend := req.Backend
	if backend == "" {
		backend = m.defaults.Backend
	}
	params, err := m.parameters(req.Parameters)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	jobLogger := m.logger.WithFields(map[string]interface{}{"job_id": id, "problem": req.Problem})
	limit := m.defaults.HistoryLimit
	if limit < 0 {
		limit = 0
	}
	history, err := callback.NewHistory(callback.WithLimit(limit))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	opts := []solver.Option{
		solver.WithLogger(logging.NewZapLogger(jobLogger)),
		solver.WithParameters(params),
		solver.WithObserver(history, solver.Named("history")),
		solver.WithObserver(callback.Cancel(ctx), solver.Named("cancel")),
	}
	if m.metrics != nil {
		opts = append(opts, solver.WithObserver(m.metrics.Observer(backend), solver.Named("metrics")))
	}
	s, err := solver.Create(backend, p, opts...)
	if err != nil {
		cancel()
		return nil, err
	}

	job := &Job{
		ID:        id,
		Problem:   req.Problem,
		Backend:   backend,
		StartTime: m.now(),
		solver:    s,
		history:   history,
		ctx:       ctx,
		cancel:    cancel,
	}
	m.mu.Lock()
	m.jobs[id] = job
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(job, jobLogger)
	return job, nil
}

// parameters merges the request parameters over the defaults. JSON arrays
// become []float64.
func (m *JobManager) parameters(raw map[string]any) (solver.Parameters, error) {
	params := solver.Parameters{}
	set := func(key string, value any) error {
		return params.Set(key, value, "")
	}
	if m.defaults.MaxIterations > 0 {
		_ = set(solver.ParamMaxIterations, m.defaults.MaxIterations)
	}
	if m.defaults.CacheCapacity > 0 {
		_ = set(solver.ParamCacheCapacity, m.defaults.CacheCapacity)
	}
	_ = set(solver.ParamCacheTolerance, m.defaults.CacheTolerance)
	_ = set(solver.ParamFiniteDifferenceStep, m.defaults.FDStep)

	for key, value := range raw {
		if list, ok := value.([]any); ok {
			fs := make([]float64, len(list))
			for i, item := range list {
				f, ok := item.(float64)
				if !ok {
					return nil, apierrors.Wrapf(solver.ErrInvalidParameter, "parameter %s: element %d is not a number", key, i)
				}
				fs[i] = f
			}
			value = fs
		}
		if err := set(key, value); err != nil {
			return nil, err
		}
	}
	return params, nil
}

func (m *JobManager) run(job *Job, logger Logger) {
	defer m.wg.Done()
	defer job.cancel()

	select {
	case m.slots <- struct{}{}:
		defer func() { <-m.slots }()
	case <-job.ctx.Done():
		job.finish(m.now())
		logger.Info("job cancelled before start")
		return
	}

	job.mu.Lock()
	job.started = true
	job.mu.Unlock()

	logger.Info("job started", map[string]interface{}{"backend": job.Backend})
	outcome := job.solver.Solve()
	job.finish(m.now())

	fields := map[string]interface{}{
		"status":     job.Status(),
		"iterations": job.history.Len(),
	}
	if r, ok := solver.ResultOf(outcome); ok {
		fields["value"] = r.Value
	}
	logger.Info("job finished", fields)
}

// Get returns the job with the given id.
func (m *JobManager) Get(id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, apierrors.Errorf("job %s not found", id).WithStatus(404)
	}
	return job, nil
}

// List returns the jobs, oldest first.
func (m *JobManager) List() []*Job {
	m.prune()
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].StartTime.Equal(out[k].StartTime) {
			return out[i].ID < out[k].ID
		}
		return out[i].StartTime.Before(out[k].StartTime)
	})
	return out
}

// prune drops finished jobs older than the retention period.
func (m *JobManager) prune() {
	if m.retention <= 0 {
		return
	}
	cutoff := m.now().Add(-m.retention)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, job := range m.jobs {
		job.mu.Lock()
		expired := job.endTime != nil && job.endTime.Before(cutoff)
		job.mu.Unlock()
		if expired {
			delete(m.jobs, id)
		}
	}
}

// Close cancels every job and waits for them to stop.
func (m *JobManager) Close() {
	m.mu.RLock()
	for _, job := range m.jobs {
		_ = job.Cancel()
	}
	m.mu.RUnlock()
	m.wg.Wait()
}
