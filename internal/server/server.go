package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhichaoleo/roboptim-core/internal/config"
	apierrors "github.com/zhichaoleo/roboptim-core/internal/errors"
	"github.com/zhichaoleo/roboptim-core/internal/logging"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/callback"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/catalog"
	"github.com/zhichaoleo/roboptim-core/internal/optimization/solver"
)

// Logger defines the logging interface used by the server
// This allows us to be flexible with our logging implementation
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// Server implements the HTTP and JSON-RPC server for the solver service.
// It runs solve jobs against the problem catalog and provides endpoints to
// start, monitor and cancel them.
type Server struct {
	cfg      *config.Config
	logger   Logger
	registry *prometheus.Registry
	jobs     *JobManager
}

// NewServer creates a new server instance with the given config and logger.
// Solve metrics go to a registry owned by the server and served on /metrics.
func NewServer(cfg *config.Config, logger Logger) (*Server, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := callback.NewMetrics(registry)
	if err != nil {
		return nil, err
	}

	defaults := Defaults{
		Backend:        cfg.Solver.Backend,
		MaxIterations:  cfg.Solver.MaxIterations,
		CacheCapacity:  cfg.Solver.CacheCapacity,
		CacheTolerance: cfg.Solver.CacheTolerance,
		FDStep:         cfg.Solver.FDStep,
		HistoryLimit:   cfg.Solver.HistoryLimit,
	}
	return &Server{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		jobs:     NewJobManager(defaults, cfg.Jobs.MaxRunning, cfg.Jobs.Retention, logger, metrics),
	}, nil
}

// Jobs returns the job manager.
func (s *Server) Jobs() *JobManager { return s.jobs }

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/backends", s.handleBackends)
		r.Get("/problems", s.handleProblems)
		r.Get("/problems/{name}", s.handleProblem)
		r.Route("/solve", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Post("/", s.handleSolve)
			r.Get("/{id}", s.handleStatus)
			r.Delete("/{id}", s.handleCancel)
		})
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// Close cancels the running jobs and waits for them to stop.
func (s *Server) Close() error {
	s.jobs.Close()
	return nil
}

// respondJSON encodes body before writing the status, so an encoding
// failure still yields a complete error response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	raw, err := json.Marshal(body)
	if err != nil {
		s.logger.Error("failed to encode response", map[string]interface{}{"error": err.Error()})
		apierrors.Write(w, apierrors.Wrap(err, "encoding response"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(raw, '\n'))
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	logging.FromContext(r.Context()).Debug("request failed", map[string]interface{}{
		"error":  err.Error(),
		"status": apierrors.StatusOf(err),
	})
	apierrors.Write(w, err)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBackends(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"backends": solver.Backends(),
		"default":  s.cfg.Solver.Backend,
	})
}

// ProblemView is the JSON form of a catalog entry.
type ProblemView struct {
	catalog.Entry
	Level string `json:"level"`
}

func viewOfEntry(e catalog.Entry) ProblemView {
	return ProblemView{Entry: e, Level: e.Level.String()}
}

func (s *Server) handleProblems(w http.ResponseWriter, r *http.Request) {
	entries := catalog.All()
	out := make([]ProblemView, len(entries))
	for i, e := range entries {
		out[i] = viewOfEntry(e)
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"problems": out})
}

func (s *Server) handleProblem(w http.ResponseWriter, r *http.Request) {
	e, err := catalog.Lookup(chi.URLParam(r, "name"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, viewOfEntry(e))
}

// handleSolve starts a solve job.
// Expected body: {"problem": "rosenbrock", "backend": "gonum-bfgs", "start": [-1.2, 1], "parameters": {"max-iterations": 100}}
// Returns 202 with the job status.
func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	var req SolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, apierrors.Wrap(err, "invalid request body").WithStatus(http.StatusBadRequest))
		return
	}
	if req.Problem == "" {
		s.respondError(w, r, apierrors.New("problem is required").WithStatus(http.StatusBadRequest))
		return
	}

	job, err := s.jobs.Start(req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("solve job created", map[string]interface{}{
		"job_id":  job.ID,
		"problem": job.Problem,
		"backend": job.Backend,
	})

	w.Header().Set("Location", "/api/v1/solve/"+job.ID)
	s.respondJSON(w, http.StatusAccepted, job.Snapshot(-1))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.jobs.List()
	out := make([]JobStatus, len(jobs))
	for i, job := range jobs {
		out[i] = job.Snapshot(-1)
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"jobs": out})
}

// handleStatus returns a job with its history. The since query parameter
// selects the first iteration returned, history=false omits it.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	since := 0
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, r, apierrors.Errorf("invalid since %q", v).WithStatus(http.StatusBadRequest))
			return
		}
		since = n
	}
	if r.URL.Query().Get("history") == "false" {
		since = -1
	}
	s.respondJSON(w, http.StatusOK, job.Snapshot(since))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := job.Cancel(); err != nil {
		s.respondError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("solve job cancellation requested", map[string]interface{}{"job_id": job.ID})
	s.respondJSON(w, http.StatusAccepted, map[string]string{"id": job.ID, "status": "cancelling"})
}
