package cron

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"
)

// minEvery keeps interval jobs from hammering the upstream service.
const minEvery = time.Minute

// Service fires scheduled jobs through a RunFunc.
type Service struct {
	onJob RunFunc
	now   func() time.Time
	tick  time.Duration

	mu       sync.Mutex
	jobs     []*entry
	running  bool
	stopChan chan struct{}
}

type entry struct {
	job   Job
	every time.Duration
	state JobState
}

// NewService creates a stopped service.
func NewService(onJob RunFunc) *Service {
	return &Service{onJob: onJob, now: time.Now, tick: time.Second}
}

// Validate checks a job's schedule and target.
func Validate(job Job) error {
	if strings.TrimSpace(job.ID) == "" {
		return fmt.Errorf("schedule requires an id")
	}
	if strings.TrimSpace(job.Symbol) == "" {
		return fmt.Errorf("schedule %s: symbol is required", job.ID)
	}
	switch {
	case job.Expr != "" && job.Every != "":
		return fmt.Errorf("schedule %s: set either cron or every, not both", job.ID)
	case job.Expr != "":
		if !gronx.New().IsValid(job.Expr) {
			return fmt.Errorf("schedule %s: invalid cron expression %q", job.ID, job.Expr)
		}
	case job.Every != "":
		d, err := time.ParseDuration(job.Every)
		if err != nil {
			return fmt.Errorf("schedule %s: invalid interval %q: %w", job.ID, job.Every, err)
		}
		if d < minEvery {
			return fmt.Errorf("schedule %s: interval %s is shorter than %s", job.ID, d, minEvery)
		}
	default:
		return fmt.Errorf("schedule %s: cron or every is required", job.ID)
	}
	return nil
}

// SetJobs replaces the job list, keeping the last-run state of jobs whose
// ID and schedule are unchanged. Nothing changes if any job is invalid.
func (s *Service) SetJobs(jobs []Job) error {
	seen := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		if err := Validate(j); err != nil {
			return err
		}
		if seen[j.ID] {
			return fmt.Errorf("duplicate schedule id %q", j.ID)
		}
		seen[j.ID] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := make(map[string]*entry, len(s.jobs))
	for _, e := range s.jobs {
		prev[e.job.ID] = e
	}

	now := s.now()
	next := make([]*entry, 0, len(jobs))
	for _, j := range jobs {
		e := &entry{job: j}
		if j.Every != "" {
			e.every, _ = time.ParseDuration(j.Every)
		}
		if old, ok := prev[j.ID]; ok && old.job.Expr == j.Expr && old.job.Every == j.Every {
			e.state = old.state
		}
		if j.Disabled {
			e.state.NextRun = time.Time{}
		} else if e.state.NextRun.IsZero() {
			e.state.NextRun = e.computeNext(now)
		}
		next = append(next, e)
	}
	s.jobs = next
	slog.Info("cron.jobs_loaded", "jobs", len(next))
	return nil
}

// Start begins the scheduling loop.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.stopChan = make(chan struct{})
	s.running = true
	go s.runLoop(s.stopChan)
	slog.Info("cron.started", "jobs", len(s.jobs))
}

// Stop halts the scheduling loop.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.stopChan)
	s.running = false
	slog.Info("cron.stopped")
}

// Status returns every job with its state, in config order.
func (s *Service) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, len(s.jobs))
	for i, e := range s.jobs {
		out[i] = JobStatus{Job: e.job, State: e.state}
	}
	return out
}

func (s *Service) runLoop(stopChan chan struct{}) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
			s.checkJobs()
		}
	}
}

// checkJobs fires every due job once. A job that fell behind fires once,
// not once per missed slot.
func (s *Service) checkJobs() {
	s.mu.Lock()
	now := s.now()
	var due []*entry
	for _, e := range s.jobs {
		if e.job.Disabled || e.state.NextRun.IsZero() || e.state.NextRun.After(now) {
			continue
		}
		// Schedule the next slot before running to prevent duplicate execution.
		e.state.NextRun = e.computeNext(now)
		due = append(due, e)
	}
	s.mu.Unlock()

	for _, e := range due {
		s.execute(e, now)
	}
}

func (s *Service) execute(e *entry, now time.Time) {
	runID, err := s.onJob(e.job)

	s.mu.Lock()
	defer s.mu.Unlock()
	e.state.LastRun = now
	switch {
	case err == nil:
		e.state.LastStatus, e.state.LastError, e.state.LastRunID = "started", "", runID
		slog.Info("cron.job_started", "job", e.job.ID, "symbol", e.job.Symbol, "run_id", runID)
	case errors.Is(err, ErrSkipped):
		e.state.LastStatus, e.state.LastError = "skipped", err.Error()
		slog.Info("cron.job_skipped", "job", e.job.ID, "reason", err)
	default:
		e.state.LastStatus, e.state.LastError = "error", err.Error()
		slog.Warn("cron.job_failed", "job", e.job.ID, "error", err)
	}
}

func (e *entry) computeNext(after time.Time) time.Time {
	if e.job.Expr == "" {
		return after.Add(e.every)
	}
	next, err := gronx.NextTickAfter(e.job.Expr, after, false)
	if err != nil {
		slog.Error("cron.next_run_failed", "job", e.job.ID, "expr", e.job.Expr, "error", err)
		return time.Time{}
	}
	return next
}
