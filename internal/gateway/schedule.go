package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/nextlevelbuilder/hedgewatch/internal/cron"
	"github.com/nextlevelbuilder/hedgewatch/pkg/protocol"
)

// RunJob starts a scheduled analysis. It is a cron.RunFunc; a job that
// comes due while another run is streaming is skipped, not queued.
func (r *Runner) RunJob(job cron.Job) (string, error) {
	session, err := r.Start(protocol.StartParams{Symbol: job.Symbol, Agents: job.Agents, Model: job.Model})
	if errors.Is(err, ErrBusy) {
		return "", fmt.Errorf("%w: %v", cron.ErrSkipped, err)
	}
	if err != nil {
		return "", err
	}
	return session.ID(), nil
}

// ScheduleSource reports scheduled jobs with their next and last runs.
// *cron.Service implements it.
type ScheduleSource interface {
	Status() []cron.JobStatus
}

// SetSchedules exposes src on GET /v1/schedules and the schedules.list
// method. Without a source both report an empty list.
func (s *Server) SetSchedules(src ScheduleSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules = src
}

func (s *Server) scheduleStatus() []cron.JobStatus {
	s.mu.RLock()
	src := s.schedules
	s.mu.RUnlock()
	if src == nil {
		return []cron.JobStatus{}
	}
	return src.Status()
}

func (s *Server) handleSchedules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, protocol.NewOKResponse("", map[string]any{
		"schedules": s.scheduleStatus(),
	}))
}

func (r *MethodRouter) handleSchedules(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]any{
		"schedules": r.server.scheduleStatus(),
	}))
}
