package gateway

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/hedgewatch/internal/analysis"
	"github.com/nextlevelbuilder/hedgewatch/internal/bus"
)

const (
	frameA      = "event:progress\ndata:{\"agent\":\"A\",\"status\":\"running\",\"progress\":10}\n\n"
	frameB      = "event:progress\ndata:{\"agent\":\"B\",\"status\":\"running\",\"progress\":5}\n\n"
	frameResult = "event:result\ndata:{\"decision\":\"hold\"}\n\n"
)

func staticOpener(stream string) analysis.Opener {
	return analysis.OpenerFunc(func(context.Context, analysis.Request) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(stream)), nil
	})
}

// pipeOpener hands out one pipe; the test writes upstream frames to w.
type pipeOpener struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func newPipeOpener() *pipeOpener {
	r, w := io.Pipe()
	return &pipeOpener{r: r, w: w}
}

func (p *pipeOpener) Open(context.Context, analysis.Request) (io.ReadCloser, error) {
	return p.r, nil
}

func newTestRunner(t *testing.T, opener analysis.Opener) *Runner {
	t.Helper()
	r, err := NewRunner(RunnerConfig{Opener: opener, Bus: bus.New(), RecentRuns: 4})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		r.Shutdown(ctx)
	})
	return r
}

func newTestServer(t *testing.T, opener analysis.Opener, cfg ServerConfig) (*Server, *Runner, *httptest.Server) {
	t.Helper()
	runner := newTestRunner(t, opener)
	if cfg.CoalesceWindow == 0 {
		cfg.CoalesceWindow = -1
	}
	s := NewServer(runner, cfg)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Close()
	})
	return s, runner, ts
}

// waitIdle waits until the runner has no active run.
func waitIdle(t *testing.T, r *Runner) analysis.Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if snap, active := r.Current(); !active && snap.State.Terminal() {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for run to finish")
	return analysis.Snapshot{}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func agentCount(r *Runner) int {
	snap, _ := r.Current()
	return len(snap.Agents)
}
