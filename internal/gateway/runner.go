package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nextlevelbuilder/hedgewatch/internal/analysis"
	"github.com/nextlevelbuilder/hedgewatch/internal/bus"
	"github.com/nextlevelbuilder/hedgewatch/internal/config"
	"github.com/nextlevelbuilder/hedgewatch/internal/tracing"
	"github.com/nextlevelbuilder/hedgewatch/pkg/protocol"
)

// ErrBusy is returned by Start while another run is streaming.
var ErrBusy = errors.New("an analysis is already running")

// ErrNoActiveRun is returned by Cancel when nothing is streaming.
var ErrNoActiveRun = errors.New("no analysis is running")

// ErrInvalidParams wraps start params that do not form a valid request.
var ErrInvalidParams = errors.New("invalid analysis parameters")

// ErrClosed is returned by Start after Shutdown.
var ErrClosed = errors.New("runner is shut down")

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Opener     analysis.Opener
	Bus        *bus.Bus
	Recorder   *tracing.Recorder
	Agents     []string // defaults for StartParams without agents
	Model      string   // default for StartParams without a model
	RecentRuns int      // finished snapshots kept for lookup (default 32)
}

// Runner owns at most one active analysis session and publishes every
// snapshot it produces on the bus.
type Runner struct {
	opener   analysis.Opener
	bus      *bus.Bus
	recorder *tracing.Recorder
	recent   *lru.Cache[string, analysis.Snapshot]
	dedupe   *bus.DedupeCache

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu       sync.Mutex
	agents   []string
	model    string
	active   *activeRun
	last     analysis.Snapshot // most recent finished run
	inflight sync.WaitGroup
}

type activeRun struct {
	session *analysis.Session
	cancel  context.CancelFunc
}

// NewRunner creates a runner. Runs started on it are cancelled by Shutdown.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Opener == nil {
		return nil, fmt.Errorf("runner requires an opener")
	}
	if cfg.Bus == nil {
		cfg.Bus = bus.New()
	}
	size := cfg.RecentRuns
	if size <= 0 {
		size = 32
	}
	recent, err := lru.New[string, analysis.Snapshot](size)
	if err != nil {
		return nil, fmt.Errorf("recent runs cache: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		opener:     cfg.Opener,
		bus:        cfg.Bus,
		recorder:   cfg.Recorder,
		recent:     recent,
		dedupe:     bus.NewDedupeCache(10*time.Minute, 4096),
		baseCtx:    ctx,
		cancelBase: cancel,
		last:       analysis.Snapshot{State: analysis.StateIdle, Agents: []analysis.AgentStatus{}},
	}
	r.SetDefaults(cfg.Agents, cfg.Model)
	return r, nil
}

// Bus returns the bus snapshots are published on.
func (r *Runner) Bus() *bus.Bus { return r.bus }

// SetDefaults replaces the agents and model used when a start request
// omits them. Runs already streaming are unaffected.
func (r *Runner) SetDefaults(agents []string, model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(agents) == 0 {
		agents = []string{config.DefaultAgentID}
	}
	if model == "" {
		model = config.DefaultModel
	}
	r.agents = append([]string(nil), agents...)
	r.model = model
}

// BuildRequest turns start params into a validated analysis request,
// applying defaults and normalising the symbol and agent IDs.
func (r *Runner) BuildRequest(params protocol.StartParams) (analysis.Request, error) {
	r.mu.Lock()
	agents, model := r.agents, r.model
	r.mu.Unlock()

	symbol := config.NormalizeSymbol(params.Symbol)
	if symbol == "" {
		return analysis.Request{}, fmt.Errorf("%w: symbol %q", ErrInvalidParams, params.Symbol)
	}
	if len(params.Agents) > 0 {
		agents = make([]string, 0, len(params.Agents))
		for _, a := range params.Agents {
			agents = append(agents, config.NormalizeAgentID(a))
		}
	}
	if params.Model != "" {
		model = params.Model
	}
	req := analysis.Request{Symbol: symbol, Agents: agents, Model: model}
	if err := req.Validate(); err != nil {
		return analysis.Request{}, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return req, nil
}

// Start begins a run and returns its session. It fails with ErrBusy while
// another run is streaming.
func (r *Runner) Start(params protocol.StartParams) (*analysis.Session, error) {
	req, err := r.BuildRequest(params)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.active != nil {
		r.mu.Unlock()
		return nil, ErrBusy
	}
	if r.baseCtx.Err() != nil {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	session := analysis.NewSession(r.opener, req, analysis.WithRecorder(r.recorder))
	ctx, cancel := context.WithCancel(r.baseCtx)
	r.active = &activeRun{session: session, cancel: cancel}
	r.inflight.Add(1)
	r.mu.Unlock()

	slog.Info("gateway.run_started", "run_id", session.ID(), "symbol", req.Symbol, "agents", req.Agents)
	go r.drive(ctx, session)
	return session, nil
}

func (r *Runner) drive(ctx context.Context, session *analysis.Session) {
	defer r.inflight.Done()

	var final analysis.Snapshot
	for snap := range session.Stream(ctx) {
		final = snap
		r.publish(snap)
	}

	// Fingerprint keys are per run; none of this run's will be seen again.
	r.dedupe.Reset()

	r.mu.Lock()
	if r.active != nil && r.active.session == session {
		r.active.cancel()
		r.active = nil
	}
	r.last = final
	r.recent.Add(final.RunID, final)
	r.mu.Unlock()

	name := protocol.EventCompleted
	if final.State == analysis.StateFailed {
		name = protocol.EventFailed
	}
	r.bus.Broadcast(bus.Event{Name: name, RunID: final.RunID, Payload: final})
	slog.Info("gateway.run_finished", "run_id", final.RunID, "symbol", session.Request().Symbol, "state", final.State.String(), "subscribers", r.bus.Len())
}

// publish broadcasts a snapshot unless an identical one for the same run
// was already sent.
func (r *Runner) publish(snap analysis.Snapshot) {
	if r.dedupe.IsDuplicate(snap.RunID + ":" + fingerprint(snap)) {
		return
	}
	r.bus.Broadcast(bus.Event{Name: protocol.EventSnapshot, RunID: snap.RunID, Payload: snap})
}

// fingerprint hashes the rendered content of a snapshot. The frame count
// is excluded so frames that change nothing do not produce a new event.
func fingerprint(snap analysis.Snapshot) string {
	snap.Frames = 0
	data, _ := json.Marshal(snap)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:12])
}

// Cancel stops the active run. The run finishes as Failed with a
// cancellation error and is broadcast like any other terminal state.
func (r *Runner) Cancel() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return "", ErrNoActiveRun
	}
	r.active.cancel()
	slog.Info("gateway.run_cancel_requested", "run_id", r.active.session.ID())
	return r.active.session.ID(), nil
}

// Current returns the active run's latest snapshot, or the last finished
// run's final snapshot when nothing is streaming.
func (r *Runner) Current() (snap analysis.Snapshot, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return r.active.session.Snapshot(), true
	}
	return r.last, false
}

// Lookup returns the snapshot of a run by ID: live for the active run,
// final for recently finished ones.
func (r *Runner) Lookup(runID string) (analysis.Snapshot, bool) {
	r.mu.Lock()
	if r.active != nil && r.active.session.ID() == runID {
		snap := r.active.session.Snapshot()
		r.mu.Unlock()
		return snap, true
	}
	r.mu.Unlock()
	return r.recent.Get(runID)
}

// Shutdown cancels any active run and waits for it to finish or ctx to end.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.cancelBase()
	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
