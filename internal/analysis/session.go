package analysis

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/hedgewatch/internal/sse"
	"github.com/nextlevelbuilder/hedgewatch/internal/tracing"
)

// Session owns the lifecycle of one analysis request:
// Idle → Streaming → Completed | Failed.
//
// One goroutine drives the session through Stream or Run. Snapshot and Err
// may be called from any goroutine.
type Session struct {
	id        string
	req       Request
	opener    Opener
	chunkSize int
	recorder  *tracing.Recorder

	reducer *Reducer
	decoder *sse.Decoder
	frames  int

	started atomic.Bool
	latest  atomic.Pointer[published]
}

type published struct {
	snap Snapshot
	err  error
}

// Option configures a Session.
type Option func(*Session)

// WithRunID sets the run ID instead of generating one.
func WithRunID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithChunkSize sets the body read buffer size.
func WithChunkSize(n int) Option {
	return func(s *Session) { s.chunkSize = n }
}

// WithRecorder attaches a span recorder.
func WithRecorder(r *tracing.Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// NewSession creates an idle session for req.
func NewSession(opener Opener, req Request, opts ...Option) *Session {
	s := &Session{
		req:       req,
		opener:    opener,
		chunkSize: DefaultChunkSize,
		reducer:   NewReducer(),
		decoder:   sse.NewDecoder(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	s.publish()
	return s
}

// ID returns the run ID.
func (s *Session) ID() string { return s.id }

// Request returns the request this session runs.
func (s *Session) Request() Request { return s.req }

// Snapshot returns the most recently published state.
func (s *Session) Snapshot() Snapshot {
	return s.latest.Load().snap
}

// Err returns the error that failed the session, or nil.
func (s *Session) Err() error {
	return s.latest.Load().err
}

// Run drives the session to a terminal state and returns the final snapshot.
func (s *Session) Run(ctx context.Context) (Snapshot, error) {
	if s.started.Load() {
		return s.Snapshot(), ErrSessionStarted
	}
	for range s.Stream(ctx) {
	}
	return s.Snapshot(), s.Err()
}

// Stream starts the session and yields a snapshot when streaming begins,
// after every processed frame, and once more on the terminal transition.
// The sequence may be ranged over only once.
//
// Stopping the iteration early, or cancelling ctx, fails the session with
// the cancellation error and releases the response body. No agent or result
// changes are applied after cancellation.
func (s *Session) Stream(ctx context.Context) iter.Seq[Snapshot] {
	return func(yield func(Snapshot) bool) {
		if !s.started.CompareAndSwap(false, true) {
			slog.Warn("analysis.session_restart_ignored", "run_id", s.id)
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		ctx = ContextWithRunID(ctx, s.id)

		ctx, span := s.recorder.StartRun(ctx, tracing.Run{
			ID:     s.id,
			Symbol: s.req.Symbol,
			Agents: s.req.Agents,
			Model:  s.req.Model,
		})
		defer func() {
			s.recorder.EndRun(span, s.reducer.State().String(), s.frames, len(s.reducer.agents), s.reducer.Err())
		}()

		s.reducer.Start()
		slog.Info("analysis.started", "run_id", s.id, "symbol", s.req.Symbol, "agents", s.req.Agents, "model", s.req.Model)
		if !yield(s.publish()) {
			s.cancelled(context.Canceled)
			s.publish()
			return
		}

		body, err := s.opener.Open(ctx, s.req)
		if err != nil {
			s.fail(err)
			yield(s.publish())
			return
		}

		for chunk, err := range Chunks(ctx, body, s.chunkSize) {
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					s.cancelled(ctxErr)
				} else {
					s.fail(&StreamError{Frames: s.frames, Err: err})
				}
				yield(s.publish())
				return
			}

			for _, text := range s.decoder.Feed(chunk) {
				if ctxErr := ctx.Err(); ctxErr != nil {
					s.cancelled(ctxErr)
					yield(s.publish())
					return
				}

				known := len(s.reducer.agents)
				s.frames++
				outcome := Dispatch(s.reducer, sse.ParseFrame(text))
				if outcome == OutcomeProgress && len(s.reducer.agents) > known {
					s.recorder.AgentSeen(span, s.reducer.agents[known].AgentID)
				}

				snap := s.publish()
				if outcome == OutcomeResult {
					slog.Info("analysis.completed", "run_id", s.id, "frames", s.frames, "agents", len(snap.Agents), "result", true)
					yield(snap)
					return
				}
				if !yield(snap) {
					s.cancelled(context.Canceled)
					s.publish()
					return
				}
			}
		}

		if pending := s.decoder.Pending(); pending != "" {
			slog.Debug("analysis.trailing_bytes_discarded", "run_id", s.id, "bytes", len(pending))
		}
		s.reducer.End()
		snap := s.publish()
		slog.Info("analysis.completed", "run_id", s.id, "frames", s.frames, "agents", len(snap.Agents), "result", false)
		yield(snap)
	}
}

func (s *Session) fail(err error) {
	if s.reducer.Fail(err) {
		slog.Warn("analysis.failed", "run_id", s.id, "frames", s.frames, "error", err)
	}
}

func (s *Session) cancelled(err error) {
	if s.reducer.Fail(err) {
		if errors.Is(err, context.DeadlineExceeded) {
			slog.Warn("analysis.timed_out", "run_id", s.id, "frames", s.frames)
			return
		}
		slog.Info("analysis.cancelled", "run_id", s.id, "frames", s.frames)
	}
}

func (s *Session) publish() Snapshot {
	snap := s.reducer.Snapshot()
	snap.RunID = s.id
	snap.Frames = s.frames
	s.latest.Store(&published{snap: snap, err: s.reducer.Err()})
	return snap
}
