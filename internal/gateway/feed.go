package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/hedgewatch/internal/analysis"
	"github.com/nextlevelbuilder/hedgewatch/pkg/protocol"
)

// FeedError is an error response received on the feed.
type FeedError struct {
	Method  string
	Code    string
	Message string
}

func (e *FeedError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Method, e.Message, e.Code)
}

// Feed is a client of a gateway's WebSocket snapshot feed.
type Feed struct {
	conn *websocket.Conn

	mu      sync.Mutex
	pending map[string]string // request ID -> method
	started bool
	err     error
}

// DialFeed connects to the feed of the gateway at baseURL
// (e.g. "http://127.0.0.1:18790").
func DialFeed(ctx context.Context, baseURL, token string) (*Feed, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("connect to gateway at %s: unauthorized", u.Host)
		}
		return nil, fmt.Errorf("connect to gateway at %s: %w", u.Host, err)
	}
	return &Feed{conn: conn, pending: make(map[string]string)}, nil
}

// Request sends a control request. Its response is checked while ranging
// over Snapshots; an error response ends the sequence.
func (f *Feed) Request(method string, params any) error {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal %s params: %w", method, err)
		}
		raw = data
	}
	id := uuid.NewString()[:8]

	f.mu.Lock()
	f.pending[id] = method
	if method == protocol.MethodAnalysisStart {
		f.started = true
	}
	f.mu.Unlock()

	frame := protocol.RequestFrame{Type: protocol.FrameTypeRequest, ID: id, Method: method, Params: raw}
	if err := f.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}
	return nil
}

// Snapshots yields the snapshots pushed by the gateway. Unless follow is
// set, the sequence ends once the watched run reaches a terminal state, or
// immediately after the first snapshot when nothing is running and no run
// was requested. Err reports why the sequence ended early.
func (f *Feed) Snapshots(ctx context.Context, follow bool) iter.Seq[analysis.Snapshot] {
	return func(yield func(analysis.Snapshot) bool) {
		stop := context.AfterFunc(ctx, func() { f.conn.Close() })
		defer stop()

		first := true
		var initialRun string
		seen := seqTracker{}
		for {
			_, data, err := f.conn.ReadMessage()
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					err = ctxErr
				}
				f.setErr(fmt.Errorf("read feed: %w", err))
				return
			}

			frameType, _ := protocol.ParseFrameType(data)
			switch frameType {
			case protocol.FrameTypeResponse:
				if err := f.checkResponse(data); err != nil {
					f.setErr(err)
					return
				}

			case protocol.FrameTypeEvent:
				var evt protocol.EventFrame
				if err := json.Unmarshal(data, &evt); err != nil {
					continue
				}
				switch evt.Event {
				case protocol.EventSnapshot, protocol.EventCompleted, protocol.EventFailed:
				default:
					continue
				}
				if !seen.fresh(evt.RunID, evt.Seq) {
					continue
				}
				snap, err := SnapshotOf(evt)
				if err != nil {
					continue
				}

				// The gateway always sends the current snapshot first.
				if first {
					first = false
					initialRun = snap.RunID
				}
				f.mu.Lock()
				started := f.started
				f.mu.Unlock()

				ours := !started || snap.RunID != initialRun
				if !ours && !follow && snap.State != analysis.StateStreaming {
					continue
				}
				if !yield(snap) {
					return
				}
				if !follow && ours && (snap.State.Terminal() || snap.State == analysis.StateIdle) {
					return
				}
			}
		}
	}
}

// seqTracker drops events older than the newest one seen for their run.
// Coalesced snapshots may be flushed out of order; the initial snapshot
// carries no sequence number and always passes.
type seqTracker map[string]int64

func (t seqTracker) fresh(runID string, seq int64) bool {
	if seq == 0 {
		return true
	}
	if seq <= t[runID] {
		return false
	}
	t[runID] = seq
	return true
}

func (f *Feed) checkResponse(data []byte) error {
	var resp protocol.ResponseFrame
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil
	}
	f.mu.Lock()
	method, ok := f.pending[resp.ID]
	delete(f.pending, resp.ID)
	f.mu.Unlock()
	if !ok || resp.OK {
		return nil
	}
	fe := &FeedError{Method: method, Code: protocol.ErrInternal, Message: "request failed"}
	if resp.Error != nil {
		fe.Code, fe.Message = resp.Error.Code, resp.Error.Message
	}
	return fe
}

func (f *Feed) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = err
	}
}

// Err returns the error that ended Snapshots, if any.
func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Close closes the connection.
func (f *Feed) Close() error {
	return f.conn.Close()
}
