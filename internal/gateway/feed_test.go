package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/hedgewatch/internal/analysis"
	"github.com/nextlevelbuilder/hedgewatch/pkg/protocol"
)

func TestFeed_StartAndWatch(t *testing.T) {
	_, _, ts := newTestServer(t, staticOpener(frameA+frameB+frameResult), ServerConfig{Token: "secret"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	feed, err := DialFeed(ctx, ts.URL, "secret")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer feed.Close()

	if err := feed.Request(protocol.MethodAnalysisStart, protocol.StartParams{Symbol: "BTC", Agents: []string{"a"}, Model: "m"}); err != nil {
		t.Fatal(err)
	}

	var last analysis.Snapshot
	count := 0
	for snap := range feed.Snapshots(ctx, false) {
		if snap.RunID == "" {
			t.Errorf("snapshot from the idle state leaked: %+v", snap)
		}
		last = snap
		count++
	}
	if err := feed.Err(); err != nil {
		t.Fatalf("feed error: %v", err)
	}
	if count == 0 || last.State != analysis.StateCompleted || last.Result["decision"] != "hold" {
		t.Errorf("last snapshot = %+v after %d", last, count)
	}
}

func TestFeed_IdleGatewayEndsImmediately(t *testing.T) {
	_, _, ts := newTestServer(t, staticOpener(""), ServerConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	feed, err := DialFeed(ctx, ts.URL, "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer feed.Close()

	var states []analysis.State
	for snap := range feed.Snapshots(ctx, false) {
		states = append(states, snap.State)
	}
	if len(states) != 1 || states[0] != analysis.StateIdle {
		t.Errorf("states = %v", states)
	}
}

func TestFeed_ErrorResponseEndsSequence(t *testing.T) {
	_, _, ts := newTestServer(t, staticOpener(""), ServerConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	feed, err := DialFeed(ctx, ts.URL, "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer feed.Close()

	if err := feed.Request(protocol.MethodAnalysisStart, protocol.StartParams{Symbol: "not a symbol!"}); err != nil {
		t.Fatal(err)
	}
	for range feed.Snapshots(ctx, false) {
	}

	var fe *FeedError
	if !errors.As(feed.Err(), &fe) || fe.Code != protocol.ErrInvalidRequest || fe.Method != protocol.MethodAnalysisStart {
		t.Errorf("err = %v", feed.Err())
	}
}

func TestDialFeed_Unauthorized(t *testing.T) {
	_, _, ts := newTestServer(t, staticOpener(""), ServerConfig{Token: "secret"})

	if _, err := DialFeed(context.Background(), ts.URL, "wrong"); err == nil {
		t.Fatal("expected an error for a bad token")
	}
}

func TestSeqTracker(t *testing.T) {
	seen := seqTracker{}
	steps := []struct {
		run  string
		seq  int64
		want bool
	}{
		{"r1", 0, true},
		{"r1", 3, true},
		{"r1", 5, true},
		{"r1", 4, false},
		{"r1", 5, false},
		{"r2", 4, true},
		{"r1", 0, true},
	}
	for i, s := range steps {
		if got := seen.fresh(s.run, s.seq); got != s.want {
			t.Errorf("step %d (%s seq %d) = %v, want %v", i, s.run, s.seq, got, s.want)
		}
	}
}

func TestFeed_DropsStaleSnapshots(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		send := func(event string, seq int64, snap analysis.Snapshot) {
			conn.WriteJSON(protocol.EventFrame{Type: protocol.FrameTypeEvent, Event: event, Payload: snap, Seq: seq, RunID: snap.RunID})
		}
		send(protocol.EventSnapshot, 0, analysis.Snapshot{RunID: "r1", State: analysis.StateStreaming, IsLoading: true})
		send(protocol.EventCompleted, 5, analysis.Snapshot{RunID: "r1", State: analysis.StateCompleted})
		// A coalesced snapshot flushed after the terminal event.
		send(protocol.EventSnapshot, 4, analysis.Snapshot{RunID: "r1", State: analysis.StateStreaming, IsLoading: true})
		send(protocol.EventSnapshot, 6, analysis.Snapshot{RunID: "r2", State: analysis.StateStreaming, IsLoading: true})
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	feed, err := DialFeed(ctx, srv.URL, "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer feed.Close()

	var got []string
	for snap := range feed.Snapshots(ctx, true) {
		got = append(got, snap.RunID+":"+snap.State.String())
	}
	want := []string{"r1:streaming", "r1:completed", "r2:streaming"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("snapshots = %v, want %v", got, want)
	}
}
