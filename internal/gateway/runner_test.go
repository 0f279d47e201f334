package gateway

import (
	"errors"
	"testing"

	"github.com/nextlevelbuilder/hedgewatch/internal/analysis"
	"github.com/nextlevelbuilder/hedgewatch/internal/bus"
	"github.com/nextlevelbuilder/hedgewatch/pkg/protocol"
)

func TestRunner_BuildRequest(t *testing.T) {
	r := newTestRunner(t, staticOpener(""))
	r.SetDefaults([]string{"technical_analyst"}, "deepseek-reasoner")

	req, err := r.BuildRequest(protocol.StartParams{Symbol: " btc "})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if req.Symbol != "BTC" || req.Model != "deepseek-reasoner" || len(req.Agents) != 1 || req.Agents[0] != "technical_analyst" {
		t.Errorf("unexpected request: %+v", req)
	}

	req, err = r.BuildRequest(protocol.StartParams{Symbol: "eth", Agents: []string{"Sentiment Analyst"}, Model: "deepseek-chat"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if req.Agents[0] != "sentiment_analyst" || req.Model != "deepseek-chat" {
		t.Errorf("unexpected request: %+v", req)
	}

	if _, err := r.BuildRequest(protocol.StartParams{Symbol: "not a/symbol"}); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("err = %v, want ErrInvalidParams", err)
	}
}

func TestRunner_PublishesAndRemembers(t *testing.T) {
	r := newTestRunner(t, staticOpener(frameA+frameB+frameResult))
	var names []string
	done := make(chan struct{})
	r.Bus().Subscribe("test", func(e bus.Event) {
		names = append(names, e.Name)
		if e.Name == protocol.EventCompleted {
			close(done)
		}
	})

	session, err := r.Start(protocol.StartParams{Symbol: "BTC"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	<-done

	// streaming, A, B, result, then the terminal event
	want := []string{protocol.EventSnapshot, protocol.EventSnapshot, protocol.EventSnapshot, protocol.EventSnapshot, protocol.EventCompleted}
	if len(names) != len(want) {
		t.Fatalf("events = %v, want %v", names, want)
	}

	snap, ok := r.Lookup(session.ID())
	if !ok {
		t.Fatal("finished run not found")
	}
	if snap.State != analysis.StateCompleted || snap.Result["decision"] != "hold" {
		t.Errorf("unexpected final snapshot: %+v", snap)
	}
	if _, ok := r.Lookup("unknown"); ok {
		t.Error("unknown run found")
	}
}

func TestRunner_DedupesIdenticalSnapshots(t *testing.T) {
	// The second frame repeats the first; only its frame count differs.
	r := newTestRunner(t, staticOpener(frameA+frameA))
	snapshots := 0
	done := make(chan struct{})
	r.Bus().Subscribe("test", func(e bus.Event) {
		switch e.Name {
		case protocol.EventSnapshot:
			snapshots++
		case protocol.EventCompleted:
			close(done)
		}
	})
	if _, err := r.Start(protocol.StartParams{Symbol: "BTC"}); err != nil {
		t.Fatal(err)
	}
	<-done
	// streaming, A, end-of-stream completion
	if snapshots != 3 {
		t.Errorf("snapshots = %d, want 3", snapshots)
	}
}

func TestRunner_ForgetsFingerprintsAfterRun(t *testing.T) {
	r := newTestRunner(t, staticOpener(frameA+frameResult))
	if _, err := r.Start(protocol.StartParams{Symbol: "BTC"}); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, r)
	if n := r.dedupe.Len(); n != 0 {
		t.Errorf("dedupe entries after run = %d, want 0", n)
	}
}

func TestRunner_BusyAndCancel(t *testing.T) {
	p := newPipeOpener()
	r := newTestRunner(t, p)

	if _, err := r.Cancel(); !errors.Is(err, ErrNoActiveRun) {
		t.Errorf("cancel with nothing running = %v", err)
	}
	session, err := r.Start(protocol.StartParams{Symbol: "BTC"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Start(protocol.StartParams{Symbol: "ETH"}); !errors.Is(err, ErrBusy) {
		t.Errorf("second start = %v, want ErrBusy", err)
	}

	p.w.Write([]byte(frameA))
	waitFor(t, "agent A", func() bool { return agentCount(r) == 1 })
	id, err := r.Cancel()
	if err != nil || id != session.ID() {
		t.Fatalf("cancel = %q, %v", id, err)
	}

	snap := waitIdle(t, r)
	if snap.State != analysis.StateFailed || snap.Error != "Analysis cancelled." {
		t.Errorf("unexpected final snapshot: %+v", snap)
	}
	if len(snap.Agents) != 1 || snap.Agents[0].AgentID != "A" {
		t.Errorf("partial progress lost: %+v", snap.Agents)
	}

	if _, err := r.Start(protocol.StartParams{Symbol: "ETH"}); err != nil {
		t.Errorf("start after cancel: %v", err)
	}
}

func TestRunner_ShutdownRejectsStart(t *testing.T) {
	r := newTestRunner(t, staticOpener(""))
	r.cancelBase()
	if _, err := r.Start(protocol.StartParams{Symbol: "BTC"}); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestFingerprint_IgnoresFrameCount(t *testing.T) {
	a := analysis.Snapshot{RunID: "r", State: analysis.StateStreaming, Frames: 1}
	b := a
	b.Frames = 7
	if fingerprint(a) != fingerprint(b) {
		t.Error("frame count should not change the fingerprint")
	}
	b.Agents = []analysis.AgentStatus{{AgentID: "A"}}
	if fingerprint(a) == fingerprint(b) {
		t.Error("agent change should change the fingerprint")
	}
}
