package analysis

import (
	"testing"

	"github.com/nextlevelbuilder/hedgewatch/internal/sse"
)

func TestDispatch(t *testing.T) {
	tests := []struct {
		name       string
		frame      string
		want       Outcome
		wantAgents int
	}{
		{"progress", "event:progress\ndata:{\"agent\":\"A\",\"status\":\"running\",\"progress\":10}", OutcomeProgress, 1},
		{"progress missing agent", "event:progress\ndata:{\"status\":\"running\"}", OutcomeIgnored, 0},
		{"progress empty agent", "event:progress\ndata:{\"agent\":\"\"}", OutcomeIgnored, 0},
		{"progress agent not a string", "event:progress\ndata:{\"agent\":7}", OutcomeIgnored, 0},
		{"progress not json", "event:progress\ndata:not-json", OutcomeIgnored, 0},
		{"progress array", "event:progress\ndata:[1,2]", OutcomeIgnored, 0},
		{"progress null", "event:progress\ndata:null", OutcomeIgnored, 0},
		{"result", "event:result\ndata:{\"decision\":\"hold\"}", OutcomeResult, 0},
		{"result string", "event:result\ndata:\"done\"", OutcomeIgnored, 0},
		{"default message", "data:{\"agent\":\"A\"}", OutcomeIgnored, 0},
		{"unknown event", "event:heartbeat\ndata:{}", OutcomeIgnored, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReducer()
			r.Start()
			got := Dispatch(r, sse.ParseFrame(tt.frame))
			if got != tt.want {
				t.Errorf("outcome = %v, want %v", got, tt.want)
			}
			if n := len(r.Agents()); n != tt.wantAgents {
				t.Errorf("agents = %d, want %d", n, tt.wantAgents)
			}
			if tt.want != OutcomeResult && r.State() != StateStreaming {
				t.Errorf("state changed to %v", r.State())
			}
		})
	}
}

func TestDispatch_ProgressDefaults(t *testing.T) {
	r := NewReducer()
	r.Start()
	Dispatch(r, sse.ParseFrame("event:progress\ndata:{\"agent\":\"A\",\"status\":3,\"progress\":\"half\"}"))
	a := r.Agents()[0]
	if a.StatusText != "" || a.Progress != 0 {
		t.Errorf("expected defaults, got %+v", a)
	}
}

func TestDispatch_ProgressFractionTruncated(t *testing.T) {
	r := NewReducer()
	r.Start()
	Dispatch(r, sse.ParseFrame("event:progress\ndata:{\"agent\":\"A\",\"progress\":42.9}"))
	if p := r.Agents()[0].Progress; p != 42 {
		t.Errorf("progress = %d, want 42", p)
	}
}

func TestDispatch_AfterResultIgnored(t *testing.T) {
	r := NewReducer()
	r.Start()
	Dispatch(r, sse.ParseFrame("event:result\ndata:{\"decision\":\"hold\"}"))
	if got := Dispatch(r, sse.ParseFrame("event:progress\ndata:{\"agent\":\"A\"}")); got != OutcomeIgnored {
		t.Errorf("outcome = %v, want ignored", got)
	}
	if got := Dispatch(r, sse.ParseFrame("event:result\ndata:{\"decision\":\"sell\"}")); got != OutcomeIgnored {
		t.Errorf("outcome = %v, want ignored", got)
	}
	if r.Snapshot().Result["decision"] != "hold" {
		t.Errorf("result overwritten: %v", r.Snapshot().Result)
	}
}
