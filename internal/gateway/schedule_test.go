package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/nextlevelbuilder/hedgewatch/internal/cron"
	"github.com/nextlevelbuilder/hedgewatch/pkg/protocol"
)

func TestRunner_RunJob(t *testing.T) {
	pipe := newPipeOpener()
	r := newTestRunner(t, pipe)

	runID, err := r.RunJob(cron.Job{ID: "btc", Every: "1h", Symbol: "btc", Agents: []string{"a"}, Model: "m"})
	if err != nil || runID == "" {
		t.Fatalf("run job = %q, %v", runID, err)
	}

	// A second job while the first streams is skipped.
	if _, err := r.RunJob(cron.Job{ID: "eth", Every: "1h", Symbol: "ETH", Agents: []string{"a"}, Model: "m"}); !errors.Is(err, cron.ErrSkipped) {
		t.Errorf("err = %v, want ErrSkipped", err)
	}

	pipe.w.Write([]byte(frameA + frameResult))
	snap := waitIdle(t, r)
	if snap.RunID != runID {
		t.Errorf("finished run = %q, want %q", snap.RunID, runID)
	}

	if _, err := r.RunJob(cron.Job{ID: "bad", Every: "1h", Symbol: "!!"}); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("err = %v, want ErrInvalidParams", err)
	}
}

type fixedSchedules []cron.JobStatus

func (f fixedSchedules) Status() []cron.JobStatus { return f }

func TestServer_Schedules(t *testing.T) {
	s, _, ts := newTestServer(t, staticOpener(""), ServerConfig{Token: "secret"})

	// No source yet: an empty list, not null.
	resp, out := do(t, http.MethodGet, ts.URL+"/v1/schedules", "secret", "")
	if resp.StatusCode != http.StatusOK || string(out.Payload) != `{"schedules":[]}` {
		t.Fatalf("empty schedules = %d %s", resp.StatusCode, out.Payload)
	}

	last := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetSchedules(fixedSchedules{
		{Job: cron.Job{ID: "btc", Every: "15m", Symbol: "BTC"}, State: cron.JobState{LastRun: last, LastStatus: "skipped", LastError: "run skipped: busy"}},
		{Job: cron.Job{ID: "eth", Expr: "0 * * * *", Symbol: "ETH"}, State: cron.JobState{LastRun: last, LastStatus: "started", LastRunID: "run-7"}},
	})

	resp, _ = do(t, http.MethodGet, ts.URL+"/v1/schedules", "", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("without token = %d", resp.StatusCode)
	}

	resp, out = do(t, http.MethodGet, ts.URL+"/v1/schedules", "secret", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("schedules = %d", resp.StatusCode)
	}
	var body struct {
		Schedules []cron.JobStatus `json:"schedules"`
	}
	if err := json.Unmarshal(out.Payload, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Schedules) != 2 {
		t.Fatalf("schedules = %+v", body.Schedules)
	}
	if got := body.Schedules[0]; got.ID != "btc" || got.State.LastStatus != "skipped" || !got.State.LastRun.Equal(last) {
		t.Errorf("btc = %+v", got)
	}
	if got := body.Schedules[1]; got.Expr != "0 * * * *" || got.State.LastStatus != "started" || got.State.LastRunID != "run-7" {
		t.Errorf("eth = %+v", got)
	}
}

func TestRouter_SchedulesList(t *testing.T) {
	s, runner, _ := newTestServer(t, staticOpener(""), ServerConfig{})
	svc := cron.NewService(runner.RunJob)
	if err := svc.SetJobs([]cron.Job{{ID: "btc", Every: "1h", Symbol: "BTC"}}); err != nil {
		t.Fatalf("set jobs: %v", err)
	}
	s.SetSchedules(svc)

	client := &Client{id: "test", server: s, send: make(chan []byte, 1)}
	s.router.Handle(context.Background(), client, &protocol.RequestFrame{
		Type:   protocol.FrameTypeRequest,
		ID:     "1",
		Method: protocol.MethodSchedulesList,
	})

	var res struct {
		ID      string `json:"id"`
		OK      bool   `json:"ok"`
		Payload struct {
			Schedules []cron.JobStatus `json:"schedules"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(<-client.send, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.OK || res.ID != "1" || len(res.Payload.Schedules) != 1 {
		t.Fatalf("response = %+v", res)
	}
	got := res.Payload.Schedules[0]
	if got.ID != "btc" || got.State.NextRun.IsZero() || got.State.LastStatus != "" {
		t.Errorf("status = %+v", got)
	}
}
