package cron

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		job     Job
		wantErr string
	}{
		{"cron", Job{ID: "a", Expr: "0 * * * *", Symbol: "BTC"}, ""},
		{"macro", Job{ID: "a", Expr: "@hourly", Symbol: "BTC"}, ""},
		{"every", Job{ID: "a", Every: "15m", Symbol: "BTC"}, ""},
		{"no id", Job{Expr: "0 * * * *", Symbol: "BTC"}, "requires an id"},
		{"no symbol", Job{ID: "a", Expr: "0 * * * *"}, "symbol is required"},
		{"both", Job{ID: "a", Expr: "0 * * * *", Every: "1h", Symbol: "BTC"}, "not both"},
		{"neither", Job{ID: "a", Symbol: "BTC"}, "cron or every is required"},
		{"bad expr", Job{ID: "a", Expr: "every hour", Symbol: "BTC"}, "invalid cron expression"},
		{"bad every", Job{ID: "a", Every: "soon", Symbol: "BTC"}, "invalid interval"},
		{"too frequent", Job{ID: "a", Every: "10s", Symbol: "BTC"}, "shorter than"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.job)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestService(clock *fakeClock, onJob RunFunc) *Service {
	s := NewService(onJob)
	s.now = clock.now
	return s
}

func TestCheckJobs_EveryFiresOncePerInterval(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	var runs []string
	s := newTestService(clock, func(j Job) (string, error) {
		runs = append(runs, j.Symbol)
		return fmt.Sprintf("run-%d", len(runs)), nil
	})
	if err := s.SetJobs([]Job{{ID: "btc", Every: "10m", Symbol: "BTC"}}); err != nil {
		t.Fatal(err)
	}

	s.checkJobs()
	if len(runs) != 0 {
		t.Fatalf("fired before due: %v", runs)
	}

	// Far behind schedule: fires once, not per missed slot.
	clock.t = clock.t.Add(35 * time.Minute)
	s.checkJobs()
	s.checkJobs()
	if len(runs) != 1 {
		t.Fatalf("runs = %v", runs)
	}

	st := s.Status()[0].State
	if st.LastStatus != "started" || st.LastRunID != "run-1" || !st.NextRun.Equal(clock.t.Add(10*time.Minute)) {
		t.Errorf("state = %+v", st)
	}
}

func TestCheckJobs_CronExpression(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 10, 0, 0, time.UTC)}
	fired := 0
	s := newTestService(clock, func(Job) (string, error) { fired++; return "r", nil })
	if err := s.SetJobs([]Job{{ID: "hourly", Expr: "0 * * * *", Symbol: "ETH"}}); err != nil {
		t.Fatal(err)
	}
	if next := s.Status()[0].State.NextRun; !next.Equal(time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC)) {
		t.Fatalf("next run = %v", next)
	}

	clock.t = time.Date(2026, 1, 1, 13, 0, 30, 0, time.UTC)
	s.checkJobs()
	if fired != 1 {
		t.Errorf("fired = %d", fired)
	}
}

func TestCheckJobs_SkippedAndFailed(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := newTestService(clock, func(j Job) (string, error) {
		if j.ID == "busy" {
			return "", fmt.Errorf("gateway busy: %w", ErrSkipped)
		}
		return "", fmt.Errorf("upstream down")
	})
	if err := s.SetJobs([]Job{
		{ID: "busy", Every: "1m", Symbol: "BTC"},
		{ID: "broken", Every: "1m", Symbol: "ETH"},
		{ID: "off", Every: "1m", Symbol: "SOL", Disabled: true},
	}); err != nil {
		t.Fatal(err)
	}

	clock.t = clock.t.Add(time.Minute)
	s.checkJobs()

	status := s.Status()
	if got := status[0].State.LastStatus; got != "skipped" {
		t.Errorf("busy status = %q", got)
	}
	if got := status[1].State; got.LastStatus != "error" || got.LastError != "upstream down" {
		t.Errorf("broken state = %+v", got)
	}
	if got := status[2].State; !got.LastRun.IsZero() || !got.NextRun.IsZero() {
		t.Errorf("disabled job ran: %+v", got)
	}
}

func TestSetJobs_KeepsStateAndRejectsInvalid(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := newTestService(clock, func(Job) (string, error) { return "r1", nil })
	jobs := []Job{{ID: "btc", Every: "5m", Symbol: "BTC"}}
	if err := s.SetJobs(jobs); err != nil {
		t.Fatal(err)
	}
	clock.t = clock.t.Add(5 * time.Minute)
	s.checkJobs()

	// Same schedule, new symbol: state survives the reload.
	jobs[0].Symbol = "ETH"
	if err := s.SetJobs(jobs); err != nil {
		t.Fatal(err)
	}
	if st := s.Status()[0]; st.State.LastRunID != "r1" || st.Symbol != "ETH" {
		t.Errorf("status after reload = %+v", st)
	}

	if err := s.SetJobs([]Job{{ID: "x", Every: "5m", Symbol: "BTC"}, {ID: "x", Every: "5m", Symbol: "ETH"}}); err == nil {
		t.Error("duplicate ids accepted")
	}
	if len(s.Status()) != 1 {
		t.Error("invalid job list replaced the current one")
	}
}

func TestStartStop(t *testing.T) {
	fired := make(chan string, 1)
	s := NewService(func(j Job) (string, error) {
		select {
		case fired <- j.ID:
		default:
		}
		return "r", nil
	})
	s.tick = 5 * time.Millisecond
	start := time.Now()
	s.now = func() time.Time { return start.Add(time.Since(start) * 10000) }
	if err := s.SetJobs([]Job{{ID: "fast", Every: "1m", Symbol: "BTC"}}); err != nil {
		t.Fatal(err)
	}

	s.Start()
	s.Start()
	defer s.Stop()

	select {
	case id := <-fired:
		if id != "fast" {
			t.Errorf("fired %q", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job never fired")
	}
}
