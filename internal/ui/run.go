package ui

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nextlevelbuilder/hedgewatch/internal/analysis"
)

// RunOptions configures the interactive view.
type RunOptions struct {
	Env    Env
	Header Header
	Names  NameFunc
	Input  io.Reader // default: the terminal
	Output io.Writer // default: the terminal
}

// Run drives session inside a Bubble Tea program and returns the final
// snapshot once the session has ended and the view has exited.
func Run(ctx context.Context, session *analysis.Session, opts RunOptions) (analysis.Snapshot, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	snaps := make(chan analysis.Snapshot, 16)
	go func() {
		defer close(snaps)
		for snap := range session.Stream(ctx) {
			snaps <- snap
		}
	}()

	var progOpts []tea.ProgramOption
	if opts.Input != nil {
		progOpts = append(progOpts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		progOpts = append(progOpts, tea.WithOutput(opts.Output))
	}

	model := NewModel(opts.Env, opts.Header, opts.Names, snaps, cancel)
	if _, err := tea.NewProgram(model, progOpts...).Run(); err != nil {
		cancel()
		for range snaps {
		}
		return session.Snapshot(), fmt.Errorf("run terminal view: %w", err)
	}

	// The view normally exits after the stream has closed; draining
	// covers a program that was stopped early.
	cancel()
	for range snaps {
	}
	return session.Snapshot(), session.Err()
}

// PrintPlain writes one line per change: state transitions, new agents,
// and status or progress updates. It returns the last snapshot.
func PrintPlain(w io.Writer, snaps iter.Seq[analysis.Snapshot], names NameFunc) analysis.Snapshot {
	if names == nil {
		names = identity
	}
	var last analysis.Snapshot
	seen := make(map[string]analysis.AgentStatus)
	state := analysis.State(-1)

	for snap := range snaps {
		last = snap
		if snap.State != state {
			state = snap.State
			fmt.Fprintf(w, "[%s] %s\n", snap.State, snap.RunID)
		}
		for _, a := range snap.Agents {
			prev, ok := seen[a.AgentID]
			if ok && prev == a {
				continue
			}
			seen[a.AgentID] = a
			mark := " "
			if a.IsComplete {
				mark = "✓"
			}
			fmt.Fprintf(w, "%s %-22s %3d%%  %s\n", mark, names(a.AgentID), a.Progress, a.StatusText)
		}
	}

	if last.Result != nil {
		data, _ := json.MarshalIndent(last.Result, "", "  ")
		fmt.Fprintf(w, "result:\n%s\n", data)
	}
	if last.Error != "" {
		fmt.Fprintf(w, "error: %s\n", last.Error)
	}
	return last
}

// PrintJSON writes the snapshot as indented JSON.
func PrintJSON(w io.Writer, snap analysis.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
