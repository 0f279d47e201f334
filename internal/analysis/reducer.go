package analysis

import "maps"

// Reducer holds the ordered agent-status list, the result, and the session
// state, and applies stream events to them. It assumes one agent runs at a
// time: a new agent appearing marks every earlier agent complete.
//
// A Reducer is owned by a single goroutine and is not safe for concurrent use.
// Once the state is terminal every mutating method is a no-op.
type Reducer struct {
	state  State
	agents []AgentStatus
	index  map[string]int // agent ID → position in agents
	result Result
	err    error
}

// NewReducer creates a reducer in the Idle state.
func NewReducer() *Reducer {
	return &Reducer{index: make(map[string]int)}
}

// State returns the current state.
func (r *Reducer) State() State { return r.state }

// Err returns the failure recorded by Fail, if any.
func (r *Reducer) Err() error { return r.err }

// Start moves an idle reducer to Streaming.
func (r *Reducer) Start() bool {
	if r.state != StateIdle {
		return false
	}
	r.state = StateStreaming
	return true
}

// Progress applies a progress update for agent. It returns false when
// the update was ignored because the session is already terminal.
func (r *Reducer) Progress(agent, status string, progress int) bool {
	if r.state.Terminal() {
		return false
	}
	progress = clampProgress(progress)

	if i, ok := r.index[agent]; ok {
		r.agents[i].StatusText = status
		r.agents[i].Progress = progress
		r.agents[i].IsComplete = false
		return true
	}

	r.completeAll()
	r.index[agent] = len(r.agents)
	r.agents = append(r.agents, AgentStatus{
		AgentID:    agent,
		StatusText: status,
		Progress:   progress,
	})
	return true
}

// Complete stores the terminal result and completes the session.
func (r *Reducer) Complete(result Result) bool {
	if r.state.Terminal() {
		return false
	}
	r.result = maps.Clone(result)
	r.completeAll()
	r.state = StateCompleted
	return true
}

// End handles end of stream without a result event.
func (r *Reducer) End() bool {
	if r.state.Terminal() {
		return false
	}
	r.completeAll()
	r.state = StateCompleted
	return true
}

// Fail records err and moves to Failed. The agent list and any result
// gathered so far are kept.
func (r *Reducer) Fail(err error) bool {
	if r.state.Terminal() {
		return false
	}
	r.err = err
	r.state = StateFailed
	return true
}

// Agents returns a copy of the ordered status list.
func (r *Reducer) Agents() []AgentStatus {
	out := make([]AgentStatus, len(r.agents))
	copy(out, r.agents)
	return out
}

// Snapshot copies the reducer into an immutable view.
func (r *Reducer) Snapshot() Snapshot {
	s := Snapshot{
		State:     r.state,
		IsLoading: r.state == StateStreaming,
		Agents:    r.Agents(),
		Result:    maps.Clone(r.result),
	}
	if r.err != nil {
		s.Error = Describe(r.err)
	}
	return s
}

func (r *Reducer) completeAll() {
	for i := range r.agents {
		r.agents[i].IsComplete = true
	}
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
