package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/cloudseg/internal/cloud"
)

// GoalState is the lifecycle position of a GoalSession.
type GoalState int

const (
	GoalCreated GoalState = iota
	GoalRunning
	GoalSucceeded
	GoalAborted
)

// DiagEmptyCloud is the abort diagnostic for a goal that found no points.
const DiagEmptyCloud = "empty cloud"

func (s GoalState) String() string {
	switch s {
	case GoalCreated:
		return "created"
	case GoalRunning:
		return "running"
	case GoalSucceeded:
		return "succeeded"
	case GoalAborted:
		return "aborted"
	default:
		return fmt.Sprintf("GoalState(%d)", int(s))
	}
}

// Terminal reports whether s is a final state.
func (s GoalState) Terminal() bool {
	return s == GoalSucceeded || s == GoalAborted
}

// MarshalText encodes the state as its lower-case name.
func (s GoalState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText.
func (s *GoalState) UnmarshalText(text []byte) error {
	st, err := ParseGoalState(string(text))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// ParseGoalState is the inverse of GoalState.String.
func ParseGoalState(name string) (GoalState, error) {
	for _, s := range []GoalState{GoalCreated, GoalRunning, GoalSucceeded, GoalAborted} {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown goal state %q", name)
}

// GoalStatus is a point-in-time view of a goal. Result is set only for a
// succeeded goal and is a copy the caller owns.
type GoalStatus struct {
	ID           string       `json:"id"`
	State        GoalState    `json:"state"`
	Diagnostic   string       `json:"diagnostic,omitempty"`
	InputPoints  int          `json:"input_points"`
	InputSeq     uint32       `json:"input_seq"`
	InputFrameID string       `json:"input_frame_id,omitempty"`
	ResultPoints int          `json:"result_points"`
	AcceptedAt   time.Time    `json:"accepted_at"`
	FinishedAt   time.Time    `json:"finished_at"`
	Result       *cloud.Cloud `json:"result,omitempty"`
}

// GoalSession is one accepted goal. It moves Created -> Running ->
// {Succeeded, Aborted} exactly once and is never reused.
type GoalSession struct {
	id         string
	acceptedAt time.Time
	done       chan struct{}

	mu          sync.Mutex
	state       GoalState
	diagnostic  string
	inputPoints int
	input       cloud.Header
	result      *cloud.Cloud
	finishedAt  time.Time
}

func newGoalSession(id string, acceptedAt time.Time) *GoalSession {
	return &GoalSession{
		id:         id,
		acceptedAt: acceptedAt,
		done:       make(chan struct{}),
	}
}

// ID returns the goal identifier.
func (g *GoalSession) ID() string {
	return g.id
}

// Done is closed once the goal reaches a terminal state.
func (g *GoalSession) Done() <-chan struct{} {
	return g.done
}

// Wait blocks until the goal finishes or ctx ends.
func (g *GoalSession) Wait(ctx context.Context) (GoalStatus, error) {
	select {
	case <-g.done:
		return g.Status(), nil
	case <-ctx.Done():
		return g.Status(), ctx.Err()
	}
}

// Status returns a copy of the goal's current state.
func (g *GoalSession) Status() GoalStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := GoalStatus{
		ID:           g.id,
		State:        g.state,
		Diagnostic:   g.diagnostic,
		InputPoints:  g.inputPoints,
		InputSeq:     g.input.Seq,
		InputFrameID: g.input.FrameID,
		AcceptedAt:   g.acceptedAt,
		FinishedAt:   g.finishedAt,
	}
	if g.result != nil {
		res := g.result.Clone()
		st.Result = &res
		st.ResultPoints = res.Len()
	}
	return st
}

func (g *GoalSession) start() {
	g.mu.Lock()
	if g.state == GoalCreated {
		g.state = GoalRunning
	}
	g.mu.Unlock()
}

func (g *GoalSession) setInput(h cloud.Header, n int) {
	g.mu.Lock()
	g.input = h
	g.inputPoints = n
	g.mu.Unlock()
}

// finish moves the session to a terminal state. Only the first call has an
// effect. The done channel is closed separately by close.
func (g *GoalSession) finish(state GoalState, diagnostic string, result *cloud.Cloud, at time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state.Terminal() {
		return false
	}
	g.state = state
	g.diagnostic = diagnostic
	g.result = result
	g.finishedAt = at
	return true
}

func (g *GoalSession) close() {
	close(g.done)
}

// goalHistory keeps the most recent sessions for lookup by ID.
type goalHistory struct {
	limit int
	order []string
	byID  map[string]*GoalSession
}

func newGoalHistory(limit int) *goalHistory {
	if limit <= 0 {
		limit = 1
	}
	return &goalHistory{limit: limit, byID: make(map[string]*GoalSession)}
}

func (h *goalHistory) add(g *GoalSession) {
	h.order = append(h.order, g.id)
	h.byID[g.id] = g
	for len(h.order) > h.limit {
		delete(h.byID, h.order[0])
		h.order = h.order[1:]
	}
}

func (h *goalHistory) get(id string) (*GoalSession, bool) {
	g, ok := h.byID[id]
	return g, ok
}

// newest returns up to n sessions, most recent first.
func (h *goalHistory) newest(n int) []*GoalSession {
	if n <= 0 || n > len(h.order) {
		n = len(h.order)
	}
	out := make([]*GoalSession, 0, n)
	for i := len(h.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, h.byID[h.order[i]])
	}
	return out
}
