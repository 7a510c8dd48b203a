// Package orchestrator arbitrates the three ways segmentation is triggered
// (stream frames, synchronous requests and goals) against one engine and
// one shared "latest cloud" buffer.
package orchestrator

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/cloudseg/internal/cloud"
	"github.com/banshee-data/cloudseg/internal/config"
	"github.com/banshee-data/cloudseg/internal/monitoring"
	"github.com/banshee-data/cloudseg/internal/segmentation"
)

var (
	// ErrGoalInProgress is returned when a goal is accepted while another
	// one is still running.
	ErrGoalInProgress = errors.New("goal already in progress")

	// ErrGoalNotFound is returned for an unknown or expired goal ID.
	ErrGoalNotFound = errors.New("goal not found")

	// ErrClosed is returned by entry points after Close.
	ErrClosed = errors.New("orchestrator closed")
)

var logf = monitoring.Component("Orchestrator")

// Publisher broadcasts segmentation results. Publish must not block on
// slow observers and must treat c as read-only; there is no
// acknowledgement.
type Publisher interface {
	Publish(c cloud.Cloud)
}

// GoalRecorder persists finished goals. Errors are logged and otherwise
// ignored.
type GoalRecorder interface {
	RecordGoal(st GoalStatus) error
}

// Config controls orchestrator policy.
type Config struct {
	// SuspendStreamOnGoal disables stream publication whenever a goal is
	// accepted. Only SetEnabled(true) turns it back on.
	SuspendStreamOnGoal bool

	// GoalHistory is how many goals are kept in memory for Goal lookups.
	GoalHistory int
}

// DefaultConfig returns the default policy.
func DefaultConfig() Config {
	return Config{
		SuspendStreamOnGoal: true,
		GoalHistory:         64,
	}
}

// Stats is a snapshot of orchestrator counters.
type Stats struct {
	Enabled        bool   `json:"enabled"`
	GoalInProgress bool   `json:"goal_in_progress"`
	StreamFrames   uint64 `json:"stream_frames"`
	StreamDropped  uint64 `json:"stream_dropped"`
	SyncRequests   uint64 `json:"sync_requests"`
	EngineRuns     uint64 `json:"engine_runs"`
	EngineFailures uint64 `json:"engine_failures"`
	Publishes      uint64 `json:"publishes"`
	GoalsAccepted  uint64 `json:"goals_accepted"`
	GoalsSucceeded uint64 `json:"goals_succeeded"`
	GoalsAborted   uint64 `json:"goals_aborted"`
	GoalsRejected  uint64 `json:"goals_rejected"`
}

// Orchestrator owns the engine, the shared buffer and the enable flag.
// Build one with New, call Start to drain queued stream frames, and Close
// at shutdown.
type Orchestrator struct {
	cfg       Config
	publisher Publisher
	recorder  GoalRecorder

	engineMu sync.Mutex
	engine   segmentation.Engine

	buffer  SharedCloudBuffer
	enabled atomic.Bool

	// Goal supervision
	goalMu     sync.Mutex
	activeGoal *GoalSession
	history    *goalHistory
	goalWG     sync.WaitGroup

	// Stream mailbox holds at most one pending frame; a newer frame
	// replaces an unprocessed one.
	streamCh chan cloud.Cloud

	// Stats
	streamFrames   atomic.Uint64
	streamDropped  atomic.Uint64
	syncRequests   atomic.Uint64
	engineRuns     atomic.Uint64
	engineFailures atomic.Uint64
	publishes      atomic.Uint64
	goalsAccepted  atomic.Uint64
	goalsSucceeded atomic.Uint64
	goalsAborted   atomic.Uint64
	goalsRejected  atomic.Uint64

	// Lifecycle
	closed    bool // guarded by goalMu
	started   atomic.Bool
	stopCh    chan struct{}
	stopOnce  sync.Once
	streamWG  sync.WaitGroup
	nowFunc   func() time.Time
	newGoalID func() string
}

// New creates an orchestrator around engine. A nil publisher discards
// results. The enable flag starts true.
func New(engine segmentation.Engine, publisher Publisher, cfg Config) *Orchestrator {
	if publisher == nil {
		publisher = discardPublisher{}
	}
	o := &Orchestrator{
		cfg:       cfg,
		publisher: publisher,
		engine:    engine,
		history:   newGoalHistory(cfg.GoalHistory),
		streamCh:  make(chan cloud.Cloud, 1),
		stopCh:    make(chan struct{}),
		nowFunc:   time.Now,
		newGoalID: uuid.NewString,
	}
	o.enabled.Store(true)
	return o
}

// SetGoalRecorder installs a store for finished goals. Call before Start.
func (o *Orchestrator) SetGoalRecorder(r GoalRecorder) {
	o.recorder = r
}

// Start launches the goroutine that drains SubmitStreamFrame.
func (o *Orchestrator) Start() {
	if !o.started.CompareAndSwap(false, true) {
		return
	}
	o.streamWG.Add(1)
	go o.streamLoop()
}

// Close stops the stream drain goroutine and waits for a running goal.
// Entry points called afterwards return ErrClosed or do nothing.
func (o *Orchestrator) Close() {
	o.stopOnce.Do(func() {
		o.goalMu.Lock()
		o.closed = true
		o.goalMu.Unlock()
		close(o.stopCh)
	})
	o.streamWG.Wait()
	o.goalWG.Wait()
}

func (o *Orchestrator) streamLoop() {
	defer o.streamWG.Done()
	for {
		select {
		case <-o.stopCh:
			return
		case c := <-o.streamCh:
			o.OnStreamFrame(c)
		}
	}
}

// SubmitStreamFrame queues c for OnStreamFrame without blocking. If a frame
// is already waiting it is replaced. Returns false after Close.
func (o *Orchestrator) SubmitStreamFrame(c cloud.Cloud) bool {
	select {
	case <-o.stopCh:
		return false
	default:
	}
	for {
		select {
		case o.streamCh <- c:
			return true
		default:
		}
		select {
		case <-o.streamCh:
			o.streamDropped.Add(1)
		default:
		}
	}
}

// OnStreamFrame handles one frame from the continuous source: the frame
// (NaN points removed) replaces the shared buffer, and if the enable flag is
// set the buffer is segmented and a non-empty result is published.
func (o *Orchestrator) OnStreamFrame(c cloud.Cloud) {
	o.streamFrames.Add(1)

	in := c.Clone()
	in.RemoveNaN()
	o.buffer.Write(in)

	if !o.enabled.Load() {
		return
	}

	snap := o.buffer.ReadSnapshotForProcessing()
	if snap.Empty() {
		return
	}

	result, err := o.segment(snap)
	if err != nil {
		logf("stream frame seq=%d: %v", snap.Header.Seq, err)
		return
	}
	if result.Empty() {
		return
	}
	o.publish(result)
}

// OnSyncRequest segments input and returns the labeled points. The
// response header is the request header. The same result is published when
// the input had any valid points. The only error is an engine failure.
func (o *Orchestrator) OnSyncRequest(input cloud.Cloud) (cloud.Cloud, error) {
	o.syncRequests.Add(1)

	in := input.Clone()
	in.RemoveNaN()
	logf("Received cloud of %d points", in.Len())
	o.buffer.Write(in)

	snap := o.buffer.ReadSnapshotForProcessing()
	out, err := o.segment(snap)
	if err != nil {
		return cloud.Cloud{}, err
	}

	result := cloud.Cloud{Header: input.Header, Points: out.Points}
	if !in.Empty() {
		o.publish(result)
	}
	return result, nil
}

// SetEnabled sets the flag that gates stream publication.
func (o *Orchestrator) SetEnabled(enabled bool) {
	o.enabled.Store(enabled)
	if enabled {
		logf("Publisher enabled")
	} else {
		logf("Publisher disabled")
	}
}

// Enabled reports the stream publication flag.
func (o *Orchestrator) Enabled() bool {
	return o.enabled.Load()
}

// OnGoalAccepted starts a goal session and returns without waiting for it.
// Only one goal runs at a time; a second one is rejected with
// ErrGoalInProgress. When SuspendStreamOnGoal is set, accepting a goal
// clears the enable flag.
func (o *Orchestrator) OnGoalAccepted() (*GoalSession, error) {
	o.goalMu.Lock()
	if o.closed {
		o.goalMu.Unlock()
		return nil, ErrClosed
	}
	if o.activeGoal != nil {
		running := o.activeGoal.id
		o.goalMu.Unlock()
		o.goalsRejected.Add(1)
		return nil, fmt.Errorf("%w: %s", ErrGoalInProgress, running)
	}
	g := newGoalSession(o.newGoalID(), o.nowFunc())
	o.activeGoal = g
	o.history.add(g)
	o.goalWG.Add(1)
	o.goalMu.Unlock()

	o.goalsAccepted.Add(1)
	if o.cfg.SuspendStreamOnGoal {
		o.enabled.Store(false)
	}
	logf("Goal %s accepted", g.id)

	go o.runGoal(g)
	return g, nil
}

func (o *Orchestrator) runGoal(g *GoalSession) {
	defer o.goalWG.Done()
	g.start()

	snap := o.buffer.ReadSnapshotForProcessing()
	snap.RemoveNaN()
	g.setInput(snap.Header, snap.Len())

	var (
		state  GoalState
		diag   string
		result *cloud.Cloud
	)
	if snap.Empty() {
		logf("Goal %s: No points in cloud. Aborting", g.id)
		state, diag = GoalAborted, DiagEmptyCloud
	} else if out, err := o.segment(snap); err != nil {
		logf("Goal %s: %v", g.id, err)
		state, diag = GoalAborted, err.Error()
	} else {
		state, result = GoalSucceeded, &out
	}

	g.finish(state, diag, result, o.nowFunc())
	if state == GoalSucceeded {
		o.goalsSucceeded.Add(1)
		logf("Goal %s succeeded with %d points", g.id, result.Len())
	} else {
		o.goalsAborted.Add(1)
	}

	if o.recorder != nil {
		st := g.Status()
		st.Result = nil
		if err := o.recorder.RecordGoal(st); err != nil {
			logf("Goal %s: failed to record: %v", g.id, err)
		}
	}

	o.goalMu.Lock()
	if o.activeGoal == g {
		o.activeGoal = nil
	}
	o.goalMu.Unlock()
	g.close()
}

// Goal returns the status of a recently accepted goal.
func (o *Orchestrator) Goal(id string) (GoalStatus, error) {
	o.goalMu.Lock()
	g, ok := o.history.get(id)
	o.goalMu.Unlock()
	if !ok {
		return GoalStatus{}, fmt.Errorf("%w: %s", ErrGoalNotFound, id)
	}
	return g.Status(), nil
}

// ListGoals returns up to limit goals from memory, most recent first,
// without their result clouds.
func (o *Orchestrator) ListGoals(limit int) ([]GoalStatus, error) {
	o.goalMu.Lock()
	sessions := o.history.newest(limit)
	o.goalMu.Unlock()

	out := make([]GoalStatus, 0, len(sessions))
	for _, g := range sessions {
		st := g.Status()
		st.Result = nil
		out = append(out, st)
	}
	return out, nil
}

// EngineConfig returns the engine configuration.
func (o *Orchestrator) EngineConfig() config.Segmentation {
	o.engineMu.Lock()
	defer o.engineMu.Unlock()
	return o.engine.GetConfig()
}

// Stats returns current counters.
func (o *Orchestrator) Stats() Stats {
	o.goalMu.Lock()
	inProgress := o.activeGoal != nil
	o.goalMu.Unlock()
	return Stats{
		Enabled:        o.enabled.Load(),
		GoalInProgress: inProgress,
		StreamFrames:   o.streamFrames.Load(),
		StreamDropped:  o.streamDropped.Load(),
		SyncRequests:   o.syncRequests.Load(),
		EngineRuns:     o.engineRuns.Load(),
		EngineFailures: o.engineFailures.Load(),
		Publishes:      o.publishes.Load(),
		GoalsAccepted:  o.goalsAccepted.Load(),
		GoalsSucceeded: o.goalsSucceeded.Load(),
		GoalsAborted:   o.goalsAborted.Load(),
		GoalsRejected:  o.goalsRejected.Load(),
	}
}

// segment runs the engine under the engine lock and applies the label-0
// filter.
func (o *Orchestrator) segment(in cloud.Cloud) (cloud.Cloud, error) {
	out, err := o.runEngine(in)
	o.engineRuns.Add(1)
	if err != nil {
		o.engineFailures.Add(1)
		return cloud.Cloud{}, fmt.Errorf("segmentation failed: %w", err)
	}
	return cloud.FilterLabeled(out), nil
}

func (o *Orchestrator) runEngine(in cloud.Cloud) (cloud.Cloud, error) {
	o.engineMu.Lock()
	defer o.engineMu.Unlock()
	return o.engine.Segment(in)
}

func (o *Orchestrator) publish(c cloud.Cloud) {
	o.publisher.Publish(c)
	o.publishes.Add(1)
}

type discardPublisher struct{}

func (discardPublisher) Publish(cloud.Cloud) {}
