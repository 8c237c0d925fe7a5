package progress

import (
	"sync"
	"time"
)

// Stage identifies a phase of the lead generation pipeline.
type Stage string

const (
	StageIdle         Stage = "idle"
	StageFinding      Stage = "finding"
	StageEmailFinding Stage = "email_finding"
	StageValidating   Stage = "validating"
	StageAnalyzing    Stage = "analyzing"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// HistoryEntry records one progress transition.
type HistoryEntry struct {
	Stage     Stage     `json:"stage"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// State is an immutable snapshot of a run's progress. Observers only ever
// receive copies, never a live reference into the tracker.
type State struct {
	RunID        string         `json:"run_id"`
	CurrentStage Stage          `json:"current_stage"`
	Percent      int            `json:"percent"`
	LastMessage  string         `json:"last_message"`
	History      []HistoryEntry `json:"history"`
	Finished     bool           `json:"finished"`
}

type runState struct {
	state State
}

// Tracker records per-run progress for UI polling. Writes for a given run
// come from the single engine goroutine executing that run; reads may come
// from any number of concurrent observers.
type Tracker struct {
	mu   sync.RWMutex
	runs map[string]*runState
	now  func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		runs: make(map[string]*runState),
		now:  time.Now,
	}
}

// Begin resets the state for runID to Idle at 0%, clearing any prior history.
func (t *Tracker) Begin(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.runs[runID] = &runState{
		state: State{
			RunID:        runID,
			CurrentStage: StageIdle,
			History: []HistoryEntry{
				{Stage: StageIdle, Timestamp: t.now(), Message: "run created"},
			},
		},
	}
}

// Update records a stage transition. Percent never regresses: a lower value
// than previously recorded is clamped to the current one. Updates on a
// finished or unknown run are no-ops.
func (t *Tracker) Update(runID string, stage Stage, message string, percent int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	run, ok := t.runs[runID]
	if !ok || run.state.Finished {
		return
	}

	if percent < run.state.Percent {
		percent = run.state.Percent
	}
	if percent > 100 {
		percent = 100
	}

	next := run.state
	next.CurrentStage = stage
	next.Percent = percent
	next.LastMessage = message
	next.History = append(next.History, HistoryEntry{Stage: stage, Timestamp: t.now(), Message: message})
	// Replace the whole state so a concurrent Snapshot never sees a torn update.
	run.state = next
}

// Finish transitions the run to Done or Failed and freezes it. Later Update
// calls become no-ops so a lagging stage callback cannot corrupt the
// terminal state.
func (t *Tracker) Finish(runID string, success bool, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	run, ok := t.runs[runID]
	if !ok || run.state.Finished {
		return
	}

	stage := StageDone
	if !success {
		stage = StageFailed
	}

	next := run.state
	next.CurrentStage = stage
	if success {
		next.Percent = 100
	}
	next.LastMessage = message
	next.Finished = true
	next.History = append(next.History, HistoryEntry{Stage: stage, Timestamp: t.now(), Message: message})
	run.state = next
}

// Snapshot returns a copy of the current state for runID. The second return
// value is false when the run is unknown.
func (t *Tracker) Snapshot(runID string) (State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	run, ok := t.runs[runID]
	if !ok {
		return State{}, false
	}

	snap := run.state
	snap.History = make([]HistoryEntry, len(run.state.History))
	copy(snap.History, run.state.History)
	return snap, true
}
