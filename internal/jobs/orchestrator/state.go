package orchestrator

import (
	"encoding/json"
	"fmt"
	"time"
)

type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageAwaiting  StageStatus = "awaiting_selection"
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

type StageState struct {
	Name       string      `json:"name"`
	Status     StageStatus `json:"status"`
	Attempts   int         `json:"attempts"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	LastError  string      `json:"last_error,omitempty"`
}

// State is the checkpoint persisted on every transition: per-stage bookkeeping
// plus the pipeline's own data. A resumed run skips every stage already settled.
type State[D any] struct {
	Version      int                    `json:"version"`
	Stages       map[string]*StageState `json:"stages"`
	LastProgress int                    `json:"last_progress"`
	Data         D                      `json:"data"`
}

func (s *State[D]) ensure(version int) {
	if s.Version <= 0 {
		s.Version = version
	}
	if s.Stages == nil {
		s.Stages = map[string]*StageState{}
	}
}

func (s *State[D]) EnsureStage(name string) *StageState {
	s.ensure(1)
	ss := s.Stages[name]
	if ss == nil {
		ss = &StageState{Name: name, Status: StagePending}
		s.Stages[name] = ss
	}
	return ss
}

// Settled reports whether the stage needs no further work on resume.
func (ss *StageState) Settled() bool {
	return ss != nil && (ss.Status == StageSucceeded || ss.Status == StageSkipped)
}

// LoadState decodes a stored checkpoint. Empty input yields a fresh state.
func LoadState[D any](raw []byte, version int) (*State[D], error) {
	st := &State[D]{}
	if len(raw) > 0 && string(raw) != "null" && string(raw) != "{}" {
		if err := json.Unmarshal(raw, st); err != nil {
			return nil, fmt.Errorf("decode checkpoint: %w", err)
		}
		if st.Version > version {
			return nil, fmt.Errorf("checkpoint version %d is newer than supported %d", st.Version, version)
		}
	}
	st.ensure(version)
	return st, nil
}

func markStarted(ss *StageState) {
	now := time.Now().UTC()
	ss.Status = StageRunning
	ss.Attempts++
	ss.StartedAt = &now
	ss.FinishedAt = nil
	ss.LastError = ""
}

func markFinished(ss *StageState, status StageStatus, lastErr string) {
	now := time.Now().UTC()
	ss.Status = status
	ss.FinishedAt = &now
	ss.LastError = lastErr
}
