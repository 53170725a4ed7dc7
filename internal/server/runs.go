package server

import (
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"meetflow/internal/orchestrator"
)

// RunStatus is the lifecycle state of a submitted workflow.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is the server-side record of one workflow.
type Run struct {
	WorkflowID  string               `json:"workflow_id"`
	Status      RunStatus            `json:"status"`
	AutoExecute bool                 `json:"auto_execute"`
	SubmittedAt time.Time            `json:"submitted_at"`
	Error       string               `json:"error,omitempty"`
	Result      *orchestrator.Result `json:"result,omitempty"`
}

// RunStore keeps the most recent runs. Older runs are evicted first.
type RunStore struct {
	mu    sync.Mutex
	cache *lru.Cache[string, Run]
}

// NewRunStore keeps up to size runs.
func NewRunStore(size int) (*RunStore, error) {
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New[string, Run](size)
	if err != nil {
		return nil, err
	}
	return &RunStore{cache: cache}, nil
}

// Put inserts or replaces a run.
func (s *RunStore) Put(run Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(run.WorkflowID, run)
}

// Start records run unless a run with the same id is still in flight.
func (s *RunStore) Start(run Run) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.cache.Peek(run.WorkflowID); ok && existing.Status == RunRunning {
		return false
	}
	s.cache.Add(run.WorkflowID, run)
	return true
}

// Get returns the run with the given id.
func (s *RunStore) Get(id string) (Run, bool) {
	return s.cache.Get(id)
}

// List returns retained runs, newest submission first.
func (s *RunStore) List() []Run {
	runs := s.cache.Values()
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].SubmittedAt.After(runs[j].SubmittedAt)
	})
	return runs
}

// Finish records the outcome of a run.
func (s *RunStore) Finish(run Run, res orchestrator.Result, err error) Run {
	run.Status = RunCompleted
	if err != nil {
		run.Status = RunFailed
		run.Error = err.Error()
	}
	if res.WorkflowID != "" {
		run.Result = &res
	}
	s.Put(run)
	return run
}
