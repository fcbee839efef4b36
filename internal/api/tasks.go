package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Iron-Ham/lanes/internal/errors"
	"github.com/Iron-Ham/lanes/internal/lane"
	"github.com/Iron-Ham/lanes/internal/pool"
	"github.com/Iron-Ham/lanes/internal/task"
)

const (
	maxBodySize     = 1 << 20 // 1 MB
	maxSleepMS      = 60_000
	maxTrackedTasks = 4096
)

// errSyntheticFailure is returned by tasks submitted with fail=true.
var errSyntheticFailure = errors.New("synthetic failure requested")

// Task status values reported by GET /v1/tasks/{id}.
const (
	statusPending   = "pending"
	statusSucceeded = "succeeded"
	statusFailed    = "failed"
)

// createTaskRequest is the JSON body for POST /v1/tasks.
type createTaskRequest struct {
	Lane      string `json:"lane"`
	SleepMS   int    `json:"sleep_ms"`
	TimeoutMS int    `json:"timeout_ms"`
	Fail      bool   `json:"fail"`
}

// taskRecord is the JSON view of a submitted task.
type taskRecord struct {
	ID          string     `json:"id"`
	Lane        lane.Kind  `json:"lane"`
	Status      string     `json:"status"`
	SleepMS     int        `json:"sleep_ms"`
	BudgetMS    int64      `json:"budget_ms,omitempty"`
	ElapsedMS   int64      `json:"elapsed_ms"`
	ErrorKind   string     `json:"error_kind,omitempty"`
	Error       string     `json:"error,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// apply copies the outcome of env into the record.
func (t *taskRecord) apply(env task.Envelope[int]) {
	now := time.Now().UTC()
	t.CompletedAt = &now
	t.ElapsedMS = env.Elapsed.Milliseconds()
	if env.Success {
		t.Status = statusSucceeded
		return
	}
	t.Status = statusFailed
	t.ErrorKind = env.Kind().String()
	t.Error = env.Err.Error()
}

// taskStore keeps the most recent task records, evicting the oldest first.
type taskStore struct {
	mu      sync.RWMutex
	records map[string]*taskRecord
	order   []string
	limit   int
}

func newTaskStore(limit int) *taskStore {
	return &taskStore{
		records: make(map[string]*taskRecord),
		limit:   limit,
	}
}

func (s *taskStore) put(rec taskRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.ID]; !ok {
		s.order = append(s.order, rec.ID)
	}
	s.records[rec.ID] = &rec

	for len(s.order) > s.limit {
		delete(s.records, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *taskStore) complete(id string, env task.Envelope[int]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[id]; ok {
		rec.apply(env)
	}
}

func (s *taskStore) get(id string) (taskRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return taskRecord{}, false
	}
	return *rec, true
}

func (s *taskStore) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// syntheticWork sleeps for d and then succeeds with the slept milliseconds,
// or fails when fail is set.
func syntheticWork(d time.Duration, fail bool) func() (int, error) {
	return func() (int, error) {
		time.Sleep(d)
		if fail {
			return 0, errSyntheticFailure
		}
		return int(d.Milliseconds()), nil
	}
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Lane == "" {
		s.writeError(w, http.StatusBadRequest, "lane is required")
		return
	}
	kind, err := lane.ParseKind(req.Lane)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SleepMS < 0 || req.SleepMS > maxSleepMS {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("sleep_ms must be between 0 and %d", maxSleepMS))
		return
	}
	if req.TimeoutMS < 0 {
		s.writeError(w, http.StatusBadRequest, "timeout_ms must be non-negative")
		return
	}
	if s.registry.IsShutdown() {
		s.writeError(w, http.StatusServiceUnavailable, errors.ErrRegistryShutdown.Error())
		return
	}

	budget := time.Duration(req.TimeoutMS) * time.Millisecond
	h := pool.SubmitWithTimeout(s.registry, budget, kind,
		syntheticWork(time.Duration(req.SleepMS)*time.Millisecond, req.Fail))

	rec := taskRecord{
		ID:          h.ID(),
		Lane:        kind,
		Status:      statusPending,
		SleepMS:     req.SleepMS,
		BudgetMS:    budget.Milliseconds(),
		SubmittedAt: time.Now().UTC(),
	}
	s.tasks.put(rec)

	// Registered after put so the reaction always finds the record
	h.OnComplete(func(env task.Envelope[int]) {
		s.tasks.complete(env.TaskID, env)
	})

	status := http.StatusAccepted
	if env, ok := h.Peek(); ok && env.Kind() == errors.KindRejected {
		rec.apply(env)
		status = http.StatusServiceUnavailable
		if errors.IsRetryable(env.Err) {
			status = http.StatusTooManyRequests
		}
	}

	s.writeJSON(w, status, rec)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, ok := s.tasks.get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}

	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
