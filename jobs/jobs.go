package jobs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/netfold/ctrlmesh/logging"
)

// State is the lifecycle state of a background job.
type State string

const (
	// StateRunning means the job goroutine has been launched and has not
	// reached a terminal state yet.
	StateRunning State = "running"
	// StateDone means the job completed successfully.
	StateDone State = "done"
	// StateError means the job returned an error or panicked.
	StateError State = "error"
	// StateUnknown is reported for ids the store has never seen.
	StateUnknown State = "unknown"
)

// Status is the externally visible snapshot of a job. Status values returned
// by the store are defensive copies; mutating them has no effect on the job.
type Status struct {
	Status    State       `json:"status"`
	Started   time.Time   `json:"started,omitzero"`
	Completed *time.Time  `json:"completed,omitempty"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// Func is the unit of background work a job runs. The result lands in the
// job's Status on success; the error (or a recovered panic) lands in its
// Error field. It never propagates to the caller of Start.
type Func func(ctx context.Context) (interface{}, error)

type job struct {
	status Status
	done   chan struct{}
}

// Options holds configuration overrides passed to NewStore().
type Options struct {
	// Logger receives job lifecycle diagnostics.
	Logger logging.Logger
}

// Store tracks fire-and-forget background operations by opaque id so that a
// synchronous-looking call can return instantly with a tracking handle for
// work that outlives the request/response turnaround (firmware upgrades,
// bulk provisioning).
//
// The store retains every entry indefinitely: there is no pruning, no
// cancellation and no timeout. Callers needing a wall-clock ceiling must
// track elapsed time themselves. The map is mutex-guarded so a partially
// written entry is never observable.
type Store struct {
	mu     sync.RWMutex
	jobs   map[string]*job
	logger logging.Logger
}

// NewStore constructs an empty job store.
func NewStore(optFns ...func(o *Options)) *Store {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Store{jobs: make(map[string]*job), logger: opts.Logger}
}

// Start registers a Running entry, launches fn on its own goroutine and
// returns the job id immediately. The job transitions to exactly one
// terminal state; a panic inside fn is recovered into StateError.
func (s *Store) Start(fn Func) string {
	id := NewJobID()
	j := &job{
		status: Status{Status: StateRunning, Started: time.Now()},
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.jobs[id] = j
	s.mu.Unlock()

	s.logger.Debug("job started", "job_id", id)

	go s.run(id, j, fn)

	return id
}

func (s *Store) run(id string, j *job, fn Func) {
	defer func() {
		if r := recover(); r != nil {
			s.complete(id, j, nil, fmt.Errorf("job panicked: %v", r))
		}
	}()

	result, err := fn(context.Background())
	s.complete(id, j, result, err)
}

// complete records the terminal state exactly once.
func (s *Store) complete(id string, j *job, result interface{}, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j.status.Status != StateRunning {
		return
	}

	now := time.Now()
	j.status.Completed = &now
	if err != nil {
		j.status.Status = StateError
		j.status.Error = err.Error()
		s.logger.Warn("job failed", "job_id", id, "error", err)
	} else {
		j.status.Status = StateDone
		j.status.Result = result
		s.logger.Debug("job completed", "job_id", id)
	}
	close(j.done)
}

// Status returns a copy of the job's current status. Unknown ids yield
// {Status: StateUnknown}; querying them is a valid, non-error outcome.
func (s *Store) Status(id string) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return Status{Status: StateUnknown}
	}
	return j.status
}

// Done returns a channel closed when the job reaches a terminal state, or
// nil for unknown ids. It exists for observers; the store itself never
// cancels or times out a job.
func (s *Store) Done(id string) <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil
	}
	return j.done
}

// Len returns the number of tracked jobs, terminal ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// NewJobID mints a 16 hex character opaque job id.
func NewJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
