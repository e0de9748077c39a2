package backend

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/denysvitali/odi-invoices/pkg/presenter"
)

const DefaultJobTTL = 30 * time.Minute

type job struct {
	id        string
	presenter *presenter.Presenter
	cancel    context.CancelFunc

	mu         sync.Mutex
	finishedAt time.Time
}

func (j *job) finish(at time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finishedAt = at
}

func (j *job) expired(now time.Time, ttl time.Duration) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return !j.finishedAt.IsZero() && now.Sub(j.finishedAt) > ttl
}

// jobRegistry keeps background jobs until they have been finished for
// longer than ttl.
type jobRegistry struct {
	mu   sync.Mutex
	jobs map[string]*job
	ttl  time.Duration
	now  func() time.Time

	running sync.WaitGroup
}

func newJobRegistry(ttl time.Duration) *jobRegistry {
	return &jobRegistry{
		jobs: map[string]*job{},
		ttl:  ttl,
		now:  time.Now,
	}
}

func (r *jobRegistry) add(p *presenter.Presenter, cancel context.CancelFunc) *job {
	j := &job{id: uuid.NewString(), presenter: p, cancel: cancel}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purgeLocked()
	r.jobs[j.id] = j
	return j
}

func (r *jobRegistry) get(id string) (*job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purgeLocked()
	j, ok := r.jobs[id]
	return j, ok
}

// remove cancels the job if it is still running.
func (r *jobRegistry) remove(id string) bool {
	r.mu.Lock()
	j, ok := r.jobs[id]
	delete(r.jobs, id)
	r.mu.Unlock()
	if ok {
		j.cancel()
	}
	return ok
}

// run executes fn on its own goroutine; wait blocks until every fn started
// this way has returned.
func (r *jobRegistry) run(fn func()) {
	r.running.Add(1)
	go func() {
		defer r.running.Done()
		fn()
	}()
}

func (r *jobRegistry) wait() {
	r.running.Wait()
}

func (r *jobRegistry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, j := range r.jobs {
		j.cancel()
		delete(r.jobs, id)
	}
}

func (r *jobRegistry) purgeLocked() {
	now := r.now()
	for id, j := range r.jobs {
		if j.expired(now, r.ttl) {
			j.cancel()
			delete(r.jobs, id)
		}
	}
}
