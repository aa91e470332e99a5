package queue

import (
	"context"
	"sync"
)

// Registry is a process-wide name -> JobQueue map. Queues are created with
// cfg on first access and reused afterward; every caller sees the same
// instance per name for the life of the process.
type Registry struct {
	mu      sync.Mutex
	queues  map[string]*JobQueue
	factory func(name string) Config
}

// NewRegistry builds a Registry. factory supplies the Config used the first
// time a given queue name is requested; pass nil to use DefaultConfig.
func NewRegistry(factory func(name string) Config) *Registry {
	if factory == nil {
		factory = DefaultConfig
	}
	return &Registry{queues: make(map[string]*JobQueue), factory: factory}
}

// Get returns the named queue, creating it on first access.
func (r *Registry) Get(name string) *JobQueue {
	r.mu.Lock()
	defer r.mu.Unlock()

	if q, ok := r.queues[name]; ok {
		return q
	}
	q := New(r.factory(name))
	r.queues[name] = q
	return q
}

// Names returns the currently registered queue names.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.queues))
	for name := range r.queues {
		out = append(out, name)
	}
	return out
}

// AllStats returns GetStats() for every registered queue, keyed by name.
func (r *Registry) AllStats() map[string]Stats {
	r.mu.Lock()
	queues := make([]*JobQueue, 0, len(r.queues))
	names := make([]string, 0, len(r.queues))
	for name, q := range r.queues {
		names = append(names, name)
		queues = append(queues, q)
	}
	r.mu.Unlock()

	out := make(map[string]Stats, len(queues))
	for i, q := range queues {
		out[names[i]] = q.GetStats()
	}
	return out
}

// Shutdown shuts every registered queue down concurrently.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	queues := make([]*JobQueue, 0, len(r.queues))
	for _, q := range r.queues {
		queues = append(queues, q)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, len(queues))
	for i, q := range queues {
		wg.Add(1)
		go func(i int, q *JobQueue) {
			defer wg.Done()
			errs[i] = q.Shutdown(ctx)
		}(i, q)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
