package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Checker reports whether a dependency is reachable
type Checker interface {
	Name() string
	HealthCheck(ctx context.Context) error
}

// CheckFunc adapts a function to Checker
type CheckFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// Func wraps fn as a named Checker
func Func(name string, fn func(ctx context.Context) error) *CheckFunc {
	return &CheckFunc{name: name, fn: fn}
}

// Name returns the checker name
func (c *CheckFunc) Name() string { return c.name }

// HealthCheck calls the wrapped function
func (c *CheckFunc) HealthCheck(ctx context.Context) error { return c.fn(ctx) }

// Registry manages dependency checkers
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	timeout  time.Duration
}

// NewRegistry creates a registry whose checks are bounded by timeout
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Registry{
		checkers: make(map[string]Checker),
		timeout:  timeout,
	}
}

// Register adds a checker, replacing one with the same name
func (r *Registry) Register(c Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[c.Name()] = c
}

// Unregister removes a checker
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.checkers, name)
}

// List returns the registered checker names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.checkers))
	for name := range r.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckAll runs every checker concurrently and returns the result per name
func (r *Registry) CheckAll(ctx context.Context) map[string]error {
	r.mu.RLock()
	checkers := make([]Checker, 0, len(r.checkers))
	for _, c := range r.checkers {
		checkers = append(checkers, c)
	}
	r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]error, len(checkers))
	)
	for _, c := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			err := c.HealthCheck(ctx)
			mu.Lock()
			results[c.Name()] = err
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	return results
}

// Failing returns the sorted names of checks that reported an error
func Failing(results map[string]error) []string {
	var failing []string
	for name, err := range results {
		if err != nil {
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)
	return failing
}
