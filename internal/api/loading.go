package api

import "sync"

// LoadingRegistry is the process-wide reference-counted loading flag.
// A key is active exactly while its request is pending; the indicator is
// on iff any key is active. Hide is idempotent so double cleanup
// (finally handler plus cancellation handler) can never drive the
// count negative.
type LoadingRegistry struct {
	mu     sync.Mutex
	active map[string]struct{}
	// onChange, if set, fires with the new loading state whenever the
	// indicator flips. Fired outside the lock.
	onChange func(bool)
}

// NewLoadingRegistry creates an empty registry.
func NewLoadingRegistry() *LoadingRegistry {
	return &LoadingRegistry{active: make(map[string]struct{})}
}

// OnChange registers a callback invoked when IsLoading flips.
func (r *LoadingRegistry) OnChange(fn func(loading bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// Show marks key as in flight.
func (r *LoadingRegistry) Show(key string) {
	r.mu.Lock()
	wasEmpty := len(r.active) == 0
	r.active[key] = struct{}{}
	fn := r.onChange
	r.mu.Unlock()

	if wasEmpty && fn != nil {
		fn(true)
	}
}

// Hide removes key from the active set. No-op if the key is not present.
func (r *LoadingRegistry) Hide(key string) {
	r.mu.Lock()
	_, present := r.active[key]
	delete(r.active, key)
	nowEmpty := len(r.active) == 0
	fn := r.onChange
	r.mu.Unlock()

	if present && nowEmpty && fn != nil {
		fn(false)
	}
}

// Clear empties the active set.
func (r *LoadingRegistry) Clear() {
	r.mu.Lock()
	hadKeys := len(r.active) > 0
	r.active = make(map[string]struct{})
	fn := r.onChange
	r.mu.Unlock()

	if hadKeys && fn != nil {
		fn(false)
	}
}

// IsLoading reports whether any request is in flight.
func (r *LoadingRegistry) IsLoading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active) > 0
}

// ActiveCount returns the number of in-flight keys.
func (r *LoadingRegistry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
