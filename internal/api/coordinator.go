package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// RequestOption customizes a single coordinated request.
type RequestOption func(*requestOptions)

type requestOptions struct {
	key string
}

// WithKey sets an explicit de-duplication key. Callers issuing distinct
// logical operations against the same method and URL must supply one,
// otherwise the derived method+path key makes them collide.
func WithKey(key string) RequestOption {
	return func(o *requestOptions) { o.key = key }
}

// Coordinator is the single choke point for outbound API calls. It
// guarantees at most one in-flight request per de-duplication key
// (last writer wins, the superseded call is canceled), tracks every
// pending key in the loading registry, and sweeps all requests issued
// during a view when the view changes.
type Coordinator struct {
	client  *Client
	loading *LoadingRegistry
	log     *zerolog.Logger

	mu      sync.Mutex
	pending map[string]*pendingRequest
	nextID  atomic.Uint64
}

type pendingRequest struct {
	id     uint64
	cancel context.CancelFunc
}

// NewCoordinator builds a coordinator over the shared client.
func NewCoordinator(client *Client, loading *LoadingRegistry, logger *zerolog.Logger) *Coordinator {
	return &Coordinator{
		client:  client,
		loading: loading,
		log:     logger,
		pending: make(map[string]*pendingRequest),
	}
}

// Get issues a coordinated GET request.
func (c *Coordinator) Get(ctx context.Context, path string, opts ...RequestOption) (json.RawMessage, error) {
	return c.request(ctx, http.MethodGet, path, nil, opts...)
}

// Post issues a coordinated POST request.
func (c *Coordinator) Post(ctx context.Context, path string, body any, opts ...RequestOption) (json.RawMessage, error) {
	return c.request(ctx, http.MethodPost, path, body, opts...)
}

// Put issues a coordinated PUT request.
func (c *Coordinator) Put(ctx context.Context, path string, body any, opts ...RequestOption) (json.RawMessage, error) {
	return c.request(ctx, http.MethodPut, path, body, opts...)
}

// Patch issues a coordinated PATCH request.
func (c *Coordinator) Patch(ctx context.Context, path string, body any, opts ...RequestOption) (json.RawMessage, error) {
	return c.request(ctx, http.MethodPatch, path, body, opts...)
}

// Delete issues a coordinated DELETE request.
func (c *Coordinator) Delete(ctx context.Context, path string, opts ...RequestOption) (json.RawMessage, error) {
	return c.request(ctx, http.MethodDelete, path, nil, opts...)
}

func (c *Coordinator) request(ctx context.Context, method, path string, body any, opts ...RequestOption) (json.RawMessage, error) {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}
	key := o.key
	if key == "" {
		key = method + " " + path
	}

	reqCtx, cancel := context.WithCancel(ctx)
	entry := &pendingRequest{id: c.nextID.Add(1), cancel: cancel}

	c.mu.Lock()
	if prev, ok := c.pending[key]; ok {
		// Last writer wins: the older call is stale and gets a cancellation.
		prev.cancel()
		c.log.Debug().Str("key", key).Msg("superseding in-flight request")
	}
	c.pending[key] = entry
	c.mu.Unlock()

	c.loading.Show(key)

	defer func() {
		cancel()
		c.mu.Lock()
		owner := c.pending[key] == entry
		if owner {
			delete(c.pending, key)
		}
		c.mu.Unlock()
		// A superseded call no longer owns its key; the newer call is
		// still in flight, so only the owner clears the indicator.
		if owner {
			c.loading.Hide(key)
		}
	}()

	data, err := c.client.Do(reqCtx, method, path, body)
	if err != nil {
		if IsCanceled(err) {
			c.log.Debug().Str("key", key).Msg("request canceled")
		}
		return nil, err
	}
	return data, nil
}

// Cancel cancels a specific in-flight request by key. No-op if no such
// request exists.
func (c *Coordinator) Cancel(key string) {
	c.mu.Lock()
	entry, ok := c.pending[key]
	if ok {
		entry.cancel()
		delete(c.pending, key)
	}
	c.mu.Unlock()

	if ok {
		c.loading.Hide(key)
	}
}

// ViewChanged cancels every request still pending from the current view
// and drains their keys from the loading registry. Called on route change
// so stale responses can never mutate state after navigation.
func (c *Coordinator) ViewChanged() {
	c.mu.Lock()
	keys := make([]string, 0, len(c.pending))
	for key, entry := range c.pending {
		entry.cancel()
		keys = append(keys, key)
	}
	c.pending = make(map[string]*pendingRequest)
	c.mu.Unlock()

	for _, key := range keys {
		c.loading.Hide(key)
	}
	if len(keys) > 0 {
		c.log.Debug().Int("canceled", len(keys)).Msg("view change swept pending requests")
	}
}

// PendingCount returns the number of in-flight requests.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
