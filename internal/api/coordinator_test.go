package api

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dugoutlabs/dugout-client/internal/log"
)

// startSlowBackend serves /api/slow, holding each request until release is
// closed or the caller goes away.
func startSlowBackend(t *testing.T) (*Coordinator, *LoadingRegistry, chan struct{}) {
	t.Helper()

	release := make(chan struct{})
	ts := startBackend(t, func(r *gin.Engine) {
		r.GET("/api/slow", func(c *gin.Context) {
			select {
			case <-release:
				respondSuccess(c, gin.H{"ok": true})
			case <-c.Request.Context().Done():
			}
		})
	})

	loading := NewLoadingRegistry()
	coord := NewCoordinator(newTestClient(t, ts.URL), loading, log.Nop())
	return coord, loading, release
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestDedupSupersedesOlderRequest(t *testing.T) {
	coord, loading, release := startSlowBackend(t)

	firstErr := make(chan error, 1)
	go func() {
		_, err := coord.Get(context.Background(), "/api/slow", WithKey("k"))
		firstErr <- err
	}()

	waitFor(t, func() bool { return coord.PendingCount() == 1 }, "first request in flight")

	secondDone := make(chan error, 1)
	go func() {
		_, err := coord.Get(context.Background(), "/api/slow", WithKey("k"))
		secondDone <- err
	}()

	// The first call settles as canceled without the backend responding.
	err := <-firstErr
	if !IsCanceled(err) {
		t.Fatalf("expected first request canceled, got %v", err)
	}
	if !loading.IsLoading() {
		t.Fatalf("indicator must stay on while the superseding call is in flight")
	}

	close(release)
	if err := <-secondDone; err != nil {
		t.Fatalf("expected second request to resolve, got %v", err)
	}

	if loading.IsLoading() {
		t.Fatalf("indicator must be off after the surviving call settles")
	}
	if coord.PendingCount() != 0 {
		t.Fatalf("expected no pending requests, got %d", coord.PendingCount())
	}
}

func TestViewChangeCancelsAllPending(t *testing.T) {
	coord, loading, _ := startSlowBackend(t)

	const n = 4
	var wg sync.WaitGroup
	errs := make(chan error, n)
	keys := []string{"a", "b", "c", "d"}
	for _, key := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_, err := coord.Get(context.Background(), "/api/slow", WithKey(key))
			errs <- err
		}(key)
	}

	waitFor(t, func() bool { return coord.PendingCount() == n }, "all requests in flight")

	coord.ViewChanged()
	wg.Wait()

	close(errs)
	for err := range errs {
		if !IsCanceled(err) {
			t.Fatalf("expected cancellation, got %v", err)
		}
	}

	if loading.IsLoading() || loading.ActiveCount() != 0 {
		t.Fatalf("expected loading state drained, got %d active", loading.ActiveCount())
	}
	if coord.PendingCount() != 0 {
		t.Fatalf("expected no pending requests after view change")
	}
}

func TestExplicitCancel(t *testing.T) {
	coord, loading, _ := startSlowBackend(t)

	done := make(chan error, 1)
	go func() {
		_, err := coord.Get(context.Background(), "/api/slow", WithKey("k"))
		done <- err
	}()

	waitFor(t, func() bool { return coord.PendingCount() == 1 }, "request in flight")

	coord.Cancel("k")
	if err := <-done; !IsCanceled(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if loading.IsLoading() {
		t.Fatalf("expected loading cleared after cancel")
	}

	// Canceling an unknown key is a no-op.
	coord.Cancel("k")
	coord.Cancel("ghost")
}

func TestDerivedKeyCollidesByMethodAndPath(t *testing.T) {
	coord, _, release := startSlowBackend(t)

	firstErr := make(chan error, 1)
	go func() {
		_, err := coord.Get(context.Background(), "/api/slow")
		firstErr <- err
	}()

	waitFor(t, func() bool { return coord.PendingCount() == 1 }, "first request in flight")

	secondDone := make(chan error, 1)
	go func() {
		// Same method+path, no explicit key: collides with the first.
		_, err := coord.Get(context.Background(), "/api/slow")
		secondDone <- err
	}()

	if err := <-firstErr; !IsCanceled(err) {
		t.Fatalf("expected derived-key collision to cancel the first call, got %v", err)
	}

	close(release)
	if err := <-secondDone; err != nil {
		t.Fatalf("expected second request to resolve, got %v", err)
	}
}

func TestDistinctKeysRunConcurrently(t *testing.T) {
	coord, _, release := startSlowBackend(t)

	errsCh := make(chan error, 2)
	go func() {
		_, err := coord.Get(context.Background(), "/api/slow", WithKey("left"))
		errsCh <- err
	}()
	go func() {
		_, err := coord.Get(context.Background(), "/api/slow", WithKey("right"))
		errsCh <- err
	}()

	waitFor(t, func() bool { return coord.PendingCount() == 2 }, "both requests in flight")

	close(release)
	for i := 0; i < 2; i++ {
		if err := <-errsCh; err != nil {
			t.Fatalf("expected both requests to resolve, got %v", err)
		}
	}
}
