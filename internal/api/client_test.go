package api

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
)

// fakeTokens is a stub token source. Refreshing swaps in nextToken.
type fakeTokens struct {
	token        atomic.Value
	nextToken    string
	refreshCalls atomic.Int32
	forcedLogout atomic.Bool
}

func newFakeTokens(current, next string) *fakeTokens {
	ft := &fakeTokens{nextToken: next}
	ft.token.Store(current)
	return ft
}

func (f *fakeTokens) AccessToken() string {
	return f.token.Load().(string)
}

func (f *fakeTokens) RefreshAccessToken(context.Context) error {
	f.refreshCalls.Add(1)
	f.token.Store(f.nextToken)
	return nil
}

func (f *fakeTokens) ForceLogout(context.Context) {
	f.forcedLogout.Store(true)
}

func requireBearer(expected string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") != "Bearer "+expected {
			respondError(c, http.StatusUnauthorized, "token expired")
			c.Abort()
		}
	}
}

func TestRetryOnceAfterRefresh(t *testing.T) {
	ts := startBackend(t, func(r *gin.Engine) {
		r.GET("/api/tickets", requireBearer("fresh"), func(c *gin.Context) {
			respondSuccess(c, gin.H{"count": 3})
		})
	})

	client := newTestClient(t, ts.URL)
	tokens := newFakeTokens("stale", "fresh")
	client.SetTokenSource(tokens)

	data, err := client.Do(context.Background(), http.MethodGet, "/api/tickets", nil)
	if err != nil {
		t.Fatalf("expected retried request to succeed, got %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected payload")
	}
	if got := tokens.refreshCalls.Load(); got != 1 {
		t.Fatalf("expected exactly one refresh, got %d", got)
	}
	if tokens.forcedLogout.Load() {
		t.Fatalf("unexpected forced logout")
	}
}

func TestSecondUnauthorizedForcesLogout(t *testing.T) {
	ts := startBackend(t, func(r *gin.Engine) {
		r.GET("/api/tickets", requireBearer("never-issued"), func(c *gin.Context) {
			respondSuccess(c, nil)
		})
	})

	client := newTestClient(t, ts.URL)
	// Refresh "succeeds" but the new token is still rejected.
	tokens := newFakeTokens("stale", "still-stale")
	client.SetTokenSource(tokens)

	_, err := client.Do(context.Background(), http.MethodGet, "/api/tickets", nil)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if got := tokens.refreshCalls.Load(); got != 1 {
		t.Fatalf("want exactly one refresh, got %d", got)
	}
	if !tokens.forcedLogout.Load() {
		t.Fatalf("expected forced logout after second 401")
	}
}

func TestRefreshEndpointNeverTriggersRefresh(t *testing.T) {
	ts := startBackend(t, func(r *gin.Engine) {
		r.POST("/api/auth/refresh", func(c *gin.Context) {
			respondError(c, http.StatusUnauthorized, "refresh token revoked")
		})
	})

	client := newTestClient(t, ts.URL)
	tokens := newFakeTokens("stale", "fresh")
	client.SetTokenSource(tokens)

	_, err := client.Do(context.Background(), http.MethodPost, "/api/auth/refresh", gin.H{"refreshToken": "r"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if got := tokens.refreshCalls.Load(); got != 0 {
		t.Fatalf("refresh endpoint must be exempt, got %d refresh calls", got)
	}
}

func TestErrorEnvelopePreservesMessage(t *testing.T) {
	ts := startBackend(t, func(r *gin.Engine) {
		r.GET("/api/tickets", func(c *gin.Context) {
			respondError(c, http.StatusConflict, "ticket already sold")
		})
	})

	client := newTestClient(t, ts.URL)

	_, err := client.Do(context.Background(), http.MethodGet, "/api/tickets", nil)
	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("expected ServerError, got %v", err)
	}
	if serverErr.Message != "ticket already sold" || serverErr.HTTPStatus != http.StatusConflict {
		t.Fatalf("unexpected server error: %+v", serverErr)
	}
}

func TestCanceledContextMapsToCanceled(t *testing.T) {
	ts := startBackend(t, func(r *gin.Engine) {
		r.GET("/api/tickets", func(c *gin.Context) {
			<-c.Request.Context().Done()
		})
	})

	client := newTestClient(t, ts.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Do(ctx, http.MethodGet, "/api/tickets", nil)
	if !IsCanceled(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
