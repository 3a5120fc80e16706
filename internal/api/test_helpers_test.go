package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/dugoutlabs/dugout-client/internal/log"
)

// startBackend spins up a fake marketplace backend with the given routes.
func startBackend(t *testing.T, setup func(r *gin.Engine)) *httptest.Server {
	t.Helper()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	setup(r)

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

// respondSuccess writes a success envelope with the given payload.
func respondSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": data})
}

// respondError writes an error envelope.
func respondError(c *gin.Context, httpStatus int, message string) {
	c.JSON(httpStatus, gin.H{"status": "error", "message": message})
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return NewClient(baseURL, "/api/auth/refresh", 0, log.Nop())
}
