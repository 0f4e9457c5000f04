package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func corsRequest(t *testing.T, origins []string, method, origin string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	reached := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(method, "/api/dashboard-data", nil)
	req.Header.Set("Origin", origin)
	if method == http.MethodOptions {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	rec := httptest.NewRecorder()
	CORS(origins)(next).ServeHTTP(rec, req)
	return rec, reached
}

func TestCORSEchoesConfiguredOrigin(t *testing.T) {
	origins := []string{"https://dashboard.callminder.example"}
	rec, reached := corsRequest(t, origins, http.MethodGet, "https://dashboard.callminder.example")

	require.True(t, reached)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://dashboard.callminder.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Methods"))
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestCORSOmitsHeadersForForeignOrigin(t *testing.T) {
	origins := []string{"https://dashboard.callminder.example"}
	rec, _ := corsRequest(t, origins, http.MethodGet, "https://evil.example")

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcardReflectsCaller(t *testing.T) {
	rec, _ := corsRequest(t, []string{"*"}, http.MethodGet, "https://anywhere.example")

	assert.Equal(t, "https://anywhere.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	origins := []string{"https://dashboard.callminder.example"}
	rec, reached := corsRequest(t, origins, http.MethodOptions, "https://dashboard.callminder.example")

	assert.False(t, reached)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
