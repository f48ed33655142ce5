package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func named(name string) HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(name))
	}
}

func serve(r *Router, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestRouterMatching(t *testing.T) {
	r := New()
	r.GET("/api/v1/generations", named("list"))
	r.GET("/api/v1/generations/*", named("get"))
	r.GET("/api/v1/generations/*/errors", named("errors"))
	r.GET("/swagger/*", named("swagger"))
	r.POST("/api/v1/plans", named("create"))

	tests := []struct {
		method string
		path   string
		status int
		body   string
	}{
		{http.MethodGet, "/api/v1/generations", http.StatusOK, "list"},
		{http.MethodGet, "/api/v1/generations/abc", http.StatusOK, "get"},
		{http.MethodGet, "/api/v1/generations/abc/errors", http.StatusOK, "errors"},
		{http.MethodGet, "/swagger/index.html", http.StatusOK, "swagger"},
		{http.MethodGet, "/swagger/a/b.js", http.StatusOK, "swagger"},
		{http.MethodPost, "/api/v1/plans", http.StatusOK, "create"},
		{http.MethodGet, "/api/v1/plans", http.StatusMethodNotAllowed, ""},
		{http.MethodDelete, "/api/v1/generations/abc", http.StatusMethodNotAllowed, ""},
		{http.MethodGet, "/api/v2/plans", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := serve(r, tt.method, tt.path)
			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestRouterRateLimit(t *testing.T) {
	r := New(WithRateLimit(0.001, 1))
	r.GET("/ping", named("pong"))

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/ping").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodGet, "/ping").Code)
}

func TestRouterObserver(t *testing.T) {
	var statuses []int
	r := New(WithObserver(func(_ string, status int, _ time.Duration) {
		statuses = append(statuses, status)
	}))
	r.GET("/ping", named("pong"))

	serve(r, http.MethodGet, "/ping")
	serve(r, http.MethodGet, "/missing")
	assert.Equal(t, []int{http.StatusOK, http.StatusNotFound}, statuses)
}

func TestMatchWildcardRoute(t *testing.T) {
	assert.True(t, matchWildcardRoute("/a/x/c", "/a/*/c"))
	assert.False(t, matchWildcardRoute("/a//c", "/a/*/c"))
	assert.False(t, matchWildcardRoute("/a/x", "/a/*/c"))
	assert.True(t, matchWildcardRoute("/a/x/y/z", "/a/*"))
	assert.False(t, matchWildcardRoute("/a", "/a/*"))
	assert.Greater(t, specificity("/a/*/c"), specificity("/a/*"))
}
