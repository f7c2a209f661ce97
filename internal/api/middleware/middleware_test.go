package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/raizfin/finance-amendments/internal/auth"
)

func TestActorMiddleware(t *testing.T) {
	var got auth.Actor
	var present bool
	handler := Actor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, present = ActorFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Actor-Email", "boss@raiz.com")
	req.Header.Set("X-Actor-Name", "Boss")
	req.Header.Set("X-Actor-Role", "admin")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !present {
		t.Fatal("actor not found in context")
	}
	if got.Email != "boss@raiz.com" || got.Name != "Boss" || got.Role != "admin" {
		t.Errorf("actor = %+v", got)
	}
}

func TestActorMiddlewareWithoutIdentity(t *testing.T) {
	var present bool
	handler := Actor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present = ActorFromContext(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if present {
		t.Error("anonymous request must not carry an actor")
	}
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	var fromCtx string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	header := rec.Header().Get("X-Request-ID")
	if header == "" {
		t.Fatal("X-Request-ID header not set")
	}
	if fromCtx != header {
		t.Errorf("context id %q != header id %q", fromCtx, header)
	}
}

func TestRequestIDPreservesIncoming(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "upstream-id")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "upstream-id" {
		t.Errorf("X-Request-ID = %q, want upstream-id", got)
	}
}
