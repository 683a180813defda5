package providers

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/lepinkainen/shelf/internal/ratelimit"
	"github.com/lepinkainen/shelf/internal/testutil"
)

// testServer serves handler on IPv4 loopback and counts requests.
type testServer struct {
	*httptest.Server
	requests atomic.Int32
}

func newTestServer(t *testing.T, handler http.HandlerFunc) *testServer {
	t.Helper()

	ts := &testServer{}
	ts.Server = testutil.NewIPv4TestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.requests.Add(1)
		handler(w, r)
	}))
	return ts
}

func (ts *testServer) opts(extra ...Option) []Option {
	return append([]Option{
		WithBaseURL(ts.URL),
		WithRateLimiter(ratelimit.New("test", 1000)),
		WithRetryAttempts(1),
	}, extra...)
}

func failOnRequest(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request: %s", r.URL)
		w.WriteHeader(http.StatusInternalServerError)
	}
}
