package management

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type seenRequest struct {
	auth, accept, path, query string
}

func newRecordingServer(t *testing.T) (*httptest.Server, func() []seenRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []seenRequest
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/actuator/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, Health{Status: StatusDown, Components: map[string]HealthComponent{
			"storage": {Status: StatusDown},
		}})
	})
	mux.HandleFunc("/actuator/scheduledtasks/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "unknown task")
	})
	mux.HandleFunc("/actuator/custom/thing", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{"a": 1})
	})
	mux.HandleFunc("/actuator/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oops", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, seenRequest{
			auth:   r.Header.Get("Authorization"),
			accept: r.Header.Get("Accept"),
			path:   r.URL.EscapedPath(),
			query:  r.URL.RawQuery,
		})
		mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []seenRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]seenRequest(nil), seen...)
	}
}

func TestClientSendsBearerAndDecodesErrors(t *testing.T) {
	srv, seen := newRecordingServer(t)
	c := NewClient(srv.URL+"/actuator/", "tok")
	ctx := context.Background()

	_, err := c.Executions(ctx, "a b", 7)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %#v", err)
	}
	if se.Code != http.StatusNotFound || se.Endpoint != "scheduledtasks" || se.Message != "unknown task" {
		t.Fatalf("status error = %+v", se)
	}
	if se.Error() != "scheduledtasks: 404 unknown task" {
		t.Fatalf("Error() = %q", se.Error())
	}

	got := seen()
	if len(got) != 1 {
		t.Fatalf("requests = %+v", got)
	}
	if got[0].auth != "Bearer tok" || got[0].accept != "application/json" {
		t.Fatalf("headers = %+v", got[0])
	}
	if got[0].path != "/actuator/scheduledtasks/a%20b/executions" || got[0].query != "limit=7" {
		t.Fatalf("url = %s?%s", got[0].path, got[0].query)
	}
}

func TestClientOmitsAuthWithoutToken(t *testing.T) {
	srv, seen := newRecordingServer(t)
	c := NewClient(srv.URL+"/actuator", " ")
	if _, err := c.Raw(context.Background(), "custom/thing"); err != nil {
		t.Fatal(err)
	}
	if got := seen(); got[0].auth != "" {
		t.Fatalf("auth = %q", got[0].auth)
	}
}

func TestClientHealthDownIsNotAnError(t *testing.T) {
	srv, _ := newRecordingServer(t)
	c := NewClient(srv.URL+"/actuator", "tok")
	h, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health err = %v", err)
	}
	if h.Status != StatusDown || h.Components["storage"].Status != StatusDown {
		t.Fatalf("health = %+v", h)
	}
}

func TestClientRaw(t *testing.T) {
	srv, _ := newRecordingServer(t)
	c := NewClient(srv.URL+"/actuator", "tok")
	ctx := context.Background()

	body, err := c.Raw(ctx, "/custom/thing")
	if err != nil || strings.TrimSpace(string(body)) != `{"a":1}` {
		t.Fatalf("Raw = %q, %v", body, err)
	}

	_, err = c.Raw(ctx, "broken")
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusInternalServerError || se.Endpoint != "broken" {
		t.Fatalf("Raw err = %#v", err)
	}
	if se.Error() != "broken: 500 Internal Server Error" {
		t.Fatalf("Error() = %q", se.Error())
	}
}

func TestEndpointName(t *testing.T) {
	cases := map[string]string{
		"/":                                 "index",
		"":                                  "index",
		"/health":                           "health",
		"/scheduledtasks/{name}/executions": "scheduledtasks",
		"/metrics?tag=x":                    "metrics",
	}
	for in, want := range cases {
		if got := endpointName(in); got != want {
			t.Errorf("endpointName(%q) = %q, want %q", in, got, want)
		}
	}
}
