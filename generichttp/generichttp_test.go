package generichttp

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func ExampleSubMuxSanitize() {
	fmt.Println(SubMuxSanitize("dma/"), SubMuxSanitize("/lab/dma"))
	// Output: /dma /lab/dma
}

func TestEndpointsAreSorted(t *testing.T) {
	rt := RouteTable{
		MethodPath{Method: http.MethodPost, Path: "/run"}:   nil,
		MethodPath{Method: http.MethodGet, Path: "/limits"}: nil,
		MethodPath{Method: http.MethodGet, Path: "/status"}: nil,
	}
	expected := []string{"GET /limits", "GET /status", "POST /run"}
	if diff := cmp.Diff(expected, rt.Endpoints()); diff != "" {
		t.Errorf("endpoints mismatch (-want +got):\n%s", diff)
	}
}

func TestGetUint(t *testing.T) {
	w := httptest.NewRecorder()
	GetUint(func() (uint32, error) { return 0x102, nil })(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := strings.TrimSpace(w.Body.String()); got != `{"uint":258}` {
		t.Errorf("expected {\"uint\":258}, got %s", got)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected a json content type, got %q", ct)
	}
}

func TestSetBool(t *testing.T) {
	var got bool
	h := SetBool(func(b bool) error { got = b; return nil })
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"bool": true}`)))
	if w.Code != http.StatusOK || !got {
		t.Errorf("expected 200 and true, got %d and %v", w.Code, got)
	}
	w = httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad body, got %d", w.Code)
	}
}

func TestActionError(t *testing.T) {
	w := httptest.NewRecorder()
	Action(func() error { return errors.New("boom") })(w, httptest.NewRequest(http.MethodPost, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}
