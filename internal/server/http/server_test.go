package httpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dreadatour/deque/internal/engine"
	tubesvc "github.com/dreadatour/deque/internal/services/tubes"
	"github.com/dreadatour/deque/internal/tube"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	clk := tube.NewManualClock(time.Unix(1_700_000_000, 0))
	eng, err := engine.Open(engine.Options{Clock: clk})
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })
	svc := tubesvc.New(eng, clk, nil)
	ts := httptest.NewServer(New(eng, svc).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	return resp
}

func decodeRow(t *testing.T, resp *http.Response) tubesvc.Row {
	t.Helper()
	defer resp.Body.Close()
	var row tubesvc.Row
	if err := json.NewDecoder(resp.Body).Decode(&row); err != nil {
		t.Fatalf("decode row: %v", err)
	}
	return row
}

func TestPutTakeAckRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, "/v1/tubes/put", map[string]any{
		"tube":    "jobs",
		"payload": []byte("hello"),
		"channel": "email",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put status %d", resp.StatusCode)
	}
	put := decodeRow(t, resp)
	if put.Status != "r" || string(put.Payload) != "hello" {
		t.Fatalf("put row: %+v", put)
	}

	zero := 0.0
	resp = postJSON(t, ts, "/v1/tubes/take", map[string]any{"tube": "jobs", "timeout": zero})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("take status %d", resp.StatusCode)
	}
	taken := decodeRow(t, resp)
	if taken.ID != put.ID || taken.Status != "t" {
		t.Fatalf("taken row: %+v", taken)
	}

	resp = postJSON(t, ts, "/v1/tubes/ack", map[string]any{"tube": "jobs", "id": taken.ID, "epoch": taken.Epoch})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ack status %d", resp.StatusCode)
	}
	if done := decodeRow(t, resp); done.Status != "-" {
		t.Fatalf("ack row: %+v", done)
	}
}

func TestTakeEmptyReturns204(t *testing.T) {
	ts := newTestServer(t)
	resp := postJSON(t, ts, "/v1/tubes/take", map[string]any{"tube": "jobs", "timeout": 0.0})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status %d, want 204", resp.StatusCode)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	ts := newTestServer(t)

	// bad arguments -> 400
	resp := postJSON(t, ts, "/v1/tubes/put", map[string]any{"tube": "jobs", "delay": -1.0})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("negative delay status %d, want 400", resp.StatusCode)
	}

	// unknown task -> 404
	resp = postJSON(t, ts, "/v1/tubes/peek", map[string]any{"tube": "jobs", "id": 999})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("peek unknown status %d, want 404", resp.StatusCode)
	}

	// ack on a ready task -> 409
	resp = postJSON(t, ts, "/v1/tubes/put", map[string]any{"tube": "jobs", "payload": []byte("x")})
	put := decodeRow(t, resp)
	resp = postJSON(t, ts, "/v1/tubes/ack", map[string]any{"tube": "jobs", "id": put.ID, "epoch": put.Epoch})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("wrong-state ack status %d, want 409", resp.StatusCode)
	}

	// drop with a taken task -> 409
	resp = postJSON(t, ts, "/v1/tubes/take", map[string]any{"tube": "jobs", "timeout": 0.0})
	resp.Body.Close()
	resp = postJSON(t, ts, "/v1/tubes/drop", map[string]any{"tube": "jobs"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("busy drop status %d, want 409", resp.StatusCode)
	}
}

func TestDropIdleReturns204(t *testing.T) {
	ts := newTestServer(t)
	resp := postJSON(t, ts, "/v1/tubes/put", map[string]any{"tube": "jobs", "payload": []byte("x")})
	resp.Body.Close()
	resp = postJSON(t, ts, "/v1/tubes/drop", map[string]any{"tube": "jobs"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("drop status %d, want 204", resp.StatusCode)
	}
}

func TestListAndStats(t *testing.T) {
	ts := newTestServer(t)
	for _, ch := range []string{"email", "sms"} {
		resp := postJSON(t, ts, "/v1/tubes/put", map[string]any{"tube": "jobs", "channel": ch, "payload": []byte("x")})
		resp.Body.Close()
	}

	resp, err := http.Get(ts.URL + `/v1/tubes/list?tube=jobs&filter=` + `channel%20%3D%3D%20%22sms%22`)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var listOut struct {
		Tasks []tubesvc.Row `json:"tasks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listOut); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	resp.Body.Close()
	if len(listOut.Tasks) != 1 || listOut.Tasks[0].Channel != "sms" {
		t.Fatalf("filtered list: %+v", listOut.Tasks)
	}

	resp, err = http.Get(ts.URL + "/v1/tubes/stats?tube=jobs")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	var st tube.Stats
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	resp.Body.Close()
	if st.Ready != 2 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestSessionCloseReleases(t *testing.T) {
	ts := newTestServer(t)
	resp := postJSON(t, ts, "/v1/tubes/put", map[string]any{"tube": "jobs", "payload": []byte("x")})
	resp.Body.Close()

	resp = postJSON(t, ts, "/v1/sessions/new", map[string]any{})
	var sess struct {
		Session string `json:"session"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	resp.Body.Close()
	if sess.Session == "" {
		t.Fatalf("empty session token")
	}

	resp = postJSON(t, ts, "/v1/tubes/take", map[string]any{"tube": "jobs", "timeout": 0.0, "session": sess.Session})
	taken := decodeRow(t, resp)

	resp = postJSON(t, ts, "/v1/sessions/close", map[string]any{"session": sess.Session})
	var closed struct {
		Released int `json:"released"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&closed); err != nil {
		t.Fatalf("decode close: %v", err)
	}
	resp.Body.Close()
	if closed.Released != 1 {
		t.Fatalf("released %d, want 1", closed.Released)
	}

	// task is ready again
	resp = postJSON(t, ts, "/v1/tubes/take", map[string]any{"tube": "jobs", "timeout": 0.0})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("take after close status %d", resp.StatusCode)
	}
	if again := decodeRow(t, resp); again.ID != taken.ID {
		t.Fatalf("take returned %d, want %d", again.ID, taken.ID)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(fmt.Sprintf("%s/v1/healthz", ts.URL))
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
}
