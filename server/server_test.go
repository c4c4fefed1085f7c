package server_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xoltia/karaokeq/engine"
	"github.com/xoltia/karaokeq/qstore"
	"github.com/xoltia/karaokeq/queue"
	"github.com/xoltia/karaokeq/rpcb"
	"github.com/xoltia/karaokeq/server"
	"github.com/xoltia/karaokeq/sidekv"
)

const (
	testSongA = "toto - africa"
	testSongB = "queen - bohemian rhapsody"
)

// newTestServer wires the whole stack: a badger-backed store behind its
// remote call surface, the engine talking to it through the client, and
// the public HTTP server on top.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := qstore.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	rs := rpcb.NewServer(discard)
	qstore.Register(rs, db)
	storeSrv := httptest.NewServer(rs)
	t.Cleanup(storeSrv.Close)

	side, err := sidekv.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { side.Close() })

	eng := engine.New(qstore.NewClient(rpcb.NewClient(storeSrv.URL)), side)
	ts := httptest.NewServer(server.New(eng, discard))
	t.Cleanup(ts.Close)
	return ts
}

type caller struct {
	t     *testing.T
	base  string
	name  string
	sess  string
	admin string
}

func (c *caller) do(method, path string, body any) *http.Response {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			c.t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		c.t.Fatal(err)
	}
	if c.name != "" {
		req.Header.Set("Q-User-Name", c.name)
	}
	if c.sess != "" {
		req.Header.Set("Q-Session", c.sess)
	}
	if c.admin != "" {
		req.Header.Set("Q-Admin-Token", c.admin)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatal(err)
	}
	return resp
}

func (c *caller) expect(method, path string, body any, status int) string {
	c.t.Helper()
	resp := c.do(method, path, body)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.t.Fatal(err)
	}
	if resp.StatusCode != status {
		c.t.Fatalf("%s %s: expected %d, got %d: %s", method, path, status, resp.StatusCode, raw)
	}
	return string(raw)
}

func decodeQueue(t *testing.T, raw string) queue.Queue {
	t.Helper()
	var q queue.Queue
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		t.Fatalf("cannot decode queue from %q: %v", raw, err)
	}
	return q
}

func TestQueueLifecycle(t *testing.T) {
	ts := newTestServer(t)
	host := &caller{t: t, base: ts.URL, name: "host", sess: "h1", admin: "sekrit"}
	alice := &caller{t: t, base: ts.URL, name: "alice", sess: "s1"}
	bob := &caller{t: t, base: ts.URL, name: "bob", sess: "s2"}

	// No domain yet.
	alice.expect("GET", "/party/q", nil, 404)

	host.expect("POST", "/party/create", nil, 200)
	host.expect("POST", "/party/create", nil, 400)

	raw := alice.expect("POST", "/party/request", map[string]any{"songId": testSongA}, 200)
	q := decodeQueue(t, raw)
	if len(q) != 1 || q[0].ID != testSongA {
		t.Fatalf("unexpected queue %s", raw)
	}
	if q[0].Votes[0] != "alice_s1" {
		t.Errorf("unexpected vote token %v", q[0].Votes)
	}

	raw = bob.expect("POST", "/party/vote", map[string]any{"songId": testSongA}, 200)
	q = decodeQueue(t, raw)
	if len(q[0].Votes) != 2 {
		t.Errorf("expected 2 votes, got %v", q[0].Votes)
	}

	// Second vote from the same session is rejected.
	bob.expect("POST", "/party/vote", map[string]any{"songId": testSongA}, 405)

	// Requesting a song already queued is rejected.
	bob.expect("POST", "/party/request", map[string]any{"songId": testSongA}, 400)
}

func TestSimpleQueueEndpoints(t *testing.T) {
	ts := newTestServer(t)
	host := &caller{t: t, base: ts.URL, name: "host", sess: "h1", admin: "sekrit"}

	host.expect("POST", "/party/create", nil, 200)
	host.expect("POST", "/party/request", map[string]any{"songId": testSongA}, 200)

	raw := host.expect("GET", "/party/q-simple", nil, 200)
	lines := strings.Split(raw, "\n")
	if len(lines) != 10 {
		t.Fatalf("expected 10 padded lines, got %d", len(lines))
	}
	if lines[0] != testSongA {
		t.Errorf("expected %s first, got %s", testSongA, lines[0])
	}

	// The display advanced to an unqueued song: it gets prepended.
	raw = host.expect("POST", "/party/q-simple", map[string]any{"currentSongId": testSongB}, 200)
	lines = strings.Split(raw, "\n")
	if lines[0] != testSongB || lines[1] != testSongA {
		t.Errorf("unexpected order: %v", lines[:2])
	}

	host.expect("POST", "/party/q-simple", map[string]any{}, 400)
}

func TestAdminEndpoints(t *testing.T) {
	ts := newTestServer(t)
	host := &caller{t: t, base: ts.URL, name: "host", sess: "h1", admin: "sekrit"}
	alice := &caller{t: t, base: ts.URL, name: "alice", sess: "s1"}
	impostor := &caller{t: t, base: ts.URL, name: "mallory", sess: "m1", admin: "guess"}

	host.expect("POST", "/party/create", nil, 200)
	host.expect("POST", "/party/request", map[string]any{"songId": testSongA}, 200)

	host.expect("POST", "/party/authorize", nil, 200)
	alice.expect("POST", "/party/authorize", nil, 403)
	impostor.expect("POST", "/party/authorize", nil, 403)

	raw := host.expect("POST", "/party/setvotes", map[string]any{"songId": testSongA, "votes": 3}, 200)
	q := decodeQueue(t, raw)
	if len(q[0].Votes) != 3 {
		t.Errorf("expected 3 votes, got %v", q[0].Votes)
	}
	host.expect("POST", "/party/setvotes", map[string]any{"songId": testSongA}, 422)

	want := queue.Queue{
		{ID: testSongB, Votes: []string{"alice_s1"}},
		{ID: testSongA, Votes: []string{"bob_s2"}},
	}
	raw = host.expect("PUT", "/party/q", map[string]any{"q": want}, 200)
	q = decodeQueue(t, raw)
	if q[0].ID != testSongB || q[1].ID != testSongA {
		t.Errorf("queue not replaced as given: %s", raw)
	}
	impostor.expect("PUT", "/party/q", map[string]any{"q": want}, 403)

	raw = host.expect("POST", "/party/remove", map[string]any{"songId": testSongA}, 200)
	q = decodeQueue(t, raw)
	if len(q) != 1 {
		t.Errorf("expected 1 song after removal, got %s", raw)
	}

	raw = host.expect("POST", "/party/reset", nil, 200)
	if q := decodeQueue(t, raw); len(q) != 0 {
		t.Errorf("expected empty queue, got %s", raw)
	}

	host.expect("DELETE", "/party/q", nil, 200)
	alice.expect("GET", "/party/q", nil, 404)
}

func TestConfigEndpoints(t *testing.T) {
	ts := newTestServer(t)
	host := &caller{t: t, base: ts.URL, name: "host", sess: "h1", admin: "sekrit"}
	alice := &caller{t: t, base: ts.URL, name: "alice", sess: "s1"}

	host.expect("POST", "/party/create", nil, 200)

	raw := alice.expect("GET", "/party/config", nil, 200)
	var cfg engine.Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg != engine.DefaultConfig {
		t.Errorf("expected defaults, got %+v", cfg)
	}

	host.expect("PATCH", "/party/config", map[string]any{"requestRateLimitMins": 5}, 200)
	alice.expect("PATCH", "/party/config", map[string]any{"requestRateLimitMins": 5}, 403)

	raw = alice.expect("GET", "/party/config", nil, 200)
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.RequestRateLimitMins != 5 {
		t.Errorf("patch not visible: %+v", cfg)
	}
	if cfg.WaitingVoteBonus != engine.DefaultConfig.WaitingVoteBonus {
		t.Errorf("unrelated field changed: %+v", cfg)
	}
}

func TestRateLimitOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	host := &caller{t: t, base: ts.URL, name: "host", sess: "h1", admin: "sekrit"}
	alice := &caller{t: t, base: ts.URL, name: "alice", sess: "s1"}

	host.expect("POST", "/party/create", nil, 200)

	alice.expect("POST", "/party/request", map[string]any{"songId": testSongA}, 200)
	raw := alice.expect("POST", "/party/request", map[string]any{"songId": testSongB}, 429)
	if !strings.Contains(raw, "2 minutes") {
		t.Errorf("expected window in message, got %q", raw)
	}

	// The admin token bypasses the limiter entirely.
	host.expect("POST", "/party/request", map[string]any{"songId": testSongB}, 200)
}

func TestUnknownPathAndErrors(t *testing.T) {
	ts := newTestServer(t)
	c := &caller{t: t, base: ts.URL, name: "x", sess: "y"}

	raw := c.expect("GET", "/party/unknown", nil, 404)
	if !strings.Contains(raw, "Unknown method/path") {
		t.Errorf("unexpected body %q", raw)
	}

	resp := c.do("POST", "/party/vote", nil)
	resp.Body.Close()
	// Empty body means no song id; the engine reports the missing song.
	if resp.StatusCode != 404 {
		t.Errorf("expected 404 for empty body vote on missing domain, got %d", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/party/vote", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS origin header")
	}
	if !strings.Contains(resp.Header.Get("Access-Control-Allow-Headers"), "Q-Admin-Token") {
		t.Error("identity headers not allowed for preflight")
	}
}
