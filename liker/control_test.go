package liker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/feedpilot/liker/internal/dom/domtest"
	"github.com/hazyhaar/feedpilot/liker/internal/journal"
	"github.com/hazyhaar/feedpilot/liker/internal/settings"
)

func testControl(t *testing.T) (*Supervisor, *httptest.Server) {
	t.Helper()
	sup, router := testSupervisor(t)
	ts := httptest.NewServer(NewControlServer(sup, router, nil).Handler())
	t.Cleanup(ts.Close)
	return sup, ts
}

func do(t *testing.T, method, url, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(data)
}

func TestControl_Health(t *testing.T) {
	_, ts := testControl(t)
	if code, _ := do(t, "GET", ts.URL+"/health", ""); code != http.StatusOK {
		t.Fatalf("health: got %d", code)
	}
}

func TestControl_Settings(t *testing.T) {
	_, ts := testControl(t)

	code, body := do(t, "GET", ts.URL+"/settings", "")
	if code != http.StatusOK {
		t.Fatalf("get: got %d %s", code, body)
	}
	var got settings.Settings
	json.Unmarshal([]byte(body), &got)
	if got != settings.Defaults() {
		t.Fatalf("get: got %+v, want defaults", got)
	}

	code, body = do(t, "PUT", ts.URL+"/settings", `{"actionProbability":150,"speedProfile":"conservative"}`)
	if code != http.StatusOK {
		t.Fatalf("put: got %d %s", code, body)
	}
	json.Unmarshal([]byte(body), &got)
	if got.ActionProbability != 100 || got.Speed != settings.Conservative {
		t.Fatalf("put: got %+v, want probability clamped to 100 and conservative", got)
	}

	code, body = do(t, "GET", ts.URL+"/settings", "")
	json.Unmarshal([]byte(body), &got)
	if code != http.StatusOK || got.ActionProbability != 100 {
		t.Fatalf("not stored: %d %s", code, body)
	}

	if code, _ := do(t, "PUT", ts.URL+"/settings", `{not json`); code != http.StatusBadRequest {
		t.Fatalf("bad body: got %d, want 400", code)
	}
}

func TestControl_Actions(t *testing.T) {
	sup, ts := testControl(t)
	sup.journal.Record(context.Background(), journal.Entry{EngineID: "eng_1", ItemID: "urn:li:activity:a"})

	code, body := do(t, "GET", ts.URL+"/actions?limit=5", "")
	if code != http.StatusOK || !strings.Contains(body, `"itemId":"urn:li:activity:a"`) {
		t.Fatalf("actions: got %d %s", code, body)
	}
	for _, bad := range []string{"0", "-3", "many"} {
		if code, _ := do(t, "GET", ts.URL+"/actions?limit="+bad, ""); code != http.StatusBadRequest {
			t.Errorf("limit=%s: got %d, want 400", bad, code)
		}
	}
}

func TestControl_Message(t *testing.T) {
	sup, ts := testControl(t)

	if code, _ := do(t, "POST", ts.URL+"/message", `{"action":"ping"}`); code != http.StatusNotFound {
		t.Fatalf("ping without engine: got %d, want 404", code)
	}
	if code, _ := do(t, "POST", ts.URL+"/message", `nope`); code != http.StatusBadRequest {
		t.Fatalf("invalid body: got %d, want 400", code)
	}

	sup.Attach(context.Background(), domtest.NewPage(feedURL))
	code, body := do(t, "POST", ts.URL+"/message", `{"action":"ping"}`)
	if code != http.StatusOK || !strings.Contains(body, `"contextValid":true`) {
		t.Fatalf("ping: got %d %s", code, body)
	}
	if code, _ := do(t, "POST", ts.URL+"/message", `{"action":"selfDestruct"}`); code != http.StatusNotFound {
		t.Fatalf("unknown action: got %d, want 404", code)
	}
}

func TestControl_StatusAndMetrics(t *testing.T) {
	_, ts := testControl(t)

	code, body := do(t, "POST", ts.URL+"/message", `{"action":"updateStats","itemsViewed":7,"actionsTaken":3}`)
	if code != http.StatusOK {
		t.Fatalf("updateStats: got %d %s", code, body)
	}

	code, body = do(t, "GET", ts.URL+"/metrics", "")
	if code != http.StatusOK {
		t.Fatalf("metrics: got %d", code)
	}
	for _, want := range []string{"feedpilot_items_viewed_today 7", "feedpilot_actions_taken_today 3"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics: missing %q", want)
		}
	}

	code, body = do(t, "GET", ts.URL+"/status", "")
	if code != http.StatusOK {
		t.Fatalf("status: got %d", code)
	}
	var st SupervisorStatus
	if err := json.Unmarshal([]byte(body), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Attached || st.Stats.LastResetDate == "" {
		t.Fatalf("status: got %+v", st)
	}
}

func TestControl_RejectsRemotePeers(t *testing.T) {
	sup, router := testSupervisor(t)
	h := NewControlServer(sup, router, nil).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/status", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote peer: got %d, want 403", rec.Code)
	}
}
