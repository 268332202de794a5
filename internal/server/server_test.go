package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"launchpath/internal/config"
	"launchpath/internal/db"
	"launchpath/internal/domain"
	"launchpath/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Pipeline.GraceDelay = 0
	cfg.Pipeline.ValidationDelay = 0
	cfg.Pipeline.GenerationDelay = 0
	handler, err := New(Config{DB: conn, AppConfig: cfg, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestIdeaToChecklistFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	createRes, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/ideas", map[string]any{
		"title":       "EcoBox",
		"description": "Compostable shipping boxes",
	}, nil)
	if createRes.StatusCode != http.StatusOK {
		t.Fatalf("save idea status %d: %s", createRes.StatusCode, string(data))
	}
	var created IdeaResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal idea: %v", err)
	}
	if !created.Created {
		t.Fatalf("first save should report created=true")
	}

	// same title again is an upsert, not a duplicate
	againRes, againData := doJSON(t, client, http.MethodPost, srv.URL+"/v0/ideas", map[string]any{
		"title":       "EcoBox",
		"description": "edited",
	}, nil)
	if againRes.StatusCode != http.StatusOK {
		t.Fatalf("resave status %d: %s", againRes.StatusCode, string(againData))
	}
	var again IdeaResponse
	_ = json.Unmarshal(againData, &again)
	if again.Created || again.ID != created.ID {
		t.Fatalf("expected upsert of %s, got created=%v id=%s", created.ID, again.Created, again.ID)
	}

	valRes, valData := doJSON(t, client, http.MethodPost, srv.URL+"/v0/ideas/"+created.ID+"/validate", nil, nil)
	if valRes.StatusCode != http.StatusOK {
		t.Fatalf("validate status %d: %s", valRes.StatusCode, string(valData))
	}
	var outcome ValidateResponse
	if err := json.Unmarshal(valData, &outcome); err != nil {
		t.Fatalf("unmarshal outcome: %v", err)
	}
	if outcome.Result.IdeaTitle != "EcoBox" {
		t.Fatalf("result title %q", outcome.Result.IdeaTitle)
	}
	if len(outcome.Tasks) != 6 {
		t.Fatalf("expected 6 tasks, got %d", len(outcome.Tasks))
	}

	toggleRes, toggleData := doJSON(t, client, http.MethodPatch, srv.URL+"/v0/tasks/"+outcome.Tasks[0].ID, map[string]any{
		"completed": true,
	}, nil)
	if toggleRes.StatusCode != http.StatusOK {
		t.Fatalf("toggle status %d: %s", toggleRes.StatusCode, string(toggleData))
	}
	var toggled domain.RegistrationTask
	_ = json.Unmarshal(toggleData, &toggled)
	if !toggled.Completed {
		t.Fatalf("toggle did not complete the task")
	}

	progRes, progData := doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/progress", nil, nil)
	if progRes.StatusCode != http.StatusOK {
		t.Fatalf("progress status %d: %s", progRes.StatusCode, string(progData))
	}
	var prog ProgressResponse
	_ = json.Unmarshal(progData, &prog)
	if prog.Total != 6 || prog.Completed != 1 || prog.Progress != 17 {
		t.Fatalf("progress %+v, want 1/6 = 17%%", prog)
	}
}

func TestToggleUnknownTaskReturns404(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v0/tasks/no-such-task", map[string]any{
		"completed": true,
	}, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("error code %q, want not_found", envelope.Error.Code)
	}
}

func TestOnboardingLoadRunsPipeline(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	setRes, setData := doJSON(t, client, http.MethodPut, srv.URL+"/v0/onboarding", map[string]any{
		"path":             "idea",
		"idea_title":       "EcoBox",
		"idea_description": "Compostable shipping boxes",
	}, nil)
	if setRes.StatusCode != http.StatusOK {
		t.Fatalf("set onboarding status %d: %s", setRes.StatusCode, string(setData))
	}

	loadRes, loadData := doJSON(t, client, http.MethodPost, srv.URL+"/v0/onboarding/load", nil, nil)
	if loadRes.StatusCode != http.StatusOK {
		t.Fatalf("load status %d: %s", loadRes.StatusCode, string(loadData))
	}
	var state struct {
		Mode  string                    `json:"mode"`
		Stage string                    `json:"stage"`
		Tasks []domain.RegistrationTask `json:"tasks"`
	}
	if err := json.Unmarshal(loadData, &state); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if state.Stage != "tasks_ready" {
		t.Fatalf("stage %q, want tasks_ready", state.Stage)
	}
	if state.Mode != "tasks" {
		t.Fatalf("mode %q, want tasks", state.Mode)
	}
	if len(state.Tasks) != 6 {
		t.Fatalf("expected 6 tasks, got %d", len(state.Tasks))
	}

	histRes, histData := doJSON(t, client, http.MethodGet, srv.URL+"/v0/validations", nil, nil)
	if histRes.StatusCode != http.StatusOK {
		t.Fatalf("history status %d: %s", histRes.StatusCode, string(histData))
	}
	var history []domain.ValidationResult
	_ = json.Unmarshal(histData, &history)
	if len(history) != 1 {
		t.Fatalf("expected 1 validation result, got %d", len(history))
	}
}

func TestOwnersAreIsolated(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/ideas", map[string]any{
		"title": "EcoBox", "description": "d",
	}, map[string]string{"X-Owner-Id": "alice"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("alice save status %d: %s", res.StatusCode, string(data))
	}

	listRes, listData := doJSON(t, client, http.MethodGet, srv.URL+"/v0/ideas", nil, map[string]string{"X-Owner-Id": "bob"})
	if listRes.StatusCode != http.StatusOK {
		t.Fatalf("bob list status %d: %s", listRes.StatusCode, string(listData))
	}
	var ideas []domain.Idea
	_ = json.Unmarshal(listData, &ideas)
	if len(ideas) != 0 {
		t.Fatalf("bob sees %d of alice's ideas", len(ideas))
	}
}
