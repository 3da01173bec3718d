package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"clubrun/internal/content"
	"clubrun/internal/db"
	"clubrun/internal/ledger"
	"clubrun/internal/migrate"
	"clubrun/internal/payment"
)

type testServer struct {
	URL    string
	Ledger ledger.Ledger
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	l := ledger.New(conn, content.SQLStore{DB: conn}, &payment.StaticRail{})
	handler, err := New(Config{
		Ledger:   l,
		BasePath: "/v0",
		Auth: AuthConfig{
			JWTSecret:              "test-secret",
			AllowLegacyActorHeader: true,
		},
	})
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
		Ledger: l,
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

func asCurator(h map[string]string) map[string]string {
	if h == nil {
		h = map[string]string{}
	}
	h["X-Actor-Id"] = "curator-1"
	return h
}

func asRunner(h map[string]string) map[string]string {
	if h == nil {
		h = map[string]string{}
	}
	h["X-Actor-Id"] = "runner-1"
	return h
}

func createMissionBody() map[string]any {
	return map[string]any{
		"content": map[string]any{
			"title":         "Promote album release party",
			"venue_address": "12 Bowery, NYC",
			"event_type":    "showcase",
		},
		"budget":         "200",
		"deadline":       time.Now().UTC().Add(48 * time.Hour).Format(time.RFC3339),
		"payment_method": "cashapp",
		"open_market":    true,
	}
}

func TestMissionLifecycleHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/missions", createMissionBody(), asCurator(nil))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create mission: %d %s", res.StatusCode, string(data))
	}
	var created MissionResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal mission: %v", err)
	}
	if created.Status != "OPEN" || created.ContentCID == "" {
		t.Fatalf("created = %+v", created)
	}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/runners/me/profile", map[string]any{
		"cashapp_handle": "$runner1",
	}, asRunner(nil))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("profile: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/missions/"+created.ID+"/accept", nil, asRunner(nil))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept: %d %s", res.StatusCode, string(data))
	}

	// a second accept conflicts with the envelope code already_assigned
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/missions/"+created.ID+"/accept", nil, map[string]string{"X-Actor-Id": "runner-2"})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("second accept: %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error.Code != "already_assigned" {
		t.Fatalf("conflict envelope: %v %s", err, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/missions/"+created.ID+"/proof", map[string]any{
		"location": "12 Bowery, NYC",
		"photos":   []string{"https://img.example/crowd.jpg"},
	}, asRunner(nil))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("proof: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/missions/"+created.ID+"/approve", nil, asCurator(nil))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve: %d %s", res.StatusCode, string(data))
	}
	var completed MissionResponse
	if err := json.Unmarshal(data, &completed); err != nil {
		t.Fatalf("unmarshal completed: %v", err)
	}
	if completed.Status != "COMPLETED" || completed.Settlement == nil {
		t.Fatalf("completed = %+v", completed)
	}
	if completed.Settlement.Recipient != "$runner1" || completed.Settlement.Amount != "200" {
		t.Fatalf("settlement = %+v", completed.Settlement)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/missions/"+created.ID, nil, asCurator(nil))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get: %d %s", res.StatusCode, string(data))
	}
	var detail MissionDetailResponse
	if err := json.Unmarshal(data, &detail); err != nil {
		t.Fatalf("unmarshal detail: %v", err)
	}
	if detail.Content.Title != "Promote album release party" || detail.Proof == nil {
		t.Fatalf("detail = %+v", detail)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/missions", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no credentials: %d", res.StatusCode)
	}

	// health is open
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d", res.StatusCode)
	}
}

func TestJWTLoginFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"actor_id": "curator-9",
		"roles":    []string{"CURATOR"},
	}, asCurator(nil))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login: %d %s", res.StatusCode, string(data))
	}
	var login map[string]string
	if err := json.Unmarshal(data, &login); err != nil || login["token"] == "" {
		t.Fatalf("token body: %v %s", err, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/missions", createMissionBody(), map[string]string{
		"Authorization": "Bearer " + login["token"],
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create as jwt principal: %d %s", res.StatusCode, string(data))
	}
	var created MissionResponse
	if err := json.Unmarshal(data, &created); err != nil || created.CuratorID != "curator-9" {
		t.Fatalf("curator = %s", created.CuratorID)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/missions", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token: %d %s", res.StatusCode, string(data))
	}
}

func TestUnknownMissionEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/missions/does-not-exist", nil, asCurator(nil))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status: %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error.Code != "not_found" {
		t.Fatalf("envelope: %v %s", err, string(data))
	}
}

func TestRoleEnforcement(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	ctx := context.Background()

	// once any role exists for the actor, creation endpoints check it
	if err := srv.Ledger.Repo.AssignRole(ctx, "runner-5", "RUNNER"); err != nil {
		t.Fatal(err)
	}
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/missions", createMissionBody(), map[string]string{"X-Actor-Id": "runner-5"})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("runner create mission: %d %s", res.StatusCode, string(data))
	}

	if err := srv.Ledger.Repo.AssignRole(ctx, "curator-5", "CURATOR"); err != nil {
		t.Fatal(err)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/missions", createMissionBody(), map[string]string{"X-Actor-Id": "curator-5"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("curator create mission: %d %s", res.StatusCode, string(data))
	}

	// CLIENT creates missions too
	if err := srv.Ledger.Repo.AssignRole(ctx, "client-5", "CLIENT"); err != nil {
		t.Fatal(err)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/missions", createMissionBody(), map[string]string{"X-Actor-Id": "client-5"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("client create mission: %d %s", res.StatusCode, string(data))
	}
}

func TestAcceptRequiresRunnerRole(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	ctx := context.Background()

	if err := srv.Ledger.Repo.AssignRole(ctx, "curator-6", "CURATOR"); err != nil {
		t.Fatal(err)
	}
	if err := srv.Ledger.Repo.AssignRole(ctx, "curator-7", "CURATOR"); err != nil {
		t.Fatal(err)
	}
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/missions", createMissionBody(), map[string]string{"X-Actor-Id": "curator-6"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create mission: %d %s", res.StatusCode, string(data))
	}
	var created MissionResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal mission: %v", err)
	}

	// a curator-only actor cannot grab the mission
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/missions/"+created.ID+"/accept", nil, map[string]string{"X-Actor-Id": "curator-7"})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("curator accept: %d %s", res.StatusCode, string(data))
	}

	if err := srv.Ledger.Repo.AssignRole(ctx, "runner-6", "RUNNER"); err != nil {
		t.Fatal(err)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/missions/"+created.ID+"/accept", nil, map[string]string{"X-Actor-Id": "runner-6"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("runner accept: %d %s", res.StatusCode, string(data))
	}
}
