package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/emberhost/ember/internal/agent"
	"github.com/emberhost/ember/internal/auth"
	"github.com/emberhost/ember/internal/lifecycle"
	"github.com/emberhost/ember/internal/models"
	"github.com/emberhost/ember/internal/store"
)

// nopGateway answers every agent call successfully without a network.
type nopGateway struct{}

func (nopGateway) CreateServer(req *agent.CreateRequest) error                { return nil }
func (nopGateway) StartServer(serverID string) error                          { return nil }
func (nopGateway) StopServer(serverID string) error                           { return nil }
func (nopGateway) RestartServer(serverID string) error                        { return nil }
func (nopGateway) ResizeServer(serverID string, req *agent.ResizeRequest) error { return nil }
func (nopGateway) DeleteServer(serverID string) error                         { return nil }
func (nopGateway) GetMetrics(serverID string) ([]byte, error)                 { return []byte(`{"cpu":0}`), nil }
func (nopGateway) GetProperties(serverID string) ([]byte, error)              { return []byte(`{}`), nil }
func (nopGateway) PutProperties(serverID string, body []byte) error           { return nil }

// newTestRouter assembles a full route tree over an in-memory store with
// one node, one plan, and a static identity provider.
func newTestRouter(t *testing.T) (*gin.Engine, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := st.CreateNode(&models.Node{
		ID: "n1", Address: "10.0.0.1", AgentPort: 8443,
		AgentToken: "node-token-n1", Status: models.NodeOnline,
		TotalRAMMB: 8192, MaxServers: 10,
	}); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	if err := st.CreatePlan(&models.Plan{
		ID: "p1", Name: "small", Price: 5, RAMMB: 1024, CPULimit: 1, DiskGB: 10, Active: true,
	}); err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}

	manager := lifecycle.NewManager(st, func(node *models.Node) lifecycle.Gateway {
		return nopGateway{}
	})

	server := &Server{
		store:      st,
		manager:    manager,
		verifier:   auth.NewStaticVerifier(map[string]string{"user-token": "u1"}),
		adminToken: "admin-token",
	}

	router := gin.New()
	server.setupRoutes(router)
	return router, st
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateServerEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/servers", "user-token",
		map[string]any{"plan_id": "p1", "name": "my server"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want %d (body: %s)", w.Code, http.StatusCreated, w.Body.String())
	}

	var sv models.Server
	if err := json.Unmarshal(w.Body.Bytes(), &sv); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if sv.Name != "my server" || sv.Status != models.StatusInstalling {
		t.Errorf("server = %s/%s, want my server/installing", sv.Name, sv.Status)
	}
}

func TestCreateServerEndpointValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"missing plan", map[string]any{"name": "my server"}, http.StatusBadRequest},
		{"bad name", map[string]any{"plan_id": "p1", "name": "-x"}, http.StatusBadRequest},
		{"privileged port", map[string]any{"plan_id": "p1", "port": 80}, http.StatusBadRequest},
		{"unknown type", map[string]any{"plan_id": "p1", "server_type": "modded"}, http.StatusBadRequest},
		{"missing plan row", map[string]any{"plan_id": "nope"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, "POST", "/api/v1/servers", "user-token", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body: %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestAuthRequired(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "GET", "/api/v1/servers", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("missing token status = %d, want 401", w.Code)
	}

	w = doJSON(t, router, "GET", "/api/v1/servers", "wrong-token", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", w.Code)
	}
}

func TestPowerEndpoint(t *testing.T) {
	router, st := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/servers", "user-token",
		map[string]any{"plan_id": "p1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create failed: %s", w.Body.String())
	}
	var sv models.Server
	json.Unmarshal(w.Body.Bytes(), &sv)
	if err := st.UpdateServerStatus(sv.ID, models.StatusStopped); err != nil {
		t.Fatalf("UpdateServerStatus failed: %v", err)
	}

	w = doJSON(t, router, "POST", "/api/v1/servers/"+sv.ID+"/start", "user-token", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("start status = %d (body: %s)", w.Code, w.Body.String())
	}
	var body map[string]string
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["action"] != "start" || body["status"] != models.StatusStarting {
		t.Errorf("start response = %v", body)
	}

	w = doJSON(t, router, "POST", "/api/v1/servers/"+sv.ID+"/stop", "user-token", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stop status = %d (body: %s)", w.Code, w.Body.String())
	}
}

func TestStatusSyncEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/servers", "user-token",
		map[string]any{"plan_id": "p1"})
	var sv models.Server
	json.Unmarshal(w.Body.Bytes(), &sv)

	// Watchdog callbacks carry the node credential and get terse
	// rejections on auth failure.
	w = doJSON(t, router, "POST", "/internal/servers/"+sv.ID+"/status", "bogus",
		map[string]any{"status": "running"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad node token status = %d, want 401", w.Code)
	}
	if strings.Contains(w.Body.String(), "node") {
		t.Errorf("credential rejection leaks detail: %s", w.Body.String())
	}

	w = doJSON(t, router, "POST", "/internal/servers/"+sv.ID+"/status", "node-token-n1",
		map[string]any{"status": "running", "lxc_ip": "10.10.0.5"})
	if w.Code != http.StatusOK {
		t.Errorf("valid sync status = %d (body: %s)", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "POST", "/internal/servers/"+sv.ID+"/status", "node-token-n1",
		map[string]any{"status": "exploded"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid status code = %d, want 400", w.Code)
	}
}

func TestAdminEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	body := map[string]any{
		"address": "10.0.0.2", "agent_port": 8443,
		"agent_token": "node-token-n2-long-enough", "total_ram_mb": 8192, "max_servers": 10,
	}

	w := doJSON(t, router, "POST", "/internal/nodes", "", body)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated node create status = %d, want 401", w.Code)
	}

	w = doJSON(t, router, "POST", "/internal/nodes", "admin-token", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("node create status = %d (body: %s)", w.Code, w.Body.String())
	}

	// The node-scoped credential must never appear in responses.
	if strings.Contains(w.Body.String(), "node-token-n2") {
		t.Errorf("agent token leaked in response: %s", w.Body.String())
	}

	w = doJSON(t, router, "GET", "/internal/nodes", "admin-token", nil)
	if w.Code != http.StatusOK {
		t.Errorf("node list status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "node-token") {
		t.Errorf("agent token leaked in listing: %s", w.Body.String())
	}
}

func TestPortCheckEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/servers", "user-token",
		map[string]any{"plan_id": "p1"})
	var sv models.Server
	json.Unmarshal(w.Body.Bytes(), &sv)

	w = doJSON(t, router, "GET", "/api/v1/servers/port-check?port=25565", "user-token", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("port-check status = %d (body: %s)", w.Code, w.Body.String())
	}
	var resp struct {
		Port  int  `json:"port"`
		InUse bool `json:"in_use"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.InUse {
		t.Error("port-check in_use = false for allocated port, want true")
	}

	w = doJSON(t, router, "GET", "/api/v1/servers/port-check?port=notanumber", "user-token", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed port status = %d, want 400", w.Code)
	}
}

func TestConsoleMalformedFirstFrame(t *testing.T) {
	router, _ := newTestRouter(t)

	ts := httptest.NewServer(router)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/servers/whatever/console"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// The relay answers with an error frame and closes without ever
	// dialing an agent.
	var frame struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read error frame failed: %v", err)
	}
	if frame.Type != "error" {
		t.Errorf("frame type = %s, want error", frame.Type)
	}

	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection still open after auth failure, want close")
	}
}

func TestCreateRateLimit(t *testing.T) {
	router, _ := newTestRouter(t)

	// The create budget is 5 per hour per identity; the sixth admission
	// attempt is rejected before any allocation work happens.
	for i := 0; i < 5; i++ {
		w := doJSON(t, router, "POST", "/api/v1/servers", "user-token",
			map[string]any{"plan_id": "nope"})
		if w.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d rate limited within budget", i+1)
		}
	}

	w := doJSON(t, router, "POST", "/api/v1/servers", "user-token",
		map[string]any{"plan_id": "p1"})
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("sixth create status = %d, want 429", w.Code)
	}
}

func TestIdentityLimiter(t *testing.T) {
	limiter := newIdentityLimiter(1, 3) // 3 burst, refill irrelevant here

	for i := 0; i < 3; i++ {
		if !limiter.allow("u1") {
			t.Fatalf("request %d denied within burst", i+1)
		}
	}
	if limiter.allow("u1") {
		t.Error("request beyond burst allowed")
	}

	// Budgets are per identity.
	if !limiter.allow("u2") {
		t.Error("fresh identity denied")
	}
}
