package lifecycle

import (
	"errors"
	"fmt"
	"testing"

	"github.com/emberhost/ember/internal/agent"
	"github.com/emberhost/ember/internal/models"
	"github.com/emberhost/ember/internal/scheduler"
	"github.com/emberhost/ember/internal/store"
)

// fakeGateway is an in-memory agent double with per-call error injection
// and call recording.
type fakeGateway struct {
	createErr  error
	startErr   error
	stopErr    error
	deleteErr  error
	resizeErr  error
	calls      []string
	lastCreate *agent.CreateRequest
}

func (g *fakeGateway) CreateServer(req *agent.CreateRequest) error {
	g.calls = append(g.calls, "create")
	g.lastCreate = req
	return g.createErr
}

func (g *fakeGateway) StartServer(serverID string) error {
	g.calls = append(g.calls, "start")
	return g.startErr
}

func (g *fakeGateway) StopServer(serverID string) error {
	g.calls = append(g.calls, "stop")
	return g.stopErr
}

func (g *fakeGateway) RestartServer(serverID string) error {
	g.calls = append(g.calls, "restart")
	return nil
}

func (g *fakeGateway) ResizeServer(serverID string, req *agent.ResizeRequest) error {
	g.calls = append(g.calls, "resize")
	return g.resizeErr
}

func (g *fakeGateway) DeleteServer(serverID string) error {
	g.calls = append(g.calls, "delete")
	return g.deleteErr
}

func (g *fakeGateway) GetMetrics(serverID string) ([]byte, error)    { return []byte("{}"), nil }
func (g *fakeGateway) GetProperties(serverID string) ([]byte, error) { return []byte("{}"), nil }
func (g *fakeGateway) PutProperties(serverID string, body []byte) error {
	return nil
}

// newTestManager wires an in-memory store with one node and one active
// plan against the fake gateway.
func newTestManager(t *testing.T, totalRAMMB int64) (*Manager, *store.Store, *fakeGateway) {
	t.Helper()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := st.CreateNode(&models.Node{
		ID:         "n1",
		Address:    "10.0.0.1",
		AgentPort:  8443,
		AgentToken: "node-token-n1",
		Status:     models.NodeOnline,
		TotalRAMMB: totalRAMMB,
		MaxServers: 10,
	}); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}

	if err := st.CreatePlan(&models.Plan{
		ID: "p1", Name: "small", Price: 5, RAMMB: 1024, CPULimit: 1, DiskGB: 10, Active: true,
	}); err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}

	gw := &fakeGateway{}
	mgr := NewManager(st, func(node *models.Node) Gateway { return gw })
	return mgr, st, gw
}

func createParams() CreateParams {
	return CreateParams{
		Name:       "test server",
		PlanID:     "p1",
		MCVersion:  "1.21.4",
		ServerType: models.ServerTypeVanilla,
	}
}

func allocatedRAM(t *testing.T, st *store.Store, nodeID string) int64 {
	t.Helper()
	node, err := st.GetNode(nodeID)
	if err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}
	return node.AllocatedRAMMB
}

func TestCreateServerSuccess(t *testing.T) {
	mgr, st, gw := newTestManager(t, 8192)

	sv, err := mgr.CreateServer("u1", createParams())
	if err != nil {
		t.Fatalf("CreateServer failed: %v", err)
	}

	if sv.Status != models.StatusInstalling {
		t.Errorf("status = %s, want %s", sv.Status, models.StatusInstalling)
	}
	if sv.Port != 25565 {
		t.Errorf("port = %d, want 25565", sv.Port)
	}
	if sv.RAMMB != 1024 {
		t.Errorf("ram snapshot = %d, want 1024", sv.RAMMB)
	}
	if got := allocatedRAM(t, st, "n1"); got != 1024 {
		t.Errorf("ledger allocation = %d, want 1024", got)
	}
	if gw.lastCreate == nil || gw.lastCreate.ServerID != sv.ID {
		t.Error("agent create call missing or for wrong server")
	}
}

func TestCreateServerAgentFailureKeepsRowAndReservation(t *testing.T) {
	_, st, _ := newTestManager(t, 8192)
	gwFail := &fakeGateway{createErr: agent.ErrAgentUnreachable}
	mgr := NewManager(st, func(node *models.Node) Gateway { return gwFail })

	_, err := mgr.CreateServer("u1", createParams())
	if !errors.Is(err, agent.ErrAgentUnreachable) {
		t.Fatalf("CreateServer error = %v, want ErrAgentUnreachable", err)
	}

	// Row survives in error status, reservation stays on the ledger.
	servers, listErr := st.ListServersForUser("u1")
	if listErr != nil {
		t.Fatalf("ListServersForUser failed: %v", listErr)
	}
	if len(servers) != 1 {
		t.Fatalf("server rows = %d, want 1", len(servers))
	}
	if servers[0].Status != models.StatusError {
		t.Errorf("status = %s, want %s", servers[0].Status, models.StatusError)
	}
	if got := allocatedRAM(t, st, "n1"); got != 1024 {
		t.Errorf("ledger allocation = %d, want 1024", got)
	}
}

func TestCreateServerPlanNotFound(t *testing.T) {
	mgr, _, _ := newTestManager(t, 8192)

	params := createParams()
	params.PlanID = "missing"
	if _, err := mgr.CreateServer("u1", params); !errors.Is(err, ErrPlanNotFound) {
		t.Errorf("CreateServer error = %v, want ErrPlanNotFound", err)
	}
}

func TestCreateServerLimitReached(t *testing.T) {
	mgr, st, _ := newTestManager(t, 65536)

	for i := 0; i < 5; i++ {
		if err := st.InsertServer(&models.Server{
			ID: fmt.Sprintf("existing-%d", i), UserID: "u1", NodeID: "n1",
			PlanID: "p1", Name: "existing", Port: 26000 + i, RAMMB: 1024,
			CPULimit: 1, DiskGB: 10, MCVersion: "1.21.4",
			ServerType: models.ServerTypeVanilla, Status: models.StatusRunning,
		}); err != nil {
			t.Fatalf("InsertServer failed: %v", err)
		}
	}

	if _, err := mgr.CreateServer("u1", createParams()); !errors.Is(err, ErrServerLimitReached) {
		t.Errorf("CreateServer error = %v, want ErrServerLimitReached", err)
	}

	// A different user is unaffected by the first user's ceiling.
	if _, err := mgr.CreateServer("u2", createParams()); err != nil {
		t.Errorf("CreateServer for second user failed: %v", err)
	}
}

func TestCreateServerNoCapacity(t *testing.T) {
	mgr, _, _ := newTestManager(t, 512) // smaller than the plan's 1024

	if _, err := mgr.CreateServer("u1", createParams()); !errors.Is(err, scheduler.ErrNoCapacity) {
		t.Errorf("CreateServer error = %v, want ErrNoCapacity", err)
	}
}

func TestPowerActionOptimisticTransition(t *testing.T) {
	mgr, st, gw := newTestManager(t, 8192)
	sv, err := mgr.CreateServer("u1", createParams())
	if err != nil {
		t.Fatalf("CreateServer failed: %v", err)
	}
	if err := st.UpdateServerStatus(sv.ID, models.StatusStopped); err != nil {
		t.Fatalf("UpdateServerStatus failed: %v", err)
	}

	got, err := mgr.PowerAction("u1", sv.ID, ActionStart)
	if err != nil {
		t.Fatalf("PowerAction failed: %v", err)
	}
	if got.Status != models.StatusStarting {
		t.Errorf("status = %s, want %s", got.Status, models.StatusStarting)
	}
	if gw.calls[len(gw.calls)-1] != "start" {
		t.Errorf("last agent call = %s, want start", gw.calls[len(gw.calls)-1])
	}
}

func TestPowerActionAgentFailureLeavesStatus(t *testing.T) {
	mgr, st, gw := newTestManager(t, 8192)
	sv, err := mgr.CreateServer("u1", createParams())
	if err != nil {
		t.Fatalf("CreateServer failed: %v", err)
	}
	if err := st.UpdateServerStatus(sv.ID, models.StatusStopped); err != nil {
		t.Fatalf("UpdateServerStatus failed: %v", err)
	}

	gw.startErr = agent.ErrAgentUnreachable
	if _, err := mgr.PowerAction("u1", sv.ID, ActionStart); !errors.Is(err, agent.ErrAgentUnreachable) {
		t.Fatalf("PowerAction error = %v, want ErrAgentUnreachable", err)
	}

	// The transition was never claimed.
	after, err := st.GetServer(sv.ID)
	if err != nil {
		t.Fatalf("GetServer failed: %v", err)
	}
	if after.Status != models.StatusStopped {
		t.Errorf("status after failed start = %s, want %s", after.Status, models.StatusStopped)
	}
}

func TestPowerActionOwnership(t *testing.T) {
	mgr, _, _ := newTestManager(t, 8192)
	sv, err := mgr.CreateServer("u1", createParams())
	if err != nil {
		t.Fatalf("CreateServer failed: %v", err)
	}

	if _, err := mgr.PowerAction("intruder", sv.ID, ActionStart); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign PowerAction error = %v, want ErrNotFound", err)
	}
}

func TestSuspendBlocksPowerActions(t *testing.T) {
	mgr, _, _ := newTestManager(t, 8192)
	sv, err := mgr.CreateServer("u1", createParams())
	if err != nil {
		t.Fatalf("CreateServer failed: %v", err)
	}

	if err := mgr.Suspend(sv.ID, "admin"); err != nil {
		t.Fatalf("Suspend failed: %v", err)
	}
	if _, err := mgr.PowerAction("u1", sv.ID, ActionStart); !errors.Is(err, ErrServerSuspended) {
		t.Errorf("PowerAction on suspended server error = %v, want ErrServerSuspended", err)
	}
}

func TestDeleteWhileRunningIsBusy(t *testing.T) {
	mgr, st, _ := newTestManager(t, 8192)
	sv, err := mgr.CreateServer("u1", createParams())
	if err != nil {
		t.Fatalf("CreateServer failed: %v", err)
	}
	if err := st.UpdateServerStatus(sv.ID, models.StatusRunning); err != nil {
		t.Fatalf("UpdateServerStatus failed: %v", err)
	}

	if err := mgr.Delete("u1", sv.ID); !errors.Is(err, ErrServerBusy) {
		t.Errorf("Delete while running error = %v, want ErrServerBusy", err)
	}
}

func TestDeleteReleasesCapacity(t *testing.T) {
	mgr, st, gw := newTestManager(t, 8192)
	sv, err := mgr.CreateServer("u1", createParams())
	if err != nil {
		t.Fatalf("CreateServer failed: %v", err)
	}
	if err := st.UpdateServerStatus(sv.ID, models.StatusStopped); err != nil {
		t.Fatalf("UpdateServerStatus failed: %v", err)
	}

	if err := mgr.Delete("u1", sv.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := st.GetServer(sv.ID); err == nil {
		t.Error("server row still present after delete")
	}
	if got := allocatedRAM(t, st, "n1"); got != 0 {
		t.Errorf("ledger allocation after delete = %d, want 0", got)
	}
	if gw.calls[len(gw.calls)-1] != "delete" {
		t.Errorf("last agent call = %s, want delete", gw.calls[len(gw.calls)-1])
	}
}

func TestResizeAdjustsLedgerAndSnapshot(t *testing.T) {
	mgr, st, _ := newTestManager(t, 8192)
	if err := st.CreatePlan(&models.Plan{
		ID: "p2", Name: "large", Price: 10, RAMMB: 2048, CPULimit: 2, DiskGB: 20, Active: true,
	}); err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}

	sv, err := mgr.CreateServer("u1", createParams())
	if err != nil {
		t.Fatalf("CreateServer failed: %v", err)
	}

	resized, err := mgr.Resize("u1", sv.ID, "p2")
	if err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	if resized.RAMMB != 2048 || resized.CPULimit != 2 || resized.DiskGB != 20 {
		t.Errorf("resource snapshot = %d/%d/%d, want 2048/2/20",
			resized.RAMMB, resized.CPULimit, resized.DiskGB)
	}
	if resized.PlanID != "p2" {
		t.Errorf("plan = %s, want p2", resized.PlanID)
	}
	if got := allocatedRAM(t, st, "n1"); got != 2048 {
		t.Errorf("ledger allocation after grow = %d, want 2048", got)
	}

	// Shrinking back releases the delta.
	if _, err := mgr.Resize("u1", sv.ID, "p1"); err != nil {
		t.Fatalf("shrink Resize failed: %v", err)
	}
	if got := allocatedRAM(t, st, "n1"); got != 1024 {
		t.Errorf("ledger allocation after shrink = %d, want 1024", got)
	}
}

func TestApplyStatusSync(t *testing.T) {
	mgr, st, _ := newTestManager(t, 8192)
	sv, err := mgr.CreateServer("u1", createParams())
	if err != nil {
		t.Fatalf("CreateServer failed: %v", err)
	}

	t.Run("unknown credential rejected", func(t *testing.T) {
		err := mgr.ApplyStatusSync("bogus-token", sv.ID, models.StatusRunning, "")
		if !errors.Is(err, ErrUnauthorizedNode) {
			t.Errorf("error = %v, want ErrUnauthorizedNode", err)
		}
	})

	t.Run("cross-node spoofing rejected", func(t *testing.T) {
		if err := st.CreateNode(&models.Node{
			ID: "n2", Address: "10.0.0.2", AgentPort: 8443,
			AgentToken: "node-token-n2", Status: models.NodeOnline,
			TotalRAMMB: 8192, MaxServers: 10,
		}); err != nil {
			t.Fatalf("CreateNode failed: %v", err)
		}

		err := mgr.ApplyStatusSync("node-token-n2", sv.ID, models.StatusRunning, "")
		if !errors.Is(err, ErrUnauthorizedNode) {
			t.Errorf("error = %v, want ErrUnauthorizedNode", err)
		}
	})

	t.Run("invalid status rejected", func(t *testing.T) {
		err := mgr.ApplyStatusSync("node-token-n1", sv.ID, "exploded", "")
		if !errors.Is(err, ErrInvalidStatus) {
			t.Errorf("error = %v, want ErrInvalidStatus", err)
		}
	})

	t.Run("authoritative transition applied", func(t *testing.T) {
		err := mgr.ApplyStatusSync("node-token-n1", sv.ID, models.StatusRunning, "10.10.0.5")
		if err != nil {
			t.Fatalf("ApplyStatusSync failed: %v", err)
		}

		after, err := st.GetServer(sv.ID)
		if err != nil {
			t.Fatalf("GetServer failed: %v", err)
		}
		if after.Status != models.StatusRunning {
			t.Errorf("status = %s, want %s", after.Status, models.StatusRunning)
		}
		if after.LXCAddress != "10.10.0.5" {
			t.Errorf("lxc address = %s, want 10.10.0.5", after.LXCAddress)
		}
	})
}

func TestReasonCodes(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrPlanNotFound, "plan_not_found"},
		{ErrServerLimitReached, "server_limit_reached"},
		{ErrNotFound, "not_found"},
		{ErrServerSuspended, "server_suspended"},
		{ErrServerBusy, "server_busy"},
		{ErrInvalidStatus, "invalid_status"},
		{ErrUnauthorizedNode, "unauthorized"},
		{scheduler.ErrNoCapacity, "no_capacity_available"},
		{scheduler.ErrPortExhausted, "port_allocation_exhausted"},
		{agent.ErrAgentUnreachable, "agent_unreachable"},
		{errors.New("disk gone"), "persistence_error"},
		{fmt.Errorf("wrapped: %w", ErrServerBusy), "server_busy"},
	}

	for _, tt := range tests {
		if got := Reason(tt.err); got != tt.want {
			t.Errorf("Reason(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
