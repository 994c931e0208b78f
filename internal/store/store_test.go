package store

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/emberhost/ember/internal/models"
)

// openTestStore returns a fresh in-memory store.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testNode(id string, totalRAM int64) *models.Node {
	return &models.Node{
		ID:         id,
		Address:    "10.0.0.1",
		AgentPort:  8443,
		AgentToken: "agent-token-" + id,
		Status:     models.NodeOnline,
		TotalRAMMB: totalRAM,
		MaxServers: 10,
	}
}

func testServer(id, userID, nodeID string, port int) *models.Server {
	return &models.Server{
		ID:         id,
		UserID:     userID,
		NodeID:     nodeID,
		PlanID:     "plan-1",
		Name:       "test server",
		Port:       port,
		RAMMB:      1024,
		CPULimit:   1,
		DiskGB:     10,
		MCVersion:  "1.21.4",
		ServerType: models.ServerTypeVanilla,
		Status:     models.StatusInstalling,
	}
}

func TestInsertServerPortConflict(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateNode(testNode("n1", 8192)); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	if err := s.CreateNode(testNode("n2", 8192)); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}

	if err := s.InsertServer(testServer("s1", "u1", "n1", 25565)); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	// Same port on the same node must violate the uniqueness constraint
	// and be recognized as the retryable conflict kind.
	err := s.InsertServer(testServer("s2", "u2", "n1", 25565))
	if err == nil {
		t.Fatal("duplicate (node, port) insert succeeded, want conflict")
	}
	if !IsPortConflict(err) {
		t.Errorf("IsPortConflict(%v) = false, want true", err)
	}

	// Same port on a different node is fine.
	if err := s.InsertServer(testServer("s3", "u1", "n2", 25565)); err != nil {
		t.Errorf("same port on different node failed: %v", err)
	}
}

func TestIsPortConflictOtherErrors(t *testing.T) {
	if IsPortConflict(nil) {
		t.Error("IsPortConflict(nil) = true, want false")
	}
	if IsPortConflict(errors.New("disk I/O error")) {
		t.Error("IsPortConflict(random error) = true, want false")
	}

	// A different uniqueness violation (agent token) must not be
	// mistaken for a port race.
	s := openTestStore(t)
	if err := s.CreateNode(testNode("n1", 8192)); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	dup := testNode("n2", 8192)
	dup.AgentToken = "agent-token-n1"
	err := s.CreateNode(dup)
	if err == nil {
		t.Fatal("duplicate agent token insert succeeded, want conflict")
	}
	if IsPortConflict(err) {
		t.Errorf("IsPortConflict(token conflict) = true, want false")
	}
}

func TestReserveCapacity(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateNode(testNode("n1", 4096)); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}

	if err := s.ReserveCapacity("n1", 3072); err != nil {
		t.Fatalf("ReserveCapacity(3072) failed: %v", err)
	}

	// Exceeding the remaining headroom must fail without changing the ledger.
	if err := s.ReserveCapacity("n1", 2048); !errors.Is(err, ErrInsufficientCapacity) {
		t.Fatalf("ReserveCapacity over headroom = %v, want ErrInsufficientCapacity", err)
	}

	node, err := s.GetNode("n1")
	if err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}
	if node.AllocatedRAMMB != 3072 {
		t.Errorf("allocated = %d, want 3072", node.AllocatedRAMMB)
	}

	// An exact fit is admitted.
	if err := s.ReserveCapacity("n1", 1024); err != nil {
		t.Errorf("exact-fit reservation failed: %v", err)
	}
}

func TestReleaseCapacityClampsAtZero(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateNode(testNode("n1", 4096)); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	if err := s.ReserveCapacity("n1", 1024); err != nil {
		t.Fatalf("ReserveCapacity failed: %v", err)
	}

	// Releasing more than allocated clamps to zero instead of going
	// negative.
	if err := s.ReleaseCapacity("n1", 4096); err != nil {
		t.Fatalf("ReleaseCapacity failed: %v", err)
	}

	node, err := s.GetNode("n1")
	if err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}
	if node.AllocatedRAMMB != 0 {
		t.Errorf("allocated = %d, want 0", node.AllocatedRAMMB)
	}
}

func TestReconcileCapacity(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateNode(testNode("n1", 8192)); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}

	// Two servers worth 2048 MB total, but a drifted ledger claiming 512.
	if err := s.InsertServer(testServer("s1", "u1", "n1", 25565)); err != nil {
		t.Fatalf("InsertServer failed: %v", err)
	}
	if err := s.InsertServer(testServer("s2", "u1", "n1", 25566)); err != nil {
		t.Fatalf("InsertServer failed: %v", err)
	}
	if err := s.ReserveCapacity("n1", 512); err != nil {
		t.Fatalf("ReserveCapacity failed: %v", err)
	}

	if err := s.ReconcileCapacity(); err != nil {
		t.Fatalf("ReconcileCapacity failed: %v", err)
	}

	node, err := s.GetNode("n1")
	if err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}
	if node.AllocatedRAMMB != 2048 {
		t.Errorf("allocated after reconcile = %d, want 2048", node.AllocatedRAMMB)
	}
}

func TestGetServerForUserOwnership(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateNode(testNode("n1", 8192)); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	if err := s.InsertServer(testServer("s1", "u1", "n1", 25565)); err != nil {
		t.Fatalf("InsertServer failed: %v", err)
	}

	if _, err := s.GetServerForUser("s1", "u1"); err != nil {
		t.Fatalf("owner fetch failed: %v", err)
	}

	// Foreign ownership and absence both come back as sql.ErrNoRows.
	if _, err := s.GetServerForUser("s1", "u2"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("foreign fetch error = %v, want sql.ErrNoRows", err)
	}
	if _, err := s.GetServerForUser("missing", "u1"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("absent fetch error = %v, want sql.ErrNoRows", err)
	}
}

func TestCountActiveServersExcludesError(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateNode(testNode("n1", 8192)); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}

	for i, status := range []string{
		models.StatusRunning, models.StatusStopped, models.StatusError,
	} {
		sv := testServer("s"+string(rune('1'+i)), "u1", "n1", 25565+i)
		sv.Status = status
		if err := s.InsertServer(sv); err != nil {
			t.Fatalf("InsertServer failed: %v", err)
		}
	}

	count, err := s.CountActiveServers("u1")
	if err != nil {
		t.Fatalf("CountActiveServers failed: %v", err)
	}
	if count != 2 {
		t.Errorf("CountActiveServers = %d, want 2 (error rows excluded)", count)
	}
}

func TestGetActivePlan(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreatePlan(&models.Plan{
		ID: "p1", Name: "small", Price: 5, RAMMB: 1024, CPULimit: 1, DiskGB: 10, Active: true,
	}); err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}
	if err := s.CreatePlan(&models.Plan{
		ID: "p2", Name: "retired", Price: 5, RAMMB: 1024, CPULimit: 1, DiskGB: 10, Active: false,
	}); err != nil {
		t.Fatalf("CreatePlan failed: %v", err)
	}

	if _, err := s.GetActivePlan("p1"); err != nil {
		t.Fatalf("active plan fetch failed: %v", err)
	}

	// Inactive and missing plans are indistinguishable.
	if _, err := s.GetActivePlan("p2"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("inactive plan error = %v, want sql.ErrNoRows", err)
	}
	if _, err := s.GetActivePlan("missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("missing plan error = %v, want sql.ErrNoRows", err)
	}
}

func TestOnlineNodesOrdering(t *testing.T) {
	s := openTestStore(t)
	for _, n := range []*models.Node{
		testNode("busy", 8192), testNode("idle", 8192), testNode("down", 8192),
	} {
		if err := s.CreateNode(n); err != nil {
			t.Fatalf("CreateNode failed: %v", err)
		}
	}
	if err := s.ReserveCapacity("busy", 4096); err != nil {
		t.Fatalf("ReserveCapacity failed: %v", err)
	}
	if err := s.SetNodeStatus("down", models.NodeOffline); err != nil {
		t.Fatalf("SetNodeStatus failed: %v", err)
	}

	nodes, err := s.OnlineNodes()
	if err != nil {
		t.Fatalf("OnlineNodes failed: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("OnlineNodes count = %d, want 2", len(nodes))
	}
	if nodes[0].ID != "idle" || nodes[1].ID != "busy" {
		t.Errorf("OnlineNodes order = [%s %s], want [idle busy]", nodes[0].ID, nodes[1].ID)
	}
}

func TestPortInUseAnywhere(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateNode(testNode("n1", 8192)); err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	if err := s.InsertServer(testServer("s1", "u1", "n1", 25565)); err != nil {
		t.Fatalf("InsertServer failed: %v", err)
	}

	inUse, err := s.PortInUseAnywhere(25565)
	if err != nil {
		t.Fatalf("PortInUseAnywhere failed: %v", err)
	}
	if !inUse {
		t.Error("PortInUseAnywhere(25565) = false, want true")
	}

	inUse, err = s.PortInUseAnywhere(30000)
	if err != nil {
		t.Fatalf("PortInUseAnywhere failed: %v", err)
	}
	if inUse {
		t.Error("PortInUseAnywhere(30000) = true, want false")
	}
}
