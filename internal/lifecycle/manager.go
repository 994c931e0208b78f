package lifecycle

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/emberhost/ember/internal/agent"
	"github.com/emberhost/ember/internal/config"
	"github.com/emberhost/ember/internal/logging"
	"github.com/emberhost/ember/internal/metrics"
	"github.com/emberhost/ember/internal/models"
	"github.com/emberhost/ember/internal/scheduler"
	"github.com/emberhost/ember/internal/store"
	"github.com/emberhost/ember/internal/utils"
	"github.com/gorilla/websocket"
)

// Gateway is the slice of the agent client the lifecycle flows drive.
// Defined on the consumer side so tests can substitute a fake agent
// without a listening node.
type Gateway interface {
	CreateServer(req *agent.CreateRequest) error
	StartServer(serverID string) error
	StopServer(serverID string) error
	RestartServer(serverID string) error
	ResizeServer(serverID string, req *agent.ResizeRequest) error
	DeleteServer(serverID string) error

	// Passthrough endpoints relayed verbatim to the caller.
	GetMetrics(serverID string) ([]byte, error)
	GetProperties(serverID string) ([]byte, error)
	PutProperties(serverID string, body []byte) error
}

// GatewayFactory builds a gateway bound to one node. The default factory
// returns the real HTTP agent client.
type GatewayFactory func(node *models.Node) Gateway

// DefaultGatewayFactory returns the production agent client for a node.
func DefaultGatewayFactory(node *models.Node) Gateway {
	return agent.NewClient(node)
}

// CreateParams are the validated inputs to the create flow. Validation of
// shape (name length, port range, enum membership) happens at the API
// boundary; the manager enforces the allocation preconditions.
type CreateParams struct {
	Name       string
	PlanID     string
	MCVersion  string
	ServerType string
	Port       int // 0 means "no preference"
}

// Manager orchestrates server lifecycle against the durable store, the
// placement scheduler, and per-node agent gateways.
type Manager struct {
	store    *store.Store
	selector *scheduler.Selector
	gateway  GatewayFactory
}

// NewManager wires a lifecycle manager. Pass nil gateway to use the real
// agent client.
func NewManager(st *store.Store, gateway GatewayFactory) *Manager {
	if gateway == nil {
		gateway = DefaultGatewayFactory
	}
	return &Manager{
		store:    st,
		selector: scheduler.NewSelector(st),
		gateway:  gateway,
	}
}

// Store exposes the underlying store for read-only handler paths (listing,
// fetching, port probes).
func (m *Manager) Store() *store.Store {
	return m.store
}

// GatewayForServer resolves the owning node of a server and returns a
// gateway bound to it. Used by the metrics/properties proxy handlers.
func (m *Manager) GatewayForServer(sv *models.Server) (Gateway, error) {
	node, err := m.store.GetNode(sv.NodeID)
	if err != nil {
		return nil, fmt.Errorf("resolve node %s: %w", sv.NodeID, err)
	}
	return m.gateway(node), nil
}

// NodeForServer resolves the owning node of a server. The console relay
// needs the node itself to dial the agent-side WebSocket.
func (m *Manager) NodeForServer(sv *models.Server) (*models.Node, error) {
	return m.store.GetNode(sv.NodeID)
}

// CreateServer runs the capacity-aware create flow: resolve plan, enforce
// the per-user ceiling, select a node, allocate a port, insert the row
// (retrying the port race), reserve capacity, and drive the agent's
// provisioning call.
//
// On agent failure the server row and its RAM reservation are deliberately
// left intact with status error, so a later administrative retry does not
// re-race port or capacity allocation.
func (m *Manager) CreateServer(userID string, params CreateParams) (*models.Server, error) {
	plan, err := m.store.GetActivePlan(params.PlanID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("resolve plan: %w", err)
	}

	count, err := m.store.CountActiveServers(userID)
	if err != nil {
		return nil, fmt.Errorf("count servers: %w", err)
	}
	if count >= config.MaxServersPerUser {
		return nil, ErrServerLimitReached
	}

	node, err := m.selector.SelectNode(plan.RAMMB)
	if err != nil {
		return nil, err
	}

	candidate, err := m.selector.AllocatePort(node.ID, params.Port)
	if err != nil {
		return nil, err
	}

	serverID, err := utils.GenerateID()
	if err != nil {
		return nil, fmt.Errorf("generate server id: %w", err)
	}

	mcVersion := params.MCVersion
	if mcVersion == "" {
		mcVersion = config.DefaultMinecraftVersion
	}

	sv := &models.Server{
		ID:         serverID,
		UserID:     userID,
		NodeID:     node.ID,
		PlanID:     plan.ID,
		Name:       params.Name,
		RAMMB:      plan.RAMMB,
		CPULimit:   plan.CPULimit,
		DiskGB:     plan.DiskGB,
		MCVersion:  mcVersion,
		ServerType: params.ServerType,
		Status:     models.StatusInstalling,
	}

	// The insert is the real port arbiter: concurrent creates race the
	// UNIQUE(node_id, port) constraint and the loser lands on the next
	// candidate, bounded to MaxPortRetries attempts.
	finalPort, err := scheduler.RetryPortConflict(candidate, config.MaxPortRetries,
		store.IsPortConflict, func(port int) error {
			sv.Port = port
			return m.store.InsertServer(sv)
		})
	if err != nil {
		if errors.Is(err, scheduler.ErrPortExhausted) {
			return nil, err
		}
		return nil, fmt.Errorf("insert server: %w", err)
	}
	sv.Port = finalPort

	// Reserve RAM only after the row exists, matching the ledger's
	// ownership of the admission decision. A reservation lost to a
	// concurrent create means this node filled up between selection and
	// now; the row is withdrawn rather than overcommitting.
	if err := m.store.ReserveCapacity(node.ID, plan.RAMMB); err != nil {
		if delErr := m.store.DeleteServer(sv.ID); delErr != nil {
			logging.Error("Create: Failed to withdraw server %s after capacity race: %v",
				logging.FormatServerID(sv.ID), delErr)
		}
		if errors.Is(err, store.ErrInsufficientCapacity) {
			return nil, scheduler.ErrNoCapacity
		}
		return nil, fmt.Errorf("reserve capacity: %w", err)
	}

	logging.Info("Create: Server %s placed on node %s port %d (%d MB)",
		logging.FormatServerID(sv.ID), logging.FormatNodeID(node.ID), sv.Port, plan.RAMMB)

	if err := m.gateway(node).CreateServer(&agent.CreateRequest{
		ServerID:   sv.ID,
		Name:       sv.Name,
		Port:       sv.Port,
		RAMMB:      sv.RAMMB,
		CPULimit:   sv.CPULimit,
		DiskGB:     sv.DiskGB,
		MCVersion:  sv.MCVersion,
		ServerType: sv.ServerType,
	}); err != nil {
		// Row and reservation stay for operator inspection/retry.
		metrics.AgentFailures.Inc()
		logging.Error("Create: Agent provisioning failed for server %s: %v",
			logging.FormatServerID(sv.ID), err)
		if updErr := m.store.UpdateServerStatus(sv.ID, models.StatusError); updErr != nil {
			logging.Error("Create: Failed to flag server %s as error: %v",
				logging.FormatServerID(sv.ID), updErr)
		}
		sv.Status = models.StatusError
		return nil, err
	}

	m.audit(sv.ID, "create", userID)
	metrics.ServerCreates.Inc()
	logging.Success("Create: Server %s provisioning on node %s",
		logging.FormatServerID(sv.ID), logging.FormatNodeID(node.ID))
	return sv, nil
}

// Power actions a server may receive.
const (
	ActionStart   = "start"
	ActionStop    = "stop"
	ActionRestart = "restart"
)

// PowerAction validates ownership and lifecycle state, drives the agent's
// action endpoint, and only on a confirmed call applies the optimistic
// starting/stopping transition. Gateway failure leaves stored status
// unchanged - the system never claims a transition the agent did not
// acknowledge.
func (m *Manager) PowerAction(userID, serverID, action string) (*models.Server, error) {
	sv, err := m.ownedServer(userID, serverID)
	if err != nil {
		return nil, err
	}
	if sv.Status == models.StatusSuspended {
		return nil, ErrServerSuspended
	}

	node, err := m.store.GetNode(sv.NodeID)
	if err != nil {
		return nil, fmt.Errorf("resolve node %s: %w", sv.NodeID, err)
	}
	gw := m.gateway(node)

	var next string
	switch action {
	case ActionStart:
		err = gw.StartServer(sv.ID)
		next = models.StatusStarting
	case ActionStop:
		err = gw.StopServer(sv.ID)
		next = models.StatusStopping
	case ActionRestart:
		err = gw.RestartServer(sv.ID)
		next = models.StatusStarting
	default:
		return nil, fmt.Errorf("unknown power action %q", action)
	}
	if err != nil {
		metrics.AgentFailures.Inc()
		return nil, err
	}

	if err := m.store.UpdateServerStatus(sv.ID, next); err != nil {
		return nil, fmt.Errorf("apply %s transition: %w", action, err)
	}
	sv.Status = next

	m.audit(sv.ID, action, userID)
	metrics.PowerActions.Inc()
	logging.Info("Power: Server %s %s confirmed, now %s",
		logging.FormatServerID(sv.ID), action, next)
	return sv, nil
}

// Resize moves a server onto a new active plan: adjust the capacity ledger
// by the RAM delta (headroom-checked on growth), drive the agent's resize
// call, and snapshot the new plan's resources into the row.
//
// Per the committed-state rule, a ledger change that already landed is not
// rolled back when the agent call fails; the server is flagged error for
// operator retry instead.
func (m *Manager) Resize(userID, serverID, planID string) (*models.Server, error) {
	sv, err := m.ownedServer(userID, serverID)
	if err != nil {
		return nil, err
	}
	if sv.Status == models.StatusSuspended {
		return nil, ErrServerSuspended
	}

	plan, err := m.store.GetActivePlan(planID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("resolve plan: %w", err)
	}

	delta := plan.RAMMB - sv.RAMMB
	switch {
	case delta > 0:
		if err := m.store.ReserveCapacity(sv.NodeID, delta); err != nil {
			if errors.Is(err, store.ErrInsufficientCapacity) {
				return nil, scheduler.ErrNoCapacity
			}
			return nil, fmt.Errorf("reserve capacity: %w", err)
		}
	case delta < 0:
		if err := m.store.ReleaseCapacity(sv.NodeID, -delta); err != nil {
			return nil, err
		}
	}

	node, err := m.store.GetNode(sv.NodeID)
	if err != nil {
		return nil, fmt.Errorf("resolve node %s: %w", sv.NodeID, err)
	}
	if err := m.gateway(node).ResizeServer(sv.ID, &agent.ResizeRequest{
		RAMMB:    plan.RAMMB,
		CPULimit: plan.CPULimit,
		DiskGB:   plan.DiskGB,
		PlanName: plan.Name,
	}); err != nil {
		metrics.AgentFailures.Inc()
		logging.Error("Resize: Agent call failed for server %s: %v",
			logging.FormatServerID(sv.ID), err)
		if updErr := m.store.UpdateServerStatus(sv.ID, models.StatusError); updErr != nil {
			logging.Error("Resize: Failed to flag server %s as error: %v",
				logging.FormatServerID(sv.ID), updErr)
		}
		return nil, err
	}

	if err := m.store.UpdateServerPlan(sv.ID, plan); err != nil {
		return nil, fmt.Errorf("snapshot plan: %w", err)
	}

	sv.PlanID = plan.ID
	sv.RAMMB = plan.RAMMB
	sv.CPULimit = plan.CPULimit
	sv.DiskGB = plan.DiskGB

	m.audit(sv.ID, "resize", userID)
	logging.Success("Resize: Server %s now on plan %s", logging.FormatServerID(sv.ID), plan.ID)
	return sv, nil
}

// Delete removes a server that is not running or starting: confirmed agent
// teardown first, then the row is dropped and exactly the server's RAM
// snapshot is released from the owning node's ledger (clamped at zero).
func (m *Manager) Delete(userID, serverID string) error {
	sv, err := m.ownedServer(userID, serverID)
	if err != nil {
		return err
	}
	if sv.Status == models.StatusRunning || sv.Status == models.StatusStarting {
		return ErrServerBusy
	}

	node, err := m.store.GetNode(sv.NodeID)
	if err != nil {
		return fmt.Errorf("resolve node %s: %w", sv.NodeID, err)
	}
	if err := m.gateway(node).DeleteServer(sv.ID); err != nil {
		// Nothing committed yet; the row survives for a later retry.
		metrics.AgentFailures.Inc()
		return err
	}

	if err := m.store.DeleteServer(sv.ID); err != nil {
		return fmt.Errorf("delete server row: %w", err)
	}
	if err := m.store.ReleaseCapacity(sv.NodeID, sv.RAMMB); err != nil {
		logging.Error("Delete: Failed to release %d MB on node %s: %v",
			sv.RAMMB, logging.FormatNodeID(sv.NodeID), err)
	}

	m.audit(sv.ID, "delete", userID)
	logging.Success("Delete: Server %s removed from node %s",
		logging.FormatServerID(sv.ID), logging.FormatNodeID(sv.NodeID))
	return nil
}

// Suspend is the administrative any->suspended transition. It is not
// reachable from user-triggered flows.
func (m *Manager) Suspend(serverID, actorID string) error {
	if _, err := m.store.GetServer(serverID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("fetch server: %w", err)
	}
	if err := m.store.UpdateServerStatus(serverID, models.StatusSuspended); err != nil {
		return fmt.Errorf("suspend server: %w", err)
	}
	m.audit(serverID, "suspend", actorID)
	logging.Info("Suspend: Server %s suspended", logging.FormatServerID(serverID))
	return nil
}

// ApplyStatusSync is the authoritative write path: a node's watchdog,
// identified by its agent credential, reports an observed container state
// change. Validates that the credential matches exactly one node, that the
// server belongs to that node (cross-node spoofing rejected), and that the
// status is in the closed enum set, then applies it directly - this is the
// only channel for installing->running, installing->error and
// stopping->stopped.
func (m *Manager) ApplyStatusSync(agentToken, serverID, status, lxcAddress string) error {
	node, err := m.store.GetNodeByToken(agentToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUnauthorizedNode
		}
		return fmt.Errorf("resolve node credential: %w", err)
	}

	sv, err := m.store.GetServer(serverID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("fetch server: %w", err)
	}
	if sv.NodeID != node.ID {
		logging.Warn("StatusSync: Node %s reported for server %s owned by node %s",
			logging.FormatNodeID(node.ID), logging.FormatServerID(serverID),
			logging.FormatNodeID(sv.NodeID))
		return ErrUnauthorizedNode
	}

	if !models.ValidServerStatuses[status] {
		return ErrInvalidStatus
	}

	if err := m.store.UpdateServerStatusAndAddress(serverID, status, lxcAddress); err != nil {
		return fmt.Errorf("apply watchdog status: %w", err)
	}

	metrics.WatchdogSyncs.Inc()
	logging.Info("StatusSync: Server %s -> %s (node %s)",
		logging.FormatServerID(serverID), status, logging.FormatNodeID(node.ID))
	return nil
}

// GetServer fetches a single server scoped to its owner.
func (m *Manager) GetServer(userID, serverID string) (*models.Server, error) {
	return m.ownedServer(userID, serverID)
}

// ListServers returns all servers owned by the user.
func (m *Manager) ListServers(userID string) ([]models.Server, error) {
	return m.store.ListServersForUser(userID)
}

// DialConsole opens the agent-side console WebSocket for a server owned by
// the user. The caller owns the returned connection and must close it.
func (m *Manager) DialConsole(userID, serverID string) (*websocket.Conn, error) {
	sv, err := m.ownedServer(userID, serverID)
	if err != nil {
		return nil, err
	}
	if sv.Status == models.StatusSuspended {
		return nil, ErrServerSuspended
	}
	node, err := m.store.GetNode(sv.NodeID)
	if err != nil {
		return nil, fmt.Errorf("resolve node %s: %w", sv.NodeID, err)
	}
	return agent.NewClient(node).DialConsole(sv.ID)
}

// ownedServer fetches a server scoped to its owner, folding absence and
// foreign ownership into ErrNotFound.
func (m *Manager) ownedServer(userID, serverID string) (*models.Server, error) {
	sv, err := m.store.GetServerForUser(serverID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch server: %w", err)
	}
	return sv, nil
}

// audit appends to the append-only action log. Audit failures are logged
// but never fail an action that already happened.
func (m *Manager) audit(serverID, action, userID string) {
	if err := m.store.AppendServerLog(serverID, action, userID); err != nil {
		logging.Error("Audit: Failed to log %s for server %s: %v",
			action, logging.FormatServerID(serverID), err)
	}
}
