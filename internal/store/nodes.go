package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/emberhost/ember/internal/models"
)

// ErrInsufficientCapacity is returned by ReserveCapacity when the requested
// reservation would push a node's allocation past its total RAM. The create
// flow treats it as "try the next node" rather than overcommitting silently.
var ErrInsufficientCapacity = errors.New("insufficient node capacity")

const nodeColumns = `id, address, agent_port, agent_token, status,
	total_ram_mb, allocated_ram_mb, max_servers, created_at`

func scanNode(row interface{ Scan(...any) error }) (*models.Node, error) {
	var n models.Node
	err := row.Scan(&n.ID, &n.Address, &n.AgentPort, &n.AgentToken, &n.Status,
		&n.TotalRAMMB, &n.AllocatedRAMMB, &n.MaxServers, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// CreateNode registers a fleet node. Administrative operation; the agent
// token must be unique across the fleet since it identifies the node on the
// watchdog sync channel.
func (s *Store) CreateNode(n *models.Node) error {
	query := `INSERT INTO nodes (id, address, agent_port, agent_token, status,
		total_ram_mb, allocated_ram_mb, max_servers, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.conn.Exec(query, n.ID, n.Address, n.AgentPort, n.AgentToken,
		n.Status, n.TotalRAMMB, n.AllocatedRAMMB, n.MaxServers, time.Now())
	return err
}

// GetNode fetches a node by id.
func (s *Store) GetNode(id string) (*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE id = ?`
	return scanNode(s.conn.QueryRow(query, id))
}

// GetNodeByToken resolves a node from its agent credential. This is the
// authentication step for the watchdog sync channel: the credential must
// match exactly one known node.
func (s *Store) GetNodeByToken(token string) (*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE agent_token = ?`
	return scanNode(s.conn.QueryRow(query, token))
}

// ListNodes returns all registered nodes ordered by id.
func (s *Store) ListNodes() ([]models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes ORDER BY id`
	return s.queryNodes(query)
}

// OnlineNodes returns nodes eligible for placement, least-allocated first
// with id as the deterministic tie-break. The node selector walks this list
// in order.
func (s *Store) OnlineNodes() ([]models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes
		WHERE status = ? ORDER BY allocated_ram_mb ASC, id ASC`
	return s.queryNodes(query, models.NodeOnline)
}

func (s *Store) queryNodes(query string, args ...any) ([]models.Node, error) {
	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []models.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *n)
	}
	return nodes, rows.Err()
}

// SetNodeStatus updates a node's availability status.
func (s *Store) SetNodeStatus(id, status string) error {
	res, err := s.conn.Exec(`UPDATE nodes SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ReserveCapacity atomically adds ramMB to a node's allocation, failing with
// ErrInsufficientCapacity when the reservation would exceed the node's total
// RAM. The conditional UPDATE is the store-level atomic increment that keeps
// the ledger consistent under concurrent creates; callers must not reuse an
// earlier snapshot of allocated_ram_mb across this call.
func (s *Store) ReserveCapacity(nodeID string, ramMB int64) error {
	query := `UPDATE nodes SET allocated_ram_mb = allocated_ram_mb + ?
		WHERE id = ? AND allocated_ram_mb + ? <= total_ram_mb`
	res, err := s.conn.Exec(query, ramMB, nodeID, ramMB)
	if err != nil {
		return fmt.Errorf("reserve capacity on node %s: %w", nodeID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInsufficientCapacity
	}
	return nil
}

// ReleaseCapacity atomically subtracts ramMB from a node's allocation,
// clamping at zero. The clamp bounds the damage of any historical
// accounting race: a release can never compound into a negative figure.
func (s *Store) ReleaseCapacity(nodeID string, ramMB int64) error {
	query := `UPDATE nodes SET allocated_ram_mb = MAX(0, allocated_ram_mb - ?)
		WHERE id = ?`
	_, err := s.conn.Exec(query, ramMB, nodeID)
	if err != nil {
		return fmt.Errorf("release capacity on node %s: %w", nodeID, err)
	}
	return nil
}

// ReconcileCapacity recomputes every node's allocated_ram_mb from the live
// server rows. Run at startup to repair the documented under-count window
// when the process crashed between a server insert and its capacity
// reservation. Servers in error status still hold their reservation (they
// are preserved for operator retry), so they count.
func (s *Store) ReconcileCapacity() error {
	query := `UPDATE nodes SET allocated_ram_mb = (
		SELECT COALESCE(SUM(ram_mb), 0) FROM servers WHERE servers.node_id = nodes.id
	)`
	_, err := s.conn.Exec(query)
	if err != nil {
		return fmt.Errorf("reconcile capacity: %w", err)
	}
	return nil
}
