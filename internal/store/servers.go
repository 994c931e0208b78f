package store

import (
	"time"

	"github.com/emberhost/ember/internal/models"
)

const serverColumns = `id, user_id, node_id, plan_id, name, port, ram_mb,
	cpu_limit, disk_gb, mc_version, server_type, status, lxc_address, created_at`

func scanServer(row interface{ Scan(...any) error }) (*models.Server, error) {
	var sv models.Server
	err := row.Scan(&sv.ID, &sv.UserID, &sv.NodeID, &sv.PlanID, &sv.Name,
		&sv.Port, &sv.RAMMB, &sv.CPULimit, &sv.DiskGB, &sv.MCVersion,
		&sv.ServerType, &sv.Status, &sv.LXCAddress, &sv.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sv, nil
}

// InsertServer persists a new server row. A violation of the UNIQUE(node_id,
// port) constraint is surfaced unchanged so the caller's bounded retry loop
// can detect it with IsPortConflict and bump the candidate port.
func (s *Store) InsertServer(sv *models.Server) error {
	query := `INSERT INTO servers (id, user_id, node_id, plan_id, name, port,
		ram_mb, cpu_limit, disk_gb, mc_version, server_type, status, lxc_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.conn.Exec(query, sv.ID, sv.UserID, sv.NodeID, sv.PlanID,
		sv.Name, sv.Port, sv.RAMMB, sv.CPULimit, sv.DiskGB, sv.MCVersion,
		sv.ServerType, sv.Status, sv.LXCAddress, time.Now())
	return err
}

// GetServer fetches a server by id. Returns sql.ErrNoRows when absent.
func (s *Store) GetServer(id string) (*models.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM servers WHERE id = ?`
	return scanServer(s.conn.QueryRow(query, id))
}

// GetServerForUser fetches a server by id scoped to its owner. A server
// owned by someone else is indistinguishable from an absent one
// (sql.ErrNoRows), so ownership is never leaked through error shape.
func (s *Store) GetServerForUser(id, userID string) (*models.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM servers WHERE id = ? AND user_id = ?`
	return scanServer(s.conn.QueryRow(query, id, userID))
}

// ListServersForUser returns all servers owned by userID, newest first.
func (s *Store) ListServersForUser(userID string) ([]models.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM servers
		WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := s.conn.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var servers []models.Server
	for rows.Next() {
		sv, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, *sv)
	}
	return servers, rows.Err()
}

// CountActiveServers counts a user's servers excluding those in error
// status, which are excluded from the per-user ceiling so users can retry
// after cleanup.
func (s *Store) CountActiveServers(userID string) (int, error) {
	query := `SELECT COUNT(*) FROM servers WHERE user_id = ? AND status != ?`
	var count int
	err := s.conn.QueryRow(query, userID, models.StatusError).Scan(&count)
	return count, err
}

// CountServersOnNode counts all servers bound to a node, regardless of
// status. Used to honor a node's max_servers ceiling during placement.
func (s *Store) CountServersOnNode(nodeID string) (int, error) {
	var count int
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM servers WHERE node_id = ?`, nodeID).Scan(&count)
	return count, err
}

// PortsInUse returns the set of ports currently bound to servers on a node.
// This read is advisory only; the UNIQUE constraint at insert time is the
// real arbiter.
func (s *Store) PortsInUse(nodeID string) (map[int]bool, error) {
	rows, err := s.conn.Query(`SELECT port FROM servers WHERE node_id = ?`, nodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ports := make(map[int]bool)
	for rows.Next() {
		var port int
		if err := rows.Scan(&port); err != nil {
			return nil, err
		}
		ports[port] = true
	}
	return ports, rows.Err()
}

// PortInUseAnywhere reports whether any server on any node currently binds
// the port. Backs the client-side pre-validation probe.
func (s *Store) PortInUseAnywhere(port int) (bool, error) {
	var count int
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM servers WHERE port = ?`, port).Scan(&count)
	return count > 0, err
}

// UpdateServerStatus sets a server's lifecycle status.
func (s *Store) UpdateServerStatus(id, status string) error {
	_, err := s.conn.Exec(`UPDATE servers SET status = ? WHERE id = ?`, status, id)
	return err
}

// UpdateServerStatusAndAddress applies a watchdog-reported status along with
// the observed container-internal address when the agent includes one.
func (s *Store) UpdateServerStatusAndAddress(id, status, lxcAddress string) error {
	if lxcAddress == "" {
		return s.UpdateServerStatus(id, status)
	}
	_, err := s.conn.Exec(`UPDATE servers SET status = ?, lxc_address = ? WHERE id = ?`,
		status, lxcAddress, id)
	return err
}

// UpdateServerPlan snapshots a new plan's resources into the server row
// after a resize. The plan reference and the copied resource fields change
// together so later plan edits never alter the provisioned server.
func (s *Store) UpdateServerPlan(id string, plan *models.Plan) error {
	query := `UPDATE servers SET plan_id = ?, ram_mb = ?, cpu_limit = ?, disk_gb = ?
		WHERE id = ?`
	_, err := s.conn.Exec(query, plan.ID, plan.RAMMB, plan.CPULimit, plan.DiskGB, id)
	return err
}

// DeleteServer removes a server row. Lifecycle-state validation (no deletes
// while running or starting) happens in the lifecycle manager before this
// is called.
func (s *Store) DeleteServer(id string) error {
	_, err := s.conn.Exec(`DELETE FROM servers WHERE id = ?`, id)
	return err
}
