package store

import "time"

// AppendServerLog records an audit entry for a lifecycle action. The audit
// log is append-only and write-only from the core's perspective; failures
// here are reported but never fail the action that already happened.
func (s *Store) AppendServerLog(serverID, action, userID string) error {
	query := `INSERT INTO server_logs (server_id, action, user_id, created_at)
		VALUES (?, ?, ?, ?)`
	_, err := s.conn.Exec(query, serverID, action, userID, time.Now())
	return err
}
