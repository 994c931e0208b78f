// Package store implements the durable state layer for the Ember control
// plane on top of sqlite. It owns the fleet schema (nodes, servers, plans,
// audit log) and the capacity ledger: the authoritative allocated-vs-total
// RAM counter per node that every admission decision reads through.
//
// CONCURRENCY MODEL:
// The serving core handles requests concurrently with no global lock, so the
// store carries the two serialization points the design depends on:
//
//   - The UNIQUE(node_id, port) constraint on servers is the sole arbiter
//     for concurrent port allocation. Callers detect the specific conflict
//     via IsPortConflict and retry with a new candidate.
//   - Capacity reservation and release are single conditional UPDATE
//     statements, so the ledger can never go negative or silently exceed a
//     node's total RAM regardless of interleaving.
//
// The driver is modernc.org/sqlite (pure Go, no cgo), registered under the
// "sqlite" driver name.
package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Store wraps the sqlite connection and exposes typed fleet operations.
type Store struct {
	conn *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and applies
// the schema. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// sqlite serializes writers; a single connection avoids SQLITE_BUSY
	// churn under concurrent request handling.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		address TEXT NOT NULL,
		agent_port INTEGER NOT NULL,
		agent_token TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'online',
		total_ram_mb INTEGER NOT NULL,
		allocated_ram_mb INTEGER NOT NULL DEFAULT 0,
		max_servers INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CHECK (allocated_ram_mb >= 0),
		CHECK (allocated_ram_mb <= total_ram_mb)
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_status ON nodes(status);

	CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		price REAL NOT NULL,
		ram_mb INTEGER NOT NULL,
		cpu_limit INTEGER NOT NULL,
		disk_gb INTEGER NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS servers (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		node_id TEXT NOT NULL,
		plan_id TEXT NOT NULL,
		name TEXT NOT NULL,
		port INTEGER NOT NULL,
		ram_mb INTEGER NOT NULL,
		cpu_limit INTEGER NOT NULL,
		disk_gb INTEGER NOT NULL,
		mc_version TEXT NOT NULL,
		server_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'installing',
		lxc_address TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (node_id, port),
		FOREIGN KEY (node_id) REFERENCES nodes(id),
		FOREIGN KEY (plan_id) REFERENCES plans(id)
	);

	CREATE INDEX IF NOT EXISTS idx_servers_user_id ON servers(user_id);
	CREATE INDEX IF NOT EXISTS idx_servers_node_id ON servers(node_id);
	CREATE INDEX IF NOT EXISTS idx_servers_status ON servers(status);

	CREATE TABLE IF NOT EXISTS server_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		server_id TEXT NOT NULL,
		action TEXT NOT NULL,
		user_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_server_logs_server_id ON server_logs(server_id);
	`

	_, err := s.conn.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// IsPortConflict reports whether err is a violation of the UNIQUE(node_id,
// port) constraint on servers. This is the specific conflict kind the create
// flow's bounded port-retry loop catches; any other persistence failure is
// fatal to the request.
//
// modernc.org/sqlite surfaces constraint violations as string-typed errors,
// so detection matches on the constraint's column list.
func IsPortConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") &&
		strings.Contains(msg, "servers.port")
}
