// Package models defines the persistent data model for the Ember hosting
// platform: fleet nodes, provisioned game servers, billing plans, and the
// append-only audit log.
//
// The types in this package mirror the sqlite schema in internal/store and
// carry JSON tags for direct use in API responses. Resource fields on Server
// are snapshots copied from the plan at creation/resize time, not live
// references, so later plan edits never retroactively change provisioned
// servers.
package models

import "time"

// Node statuses. Only online nodes are eligible for placement.
const (
	NodeOnline  = "online"
	NodeOffline = "offline"
)

// Server lifecycle statuses. Initial state on create is StatusInstalling.
// The transitions installing->running, installing->error and
// stopping->stopped are reserved for the watchdog sync channel; power
// actions may only claim the optimistic starting/stopping states after a
// confirmed agent call.
const (
	StatusInstalling = "installing"
	StatusStarting   = "starting"
	StatusRunning    = "running"
	StatusStopping   = "stopping"
	StatusStopped    = "stopped"
	StatusError      = "error"
	StatusSuspended  = "suspended"
)

// ValidServerStatuses is the closed set of statuses a watchdog callback may
// report. Anything outside this set is rejected at the boundary.
var ValidServerStatuses = map[string]bool{
	StatusRunning:   true,
	StatusStopped:   true,
	StatusStarting:  true,
	StatusStopping:  true,
	StatusError:     true,
	StatusSuspended: true,
}

// ServerTypeVanilla is the only server type currently provisioned. The field
// is a closed enum so new types can be added without schema changes.
const ServerTypeVanilla = "vanilla"

// ValidServerTypes is the closed set of accepted server types.
var ValidServerTypes = map[string]bool{
	ServerTypeVanilla: true,
}

// Node represents a physical or virtual host running a local agent that
// manages game-server containers. The allocated/total RAM pair is the
// capacity ledger: allocated_ram_mb is mutated only through the store's
// reserve/release operations and is the source of truth for admission
// decisions.
type Node struct {
	ID             string    `json:"id"`
	Address        string    `json:"address"`    // private network address of the agent host
	AgentPort      int       `json:"agent_port"` // port the local agent listens on
	AgentToken     string    `json:"-"`          // node-scoped bearer credential, never serialized or logged
	Status         string    `json:"status"`
	TotalRAMMB     int64     `json:"total_ram_mb"`
	AllocatedRAMMB int64     `json:"allocated_ram_mb"`
	MaxServers     int       `json:"max_servers"`
	CreatedAt      time.Time `json:"created_at"`
}

// Server represents a single provisioned game-server instance, bound to
// exactly one node and one port. Port is unique among all servers on the
// owning node; the store enforces this with a UNIQUE(node_id, port)
// constraint which is the sole serialization point for concurrent creates.
type Server struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	NodeID     string    `json:"node_id"`
	PlanID     string    `json:"plan_id"`
	Name       string    `json:"name"`
	Port       int       `json:"port"`
	RAMMB      int64     `json:"ram_mb"`    // snapshot from plan
	CPULimit   int       `json:"cpu_limit"` // snapshot from plan
	DiskGB     int       `json:"disk_gb"`   // snapshot from plan
	MCVersion  string    `json:"mc_version"`
	ServerType string    `json:"server_type"`
	Status     string    `json:"status"`
	LXCAddress string    `json:"lxc_address,omitempty"` // container-internal address observed by the watchdog
	CreatedAt  time.Time `json:"created_at"`
}

// Plan is an immutable catalog row describing purchasable resource bundles.
// Servers reference plans by id but snapshot the resource fields, so edits
// to a plan never change already-provisioned servers.
type Plan struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	RAMMB    int64   `json:"ram_mb"`
	CPULimit int     `json:"cpu_limit"`
	DiskGB   int     `json:"disk_gb"`
	Active   bool    `json:"active"`
}

// ServerLog is an append-only audit entry recording who triggered which
// lifecycle action on which server. Write-only; never mutated or read by
// the core.
type ServerLog struct {
	ID        int64     `json:"id"`
	ServerID  string    `json:"server_id"`
	Action    string    `json:"action"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
