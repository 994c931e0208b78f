// Package config provides common default configuration values shared across
// Ember components (HTTP API, agent gateway, store). This centralizes
// configuration management and ensures consistency across the control plane.
package config

import "time"

const (
	// DefaultBindAddr is the default bind address for the HTTP API
	// Using 0.0.0.0 allows binding to all available network interfaces
	DefaultBindAddr = "0.0.0.0"

	// DefaultBindPort is the default port for the HTTP API
	DefaultBindPort = 8090

	// DefaultLogLevel is the default log level for all components
	// INFO provides good balance of visibility without verbose debug output
	DefaultLogLevel = "INFO"

	// DefaultDataDir is the default directory for the sqlite database
	DefaultDataDir = "./data"

	// DefaultAgentTimeout bounds every outbound call to a node agent.
	// Exceeding it is treated identically to a connection failure.
	DefaultAgentTimeout = 15 * time.Second

	// DefaultBasePort is the first candidate when probing for a free
	// game-server port on a node (the conventional Minecraft port).
	DefaultBasePort = 25565

	// DefaultMinecraftVersion is assigned when a create request omits
	// an explicit version.
	DefaultMinecraftVersion = "1.21.4"

	// MaxServersPerUser caps non-error servers per user. Servers in error
	// status are excluded from the count so users can retry after cleanup.
	MaxServersPerUser = 5

	// MaxPortRetries bounds the port-collision retry loop in the create
	// flow. Exceeding it fails the request rather than looping unboundedly.
	MaxPortRetries = 10

	// CreateRatePerHour throttles server creation per caller identity.
	CreateRatePerHour = 5

	// PowerRatePerMinute throttles power actions per caller identity.
	PowerRatePerMinute = 20
)
