// Package api provides the HTTP API server for the Ember hosting control
// plane.
//
// This file defines configuration structures and validation logic for the
// REST/WebSocket server that exposes the user-facing hosting surface, the
// node-facing watchdog sync channel, and the administrative fleet surface.
// The configuration system manages network binding parameters and the
// integration points with the durable store, lifecycle manager, identity
// provider, and version manifest cache.
//
// The Config struct serves as a dependency injection container, ensuring
// that the API server has access to all necessary platform services while
// maintaining loose coupling between components. This design enables proper
// initialization ordering and facilitates testing by allowing mock
// implementations of platform services.
package api

import (
	"fmt"

	"github.com/emberhost/ember/internal/auth"
	"github.com/emberhost/ember/internal/config"
	"github.com/emberhost/ember/internal/lifecycle"
	"github.com/emberhost/ember/internal/mcversion"
	"github.com/emberhost/ember/internal/store"
	"github.com/emberhost/ember/internal/validate"
)

// Config holds all parameters required for running the HTTP API server.
type Config struct {
	BindAddr     string            // HTTP server bind address (e.g., "0.0.0.0")
	BindPort     int               // HTTP server bind port
	Store        *store.Store      // Durable fleet state and capacity ledger
	Manager      *lifecycle.Manager
	Verifier     auth.Verifier     // Identity provider for user-facing routes
	AdminToken   string            // Static credential for the administrative surface
	VersionCache *mcversion.Cache // Minecraft version manifest cache
}

// DefaultConfig creates a Config with sensible defaults for local
// development. Platform service references must still be wired before use.
func DefaultConfig() *Config {
	return &Config{
		BindAddr: config.DefaultBindAddr,
		BindPort: config.DefaultBindPort,
	}
}

// Validate checks that the configuration is complete enough to serve
// traffic: valid binding parameters and all service references wired.
func (c *Config) Validate() error {
	if err := validate.ValidateField(c.BindAddr, "required,ip"); err != nil {
		return fmt.Errorf("invalid bind address %q: %w", c.BindAddr, err)
	}
	if err := validate.ValidateField(c.BindPort, "required,min=1,max=65535"); err != nil {
		return fmt.Errorf("invalid bind port %d: %w", c.BindPort, err)
	}
	if c.Store == nil {
		return fmt.Errorf("store reference is required")
	}
	if c.Manager == nil {
		return fmt.Errorf("lifecycle manager reference is required")
	}
	if c.Verifier == nil {
		return fmt.Errorf("identity verifier reference is required")
	}
	if c.AdminToken == "" {
		return fmt.Errorf("admin token is required")
	}
	return nil
}
