package api

import (
	"testing"

	"github.com/emberhost/ember/internal/auth"
	"github.com/emberhost/ember/internal/lifecycle"
	"github.com/emberhost/ember/internal/store"
)

// validTestConfig returns a fully-wired configuration for mutation tests.
func validTestConfig(t *testing.T) *Config {
	t.Helper()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := DefaultConfig()
	cfg.Store = st
	cfg.Manager = lifecycle.NewManager(st, nil)
	cfg.Verifier = auth.NewStaticVerifier(nil)
	cfg.AdminToken = "admin-token"
	return cfg
}

func TestConfigValidate(t *testing.T) {
	if err := validTestConfig(t).Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad bind address", func(c *Config) { c.BindAddr = "not-an-ip" }},
		{"zero port", func(c *Config) { c.BindPort = 0 }},
		{"port too large", func(c *Config) { c.BindPort = 70000 }},
		{"missing store", func(c *Config) { c.Store = nil }},
		{"missing manager", func(c *Config) { c.Manager = nil }},
		{"missing verifier", func(c *Config) { c.Verifier = nil }},
		{"missing admin token", func(c *Config) { c.AdminToken = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig(t)
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.BindAddr == "" || cfg.BindPort == 0 {
		t.Errorf("DefaultConfig() binding = %s:%d, want non-empty defaults",
			cfg.BindAddr, cfg.BindPort)
	}
}
