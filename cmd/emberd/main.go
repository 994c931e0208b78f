// Package main implements the Ember daemon (emberd).
// Ember is a game-server hosting control plane: it tracks a fleet of nodes,
// places new servers against a capacity ledger, allocates game ports, and
// drives per-node agents that provision and manage the actual containers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/emberhost/ember/internal/api"
	"github.com/emberhost/ember/internal/auth"
	"github.com/emberhost/ember/internal/config"
	"github.com/emberhost/ember/internal/lifecycle"
	"github.com/emberhost/ember/internal/logging"
	"github.com/emberhost/ember/internal/mcversion"
	"github.com/emberhost/ember/internal/store"
	"github.com/emberhost/ember/internal/validate"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0-dev" // Version information

	DefaultBind = "0.0.0.0:8090" // Default bind address
)

// Global configuration
var daemonConfig struct {
	BindAddr   string   // Network address to bind to
	BindPort   int      // Network port to bind to
	DataDir    string   // Directory holding the sqlite database
	LogLevel   string   // Log level: DEBUG, INFO, WARN, ERROR
	AdminToken string   // Static credential for the administrative surface
	UserTokens []string // token=userID pairs for the static identity provider
}

// Root command
var rootCmd = &cobra.Command{
	Use:   "emberd",
	Short: "Ember game-server hosting control plane daemon",
	Long: `Ember daemon (emberd) is the control plane for a game-server hosting fleet.

It schedules new servers onto nodes with spare capacity, allocates game
ports, keeps the capacity ledger consistent, and drives the per-node agents
that provision and manage the actual game-server containers.`,
	Version: Version,
	Example: `  # Start the control plane on the default port
  emberd --admin-token=$EMBER_ADMIN_TOKEN

  # Custom bind address and data directory
  emberd --bind=127.0.0.1:9000 --data-dir=/var/lib/ember --admin-token=$EMBER_ADMIN_TOKEN

  # Static user credentials for development
  emberd --admin-token=secret --user-token=devtoken=user-1 --user-token=othertoken=user-2`,
	PreRunE: validateConfig,
	RunE:    runDaemon,
}

func init() {
	// Network flags
	rootCmd.Flags().StringVar(&daemonConfig.BindAddr, "bind", DefaultBind,
		"Address and port to bind to (e.g., 0.0.0.0:8090)")

	// Storage flags
	rootCmd.Flags().StringVar(&daemonConfig.DataDir, "data-dir", config.DefaultDataDir,
		"Directory holding the sqlite database")

	// Credential flags
	rootCmd.Flags().StringVar(&daemonConfig.AdminToken, "admin-token", "",
		"Static bearer credential for the administrative surface (or EMBER_ADMIN_TOKEN)")
	rootCmd.Flags().StringSliceVar(&daemonConfig.UserTokens, "user-token", nil,
		"Static user credential as token=userID; repeatable (development only)")

	// Operational flags
	rootCmd.Flags().StringVar(&daemonConfig.LogLevel, "log-level", config.DefaultLogLevel,
		"Log level: DEBUG, INFO, WARN, ERROR")
}

// Validates configuration before running
func validateConfig(cmd *cobra.Command, args []string) error {
	netAddr, err := validate.ParseBindAddress(daemonConfig.BindAddr)
	if err != nil {
		return fmt.Errorf("invalid bind address: %w", err)
	}

	// Daemon requires non-zero ports (port 0 would let OS choose)
	if err := validate.ValidateField(netAddr.Port, "required,min=1,max=65535"); err != nil {
		return fmt.Errorf("daemon requires specific port (not 0): %w", err)
	}

	daemonConfig.BindAddr = netAddr.Host
	daemonConfig.BindPort = netAddr.Port

	if err := logging.ValidateLogLevel(daemonConfig.LogLevel); err != nil {
		return err
	}

	if daemonConfig.AdminToken == "" {
		daemonConfig.AdminToken = os.Getenv("EMBER_ADMIN_TOKEN")
	}
	if daemonConfig.AdminToken == "" {
		return fmt.Errorf("admin token is required (--admin-token or EMBER_ADMIN_TOKEN)")
	}

	for _, pair := range daemonConfig.UserTokens {
		if !strings.Contains(pair, "=") {
			return fmt.Errorf("invalid user token %q: expected token=userID", pair)
		}
	}

	return nil
}

// parseUserTokens converts the token=userID flag pairs into the map the
// static identity provider consumes.
func parseUserTokens(pairs []string) map[string]string {
	tokens := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		token, userID, _ := strings.Cut(pair, "=")
		tokens[token] = userID
	}
	return tokens
}

// Runs the daemon with graceful shutdown handling
func runDaemon(cmd *cobra.Command, args []string) error {
	logging.SetLevel(daemonConfig.LogLevel)

	logging.Info("Starting Ember daemon v%s", Version)
	logging.Info("Binding to %s:%d", daemonConfig.BindAddr, daemonConfig.BindPort)

	if err := os.MkdirAll(daemonConfig.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	st, err := store.Open(filepath.Join(daemonConfig.DataDir, "ember.db"))
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	// Recompute the capacity ledger from the server table before serving:
	// a crash between a row insert and its reservation (or the reverse)
	// leaves the ledger drifted, and startup is the reconciliation point.
	if err := st.ReconcileCapacity(); err != nil {
		return fmt.Errorf("failed to reconcile capacity ledger: %w", err)
	}
	logging.Info("Capacity ledger reconciled")

	manager := lifecycle.NewManager(st, nil)
	verifier := auth.NewStaticVerifier(parseUserTokens(daemonConfig.UserTokens))
	versionCache := mcversion.NewCache("", 0)

	apiConfig := api.DefaultConfig()
	apiConfig.BindAddr = daemonConfig.BindAddr
	apiConfig.BindPort = daemonConfig.BindPort
	apiConfig.Store = st
	apiConfig.Manager = manager
	apiConfig.Verifier = verifier
	apiConfig.AdminToken = daemonConfig.AdminToken
	apiConfig.VersionCache = versionCache
	if err := apiConfig.Validate(); err != nil {
		return fmt.Errorf("invalid API configuration: %w", err)
	}

	server := api.NewServer(apiConfig)
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logging.Success("Ember daemon started successfully")
	logging.Info("Daemon running... Press Ctrl+C to shutdown")

	sig := <-sigCh
	logging.Info("Received signal: %v", sig)

	// Graceful shutdown
	logging.Info("Initiating graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logging.Error("Error shutting down API server: %v", err)
	}

	logging.Success("Ember daemon shutdown completed")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
