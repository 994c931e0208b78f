// Package logging provides ID formatting utilities for consistent ID display
// across all logging contexts in the Ember hosting platform.
//
// Implements intelligent ID truncation that preserves full IDs in debug
// contexts while providing user-friendly short IDs in info/warning contexts,
// improving log readability without sacrificing traceability when detailed
// debugging is needed.
//
// USAGE PATTERNS:
//   - FormatServerID: Format game-server IDs with context-aware truncation
//   - FormatNodeID: Format node IDs with context-aware truncation
//   - FormatUserID: Format user IDs with context-aware truncation
//   - FormatID: Generic ID formatting for any resource type
package logging

import (
	"github.com/charmbracelet/log"
	"github.com/emberhost/ember/internal/utils"
)

// FormatID formats an ID for logging based on the current log level context.
// Returns the full ID for debug logging to ensure complete traceability during
// troubleshooting, while returning a truncated 12-character ID for other log
// levels to improve readability in operational logs.
func FormatID(id string) string {
	// If debug level is enabled, show full IDs for complete traceability
	// Use stderr logger since debug messages go to stderr
	if stderrLogger.GetLevel() <= log.DebugLevel {
		return id
	}

	// For info/warn/error/success contexts, use truncated IDs for readability
	return utils.TruncateIDSafe(id)
}

// FormatServerID formats a game-server ID for logging with context-aware truncation.
//
// Usage: logging.Info("Provisioning server %s", logging.FormatServerID(serverID))
func FormatServerID(serverID string) string {
	return FormatID(serverID)
}

// FormatNodeID formats a node ID for logging with context-aware truncation.
//
// Usage: logging.Info("Selected node %s", logging.FormatNodeID(nodeID))
func FormatNodeID(nodeID string) string {
	return FormatID(nodeID)
}

// FormatUserID formats a user ID for logging with context-aware truncation.
//
// Usage: logging.Info("Create request from user %s", logging.FormatUserID(userID))
func FormatUserID(userID string) string {
	return FormatID(userID)
}
