// Package validate provides input validation utilities for the Ember control
// plane, ensuring data integrity across API requests and configuration
// management.
//
// Implements validation rules for server names, ports, network addresses, and
// configuration parameters. Prevents malformed data from reaching allocation
// logic or the durable store.
//
// VALIDATION COVERAGE:
//   - Server Names: Length and character rules for user-supplied names
//   - Ports: Dynamic-range port validation for game-server bindings
//   - Network Addresses: IP and "host:port" validation for node registration
//   - Configuration: Parameter validation for daemon settings
//
// Used throughout CLI tools, the API, and configuration processing to ensure
// consistent input validation across all system entry points.
package validate

import (
	"fmt"
	"net"
	"regexp"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Global validator instance using built-in validations
var validate = validator.New()

// Server name length bounds for user-supplied names.
const (
	ServerNameMinLen = 3
	ServerNameMaxLen = 32
)

// serverNameRegex restricts names to characters safe for file paths, DNS
// labels, and container names on the agent side.
var serverNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9 _-]*$`)

// ServerName validates a user-supplied game-server name against platform
// naming requirements: 3-32 characters, alphanumeric plus space, hyphen and
// underscore, starting with an alphanumeric.
//
// Necessary because the name is forwarded to node agents where it becomes
// part of container and filesystem identifiers.
func ServerName(name string) error {
	if len(name) < ServerNameMinLen || len(name) > ServerNameMaxLen {
		return fmt.Errorf("server name must be %d-%d characters, got %d",
			ServerNameMinLen, ServerNameMaxLen, len(name))
	}
	if !serverNameRegex.MatchString(name) {
		return fmt.Errorf("server name %q must start with a letter or digit and contain only letters, digits, spaces, hyphens and underscores", name)
	}
	return nil
}

// GamePort validates a port for a game-server binding. The dynamic range
// [1024, 65535] keeps user servers off privileged ports on the node.
func GamePort(port int) error {
	if port < 1024 || port > 65535 {
		return fmt.Errorf("port %d outside allowed range 1024-65535", port)
	}
	return nil
}

// NetworkAddress represents a validated network address with host and port
// components for agent endpoints. Uses struct tags for automatic validation
// via the go-playground/validator library.
type NetworkAddress struct {
	Host string `validate:"required,ip"`
	Port int    `validate:"required,min=1,max=65535"`
}

// String returns the network address in standard "host:port" format.
func (na NetworkAddress) String() string {
	return fmt.Sprintf("%s:%d", na.Host, na.Port)
}

// ParseBindAddress parses and validates a "host:port" address string for
// API binding and agent endpoints. Provides format checking, IP address
// validation, and port range verification.
//
// Returns a validated NetworkAddress structure or detailed error information
// for debugging network configuration issues.
func ParseBindAddress(addr string) (*NetworkAddress, error) {
	if addr == "" {
		return nil, fmt.Errorf("address cannot be empty")
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address format '%s': %w", addr, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port '%s': %w", portStr, err)
	}

	netAddr := &NetworkAddress{
		Host: host,
		Port: port,
	}

	if err := validate.Struct(netAddr); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return netAddr, nil
}

// ValidateField validates individual values against specified validation rules
// using the go-playground/validator library. Provides flexible validation for
// single fields without requiring struct definitions.
//
// Example: ValidateField("192.168.1.1", "required,ip")
func ValidateField(value interface{}, tag string) error {
	return validate.Var(value, tag)
}

// ValidateRequiredString validates that a string field is not empty.
func ValidateRequiredString(value, fieldName string) error {
	if err := ValidateField(value, "required"); err != nil {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	return nil
}
