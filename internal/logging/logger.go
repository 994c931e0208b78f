// Package logging provides structured, colorful logging utilities for the Ember
// control plane, ensuring consistent log formatting and visual clarity across
// all hosting platform components.
//
// Implements a unified logging interface that standardizes log output from the
// daemon, CLI tools, and integrated third-party libraries (Gin, Resty). Uses
// color-coded log levels and consistent timestamp formatting to improve
// operational visibility and debugging efficiency.
//
// LOGGING FEATURES:
//   - Color-coded levels: DEBUG (purple), INFO (blue), WARN (yellow), ERROR (red), SUCCESS (green)
//   - Log interception: LevelWriter adapts io.Writer-based library logs into leveled output
//   - Flexible output: Configurable log levels and output suppression for CLI tools
//   - File redirection: Routes all levels into a single log file for production runs
//
// Used throughout the control plane for daemon operations, CLI commands, and
// all internal components to maintain consistent logging across the platform.
// Agent credentials and user tokens must never be passed to these functions.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

var (
	// Logger for INFO/SUCCESS messages (stdout by default, follows Unix conventions)
	stdoutLogger = log.NewWithOptions(os.Stdout, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})

	// Logger for WARN/ERROR/DEBUG messages (stderr by default, follows Unix conventions)
	stderrLogger = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})

	// Track if logging has been explicitly configured by CLI tools
	cliConfigured = false

	// Track if we're using a single log file (overrides stdout/stderr separation)
	usingLogFile  = false
	logFileHandle io.Writer
)

// setupCustomStyles creates custom color styling for log levels with professional
// appearance. Configures distinct colors for each log level to improve visual
// parsing of log output during development and operational monitoring.
//
// Provides carefully chosen colors that work well in both light and dark terminals
// while maintaining readability and professional appearance for production logging.
func setupCustomStyles() *log.Styles {
	styles := log.DefaultStyles()

	// DEBUG: light purple
	styles.Levels[log.DebugLevel] = lipgloss.NewStyle().
		SetString("DEBUG").
		Foreground(lipgloss.Color("#7F6DFF"))

	// INFO: light blue
	styles.Levels[log.InfoLevel] = lipgloss.NewStyle().
		SetString("INFO").
		Foreground(lipgloss.Color("#42E7FF"))

	// WARN: light yellow
	styles.Levels[log.WarnLevel] = lipgloss.NewStyle().
		SetString("WARN").
		Foreground(lipgloss.Color("#FFE763"))

	// ERROR: light red/pink
	styles.Levels[log.ErrorLevel] = lipgloss.NewStyle().
		SetString("ERROR").
		Foreground(lipgloss.Color("#FF4473"))

	return styles
}

// init sets up custom color styling on package initialization for consistent
// visual formatting across all control plane logging output.
func init() {
	styles := setupCustomStyles()
	stdoutLogger.SetStyles(styles)
	stderrLogger.SetStyles(styles)
}

// getStdoutLoggerOutput returns the current output destination for the stdout
// logger. Used by Success to respect log file redirection.
func getStdoutLoggerOutput() io.Writer {
	if usingLogFile {
		return logFileHandle
	}
	return os.Stdout
}

// Info logs informational messages for platform operations and status updates.
// Uses stdout following Unix conventions (or log file when specified).
func Info(format string, v ...any) {
	stdoutLogger.Info(fmt.Sprintf(format, v...))
}

// Warn logs warning messages for non-critical issues requiring attention.
// Uses stderr following Unix conventions (or log file when specified).
func Warn(format string, v ...any) {
	stderrLogger.Warn(fmt.Sprintf(format, v...))
}

// Error logs error messages for failures and critical issues in platform operations.
// Uses stderr following Unix conventions (or log file when specified).
func Error(format string, v ...any) {
	stderrLogger.Error(fmt.Sprintf(format, v...))
}

// Debug logs detailed debugging information for development and troubleshooting.
// Uses stderr following Unix conventions (or log file when specified).
func Debug(format string, v ...any) {
	stderrLogger.Debug(fmt.Sprintf(format, v...))
}

// Success logs successful operations in green using INFO level with custom styling.
// Uses stdout following Unix conventions (or log file when specified).
// Implements a custom SUCCESS level that respects INFO level filtering.
func Success(format string, v ...any) {
	// Check if INFO level logs are enabled (Success uses INFO level internally)
	if stdoutLogger.GetLevel() > log.InfoLevel {
		return // Skip if INFO level is suppressed
	}

	// Get the current stdout logger's output destination to respect log file redirection
	currentOutput := getStdoutLoggerOutput()

	// Create a temporary logger with custom styling for success messages
	// We override the INFO level to display "SUCCESS" in light green
	styles := setupCustomStyles()
	styles.Levels[log.InfoLevel] = lipgloss.NewStyle().
		SetString("SUCCESS").
		Foreground(lipgloss.Color("#60F281")) // Light green

	tempLogger := log.NewWithOptions(currentOutput, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
	tempLogger.SetStyles(styles)

	// Log using INFO level but with "SUCCESS" label in light green
	tempLogger.Info(fmt.Sprintf(format, v...))
}

// SetLevel configures the minimum logging level for filtering log output across
// all control plane services and components. Accepts standard level strings
// (DEBUG, INFO, WARN, ERROR) and applies filtering to reduce noise during
// production operations or increase verbosity during troubleshooting.
func SetLevel(level string) {
	var logLevel log.Level
	switch level {
	case "DEBUG":
		logLevel = log.DebugLevel
	case "INFO":
		logLevel = log.InfoLevel
	case "WARN":
		logLevel = log.WarnLevel
	case "ERROR":
		logLevel = log.ErrorLevel
	default:
		logLevel = log.InfoLevel
	}

	// Apply level to both loggers
	stdoutLogger.SetLevel(logLevel)
	stderrLogger.SetLevel(logLevel)
}

// SetOutput configures log output destination for operational log management.
// When a file is specified, all logs go to the file (overriding Unix stdout/stderr
// separation). When nil, suppresses all output. When not called, uses Unix
// conventions (INFO/SUCCESS->stdout, others->stderr).
func SetOutput(w *os.File) {
	if w == nil {
		// Suppress output by setting level above any real level
		stdoutLogger.SetLevel(log.FatalLevel + 1)
		stderrLogger.SetLevel(log.FatalLevel + 1)
		usingLogFile = false
		return
	}

	// When using a log file, all logs go to the same file (production mode)
	usingLogFile = true
	logFileHandle = w

	// Recreate both loggers to use the file
	stdoutLogger = log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
	stderrLogger = log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})

	styles := setupCustomStyles()
	stdoutLogger.SetStyles(styles)
	stderrLogger.SetStyles(styles)
}

// SuppressOutput disables INFO/WARN/DEBUG logs while keeping ERROR logs visible.
// Used by CLI tools to reduce output noise during normal operations.
func SuppressOutput() {
	stdoutLogger.SetLevel(log.ErrorLevel)
	stderrLogger.SetLevel(log.ErrorLevel)
	cliConfigured = true
}

// RestoreOutput restores normal logging with Unix conventions at INFO level and
// above. Recreates both loggers with default settings and custom color styling.
// INFO/SUCCESS go to stdout, WARN/ERROR/DEBUG go to stderr.
func RestoreOutput() {
	usingLogFile = false

	stdoutLogger = log.NewWithOptions(os.Stdout, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
	stderrLogger = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})

	styles := setupCustomStyles()
	stdoutLogger.SetStyles(styles)
	stderrLogger.SetStyles(styles)

	stdoutLogger.SetLevel(log.InfoLevel)
	stderrLogger.SetLevel(log.InfoLevel)

	cliConfigured = true
}

// IsConfiguredByCLI returns true if logging has been explicitly configured by CLI tools.
func IsConfiguredByCLI() bool {
	return cliConfigured
}

// LevelWriter adapts io.Writer-based library logging (Gin, Resty internals)
// into the unified leveled logging system. Each written line is trimmed,
// prefixed, and logged at the configured level.
type LevelWriter struct {
	level  string
	prefix string
}

// NewLevelWriter creates a writer that logs each written line at the given
// level with an optional source prefix (e.g., "gin").
func NewLevelWriter(level, prefix string) io.Writer {
	return &LevelWriter{level: strings.ToUpper(level), prefix: prefix}
}

// Write implements io.Writer by splitting input into lines and logging each at
// the configured level. Essential for integrating external libraries into the
// unified logging system.
func (w *LevelWriter) Write(p []byte) (int, error) {
	text := string(p)
	lines := strings.Split(text, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		msg := line
		if w.prefix != "" {
			msg = w.prefix + ": " + line
		}
		switch w.level {
		case "DEBUG":
			Debug("%s", msg)
		case "INFO":
			Info("%s", msg)
		case "WARN":
			Warn("%s", msg)
		case "ERROR":
			Error("%s", msg)
		default:
			Info("%s", msg)
		}
	}
	return len(p), nil
}
