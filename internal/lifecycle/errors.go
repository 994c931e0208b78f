// Package lifecycle owns the game-server state machine and the orchestration
// flows that drive it: capacity-aware creation, power actions, resize,
// deletion, administrative suspension, and the authoritative watchdog sync
// channel.
//
// TWO WRITE PATHS:
// Server status has exactly two writers with different authority:
//
//   - The optimistic path: a confirmed (non-erroring) agent call lets the
//     manager claim starting/stopping, or flag error when provisioning
//     fails. It may never claim installing->running, installing->error or
//     stopping->stopped.
//   - The authoritative path: a node's watchdog, authenticated by its
//     node-scoped credential, reports observed container state through
//     ApplyStatusSync. This is the only channel for the reserved
//     transitions above.
//
// Gateway failures are always non-fatal to committed state - a failed agent
// call never rolls back a row or a ledger reservation that already landed;
// it only prevents the next state transition from being claimed.
package lifecycle

import (
	"errors"

	"github.com/emberhost/ember/internal/agent"
	"github.com/emberhost/ember/internal/scheduler"
)

// Domain error kinds. Handlers map these onto HTTP statuses and stable
// machine-checkable reason codes; everything unrecognized is treated as a
// persistence failure.
var (
	// ErrPlanNotFound: the requested plan is missing or inactive.
	ErrPlanNotFound = errors.New("plan not found or inactive")

	// ErrServerLimitReached: the user is at the non-error server ceiling.
	ErrServerLimitReached = errors.New("server limit reached")

	// ErrNotFound: the server is absent or not owned by the caller. The
	// two cases are deliberately indistinguishable.
	ErrNotFound = errors.New("server not found")

	// ErrServerSuspended: suspended servers reject all power actions.
	ErrServerSuspended = errors.New("server is suspended")

	// ErrServerBusy: deletion is blocked while running or starting.
	ErrServerBusy = errors.New("server is busy")

	// ErrInvalidStatus: a watchdog reported a status outside the closed
	// enum set.
	ErrInvalidStatus = errors.New("invalid server status")

	// ErrUnauthorizedNode: the watchdog credential matched no node, or the
	// target server belongs to a different node (cross-node spoofing).
	ErrUnauthorizedNode = errors.New("node credential rejected")
)

// Reason returns the stable machine-checkable reason code for a lifecycle,
// scheduler, or agent error. User-visible failures always carry one of
// these alongside the human message.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrPlanNotFound):
		return "plan_not_found"
	case errors.Is(err, ErrServerLimitReached):
		return "server_limit_reached"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrServerSuspended):
		return "server_suspended"
	case errors.Is(err, ErrServerBusy):
		return "server_busy"
	case errors.Is(err, ErrInvalidStatus):
		return "invalid_status"
	case errors.Is(err, ErrUnauthorizedNode):
		return "unauthorized"
	case errors.Is(err, scheduler.ErrNoCapacity):
		return "no_capacity_available"
	case errors.Is(err, scheduler.ErrPortExhausted):
		return "port_allocation_exhausted"
	case errors.Is(err, agent.ErrAgentUnreachable):
		return "agent_unreachable"
	default:
		return "persistence_error"
	}
}
