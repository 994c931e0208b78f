// Package scheduler provides node placement for the Ember hosting platform.
// It implements least-allocated placement over the capacity ledger together
// with advisory port allocation for new game servers.
//
// PLACEMENT ARCHITECTURE:
// The selector reads the fleet through the capacity ledger (never a cached
// snapshot) and walks online nodes in ascending allocation order:
//   - Nodes whose remaining headroom cannot fit the requested plan are skipped
//   - Nodes already at their max_servers ceiling are skipped
//   - The first surviving node wins; ties break on node id for determinism
//
// The selector's headroom check is a pre-filter, not a guarantee: the
// ledger's conditional reservation during the create flow is the final
// admission decision, so a race between two creates can never overcommit a
// node silently.
//
// PORT ALLOCATION:
// Port probing is a read-then-decide step done outside any lock, so it is
// advisory by design. The durable store's UNIQUE(node_id, port) constraint
// is the real arbiter; the bounded retry combinator in this package isolates
// the retry-on-conflict idiom for targeted testing.
package scheduler

import (
	"errors"
	"fmt"

	"github.com/emberhost/ember/internal/config"
	"github.com/emberhost/ember/internal/logging"
	"github.com/emberhost/ember/internal/models"
	"github.com/emberhost/ember/internal/validate"
)

var (
	// ErrNoCapacity indicates no online node can admit the requested plan.
	ErrNoCapacity = errors.New("no node with available capacity")

	// ErrPortExhausted indicates the bounded port-retry loop ran out of
	// attempts without landing a unique port.
	ErrPortExhausted = errors.New("port allocation attempts exhausted")
)

// Fleet is the subset of the durable store the scheduler reads. Defined
// here so placement logic can be tested against a fake without a database.
type Fleet interface {
	// OnlineNodes returns placement-eligible nodes ordered least-allocated
	// first with id as tie-break.
	OnlineNodes() ([]models.Node, error)

	// CountServersOnNode counts servers currently bound to a node.
	CountServersOnNode(nodeID string) (int, error)

	// PortsInUse returns the set of ports bound to servers on a node.
	PortsInUse(nodeID string) (map[int]bool, error)
}

// Selector chooses nodes and candidate ports for new servers.
type Selector struct {
	fleet Fleet
}

// NewSelector creates a Selector reading placement state from fleet.
func NewSelector(fleet Fleet) *Selector {
	return &Selector{fleet: fleet}
}

// SelectNode returns the least-allocated online node that can admit ramMB
// more of reservation. Nodes without headroom or at their server ceiling
// are skipped in favor of the next-least-loaded candidate. Fails with
// ErrNoCapacity when no node survives.
func (s *Selector) SelectNode(ramMB int64) (*models.Node, error) {
	nodes, err := s.fleet.OnlineNodes()
	if err != nil {
		return nil, fmt.Errorf("list online nodes: %w", err)
	}
	if len(nodes) == 0 {
		return nil, ErrNoCapacity
	}

	for i := range nodes {
		node := &nodes[i]

		if node.AllocatedRAMMB+ramMB > node.TotalRAMMB {
			logging.Debug("Scheduler: Skipping node %s - insufficient headroom (%d+%d > %d MB)",
				logging.FormatNodeID(node.ID), node.AllocatedRAMMB, ramMB, node.TotalRAMMB)
			continue
		}

		if node.MaxServers > 0 {
			count, err := s.fleet.CountServersOnNode(node.ID)
			if err != nil {
				return nil, fmt.Errorf("count servers on node %s: %w", node.ID, err)
			}
			if count >= node.MaxServers {
				logging.Debug("Scheduler: Skipping node %s - at server ceiling (%d)",
					logging.FormatNodeID(node.ID), node.MaxServers)
				continue
			}
		}

		logging.Info("Scheduler: Selected node %s (allocated %d/%d MB)",
			logging.FormatNodeID(node.ID), node.AllocatedRAMMB, node.TotalRAMMB)
		return node, nil
	}

	return nil, ErrNoCapacity
}

// AllocatePort returns a candidate port for a new server on nodeID. If the
// caller requested a specific free port, it is honored; otherwise probing
// starts at the conventional base port and walks upward past occupied
// values. The result is advisory - the insert-time uniqueness constraint
// decides for real.
func (s *Selector) AllocatePort(nodeID string, requested int) (int, error) {
	used, err := s.fleet.PortsInUse(nodeID)
	if err != nil {
		return 0, fmt.Errorf("fetch ports for node %s: %w", nodeID, err)
	}

	if requested != 0 {
		if err := validate.GamePort(requested); err != nil {
			return 0, err
		}
		if !used[requested] {
			return requested, nil
		}
		logging.Debug("Scheduler: Requested port %d on node %s already bound, probing from base",
			requested, logging.FormatNodeID(nodeID))
	}

	for port := config.DefaultBasePort; port <= 65535; port++ {
		if !used[port] {
			return port, nil
		}
	}

	return 0, ErrPortExhausted
}

// RetryPortConflict is the bounded-retry combinator for the one genuinely
// tricky concurrency idiom in the create flow: racing a uniqueness
// constraint. It runs attempt with the starting candidate, and on a
// conflict (as classified by isConflict) bumps the candidate and retries,
// up to maxAttempts total attempts. Any non-conflict error aborts
// immediately. After maxAttempts consecutive conflicts it fails with
// ErrPortExhausted rather than looping unboundedly.
//
// Returns the port that finally succeeded.
func RetryPortConflict(start, maxAttempts int, isConflict func(error) bool, attempt func(port int) error) (int, error) {
	port := start
	for i := 0; i < maxAttempts; i++ {
		err := attempt(port)
		if err == nil {
			return port, nil
		}
		if !isConflict(err) {
			return 0, err
		}
		logging.Debug("Scheduler: Port %d lost insert race, retrying with %d (attempt %d/%d)",
			port, port+1, i+1, maxAttempts)
		port++
	}
	return 0, ErrPortExhausted
}
