package opt

import "fmt"

// InfeasibleInstanceError means no assignment satisfies the model's
// constraints. Retrying the same model is pointless; the caller must alter
// the problem data.
type InfeasibleInstanceError struct {
	Detail string
}

func (e InfeasibleInstanceError) Error() string {
	if e.Detail == "" {
		return "infeasible instance: no constraint-satisfying assignment exists"
	}
	return "infeasible instance: " + e.Detail
}

// TimedOutError means the solver exceeded its time budget before proving
// feasibility or infeasibility.
type TimedOutError struct {
	Detail string
}

func (e TimedOutError) Error() string {
	if e.Detail == "" {
		return "solve timed out"
	}
	return "solve timed out: " + e.Detail
}

// MalformedRouteError reports an arc set that does not reconstruct to a
// single simple depot-to-depot path (branching, cycle, or dangling node).
// This is a modeling or solver defect, never recoverable.
type MalformedRouteError struct {
	VehicleID int
	NodeID    int
	Detail    string
}

func (e MalformedRouteError) Error() string {
	return fmt.Sprintf("malformed route for vehicle %d at node %d: %s", e.VehicleID, e.NodeID, e.Detail)
}

// InconsistentTripError reports a chronological or load discontinuity
// between consecutive movements of a reconstructed trip.
type InconsistentTripError struct {
	VehicleID int
	NodeID    int
	Detail    string
}

func (e InconsistentTripError) Error() string {
	return fmt.Sprintf("inconsistent trip for vehicle %d at node %d: %s", e.VehicleID, e.NodeID, e.Detail)
}
