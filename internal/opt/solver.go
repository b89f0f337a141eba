package opt

import "context"

// Assignment is the raw solver output: arc usage, arrival times, and
// load-after-visit values. Time and load entries exist only for visited
// (node, vehicle) pairs. Built once by the solver, never mutated afterward.
type Assignment struct {
	ArcUsed     map[ArcKey]bool
	ArrivalTime map[VisitKey]float64
	Load        map[VisitKey]int
	Objective   float64
}

// Solver is the external optimization collaborator. Solve returns exactly one
// of three outcomes: a feasible assignment, InfeasibleInstanceError, or
// TimedOutError (on context deadline/cancellation). The three are distinct
// and non-interchangeable.
type Solver interface {
	Solve(ctx context.Context, m Model) (Assignment, error)
}
