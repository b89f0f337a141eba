package api

import (
	"fmt"

	"pdroute/internal/model"
)

// validateProblem does shape-level checks on the incoming payload. Semantic
// checks (connectivity, window pairing, node roles) happen when the routing
// network is built.
func validateProblem(in *model.ProblemIn) error {
	if len(in.Nodes) == 0 {
		return fmt.Errorf("nodes must be non-empty")
	}
	if len(in.Requests) == 0 {
		return fmt.Errorf("requests must be non-empty")
	}
	if len(in.Vehicles) == 0 {
		return fmt.Errorf("vehicles must be non-empty")
	}
	for _, n := range in.Nodes {
		switch n.Kind {
		case model.NodeDepot, model.NodePickup, model.NodeDelivery, model.NodeJunction:
		default:
			return fmt.Errorf("node %d: unknown kind %q", n.ID, n.Kind)
		}
		if n.ServiceTime < 0 {
			return fmt.Errorf("node %d: serviceTimeMin must be >= 0", n.ID)
		}
	}
	for _, e := range in.Edges {
		if e.TravelTime < 0 || e.Distance < 0 || e.Cost < 0 {
			return fmt.Errorf("edge %d->%d: travel time, distance, and cost must be >= 0", e.Origin, e.Destination)
		}
	}
	for _, r := range in.Requests {
		if r.Demand <= 0 {
			return fmt.Errorf("request %d: demand must be > 0", r.ID)
		}
	}
	for _, v := range in.Vehicles {
		if v.Capacity <= 0 {
			return fmt.Errorf("vehicle %d: capacity must be > 0", v.ID)
		}
	}
	return nil
}

func validateSolveRequest(req *model.SolveRequest) error {
	if req.TimeBudgetMs < 0 {
		return fmt.Errorf("timeBudgetMs must be >= 0")
	}
	if req.CostFactors != nil && (req.CostFactors.Alpha < 0 || req.CostFactors.Beta < 0) {
		return fmt.Errorf("cost factors must be >= 0")
	}
	return nil
}
