package opt

import (
	"fmt"
	"sync"

	"pdroute/internal/model"
	"pdroute/internal/network"
)

// Leg is one reconstructed movement in numeric form, before report assembly
// renders times and rounds totals.
type Leg struct {
	From       int
	To         int
	StartTime  float64
	FinishTime float64
	StartLoad  int
	FinishLoad int
	RequestID  int // -1 when the destination anchor is a depot
	Path       []int
	Cost       float64
	TravelTime float64
	Distance   float64
}

// Extract reconstructs every vehicle's ordered movement sequence from the
// raw assignment. Vehicles are processed independently and in parallel over
// the shared read-only assignment; a malformed route aborts only that
// vehicle and is reported in the error map.
func Extract(net *network.Network, a Assignment) (map[int][]Leg, map[int]error) {
	legs := make(map[int][]Leg, len(net.Vehicles()))
	errs := map[int]error{}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, v := range net.Vehicles() {
		wg.Add(1)
		go func(v model.Vehicle) {
			defer wg.Done()
			ls, err := extractVehicle(net, a, v)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[v.ID] = err
				return
			}
			legs[v.ID] = ls
		}(v)
	}
	wg.Wait()
	return legs, errs
}

func extractVehicle(net *network.Network, a Assignment, v model.Vehicle) ([]Leg, error) {
	// Successor mapping over the vehicle's selected arcs. Any branching
	// means the arc set is not a simple path.
	succ := map[int]int{}
	for arc, used := range a.ArcUsed {
		if !used || arc.Vehicle != v.ID {
			continue
		}
		if prev, dup := succ[arc.From]; dup {
			return nil, MalformedRouteError{VehicleID: v.ID, NodeID: arc.From,
				Detail: fmt.Sprintf("branching arc set (successors %d and %d)", prev, arc.To)}
		}
		succ[arc.From] = arc.To
	}
	if len(succ) == 0 {
		// Vehicle absent from the solution: empty trip, not an error.
		return []Leg{}, nil
	}

	// Walk from the start depot to the end depot.
	anchors := []int{v.StartDepot}
	seen := map[int]bool{v.StartDepot: true}
	for cur := v.StartDepot; cur != v.EndDepot; {
		next, ok := succ[cur]
		if !ok {
			return nil, MalformedRouteError{VehicleID: v.ID, NodeID: cur, Detail: "route dangles before reaching the end depot"}
		}
		if seen[next] {
			return nil, MalformedRouteError{VehicleID: v.ID, NodeID: next, Detail: "cyclic arc set"}
		}
		seen[next] = true
		anchors = append(anchors, next)
		cur = next
	}
	if len(anchors)-1 != len(succ) {
		bad := v.EndDepot
		for from := range succ {
			if !seen[from] {
				bad = from
				break
			}
		}
		return nil, MalformedRouteError{VehicleID: v.ID, NodeID: bad, Detail: "arcs disconnected from the depot path"}
	}

	// A vehicle assigned zero service nodes (bare depot-to-depot hop)
	// yields a trip with zero movements.
	if len(anchors) == 2 {
		return []Leg{}, nil
	}

	legs := make([]Leg, 0, len(anchors)-1)
	for i := 0; i+1 < len(anchors); i++ {
		from, to := anchors[i], anchors[i+1]
		if net.Virtual(to) {
			// Coincident end depot: the vehicle is home once its last
			// service completes, so the return produces no movement.
			continue
		}
		p, err := net.Path(from, to)
		if err != nil {
			// The builder guarantees connectivity; this is fatal.
			return nil, err
		}
		st, ok1 := a.ArrivalTime[VisitKey{Node: from, Vehicle: v.ID}]
		ft, ok2 := a.ArrivalTime[VisitKey{Node: to, Vehicle: v.ID}]
		sl, ok3 := a.Load[VisitKey{Node: from, Vehicle: v.ID}]
		fl, ok4 := a.Load[VisitKey{Node: to, Vehicle: v.ID}]
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return nil, MalformedRouteError{VehicleID: v.ID, NodeID: to, Detail: "assignment lacks time or load values for a visited node"}
		}
		reqID := -1
		if r, ok := net.RequestAt(to); ok {
			reqID = r.ID
		}
		legs = append(legs, Leg{
			From: from, To: to,
			StartTime: st, FinishTime: ft,
			StartLoad: sl, FinishLoad: fl,
			RequestID: reqID,
			Path:      p.Nodes,
			Cost:      p.Cost, TravelTime: p.TravelTime, Distance: p.Distance,
		})
	}

	// Chronological and load continuity across adjacent movements.
	const eps = 1e-6
	for i, l := range legs {
		if l.FinishTime+eps < l.StartTime+net.ServiceTime(l.From)+l.TravelTime {
			return nil, InconsistentTripError{VehicleID: v.ID, NodeID: l.To, Detail: "arrival earlier than departure plus travel time"}
		}
		if i+1 < len(legs) {
			next := legs[i+1]
			if l.FinishTime != next.StartTime {
				return nil, InconsistentTripError{VehicleID: v.ID, NodeID: l.To, Detail: "finish time does not match next movement's start time"}
			}
			if l.FinishLoad != next.StartLoad {
				return nil, InconsistentTripError{VehicleID: v.ID, NodeID: l.To, Detail: "finish load does not match next movement's start load"}
			}
		}
	}
	return legs, nil
}
