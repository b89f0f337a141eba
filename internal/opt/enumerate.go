package opt

import (
	"context"
	"fmt"
	"math"
)

// Enumerator is an exact reference solver for small instances. It enumerates
// request-to-vehicle assignments and per-vehicle service orders, schedules
// each candidate at its earliest feasible times, and keeps the cheapest
// candidate. Every returned assignment is re-checked against the model's
// constraints before it leaves the solver.
//
// Complexity is exponential in the number of requests; production deployments
// swap in an external MIP solver behind the same Solver interface.
type Enumerator struct{}

type routePlan struct {
	anchors []int // start depot, service anchors, end depot
	times   []float64
	loads   []int
	cost    float64
}

func (Enumerator) Solve(ctx context.Context, m Model) (Assignment, error) {
	n := len(m.Requests)
	k := len(m.Vehicles)
	if k == 0 {
		return Assignment{}, InfeasibleInstanceError{Detail: "no vehicles"}
	}

	best := math.Inf(1)
	var bestPlans []routePlan

	// Iterate request->vehicle assignments in base-k counting order.
	total := 1
	for i := 0; i < n; i++ {
		total *= k
	}
	for code := 0; code < total; code++ {
		if err := ctx.Err(); err != nil {
			return Assignment{}, TimedOutError{Detail: err.Error()}
		}
		byVehicle := make([][]int, k) // vehicle index -> request indices
		c := code
		feasible := true
		for ri := 0; ri < n; ri++ {
			byVehicle[c%k] = append(byVehicle[c%k], ri)
			c /= k
		}

		plans := make([]routePlan, k)
		cost := 0.0
		for vi, v := range m.Vehicles {
			plan, ok := bestOrder(ctx, m, v.ID, v.Capacity, v.StartDepot, v.EndDepot, byVehicle[vi])
			if !ok {
				feasible = false
				break
			}
			plans[vi] = plan
			cost += plan.cost
		}
		if feasible && cost < best {
			best = cost
			bestPlans = plans
		}
	}

	if err := ctx.Err(); err != nil {
		return Assignment{}, TimedOutError{Detail: err.Error()}
	}
	if bestPlans == nil {
		return Assignment{}, InfeasibleInstanceError{
			Detail: fmt.Sprintf("%d requests, %d vehicles", n, k),
		}
	}

	a := Assignment{
		ArcUsed:     map[ArcKey]bool{},
		ArrivalTime: map[VisitKey]float64{},
		Load:        map[VisitKey]int{},
		Objective:   best,
	}
	for vi, plan := range bestPlans {
		vid := m.Vehicles[vi].ID
		for i := 0; i+1 < len(plan.anchors); i++ {
			a.ArcUsed[ArcKey{From: plan.anchors[i], To: plan.anchors[i+1], Vehicle: vid}] = true
		}
		for i, node := range plan.anchors {
			a.ArrivalTime[VisitKey{Node: node, Vehicle: vid}] = plan.times[i]
			a.Load[VisitKey{Node: node, Vehicle: vid}] = plan.loads[i]
		}
	}

	if err := m.Check(m.Vector(a)); err != nil {
		return Assignment{}, fmt.Errorf("enumerator produced an assignment the model rejects: %w", err)
	}
	return a, nil
}

// bestOrder finds the cheapest feasible service order for one vehicle over
// its assigned requests, scheduling every anchor at its earliest feasible
// time. Pickups may be placed any time; a delivery only after its pickup.
func bestOrder(ctx context.Context, m Model, vid, capacity, start, end int, reqIdx []int) (routePlan, bool) {
	if len(reqIdx) == 0 {
		// Idle vehicle: the model still requires a depot-to-depot arc.
		if _, ok := m.Arcs[ArcKey{From: start, To: end, Vehicle: vid}]; !ok {
			return routePlan{}, false
		}
		return scheduleRoute(m, vid, capacity, []int{start, end})
	}

	// Event space: pickup and delivery anchors of the assigned requests.
	type event struct {
		node   int
		pickup bool
		req    int
	}
	events := make([]event, 0, 2*len(reqIdx))
	for _, ri := range reqIdx {
		r := m.Requests[ri]
		events = append(events, event{node: r.Origin, pickup: true, req: ri})
		events = append(events, event{node: r.Destination, pickup: false, req: ri})
	}

	bestCost := math.Inf(1)
	var bestSeq []int
	used := make([]bool, len(events))
	pickedUp := make(map[int]bool, len(reqIdx))
	seq := make([]int, 0, len(events))

	var dfs func()
	dfs = func() {
		if ctx.Err() != nil {
			return
		}
		if len(seq) == len(events) {
			anchors := append(append([]int{start}, seq...), end)
			if plan, ok := scheduleRoute(m, vid, capacity, anchors); ok && plan.cost < bestCost {
				bestCost = plan.cost
				bestSeq = append([]int(nil), seq...)
			}
			return
		}
		for i, ev := range events {
			if used[i] {
				continue
			}
			if !ev.pickup && !pickedUp[ev.req] {
				continue
			}
			used[i] = true
			if ev.pickup {
				pickedUp[ev.req] = true
			}
			seq = append(seq, ev.node)
			dfs()
			seq = seq[:len(seq)-1]
			if ev.pickup {
				pickedUp[ev.req] = false
			}
			used[i] = false
		}
	}
	dfs()

	if bestSeq == nil {
		return routePlan{}, false
	}
	anchors := append(append([]int{start}, bestSeq...), end)
	return scheduleRoute(m, vid, capacity, anchors)
}

// scheduleRoute walks an anchor sequence, assigning earliest feasible
// arrival times and propagating load. Earliest arrival maximizes downstream
// slack, so it preserves exactness for a fixed sequence.
func scheduleRoute(m Model, vid, capacity int, anchors []int) (routePlan, bool) {
	plan := routePlan{anchors: anchors}
	t := m.Visits[anchors[0]].Window.Start
	load := 0
	plan.times = append(plan.times, t)
	plan.loads = append(plan.loads, load)

	for i := 0; i+1 < len(anchors); i++ {
		from, to := anchors[i], anchors[i+1]
		arc, ok := m.Arcs[ArcKey{From: from, To: to, Vehicle: vid}]
		if !ok {
			return routePlan{}, false
		}
		vi := m.Visits[to]
		t = math.Max(vi.Window.Start, t+m.Visits[from].Service+arc.TravelTime)
		if t > vi.Window.End {
			return routePlan{}, false
		}
		load += vi.Delta
		if load < 0 || load > capacity {
			return routePlan{}, false
		}
		plan.times = append(plan.times, t)
		plan.loads = append(plan.loads, load)
		plan.cost += arc.Cost
	}
	return plan, true
}
