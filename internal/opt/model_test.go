package opt

import (
	"context"
	"strings"
	"testing"

	"pdroute/internal/model"
	"pdroute/internal/network"
)

func TestBuildVariableBounds(t *testing.T) {
	net := lineNet(t, 3, 4)
	m, err := Build(net)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// Vehicles leave their start depot empty.
	lv := m.Vars[m.LoadVar[VisitKey{Node: 0, Vehicle: 1}]]
	if lv.Lo != 0 || lv.Hi != 0 {
		t.Fatalf("start depot load bounds [%f, %f], want [0, 0]", lv.Lo, lv.Hi)
	}
	// After a pickup the load is at least the demand.
	lv = m.Vars[m.LoadVar[VisitKey{Node: 1, Vehicle: 1}]]
	if lv.Lo != 3 || lv.Hi != 4 {
		t.Fatalf("pickup load bounds [%f, %f], want [3, 4]", lv.Lo, lv.Hi)
	}
	// After the paired delivery the demand is off the vehicle again.
	lv = m.Vars[m.LoadVar[VisitKey{Node: 2, Vehicle: 1}]]
	if lv.Lo != 0 || lv.Hi != 1 {
		t.Fatalf("delivery load bounds [%f, %f], want [0, 1]", lv.Lo, lv.Hi)
	}

	// Arrival-time bounds are the node windows.
	tv := m.Vars[m.TimeVar[VisitKey{Node: 1, Vehicle: 1}]]
	if tv.Lo != 0 || tv.Hi != 10 {
		t.Fatalf("pickup time bounds [%f, %f], want [0, 10]", tv.Lo, tv.Hi)
	}
	tv = m.Vars[m.TimeVar[VisitKey{Node: 2, Vehicle: 1}]]
	if tv.Lo != 5 || tv.Hi != 20 {
		t.Fatalf("delivery time bounds [%f, %f], want [5, 20]", tv.Lo, tv.Hi)
	}

	for k := range m.ArcVar {
		if k.From == k.To {
			t.Fatalf("self arc %+v", k)
		}
	}

	// The coincident end depot is a separate anchor with free entry, so
	// departure and arrival never share a time variable.
	start, end := m.Vehicles[0].StartDepot, m.Vehicles[0].EndDepot
	if start == end {
		t.Fatalf("end anchor must be distinct from the start depot")
	}
	info, ok := m.Arcs[ArcKey{From: 2, To: end, Vehicle: 1}]
	if !ok || info.Cost != 0 || info.TravelTime != 0 {
		t.Fatalf("return arc into the coincident depot should be free: %+v ok=%v", info, ok)
	}
}

func TestBuildConstraintShape(t *testing.T) {
	net := lineNet(t, 3, 4)
	m, err := Build(net)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	counts := map[string]int{}
	for _, c := range m.Cons {
		prefix, _, _ := strings.Cut(c.Name, "_")
		counts[prefix]++
	}
	if counts["visit"] != len(m.Requests) {
		t.Fatalf("visit rows %d, want %d", counts["visit"], len(m.Requests))
	}
	if counts["pair"] != len(m.Requests)*len(m.Vehicles) {
		t.Fatalf("pair rows %d", counts["pair"])
	}
	if counts["depart"] != len(m.Vehicles) || counts["arrive"] != len(m.Vehicles) {
		t.Fatalf("depot rows: depart %d arrive %d", counts["depart"], counts["arrive"])
	}
	// One time row and two load rows per arc.
	if counts["time"] != len(m.Arcs) || counts["load"] != 2*len(m.Arcs) {
		t.Fatalf("propagation rows: time %d load %d over %d arcs", counts["time"], counts["load"], len(m.Arcs))
	}
	if len(m.Objective) != len(m.Arcs) {
		t.Fatalf("objective terms %d, want %d", len(m.Objective), len(m.Arcs))
	}
}

func TestBigMAdmitsLateSchedules(t *testing.T) {
	// Delivery window butts against the horizon. An undersized big-M would
	// make the waiting-heavy schedule look infeasible.
	nodes := []model.Node{
		{ID: 0, Kind: model.NodeDepot},
		{ID: 1, Kind: model.NodePickup},
		{ID: 2, Kind: model.NodeDelivery},
		{ID: 3, Kind: model.NodeDepot},
	}
	edges := []model.Edge{
		{Origin: 0, Destination: 1, TravelTime: 5, Distance: 5, Cost: 5},
		{Origin: 1, Destination: 2, TravelTime: 5, Distance: 5, Cost: 5},
		{Origin: 2, Destination: 3},
	}
	requests := []model.Request{{
		ID: 1, Origin: 1, Destination: 2, Demand: 3,
		Pickup:   model.Window{Start: 0, End: 10},
		Delivery: model.Window{Start: 18, End: 20},
	}}
	vehicles := []model.Vehicle{{ID: 1, Capacity: 4, StartDepot: 0, EndDepot: 3}}
	net, err := network.New(nodes, edges, requests, vehicles, model.CostFactors{})
	if err != nil {
		t.Fatalf("network.New: %v", err)
	}
	m, err := Build(net)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if m.BigM <= net.Horizon() {
		t.Fatalf("BigM %f must exceed horizon %f", m.BigM, net.Horizon())
	}
	a, err := Enumerator{}.Solve(context.Background(), m)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if got := a.ArrivalTime[VisitKey{Node: 2, Vehicle: 1}]; got != 18 {
		t.Fatalf("delivery arrival %f, want waiting until 18", got)
	}
	if err := m.Check(m.Vector(a)); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestVectorCheckRoundTrip(t *testing.T) {
	net := lineNet(t, 3, 4)
	m, err := Build(net)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	a, err := Enumerator{}.Solve(context.Background(), m)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	x := m.Vector(a)
	if err := m.Check(x); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if got := m.Cost(x); got != a.Objective {
		t.Fatalf("Cost %f, objective %f", got, a.Objective)
	}

	// A load above capacity must be caught by the bounds.
	x[m.LoadVar[VisitKey{Node: 1, Vehicle: 1}]] = 99
	if err := m.Check(x); err == nil {
		t.Fatalf("Check should reject an out-of-bounds load")
	}
}
