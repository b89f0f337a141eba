package network

import (
	"errors"
	"math"
	"testing"

	"pdroute/internal/model"
)

func lineNodes() []model.Node {
	return []model.Node{
		{ID: 0, Kind: model.NodeDepot},
		{ID: 1, Kind: model.NodePickup, ServiceTime: 2},
		{ID: 2, Kind: model.NodeDelivery, ServiceTime: 2},
		{ID: 3, Kind: model.NodeDepot},
	}
}

func lineEdges() []model.Edge {
	return []model.Edge{
		{Origin: 0, Destination: 1, TravelTime: 5, Distance: 5, Cost: 5},
		{Origin: 1, Destination: 2, TravelTime: 5, Distance: 5, Cost: 5},
		{Origin: 2, Destination: 3, TravelTime: 1, Distance: 1, Cost: 1},
		{Origin: 0, Destination: 3, TravelTime: 11, Distance: 11, Cost: 11},
	}
}

func lineRequests() []model.Request {
	return []model.Request{{
		ID: 1, Origin: 1, Destination: 2, Demand: 3,
		Pickup:   model.Window{Start: 0, End: 10},
		Delivery: model.Window{Start: 5, End: 20},
	}}
}

func lineVehicles() []model.Vehicle {
	return []model.Vehicle{{ID: 1, Capacity: 4, StartDepot: 0, EndDepot: 3}}
}

func TestNewLineGraph(t *testing.T) {
	n, err := New(lineNodes(), lineEdges(), lineRequests(), lineVehicles(), model.CostFactors{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p, err := n.Path(0, 2)
	if err != nil {
		t.Fatalf("Path(0,2): %v", err)
	}
	if len(p.Nodes) != 3 || p.Nodes[0] != 0 || p.Nodes[1] != 1 || p.Nodes[2] != 2 {
		t.Fatalf("path nodes: %v", p.Nodes)
	}
	if p.TravelTime != 10 || p.Distance != 10 || p.Cost != 10 {
		t.Fatalf("path sums: %+v", p)
	}
	if n.DemandDelta(1) != 3 || n.DemandDelta(2) != -3 {
		t.Fatalf("demand deltas: %d %d", n.DemandDelta(1), n.DemandDelta(2))
	}
	if w := n.Window(1); w.Start != 0 || w.End != 10 {
		t.Fatalf("pickup window: %+v", w)
	}
	// Depot windows default to [0, horizon].
	if w := n.Window(0); w.Start != 0 || w.End != n.Horizon() {
		t.Fatalf("depot window: %+v horizon %f", w, n.Horizon())
	}
	if r, ok := n.RequestAt(1); !ok || r.ID != 1 {
		t.Fatalf("RequestAt(1): %v %v", r, ok)
	}
	if _, ok := n.RequestAt(0); ok {
		t.Fatalf("depot should anchor no request")
	}
}

func TestNewDerivesEdgeCostFromFactors(t *testing.T) {
	edges := []model.Edge{
		{Origin: 0, Destination: 1, TravelTime: 10, Distance: 4}, // no explicit cost
		{Origin: 1, Destination: 2, TravelTime: 5, Distance: 5, Cost: 5},
		{Origin: 2, Destination: 3, TravelTime: 1, Distance: 1, Cost: 1},
	}
	n, err := New(lineNodes(), edges, lineRequests(), lineVehicles(), model.CostFactors{Alpha: 0.6, Beta: 0.5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p, err := n.Path(0, 1)
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	want := 0.6*10 + 0.5*4
	if math.Abs(p.Cost-want) != 0 {
		t.Fatalf("derived cost %f, want %f", p.Cost, want)
	}
}

func TestPathThroughJunction(t *testing.T) {
	nodes := append(lineNodes(), model.Node{ID: 4, Kind: model.NodeJunction})
	edges := []model.Edge{
		{Origin: 0, Destination: 1, TravelTime: 5, Distance: 5, Cost: 5},
		{Origin: 1, Destination: 4, TravelTime: 2, Distance: 2, Cost: 2},
		{Origin: 4, Destination: 2, TravelTime: 3, Distance: 3, Cost: 3},
		{Origin: 2, Destination: 3, TravelTime: 1, Distance: 1, Cost: 1},
	}
	n, err := New(nodes, edges, lineRequests(), lineVehicles(), model.CostFactors{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p, err := n.Path(1, 2)
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if len(p.Nodes) != 3 || p.Nodes[1] != 4 {
		t.Fatalf("junction missing from literal path: %v", p.Nodes)
	}
	if p.TravelTime != 5 || p.Cost != 5 {
		t.Fatalf("summed attributes: %+v", p)
	}
}

func TestPathPrefersShorterTravelTime(t *testing.T) {
	// Direct edge is slower than the two-hop detour.
	nodes := append(lineNodes(), model.Node{ID: 4, Kind: model.NodeJunction})
	edges := append(lineEdges(),
		model.Edge{Origin: 1, Destination: 4, TravelTime: 1, Distance: 10, Cost: 10},
		model.Edge{Origin: 4, Destination: 2, TravelTime: 1, Distance: 10, Cost: 10},
	)
	n, err := New(nodes, edges, lineRequests(), lineVehicles(), model.CostFactors{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p, _ := n.Path(1, 2)
	if p.TravelTime != 2 {
		t.Fatalf("want detour travel time 2, got %f (path %v)", p.TravelTime, p.Nodes)
	}
}

func TestNewRejections(t *testing.T) {
	cases := []struct {
		name     string
		nodes    []model.Node
		edges    []model.Edge
		requests []model.Request
		vehicles []model.Vehicle
	}{
		{"duplicate node", append(lineNodes(), model.Node{ID: 1, Kind: model.NodeJunction}), lineEdges(), lineRequests(), lineVehicles()},
		{"edge to unknown node", lineNodes(), append(lineEdges(), model.Edge{Origin: 0, Destination: 99}), lineRequests(), lineVehicles()},
		{"negative edge weight", lineNodes(), append(lineEdges(), model.Edge{Origin: 0, Destination: 1, TravelTime: -1}), lineRequests(), lineVehicles()},
		{"inverted node window", []model.Node{{ID: 0, Kind: model.NodeDepot, Window: &model.Window{Start: 9, End: 1}}, lineNodes()[1], lineNodes()[2], lineNodes()[3]}, lineEdges(), lineRequests(), lineVehicles()},
		{"zero demand", lineNodes(), lineEdges(), []model.Request{{ID: 1, Origin: 1, Destination: 2, Demand: 0, Pickup: model.Window{Start: 0, End: 10}, Delivery: model.Window{Start: 5, End: 20}}}, lineVehicles()},
		{"inverted request window", lineNodes(), lineEdges(), []model.Request{{ID: 1, Origin: 1, Destination: 2, Demand: 1, Pickup: model.Window{Start: 10, End: 0}, Delivery: model.Window{Start: 5, End: 20}}}, lineVehicles()},
		{"origin not a pickup", lineNodes(), lineEdges(), []model.Request{{ID: 1, Origin: 0, Destination: 2, Demand: 1, Pickup: model.Window{Start: 0, End: 10}, Delivery: model.Window{Start: 5, End: 20}}}, lineVehicles()},
		{"zero capacity", lineNodes(), lineEdges(), lineRequests(), []model.Vehicle{{ID: 1, Capacity: 0, StartDepot: 0, EndDepot: 3}}},
		{"depot is not a depot node", lineNodes(), lineEdges(), lineRequests(), []model.Vehicle{{ID: 1, Capacity: 4, StartDepot: 1, EndDepot: 3}}},
		{"orphan service node", append(lineNodes(), model.Node{ID: 5, Kind: model.NodePickup}), lineEdges(), lineRequests(), lineVehicles()},
		{"unreachable delivery window", lineNodes(), lineEdges(), []model.Request{{ID: 1, Origin: 1, Destination: 2, Demand: 1, Pickup: model.Window{Start: 0, End: 10}, Delivery: model.Window{Start: 0, End: 3}}}, lineVehicles()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.nodes, tc.edges, tc.requests, tc.vehicles, model.CostFactors{}); err == nil {
				t.Fatalf("want error")
			}
		})
	}
}

func TestNewDisconnectedIsNoPathError(t *testing.T) {
	// No edge into the delivery node at all.
	edges := []model.Edge{
		{Origin: 0, Destination: 1, TravelTime: 5, Distance: 5, Cost: 5},
		{Origin: 0, Destination: 3, TravelTime: 11, Distance: 11, Cost: 11},
	}
	_, err := New(lineNodes(), edges, lineRequests(), lineVehicles(), model.CostFactors{})
	var npe NoPathError
	if !errors.As(err, &npe) {
		t.Fatalf("want NoPathError, got %v", err)
	}
	// The unreachable service node is reported, not the return leg that
	// also happens to be missing.
	if npe.To != 2 {
		t.Fatalf("NoPathError should name the unreachable node 2: %+v", npe)
	}
}

func TestNewCoincidentDepots(t *testing.T) {
	// A single depot serving as both start and end, on a forward-only
	// graph with no way back. The end anchor is synthetic, so no return
	// edge is required.
	nodes := lineNodes()[:3]
	edges := []model.Edge{
		{Origin: 0, Destination: 1, TravelTime: 5, Distance: 5, Cost: 5},
		{Origin: 1, Destination: 2, TravelTime: 5, Distance: 5, Cost: 5},
	}
	vehicles := []model.Vehicle{{ID: 1, Capacity: 4, StartDepot: 0, EndDepot: 0}}
	n, err := New(nodes, edges, lineRequests(), vehicles, model.CostFactors{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	end := n.Vehicles()[0].EndDepot
	if end == 0 || !n.Virtual(end) {
		t.Fatalf("end depot should be rewritten to a synthetic anchor, got %d", end)
	}
	anchor, _ := n.Node(end)
	if anchor.ID != 0 {
		t.Fatalf("anchor should resolve to the physical depot: %+v", anchor)
	}
	p, err := n.Path(2, end)
	if err != nil {
		t.Fatalf("Path(2,anchor): %v", err)
	}
	if p.Cost != 0 || p.TravelTime != 0 || len(p.Nodes) != 1 || p.Nodes[0] != 2 {
		t.Fatalf("entering the anchor should be free: %+v", p)
	}
}

func TestSharedDepotRejected(t *testing.T) {
	nodes := append(lineNodes(),
		model.Node{ID: 5, Kind: model.NodeDepot},
	)
	vehicles := []model.Vehicle{
		{ID: 1, Capacity: 4, StartDepot: 0, EndDepot: 3},
		{ID: 2, Capacity: 4, StartDepot: 5, EndDepot: 3}, // depot 3 claimed twice
	}
	if _, err := New(nodes, lineEdges(), lineRequests(), vehicles, model.CostFactors{}); err == nil {
		t.Fatalf("want error for depot claimed by two vehicles")
	}
}
