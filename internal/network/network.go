package network

import (
	"container/heap"
	"fmt"
	"math"

	"pdroute/internal/model"
)

// NoPathError reports an edge-weight lookup for a disconnected ordered pair.
// The model builder guarantees connectivity up front, so seeing this after
// construction indicates a programming defect.
type NoPathError struct {
	From int
	To   int
}

func (e NoPathError) Error() string {
	return fmt.Sprintf("no path from node %d to node %d", e.From, e.To)
}

// PathInfo is the shortest path (by travel time) between an ordered node
// pair: the literal node sequence plus summed edge attributes.
type PathInfo struct {
	Nodes      []int
	TravelTime float64
	Distance   float64
	Cost       float64
}

// visit carries the effective service semantics of an anchor node.
type visit struct {
	window      model.Window
	serviceTime float64
	demandDelta int
	requestID   int // -1 for depots
}

// Network is the validated, immutable in-memory index over nodes, edges,
// requests and vehicles. No mutation after New.
type Network struct {
	nodes    map[int]model.Node
	requests []model.Request
	vehicles []model.Vehicle
	visits   map[int]visit
	paths    map[[2]int]PathInfo
	horizon  float64
	// aliasOf maps synthetic destination anchors to the physical depot they
	// stand in for when a vehicle's start and end depot coincide.
	aliasOf map[int]int
}

// New validates the problem tables and precomputes all-pairs shortest paths
// by travel time. Edge costs default to alpha*time + beta*distance when the
// edge table carries no explicit cost.
func New(nodes []model.Node, edges []model.Edge, requests []model.Request, vehicles []model.Vehicle, factors model.CostFactors) (*Network, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("network: no nodes")
	}
	if len(vehicles) == 0 {
		return nil, fmt.Errorf("network: no vehicles")
	}

	byID := make(map[int]model.Node, len(nodes))
	for _, nd := range nodes {
		if _, dup := byID[nd.ID]; dup {
			return nil, fmt.Errorf("network: duplicate node id %d", nd.ID)
		}
		if nd.Window != nil && nd.Window.Start > nd.Window.End {
			return nil, fmt.Errorf("network: node %d window start %.1f after end %.1f", nd.ID, nd.Window.Start, nd.Window.End)
		}
		byID[nd.ID] = nd
	}

	adj := make(map[int][]model.Edge, len(nodes))
	for _, e := range edges {
		if _, ok := byID[e.Origin]; !ok {
			return nil, fmt.Errorf("network: edge references unknown origin node %d", e.Origin)
		}
		if _, ok := byID[e.Destination]; !ok {
			return nil, fmt.Errorf("network: edge references unknown destination node %d", e.Destination)
		}
		if e.TravelTime < 0 || e.Distance < 0 {
			return nil, fmt.Errorf("network: edge %d->%d has negative weight", e.Origin, e.Destination)
		}
		if e.Cost == 0 {
			e.Cost = factors.Alpha*e.TravelTime + factors.Beta*e.Distance
		}
		adj[e.Origin] = append(adj[e.Origin], e)
	}

	n := &Network{
		nodes:    byID,
		requests: append([]model.Request(nil), requests...),
		vehicles: append([]model.Vehicle(nil), vehicles...),
		visits:   map[int]visit{},
		paths:    map[[2]int]PathInfo{},
		aliasOf:  map[int]int{},
	}

	// Requests: role ownership and window sanity.
	for _, r := range requests {
		if r.Origin == r.Destination {
			return nil, fmt.Errorf("network: request %d has identical origin and destination %d", r.ID, r.Origin)
		}
		if r.Demand <= 0 {
			return nil, fmt.Errorf("network: request %d demand must be > 0, got %d", r.ID, r.Demand)
		}
		if r.Pickup.Start > r.Pickup.End || r.Delivery.Start > r.Delivery.End {
			return nil, fmt.Errorf("network: request %d has an inverted time window", r.ID)
		}
		o, ok := byID[r.Origin]
		if !ok || o.Kind != model.NodePickup {
			return nil, fmt.Errorf("network: request %d origin %d is not a pickup node", r.ID, r.Origin)
		}
		d, ok := byID[r.Destination]
		if !ok || d.Kind != model.NodeDelivery {
			return nil, fmt.Errorf("network: request %d destination %d is not a delivery node", r.ID, r.Destination)
		}
		if prev, taken := n.visits[r.Origin]; taken {
			return nil, fmt.Errorf("network: pickup node %d claimed by requests %d and %d", r.Origin, prev.requestID, r.ID)
		}
		if prev, taken := n.visits[r.Destination]; taken {
			return nil, fmt.Errorf("network: delivery node %d claimed by requests %d and %d", r.Destination, prev.requestID, r.ID)
		}
		n.visits[r.Origin] = visit{window: r.Pickup, serviceTime: r.PickupService, demandDelta: r.Demand, requestID: r.ID}
		n.visits[r.Destination] = visit{window: r.Delivery, serviceTime: r.DeliveryService, demandDelta: -r.Demand, requestID: r.ID}
	}
	for _, nd := range nodes {
		if nd.Kind == model.NodePickup || nd.Kind == model.NodeDelivery {
			if _, claimed := n.visits[nd.ID]; !claimed {
				return nil, fmt.Errorf("network: %s node %d belongs to no request", nd.Kind, nd.ID)
			}
		}
	}

	// Vehicles: depot ownership. A vehicle's start and end depot may be the
	// same node; across vehicles a depot belongs to exactly one.
	depotOwner := map[int]int{}
	for _, v := range vehicles {
		if v.Capacity <= 0 {
			return nil, fmt.Errorf("network: vehicle %d capacity must be > 0, got %d", v.ID, v.Capacity)
		}
		depots := []int{v.StartDepot, v.EndDepot}
		if v.StartDepot == v.EndDepot {
			depots = depots[:1]
		}
		for _, dep := range depots {
			nd, ok := byID[dep]
			if !ok || nd.Kind != model.NodeDepot {
				return nil, fmt.Errorf("network: vehicle %d depot %d is not a depot node", v.ID, dep)
			}
			if owner, taken := depotOwner[dep]; taken {
				return nil, fmt.Errorf("network: depot node %d claimed by vehicles %d and %d", dep, owner, v.ID)
			}
			depotOwner[dep] = v.ID
		}
	}

	// Horizon: latest explicit window end across requests and nodes.
	horizon := 0.0
	for _, r := range requests {
		horizon = math.Max(horizon, math.Max(r.Pickup.End, r.Delivery.End))
	}
	for _, nd := range nodes {
		if nd.Window != nil {
			horizon = math.Max(horizon, nd.Window.End)
		}
	}

	// All-pairs shortest paths by travel time.
	maxLeg := 0.0
	for _, src := range nodes {
		dist, prev := dijkstra(src.ID, byID, adj)
		for _, dst := range nodes {
			if math.IsInf(dist[dst.ID], 1) {
				continue
			}
			p := rebuild(src.ID, dst.ID, prev, adj)
			n.paths[[2]int{src.ID, dst.ID}] = p
			maxLeg = math.Max(maxLeg, p.TravelTime)
		}
	}

	maxService := 0.0
	for _, vs := range n.visits {
		maxService = math.Max(maxService, vs.serviceTime)
	}
	n.horizon = horizon + maxLeg + maxService

	// Depot windows: explicit node window, or the full planning horizon.
	for _, v := range vehicles {
		for _, dep := range []int{v.StartDepot, v.EndDepot} {
			w := model.Window{Start: 0, End: n.horizon}
			if nw := byID[dep].Window; nw != nil {
				w = *nw
			}
			n.visits[dep] = visit{window: w, serviceTime: byID[dep].ServiceTime, requestID: -1}
		}
	}

	// Coincident start/end depots get a synthetic destination anchor so the
	// variable space keeps the departure and the arrival apart. Returning
	// home over such an anchor is free and produces no movement.
	aliasID := 0
	for id := range byID {
		if id > aliasID {
			aliasID = id
		}
	}
	for i, v := range n.vehicles {
		if v.StartDepot != v.EndDepot {
			continue
		}
		aliasID++
		n.aliasOf[aliasID] = v.EndDepot
		n.visits[aliasID] = n.visits[v.EndDepot]
		n.vehicles[i].EndDepot = aliasID
	}

	// Connectivity: every depot must reach every service node, and every
	// service node must reach the end depot. Outbound legs are checked
	// first so an unreachable service node is named before its missing
	// return leg. Coincident end depots need no return leg.
	for _, v := range n.vehicles {
		for _, r := range requests {
			for _, svc := range []int{r.Origin, r.Destination} {
				if _, ok := n.paths[[2]int{v.StartDepot, svc}]; !ok {
					return nil, NoPathError{From: v.StartDepot, To: svc}
				}
			}
		}
		if _, virtual := n.aliasOf[v.EndDepot]; virtual {
			continue
		}
		for _, r := range requests {
			for _, svc := range []int{r.Origin, r.Destination} {
				if _, ok := n.paths[[2]int{svc, v.EndDepot}]; !ok {
					return nil, NoPathError{From: svc, To: v.EndDepot}
				}
			}
		}
	}

	// Pairing feasibility: earliest pickup + minimum travel <= latest delivery.
	for _, r := range requests {
		p, err := n.Path(r.Origin, r.Destination)
		if err != nil {
			return nil, err
		}
		if r.Pickup.Start+r.PickupService+p.TravelTime > r.Delivery.End {
			return nil, fmt.Errorf("network: request %d cannot reach its delivery window (earliest pickup %.1f + travel %.1f > latest delivery %.1f)",
				r.ID, r.Pickup.Start, p.TravelTime, r.Delivery.End)
		}
	}

	return n, nil
}

// Node returns the node with the given id. Synthetic destination anchors
// resolve to their physical depot node.
func (n *Network) Node(id int) (model.Node, bool) {
	if phys, ok := n.aliasOf[id]; ok {
		id = phys
	}
	nd, ok := n.nodes[id]
	return nd, ok
}

// Virtual reports whether id is a synthetic destination anchor standing in
// for a coincident start/end depot.
func (n *Network) Virtual(id int) bool {
	_, ok := n.aliasOf[id]
	return ok
}

// Path returns the precomputed shortest path for an ordered node pair.
// Entering a synthetic destination anchor is free from anywhere: the vehicle
// is already home once its last service completes.
func (n *Network) Path(from, to int) (PathInfo, error) {
	if phys, ok := n.aliasOf[from]; ok {
		from = phys
	}
	if _, ok := n.aliasOf[to]; ok {
		return PathInfo{Nodes: []int{from}}, nil
	}
	if from == to {
		return PathInfo{Nodes: []int{from}}, nil
	}
	p, ok := n.paths[[2]int{from, to}]
	if !ok {
		return PathInfo{}, NoPathError{From: from, To: to}
	}
	return p, nil
}

func (n *Network) Requests() []model.Request { return n.requests }
func (n *Network) Vehicles() []model.Vehicle { return n.vehicles }
func (n *Network) Horizon() float64          { return n.horizon }

// Window returns the effective service window of an anchor node.
func (n *Network) Window(id int) model.Window { return n.visits[id].window }

// ServiceTime returns the service duration at an anchor node.
func (n *Network) ServiceTime(id int) float64 { return n.visits[id].serviceTime }

// DemandDelta is +demand at a pickup, -demand at the paired delivery,
// zero elsewhere.
func (n *Network) DemandDelta(id int) int { return n.visits[id].demandDelta }

// RequestAt returns the request anchored at the node, if any.
func (n *Network) RequestAt(id int) (model.Request, bool) {
	vs, ok := n.visits[id]
	if !ok || vs.requestID < 0 {
		return model.Request{}, false
	}
	for _, r := range n.requests {
		if r.ID == vs.requestID {
			return r, true
		}
	}
	return model.Request{}, false
}

// --- Dijkstra over travel time ---

type pqItem struct {
	node int
	dist float64
}

type pq []pqItem

func (q pq) Len() int           { return len(q) }
func (q pq) Less(i, j int) bool { return q[i].dist < q[j].dist }
func (q pq) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *pq) Push(x any)        { *q = append(*q, x.(pqItem)) }
func (q *pq) Pop() any          { old := *q; it := old[len(old)-1]; *q = old[:len(old)-1]; return it }

func dijkstra(src int, nodes map[int]model.Node, adj map[int][]model.Edge) (map[int]float64, map[int]int) {
	dist := make(map[int]float64, len(nodes))
	prev := make(map[int]int, len(nodes))
	for id := range nodes {
		dist[id] = math.Inf(1)
	}
	dist[src] = 0
	q := &pq{{node: src, dist: 0}}
	for q.Len() > 0 {
		it := heap.Pop(q).(pqItem)
		if it.dist > dist[it.node] {
			continue
		}
		for _, e := range adj[it.node] {
			nd := it.dist + e.TravelTime
			if nd < dist[e.Destination] {
				dist[e.Destination] = nd
				prev[e.Destination] = it.node
				heap.Push(q, pqItem{node: e.Destination, dist: nd})
			}
		}
	}
	return dist, prev
}

// rebuild walks prev pointers back from dst and sums edge attributes along
// the chosen path.
func rebuild(src, dst int, prev map[int]int, adj map[int][]model.Edge) PathInfo {
	seq := []int{dst}
	for at := dst; at != src; {
		at = prev[at]
		seq = append(seq, at)
	}
	for i, j := 0, len(seq)-1; i < j; i, j = i+1, j-1 {
		seq[i], seq[j] = seq[j], seq[i]
	}
	p := PathInfo{Nodes: seq}
	for i := 0; i+1 < len(seq); i++ {
		e := findEdge(adj, seq[i], seq[i+1])
		p.TravelTime += e.TravelTime
		p.Distance += e.Distance
		p.Cost += e.Cost
	}
	return p
}

func findEdge(adj map[int][]model.Edge, from, to int) model.Edge {
	best := model.Edge{TravelTime: math.Inf(1)}
	for _, e := range adj[from] {
		if e.Destination == to && e.TravelTime < best.TravelTime {
			best = e
		}
	}
	return best
}
