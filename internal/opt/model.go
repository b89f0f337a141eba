package opt

import (
	"fmt"
	"math"

	"pdroute/internal/model"
	"pdroute/internal/network"
)

// ArcKey identifies a binary arc variable x(i,j,k): vehicle k travels
// directly from anchor node i to anchor node j.
type ArcKey struct {
	From    int
	To      int
	Vehicle int
}

// VisitKey identifies the continuous arrival-time and load variables of a
// (node, vehicle) pair.
type VisitKey struct {
	Node    int
	Vehicle int
}

type VarKind int

const (
	Binary VarKind = iota
	Continuous
)

type Var struct {
	Name string
	Kind VarKind
	Lo   float64
	Hi   float64
}

// Term is coefficient * variable in a linear expression.
type Term struct {
	Var  int
	Coef float64
}

type Sense int

const (
	LE Sense = iota
	GE
	EQ
)

type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// ArcInfo carries the shortest-path attributes behind an arc variable.
type ArcInfo struct {
	TravelTime float64
	Distance   float64
	Cost       float64
}

// VisitInfo carries the service semantics of an anchor node.
type VisitInfo struct {
	Window    model.Window
	Service   float64
	Delta     int // +demand at pickup, -demand at paired delivery, 0 at depots
	RequestID int // -1 at depots
}

// Model is the fully specified mixed-integer program. Build returns it as an
// immutable value; nothing mutates it afterward.
type Model struct {
	Vars      []Var
	Cons      []Constraint
	Objective []Term // minimize

	ArcVar  map[ArcKey]int
	TimeVar map[VisitKey]int
	LoadVar map[VisitKey]int

	// Structured instance view for solvers.
	Arcs     map[ArcKey]ArcInfo
	Visits   map[int]VisitInfo
	Vehicles []model.Vehicle
	Requests []model.Request

	BigM float64 // time linearization constant (>= schedule horizon)
	BigQ float64 // load linearization constant (>= max capacity + max demand)
}

// Build constructs the routing model from a validated network: binary arc
// variables, continuous arrival-time and load variables, flow/pairing/
// time-window/capacity constraints, and the arc-cost objective.
func Build(net *network.Network) (Model, error) {
	vehicles := net.Vehicles()
	requests := net.Requests()

	m := Model{
		ArcVar:   map[ArcKey]int{},
		TimeVar:  map[VisitKey]int{},
		LoadVar:  map[VisitKey]int{},
		Arcs:     map[ArcKey]ArcInfo{},
		Visits:   map[int]VisitInfo{},
		Vehicles: append([]model.Vehicle(nil), vehicles...),
		Requests: append([]model.Request(nil), requests...),
	}

	pickups := make([]int, 0, len(requests))
	deliveries := make([]int, 0, len(requests))
	maxDemand := 0
	for _, r := range requests {
		pickups = append(pickups, r.Origin)
		deliveries = append(deliveries, r.Destination)
		if r.Demand > maxDemand {
			maxDemand = r.Demand
		}
	}
	service := append(append([]int{}, pickups...), deliveries...)

	for _, id := range service {
		r, _ := net.RequestAt(id)
		m.Visits[id] = VisitInfo{Window: net.Window(id), Service: net.ServiceTime(id), Delta: net.DemandDelta(id), RequestID: r.ID}
	}
	maxCap := 0
	for _, v := range vehicles {
		for _, dep := range []int{v.StartDepot, v.EndDepot} {
			m.Visits[dep] = VisitInfo{Window: net.Window(dep), Service: net.ServiceTime(dep), RequestID: -1}
		}
		if v.Capacity > maxCap {
			maxCap = v.Capacity
		}
	}

	m.BigQ = float64(maxCap+maxDemand) + 1

	// Variables.
	addVar := func(v Var) int {
		m.Vars = append(m.Vars, v)
		return len(m.Vars) - 1
	}

	for _, v := range vehicles {
		froms := append(append([]int{}, service...), v.StartDepot)
		tos := append(append([]int{}, service...), v.EndDepot)
		for _, i := range froms {
			for _, j := range tos {
				if i == j {
					continue
				}
				p, err := net.Path(i, j)
				if err != nil {
					// Disconnected pair: infinite cost, no arc variable.
					continue
				}
				k := ArcKey{From: i, To: j, Vehicle: v.ID}
				m.Arcs[k] = ArcInfo{TravelTime: p.TravelTime, Distance: p.Distance, Cost: p.Cost}
				m.ArcVar[k] = addVar(Var{Name: fmt.Sprintf("x_%d_%d_%d", i, j, v.ID), Kind: Binary, Lo: 0, Hi: 1})
			}
		}
		for _, n := range append(append([]int{}, service...), v.StartDepot, v.EndDepot) {
			vi := m.Visits[n]
			m.TimeVar[VisitKey{Node: n, Vehicle: v.ID}] = addVar(Var{
				Name: fmt.Sprintf("t_%d_%d", n, v.ID), Kind: Continuous,
				Lo: vi.Window.Start, Hi: vi.Window.End,
			})
			lo, hi := loadBounds(n, vi, v.Capacity, v.StartDepot)
			m.LoadVar[VisitKey{Node: n, Vehicle: v.ID}] = addVar(Var{
				Name: fmt.Sprintf("l_%d_%d", n, v.ID), Kind: Continuous, Lo: lo, Hi: hi,
			})
		}
	}

	// Big-M must dominate b_i + s_i + tt_ij - a_j for every arc; anything
	// smaller risks silently cutting off valid schedules.
	maxLeg, maxService := 0.0, 0.0
	for _, info := range m.Arcs {
		maxLeg = math.Max(maxLeg, info.TravelTime)
	}
	for _, vi := range m.Visits {
		maxService = math.Max(maxService, vi.Service)
	}
	m.BigM = net.Horizon() + maxLeg + maxService + 1

	outArcs := func(vid, from int) []ArcKey {
		var out []ArcKey
		for k := range m.ArcVar {
			if k.Vehicle == vid && k.From == from {
				out = append(out, k)
			}
		}
		return out
	}
	inArcs := func(vid, to int) []ArcKey {
		var in []ArcKey
		for k := range m.ArcVar {
			if k.Vehicle == vid && k.To == to {
				in = append(in, k)
			}
		}
		return in
	}

	// Visitation: each pickup served exactly once across the fleet.
	for _, r := range requests {
		var terms []Term
		for _, v := range vehicles {
			for _, a := range outArcs(v.ID, r.Origin) {
				terms = append(terms, Term{Var: m.ArcVar[a], Coef: 1})
			}
		}
		m.Cons = append(m.Cons, Constraint{Name: fmt.Sprintf("visit_r%d", r.ID), Terms: terms, Sense: EQ, RHS: 1})
	}

	// Pairing: the vehicle leaving a pickup also enters the paired delivery.
	for _, v := range vehicles {
		for _, r := range requests {
			var terms []Term
			for _, a := range outArcs(v.ID, r.Origin) {
				terms = append(terms, Term{Var: m.ArcVar[a], Coef: 1})
			}
			for _, a := range inArcs(v.ID, r.Destination) {
				terms = append(terms, Term{Var: m.ArcVar[a], Coef: -1})
			}
			m.Cons = append(m.Cons, Constraint{Name: fmt.Sprintf("pair_k%d_r%d", v.ID, r.ID), Terms: terms, Sense: EQ, RHS: 0})
		}
	}

	for _, v := range vehicles {
		// Route start and end at the vehicle's own depots.
		var dep, arr []Term
		for _, a := range outArcs(v.ID, v.StartDepot) {
			dep = append(dep, Term{Var: m.ArcVar[a], Coef: 1})
		}
		for _, a := range inArcs(v.ID, v.EndDepot) {
			arr = append(arr, Term{Var: m.ArcVar[a], Coef: 1})
		}
		m.Cons = append(m.Cons, Constraint{Name: fmt.Sprintf("depart_k%d", v.ID), Terms: dep, Sense: EQ, RHS: 1})
		m.Cons = append(m.Cons, Constraint{Name: fmt.Sprintf("arrive_k%d", v.ID), Terms: arr, Sense: EQ, RHS: 1})

		// Flow conservation at every service node.
		for _, n := range service {
			var terms []Term
			for _, a := range inArcs(v.ID, n) {
				terms = append(terms, Term{Var: m.ArcVar[a], Coef: 1})
			}
			for _, a := range outArcs(v.ID, n) {
				terms = append(terms, Term{Var: m.ArcVar[a], Coef: -1})
			}
			m.Cons = append(m.Cons, Constraint{Name: fmt.Sprintf("flow_k%d_n%d", v.ID, n), Terms: terms, Sense: EQ, RHS: 0})
		}

		// Time propagation (big-M, subsumes subtour elimination):
		// t_i + s_i + tt_ij - t_j <= M * (1 - x_ijk)
		for a, info := range m.Arcs {
			if a.Vehicle != v.ID {
				continue
			}
			ti := m.TimeVar[VisitKey{Node: a.From, Vehicle: v.ID}]
			tj := m.TimeVar[VisitKey{Node: a.To, Vehicle: v.ID}]
			s := m.Visits[a.From].Service
			m.Cons = append(m.Cons, Constraint{
				Name:  fmt.Sprintf("time_k%d_%d_%d", v.ID, a.From, a.To),
				Terms: []Term{{Var: ti, Coef: 1}, {Var: tj, Coef: -1}, {Var: m.ArcVar[a], Coef: m.BigM}},
				Sense: LE,
				RHS:   m.BigM - s - info.TravelTime,
			})
		}

		// Precedence: delivery no earlier than pickup plus minimum travel.
		for _, r := range requests {
			p, err := net.Path(r.Origin, r.Destination)
			if err != nil {
				return Model{}, err
			}
			tp := m.TimeVar[VisitKey{Node: r.Origin, Vehicle: v.ID}]
			td := m.TimeVar[VisitKey{Node: r.Destination, Vehicle: v.ID}]
			m.Cons = append(m.Cons, Constraint{
				Name:  fmt.Sprintf("prec_k%d_r%d", v.ID, r.ID),
				Terms: []Term{{Var: tp, Coef: 1}, {Var: td, Coef: -1}},
				Sense: LE,
				RHS:   -(m.Visits[r.Origin].Service + p.TravelTime),
			})
		}

		// Load propagation (two-sided big-M):
		// l_i + delta_j - l_j <= Q * (1 - x)   and   >= -Q * (1 - x)
		for a := range m.Arcs {
			if a.Vehicle != v.ID {
				continue
			}
			li := m.LoadVar[VisitKey{Node: a.From, Vehicle: v.ID}]
			lj := m.LoadVar[VisitKey{Node: a.To, Vehicle: v.ID}]
			delta := float64(m.Visits[a.To].Delta)
			m.Cons = append(m.Cons,
				Constraint{
					Name:  fmt.Sprintf("load_k%d_%d_%d_ub", v.ID, a.From, a.To),
					Terms: []Term{{Var: li, Coef: 1}, {Var: lj, Coef: -1}, {Var: m.ArcVar[a], Coef: m.BigQ}},
					Sense: LE,
					RHS:   m.BigQ - delta,
				},
				Constraint{
					Name:  fmt.Sprintf("load_k%d_%d_%d_lb", v.ID, a.From, a.To),
					Terms: []Term{{Var: li, Coef: 1}, {Var: lj, Coef: -1}, {Var: m.ArcVar[a], Coef: -m.BigQ}},
					Sense: GE,
					RHS:   -m.BigQ - delta,
				})
		}
	}

	// Objective: total traversal cost over selected arcs.
	for a, info := range m.Arcs {
		m.Objective = append(m.Objective, Term{Var: m.ArcVar[a], Coef: info.Cost})
	}

	return m, nil
}

func loadBounds(node int, vi VisitInfo, capacity int, startDepot int) (float64, float64) {
	switch {
	case node == startDepot:
		return 0, 0 // vehicles leave the depot empty
	case vi.Delta > 0:
		return float64(vi.Delta), float64(capacity)
	case vi.Delta < 0:
		return 0, float64(capacity + vi.Delta)
	default:
		return 0, float64(capacity)
	}
}

const evalEps = 1e-6

// Vector expands a solver assignment into a full variable-value vector.
// Unvisited (node, vehicle) time and load variables take their lower bounds;
// their values are meaningless but must satisfy the relaxed big-M rows.
func (m *Model) Vector(a Assignment) []float64 {
	x := make([]float64, len(m.Vars))
	for i, v := range m.Vars {
		x[i] = v.Lo
	}
	// Unvisited deliveries default to the window end so the precedence rows
	// of non-serving vehicles stay satisfiable (guaranteed by the network's
	// pairing-feasibility validation).
	for k, idx := range m.TimeVar {
		if m.Visits[k.Node].Delta < 0 {
			x[idx] = m.Vars[idx].Hi
		}
	}
	for k, used := range a.ArcUsed {
		if used {
			x[m.ArcVar[k]] = 1
		}
	}
	for k, t := range a.ArrivalTime {
		if idx, ok := m.TimeVar[k]; ok {
			x[idx] = t
		}
	}
	for k, l := range a.Load {
		if idx, ok := m.LoadVar[k]; ok {
			x[idx] = float64(l)
		}
	}
	return x
}

// Check verifies a full variable-value vector against every variable bound
// and constraint of the model.
func (m *Model) Check(x []float64) error {
	if len(x) != len(m.Vars) {
		return fmt.Errorf("model: vector length %d, want %d", len(x), len(m.Vars))
	}
	for i, v := range m.Vars {
		if x[i] < v.Lo-evalEps || x[i] > v.Hi+evalEps {
			return fmt.Errorf("model: %s = %.3f outside [%.3f, %.3f]", v.Name, x[i], v.Lo, v.Hi)
		}
		if v.Kind == Binary && math.Abs(x[i]-math.Round(x[i])) > evalEps {
			return fmt.Errorf("model: %s = %.3f not integral", v.Name, x[i])
		}
	}
	for _, c := range m.Cons {
		lhs := 0.0
		for _, t := range c.Terms {
			lhs += t.Coef * x[t.Var]
		}
		ok := true
		switch c.Sense {
		case LE:
			ok = lhs <= c.RHS+evalEps
		case GE:
			ok = lhs >= c.RHS-evalEps
		case EQ:
			ok = math.Abs(lhs-c.RHS) <= evalEps
		}
		if !ok {
			return fmt.Errorf("model: constraint %s violated (lhs %.3f, rhs %.3f)", c.Name, lhs, c.RHS)
		}
	}
	return nil
}

// Cost evaluates the objective for a vector.
func (m *Model) Cost(x []float64) float64 {
	total := 0.0
	for _, t := range m.Objective {
		total += t.Coef * x[t.Var]
	}
	return total
}
