package model

// Core domain types for the pickup-and-delivery routing pipeline.
// All times are minutes from the start of the planning day.

type NodeKind string

const (
	NodeDepot    NodeKind = "depot"
	NodePickup   NodeKind = "pickup"
	NodeDelivery NodeKind = "delivery"
	NodeJunction NodeKind = "junction"
)

// Window is a [Start, End] service time window in minutes.
type Window struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type Node struct {
	ID          int      `json:"id"`
	Kind        NodeKind `json:"kind"`
	X           float64  `json:"x"`
	Y           float64  `json:"y"`
	Window      *Window  `json:"window,omitempty"`
	ServiceTime float64  `json:"serviceTimeMin,omitempty"`
	Name        string   `json:"name,omitempty"`
}

type Edge struct {
	Origin      int     `json:"origin"`
	Destination int     `json:"destination"`
	TravelTime  float64 `json:"travelTimeMin"`
	Distance    float64 `json:"distance"`
	// Cost is the traversal cost of the edge. Zero means "derive from
	// cost factors" (alpha*time + beta*distance).
	Cost float64 `json:"cost,omitempty"`
}

type Request struct {
	ID              int     `json:"id"`
	Origin          int     `json:"origin"`
	Destination     int     `json:"destination"`
	Demand          int     `json:"demand"`
	Pickup          Window  `json:"pickupWindow"`
	Delivery        Window  `json:"deliveryWindow"`
	PickupService   float64 `json:"pickupServiceMin,omitempty"`
	DeliveryService float64 `json:"deliveryServiceMin,omitempty"`
}

type Vehicle struct {
	ID       int `json:"id"`
	Capacity int `json:"capacity"`
	// StartDepot and EndDepot are depot node ids and may coincide. A
	// coincident pair is kept apart internally as two route anchors over
	// the same node.
	StartDepot int `json:"startDepot"`
	EndDepot   int `json:"endDepot"`
}

// CostFactors weight travel time and distance into an edge traversal cost
// when the edge table does not carry an explicit cost.
type CostFactors struct {
	Alpha float64 `json:"alpha" yaml:"alpha"` // per minute of travel time
	Beta  float64 `json:"beta" yaml:"beta"`   // per unit of distance
}

// Movement is one leg of a reconstructed itinerary between two service
// anchors (depot/pickup/delivery). Times render as "H:M"; Path is the literal
// node sequence traversed, including pass-through junctions.
type Movement struct {
	OriginID      int     `json:"originId"`
	DestinationID int     `json:"destinationId"`
	StartTime     string  `json:"startTime"`
	FinishTime    string  `json:"finishTime"`
	StartLoad     int     `json:"startLoad"`
	FinishLoad    int     `json:"finishLoad"`
	RequestID     int     `json:"requestId"` // -1 when the destination anchor is a depot
	Path          []int   `json:"path"`
	PathCost      float64 `json:"pathCost"`
	TravelTime    float64 `json:"travelTime"`
	Distance      float64 `json:"distance"`
	Status        string  `json:"status"`
}

// Trip is the full ordered itinerary of one vehicle.
type Trip struct {
	VehicleID       int        `json:"vehicleId"`
	Movements       []Movement `json:"movements"`
	TotalCost       float64    `json:"totalCost"`
	TotalTravelTime float64    `json:"totalTravelTime"`
	TotalDistance   float64    `json:"totalDistance"`
}

// ProblemIn is the external problem payload (node/edge/request/vehicle tables).
type ProblemIn struct {
	Name     string    `json:"name,omitempty"`
	Nodes    []Node    `json:"nodes"`
	Edges    []Edge    `json:"edges"`
	Requests []Request `json:"requests"`
	Vehicles []Vehicle `json:"vehicles"`
}

type Problem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Nodes     []Node    `json:"nodes"`
	Edges     []Edge    `json:"edges"`
	Requests  []Request `json:"requests"`
	Vehicles  []Vehicle `json:"vehicles"`
	CreatedAt string    `json:"createdAt,omitempty"`
}

// SolveRequest tunes a single solve run.
type SolveRequest struct {
	TimeBudgetMs int          `json:"timeBudgetMs,omitempty"`
	CostFactors  *CostFactors `json:"costFactors,omitempty"`
}

// Solve lifecycle statuses.
const (
	SolveQueued     = "queued"
	SolveRunning    = "running"
	SolveCompleted  = "completed"
	SolveInfeasible = "infeasible"
	SolveTimedOut   = "timed_out"
	SolveFailed     = "failed"
)

type Solve struct {
	ID        string  `json:"id"`
	ProblemID string  `json:"problemId"`
	Status    string  `json:"status"`
	Objective float64 `json:"objective,omitempty"`
	Trips     []Trip  `json:"trips,omitempty"`
	// Warnings holds per-vehicle extraction failures that did not
	// invalidate the remaining trips.
	Warnings  []string `json:"warnings,omitempty"`
	Error     string   `json:"error,omitempty"`
	CreatedAt string   `json:"createdAt,omitempty"`
	UpdatedAt string   `json:"updatedAt,omitempty"`
}

type SubscriptionRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}

type Subscription struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}
