package opt

import (
	"fmt"
	"math"
	"sort"

	"pdroute/internal/model"
	"pdroute/internal/network"
)

// AssembleTrip packages one vehicle's legs into the external trip record:
// "H:M" times, one-decimal cost/time/distance, status labels, and aggregate
// totals. Pure transformation, no decision logic.
func AssembleTrip(net *network.Network, vehicleID int, legs []Leg) model.Trip {
	trip := model.Trip{VehicleID: vehicleID, Movements: make([]model.Movement, 0, len(legs))}
	for _, l := range legs {
		trip.Movements = append(trip.Movements, model.Movement{
			OriginID:      l.From,
			DestinationID: l.To,
			StartTime:     clock(l.StartTime),
			FinishTime:    clock(l.FinishTime),
			StartLoad:     l.StartLoad,
			FinishLoad:    l.FinishLoad,
			RequestID:     l.RequestID,
			Path:          l.Path,
			PathCost:      round1(l.Cost),
			TravelTime:    round1(l.TravelTime),
			Distance:      round1(l.Distance),
			Status:        status(net, l),
		})
		trip.TotalCost += l.Cost
		trip.TotalTravelTime += l.TravelTime
		trip.TotalDistance += l.Distance
	}
	trip.TotalCost = round1(trip.TotalCost)
	trip.TotalTravelTime = round1(trip.TotalTravelTime)
	trip.TotalDistance = round1(trip.TotalDistance)
	return trip
}

// Trips runs extraction and assembly for the whole fleet. Trips come back
// ordered by vehicle id; vehicles whose routes failed reconstruction appear
// only in the error map.
func Trips(net *network.Network, a Assignment) ([]model.Trip, map[int]error) {
	legs, errs := Extract(net, a)
	ids := make([]int, 0, len(legs))
	for id := range legs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	trips := make([]model.Trip, 0, len(ids))
	for _, id := range ids {
		trips = append(trips, AssembleTrip(net, id, legs[id]))
	}
	return trips, errs
}

func status(net *network.Network, l Leg) string {
	nd, _ := net.Node(l.To)
	switch nd.Kind {
	case model.NodePickup:
		return fmt.Sprintf("Picking Up Request %d at Node %d", l.RequestID, l.To)
	case model.NodeDelivery:
		return fmt.Sprintf("Delivering Request %d at Node %d", l.RequestID, l.To)
	default:
		return fmt.Sprintf("Going to Destination Depot %d", l.To)
	}
}

// clock renders minutes as "H:M" (no zero padding).
func clock(minutes float64) string {
	m := int(math.Round(minutes))
	return fmt.Sprintf("%d:%d", m/60, m%60)
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
