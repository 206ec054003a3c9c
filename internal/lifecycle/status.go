package lifecycle

import "github.com/example/ride-simulator/internal/models"

var transitions = map[models.Status]map[models.Status]struct{}{
	models.StatusIdle:           {models.StatusSearching: {}, models.StatusCancelled: {}},
	models.StatusSearching:      {models.StatusMatched: {}, models.StatusCancelled: {}},
	models.StatusMatched:        {models.StatusMatchAccepted: {}, models.StatusCancelled: {}},
	models.StatusMatchAccepted:  {models.StatusDriverArriving: {}, models.StatusCancelled: {}},
	models.StatusDriverArriving: {models.StatusInRide: {}, models.StatusCancelled: {}},
	models.StatusInRide:         {models.StatusPaying: {}, models.StatusCancelled: {}},
	models.StatusPaying:         {models.StatusCompleted: {}, models.StatusCancelled: {}},
	models.StatusCompleted:      {models.StatusSearching: {}},
	models.StatusCancelled:      {models.StatusSearching: {}},
}

// CanTransition returns whether a ride can move from the current status to the target status.
func CanTransition(from, to models.Status) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// Moving reports whether the position simulator runs in status s.
func Moving(s models.Status) bool {
	return s == models.StatusDriverArriving || s == models.StatusInRide
}

// Order is the forward sequence of a ride that is not cancelled.
var Order = []models.Status{
	models.StatusIdle,
	models.StatusSearching,
	models.StatusMatched,
	models.StatusMatchAccepted,
	models.StatusDriverArriving,
	models.StatusInRide,
	models.StatusPaying,
	models.StatusCompleted,
}

// Rank is the position of s in Order, or -1 for CANCELLED and unknown values.
func Rank(s models.Status) int {
	for i, o := range Order {
		if o == s {
			return i
		}
	}
	return -1
}
