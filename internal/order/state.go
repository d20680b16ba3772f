package order

import "ms-enrollment/internal/models"

// transitions lists, for every state, the single state it may advance to.
// CONFIRMED is terminal. Nothing moves backward.
var transitions = map[models.OrderState]models.OrderState{
	models.StateCreated:  models.StatePayed,
	models.StatePayed:    models.StateMessaged,
	models.StateMessaged: models.StateConfirmed,
}

// CanTransition reports whether from -> to is a legal single step.
func CanTransition(from, to models.OrderState) bool {
	next, ok := transitions[from]
	return ok && next == to
}

// PriorState returns the state an order must be in to move into target.
func PriorState(target models.OrderState) (models.OrderState, bool) {
	for from, to := range transitions {
		if to == target {
			return from, true
		}
	}
	return "", false
}

func IsTerminal(s models.OrderState) bool {
	_, ok := transitions[s]
	return s.Valid() && !ok
}
