package order_test

import (
	"testing"

	"ms-enrollment/internal/models"
	"ms-enrollment/internal/order"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	all := []models.OrderState{models.StateCreated, models.StatePayed, models.StateMessaged, models.StateConfirmed}
	legal := map[[2]models.OrderState]bool{
		{models.StateCreated, models.StatePayed}:     true,
		{models.StatePayed, models.StateMessaged}:    true,
		{models.StateMessaged, models.StateConfirmed}: true,
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, legal[[2]models.OrderState{from, to}], order.CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.False(t, order.CanTransition("CANCELLED", models.StatePayed))
}

func TestPriorState(t *testing.T) {
	from, ok := order.PriorState(models.StateMessaged)
	assert.True(t, ok)
	assert.Equal(t, models.StatePayed, from)

	_, ok = order.PriorState(models.StateCreated)
	assert.False(t, ok)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, order.IsTerminal(models.StateConfirmed))
	assert.False(t, order.IsTerminal(models.StateCreated))
	assert.False(t, order.IsTerminal("bogus"))
}
