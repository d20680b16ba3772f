package sse

import (
	"context"
	"sync"

	"ms-enrollment/internal/models"
)

const clientBuffer = 10

// OrderEventEmitter fans lifecycle events out to live subscribers, keyed by
// order and by buyer.
type OrderEventEmitter struct {
	orderClients     map[int64][]chan models.OrderEvent
	orderClientMutex sync.RWMutex

	userClients     map[string][]chan models.OrderEvent
	userClientMutex sync.RWMutex
}

func NewOrderEventEmitter() *OrderEventEmitter {
	return &OrderEventEmitter{
		orderClients: make(map[int64][]chan models.OrderEvent),
		userClients:  make(map[string][]chan models.OrderEvent),
	}
}

// SubscribeToOrder returns a channel that is closed once ctx is done.
func (e *OrderEventEmitter) SubscribeToOrder(ctx context.Context, orderID int64) <-chan models.OrderEvent {
	clientChan := make(chan models.OrderEvent, clientBuffer)

	e.orderClientMutex.Lock()
	e.orderClients[orderID] = append(e.orderClients[orderID], clientChan)
	e.orderClientMutex.Unlock()

	go func() {
		<-ctx.Done()
		e.removeOrderClient(orderID, clientChan)
	}()

	return clientChan
}

func (e *OrderEventEmitter) SubscribeToUser(ctx context.Context, userID string) <-chan models.OrderEvent {
	clientChan := make(chan models.OrderEvent, clientBuffer)

	e.userClientMutex.Lock()
	e.userClients[userID] = append(e.userClients[userID], clientChan)
	e.userClientMutex.Unlock()

	go func() {
		<-ctx.Done()
		e.removeUserClient(userID, clientChan)
	}()

	return clientChan
}

// NotifyOrderEvent never blocks; a subscriber with a full buffer misses the event.
func (e *OrderEventEmitter) NotifyOrderEvent(ev models.OrderEvent) {
	e.orderClientMutex.RLock()
	for _, clientChan := range e.orderClients[ev.OrderID] {
		select {
		case clientChan <- ev:
		default:
		}
	}
	e.orderClientMutex.RUnlock()

	e.userClientMutex.RLock()
	for _, clientChan := range e.userClients[ev.UserID] {
		select {
		case clientChan <- ev:
		default:
		}
	}
	e.userClientMutex.RUnlock()
}

func (e *OrderEventEmitter) removeOrderClient(orderID int64, clientChan chan models.OrderEvent) {
	e.orderClientMutex.Lock()
	defer e.orderClientMutex.Unlock()

	clients := e.orderClients[orderID]
	for i, ch := range clients {
		if ch == clientChan {
			e.orderClients[orderID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}
	if len(e.orderClients[orderID]) == 0 {
		delete(e.orderClients, orderID)
	}
}

func (e *OrderEventEmitter) removeUserClient(userID string, clientChan chan models.OrderEvent) {
	e.userClientMutex.Lock()
	defer e.userClientMutex.Unlock()

	clients := e.userClients[userID]
	for i, ch := range clients {
		if ch == clientChan {
			e.userClients[userID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}
	if len(e.userClients[userID]) == 0 {
		delete(e.userClients, userID)
	}
}

func (e *OrderEventEmitter) OrderClientCount(orderID int64) int {
	e.orderClientMutex.RLock()
	defer e.orderClientMutex.RUnlock()
	return len(e.orderClients[orderID])
}

func (e *OrderEventEmitter) UserClientCount(userID string) int {
	e.userClientMutex.RLock()
	defer e.userClientMutex.RUnlock()
	return len(e.userClients[userID])
}
