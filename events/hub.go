package events

import (
	"context"
	"encoding/json"
	"sync"

	"cinema_pos/model"

	"github.com/fasthttp/websocket"
)

// Websocket topics a theater client can subscribe to.
const (
	TopicOrders = "orders"
	TopicPrint  = "print"
)

type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type room struct {
	theaterID uint
	topic     string
}

// Hub fans messages out to the websocket clients of a theater.
type Hub struct {
	mu      sync.Mutex
	clients map[room]map[Conn]bool
}

func NewHub() *Hub {
	return &Hub{clients: make(map[room]map[Conn]bool)}
}

// Join registers conn and returns the function that removes it.
func (h *Hub) Join(theaterID uint, topic string, conn Conn) func() {
	key := room{theaterID: theaterID, topic: topic}
	h.mu.Lock()
	if h.clients[key] == nil {
		h.clients[key] = make(map[Conn]bool)
	}
	h.clients[key][conn] = true
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		if h.clients[key] != nil {
			delete(h.clients[key], conn)
			if len(h.clients[key]) == 0 {
				delete(h.clients, key)
			}
		}
		h.mu.Unlock()
	}
}

// Broadcast writes payload to every client of the room and drops the ones
// that fail. It returns how many clients received it.
func (h *Hub) Broadcast(theaterID uint, topic string, payload []byte) int {
	key := room{theaterID: theaterID, topic: topic}
	h.mu.Lock()
	defer h.mu.Unlock()

	sent := 0
	for conn := range h.clients[key] {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			delete(h.clients[key], conn)
			continue
		}
		sent++
	}
	return sent
}

func (h *Hub) Count(theaterID uint, topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[room{theaterID: theaterID, topic: topic}])
}

// Notification is what front-ends receive on the orders topic.
type Notification struct {
	Topic       string              `json:"topic"`
	Type        string              `json:"type"`
	TheaterId   uint                `json:"theaterId"`
	OrderId     string              `json:"orderId"`
	OrderNumber string              `json:"orderNumber,omitempty"`
	Version     int64               `json:"version"`
	Status      model.OrderStatus   `json:"status"`
	Reason      string              `json:"reason,omitempty"`
	Source      model.Source        `json:"source,omitempty"`
	Method      model.PaymentMethod `json:"method,omitempty"`
	Total       int64               `json:"total"`
	// Alert is set for new orders so counters can play a sound.
	Alert bool `json:"alert"`
}

func NotificationFrom(msg Message) Notification {
	n := Notification{
		Topic:     TopicOrders,
		Type:      msg.Type,
		TheaterId: msg.TheaterId,
		OrderId:   msg.OrderId,
		Version:   msg.Version,
		Status:    msg.Status,
		Reason:    msg.Reason,
		Alert:     msg.Type == model.EventOrderCreated,
	}
	if o := msg.Order; o != nil {
		n.OrderNumber = o.OrderNumber
		n.Source = o.Source
		n.Method = o.Payment.Method
		n.Total = o.Pricing.Total
	}
	return n
}

// NotifyHandler is the notify group's handler: it pushes every event to the
// theater's orders topic.
func NotifyHandler(hub *Hub) Handler {
	return func(ctx context.Context, msg Message) error {
		payload, err := json.Marshal(NotificationFrom(msg))
		if err != nil {
			return err
		}
		hub.Broadcast(msg.TheaterId, TopicOrders, payload)
		return nil
	}
}
