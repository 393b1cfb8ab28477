package handler

import (
	"cinema_pos/events"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// StreamUpgrade only lets websocket handshakes through to OrderStream.
func StreamUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	switch c.Query("topic", events.TopicOrders) {
	case events.TopicOrders, events.TopicPrint:
	default:
		return fiber.NewError(fiber.StatusBadRequest, "unknown topic")
	}
	return c.Next()
}

// OrderStream pushes order notifications (topic=orders) or print batches
// (topic=print) of one theater to the connected client until it leaves.
func OrderStream(c *websocket.Conn) {
	theaterID, _ := c.Locals("theaterId").(uint)
	topic := c.Query("topic", events.TopicOrders)

	leave := deps.Hub.Join(theaterID, topic, c)
	defer func() {
		leave()
		c.Close()
	}()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}
