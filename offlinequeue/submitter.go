package offlinequeue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"cinema_pos/model"

	"github.com/gofiber/fiber/v2"
)

// HTTPSubmitter posts queued orders to the server's accept-order endpoint.
type HTTPSubmitter struct {
	baseURL string
	token   string
	timeout time.Duration
}

func NewHTTPSubmitter(baseURL, token string, timeout time.Duration) *HTTPSubmitter {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSubmitter{baseURL: strings.TrimRight(baseURL, "/"), token: token, timeout: timeout}
}

type acceptResponse struct {
	Message string `json:"message"`
	Error   any    `json:"error"`
	Data    struct {
		Order *model.Order `json:"order"`
	} `json:"data"`
}

func (s *HTTPSubmitter) Submit(ctx context.Context, entry model.QueueEntry) (SubmitResult, error) {
	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}
	agent := fiber.Post(s.baseURL + "/api/v1/orders")
	agent.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	agent.Set("Idempotency-Key", entry.IdempotencyKey)
	if s.token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+s.token)
	}
	agent.Body([]byte(entry.Payload))
	agent.Timeout(timeout)

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return SubmitResult{}, errors.Join(errs...)
	}

	res := SubmitResult{Status: code}
	var parsed acceptResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		res.Message = strings.TrimSpace(string(body))
		return res, nil
	}
	res.Message = parsed.Message
	if e, ok := parsed.Error.(string); ok && e != "" {
		res.Message = e
	}
	if order := parsed.Data.Order; order != nil {
		res.OrderId = order.ID
		res.OrderNumber = order.OrderNumber
		res.IdempotencyKey = order.IdempotencyKey
	}
	return res, nil
}

// Ping reports whether the server answers its health check.
func (s *HTTPSubmitter) Ping(ctx context.Context) bool {
	agent := fiber.Get(s.baseURL + "/api/v1/health")
	agent.Timeout(3 * time.Second)
	code, _, errs := agent.Bytes()
	return len(errs) == 0 && code == fiber.StatusOK
}
