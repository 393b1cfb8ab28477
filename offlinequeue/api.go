package offlinequeue

import (
	"time"

	"cinema_pos/apperror"
	"cinema_pos/model"
	"cinema_pos/utils"
	"cinema_pos/validate"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// API is the terminal-local HTTP surface the POS front end talks to.
type API struct {
	store   *Store
	drainer *Drainer
	watcher *Watcher
}

func NewAPI(store *Store, drainer *Drainer, watcher *Watcher) *API {
	return &API{store: store, drainer: drainer, watcher: watcher}
}

func (a *API) App() *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: utils.ErrorHandler})
	a.Register(app)
	return app
}

func (a *API) Register(r fiber.Router) {
	r.Get("/status", a.status)
	r.Post("/queue", a.enqueue)
	r.Get("/queue", a.list)
	r.Post("/queue/drain", a.drain)
	r.Post("/queue/:queueId/retry", a.retry)
}

type statusResponse struct {
	Online    bool       `json:"online"`
	LastCheck *time.Time `json:"lastCheck,omitempty"`
	Pending   int        `json:"pending"`
	Failed    int        `json:"failed"`
}

func (a *API) status(c *fiber.Ctx) error {
	pending, err := a.store.Pending(c.UserContext())
	if err != nil {
		return utils.DomainError(c, err)
	}
	failed, err := a.store.List(c.UserContext(), model.QueueFailed)
	if err != nil {
		return utils.DomainError(c, err)
	}
	res := statusResponse{Pending: len(pending), Failed: len(failed)}
	if a.watcher != nil {
		res.Online = a.watcher.Online()
		if last := a.watcher.LastCheck(); !last.IsZero() {
			res.LastCheck = &last
		}
	}
	return utils.SuccessResponse(c, fiber.StatusOK, res)
}

func (a *API) enqueue(c *fiber.Ctx) error {
	var input model.AcceptOrderInput
	if err := c.BodyParser(&input); err != nil {
		return utils.DomainError(c, apperror.Validation("invalid input: %s", err.Error()))
	}
	input.Source = model.SourceOfflinePOS
	if input.IdempotencyKey == "" {
		input.IdempotencyKey = c.Get("Idempotency-Key", uuid.NewString())
	}
	if err := validate.Struct(input); err != nil {
		return utils.DomainError(c, err)
	}
	entry, err := a.store.Enqueue(c.UserContext(), input)
	if err != nil {
		return utils.DomainError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusCreated, entry)
}

func (a *API) list(c *fiber.Ctx) error {
	entries, err := a.store.List(c.UserContext(), model.QueueStatus(c.Query("status")))
	if err != nil {
		return utils.DomainError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, entries)
}

func (a *API) drain(c *fiber.Ctx) error {
	report, err := a.drainer.Drain(c.UserContext())
	if err != nil {
		return utils.DomainError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, report)
}

func (a *API) retry(c *fiber.Ctx) error {
	if err := a.store.Retry(c.UserContext(), c.Params("queueId")); err != nil {
		return utils.DomainError(c, err)
	}
	return utils.SuccessResponse(c, fiber.StatusOK, fiber.Map{"queueId": c.Params("queueId")})
}
