package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/client-roster/internal/api/dto"
	"github.com/spec-kit/client-roster/internal/auth"
	"github.com/spec-kit/client-roster/internal/roster"
	"github.com/spec-kit/client-roster/internal/service"
	apperrors "github.com/spec-kit/client-roster/pkg/util/errorutil"
)

const maxBatchSize = 500

// ClientsHandler exposes the client roster.
type ClientsHandler struct {
	sessions        *service.SessionRegistry
	users           *service.UserService
	defaultPageSize int
	now             func() time.Time
}

// NewClientsHandler constructs handler.
func NewClientsHandler(sessions *service.SessionRegistry, users *service.UserService, defaultPageSize int) *ClientsHandler {
	return &ClientsHandler{sessions: sessions, users: users, defaultPageSize: defaultPageSize, now: time.Now}
}

// List handles GET /clients.
func (h *ClientsHandler) List(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	d := roster.Build(
		roster.RawFilters{
			Search:   c.Query("search"),
			Status:   c.Query("status"),
			Owner:    c.Query("owner"),
			Location: c.Query("location"),
		},
		roster.SortSpec{
			Field:     roster.SortField(c.Query("sort")),
			Direction: roster.Direction(strings.ToLower(c.Query("direction"))),
		},
		roster.PageSpec{
			Number: c.QueryInt("page", 1),
			Size:   c.QueryInt("page_size", h.defaultPageSize),
		},
	)

	session := h.sessions.Session(actor)
	page, err := session.Fetch(c.UserContext(), d)
	if err != nil {
		return err
	}
	knownUsers, err := h.users.ListVisible(c.UserContext(), actor)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": dto.NewRowResponses(session.Rows(page, knownUsers, h.now())),
		"meta": dto.NewPageMeta(page),
	})
}

// Create handles POST /clients.
func (h *ClientsHandler) Create(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.CreateClientRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	draft, err := req.ToDraft()
	if err != nil {
		return err
	}

	rec, err := h.sessions.Session(actor).Create(c.UserContext(), draft)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewClientResponse(*rec)})
}

// CreateBatch handles POST /clients/batch. Items succeed or fail independently.
func (h *ClientsHandler) CreateBatch(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.BatchCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if len(req.Clients) == 0 {
		return apperrors.NewValidationError("clients required", map[string]any{"field": "clients"})
	}
	if len(req.Clients) > maxBatchSize {
		return apperrors.NewValidationError("too many clients in one batch", map[string]any{"max": maxBatchSize})
	}

	session := h.sessions.Session(actor)
	drafts := make([]service.ClientDraft, 0, len(req.Clients))
	parseErrs := map[int]error{}
	for i, item := range req.Clients {
		draft, err := item.ToDraft()
		if err != nil {
			parseErrs[i] = err
			draft = service.ClientDraft{}
		}
		drafts = append(drafts, draft)
	}

	results := session.CreateBatch(c.UserContext(), drafts)
	failed := 0
	for i := range results {
		if err, ok := parseErrs[i]; ok {
			results[i].Record = nil
			results[i].Err = err
		}
		if results[i].Err != nil {
			failed++
		}
	}

	status := http.StatusOK
	if failed > 0 {
		status = http.StatusMultiStatus
	}
	return c.Status(status).JSON(fiber.Map{
		"data": dto.NewBatchResponse(results),
		"meta": fiber.Map{"created": len(results) - failed, "failed": failed},
	})
}

// Update handles PATCH /clients/:id.
func (h *ClientsHandler) Update(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.UpdateClientRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	patch, err := req.ToPatch()
	if err != nil {
		return err
	}

	rec, err := h.sessions.Session(actor).Update(c.UserContext(), c.Params("id"), patch)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewClientResponse(*rec)})
}

// Delete handles DELETE /clients/:id.
func (h *ClientsHandler) Delete(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	if err := h.sessions.Session(actor).Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
