package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chargenet/csms/internal/adapter/http/fiber/middleware"
	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/ports"
)

type TicketHandler struct {
	tickets ports.TicketService
	auth    ports.AuthService
	log     *zap.Logger
}

func NewTicketHandler(tickets ports.TicketService, auth ports.AuthService, log *zap.Logger) *TicketHandler {
	return &TicketHandler{tickets: tickets, auth: auth, log: log}
}

func ticketID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid ticket id")
	}
	return uint(id), nil
}

type CreateTicketBody struct {
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`
}

func (h *TicketHandler) Create(c *fiber.Ctx) error {
	var body CreateTicketBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	ticket, err := h.tickets.Create(c.Context(), ports.CreateTicketRequest{
		UserID:      middleware.UserID(c),
		Subject:     body.Subject,
		Description: body.Description,
		Category:    body.Category,
		Priority:    domain.TicketPriority(body.Priority),
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(ticket)
}

func (h *TicketHandler) Get(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.Get(c.Context(), id, middleware.Claims(c))
	if err != nil {
		return err
	}
	return c.JSON(ticket)
}

func (h *TicketHandler) List(c *fiber.Ctx) error {
	filter := ports.TicketFilter{
		Department: c.Query("department"),
		Status:     domain.TicketStatus(c.Query("status")),
		Priority:   domain.TicketPriority(c.Query("priority")),
		Limit:      c.QueryInt("limit", 50),
		Offset:     c.QueryInt("offset", 0),
	}
	tickets, err := h.tickets.List(c.Context(), filter, middleware.Claims(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"tickets": tickets, "count": len(tickets)})
}

type AddMessageBody struct {
	Body string `json:"body"`
}

func (h *TicketHandler) AddMessage(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var body AddMessageBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	claims := middleware.Claims(c)
	if _, err := h.tickets.Get(c.Context(), id, claims); err != nil {
		return err
	}

	user, err := h.auth.GetUser(c.Context(), claims.UserID)
	if err != nil {
		return err
	}

	msg, err := h.tickets.AddMessage(c.Context(), id, user.ID, user.Name, body.Body)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (h *TicketHandler) ListMessages(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	messages, err := h.tickets.ListMessages(c.Context(), id, middleware.Claims(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"messages": messages, "count": len(messages)})
}

type UpdateTicketStatusBody struct {
	Status string `json:"status"`
}

func (h *TicketHandler) UpdateStatus(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var body UpdateTicketStatusBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	ticket, err := h.tickets.UpdateStatus(c.Context(), id, domain.TicketStatus(body.Status))
	if err != nil {
		return err
	}
	return c.JSON(ticket)
}

type UpdateTicketPriorityBody struct {
	Priority string `json:"priority"`
}

func (h *TicketHandler) UpdatePriority(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var body UpdateTicketPriorityBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	ticket, err := h.tickets.UpdatePriority(c.Context(), id, domain.TicketPriority(body.Priority))
	if err != nil {
		return err
	}
	return c.JSON(ticket)
}

type AssignStaffBody struct {
	StaffID uint `json:"staff_id"`
}

func (h *TicketHandler) AssignStaff(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var body AssignStaffBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	ticket, err := h.tickets.AssignStaff(c.Context(), id, body.StaffID)
	if err != nil {
		return err
	}
	return c.JSON(ticket)
}

func (h *TicketHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.tickets.Stats(c.Context(), c.Query("department"))
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

func (h *TicketHandler) ListOverdue(c *fiber.Ctx) error {
	tickets, err := h.tickets.ListOverdue(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"tickets": tickets, "count": len(tickets)})
}
