package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chargenet/csms/internal/adapter/http/fiber/middleware"
	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/ports"
)

// ChargingHandler is the user-facing charging surface: remote start/stop and
// session history.
type ChargingHandler struct {
	sessions ports.SessionService
	log      *zap.Logger
}

func NewChargingHandler(sessions ports.SessionService, log *zap.Logger) *ChargingHandler {
	return &ChargingHandler{sessions: sessions, log: log}
}

type RemoteStartRequest struct {
	ChargePointID string `json:"charge_point_id"`
	ConnectorID   int    `json:"connector_id"`
	IDTag         string `json:"id_tag"`
}

func (h *ChargingHandler) RemoteStart(c *fiber.Ctx) error {
	var req RemoteStartRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.ChargePointID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "charge_point_id is required"})
	}

	claims := middleware.Claims(c)
	idTag := req.IDTag
	if idTag == "" && claims != nil {
		idTag = claims.Email
	}
	var userID *uint
	if claims != nil {
		uid := claims.UserID
		userID = &uid
	}

	result, err := h.sessions.RemoteStart(c.Context(), req.ChargePointID, req.ConnectorID, idTag, userID)
	if err != nil {
		return err
	}
	status := fiber.StatusOK
	if result.BestEffort {
		status = fiber.StatusAccepted
	}
	return c.Status(status).JSON(result)
}

type RemoteStopRequest struct {
	TransactionID int    `json:"transaction_id"`
	ChargePointID string `json:"charge_point_id"`
}

func (h *ChargingHandler) RemoteStop(c *fiber.Ctx) error {
	var req RemoteStopRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	result, err := h.sessions.RemoteStop(c.Context(), req.TransactionID, req.ChargePointID)
	if err != nil {
		return err
	}
	status := fiber.StatusOK
	if result.BestEffort {
		status = fiber.StatusAccepted
	}
	return c.Status(status).JSON(result)
}

func (h *ChargingHandler) GetSession(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session id"})
	}
	session, err := h.sessions.GetSession(c.Context(), uint(id))
	if err != nil {
		return err
	}
	return c.JSON(session)
}

func (h *ChargingHandler) ListSessions(c *fiber.Ctx) error {
	filter := ports.SessionFilter{
		ChargePointID: c.Query("charge_point_id"),
		Status:        domain.SessionStatus(c.Query("status")),
		Limit:         c.QueryInt("limit", 50),
		Offset:        c.QueryInt("offset", 0),
	}

	// Non-admins only see their own sessions.
	claims := middleware.Claims(c)
	if claims != nil && !claims.IsAdmin {
		uid := claims.UserID
		filter.UserID = &uid
	} else if v := c.QueryInt("user_id", 0); v > 0 {
		uid := uint(v)
		filter.UserID = &uid
	}

	sessions, err := h.sessions.ListSessions(c.Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"sessions": sessions, "count": len(sessions)})
}

func (h *ChargingHandler) ListMeterValues(c *fiber.Ctx) error {
	var txnID *int
	if v := c.QueryInt("transaction_id", 0); v != 0 {
		txnID = &v
	}
	values, err := h.sessions.ListMeterValues(c.Context(), c.Params("cpid"), txnID, c.QueryInt("limit", 100))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"meter_values": values, "count": len(values)})
}

func (h *ChargingHandler) ListFaults(c *fiber.Ctx) error {
	includeCleared := c.QueryBool("include_cleared", false)
	faults, err := h.sessions.ListFaults(c.Context(), c.Params("cpid"), includeCleared)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"faults": faults, "count": len(faults)})
}
