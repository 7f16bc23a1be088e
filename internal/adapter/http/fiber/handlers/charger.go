package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/ports"
)

type ChargerHandler struct {
	chargers ports.ChargerService
	commands ports.CommandSender
	log      *zap.Logger
}

func NewChargerHandler(chargers ports.ChargerService, commands ports.CommandSender, log *zap.Logger) *ChargerHandler {
	return &ChargerHandler{chargers: chargers, commands: commands, log: log}
}

type RegisterChargerRequest struct {
	ChargePointID      string  `json:"charge_point_id"`
	Name               string  `json:"name"`
	Location           string  `json:"location"`
	Latitude           float64 `json:"latitude"`
	Longitude          float64 `json:"longitude"`
	NumberOfConnectors int     `json:"number_of_connectors"`
}

func (h *ChargerHandler) Register(c *fiber.Ctx) error {
	var req RegisterChargerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	charger := &domain.Charger{
		ChargePointID:      req.ChargePointID,
		Name:               req.Name,
		Location:           req.Location,
		Latitude:           req.Latitude,
		Longitude:          req.Longitude,
		NumberOfConnectors: req.NumberOfConnectors,
	}
	if err := h.chargers.Register(c.Context(), charger); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(charger)
}

func (h *ChargerHandler) Get(c *fiber.Ctx) error {
	charger, err := h.chargers.Get(c.Context(), c.Params("cpid"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"charger":   charger,
		"connected": h.commands.IsConnected(charger.ChargePointID),
	})
}

func (h *ChargerHandler) List(c *fiber.Ctx) error {
	chargers, err := h.chargers.List(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"chargers": chargers, "count": len(chargers)})
}

// Connected reports live websocket connections, which is narrower than
// online status: a charger can be online with no open socket.
func (h *ChargerHandler) Connected(c *fiber.Ctx) error {
	ids := h.commands.ConnectedChargePoints()
	return c.JSON(fiber.Map{"charge_point_ids": ids, "count": len(ids)})
}

type UpdateChargerConfigRequest struct {
	HeartbeatIntervalS  *int `json:"heartbeat_interval_s"`
	NumberOfConnectors  *int `json:"number_of_connectors"`
	MeterValueIntervalS *int `json:"meter_value_interval_s"`
}

func (h *ChargerHandler) UpdateConfig(c *fiber.Ctx) error {
	var req UpdateChargerConfigRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	charger, err := h.chargers.UpdateConfig(c.Context(), c.Params("cpid"),
		req.HeartbeatIntervalS, req.NumberOfConnectors, req.MeterValueIntervalS)
	if err != nil {
		return err
	}
	return c.JSON(charger)
}

func (h *ChargerHandler) Delete(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid charger id"})
	}
	if err := h.chargers.Delete(c.Context(), uint(id)); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Charger deleted"})
}
