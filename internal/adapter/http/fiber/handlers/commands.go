package handlers

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chargenet/csms/internal/ports"
)

// CommandHandler exposes the raw OCPP command surface to operators. Each
// endpoint targets the charge point in the :cpid path parameter.
type CommandHandler struct {
	commands ports.OCPPCommands
	log      *zap.Logger
}

func NewCommandHandler(commands ports.OCPPCommands, log *zap.Logger) *CommandHandler {
	return &CommandHandler{commands: commands, log: log}
}

func statusJSON(c *fiber.Ctx, status string) error {
	return c.JSON(fiber.Map{"status": status})
}

type GetConfigurationRequest struct {
	Keys []string `json:"keys"`
}

func (h *CommandHandler) GetConfiguration(c *fiber.Ctx) error {
	var req GetConfigurationRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}
	raw, err := h.commands.GetConfiguration(c.Context(), c.Params("cpid"), req.Keys)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"configuration": raw})
}

type ChangeConfigurationRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (h *CommandHandler) ChangeConfiguration(c *fiber.Ctx) error {
	var req ChangeConfigurationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "key is required"})
	}
	status, err := h.commands.ChangeConfiguration(c.Context(), c.Params("cpid"), req.Key, req.Value)
	if err != nil {
		return err
	}
	return statusJSON(c, status)
}

type ChangeAvailabilityRequest struct {
	ConnectorID int    `json:"connector_id"`
	Type        string `json:"type"`
}

func (h *CommandHandler) ChangeAvailability(c *fiber.Ctx) error {
	var req ChangeAvailabilityRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Type != "Operative" && req.Type != "Inoperative" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "type must be Operative or Inoperative"})
	}
	status, err := h.commands.ChangeAvailability(c.Context(), c.Params("cpid"), req.ConnectorID, req.Type)
	if err != nil {
		return err
	}
	return statusJSON(c, status)
}

func (h *CommandHandler) ClearCache(c *fiber.Ctx) error {
	status, err := h.commands.ClearCache(c.Context(), c.Params("cpid"))
	if err != nil {
		return err
	}
	return statusJSON(c, status)
}

type ResetRequest struct {
	Type string `json:"type"`
}

func (h *CommandHandler) Reset(c *fiber.Ctx) error {
	var req ResetRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Type != "Hard" && req.Type != "Soft" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "type must be Hard or Soft"})
	}
	status, err := h.commands.Reset(c.Context(), c.Params("cpid"), req.Type)
	if err != nil {
		return err
	}
	return statusJSON(c, status)
}

type UnlockConnectorRequest struct {
	ConnectorID int `json:"connector_id"`
}

func (h *CommandHandler) UnlockConnector(c *fiber.Ctx) error {
	var req UnlockConnectorRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	status, err := h.commands.UnlockConnector(c.Context(), c.Params("cpid"), req.ConnectorID)
	if err != nil {
		return err
	}
	return statusJSON(c, status)
}

type GetDiagnosticsRequest struct {
	Location string `json:"location"`
}

func (h *CommandHandler) GetDiagnostics(c *fiber.Ctx) error {
	var req GetDiagnosticsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Location == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "location is required"})
	}
	fileName, err := h.commands.GetDiagnostics(c.Context(), c.Params("cpid"), req.Location)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"file_name": fileName})
}

type UpdateFirmwareRequest struct {
	Location     string    `json:"location"`
	RetrieveDate time.Time `json:"retrieve_date"`
}

func (h *CommandHandler) UpdateFirmware(c *fiber.Ctx) error {
	var req UpdateFirmwareRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Location == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "location is required"})
	}
	if req.RetrieveDate.IsZero() {
		req.RetrieveDate = time.Now()
	}
	if err := h.commands.UpdateFirmware(c.Context(), c.Params("cpid"), req.Location, req.RetrieveDate); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Firmware update scheduled"})
}

type ReserveNowRequest struct {
	ConnectorID   int       `json:"connector_id"`
	ExpiryDate    time.Time `json:"expiry_date"`
	IDTag         string    `json:"id_tag"`
	ReservationID int       `json:"reservation_id"`
}

func (h *CommandHandler) ReserveNow(c *fiber.Ctx) error {
	var req ReserveNowRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.IDTag == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "id_tag is required"})
	}
	status, err := h.commands.ReserveNow(c.Context(), c.Params("cpid"),
		req.ConnectorID, req.ExpiryDate, req.IDTag, req.ReservationID)
	if err != nil {
		return err
	}
	return statusJSON(c, status)
}

type CancelReservationRequest struct {
	ReservationID int `json:"reservation_id"`
}

func (h *CommandHandler) CancelReservation(c *fiber.Ctx) error {
	var req CancelReservationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	status, err := h.commands.CancelReservation(c.Context(), c.Params("cpid"), req.ReservationID)
	if err != nil {
		return err
	}
	return statusJSON(c, status)
}

type DataTransferRequest struct {
	VendorID  string `json:"vendor_id"`
	MessageID string `json:"message_id"`
	Data      string `json:"data"`
}

func (h *CommandHandler) DataTransfer(c *fiber.Ctx) error {
	var req DataTransferRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.VendorID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "vendor_id is required"})
	}
	status, data, err := h.commands.DataTransfer(c.Context(), c.Params("cpid"), req.VendorID, req.MessageID, req.Data)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": status, "data": data})
}

func (h *CommandHandler) GetLocalListVersion(c *fiber.Ctx) error {
	version, err := h.commands.GetLocalListVersion(c.Context(), c.Params("cpid"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"list_version": version})
}

type SendLocalListRequest struct {
	ListVersion int                    `json:"list_version"`
	UpdateType  string                 `json:"update_type"`
	Entries     []ports.LocalListEntry `json:"entries"`
}

func (h *CommandHandler) SendLocalList(c *fiber.Ctx) error {
	var req SendLocalListRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.UpdateType != "Full" && req.UpdateType != "Differential" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "update_type must be Full or Differential"})
	}
	status, err := h.commands.SendLocalList(c.Context(), c.Params("cpid"),
		req.ListVersion, req.UpdateType, req.Entries)
	if err != nil {
		return err
	}
	return statusJSON(c, status)
}

type TriggerMessageRequest struct {
	RequestedMessage string `json:"requested_message"`
	ConnectorID      *int   `json:"connector_id"`
}

func (h *CommandHandler) TriggerMessage(c *fiber.Ctx) error {
	var req TriggerMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.RequestedMessage == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "requested_message is required"})
	}
	status, err := h.commands.TriggerMessage(c.Context(), c.Params("cpid"), req.RequestedMessage, req.ConnectorID)
	if err != nil {
		return err
	}
	return statusJSON(c, status)
}

type GetCompositeScheduleRequest struct {
	ConnectorID int `json:"connector_id"`
	DurationS   int `json:"duration_s"`
}

func (h *CommandHandler) GetCompositeSchedule(c *fiber.Ctx) error {
	var req GetCompositeScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	raw, err := h.commands.GetCompositeSchedule(c.Context(), c.Params("cpid"), req.ConnectorID, req.DurationS)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"schedule": raw})
}

type ClearChargingProfileRequest struct {
	ProfileID *int `json:"profile_id"`
}

func (h *CommandHandler) ClearChargingProfile(c *fiber.Ctx) error {
	var req ClearChargingProfileRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}
	status, err := h.commands.ClearChargingProfile(c.Context(), c.Params("cpid"), req.ProfileID)
	if err != nil {
		return err
	}
	return statusJSON(c, status)
}

type SetChargingProfileRequest struct {
	ConnectorID int             `json:"connector_id"`
	Profile     json.RawMessage `json:"profile"`
}

func (h *CommandHandler) SetChargingProfile(c *fiber.Ctx) error {
	var req SetChargingProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if len(req.Profile) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "profile is required"})
	}
	status, err := h.commands.SetChargingProfile(c.Context(), c.Params("cpid"), req.ConnectorID, req.Profile)
	if err != nil {
		return err
	}
	return statusJSON(c, status)
}
