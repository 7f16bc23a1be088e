package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/ports"
	"github.com/chargenet/csms/internal/service/audit"
	"github.com/chargenet/csms/internal/service/ticket"
)

// AdminHandler groups the back-office surfaces: maintenance records, tariff
// pricing, support staff roster and the audit trail.
type AdminHandler struct {
	maintenance ports.MaintenanceRepository
	pricing     ports.PricingRepository
	tickets     *ticket.Service
	audit       *audit.Recorder
	log         *zap.Logger
}

func NewAdminHandler(
	maintenance ports.MaintenanceRepository,
	pricing ports.PricingRepository,
	tickets *ticket.Service,
	auditRecorder *audit.Recorder,
	log *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		maintenance: maintenance,
		pricing:     pricing,
		tickets:     tickets,
		audit:       auditRecorder,
		log:         log,
	}
}

type CreateMaintenanceRequest struct {
	ChargePointID string     `json:"charge_point_id"`
	FaultID       *uint      `json:"fault_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Technician    string     `json:"technician"`
	ScheduledFor  *time.Time `json:"scheduled_for"`
}

func (h *AdminHandler) CreateMaintenance(c *fiber.Ctx) error {
	var req CreateMaintenanceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.ChargePointID == "" || req.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "charge_point_id and title are required"})
	}

	record := &domain.MaintenanceRecord{
		ChargePointID: req.ChargePointID,
		FaultID:       req.FaultID,
		Title:         req.Title,
		Description:   req.Description,
		Status:        domain.MaintenanceScheduled,
		Technician:    req.Technician,
		ScheduledFor:  req.ScheduledFor,
	}
	if err := h.maintenance.Create(c.Context(), record); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(record)
}

type UpdateMaintenanceRequest struct {
	Status     string `json:"status"`
	Technician string `json:"technician"`
}

func (h *AdminHandler) UpdateMaintenance(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid record id"})
	}
	var req UpdateMaintenanceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	record, err := h.maintenance.GetByID(c.Context(), uint(id))
	if err != nil {
		return err
	}
	if record == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Maintenance record not found"})
	}

	if req.Status != "" {
		status := domain.MaintenanceStatus(req.Status)
		switch status {
		case domain.MaintenanceScheduled, domain.MaintenanceInProgress,
			domain.MaintenanceCompleted, domain.MaintenanceCancelled:
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unknown status"})
		}
		record.Status = status
		if status == domain.MaintenanceCompleted && record.CompletedAt == nil {
			now := time.Now()
			record.CompletedAt = &now
		}
	}
	if req.Technician != "" {
		record.Technician = req.Technician
	}
	if err := h.maintenance.Update(c.Context(), record); err != nil {
		return err
	}
	return c.JSON(record)
}

func (h *AdminHandler) ListMaintenance(c *fiber.Ctx) error {
	records, err := h.maintenance.List(c.Context(), c.Query("charge_point_id"),
		c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"records": records, "count": len(records)})
}

type SavePricingRequest struct {
	Name        string          `json:"name"`
	PricePerKWh decimal.Decimal `json:"price_per_kwh"`
	IsActive    bool            `json:"is_active"`
}

func (h *AdminHandler) SavePricing(c *fiber.Ctx) error {
	var req SavePricingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.PricePerKWh.IsNegative() || req.PricePerKWh.IsZero() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "price_per_kwh must be positive"})
	}

	pricing := &domain.Pricing{
		Name:        req.Name,
		PricePerKWh: req.PricePerKWh,
		Currency:    domain.WalletCurrency,
		IsActive:    req.IsActive,
	}
	if err := h.pricing.Save(c.Context(), pricing); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(pricing)
}

func (h *AdminHandler) ListPricing(c *fiber.Ctx) error {
	tariffs, err := h.pricing.List(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"tariffs": tariffs})
}

func (h *AdminHandler) GetActivePricing(c *fiber.Ctx) error {
	active, err := h.pricing.GetActive(c.Context())
	if err != nil {
		return err
	}
	if active == nil {
		return c.JSON(fiber.Map{
			"price_per_kwh": domain.DefaultPricePerKWh,
			"currency":      domain.WalletCurrency,
			"default":       true,
		})
	}
	return c.JSON(active)
}

type CreateStaffRequest struct {
	UserID     uint   `json:"user_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department"`
	Role       string `json:"role"`
	MaxTickets int    `json:"max_tickets"`
}

func (h *AdminHandler) CreateStaff(c *fiber.Ctx) error {
	var req CreateStaffRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	staff := &domain.SupportStaff{
		UserID:     req.UserID,
		Name:       req.Name,
		Email:      req.Email,
		Department: req.Department,
		Role:       domain.StaffRole(req.Role),
		MaxTickets: req.MaxTickets,
	}
	if err := h.tickets.CreateStaff(c.Context(), staff); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(staff)
}

func (h *AdminHandler) ListStaff(c *fiber.Ctx) error {
	staff, err := h.tickets.ListStaff(c.Context(), c.Query("department"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"staff": staff, "count": len(staff)})
}

func (h *AdminHandler) ListAuditLog(c *fiber.Ctx) error {
	entries, err := h.audit.List(c.Context(), c.Query("entity_type"),
		c.QueryInt("limit", 100), c.QueryInt("offset", 0))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"entries": entries, "count": len(entries)})
}
