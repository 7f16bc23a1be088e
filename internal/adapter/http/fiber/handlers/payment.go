package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chargenet/csms/internal/adapter/http/fiber/middleware"
	"github.com/chargenet/csms/internal/domain"
	"github.com/chargenet/csms/internal/ports"
	"github.com/chargenet/csms/internal/service/payment"
)

type PaymentHandler struct {
	payments       ports.PaymentService
	sessions       ports.SessionService
	wallet         ports.WalletService
	callbackSecret string
	log            *zap.Logger
}

func NewPaymentHandler(payments ports.PaymentService, sessions ports.SessionService, wallet ports.WalletService, callbackSecret string, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, sessions: sessions, wallet: wallet, callbackSecret: callbackSecret, log: log}
}

type CreateTopupRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Gateway string          `json:"gateway"`
}

func (h *PaymentHandler) CreateTopup(c *fiber.Ctx) error {
	var req CreateTopupRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Gateway == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "gateway is required"})
	}

	txn, err := h.payments.CreateTopupPayment(c.Context(), middleware.UserID(c), req.Amount, req.Gateway)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(txn)
}

type ProcessSessionPaymentRequest struct {
	SessionID uint `json:"session_id"`
}

// ProcessSessionPayment settles a completed charging session against the
// owner's wallet. The session engine only records the cost; this endpoint is
// where the debit happens. Settling the same session twice returns the
// original debit.
func (h *PaymentHandler) ProcessSessionPayment(c *fiber.Ctx) error {
	var req ProcessSessionPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.SessionID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "session_id is required"})
	}

	session, err := h.sessions.GetSession(c.Context(), req.SessionID)
	if err != nil {
		return err
	}
	claims := middleware.Claims(c)
	if session.UserID == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Session has no owner to charge"})
	}
	if claims != nil && !claims.IsAdmin && *session.UserID != claims.UserID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Not your session"})
	}
	if session.Status != domain.SessionStatusCompleted {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Session is not completed yet"})
	}
	if !session.Cost.IsPositive() {
		return c.JSON(fiber.Map{"session_id": session.ID, "cost": session.Cost, "settled": false})
	}

	txn, err := h.wallet.DebitForSession(c.Context(), *session.UserID, session.ID, session.Cost)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"session_id": session.ID, "cost": session.Cost, "settled": true, "transaction": txn})
}

// Callback receives gateway webhooks. A deployment-wide shared secret gates
// the endpoint before any gateway signature check: with no secret configured
// the endpoint refuses to process callbacks at all.
func (h *PaymentHandler) Callback(c *fiber.Ctx) error {
	if h.callbackSecret == "" {
		h.log.Error("Payment callback rejected: no callback secret configured")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Callbacks not configured"})
	}
	provided := c.Get("X-Callback-Secret")
	if subtle.ConstantTimeCompare([]byte(provided), []byte(h.callbackSecret)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid callback secret"})
	}

	gateway := c.Params("gateway")
	payload, err := parseCallbackBody(c, gateway)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid callback payload"})
	}

	headers := map[string]string{
		"Content-Type":     c.Get("Content-Type"),
		"Stripe-Signature": c.Get("Stripe-Signature"),
	}

	txn, err := h.payments.HandleCallback(c.Context(), gateway, payload, headers)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": string(txn.Status), "transaction_ref": txn.TransactionRef})
}

// parseCallbackBody accepts JSON or form-encoded bodies. Billplz posts
// form-encoded; Stripe additionally needs the raw body for its signature.
func parseCallbackBody(c *fiber.Ctx, gateway string) (map[string]interface{}, error) {
	body := c.Body()
	payload := make(map[string]interface{})

	contentType := c.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "application/json"):
		if len(body) > 0 {
			if err := json.Unmarshal(body, &payload); err != nil {
				return nil, err
			}
		}
	default:
		args := c.Context().PostArgs()
		args.VisitAll(func(key, value []byte) {
			payload[string(key)] = string(value)
		})
	}

	if gateway == "stripe" {
		payload[payment.StripeRawBodyKey] = string(body)
		payload[payment.StripeSignatureKey] = c.Get("Stripe-Signature")
	}
	return payload, nil
}

func (h *PaymentHandler) ApproveManual(c *fiber.Ctx) error {
	txn, err := h.payments.ApproveManualPayment(c.Context(), c.Params("ref"), middleware.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(txn)
}

// CheckStatus polls the gateway for a pending payment, expiring stale ones.
func (h *PaymentHandler) CheckStatus(c *fiber.Ctx) error {
	txn, err := h.payments.CheckStatus(c.Context(), c.Params("ref"))
	if err != nil {
		return err
	}
	return c.JSON(txn)
}

func (h *PaymentHandler) Get(c *fiber.Ctx) error {
	txn, err := h.payments.Get(c.Context(), c.Params("ref"))
	if err != nil {
		return err
	}
	claims := middleware.Claims(c)
	if claims != nil && !claims.IsAdmin && txn.UserID != claims.UserID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Not your payment"})
	}
	return c.JSON(txn)
}

func (h *PaymentHandler) ListMine(c *fiber.Ctx) error {
	txns, err := h.payments.ListByUser(c.Context(), middleware.UserID(c),
		c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"payments": txns, "count": len(txns)})
}

func (h *PaymentHandler) ListGateways(c *fiber.Ctx) error {
	gateways, err := h.payments.ListGateways(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"gateways": gateways})
}
