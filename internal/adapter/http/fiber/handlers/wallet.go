package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chargenet/csms/internal/adapter/http/fiber/middleware"
	"github.com/chargenet/csms/internal/ports"
)

type WalletHandler struct {
	wallet ports.WalletService
	log    *zap.Logger
}

func NewWalletHandler(wallet ports.WalletService, log *zap.Logger) *WalletHandler {
	return &WalletHandler{wallet: wallet, log: log}
}

func (h *WalletHandler) Get(c *fiber.Ctx) error {
	wallet, err := h.wallet.GetWallet(c.Context(), middleware.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(wallet)
}

func (h *WalletHandler) ListTransactions(c *fiber.Ctx) error {
	txns, err := h.wallet.ListTransactions(c.Context(), middleware.UserID(c),
		c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"transactions": txns, "count": len(txns)})
}

type RedeemRequest struct {
	RewardType string `json:"reward_type"`
	PointsCost int64  `json:"points_cost"`
}

// Redeem exchanges points for a catalog reward. The client echoes the points
// cost it displayed; a stale catalog is rejected rather than silently
// charging a different price.
func (h *WalletHandler) Redeem(c *fiber.Ctx) error {
	var req RedeemRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	reward, err := h.wallet.RedeemReward(c.Context(), middleware.UserID(c), req.RewardType, req.PointsCost)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(reward)
}

func (h *WalletHandler) ListRewards(c *fiber.Ctx) error {
	rewards, err := h.wallet.ListRewards(c.Context(), middleware.UserID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"rewards": rewards, "count": len(rewards)})
}

type AdminCreditRequest struct {
	UserID         uint            `json:"user_id"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotency_key"`
	Description    string          `json:"description"`
}

// AdminCredit applies a manual wallet top-up outside the payment flow, e.g.
// goodwill credit. Admin only.
func (h *WalletHandler) AdminCredit(c *fiber.Ctx) error {
	var req AdminCreditRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.UserID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id is required"})
	}

	txn, err := h.wallet.Topup(c.Context(), ports.TopupRequest{
		UserID:         req.UserID,
		Amount:         req.Amount,
		Method:         "admin",
		IdempotencyKey: req.IdempotencyKey,
		Description:    req.Description,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(txn)
}
