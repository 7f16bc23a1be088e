package middleware

import (
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chargenet/csms/internal/domain"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", domain.ValidationError("bad input"), fiber.StatusBadRequest},
		{"unauthorized", fmt.Errorf("%w: bad token", domain.ErrUnauthorized), fiber.StatusUnauthorized},
		{"forbidden", fmt.Errorf("%w: not yours", domain.ErrForbidden), fiber.StatusForbidden},
		{"not found", fmt.Errorf("%w: charger X", domain.ErrNotFound), fiber.StatusNotFound},
		{"conflict", fmt.Errorf("%w: busy", domain.ErrConflict), fiber.StatusConflict},
		{"insufficient balance", domain.ErrInsufficientBalance, fiber.StatusPaymentRequired},
		{"insufficient points", domain.ErrInsufficientPoints, fiber.StatusPaymentRequired},
		{"account locked", domain.ErrAccountLocked, fiber.StatusLocked},
		{"not connected", fmt.Errorf("%w: CP001", domain.ErrNotConnected), fiber.StatusConflict},
		{"transport timeout", domain.ErrTransportTimeout, fiber.StatusGatewayTimeout},
		{"gateway unavailable", domain.ErrGatewayUnavailable, fiber.StatusBadGateway},
		{"unknown", fmt.Errorf("disk on fire"), fiber.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := statusFor(tc.err); got != tc.want {
				t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestErrorHandler_MapsServiceErrors(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger)})

	app.Get("/wallet", func(c *fiber.Ctx) error {
		return fmt.Errorf("debit: %w", domain.ErrInsufficientBalance)
	})
	app.Get("/teapot", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusTeapot, "short and stout")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/wallet", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusPaymentRequired {
		t.Errorf("expected 402, got %d", resp.StatusCode)
	}

	// Explicit fiber errors keep their own code.
	resp, err = app.Test(httptest.NewRequest("GET", "/teapot", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusTeapot {
		t.Errorf("expected 418, got %d", resp.StatusCode)
	}
}
