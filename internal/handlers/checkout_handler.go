package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/Apsistec/fitos-app-sub002/internal/models"
	"github.com/Apsistec/fitos-app-sub002/internal/services"
)

type checkoutApplicationService interface {
	Settle(ctx context.Context, req models.CheckoutRequest) (*models.Receipt, error)
	GetReceipt(ctx context.Context, appointmentID int64) (*models.Receipt, error)
}

type CheckoutHandler struct {
	service checkoutApplicationService
}

func NewCheckoutHandler(service *services.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{service: service}
}

func (h *CheckoutHandler) Checkout(c *fiber.Ctx) error {
	role := actorRole(c)
	if role != "trainer" && role != "staff" {
		return c.Status(fiber.StatusForbidden).JSON(errorBody("unauthorized", "Forbidden"))
	}

	var req models.CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("invalid_input", "Invalid request body"))
	}

	receipt, err := h.service.Settle(c.Context(), req)
	if err != nil {
		return mapCheckoutError(c, err)
	}
	return c.JSON(fiber.Map{"receipt": receipt})
}

func (h *CheckoutHandler) GetReceipt(c *fiber.Ctx) error {
	appointmentID, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("invalid_input", "Invalid appointment id"))
	}

	receipt, err := h.service.GetReceipt(c.Context(), appointmentID)
	if err != nil {
		return mapCheckoutError(c, err)
	}
	return c.JSON(fiber.Map{"receipt": receipt})
}

func mapCheckoutError(c *fiber.Ctx, err error) error {
	var timeout *services.PaymentTimeoutError
	if errors.As(err, &timeout) {
		body := errorBody("payment_timeout", "Payment capture timed out; reconcile before retrying")
		body["external_reference"] = timeout.ExternalReference
		return c.Status(fiber.StatusGatewayTimeout).JSON(body)
	}

	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("invalid_input", err.Error()))
	case errors.Is(err, services.ErrAppointmentNotFound):
		return c.Status(fiber.StatusNotFound).JSON(errorBody("not_found", "Appointment not found"))
	case errors.Is(err, services.ErrAlreadyProcessed):
		return c.Status(fiber.StatusConflict).JSON(errorBody("already_processed", "Appointment is already settled"))
	case errors.Is(err, services.ErrAppointmentCancelled):
		return c.Status(fiber.StatusConflict).JSON(errorBody("appointment_cancelled", "Appointment was cancelled"))
	case errors.Is(err, services.ErrNoApplicableGrant):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(errorBody("no_applicable_grant", "Client has no applicable grant"))
	case errors.Is(err, services.ErrGrantNotFound):
		return c.Status(fiber.StatusNotFound).JSON(errorBody("not_found", "Grant not found"))
	case errors.Is(err, services.ErrGrantInactive):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(errorBody("grant_inactive", "Grant is inactive"))
	case errors.Is(err, services.ErrGrantExpired):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(errorBody("grant_expired", "Grant has expired"))
	case errors.Is(err, services.ErrInsufficientCredit):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(errorBody("insufficient_credit", "This package is out of sessions"))
	case errors.Is(err, services.ErrPaymentDeclined):
		return c.Status(fiber.StatusPaymentRequired).JSON(errorBody("payment_declined", "Card was declined"))
	case errors.Is(err, services.ErrPaymentTimeout):
		return c.Status(fiber.StatusGatewayTimeout).JSON(errorBody("payment_timeout", "Payment capture timed out; reconcile before retrying"))
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(errorBody("internal", "Failed to process checkout"))
	}
}
