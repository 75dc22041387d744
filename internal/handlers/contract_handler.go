package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Apsistec/fitos-app-sub002/internal/models"
	"github.com/Apsistec/fitos-app-sub002/internal/services"
)

type contractApplicationService interface {
	Enroll(ctx context.Context, clientID, offeringID int64) (*models.CreditGrant, error)
	ApplyRenewal(ctx context.Context, notice models.RenewalNotice) (*models.CreditGrant, error)
}

type ContractHandler struct {
	service contractApplicationService
}

func NewContractHandler(service *services.ContractService) *ContractHandler {
	return &ContractHandler{service: service}
}

type enrollContractRequest struct {
	ClientID   int64 `json:"client_id"`
	OfferingID int64 `json:"offering_id"`
}

func (h *ContractHandler) Enroll(c *fiber.Ctx) error {
	role := actorRole(c)
	if role != "trainer" && role != "staff" {
		return c.Status(fiber.StatusForbidden).JSON(errorBody("unauthorized", "Forbidden"))
	}

	var req enrollContractRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("invalid_input", "Invalid request body"))
	}

	grant, err := h.service.Enroll(c.Context(), req.ClientID, req.OfferingID)
	if err != nil {
		return mapContractError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"grant": grant})
}

type renewalNoticeRequest struct {
	SubscriptionID string `json:"subscription_id"`
	ClientID       int64  `json:"client_id"`
	CycleStart     string `json:"cycle_start"`
	CycleEnd       string `json:"cycle_end"`
}

// Renewal accepts the billing collaborator's cycle notification and
// refreshes the backing grant's allotment.
func (h *ContractHandler) Renewal(c *fiber.Ctx) error {
	var req renewalNoticeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("invalid_input", "Invalid request body"))
	}

	cycleStart, err := time.Parse(time.RFC3339, strings.TrimSpace(req.CycleStart))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("invalid_input", "cycle_start must be a valid RFC3339 timestamp"))
	}
	cycleEnd, err := time.Parse(time.RFC3339, strings.TrimSpace(req.CycleEnd))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("invalid_input", "cycle_end must be a valid RFC3339 timestamp"))
	}

	grant, err := h.service.ApplyRenewal(c.Context(), models.RenewalNotice{
		SubscriptionID: strings.TrimSpace(req.SubscriptionID),
		ClientID:       req.ClientID,
		CycleStart:     cycleStart,
		CycleEnd:       cycleEnd,
	})
	if err != nil {
		return mapContractError(c, err)
	}
	return c.JSON(fiber.Map{"grant": grant})
}

func mapContractError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("invalid_input", err.Error()))
	case errors.Is(err, services.ErrOfferingNotFound):
		return c.Status(fiber.StatusNotFound).JSON(errorBody("not_found", "Offering not found"))
	case errors.Is(err, services.ErrOfferingArchived):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(errorBody("offering_archived", "Offering is archived"))
	case errors.Is(err, services.ErrNotAContract):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(errorBody("not_a_contract", "Offering is not a contract"))
	case errors.Is(err, services.ErrNoPaymentMethod):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(errorBody("no_payment_method", "Client has no payment method on file"))
	case errors.Is(err, services.ErrGrantNotFound):
		return c.Status(fiber.StatusNotFound).JSON(errorBody("not_found", "No grant for this subscription"))
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(errorBody("internal", "Failed to process contract request"))
	}
}
