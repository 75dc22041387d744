package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Apsistec/fitos-app-sub002/internal/models"
	"github.com/Apsistec/fitos-app-sub002/internal/services"
)

type grantApplicationService interface {
	SellOffering(ctx context.Context, clientID, offeringID int64, paymentReference *string, activateNow bool) (*models.CreditGrant, error)
	ListApplicable(ctx context.Context, clientID, serviceTypeID int64, now time.Time) ([]models.CreditGrant, error)
	Debit(ctx context.Context, grantID int64) (*int, error)
	DeactivateGrant(ctx context.Context, grantID int64) (*models.CreditGrant, error)
}

type GrantHandler struct {
	service grantApplicationService
}

func NewGrantHandler(service *services.GrantService) *GrantHandler {
	return &GrantHandler{service: service}
}

type sellOfferingRequest struct {
	ClientID         int64   `json:"client_id"`
	OfferingID       int64   `json:"offering_id"`
	PaymentReference *string `json:"payment_reference"`
	ActivateNow      bool    `json:"activate_now"`
}

func (h *GrantHandler) SellOffering(c *fiber.Ctx) error {
	role := actorRole(c)
	if role != "trainer" && role != "staff" {
		return c.Status(fiber.StatusForbidden).JSON(errorBody("unauthorized", "Forbidden"))
	}

	var req sellOfferingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("invalid_input", "Invalid request body"))
	}
	if req.PaymentReference != nil && strings.TrimSpace(*req.PaymentReference) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("invalid_input", "payment_reference must not be empty"))
	}

	grant, err := h.service.SellOffering(c.Context(), req.ClientID, req.OfferingID, req.PaymentReference, req.ActivateNow)
	if err != nil {
		return mapGrantError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"grant": grant})
}

// ListClientGrants returns the client's applicable grants already in FIFO
// consumption order; the first entry is the default selection for checkout.
func (h *GrantHandler) ListClientGrants(c *fiber.Ctx) error {
	role := actorRole(c)
	actorID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(errorBody("unauthorized", "Invalid token"))
	}

	clientID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || clientID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("invalid_input", "Invalid client id"))
	}
	if role == "client" && actorID != clientID {
		return c.Status(fiber.StatusForbidden).JSON(errorBody("unauthorized", "Forbidden"))
	}

	serviceTypeID, err := strconv.ParseInt(c.Query("service_type_id"), 10, 64)
	if err != nil || serviceTypeID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("invalid_input", "service_type_id is required"))
	}

	grants, err := h.service.ListApplicable(c.Context(), clientID, serviceTypeID, time.Now().UTC())
	if err != nil {
		return mapGrantError(c, err)
	}
	return c.JSON(fiber.Map{"grants": grants})
}

func (h *GrantHandler) Debit(c *fiber.Ctx) error {
	role := actorRole(c)
	if role != "trainer" && role != "staff" {
		return c.Status(fiber.StatusForbidden).JSON(errorBody("unauthorized", "Forbidden"))
	}

	grantID, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("invalid_input", "Invalid grant id"))
	}

	remaining, err := h.service.Debit(c.Context(), grantID)
	if err != nil {
		return mapGrantError(c, err)
	}
	return c.JSON(fiber.Map{"remaining": remaining})
}

func (h *GrantHandler) DeactivateGrant(c *fiber.Ctx) error {
	role := actorRole(c)
	if role != "trainer" && role != "staff" {
		return c.Status(fiber.StatusForbidden).JSON(errorBody("unauthorized", "Forbidden"))
	}

	grantID, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("invalid_input", "Invalid grant id"))
	}

	grant, err := h.service.DeactivateGrant(c.Context(), grantID)
	if err != nil {
		return mapGrantError(c, err)
	}
	return c.JSON(fiber.Map{"grant": grant})
}

func mapGrantError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("invalid_input", err.Error()))
	case errors.Is(err, services.ErrOfferingNotFound):
		return c.Status(fiber.StatusNotFound).JSON(errorBody("not_found", "Offering not found"))
	case errors.Is(err, services.ErrOfferingArchived):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(errorBody("offering_archived", "Offering is archived"))
	case errors.Is(err, services.ErrNotAContract):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(errorBody("not_a_contract", "Contract offerings are sold through enrollment"))
	case errors.Is(err, services.ErrGrantNotFound):
		return c.Status(fiber.StatusNotFound).JSON(errorBody("not_found", "Grant not found"))
	case errors.Is(err, services.ErrGrantInactive):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(errorBody("grant_inactive", "Grant is inactive"))
	case errors.Is(err, services.ErrGrantExpired):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(errorBody("grant_expired", "Grant has expired"))
	case errors.Is(err, services.ErrInsufficientCredit):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(errorBody("insufficient_credit", "This package is out of sessions"))
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(errorBody("internal", "Failed to process grant request"))
	}
}
