package handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/Apsistec/fitos-app-sub002/internal/models"
	"github.com/Apsistec/fitos-app-sub002/internal/services"
)

type catalogApplicationService interface {
	CreateOffering(ctx context.Context, trainerID int64, input services.OfferingInput) (*models.Offering, error)
	GetOffering(ctx context.Context, trainerID, offeringID int64) (*models.Offering, error)
	ListOfferings(ctx context.Context, trainerID int64, includeArchived bool) ([]models.Offering, error)
	UpdateOffering(ctx context.Context, trainerID, offeringID int64, input services.OfferingInput) (*models.Offering, error)
	ArchiveOffering(ctx context.Context, trainerID, offeringID int64) (*models.Offering, error)
	RestoreOffering(ctx context.Context, trainerID, offeringID int64) (*models.Offering, error)
}

type CatalogHandler struct {
	service catalogApplicationService
}

func NewCatalogHandler(service *services.CatalogService) *CatalogHandler {
	return &CatalogHandler{service: service}
}

type offeringRequest struct {
	Name                  string  `json:"name"`
	Kind                  string  `json:"kind"`
	PriceCents            int64   `json:"price_cents"`
	SessionCount          *int    `json:"session_count"`
	ExpirationDays        *int    `json:"expiration_days"`
	CoveredServiceTypeIDs []int64 `json:"covered_service_type_ids"`
	AutopayInterval       *string `json:"autopay_interval"`
	AutopaySessionCount   *int    `json:"autopay_session_count"`
	SortOrder             int     `json:"sort_order"`
}

func (r offeringRequest) toInput() services.OfferingInput {
	input := services.OfferingInput{
		Name:                  r.Name,
		Kind:                  models.OfferingKind(r.Kind),
		PriceCents:            r.PriceCents,
		SessionCount:          r.SessionCount,
		ExpirationDays:        r.ExpirationDays,
		CoveredServiceTypeIDs: r.CoveredServiceTypeIDs,
		AutopaySessionCount:   r.AutopaySessionCount,
		SortOrder:             r.SortOrder,
	}
	if r.AutopayInterval != nil {
		interval := models.AutopayInterval(*r.AutopayInterval)
		input.AutopayInterval = &interval
	}
	return input
}

func (h *CatalogHandler) CreateOffering(c *fiber.Ctx) error {
	if actorRole(c) != "trainer" {
		return c.Status(fiber.StatusForbidden).JSON(errorBody("unauthorized", "Forbidden"))
	}
	trainerID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(errorBody("unauthorized", "Invalid token"))
	}

	var req offeringRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("invalid_input", "Invalid request body"))
	}

	offering, err := h.service.CreateOffering(c.Context(), trainerID, req.toInput())
	if err != nil {
		return mapCatalogError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"offering": offering})
}

func (h *CatalogHandler) GetOffering(c *fiber.Ctx) error {
	if actorRole(c) != "trainer" {
		return c.Status(fiber.StatusForbidden).JSON(errorBody("unauthorized", "Forbidden"))
	}
	trainerID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(errorBody("unauthorized", "Invalid token"))
	}
	offeringID, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("invalid_input", "Invalid offering id"))
	}

	offering, err := h.service.GetOffering(c.Context(), trainerID, offeringID)
	if err != nil {
		return mapCatalogError(c, err)
	}
	return c.JSON(fiber.Map{"offering": offering})
}

func (h *CatalogHandler) ListOfferings(c *fiber.Ctx) error {
	if actorRole(c) != "trainer" {
		return c.Status(fiber.StatusForbidden).JSON(errorBody("unauthorized", "Forbidden"))
	}
	trainerID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(errorBody("unauthorized", "Invalid token"))
	}

	offerings, err := h.service.ListOfferings(c.Context(), trainerID, c.QueryBool("include_archived", false))
	if err != nil {
		return mapCatalogError(c, err)
	}
	return c.JSON(fiber.Map{"offerings": offerings})
}

func (h *CatalogHandler) UpdateOffering(c *fiber.Ctx) error {
	if actorRole(c) != "trainer" {
		return c.Status(fiber.StatusForbidden).JSON(errorBody("unauthorized", "Forbidden"))
	}
	trainerID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(errorBody("unauthorized", "Invalid token"))
	}
	offeringID, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("invalid_input", "Invalid offering id"))
	}

	var req offeringRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("invalid_input", "Invalid request body"))
	}

	offering, err := h.service.UpdateOffering(c.Context(), trainerID, offeringID, req.toInput())
	if err != nil {
		return mapCatalogError(c, err)
	}
	return c.JSON(fiber.Map{"offering": offering})
}

func (h *CatalogHandler) ArchiveOffering(c *fiber.Ctx) error {
	return h.setArchived(c, true)
}

func (h *CatalogHandler) RestoreOffering(c *fiber.Ctx) error {
	return h.setArchived(c, false)
}

func (h *CatalogHandler) setArchived(c *fiber.Ctx, archived bool) error {
	if actorRole(c) != "trainer" {
		return c.Status(fiber.StatusForbidden).JSON(errorBody("unauthorized", "Forbidden"))
	}
	trainerID, err := parseActorID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(errorBody("unauthorized", "Invalid token"))
	}
	offeringID, err := parseIDParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("invalid_input", "Invalid offering id"))
	}

	var offering *models.Offering
	if archived {
		offering, err = h.service.ArchiveOffering(c.Context(), trainerID, offeringID)
	} else {
		offering, err = h.service.RestoreOffering(c.Context(), trainerID, offeringID)
	}
	if err != nil {
		return mapCatalogError(c, err)
	}
	return c.JSON(fiber.Map{"offering": offering})
}

func parseIDParam(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, strconv.ErrSyntax
	}
	return id, nil
}

func mapCatalogError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidOffering):
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("invalid_offering", err.Error()))
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("invalid_input", err.Error()))
	case errors.Is(err, services.ErrUnauthorized):
		return c.Status(fiber.StatusForbidden).JSON(errorBody("unauthorized", "Forbidden"))
	case errors.Is(err, services.ErrOfferingNotFound):
		return c.Status(fiber.StatusNotFound).JSON(errorBody("not_found", "Offering not found"))
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(errorBody("internal", "Failed to process offering request"))
	}
}
