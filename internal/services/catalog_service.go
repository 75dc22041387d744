package services

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Apsistec/fitos-app-sub002/internal/models"
	"github.com/Apsistec/fitos-app-sub002/internal/repository"
)

type offeringStore interface {
	Create(ctx context.Context, input repository.CreateOfferingInput) (*models.Offering, error)
	GetByID(ctx context.Context, id int64) (*models.Offering, error)
	ListByTrainer(ctx context.Context, trainerID int64, includeArchived bool) ([]models.Offering, error)
	Update(ctx context.Context, id int64, input repository.UpdateOfferingInput) (*models.Offering, error)
	SetActive(ctx context.Context, id int64, active bool) (*models.Offering, error)
}

// CatalogService owns the pricing catalog lifecycle: create, edit, archive,
// restore. Offerings are trainer-scoped metadata, not a ledger, so
// last-writer-wins on update is acceptable.
type CatalogService struct {
	offeringRepo offeringStore
}

func NewCatalogService(offeringRepo *repository.OfferingRepository) *CatalogService {
	return &CatalogService{offeringRepo: offeringRepo}
}

type OfferingInput struct {
	Name                  string
	Kind                  models.OfferingKind
	PriceCents            int64
	SessionCount          *int
	ExpirationDays        *int
	CoveredServiceTypeIDs []int64
	AutopayInterval       *models.AutopayInterval
	AutopaySessionCount   *int
	SortOrder             int
}

func validateOffering(input OfferingInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return ErrInvalidOffering
	}
	if !input.Kind.Valid() {
		return ErrInvalidOffering
	}
	if input.PriceCents < 0 {
		return ErrInvalidOffering
	}
	if input.ExpirationDays != nil && *input.ExpirationDays <= 0 {
		return ErrInvalidOffering
	}
	switch input.Kind {
	case models.OfferingKindSessionPack:
		if input.SessionCount == nil || *input.SessionCount < 1 {
			return ErrInvalidOffering
		}
	case models.OfferingKindContract:
		if input.AutopayInterval == nil || !input.AutopayInterval.Valid() {
			return ErrInvalidOffering
		}
		if input.AutopaySessionCount != nil && *input.AutopaySessionCount < 1 {
			return ErrInvalidOffering
		}
	default:
		if input.SessionCount != nil {
			return ErrInvalidOffering
		}
	}
	if input.Kind != models.OfferingKindContract && input.AutopayInterval != nil {
		return ErrInvalidOffering
	}
	return nil
}

func (s *CatalogService) CreateOffering(ctx context.Context, trainerID int64, input OfferingInput) (*models.Offering, error) {
	if trainerID <= 0 {
		return nil, ErrInvalidInput
	}
	if err := validateOffering(input); err != nil {
		return nil, err
	}

	return s.offeringRepo.Create(ctx, repository.CreateOfferingInput{
		TrainerID:             trainerID,
		Name:                  strings.TrimSpace(input.Name),
		Kind:                  input.Kind,
		PriceCents:            input.PriceCents,
		SessionCount:          input.SessionCount,
		ExpirationDays:        input.ExpirationDays,
		CoveredServiceTypeIDs: input.CoveredServiceTypeIDs,
		AutopayInterval:       input.AutopayInterval,
		AutopaySessionCount:   input.AutopaySessionCount,
		SortOrder:             input.SortOrder,
	})
}

func (s *CatalogService) GetOffering(ctx context.Context, trainerID, offeringID int64) (*models.Offering, error) {
	offering, err := s.getOwnedOffering(ctx, trainerID, offeringID)
	if err != nil {
		return nil, err
	}
	return offering, nil
}

func (s *CatalogService) ListOfferings(ctx context.Context, trainerID int64, includeArchived bool) ([]models.Offering, error) {
	return s.offeringRepo.ListByTrainer(ctx, trainerID, includeArchived)
}

func (s *CatalogService) UpdateOffering(ctx context.Context, trainerID, offeringID int64, input OfferingInput) (*models.Offering, error) {
	offering, err := s.getOwnedOffering(ctx, trainerID, offeringID)
	if err != nil {
		return nil, err
	}

	// Kind is fixed at creation; grants already derived from it.
	input.Kind = offering.Kind
	if err := validateOffering(input); err != nil {
		return nil, err
	}

	return s.offeringRepo.Update(ctx, offeringID, repository.UpdateOfferingInput{
		Name:                  strings.TrimSpace(input.Name),
		PriceCents:            input.PriceCents,
		SessionCount:          input.SessionCount,
		ExpirationDays:        input.ExpirationDays,
		CoveredServiceTypeIDs: input.CoveredServiceTypeIDs,
		AutopayInterval:       input.AutopayInterval,
		AutopaySessionCount:   input.AutopaySessionCount,
		SortOrder:             input.SortOrder,
	})
}

func (s *CatalogService) ArchiveOffering(ctx context.Context, trainerID, offeringID int64) (*models.Offering, error) {
	if _, err := s.getOwnedOffering(ctx, trainerID, offeringID); err != nil {
		return nil, err
	}
	return s.offeringRepo.SetActive(ctx, offeringID, false)
}

func (s *CatalogService) RestoreOffering(ctx context.Context, trainerID, offeringID int64) (*models.Offering, error) {
	if _, err := s.getOwnedOffering(ctx, trainerID, offeringID); err != nil {
		return nil, err
	}
	return s.offeringRepo.SetActive(ctx, offeringID, true)
}

func (s *CatalogService) getOwnedOffering(ctx context.Context, trainerID, offeringID int64) (*models.Offering, error) {
	offering, err := s.offeringRepo.GetByID(ctx, offeringID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOfferingNotFound
		}
		return nil, err
	}
	if offering.TrainerID != trainerID {
		return nil, ErrUnauthorized
	}
	return offering, nil
}
