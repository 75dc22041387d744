package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Apsistec/fitos-app-sub002/internal/models"
	"github.com/Apsistec/fitos-app-sub002/internal/repository"
)

type grantStore interface {
	Create(ctx context.Context, input repository.CreateGrantInput) (*models.CreditGrant, error)
	GetByID(ctx context.Context, id int64) (*models.CreditGrant, error)
	ListApplicable(ctx context.Context, clientID, serviceTypeID int64, now time.Time) ([]models.CreditGrant, error)
	Debit(ctx context.Context, id int64) (*int, error)
	CompensateDebit(ctx context.Context, id int64) (*int, error)
	Deactivate(ctx context.Context, id int64) (*models.CreditGrant, error)
}

type offeringReader interface {
	GetByID(ctx context.Context, id int64) (*models.Offering, error)
}

// GrantService is the application surface of the credit ledger: it sells
// offerings into grants, lists applicable grants in FIFO order, and runs the
// atomic debit with failure classification.
type GrantService struct {
	grantRepo    grantStore
	offeringRepo offeringReader
}

func NewGrantService(grantRepo *repository.GrantRepository, offeringRepo *repository.OfferingRepository) *GrantService {
	return &GrantService{grantRepo: grantRepo, offeringRepo: offeringRepo}
}

// grantTerms holds the fully-resolved creation terms for a new grant:
// every nullable is decided here, once, so downstream readers never re-derive
// defaults.
type grantTerms struct {
	SessionsRemaining *int
	SessionsTotal     *int
	ActivatedAt       *time.Time
	ExpiresAt         *time.Time
}

func deriveGrantTerms(offering *models.Offering, now time.Time, activateNow bool) grantTerms {
	var terms grantTerms

	switch offering.Kind {
	case models.OfferingKindSessionPack:
		if offering.SessionCount != nil {
			count := *offering.SessionCount
			terms.SessionsRemaining = &count
			total := count
			terms.SessionsTotal = &total
		}
	case models.OfferingKindDropIn:
		one := 1
		terms.SessionsRemaining = &one
		total := 1
		terms.SessionsTotal = &total
	case models.OfferingKindTimePass, models.OfferingKindContract:
		// Unlimited draw; cycle and expiry semantics bound it, not a counter.
	}

	if activateNow {
		activated := now
		terms.ActivatedAt = &activated
		if offering.ExpirationDays != nil {
			expires := now.Add(time.Duration(*offering.ExpirationDays) * 24 * time.Hour)
			terms.ExpiresAt = &expires
		}
	}

	return terms
}

// SellOffering turns an active offering into a new grant owned by the
// client. Archived offerings cannot be sold.
func (s *GrantService) SellOffering(ctx context.Context, clientID, offeringID int64, paymentReference *string, activateNow bool) (*models.CreditGrant, error) {
	if clientID <= 0 {
		return nil, ErrInvalidInput
	}

	offering, err := s.offeringRepo.GetByID(ctx, offeringID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOfferingNotFound
		}
		return nil, err
	}
	if !offering.IsActive {
		return nil, ErrOfferingArchived
	}
	if offering.Kind == models.OfferingKindContract {
		// Contracts are sold through enrollment; a bare sale would leave no
		// subscription behind the grant.
		return nil, ErrNotAContract
	}

	terms := deriveGrantTerms(offering, time.Now().UTC(), activateNow)

	return s.grantRepo.Create(ctx, repository.CreateGrantInput{
		ClientID:          clientID,
		TrainerID:         offering.TrainerID,
		OfferingID:        offering.ID,
		PaymentReference:  paymentReference,
		SessionsRemaining: terms.SessionsRemaining,
		SessionsTotal:     terms.SessionsTotal,
		ActivatedAt:       terms.ActivatedAt,
		ExpiresAt:         terms.ExpiresAt,
	})
}

func (s *GrantService) GetGrant(ctx context.Context, grantID int64) (*models.CreditGrant, error) {
	grant, err := s.grantRepo.GetByID(ctx, grantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGrantNotFound
		}
		return nil, err
	}
	return grant, nil
}

// ListApplicable returns the client's usable grants for the service type in
// FIFO consumption order. The repository already orders the rows; the pure
// sort is applied again so callers holding a snapshot get the same answer.
func (s *GrantService) ListApplicable(ctx context.Context, clientID, serviceTypeID int64, now time.Time) ([]models.CreditGrant, error) {
	grants, err := s.grantRepo.ListApplicable(ctx, clientID, serviceTypeID, now)
	if err != nil {
		return nil, err
	}
	sortGrantsFIFO(grants)
	return grants, nil
}

// DefaultGrant is the auto-selected grant for a checkout: the head of the
// FIFO order. The full list stays exposed so a human can override.
func (s *GrantService) DefaultGrant(ctx context.Context, clientID, serviceTypeID int64, now time.Time) (*models.CreditGrant, error) {
	grants, err := s.ListApplicable(ctx, clientID, serviceTypeID, now)
	if err != nil {
		return nil, err
	}
	if len(grants) == 0 {
		return nil, ErrNoApplicableGrant
	}
	return &grants[0], nil
}

// sortGrantsFIFO orders grants soonest-expiring first, with no-expiry grants
// after every finite date and ties broken by creation order. Pure policy on
// a snapshot; no locking.
func sortGrantsFIFO(grants []models.CreditGrant) {
	sort.SliceStable(grants, func(i, j int) bool {
		a, b := grants[i].ExpiresAt, grants[j].ExpiresAt
		switch {
		case a == nil && b == nil:
			return grants[i].ID < grants[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Equal(*b):
			return grants[i].ID < grants[j].ID
		default:
			return a.Before(*b)
		}
	})
}

// Debit consumes one unit from the grant through the ledger's single
// conditional update. Each successful call consumes a unit; appointment-level
// idempotence belongs to the checkout orchestrator, not here. A nil remaining
// means the grant is unlimited and no counter changed.
func (s *GrantService) Debit(ctx context.Context, grantID int64) (*int, error) {
	remaining, err := s.grantRepo.Debit(ctx, grantID)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	// The guard rejected the row. Classify why; the re-read never mutates.
	grant, readErr := s.grantRepo.GetByID(ctx, grantID)
	if readErr != nil {
		if errors.Is(readErr, pgx.ErrNoRows) {
			return nil, ErrGrantNotFound
		}
		return nil, readErr
	}
	switch {
	case !grant.IsActive:
		return nil, ErrGrantInactive
	case grant.ExpiredAt(time.Now().UTC()):
		return nil, ErrGrantExpired
	default:
		return nil, ErrInsufficientCredit
	}
}

// CompensateDebit reverses one debit made earlier in the same settlement.
func (s *GrantService) CompensateDebit(ctx context.Context, grantID int64) error {
	_, err := s.grantRepo.CompensateDebit(ctx, grantID)
	if errors.Is(err, pgx.ErrNoRows) {
		// Unlimited grant: the debit never moved a counter.
		return nil
	}
	return err
}

// DeactivateGrant is the administrative off switch; grants are never deleted.
func (s *GrantService) DeactivateGrant(ctx context.Context, grantID int64) (*models.CreditGrant, error) {
	grant, err := s.grantRepo.Deactivate(ctx, grantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGrantNotFound
		}
		return nil, err
	}
	return grant, nil
}
