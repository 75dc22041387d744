package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Apsistec/fitos-app-sub002/internal/models"
	"github.com/Apsistec/fitos-app-sub002/internal/repository"
)

type txStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type appointmentStore interface {
	GetByID(ctx context.Context, id int64) (*models.Appointment, error)
	UpdateStatusIfCurrent(ctx context.Context, id int64, currentStatus, nextStatus string) (*models.Appointment, error)
}

type creditLedger interface {
	GetGrant(ctx context.Context, grantID int64) (*models.CreditGrant, error)
	DefaultGrant(ctx context.Context, clientID, serviceTypeID int64, now time.Time) (*models.CreditGrant, error)
	Debit(ctx context.Context, grantID int64) (*int, error)
	CompensateDebit(ctx context.Context, grantID int64) error
}

type receiptReader interface {
	GetByAppointmentID(ctx context.Context, appointmentID int64) (*models.Receipt, error)
}

// CheckoutService settles appointments all-or-nothing: the provisional
// "settling" claim on the appointment is the idempotence guard, external
// captures run while no storage transaction is open, and the final commit
// writes the settled appointment and its receipt together. Any leg failure
// compensates every prior leg before returning; partial settlement is never
// observable.
type CheckoutService struct {
	db              txStarter
	appointmentRepo appointmentStore
	receiptRepo     receiptReader
	ledger          creditLedger
	gateway         PaymentGateway
}

func NewCheckoutService(
	db txStarter,
	appointmentRepo *repository.AppointmentRepository,
	receiptRepo *repository.ReceiptRepository,
	ledger *GrantService,
	gateway PaymentGateway,
) *CheckoutService {
	return &CheckoutService{
		db:              db,
		appointmentRepo: appointmentRepo,
		receiptRepo:     receiptRepo,
		ledger:          ledger,
		gateway:         gateway,
	}
}

func (s *CheckoutService) Settle(ctx context.Context, req models.CheckoutRequest) (*models.Receipt, error) {
	if !req.Method.Valid() || req.TipCents < 0 || req.DiscountCents < 0 {
		return nil, ErrInvalidInput
	}

	appt, err := s.appointmentRepo.GetByID(ctx, req.AppointmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	switch appt.Status {
	case models.AppointmentStatusSettled, models.AppointmentStatusSettling:
		return nil, ErrAlreadyProcessed
	case models.AppointmentStatusCancelled:
		return nil, ErrAppointmentCancelled
	}

	// Claim the appointment; only a scheduled one is settleable. Two
	// settlements racing the same appointment resolve here: the loser
	// observes no row and backs off.
	if _, err := s.appointmentRepo.UpdateStatusIfCurrent(ctx, appt.ID, models.AppointmentStatusScheduled, models.AppointmentStatusSettling); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlreadyProcessed
		}
		return nil, err
	}

	receipt, err := s.runSettlement(ctx, appt, req)
	if err != nil {
		if releaseErr := s.releaseClaim(ctx, appt.ID); releaseErr != nil {
			return nil, fmt.Errorf("%w; release settlement claim: %v", err, releaseErr)
		}
		return nil, err
	}
	return receipt, nil
}

func (s *CheckoutService) runSettlement(ctx context.Context, appt *models.Appointment, req models.CheckoutRequest) (*models.Receipt, error) {
	serviceCharge := appt.BasePriceCents
	usesCredit := req.Method == models.PaymentMethodCreditGrant || req.Method == models.PaymentMethodSplit
	if usesCredit || req.Method == models.PaymentMethodComp {
		serviceCharge = 0
	}
	total := serviceCharge + req.TipCents - req.DiscountCents
	if total < 0 {
		total = 0
	}

	var grantID *int64
	if usesCredit {
		grant, err := s.resolveGrant(ctx, appt, req.GrantID)
		if err != nil {
			return nil, err
		}
		if _, err := s.ledger.Debit(ctx, grant.ID); err != nil {
			return nil, err
		}
		grantID = &grant.ID
	}

	var externalRef *string
	capturesCard := req.Method == models.PaymentMethodCard || req.Method == models.PaymentMethodSplit
	if capturesCard && total > 0 {
		capture, err := s.gateway.Capture(ctx, CaptureInput{
			AppointmentID:  appt.ID,
			ClientID:       appt.ClientID,
			AmountCents:    total,
			IdempotencyKey: uuid.NewString(),
		})
		if err != nil {
			return nil, s.compensateDebit(ctx, grantID, err)
		}
		externalRef = &capture.Reference
	}

	receipt, err := s.commitSettlement(ctx, appt, repository.CreateReceiptInput{
		AppointmentID:      appt.ID,
		ClientID:           appt.ClientID,
		TrainerID:          appt.TrainerID,
		Method:             req.Method,
		ServiceChargeCents: serviceCharge,
		TipCents:           req.TipCents,
		DiscountCents:      req.DiscountCents,
		TotalCents:         total,
		ExternalReference:  externalRef,
	}, grantID)
	if err != nil {
		if externalRef != nil {
			if refundErr := s.gateway.Refund(ctx, *externalRef, total); refundErr != nil {
				err = fmt.Errorf("%w; refund capture %s: %v", err, *externalRef, refundErr)
			}
		}
		return nil, s.compensateDebit(ctx, grantID, err)
	}
	return receipt, nil
}

// commitSettlement is the combined commit: the settled appointment, its
// grant link, and the receipt land in one transaction.
func (s *CheckoutService) commitSettlement(ctx context.Context, appt *models.Appointment, receipt repository.CreateReceiptInput, grantID *int64) (*models.Receipt, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txAppointments := repository.NewAppointmentRepository(tx)
	txReceipts := repository.NewReceiptRepository(tx)

	if _, err := txAppointments.Settle(ctx, appt.ID, grantID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlreadyProcessed
		}
		return nil, err
	}
	created, err := txReceipts.Create(ctx, receipt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

func (s *CheckoutService) resolveGrant(ctx context.Context, appt *models.Appointment, requested *int64) (*models.CreditGrant, error) {
	if requested == nil {
		return s.ledger.DefaultGrant(ctx, appt.ClientID, appt.ServiceTypeID, time.Now().UTC())
	}

	// Re-validate the explicit selection immediately before the debit.
	grant, err := s.ledger.GetGrant(ctx, *requested)
	if err != nil {
		return nil, err
	}
	if grant.ClientID != appt.ClientID {
		return nil, ErrGrantNotFound
	}
	return grant, nil
}

func (s *CheckoutService) compensateDebit(ctx context.Context, grantID *int64, cause error) error {
	if grantID == nil {
		return cause
	}
	if err := s.ledger.CompensateDebit(ctx, *grantID); err != nil {
		return fmt.Errorf("%w; compensate debit of grant %d: %v", cause, *grantID, err)
	}
	return cause
}

func (s *CheckoutService) releaseClaim(ctx context.Context, appointmentID int64) error {
	_, err := s.appointmentRepo.UpdateStatusIfCurrent(ctx, appointmentID, models.AppointmentStatusSettling, models.AppointmentStatusScheduled)
	return err
}

func (s *CheckoutService) GetReceipt(ctx context.Context, appointmentID int64) (*models.Receipt, error) {
	receipt, err := s.receiptRepo.GetByAppointmentID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return receipt, nil
}
