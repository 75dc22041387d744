package repository

import (
	"context"
	"time"

	"github.com/Apsistec/fitos-app-sub002/internal/models"
)

type CreateGrantInput struct {
	ClientID          int64
	TrainerID         int64
	OfferingID        int64
	PaymentReference  *string
	SubscriptionID    *string
	SessionsRemaining *int
	SessionsTotal     *int
	ActivatedAt       *time.Time
	ExpiresAt         *time.Time
}

type GrantRepository struct {
	db DBTX
}

func NewGrantRepository(db DBTX) *GrantRepository {
	return &GrantRepository{db: db}
}

const grantColumns = `id, client_id, trainer_id, offering_id, payment_reference, subscription_id,
		sessions_remaining, sessions_total, activated_at, expires_at, is_active, created_at, updated_at`

func scanGrant(row interface{ Scan(dest ...any) error }) (*models.CreditGrant, error) {
	var grant models.CreditGrant
	err := row.Scan(
		&grant.ID,
		&grant.ClientID,
		&grant.TrainerID,
		&grant.OfferingID,
		&grant.PaymentReference,
		&grant.SubscriptionID,
		&grant.SessionsRemaining,
		&grant.SessionsTotal,
		&grant.ActivatedAt,
		&grant.ExpiresAt,
		&grant.IsActive,
		&grant.CreatedAt,
		&grant.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

func (r *GrantRepository) Create(ctx context.Context, input CreateGrantInput) (*models.CreditGrant, error) {
	query := `
		INSERT INTO credit_grants (client_id, trainer_id, offering_id, payment_reference,
			subscription_id, sessions_remaining, sessions_total, activated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + grantColumns

	return scanGrant(r.db.QueryRow(
		ctx,
		query,
		input.ClientID,
		input.TrainerID,
		input.OfferingID,
		input.PaymentReference,
		input.SubscriptionID,
		input.SessionsRemaining,
		input.SessionsTotal,
		input.ActivatedAt,
		input.ExpiresAt,
	))
}

func (r *GrantRepository) GetByID(ctx context.Context, id int64) (*models.CreditGrant, error) {
	query := `
		SELECT ` + grantColumns + `
		FROM credit_grants
		WHERE id = $1
	`
	return scanGrant(r.db.QueryRow(ctx, query, id))
}

// ListApplicable returns every grant of the client that can pay for the
// requested service type at the given instant, soonest-expiring first.
// Grants with no expiry sort after every finite expiry; ties break on
// creation order so consumption stays deterministic.
func (r *GrantRepository) ListApplicable(ctx context.Context, clientID, serviceTypeID int64, now time.Time) ([]models.CreditGrant, error) {
	query := `
		SELECT g.id, g.client_id, g.trainer_id, g.offering_id, g.payment_reference, g.subscription_id,
			g.sessions_remaining, g.sessions_total, g.activated_at, g.expires_at, g.is_active,
			g.created_at, g.updated_at
		FROM credit_grants g
		JOIN offerings o ON o.id = g.offering_id
		WHERE g.client_id = $1
		  AND g.is_active
		  AND (g.expires_at IS NULL OR g.expires_at > $3)
		  AND (g.sessions_remaining IS NULL OR g.sessions_remaining > 0)
		  AND $2 = ANY(o.covered_service_type_ids)
		ORDER BY g.expires_at ASC NULLS LAST, g.id ASC
	`
	rows, err := r.db.Query(ctx, query, clientID, serviceTypeID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	grants := make([]models.CreditGrant, 0)
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, *grant)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return grants, nil
}

// Debit consumes one unit of credit as a single conditional update: the
// guard and the decrement are evaluated atomically by the store, so two
// callers racing the last unit can never both succeed and the counter can
// never go negative. Unlimited grants (NULL remaining) pass the guard
// without the counter changing. pgx.ErrNoRows means the guard failed; the
// caller classifies why with a follow-up read.
func (r *GrantRepository) Debit(ctx context.Context, id int64) (*int, error) {
	query := `
		UPDATE credit_grants
		SET sessions_remaining = CASE
				WHEN sessions_remaining IS NULL THEN NULL
				ELSE sessions_remaining - 1
			END,
			updated_at = NOW()
		WHERE id = $1
		  AND is_active
		  AND (expires_at IS NULL OR expires_at > NOW())
		  AND (sessions_remaining IS NULL OR sessions_remaining > 0)
		RETURNING sessions_remaining
	`
	var remaining *int
	if err := r.db.QueryRow(ctx, query, id).Scan(&remaining); err != nil {
		return nil, err
	}
	return remaining, nil
}

// CompensateDebit restores one previously debited unit, capped at the
// grant's original total. Used only to reverse a debit inside the same
// failed settlement; unlimited grants have nothing to restore and report
// pgx.ErrNoRows.
func (r *GrantRepository) CompensateDebit(ctx context.Context, id int64) (*int, error) {
	query := `
		UPDATE credit_grants
		SET sessions_remaining = sessions_remaining + 1, updated_at = NOW()
		WHERE id = $1
		  AND sessions_remaining IS NOT NULL
		  AND (sessions_total IS NULL OR sessions_remaining < sessions_total)
		RETURNING sessions_remaining
	`
	var remaining *int
	if err := r.db.QueryRow(ctx, query, id).Scan(&remaining); err != nil {
		return nil, err
	}
	return remaining, nil
}

func (r *GrantRepository) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*models.CreditGrant, error) {
	query := `
		SELECT ` + grantColumns + `
		FROM credit_grants
		WHERE subscription_id = $1
	`
	return scanGrant(r.db.QueryRow(ctx, query, subscriptionID))
}

// RefreshCycle applies a billing-cycle renewal to the grant backed by the
// subscription: the per-cycle allotment replaces sessions_remaining and the
// expiry rolls forward to the cycle end.
func (r *GrantRepository) RefreshCycle(ctx context.Context, subscriptionID string, allotment *int, cycleEnd time.Time) (*models.CreditGrant, error) {
	query := `
		UPDATE credit_grants
		SET sessions_remaining = $2, sessions_total = $2, expires_at = $3, is_active = TRUE, updated_at = NOW()
		WHERE subscription_id = $1
		RETURNING ` + grantColumns

	return scanGrant(r.db.QueryRow(ctx, query, subscriptionID, allotment, cycleEnd))
}

// Deactivate administratively turns a grant off. Grants are never deleted.
func (r *GrantRepository) Deactivate(ctx context.Context, id int64) (*models.CreditGrant, error) {
	query := `
		UPDATE credit_grants
		SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + grantColumns

	return scanGrant(r.db.QueryRow(ctx, query, id))
}
