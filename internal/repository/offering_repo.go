package repository

import (
	"context"

	"github.com/Apsistec/fitos-app-sub002/internal/models"
)

type CreateOfferingInput struct {
	TrainerID             int64
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

type UpdateOfferingInput struct {
	Name                  string
	PriceCents            int64
	SessionCount          *int
	ExpirationDays        *int
	CoveredServiceTypeIDs []int64
	AutopayInterval       *models.AutopayInterval
	AutopaySessionCount   *int
	SortOrder             int
}

type OfferingRepository struct {
	db DBTX
}

func NewOfferingRepository(db DBTX) *OfferingRepository {
	return &OfferingRepository{db: db}
}

const offeringColumns = `id, trainer_id, name, kind, price_cents, session_count, expiration_days,
		covered_service_type_ids, autopay_interval, autopay_session_count, is_active, sort_order,
		created_at, updated_at`

func scanOffering(row interface{ Scan(dest ...any) error }) (*models.Offering, error) {
	var offering models.Offering
	err := row.Scan(
		&offering.ID,
		&offering.TrainerID,
		&offering.Name,
		&offering.Kind,
		&offering.PriceCents,
		&offering.SessionCount,
		&offering.ExpirationDays,
		&offering.CoveredServiceTypeIDs,
		&offering.AutopayInterval,
		&offering.AutopaySessionCount,
		&offering.IsActive,
		&offering.SortOrder,
		&offering.CreatedAt,
		&offering.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &offering, nil
}

func (r *OfferingRepository) Create(ctx context.Context, input CreateOfferingInput) (*models.Offering, error) {
	query := `
		INSERT INTO offerings (trainer_id, name, kind, price_cents, session_count, expiration_days,
			covered_service_type_ids, autopay_interval, autopay_session_count, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + offeringColumns

	return scanOffering(r.db.QueryRow(
		ctx,
		query,
		input.TrainerID,
		input.Name,
		input.Kind,
		input.PriceCents,
		input.SessionCount,
		input.ExpirationDays,
		input.CoveredServiceTypeIDs,
		input.AutopayInterval,
		input.AutopaySessionCount,
		input.SortOrder,
	))
}

func (r *OfferingRepository) GetByID(ctx context.Context, id int64) (*models.Offering, error) {
	query := `
		SELECT ` + offeringColumns + `
		FROM offerings
		WHERE id = $1
	`
	return scanOffering(r.db.QueryRow(ctx, query, id))
}

func (r *OfferingRepository) ListByTrainer(ctx context.Context, trainerID int64, includeArchived bool) ([]models.Offering, error) {
	query := `
		SELECT ` + offeringColumns + `
		FROM offerings
		WHERE trainer_id = $1 AND (is_active OR $2)
		ORDER BY sort_order ASC, id ASC
	`
	rows, err := r.db.Query(ctx, query, trainerID, includeArchived)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	offerings := make([]models.Offering, 0)
	for rows.Next() {
		offering, err := scanOffering(rows)
		if err != nil {
			return nil, err
		}
		offerings = append(offerings, *offering)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return offerings, nil
}

func (r *OfferingRepository) Update(ctx context.Context, id int64, input UpdateOfferingInput) (*models.Offering, error) {
	query := `
		UPDATE offerings
		SET name = $2, price_cents = $3, session_count = $4, expiration_days = $5,
			covered_service_type_ids = $6, autopay_interval = $7, autopay_session_count = $8,
			sort_order = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + offeringColumns

	return scanOffering(r.db.QueryRow(
		ctx,
		query,
		id,
		input.Name,
		input.PriceCents,
		input.SessionCount,
		input.ExpirationDays,
		input.CoveredServiceTypeIDs,
		input.AutopayInterval,
		input.AutopaySessionCount,
		input.SortOrder,
	))
}

// SetActive archives (false) or restores (true) an offering. Both directions
// are idempotent; archived offerings are excluded from new sales only.
func (r *OfferingRepository) SetActive(ctx context.Context, id int64, active bool) (*models.Offering, error) {
	query := `
		UPDATE offerings
		SET is_active = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + offeringColumns

	return scanOffering(r.db.QueryRow(ctx, query, id, active))
}
