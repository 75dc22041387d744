package repository

import (
	"context"
	"time"

	"github.com/Apsistec/fitos-app-sub002/internal/models"
)

type CreateAppointmentInput struct {
	TrainerID      int64
	ClientID       int64
	ServiceTypeID  int64
	BasePriceCents int64
	ScheduledAt    time.Time
}

type AppointmentRepository struct {
	db DBTX
}

func NewAppointmentRepository(db DBTX) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

const appointmentColumns = `id, trainer_id, client_id, service_type_id, base_price_cents, status,
		paid_with_grant_id, scheduled_at, created_at, updated_at`

func scanAppointment(row interface{ Scan(dest ...any) error }) (*models.Appointment, error) {
	var appt models.Appointment
	err := row.Scan(
		&appt.ID,
		&appt.TrainerID,
		&appt.ClientID,
		&appt.ServiceTypeID,
		&appt.BasePriceCents,
		&appt.Status,
		&appt.PaidWithGrantID,
		&appt.ScheduledAt,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &appt, nil
}

func (r *AppointmentRepository) Create(ctx context.Context, input CreateAppointmentInput) (*models.Appointment, error) {
	query := `
		INSERT INTO appointments (trainer_id, client_id, service_type_id, base_price_cents, status, scheduled_at)
		VALUES ($1, $2, $3, $4, 'scheduled', $5)
		RETURNING ` + appointmentColumns

	return scanAppointment(r.db.QueryRow(
		ctx,
		query,
		input.TrainerID,
		input.ClientID,
		input.ServiceTypeID,
		input.BasePriceCents,
		input.ScheduledAt,
	))
}

func (r *AppointmentRepository) GetByID(ctx context.Context, id int64) (*models.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE id = $1
	`
	return scanAppointment(r.db.QueryRow(ctx, query, id))
}

// UpdateStatusIfCurrent swaps the status only when the current value still
// matches, so two settlements racing the same appointment resolve at this
// update: exactly one sees the row, the other sees pgx.ErrNoRows.
func (r *AppointmentRepository) UpdateStatusIfCurrent(ctx context.Context, id int64, currentStatus, nextStatus string) (*models.Appointment, error) {
	query := `
		UPDATE appointments
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + appointmentColumns

	return scanAppointment(r.db.QueryRow(ctx, query, id, currentStatus, nextStatus))
}

// Settle moves a claimed appointment into the terminal settled state and
// links the grant that paid for it, if any. Only an appointment holding a
// "settling" claim can be settled.
func (r *AppointmentRepository) Settle(ctx context.Context, id int64, grantID *int64) (*models.Appointment, error) {
	query := `
		UPDATE appointments
		SET status = 'settled', paid_with_grant_id = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'settling'
		RETURNING ` + appointmentColumns

	return scanAppointment(r.db.QueryRow(ctx, query, id, grantID))
}
