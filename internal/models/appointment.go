package models

import "time"

// Appointment statuses. "settling" is a provisional claim held only while a
// checkout settlement is in flight; "settled" is terminal.
const (
	AppointmentStatusScheduled = "scheduled"
	AppointmentStatusSettling  = "settling"
	AppointmentStatusSettled   = "settled"
	AppointmentStatusCancelled = "cancelled"
)

type Appointment struct {
	ID              int64     `json:"id"`
	TrainerID       int64     `json:"trainer_id"`
	ClientID        int64     `json:"client_id"`
	ServiceTypeID   int64     `json:"service_type_id"`
	BasePriceCents  int64     `json:"base_price_cents"`
	Status          string    `json:"status"`
	PaidWithGrantID *int64    `json:"paid_with_grant_id"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
