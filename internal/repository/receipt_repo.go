package repository

import (
	"context"

	"github.com/Apsistec/fitos-app-sub002/internal/models"
)

type CreateReceiptInput struct {
	AppointmentID      int64
	ClientID           int64
	TrainerID          int64
	Method             models.PaymentMethod
	ServiceChargeCents int64
	TipCents           int64
	DiscountCents      int64
	TotalCents         int64
	ExternalReference  *string
}

type ReceiptRepository struct {
	db DBTX
}

func NewReceiptRepository(db DBTX) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

const receiptColumns = `id, appointment_id, client_id, trainer_id, method, service_charge_cents,
		tip_cents, discount_cents, total_cents, external_reference, created_at`

func scanReceipt(row interface{ Scan(dest ...any) error }) (*models.Receipt, error) {
	var receipt models.Receipt
	err := row.Scan(
		&receipt.ID,
		&receipt.AppointmentID,
		&receipt.ClientID,
		&receipt.TrainerID,
		&receipt.Method,
		&receipt.ServiceChargeCents,
		&receipt.TipCents,
		&receipt.DiscountCents,
		&receipt.TotalCents,
		&receipt.ExternalReference,
		&receipt.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *ReceiptRepository) Create(ctx context.Context, input CreateReceiptInput) (*models.Receipt, error) {
	query := `
		INSERT INTO receipts (appointment_id, client_id, trainer_id, method, service_charge_cents,
			tip_cents, discount_cents, total_cents, external_reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + receiptColumns

	return scanReceipt(r.db.QueryRow(
		ctx,
		query,
		input.AppointmentID,
		input.ClientID,
		input.TrainerID,
		input.Method,
		input.ServiceChargeCents,
		input.TipCents,
		input.DiscountCents,
		input.TotalCents,
		input.ExternalReference,
	))
}

func (r *ReceiptRepository) GetByAppointmentID(ctx context.Context, appointmentID int64) (*models.Receipt, error) {
	query := `
		SELECT ` + receiptColumns + `
		FROM receipts
		WHERE appointment_id = $1
		ORDER BY id DESC
		LIMIT 1
	`
	return scanReceipt(r.db.QueryRow(ctx, query, appointmentID))
}
