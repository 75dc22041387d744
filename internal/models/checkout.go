package models

import "time"

type PaymentMethod string

const (
	PaymentMethodCreditGrant    PaymentMethod = "credit_grant"
	PaymentMethodCard           PaymentMethod = "card"
	PaymentMethodCash           PaymentMethod = "cash"
	PaymentMethodAccountBalance PaymentMethod = "account_balance"
	PaymentMethodComp           PaymentMethod = "comp"
	PaymentMethodSplit          PaymentMethod = "split"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCreditGrant, PaymentMethodCard, PaymentMethodCash,
		PaymentMethodAccountBalance, PaymentMethodComp, PaymentMethodSplit:
		return true
	}
	return false
}

type CheckoutRequest struct {
	AppointmentID int64         `json:"appointment_id"`
	Method        PaymentMethod `json:"method"`
	GrantID       *int64        `json:"grant_id"`
	TipCents      int64         `json:"tip_cents"`
	DiscountCents int64         `json:"discount_cents"`
}

// Receipt is the persisted outcome of a settled checkout: one row per
// settled appointment, written in the same transaction that marks the
// appointment settled.
type Receipt struct {
	ID                 int64         `json:"id"`
	AppointmentID      int64         `json:"appointment_id"`
	ClientID           int64         `json:"client_id"`
	TrainerID          int64         `json:"trainer_id"`
	Method             PaymentMethod `json:"method"`
	ServiceChargeCents int64         `json:"service_charge_cents"`
	TipCents           int64         `json:"tip_cents"`
	DiscountCents      int64         `json:"discount_cents"`
	TotalCents         int64         `json:"total_cents"`
	ExternalReference  *string       `json:"external_reference"`
	CreatedAt          time.Time     `json:"created_at"`
}

// RenewalNotice is the shape a recurring-billing renewal notification must
// satisfy. The billing collaborator posts one at the start of each cycle.
type RenewalNotice struct {
	SubscriptionID string    `json:"subscription_id"`
	ClientID       int64     `json:"client_id"`
	CycleStart     time.Time `json:"cycle_start"`
	CycleEnd       time.Time `json:"cycle_end"`
}
