package models

import "time"

// CreditGrant is one purchased instance of an offering owned by a client:
// the ledger row that carries remaining credit. SessionsRemaining is nil for
// unlimited grants (time passes and contracts); once non-nil it only ever
// moves down through the atomic debit, never through a direct field write.
type CreditGrant struct {
	ID                int64      `json:"id"`
	ClientID          int64      `json:"client_id"`
	TrainerID         int64      `json:"trainer_id"`
	OfferingID        int64      `json:"offering_id"`
	PaymentReference  *string    `json:"payment_reference"`
	SubscriptionID    *string    `json:"subscription_id"`
	SessionsRemaining *int       `json:"sessions_remaining"`
	SessionsTotal     *int       `json:"sessions_total"`
	ActivatedAt       *time.Time `json:"activated_at"`
	ExpiresAt         *time.Time `json:"expires_at"`
	IsActive          bool       `json:"is_active"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (g *CreditGrant) Unlimited() bool {
	return g.SessionsRemaining == nil
}

func (g *CreditGrant) ExpiredAt(now time.Time) bool {
	return g.ExpiresAt != nil && !g.ExpiresAt.After(now)
}

// Usable reports whether the grant can pay for a checkout at the given
// instant, ignoring service-type coverage (that lives on the offering).
func (g *CreditGrant) Usable(now time.Time) bool {
	if !g.IsActive || g.ExpiredAt(now) {
		return false
	}
	return g.SessionsRemaining == nil || *g.SessionsRemaining > 0
}
