package models

import "time"

type OfferingKind string

const (
	OfferingKindSessionPack OfferingKind = "session_pack"
	OfferingKindTimePass    OfferingKind = "time_pass"
	OfferingKindDropIn      OfferingKind = "drop_in"
	OfferingKindContract    OfferingKind = "contract"
)

func (k OfferingKind) Valid() bool {
	switch k {
	case OfferingKindSessionPack, OfferingKindTimePass, OfferingKindDropIn, OfferingKindContract:
		return true
	}
	return false
}

type AutopayInterval string

const (
	AutopayIntervalWeekly   AutopayInterval = "weekly"
	AutopayIntervalBiweekly AutopayInterval = "biweekly"
	AutopayIntervalMonthly  AutopayInterval = "monthly"
)

func (i AutopayInterval) Valid() bool {
	switch i {
	case AutopayIntervalWeekly, AutopayIntervalBiweekly, AutopayIntervalMonthly:
		return true
	}
	return false
}

// Duration returns the length of one billing cycle.
func (i AutopayInterval) Duration() time.Duration {
	switch i {
	case AutopayIntervalWeekly:
		return 7 * 24 * time.Hour
	case AutopayIntervalBiweekly:
		return 14 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}

// Offering is a trainer-defined sellable package definition. Archived
// offerings (is_active = false) are excluded from new sales but grants that
// reference them stay valid; offerings are never physically deleted.
type Offering struct {
	ID                    int64            `json:"id"`
	TrainerID             int64            `json:"trainer_id"`
	Name                  string           `json:"name"`
	Kind                  OfferingKind     `json:"kind"`
	PriceCents            int64            `json:"price_cents"`
	SessionCount          *int             `json:"session_count"`
	ExpirationDays        *int             `json:"expiration_days"`
	CoveredServiceTypeIDs []int64          `json:"covered_service_type_ids"`
	AutopayInterval       *AutopayInterval `json:"autopay_interval"`
	AutopaySessionCount   *int             `json:"autopay_session_count"`
	IsActive              bool             `json:"is_active"`
	SortOrder             int              `json:"sort_order"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

func (o *Offering) Covers(serviceTypeID int64) bool {
	for _, id := range o.CoveredServiceTypeIDs {
		if id == serviceTypeID {
			return true
		}
	}
	return false
}
