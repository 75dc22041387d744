package services

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidOffering = errors.New("invalid offering")

	ErrOfferingNotFound = errors.New("offering not found")
	ErrOfferingArchived = errors.New("offering archived")

	// Grant-not-usable family. Kept distinct because the front desk's
	// remedial action differs for each.
	ErrGrantNotFound      = errors.New("grant not found")
	ErrGrantInactive      = errors.New("grant inactive")
	ErrGrantExpired       = errors.New("grant expired")
	ErrInsufficientCredit = errors.New("insufficient credit")
	ErrNoApplicableGrant  = errors.New("no applicable grant")

	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrAlreadyProcessed     = errors.New("appointment already settled")
	ErrAppointmentCancelled = errors.New("appointment cancelled")

	ErrPaymentDeclined = errors.New("payment declined")
	ErrPaymentTimeout  = errors.New("payment capture timed out")

	ErrNotAContract    = errors.New("offering is not a contract")
	ErrNoPaymentMethod = errors.New("no payment method on file")
)

// PaymentTimeoutError marks an ambiguous external result: the capture may or
// may not have gone through. It carries the external reference so the charge
// can be reconciled later instead of blindly retaken.
type PaymentTimeoutError struct {
	ExternalReference string
}

func (e *PaymentTimeoutError) Error() string {
	if e.ExternalReference == "" {
		return ErrPaymentTimeout.Error()
	}
	return fmt.Sprintf("%s (external reference %s)", ErrPaymentTimeout.Error(), e.ExternalReference)
}

func (e *PaymentTimeoutError) Unwrap() error {
	return ErrPaymentTimeout
}
