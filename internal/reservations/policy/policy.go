// Package policy holds the booking-policy decisions, separated from the
// engine so each rule is a pure function over ledger and class state.
package policy

import (
	"time"

	"gymbook/pkg/model"
	"gymbook/pkg/sanitizer"
)

// Eligible reports whether the member's plan covers the class type. Types
// compare after normalization, so case and whitespace never matter. A type
// that normalizes to empty matches nothing: the check fails closed.
func Eligible(member *model.Member, classType string) bool {
	want := sanitizer.NormalizeClassType(classType)
	if want == "" {
		return false
	}
	for _, t := range member.EligibleClassTypes {
		if sanitizer.NormalizeClassType(t) == want {
			return true
		}
	}
	return false
}

// CanBook gates every enrollment attempt on the cancellation-credit balance.
//
// TODO: product review. Members join with credits and never run a class
// tab, so a member whose balance hits zero is locked out of booking
// entirely even though the credit notionally pays for cancellation, not
// booking. Kept as shipped until product decides otherwise.
func CanBook(member *model.Member) bool {
	return member.CancellationCredits >= 1
}

// RefundOnCancel reports whether a cancellation at now still earns its
// credit back. Cancelling inside the window before class start forfeits
// the refund; exactly on the boundary still refunds.
func RefundOnCancel(classStart, now time.Time, window time.Duration) bool {
	return !now.After(classStart.Add(-window))
}
