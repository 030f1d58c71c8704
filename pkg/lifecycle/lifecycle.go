// Package lifecycle defines the evidence status state machine.
//
// Every status change in the system, explicit or implied by a custody
// transfer, is checked here. There is no override.
package lifecycle

import (
	"fmt"

	"github.com/Ahmedhamed3/evidentia11-sub000/pkg/contracts"
)

// InvalidTransitionError is returned for a status change the table does not allow.
type InvalidTransitionError struct {
	From contracts.Status
	To   contracts.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

var transitions = map[contracts.Status][]contracts.Status{
	contracts.StatusRegistered:  {contracts.StatusInCustody},
	contracts.StatusInCustody:   {contracts.StatusInAnalysis, contracts.StatusUnderReview, contracts.StatusArchived},
	contracts.StatusInAnalysis:  {contracts.StatusAnalyzed, contracts.StatusInCustody},
	contracts.StatusAnalyzed:    {contracts.StatusUnderReview, contracts.StatusInCustody, contracts.StatusInAnalysis},
	contracts.StatusUnderReview: {contracts.StatusAdmitted, contracts.StatusRejected, contracts.StatusInAnalysis},
	contracts.StatusAdmitted:    {contracts.StatusArchived},
	contracts.StatusRejected:    {contracts.StatusArchived, contracts.StatusInAnalysis},
	contracts.StatusArchived:    {contracts.StatusDisposed},
	contracts.StatusDisposed:    nil,
}

// Allowed returns the statuses reachable from s in one step.
func Allowed(s contracts.Status) []contracts.Status {
	return append([]contracts.Status(nil), transitions[s]...)
}

// Known reports whether s is a defined status.
func Known(s contracts.Status) bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func Terminal(s contracts.Status) bool {
	return Known(s) && len(transitions[s]) == 0
}

// ValidateTransition returns nil iff from -> to is in the table.
// Unknown statuses on either side fail.
func ValidateTransition(from, to contracts.Status) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return &InvalidTransitionError{From: from, To: to}
}

// TransferEffect computes the status an item takes when custody moves to
// toOrg. REGISTERED items enter IN_CUSTODY; IN_CUSTODY items sent to the
// analysis organization enter IN_ANALYSIS; anything else keeps its status.
// DISPOSED items cannot move at all. A resulting change is itself validated.
func TransferEffect(current contracts.Status, toOrg, analysisOrg string) (contracts.Status, error) {
	if !Known(current) {
		return current, &InvalidTransitionError{From: current, To: current}
	}
	if current == contracts.StatusDisposed {
		return current, &InvalidTransitionError{From: current, To: current}
	}

	next := current
	switch {
	case current == contracts.StatusRegistered:
		next = contracts.StatusInCustody
	case current == contracts.StatusInCustody && analysisOrg != "" && toOrg == analysisOrg:
		next = contracts.StatusInAnalysis
	}
	if next == current {
		return current, nil
	}
	if err := ValidateTransition(current, next); err != nil {
		return current, err
	}
	return next, nil
}
