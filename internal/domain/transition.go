package domain

import (
	"fmt"
	"time"
)

// ingestionTransitions is the explicit table of legal status transitions.
// ANALYZED is terminal: reprocessing goes through an explicit re-ingest
// request, never a transition.
var ingestionTransitions = map[IngestionStatus][]IngestionStatus{
	IngestionStatusPending:    {IngestionStatusQueued},
	IngestionStatusQueued:     {IngestionStatusProcessing},
	IngestionStatusProcessing: {IngestionStatusAnalyzed, IngestionStatusError},
	IngestionStatusError:      {IngestionStatusPending},
	IngestionStatusAnalyzed:   {},
}

// IllegalTransitionError reports a status change outside the transition
// table. It indicates a programming or race bug, not a user error.
type IllegalTransitionError struct {
	From IngestionStatus
	To   IngestionStatus
}

// Error implements the error interface
func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal ingestion status transition %s -> %s", e.From, e.To)
}

// CanTransition reports whether from -> to is a legal transition
func CanTransition(from, to IngestionStatus) bool {
	for _, next := range ingestionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an IllegalTransitionError if from -> to is not
// in the transition table
func ValidateTransition(from, to IngestionStatus) error {
	if !CanTransition(from, to) {
		return &IllegalTransitionError{From: from, To: to}
	}
	return nil
}

// TransitionRecord is one immutable audit entry for a status transition
// attempt, written whether or not the transition was allowed.
type TransitionRecord struct {
	ID            int64
	AssetID       string
	TenantID      string
	CorrelationID string
	From          IngestionStatus
	To            IngestionStatus
	Allowed       bool
	Reason        string
	CreatedAt     time.Time
}
