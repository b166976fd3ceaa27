package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action names an intake audit event.
type Action string

const (
	ActionIntakeAccepted        Action = "intake_accepted"
	ActionIntakeDuplicate       Action = "intake_duplicate"
	ActionIntakeRejectedOutlier Action = "intake_rejected_outlier"
	ActionIntakeFailed          Action = "intake_failed"
)

// Event is emitted by the intake pipeline for every terminal outcome and every
// failure. Keep it transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID          uuid.UUID
	Timestamp   time.Time
	Action      Action
	Fingerprint string
	CrisisID    int64
	// Tag is the outcome marker reported to the submitter, empty on failure.
	Tag       string
	Reason    string
	RequestID string
}

// Store persists audit events. Implementations must be safe for concurrent use.
type Store interface {
	Append(ctx context.Context, event Event) error
}
