package sphare

import (
	"context"
	"time"
)

// PendingIntent is a follow intent recorded before its first document update.
type PendingIntent struct {
	Id         string
	Actor      Email
	Target     Email
	Intent     Intent
	RecordedAt time.Time
}

type IntentJournal interface {
	// Record stores an intent. A previous entry for the same pair is replaced.
	Record(ctx context.Context, actor, target Email, intent Intent) (PendingIntent, error)

	// Complete removes an entry. Completing an unknown or replaced entry is not an error.
	Complete(ctx context.Context, id string) error

	// Pending lists live entries, oldest first.
	Pending(ctx context.Context) ([]PendingIntent, error)
}
