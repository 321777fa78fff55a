package mock

import (
	"context"

	"github.com/blogsphare/sphare"
)

type IntentJournal struct {
	RecordFn func(ctx context.Context, actor, target sphare.Email, intent sphare.Intent) (sphare.PendingIntent, error)

	CompleteFn func(ctx context.Context, id string) error

	PendingFn func(ctx context.Context) ([]sphare.PendingIntent, error)
}

func (j IntentJournal) Record(ctx context.Context, actor, target sphare.Email, intent sphare.Intent) (sphare.PendingIntent, error) {
	return j.RecordFn(ctx, actor, target, intent)
}

func (j IntentJournal) Complete(ctx context.Context, id string) error {
	return j.CompleteFn(ctx, id)
}

func (j IntentJournal) Pending(ctx context.Context) ([]sphare.PendingIntent, error) {
	return j.PendingFn(ctx)
}
