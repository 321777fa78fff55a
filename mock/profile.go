package mock

import (
	"context"

	"github.com/blogsphare/sphare"
)

type ProfileStore struct {
	CreateFn func(ctx context.Context, profile sphare.Profile) (sphare.Profile, error)

	ByEmailFn func(ctx context.Context, email sphare.Email) (sphare.Profile, error)

	ByEmailsFn func(ctx context.Context, emails []sphare.Email) ([]sphare.Profile, error)

	AllFn func(ctx context.Context) ([]sphare.Profile, error)

	UpdateFn func(ctx context.Context, email sphare.Email, update sphare.ProfileUpdate) (sphare.Profile, error)

	ApplySetOpsFn func(ctx context.Context, email sphare.Email, ops ...sphare.SetOp) (sphare.Profile, error)
}

// Delegating returns a mock forwarding every call to store. Replace single
// functions to inject failures.
func Delegating(store sphare.ProfileStore) ProfileStore {
	return ProfileStore{
		CreateFn:      store.Create,
		ByEmailFn:     store.ByEmail,
		ByEmailsFn:    store.ByEmails,
		AllFn:         store.All,
		UpdateFn:      store.Update,
		ApplySetOpsFn: store.ApplySetOps,
	}
}

func (s ProfileStore) Create(ctx context.Context, profile sphare.Profile) (sphare.Profile, error) {
	return s.CreateFn(ctx, profile)
}

func (s ProfileStore) ByEmail(ctx context.Context, email sphare.Email) (sphare.Profile, error) {
	return s.ByEmailFn(ctx, email)
}

func (s ProfileStore) ByEmails(ctx context.Context, emails []sphare.Email) ([]sphare.Profile, error) {
	return s.ByEmailsFn(ctx, emails)
}

func (s ProfileStore) All(ctx context.Context) ([]sphare.Profile, error) {
	return s.AllFn(ctx)
}

func (s ProfileStore) Update(ctx context.Context, email sphare.Email, update sphare.ProfileUpdate) (sphare.Profile, error) {
	return s.UpdateFn(ctx, email, update)
}

func (s ProfileStore) ApplySetOps(ctx context.Context, email sphare.Email, ops ...sphare.SetOp) (sphare.Profile, error) {
	return s.ApplySetOpsFn(ctx, email, ops...)
}
