package sphare_test

import (
	"context"
	"errors"
	"testing"

	"github.com/blogsphare/sphare"
	"github.com/blogsphare/sphare/inmem"
	"github.com/blogsphare/sphare/mock"
	"github.com/stretchr/testify/assert"
)

var errStoreDown = errors.New("store unreachable")

func createProfiles(t *testing.T, store sphare.ProfileStore, emails ...sphare.Email) {
	for _, e := range emails {
		_, err := store.Create(context.Background(), sphare.Profile{Email: e, Username: string(e)})
		if err != nil {
			t.Fatal(err)
		}
	}
}

func lookup(t *testing.T, store sphare.ProfileStore, email sphare.Email) sphare.Profile {
	p, err := store.ByEmail(context.Background(), email)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestFollowIdempotent(t *testing.T) {
	ctx := context.Background()
	assert := assert.New(t)

	store := inmem.NewProfileStore()
	createProfiles(t, store, "a@x.com", "b@x.com")
	service := sphare.FollowService{Store: store}

	for i := 0; i < 2; i++ {
		result, err := service.Apply(ctx, "a@x.com", "b@x.com", sphare.IntentFollow)
		if !assert.NoError(err) {
			return
		}
		assert.True(result.IsFollowing)
		assert.Equal([]sphare.Email{"b@x.com"}, result.Actor.Following)
		assert.Equal([]sphare.Email{"a@x.com"}, result.Target.Follower)
	}

	assert.Equal([]sphare.Email{"b@x.com"}, lookup(t, store, "a@x.com").Following)
	assert.Equal([]sphare.Email{"a@x.com"}, lookup(t, store, "b@x.com").Follower)
	assert.Empty(lookup(t, store, "a@x.com").Follower)
	assert.Empty(lookup(t, store, "b@x.com").Following)
}

func TestFollowUnfollowSymmetry(t *testing.T) {
	ctx := context.Background()
	assert := assert.New(t)

	store := inmem.NewProfileStore()
	createProfiles(t, store, "a@x.com", "b@x.com", "c@x.com")
	service := sphare.FollowService{Store: store}

	_, err := service.Apply(ctx, "a@x.com", "b@x.com", sphare.IntentFollow)
	if !assert.NoError(err) {
		return
	}
	_, err = service.Apply(ctx, "c@x.com", "b@x.com", sphare.IntentFollow)
	if !assert.NoError(err) {
		return
	}

	result, err := service.Apply(ctx, "a@x.com", "b@x.com", sphare.IntentUnfollow)
	if !assert.NoError(err) {
		return
	}
	assert.False(result.IsFollowing)
	assert.Empty(result.Actor.Following)
	assert.Equal([]sphare.Email{"c@x.com"}, result.Target.Follower)
}

func TestUnfollowNotFollowingIsNoop(t *testing.T) {
	ctx := context.Background()
	assert := assert.New(t)

	store := inmem.NewProfileStore()
	createProfiles(t, store, "a@x.com", "b@x.com")
	service := sphare.FollowService{Store: store}

	result, err := service.Apply(ctx, "a@x.com", "b@x.com", sphare.IntentUnfollow)
	if !assert.NoError(err) {
		return
	}
	assert.False(result.IsFollowing)
	assert.Empty(lookup(t, store, "a@x.com").Following)
	assert.Empty(lookup(t, store, "b@x.com").Follower)
}

func TestFollowValidation(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name    string
		actor   sphare.Email
		target  sphare.Email
		intent  sphare.Intent
		message string
	}{
		{"missing target and action", "a@x.com", "", "", "Missing required fields: profileUserEmail, action."},
		{"missing all", "", "", "", "Missing required fields: currentUserEmail, profileUserEmail, action."},
		{"invalid action", "a@x.com", "b@x.com", "block", "Invalid action. Must be 'follow' or 'unfollow'."},
		{"self follow", "a@x.com", "a@x.com", sphare.IntentFollow, "Cannot follow yourself."},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert := assert.New(t)

			store := inmem.NewProfileStore()
			createProfiles(t, store, "a@x.com", "b@x.com")
			service := sphare.FollowService{Store: store}

			_, err := service.Apply(ctx, c.actor, c.target, c.intent)
			var verr *sphare.ValidationError
			if assert.ErrorAs(err, &verr) {
				assert.Equal(c.message, verr.Error())
			}
			assert.Empty(lookup(t, store, "a@x.com").Following)
		})
	}
}

func TestSelfFollowAllowed(t *testing.T) {
	ctx := context.Background()
	assert := assert.New(t)

	store := inmem.NewProfileStore()
	createProfiles(t, store, "a@x.com")
	service := sphare.FollowService{Store: store, AllowSelfFollow: true}

	result, err := service.Apply(ctx, "a@x.com", "a@x.com", sphare.IntentFollow)
	if !assert.NoError(err) {
		return
	}
	assert.True(result.IsFollowing)
	p := lookup(t, store, "a@x.com")
	assert.Equal([]sphare.Email{"a@x.com"}, p.Following)
	assert.Equal([]sphare.Email{"a@x.com"}, p.Follower)
}

func TestFollowUnknownProfile(t *testing.T) {
	ctx := context.Background()
	assert := assert.New(t)

	store := inmem.NewProfileStore()
	createProfiles(t, store, "a@x.com")
	journal := inmem.NewIntentJournal()
	service := sphare.FollowService{Store: store, Journal: journal}

	_, err := service.Apply(ctx, "a@x.com", "ghost@x.com", sphare.IntentFollow)
	assert.ErrorIs(err, sphare.ErrProfileNotFound)
	var nf *sphare.NotFoundError
	if assert.ErrorAs(err, &nf) {
		assert.Equal("Target", nf.Role)
		assert.Equal(sphare.Email("ghost@x.com"), nf.Email)
	}
	assert.Empty(lookup(t, store, "a@x.com").Following, "no mutation for unknown target")

	_, err = service.Apply(ctx, "ghost@x.com", "a@x.com", sphare.IntentFollow)
	if assert.ErrorAs(err, &nf) {
		assert.Equal("Current user", nf.Role)
	}
	assert.Empty(lookup(t, store, "a@x.com").Follower)

	pending, err := journal.Pending(ctx)
	if assert.NoError(err) {
		assert.Empty(pending)
	}
}

func TestFollowStoreFailure(t *testing.T) {
	ctx := context.Background()
	assert := assert.New(t)

	store := mock.Delegating(inmem.NewProfileStore())
	createProfiles(t, store, "a@x.com", "b@x.com")
	store.ApplySetOpsFn = func(ctx context.Context, email sphare.Email, ops ...sphare.SetOp) (sphare.Profile, error) {
		return sphare.Profile{}, errStoreDown
	}
	service := sphare.FollowService{Store: store}

	_, err := service.Apply(ctx, "a@x.com", "b@x.com", sphare.IntentFollow)
	assert.ErrorIs(err, errStoreDown)
	assert.NotErrorIs(err, sphare.ErrHalfApplied)
	assert.NotErrorIs(err, sphare.ErrProfileNotFound)
}

// targetFailing fails every set operation on the target profile while healthy is false.
func targetFailing(base sphare.ProfileStore, target sphare.Email, healthy *bool) mock.ProfileStore {
	store := mock.Delegating(base)
	store.ApplySetOpsFn = func(ctx context.Context, email sphare.Email, ops ...sphare.SetOp) (sphare.Profile, error) {
		if email == target && !*healthy {
			return sphare.Profile{}, errStoreDown
		}
		return base.ApplySetOps(ctx, email, ops...)
	}
	return store
}

func TestFollowHalfAppliedReplay(t *testing.T) {
	ctx := context.Background()
	assert := assert.New(t)

	base := inmem.NewProfileStore()
	createProfiles(t, base, "a@x.com", "b@x.com")
	healthy := false
	journal := inmem.NewIntentJournal()
	service := sphare.FollowService{Store: targetFailing(base, "b@x.com", &healthy), Journal: journal}

	_, err := service.Apply(ctx, "a@x.com", "b@x.com", sphare.IntentFollow)
	assert.ErrorIs(err, sphare.ErrHalfApplied)
	assert.ErrorIs(err, errStoreDown)
	assert.Equal([]sphare.Email{"b@x.com"}, lookup(t, base, "a@x.com").Following)
	assert.Empty(lookup(t, base, "b@x.com").Follower)

	pending, err := journal.Pending(ctx)
	if !assert.NoError(err) || !assert.Len(pending, 1) {
		return
	}
	assert.Equal(sphare.IntentFollow, pending[0].Intent)

	// store still down for the target, only the target is read during repair
	replayed, err := service.Replay(ctx)
	if !assert.NoError(err) {
		return
	}
	assert.Equal(1, replayed)
	assert.Empty(lookup(t, base, "a@x.com").Following, "target side is authoritative")

	pending, err = journal.Pending(ctx)
	if assert.NoError(err) {
		assert.Empty(pending)
	}
}

func TestFollowHalfAppliedRetryConverges(t *testing.T) {
	ctx := context.Background()
	assert := assert.New(t)

	base := inmem.NewProfileStore()
	createProfiles(t, base, "a@x.com", "b@x.com")
	healthy := false
	journal := inmem.NewIntentJournal()
	service := sphare.FollowService{Store: targetFailing(base, "b@x.com", &healthy), Journal: journal}

	_, err := service.Apply(ctx, "a@x.com", "b@x.com", sphare.IntentFollow)
	assert.ErrorIs(err, sphare.ErrHalfApplied)

	healthy = true
	result, err := service.Apply(ctx, "a@x.com", "b@x.com", sphare.IntentFollow)
	if !assert.NoError(err) {
		return
	}
	assert.True(result.IsFollowing)
	assert.Equal([]sphare.Email{"b@x.com"}, lookup(t, base, "a@x.com").Following)
	assert.Equal([]sphare.Email{"a@x.com"}, lookup(t, base, "b@x.com").Follower)

	pending, err := journal.Pending(ctx)
	if assert.NoError(err) {
		assert.Empty(pending)
	}
}

func TestReplayKeepsFailedEntries(t *testing.T) {
	ctx := context.Background()
	assert := assert.New(t)

	base := inmem.NewProfileStore()
	createProfiles(t, base, "a@x.com", "b@x.com")
	journal := inmem.NewIntentJournal()
	_, err := journal.Record(ctx, "a@x.com", "b@x.com", sphare.IntentFollow)
	if !assert.NoError(err) {
		return
	}

	store := mock.Delegating(base)
	store.ByEmailFn = func(ctx context.Context, email sphare.Email) (sphare.Profile, error) {
		return sphare.Profile{}, errStoreDown
	}
	service := sphare.FollowService{Store: store, Journal: journal}

	replayed, err := service.Replay(ctx)
	if !assert.NoError(err) {
		return
	}
	assert.Equal(0, replayed)
	pending, err := journal.Pending(ctx)
	if assert.NoError(err) {
		assert.Len(pending, 1)
	}
}

func TestReplayDropsMissingProfiles(t *testing.T) {
	ctx := context.Background()
	assert := assert.New(t)

	base := inmem.NewProfileStore()
	createProfiles(t, base, "a@x.com")
	journal := inmem.NewIntentJournal()
	_, err := journal.Record(ctx, "a@x.com", "ghost@x.com", sphare.IntentFollow)
	if !assert.NoError(err) {
		return
	}
	service := sphare.FollowService{Store: base, Journal: journal}

	replayed, err := service.Replay(ctx)
	if !assert.NoError(err) {
		return
	}
	assert.Equal(0, replayed)
	pending, err := journal.Pending(ctx)
	if assert.NoError(err) {
		assert.Empty(pending)
	}
}

func TestReplayRacingFollowAfterTargetRead(t *testing.T) {
	ctx := context.Background()
	assert := assert.New(t)

	base := inmem.NewProfileStore()
	createProfiles(t, base, "a@x.com", "b@x.com")
	journal := inmem.NewIntentJournal()
	// left behind by an earlier failed intent
	_, err := journal.Record(ctx, "a@x.com", "b@x.com", sphare.IntentFollow)
	if !assert.NoError(err) {
		return
	}
	live := sphare.FollowService{Store: base, Journal: journal}

	// a follow lands right after the repair read the target
	interleaved := false
	store := mock.Delegating(base)
	store.ByEmailFn = func(ctx context.Context, email sphare.Email) (sphare.Profile, error) {
		p, err := base.ByEmail(ctx, email)
		if email == "b@x.com" && !interleaved {
			interleaved = true
			_, applyErr := live.Apply(ctx, "a@x.com", "b@x.com", sphare.IntentFollow)
			assert.NoError(applyErr)
		}
		return p, err
	}
	replayer := sphare.FollowService{Store: store, Journal: journal}

	replayed, err := replayer.Replay(ctx)
	if !assert.NoError(err) {
		return
	}
	assert.True(interleaved)
	assert.Equal(1, replayed)
	assert.Equal([]sphare.Email{"b@x.com"}, lookup(t, base, "a@x.com").Following)
	assert.Equal([]sphare.Email{"a@x.com"}, lookup(t, base, "b@x.com").Follower)

	pending, err := journal.Pending(ctx)
	if assert.NoError(err) {
		assert.Empty(pending)
	}
}

func TestReplayBetweenFollowHalves(t *testing.T) {
	ctx := context.Background()
	assert := assert.New(t)

	base := inmem.NewProfileStore()
	createProfiles(t, base, "a@x.com", "b@x.com")
	journal := inmem.NewIntentJournal()
	replayer := sphare.FollowService{Store: base, Journal: journal}

	// replay runs after the current user was written, before the target
	interleaved := false
	store := mock.Delegating(base)
	store.ApplySetOpsFn = func(ctx context.Context, email sphare.Email, ops ...sphare.SetOp) (sphare.Profile, error) {
		p, err := base.ApplySetOps(ctx, email, ops...)
		if email == "a@x.com" && !interleaved {
			interleaved = true
			_, replayErr := replayer.Replay(ctx)
			assert.NoError(replayErr)
		}
		return p, err
	}
	live := sphare.FollowService{Store: store, Journal: journal}

	result, err := live.Apply(ctx, "a@x.com", "b@x.com", sphare.IntentFollow)
	if !assert.NoError(err) {
		return
	}
	assert.True(interleaved)
	assert.True(result.IsFollowing)
	assert.Equal([]sphare.Email{"b@x.com"}, result.Actor.Following)
	assert.Equal([]sphare.Email{"b@x.com"}, lookup(t, base, "a@x.com").Following)
	assert.Equal([]sphare.Email{"a@x.com"}, lookup(t, base, "b@x.com").Follower)

	pending, err := journal.Pending(ctx)
	if assert.NoError(err) {
		assert.Empty(pending)
	}
}

func TestReplayKeepsEntryWhileTargetKeepsChanging(t *testing.T) {
	ctx := context.Background()
	assert := assert.New(t)

	base := inmem.NewProfileStore()
	createProfiles(t, base, "a@x.com", "b@x.com")
	journal := inmem.NewIntentJournal()
	_, err := journal.Record(ctx, "a@x.com", "b@x.com", sphare.IntentFollow)
	if !assert.NoError(err) {
		return
	}

	// every other read sees a@x.com in the follower set
	reads := 0
	store := mock.Delegating(base)
	store.ByEmailFn = func(ctx context.Context, email sphare.Email) (sphare.Profile, error) {
		p, err := base.ByEmail(ctx, email)
		if email == "b@x.com" {
			reads++
			if reads%2 == 0 {
				p.Follower = []sphare.Email{"a@x.com"}
			}
		}
		return p, err
	}
	service := sphare.FollowService{Store: store, Journal: journal}

	replayed, err := service.Replay(ctx)
	if !assert.NoError(err) {
		return
	}
	assert.Equal(0, replayed)
	pending, err := journal.Pending(ctx)
	if assert.NoError(err) {
		assert.Len(pending, 1)
	}
}

// txTargetFailing is a transactional store whose transactions fail on the target write.
type txTargetFailing struct {
	inmem.TxProfileStore
	target sphare.Email
}

func (s txTargetFailing) InTx(ctx context.Context, fn func(ctx context.Context, store sphare.ProfileStore) error) error {
	return s.TxProfileStore.InTx(ctx, func(ctx context.Context, store sphare.ProfileStore) error {
		healthy := false
		return fn(ctx, targetFailing(store, s.target, &healthy))
	})
}

func TestFollowTransactionalRollsBack(t *testing.T) {
	ctx := context.Background()
	assert := assert.New(t)

	store := txTargetFailing{TxProfileStore: inmem.NewTxProfileStore(), target: "b@x.com"}
	createProfiles(t, store, "a@x.com", "b@x.com")
	journal := inmem.NewIntentJournal()
	service := sphare.FollowService{Store: store, Journal: journal}

	_, err := service.Apply(ctx, "a@x.com", "b@x.com", sphare.IntentFollow)
	assert.ErrorIs(err, errStoreDown)
	assert.NotErrorIs(err, sphare.ErrHalfApplied)
	assert.Empty(lookup(t, store, "a@x.com").Following)
	assert.Empty(lookup(t, store, "b@x.com").Follower)

	pending, err := journal.Pending(ctx)
	if assert.NoError(err) {
		assert.Empty(pending, "transactional stores bypass the journal")
	}
}

func TestFollowTransactional(t *testing.T) {
	ctx := context.Background()
	assert := assert.New(t)

	store := inmem.NewTxProfileStore()
	createProfiles(t, store, "a@x.com", "b@x.com")
	service := sphare.FollowService{Store: store}

	result, err := service.Apply(ctx, "a@x.com", "b@x.com", sphare.IntentFollow)
	if !assert.NoError(err) {
		return
	}
	assert.True(result.IsFollowing)
	assert.Equal([]sphare.Email{"b@x.com"}, lookup(t, store, "a@x.com").Following)
	assert.Equal([]sphare.Email{"a@x.com"}, lookup(t, store, "b@x.com").Follower)
}
