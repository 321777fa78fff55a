package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/blogsphare/sphare"
	"github.com/stretchr/testify/assert"
)

func TestFollowToggleSuccess(t *testing.T) {
	assert := assert.New(t)

	var sent []sphare.Intent
	toggle := NewFollowToggle(false, func(ctx context.Context, intent sphare.Intent) (bool, error) {
		sent = append(sent, intent)
		return true, nil
	})

	var states []ToggleState
	toggle.OnChange(func(s ToggleState) {
		states = append(states, s)
	})

	settled, err := toggle.Toggle(context.Background())
	if !assert.NoError(err) {
		return
	}
	final := <-settled

	assert.Equal(ToggleState{Phase: PhaseSettled, IsFollowing: true, Previous: false}, final)
	assert.Equal(final, toggle.State())
	assert.Equal([]sphare.Intent{sphare.IntentFollow}, sent)
	if assert.Len(states, 2) {
		assert.Equal(ToggleState{Phase: PhasePending, IsFollowing: true, Previous: false}, states[0])
		assert.Equal(final, states[1])
	}
}

func TestFollowToggleRollback(t *testing.T) {
	assert := assert.New(t)

	errServer := &APIError{StatusCode: 500, Message: "Internal Server Error"}
	release := make(chan struct{})
	toggle := NewFollowToggle(false, func(ctx context.Context, intent sphare.Intent) (bool, error) {
		<-release
		return false, errServer
	})

	settled, err := toggle.Toggle(context.Background())
	if !assert.NoError(err) {
		return
	}

	// optimistic value is displayed before the request completes
	pending := toggle.State()
	assert.Equal(PhasePending, pending.Phase)
	assert.True(pending.IsFollowing)

	close(release)
	final := <-settled
	assert.Equal(PhaseSettled, final.Phase)
	assert.False(final.IsFollowing)
	var apiErr *APIError
	if assert.ErrorAs(final.Err, &apiErr) {
		assert.Equal(500, apiErr.StatusCode)
	}
	assert.False(toggle.State().IsFollowing)
}

func TestFollowToggleBusy(t *testing.T) {
	assert := assert.New(t)

	var requests int32
	release := make(chan struct{})
	toggle := NewFollowToggle(true, func(ctx context.Context, intent sphare.Intent) (bool, error) {
		atomic.AddInt32(&requests, 1)
		<-release
		return intent == sphare.IntentFollow, nil
	})

	settled, err := toggle.Toggle(context.Background())
	if !assert.NoError(err) {
		return
	}
	for i := 0; i < 5; i++ {
		_, err := toggle.Toggle(context.Background())
		assert.ErrorIs(err, ErrToggleBusy)
	}
	assert.False(toggle.State().IsFollowing, "busy toggles must not flip the state")

	close(release)
	final := <-settled
	assert.False(final.IsFollowing)
	assert.Equal(int32(1), atomic.LoadInt32(&requests))

	// settled toggles accept the next click
	settled, err = toggle.Toggle(context.Background())
	if !assert.NoError(err) {
		return
	}
	final = <-settled
	assert.True(final.IsFollowing)
	assert.Equal(int32(2), atomic.LoadInt32(&requests))
}

func TestFollowToggleConcurrentClicks(t *testing.T) {
	assert := assert.New(t)

	var requests int32
	release := make(chan struct{})
	toggle := NewFollowToggle(false, func(ctx context.Context, intent sphare.Intent) (bool, error) {
		atomic.AddInt32(&requests, 1)
		<-release
		return true, nil
	})

	var wg sync.WaitGroup
	var accepted int32
	var mutex sync.Mutex
	var settled <-chan ToggleState
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, err := toggle.Toggle(context.Background())
			if err == nil {
				atomic.AddInt32(&accepted, 1)
				mutex.Lock()
				settled = ch
				mutex.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(int32(1), accepted)

	close(release)
	<-settled
	assert.Equal(int32(1), atomic.LoadInt32(&requests))
}

func TestDeriveFollowToggle(t *testing.T) {
	assert := assert.New(t)

	target := sphare.Profile{Email: "b@x.com", Follower: []sphare.Email{"a@x.com"}}
	noop := func(ctx context.Context, intent sphare.Intent) (bool, error) {
		return false, errors.New("unused")
	}

	assert.True(DeriveFollowToggle("a@x.com", target, noop).State().IsFollowing)
	assert.False(DeriveFollowToggle("c@x.com", target, noop).State().IsFollowing)
	assert.Equal(PhaseIdle, DeriveFollowToggle("c@x.com", target, noop).State().Phase)
}
