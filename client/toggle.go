package client

import (
	"context"
	"errors"
	"sync"

	"github.com/blogsphare/sphare"
)

// ErrToggleBusy is returned by Toggle while a previous toggle is in flight.
var ErrToggleBusy = errors.New("follow toggle pending")

type Phase int

const (
	PhaseIdle Phase = iota
	PhasePending
	PhaseSettled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePending:
		return "pending"
	case PhaseSettled:
		return "settled"
	default:
		return "unknown"
	}
}

type ToggleState struct {
	Phase Phase
	// Displayed value. Optimistic while pending.
	IsFollowing bool
	// Value before the last toggle, restored when it fails.
	Previous bool
	// Failure of the last toggle, nil on success.
	Err error
}

// ApplyFunc sends an intent and returns the authoritative follow state.
type ApplyFunc func(ctx context.Context, intent sphare.Intent) (isFollowing bool, err error)

// FollowToggle is the optimistic follow button of one viewer and target.
// The displayed value flips before the request is sent and is rolled back
// when the request fails. Only one toggle may be in flight at a time.
type FollowToggle struct {
	apply ApplyFunc

	mutex    sync.Mutex
	state    ToggleState
	onChange func(ToggleState)

	// serializes observer calls in state order
	notifyMutex sync.Mutex
}

func NewFollowToggle(initial bool, apply ApplyFunc) *FollowToggle {
	return &FollowToggle{
		apply: apply,
		state: ToggleState{Phase: PhaseIdle, IsFollowing: initial, Previous: initial},
	}
}

// DeriveFollowToggle starts from the viewer's membership in the target's follower set.
func DeriveFollowToggle(viewer sphare.Email, target sphare.Profile, apply ApplyFunc) *FollowToggle {
	return NewFollowToggle(sphare.IsFollowing(viewer, target), apply)
}

// OnChange registers the observer of every state transition. The observer
// must not call Toggle.
func (t *FollowToggle) OnChange(fn func(ToggleState)) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.onChange = fn
}

func (t *FollowToggle) State() ToggleState {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.state
}

// Toggle flips the displayed state and sends the matching intent in the
// background. The returned channel receives the settled state once.
func (t *FollowToggle) Toggle(ctx context.Context) (<-chan ToggleState, error) {
	t.mutex.Lock()
	if t.state.Phase == PhasePending {
		t.mutex.Unlock()
		return nil, ErrToggleBusy
	}
	previous := t.state.IsFollowing
	t.state = ToggleState{Phase: PhasePending, IsFollowing: !previous, Previous: previous}
	t.transition()

	settled := make(chan ToggleState, 1)
	go func() {
		defer close(settled)

		isFollowing, err := t.apply(ctx, sphare.IntentFor(previous))

		t.mutex.Lock()
		if err != nil {
			t.state = ToggleState{Phase: PhaseSettled, IsFollowing: previous, Previous: previous, Err: err}
		} else {
			t.state = ToggleState{Phase: PhaseSettled, IsFollowing: isFollowing, Previous: previous}
		}
		state := t.state
		t.transition()
		settled <- state
	}()
	return settled, nil
}

// transition notifies the observer. Must be called with mutex held, releases it.
func (t *FollowToggle) transition() {
	state, onChange := t.state, t.onChange
	t.notifyMutex.Lock()
	t.mutex.Unlock()
	defer t.notifyMutex.Unlock()
	if onChange != nil {
		onChange(state)
	}
}
