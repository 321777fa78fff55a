package sphare

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrHalfApplied is returned when the current user's document was updated but
// the target's was not. Retrying the same intent converges.
var ErrHalfApplied = errors.New("follow intent half applied")

// Repairs give up after this many attempts while concurrent intents keep
// changing the pair. The journal entry stays pending.
const maxRepairAttempts = 5

var errRepairUnsettled = errors.New("pair kept changing during repair")

type Intent string

const (
	IntentFollow   Intent = "follow"
	IntentUnfollow Intent = "unfollow"
)

func ParseIntent(s string) (Intent, error) {
	switch Intent(s) {
	case IntentFollow, IntentUnfollow:
		return Intent(s), nil
	default:
		return "", &ValidationError{Message: "Invalid action. Must be 'follow' or 'unfollow'."}
	}
}

// IntentFor returns the intent a toggle from the given state sends.
func IntentFor(isFollowing bool) Intent {
	if isFollowing {
		return IntentUnfollow
	}
	return IntentFollow
}

// ops returns the set operations for the current user's and the target's documents.
func (i Intent) ops(actor, target Email) (actorOp SetOp, targetOp SetOp) {
	if i == IntentFollow {
		return AddTo(FieldFollowing, target), AddTo(FieldFollower, actor)
	}
	return RemoveFrom(FieldFollowing, target), RemoveFrom(FieldFollower, actor)
}

type halfAppliedError struct {
	err error
}

func (e *halfAppliedError) Error() string {
	return ErrHalfApplied.Error() + ": " + e.err.Error()
}

func (e *halfAppliedError) Is(target error) bool {
	return target == ErrHalfApplied
}

func (e *halfAppliedError) Unwrap() error {
	return e.err
}

type ValidationError struct {
	// Missing or invalid field names, in request order.
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "Missing required fields: " + strings.Join(e.Fields, ", ") + "."
}

type FollowResult struct {
	Actor       Profile
	Target      Profile
	IsFollowing bool
}

type FollowService struct {
	Store ProfileStore
	// Optional. Records intents not yet confirmed on both documents.
	Journal IntentJournal
	// Self-follow is rejected unless set.
	AllowSelfFollow bool
	// Per store call timeout, 10s when zero.
	Timeout time.Duration
}

func (s *FollowService) timeout() time.Duration {
	if s.Timeout <= 0 {
		return 10 * time.Second
	}
	return s.Timeout
}

func (s *FollowService) validate(actor, target Email, intent Intent) error {
	var missing []string
	if actor == "" {
		missing = append(missing, "currentUserEmail")
	}
	if target == "" {
		missing = append(missing, "profileUserEmail")
	}
	if intent == "" {
		missing = append(missing, "action")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	if _, err := ParseIntent(string(intent)); err != nil {
		return err
	}
	if actor == target && !s.AllowSelfFollow {
		return &ValidationError{Fields: []string{"profileUserEmail"}, Message: "Cannot follow yourself."}
	}
	return nil
}

// Apply applies a follow intent to both the current user's and the target's
// relation sets. Every half is an idempotent set operation, so repeating the
// same intent is safe.
func (s *FollowService) Apply(ctx context.Context, actor, target Email, intent Intent) (FollowResult, error) {
	if err := s.validate(actor, target, intent); err != nil {
		observeIntent(intent, outcomeInvalid)
		return FollowResult{}, err
	}

	start := time.Now()
	result, err := s.apply(ctx, actor, target, intent)
	observeIntentDuration(intent, time.Since(start))
	switch {
	case err == nil:
		observeIntent(intent, outcomeApplied)
	case errors.Is(err, ErrHalfApplied):
		observeIntent(intent, outcomeHalfApplied)
	case errors.Is(err, ErrProfileNotFound):
		observeIntent(intent, outcomeNotFound)
	default:
		observeIntent(intent, outcomeFailed)
	}
	return result, err
}

func (s *FollowService) apply(ctx context.Context, actor, target Email, intent Intent) (FollowResult, error) {
	if tx, ok := s.Store.(Transactor); ok {
		var result FollowResult
		err := tx.InTx(ctx, func(ctx context.Context, store ProfileStore) error {
			var err error
			result, err = s.applyTo(ctx, store, actor, target, intent)
			return err
		})
		if err != nil {
			// rolled back, nothing is half applied
			var half *halfAppliedError
			if errors.As(err, &half) {
				return FollowResult{}, half.err
			}
			return FollowResult{}, err
		}
		return result, nil
	}

	var entry PendingIntent
	if s.Journal != nil {
		var err error
		entry, err = s.Journal.Record(ctx, actor, target, intent)
		if err != nil {
			return FollowResult{}, fmt.Errorf("journal record: %w", err)
		}
	}

	result, err := s.applyTo(ctx, s.Store, actor, target, intent)
	if err == nil {
		var actorProfile Profile
		actorProfile, err = s.alignActor(ctx, actor, target, result.IsFollowing)
		if err != nil {
			err = &halfAppliedError{err: err}
		}
		result.Actor = actorProfile
	}
	untouched := errors.Is(err, ErrProfileNotFound) && !errors.Is(err, ErrHalfApplied)
	if s.Journal != nil && (err == nil || untouched) {
		// the pair is symmetric (or untouched), nothing left to repair
		if cerr := s.Journal.Complete(ctx, entry.Id); cerr != nil {
			logrus.WithError(cerr).WithField("intent_id", entry.Id).Warningln("Could not complete journal entry.")
		}
	}
	if err != nil {
		return FollowResult{}, err
	}
	return result, nil
}

func (s *FollowService) applyTo(ctx context.Context, store ProfileStore,
	actor, target Email, intent Intent) (FollowResult, error) {
	if err := s.requireExists(ctx, store, actor, "Current user"); err != nil {
		return FollowResult{}, err
	}
	if err := s.requireExists(ctx, store, target, "Target"); err != nil {
		return FollowResult{}, err
	}

	actorOp, targetOp := intent.ops(actor, target)

	dbCtx, cancel := context.WithTimeout(ctx, s.timeout())
	actorProfile, err := store.ApplySetOps(dbCtx, actor, actorOp)
	cancel()
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return FollowResult{}, &NotFoundError{Role: "Current user", Email: actor}
		}
		return FollowResult{}, fmt.Errorf("update current user: %w", err)
	}

	dbCtx, cancel = context.WithTimeout(ctx, s.timeout())
	targetProfile, err := store.ApplySetOps(dbCtx, target, targetOp)
	cancel()
	if err != nil {
		logrus.WithError(err).
			WithField("actor", actor).
			WithField("target", target).
			WithField("intent", intent).
			Warningln("Follow intent half applied.")
		return FollowResult{}, &halfAppliedError{err: fmt.Errorf("update target: %w", err)}
	}

	return FollowResult{
		Actor:       actorProfile,
		Target:      targetProfile,
		IsFollowing: IsFollowing(actor, targetProfile),
	}, nil
}

func (s *FollowService) requireExists(ctx context.Context, store ProfileStore, email Email, role string) error {
	dbCtx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()
	_, err := store.ByEmail(dbCtx, email)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return &NotFoundError{Role: role, Email: email}
		}
		return fmt.Errorf("lookup %s: %w", strings.ToLower(role), err)
	}
	return nil
}

// Repair makes the current user's following set agree with the target's
// follower set for one pair. The target side is authoritative: it is the
// second half written, so it is the side a failed intent did not reach.
// The target is read again after the write and the repair is repeated when a
// concurrent intent changed it in between.
func (s *FollowService) Repair(ctx context.Context, actor, target Email) (FollowResult, error) {
	targetProfile, err := s.lookupTarget(ctx, target)
	if err != nil {
		return FollowResult{}, err
	}

	for attempt := 1; ; attempt++ {
		following := IsFollowing(actor, targetProfile)
		op := RemoveFrom(FieldFollowing, target)
		if following {
			op = AddTo(FieldFollowing, target)
		}

		dbCtx, cancel := context.WithTimeout(ctx, s.timeout())
		actorProfile, err := s.Store.ApplySetOps(dbCtx, actor, op)
		cancel()
		if err != nil {
			if errors.Is(err, ErrProfileNotFound) {
				return FollowResult{}, &NotFoundError{Role: "Current user", Email: actor}
			}
			return FollowResult{}, fmt.Errorf("update current user: %w", err)
		}

		targetProfile, err = s.lookupTarget(ctx, target)
		if err != nil {
			return FollowResult{}, err
		}
		if IsFollowing(actor, targetProfile) == following {
			return FollowResult{Actor: actorProfile, Target: targetProfile, IsFollowing: following}, nil
		}
		if attempt == maxRepairAttempts {
			return FollowResult{}, errRepairUnsettled
		}
	}
}

func (s *FollowService) lookupTarget(ctx context.Context, target Email) (Profile, error) {
	dbCtx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()
	targetProfile, err := s.Store.ByEmail(dbCtx, target)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return Profile{}, &NotFoundError{Role: "Target", Email: target}
		}
		return Profile{}, fmt.Errorf("lookup target: %w", err)
	}
	return targetProfile, nil
}

// alignActor re-reads the current user after both halves were written and
// restores its following entry when a concurrent repair overwrote it.
func (s *FollowService) alignActor(ctx context.Context, actor, target Email, following bool) (Profile, error) {
	dbCtx, cancel := context.WithTimeout(ctx, s.timeout())
	actorProfile, err := s.Store.ByEmail(dbCtx, actor)
	cancel()
	if err != nil {
		return Profile{}, fmt.Errorf("lookup current user: %w", err)
	}
	if actorProfile.Follows(target) == following {
		return actorProfile, nil
	}

	op := RemoveFrom(FieldFollowing, target)
	if following {
		op = AddTo(FieldFollowing, target)
	}
	dbCtx, cancel = context.WithTimeout(ctx, s.timeout())
	defer cancel()
	actorProfile, err = s.Store.ApplySetOps(dbCtx, actor, op)
	if err != nil {
		return Profile{}, fmt.Errorf("realign current user: %w", err)
	}
	return actorProfile, nil
}

// Replay repairs every pair with a pending journal entry and returns how many
// converged. Entries whose profiles disappeared are dropped, failed ones are
// kept for the next replay.
func (s *FollowService) Replay(ctx context.Context) (int, error) {
	if s.Journal == nil {
		return 0, nil
	}
	pending, err := s.Journal.Pending(ctx)
	if err != nil {
		return 0, fmt.Errorf("journal pending: %w", err)
	}

	replayed := 0
	for _, entry := range pending {
		log := logrus.WithField("intent_id", entry.Id).
			WithField("actor", entry.Actor).
			WithField("target", entry.Target).
			WithField("intent", entry.Intent)

		_, err := s.Repair(ctx, entry.Actor, entry.Target)
		switch {
		case err == nil:
			replayed++
			observeReplay(outcomeApplied)
		case errors.Is(err, ErrProfileNotFound):
			log.WithError(err).Infoln("Dropping journal entry for missing profile.")
			observeReplay(outcomeNotFound)
		default:
			log.WithError(err).Warningln("Journal replay failed.")
			observeReplay(outcomeFailed)
			continue
		}
		if err := s.Journal.Complete(ctx, entry.Id); err != nil {
			return replayed, fmt.Errorf("journal complete: %w", err)
		}
	}
	return replayed, nil
}
