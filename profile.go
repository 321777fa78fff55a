package sphare

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrProfileExists   = errors.New("profile already exists")
)

// Email identifies a profile.
type Email string

// NormalizeEmail trims surrounding whitespace. Case is preserved because the
// stored identifiers are compared byte for byte.
func NormalizeEmail(s string) Email {
	return Email(strings.TrimSpace(s))
}

type Profile struct {
	Email      Email
	Username   string
	Bio        string
	ProfilePic string
	// Emails of profiles following this one.
	Follower []Email
	// Emails of profiles this one follows.
	Following []Email
	// Ids of owned blogs.
	Blogs     []string
	CreatedAt time.Time
}

// IsFollowedBy reports whether viewer is present in the follower set.
func (p Profile) IsFollowedBy(viewer Email) bool {
	return containsEmail(p.Follower, viewer)
}

func (p Profile) Follows(target Email) bool {
	return containsEmail(p.Following, target)
}

// IsFollowing is the read side of a follow relation: viewer follows target
// when viewer is a member of target's follower set.
func IsFollowing(viewer Email, target Profile) bool {
	return target.IsFollowedBy(viewer)
}

// Self-edit of a profile. Empty fields keep the stored value.
type ProfileUpdate struct {
	Username   string
	Bio        string
	ProfilePic string
}

func (u ProfileUpdate) Empty() bool {
	return u.Username == "" && u.Bio == "" && u.ProfilePic == ""
}

// NotFoundError names which side of a relation could not be resolved.
type NotFoundError struct {
	Role  string
	Email Email
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s profile with email %s not found.", e.Role, e.Email)
}

func (e *NotFoundError) Unwrap() error {
	return ErrProfileNotFound
}

type ProfileStore interface {
	// Create registers a new profile. Returns ErrProfileExists when the email is taken.
	Create(ctx context.Context, profile Profile) (Profile, error)

	ByEmail(ctx context.Context, email Email) (Profile, error)

	// ByEmails returns the profiles that exist, unknown emails are skipped.
	ByEmails(ctx context.Context, emails []Email) ([]Profile, error)

	All(ctx context.Context) ([]Profile, error)

	Update(ctx context.Context, email Email, update ProfileUpdate) (Profile, error)

	// ApplySetOps atomically applies set operations to a single profile document
	// and returns the document after the update.
	ApplySetOps(ctx context.Context, email Email, ops ...SetOp) (Profile, error)
}

// Transactor is implemented by stores able to apply several document updates
// atomically. fn receives a store bound to the transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, store ProfileStore) error) error
}

func containsEmail(set []Email, email Email) bool {
	for _, e := range set {
		if e == email {
			return true
		}
	}
	return false
}
