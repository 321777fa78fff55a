package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/blogsphare/sphare"
)

type profileTable map[sphare.Email]sphare.Profile

func (t profileTable) clone() profileTable {
	c := make(profileTable, len(t))
	for k, v := range t {
		c[k] = v
	}
	return c
}

func (t profileTable) create(profile sphare.Profile) (sphare.Profile, error) {
	if _, ok := t[profile.Email]; ok {
		return sphare.Profile{}, sphare.ErrProfileExists
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}
	profile = detach(profile)
	t[profile.Email] = profile
	return detach(profile), nil
}

func (t profileTable) byEmail(email sphare.Email) (sphare.Profile, error) {
	p, ok := t[email]
	if !ok {
		return sphare.Profile{}, sphare.ErrProfileNotFound
	}
	return detach(p), nil
}

func (t profileTable) byEmails(emails []sphare.Email) []sphare.Profile {
	profiles := make([]sphare.Profile, 0, len(emails))
	seen := make(map[sphare.Email]bool, len(emails))
	for _, e := range emails {
		if seen[e] {
			continue
		}
		seen[e] = true
		if p, ok := t[e]; ok {
			profiles = append(profiles, detach(p))
		}
	}
	return profiles
}

func (t profileTable) all() []sphare.Profile {
	profiles := make([]sphare.Profile, 0, len(t))
	for _, p := range t {
		profiles = append(profiles, detach(p))
	}
	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].CreatedAt.Before(profiles[j].CreatedAt) ||
			(profiles[i].CreatedAt.Equal(profiles[j].CreatedAt) && profiles[i].Email < profiles[j].Email)
	})
	return profiles
}

func (t profileTable) update(email sphare.Email, update sphare.ProfileUpdate) (sphare.Profile, error) {
	p, ok := t[email]
	if !ok {
		return sphare.Profile{}, sphare.ErrProfileNotFound
	}
	if update.Username != "" {
		p.Username = update.Username
	}
	if update.Bio != "" {
		p.Bio = update.Bio
	}
	if update.ProfilePic != "" {
		p.ProfilePic = update.ProfilePic
	}
	t[email] = p
	return detach(p), nil
}

func (t profileTable) applySetOps(email sphare.Email, ops []sphare.SetOp) (sphare.Profile, error) {
	p, ok := t[email]
	if !ok {
		return sphare.Profile{}, sphare.ErrProfileNotFound
	}
	p = p.ApplySetOps(ops...)
	t[email] = p
	return detach(p), nil
}

// detach copies the slices of p so callers never share them with the table.
func detach(p sphare.Profile) sphare.Profile {
	p.Follower = copyEmails(p.Follower)
	p.Following = copyEmails(p.Following)
	if p.Blogs != nil {
		p.Blogs = append([]string(nil), p.Blogs...)
	}
	return p
}

func copyEmails(emails []sphare.Email) []sphare.Email {
	c := make([]sphare.Email, len(emails))
	copy(c, emails)
	return c
}

// ProfileStore keeps profiles in a map. Every call is atomic for one profile,
// there is no multi profile transaction (see TxProfileStore).
type ProfileStore struct {
	profiles profileTable
	mutex    sync.RWMutex
}

var _ sphare.ProfileStore = (*ProfileStore)(nil)

func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: profileTable{}}
}

func (s *ProfileStore) Create(ctx context.Context, profile sphare.Profile) (sphare.Profile, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.profiles.create(profile)
}

func (s *ProfileStore) ByEmail(ctx context.Context, email sphare.Email) (sphare.Profile, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.profiles.byEmail(email)
}

func (s *ProfileStore) ByEmails(ctx context.Context, emails []sphare.Email) ([]sphare.Profile, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.profiles.byEmails(emails), nil
}

func (s *ProfileStore) All(ctx context.Context) ([]sphare.Profile, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.profiles.all(), nil
}

func (s *ProfileStore) Update(ctx context.Context, email sphare.Email, update sphare.ProfileUpdate) (sphare.Profile, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.profiles.update(email, update)
}

func (s *ProfileStore) ApplySetOps(ctx context.Context, email sphare.Email, ops ...sphare.SetOp) (sphare.Profile, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.profiles.applySetOps(email, ops)
}

// TxProfileStore adds copy-on-write transactions to ProfileStore.
type TxProfileStore struct {
	*ProfileStore
}

var _ sphare.Transactor = TxProfileStore{}

func NewTxProfileStore() TxProfileStore {
	return TxProfileStore{ProfileStore: NewProfileStore()}
}

// InTx runs fn against a copy of the table and swaps it in when fn succeeds.
// Other writers wait until the transaction finishes.
func (s TxProfileStore) InTx(ctx context.Context, fn func(ctx context.Context, store sphare.ProfileStore) error) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	snapshot := s.profiles.clone()
	if err := fn(ctx, tableStore{snapshot}); err != nil {
		return err
	}
	s.profiles = snapshot
	return nil
}

// tableStore is the unlocked view handed to a transaction.
type tableStore struct {
	profiles profileTable
}

func (s tableStore) Create(ctx context.Context, profile sphare.Profile) (sphare.Profile, error) {
	return s.profiles.create(profile)
}

func (s tableStore) ByEmail(ctx context.Context, email sphare.Email) (sphare.Profile, error) {
	return s.profiles.byEmail(email)
}

func (s tableStore) ByEmails(ctx context.Context, emails []sphare.Email) ([]sphare.Profile, error) {
	return s.profiles.byEmails(emails), nil
}

func (s tableStore) All(ctx context.Context) ([]sphare.Profile, error) {
	return s.profiles.all(), nil
}

func (s tableStore) Update(ctx context.Context, email sphare.Email, update sphare.ProfileUpdate) (sphare.Profile, error) {
	return s.profiles.update(email, update)
}

func (s tableStore) ApplySetOps(ctx context.Context, email sphare.Email, ops ...sphare.SetOp) (sphare.Profile, error) {
	return s.profiles.applySetOps(email, ops)
}
