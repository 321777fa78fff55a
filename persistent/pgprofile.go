package persistent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/blogsphare/sphare"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/schema"
)

type PgProfile struct {
	bun.BaseModel `bun:"table:profile"`

	Id         int64     `bun:",pk,autoincrement"`
	Email      string    `bun:",unique,notnull"`
	Username   string    `bun:",notnull"`
	Bio        string    `bun:",notnull"`
	ProfilePic string    `bun:",notnull"`
	Follower   []string  `bun:",notnull,array"`
	Following  []string  `bun:",notnull,array"`
	Blogs      []string  `bun:",notnull,array"`
	CreatedAt  time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

func (p PgProfile) ToDomain() sphare.Profile {
	blogs := make([]string, len(p.Blogs))
	copy(blogs, p.Blogs)
	return sphare.Profile{
		Email:      sphare.Email(p.Email),
		Username:   p.Username,
		Bio:        p.Bio,
		ProfilePic: p.ProfilePic,
		Follower:   toEmails(p.Follower),
		Following:  toEmails(p.Following),
		Blogs:      blogs,
		CreatedAt:  p.CreatedAt,
	}
}

// PgProfileStore keeps the relation sets in text[] columns. DB is either the
// database or a transaction started by InTx.
type PgProfileStore struct {
	DB bun.IDB
}

var (
	_ sphare.ProfileStore = (*PgProfileStore)(nil)
	_ sphare.Transactor   = (*PgProfileStore)(nil)
)

func (s *PgProfileStore) Create(ctx context.Context, profile sphare.Profile) (sphare.Profile, error) {
	model := &PgProfile{
		Email:      string(profile.Email),
		Username:   profile.Username,
		Bio:        profile.Bio,
		ProfilePic: profile.ProfilePic,
		Follower:   fromEmails(profile.Follower),
		Following:  fromEmails(profile.Following),
		Blogs:      []string{},
		CreatedAt:  profile.CreatedAt,
	}
	_, err := s.DB.NewInsert().
		Model(model).
		Returning("*").
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return sphare.Profile{}, sphare.ErrProfileExists
		}
		return sphare.Profile{}, fmt.Errorf("insert profile: %w", err)
	}
	return model.ToDomain(), nil
}

func (s *PgProfileStore) ByEmail(ctx context.Context, email sphare.Email) (sphare.Profile, error) {
	model := new(PgProfile)
	err := s.DB.NewSelect().
		Model(model).
		Where("email = ?", email).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sphare.Profile{}, sphare.ErrProfileNotFound
		}
		return sphare.Profile{}, fmt.Errorf("select profile: %w", err)
	}
	return model.ToDomain(), nil
}

func (s *PgProfileStore) ByEmails(ctx context.Context, emails []sphare.Email) ([]sphare.Profile, error) {
	if len(emails) == 0 {
		return []sphare.Profile{}, nil
	}
	var models []PgProfile
	err := s.DB.NewSelect().
		Model(&models).
		Where("email IN (?)", bun.In(fromEmails(emails))).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select profiles: %w", err)
	}

	byEmail := make(map[sphare.Email]PgProfile, len(models))
	for _, m := range models {
		byEmail[sphare.Email(m.Email)] = m
	}
	profiles := make([]sphare.Profile, 0, len(models))
	for _, e := range emails {
		if m, ok := byEmail[e]; ok {
			profiles = append(profiles, m.ToDomain())
			delete(byEmail, e)
		}
	}
	return profiles, nil
}

func (s *PgProfileStore) All(ctx context.Context) ([]sphare.Profile, error) {
	var models []PgProfile
	err := s.DB.NewSelect().
		Model(&models).
		Order("created_at ASC", "email ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select profiles: %w", err)
	}
	profiles := make([]sphare.Profile, 0, len(models))
	for _, m := range models {
		profiles = append(profiles, m.ToDomain())
	}
	return profiles, nil
}

func (s *PgProfileStore) Update(ctx context.Context, email sphare.Email, update sphare.ProfileUpdate) (sphare.Profile, error) {
	if update.Empty() {
		return s.ByEmail(ctx, email)
	}
	q := s.DB.NewUpdate().Model((*PgProfile)(nil))
	if update.Username != "" {
		q = q.Set("username = ?", update.Username)
	}
	if update.Bio != "" {
		q = q.Set("bio = ?", update.Bio)
	}
	if update.ProfilePic != "" {
		q = q.Set("profile_pic = ?", update.ProfilePic)
	}
	return s.updateReturning(ctx, q, email)
}

// ApplySetOps folds ops on the same column into one expression, so the whole
// update is a single statement.
func (s *PgProfileStore) ApplySetOps(ctx context.Context, email sphare.Email, ops ...sphare.SetOp) (sphare.Profile, error) {
	exprs := map[sphare.RelationField]interface{}{}
	var order []sphare.RelationField
	for _, op := range ops {
		expr, ok := exprs[op.Field]
		if !ok {
			switch op.Field {
			case sphare.FieldFollower, sphare.FieldFollowing:
			default:
				return sphare.Profile{}, fmt.Errorf("unknown relation field %q", op.Field)
			}
			expr = bun.Ident(string(op.Field))
			order = append(order, op.Field)
		}
		switch op.Kind {
		case sphare.SetAdd:
			exprs[op.Field] = schema.SafeQuery("CASE WHEN ? = ANY(?) THEN ? ELSE array_append(?, ?) END",
				[]interface{}{string(op.Value), expr, expr, expr, string(op.Value)})
		case sphare.SetRemove:
			exprs[op.Field] = schema.SafeQuery("array_remove(?, ?)", []interface{}{expr, string(op.Value)})
		default:
			return sphare.Profile{}, fmt.Errorf("unknown set op kind %d", op.Kind)
		}
	}
	if len(order) == 0 {
		return s.ByEmail(ctx, email)
	}

	q := s.DB.NewUpdate().Model((*PgProfile)(nil))
	for _, field := range order {
		q = q.Set("? = ?", bun.Ident(string(field)), exprs[field])
	}
	return s.updateReturning(ctx, q, email)
}

func (s *PgProfileStore) updateReturning(ctx context.Context, q *bun.UpdateQuery, email sphare.Email) (sphare.Profile, error) {
	model := new(PgProfile)
	err := q.Where("email = ?", email).
		Returning("*").
		Scan(ctx, model)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sphare.Profile{}, sphare.ErrProfileNotFound
		}
		return sphare.Profile{}, fmt.Errorf("update profile: %w", err)
	}
	return model.ToDomain(), nil
}

// InTx runs fn in a transaction. Nested calls reuse the running transaction.
func (s *PgProfileStore) InTx(ctx context.Context, fn func(ctx context.Context, store sphare.ProfileStore) error) error {
	db, ok := s.DB.(*bun.DB)
	if !ok {
		return fn(ctx, s)
	}
	return db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &PgProfileStore{DB: tx})
	})
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23505"
}
