package persistent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blogsphare/sphare"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Profile struct {
	Id         primitive.ObjectID   `bson:"_id,omitempty"`
	Email      string               `bson:"email"`
	Username   string               `bson:"username"`
	Bio        string               `bson:"bio"`
	ProfilePic string               `bson:"profilePic"`
	Follower   []string             `bson:"follower"`
	Following  []string             `bson:"following"`
	Blogs      []primitive.ObjectID `bson:"blogs"`
	CreatedAt  time.Time            `bson:"createdAt"`
}

func (p Profile) ToDomain() sphare.Profile {
	blogs := make([]string, 0, len(p.Blogs))
	for _, b := range p.Blogs {
		blogs = append(blogs, b.Hex())
	}
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

func toEmails(s []string) []sphare.Email {
	emails := make([]sphare.Email, 0, len(s))
	for _, e := range s {
		emails = append(emails, sphare.Email(e))
	}
	return emails
}

func fromEmails(emails []sphare.Email) []string {
	s := make([]string, 0, len(emails))
	for _, e := range emails {
		s = append(s, string(e))
	}
	return s
}

// ProfileStore keeps profiles in a mongo collection. Updates are atomic per
// document only, wrap it in TxProfileStore when the deployment supports
// multi-document transactions.
type ProfileStore struct {
	Collection *mongo.Collection
}

var _ sphare.ProfileStore = (*ProfileStore)(nil)

func NewProfileStore(db *mongo.Database) *ProfileStore {
	return &ProfileStore{Collection: db.Collection(profileCollection)}
}

func (s *ProfileStore) CreateIndexes(ctx context.Context) error {
	_, err := s.Collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create email index: %w", err)
	}
	return nil
}

func (s *ProfileStore) Create(ctx context.Context, profile sphare.Profile) (sphare.Profile, error) {
	createdAt := profile.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	doc := Profile{
		Email:      string(profile.Email),
		Username:   profile.Username,
		Bio:        profile.Bio,
		ProfilePic: profile.ProfilePic,
		Follower:   fromEmails(profile.Follower),
		Following:  fromEmails(profile.Following),
		Blogs:      []primitive.ObjectID{},
		CreatedAt:  createdAt.Truncate(time.Millisecond),
	}
	res, err := s.Collection.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return sphare.Profile{}, sphare.ErrProfileExists
		}
		return sphare.Profile{}, fmt.Errorf("insert profile: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		doc.Id = id
	}
	return doc.ToDomain(), nil
}

func (s *ProfileStore) ByEmail(ctx context.Context, email sphare.Email) (sphare.Profile, error) {
	var doc Profile
	err := s.Collection.FindOne(ctx, bson.M{"email": email}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return sphare.Profile{}, sphare.ErrProfileNotFound
		}
		return sphare.Profile{}, fmt.Errorf("find profile: %w", err)
	}
	return doc.ToDomain(), nil
}

func (s *ProfileStore) ByEmails(ctx context.Context, emails []sphare.Email) ([]sphare.Profile, error) {
	if len(emails) == 0 {
		return []sphare.Profile{}, nil
	}
	found, err := s.find(ctx, bson.M{"email": bson.M{"$in": fromEmails(emails)}}, nil)
	if err != nil {
		return nil, err
	}

	byEmail := make(map[sphare.Email]sphare.Profile, len(found))
	for _, p := range found {
		byEmail[p.Email] = p
	}
	profiles := make([]sphare.Profile, 0, len(found))
	for _, e := range emails {
		if p, ok := byEmail[e]; ok {
			profiles = append(profiles, p)
			delete(byEmail, e)
		}
	}
	return profiles, nil
}

func (s *ProfileStore) All(ctx context.Context) ([]sphare.Profile, error) {
	return s.find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "email", Value: 1}}))
}

func (s *ProfileStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]sphare.Profile, error) {
	var findOpts []*options.FindOptions
	if opts != nil {
		findOpts = append(findOpts, opts)
	}
	cursor, err := s.Collection.Find(ctx, filter, findOpts...)
	if err != nil {
		return nil, fmt.Errorf("find profiles: %w", err)
	}
	defer cursor.Close(ctx)

	profiles := make([]sphare.Profile, 0)
	for cursor.Next(ctx) {
		var doc Profile
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode profile: %w", err)
		}
		profiles = append(profiles, doc.ToDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("profile cursor: %w", err)
	}
	return profiles, nil
}

func (s *ProfileStore) Update(ctx context.Context, email sphare.Email, update sphare.ProfileUpdate) (sphare.Profile, error) {
	set := bson.M{}
	if update.Username != "" {
		set["username"] = update.Username
	}
	if update.Bio != "" {
		set["bio"] = update.Bio
	}
	if update.ProfilePic != "" {
		set["profilePic"] = update.ProfilePic
	}
	if len(set) == 0 {
		return s.ByEmail(ctx, email)
	}
	return s.findOneAndUpdate(ctx, email, bson.M{"$set": set})
}

// ApplySetOps translates ops to $addToSet and $pull in a single update.
func (s *ProfileStore) ApplySetOps(ctx context.Context, email sphare.Email, ops ...sphare.SetOp) (sphare.Profile, error) {
	update, err := setOpsUpdate(ops)
	if err != nil {
		return sphare.Profile{}, err
	}
	if len(update) == 0 {
		return s.ByEmail(ctx, email)
	}
	return s.findOneAndUpdate(ctx, email, update)
}

func (s *ProfileStore) findOneAndUpdate(ctx context.Context, email sphare.Email, update bson.M) (sphare.Profile, error) {
	var doc Profile
	err := s.Collection.FindOneAndUpdate(ctx, bson.M{"email": email}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return sphare.Profile{}, sphare.ErrProfileNotFound
		}
		return sphare.Profile{}, fmt.Errorf("update profile: %w", err)
	}
	return doc.ToDomain(), nil
}

func setOpsUpdate(ops []sphare.SetOp) (bson.M, error) {
	added := map[sphare.RelationField][]string{}
	removed := map[sphare.RelationField][]string{}
	for _, op := range ops {
		switch op.Kind {
		case sphare.SetAdd:
			added[op.Field] = append(added[op.Field], string(op.Value))
		case sphare.SetRemove:
			removed[op.Field] = append(removed[op.Field], string(op.Value))
		default:
			return nil, fmt.Errorf("unknown set op kind %d", op.Kind)
		}
	}

	update := bson.M{}
	if len(added) > 0 {
		addToSet := bson.M{}
		for field, values := range added {
			if _, ok := removed[field]; ok {
				return nil, fmt.Errorf("conflicting set ops on %s", field)
			}
			addToSet[string(field)] = bson.M{"$each": values}
		}
		update["$addToSet"] = addToSet
	}
	if len(removed) > 0 {
		pull := bson.M{}
		for field, values := range removed {
			pull[string(field)] = bson.M{"$in": values}
		}
		update["$pull"] = pull
	}
	return update, nil
}

// TxProfileStore runs both halves of an intent in one multi-document
// transaction. Requires a replica set.
type TxProfileStore struct {
	*ProfileStore
}

var _ sphare.Transactor = TxProfileStore{}

func (s TxProfileStore) InTx(ctx context.Context, fn func(ctx context.Context, store sphare.ProfileStore) error) error {
	session, err := s.Collection.Database().Client().StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, s.ProfileStore)
	})
	return err
}
