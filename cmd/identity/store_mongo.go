package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store over a MongoDB collection.
// The client is owned by the caller.
type MongoStore struct {
	coll *mongo.Collection
}

// DefaultAccountsCollection is the collection used by NewMongoStore.
const DefaultAccountsCollection = "accounts"

const (
	mongoIdxEmail    = "uq_accounts_email_norm"
	mongoIdxUsername = "uq_accounts_username_norm"
)

type mongoAccount struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	EmailNorm    string    `bson:"email_norm"`
	Username     string    `bson:"username"`
	UsernameNorm string    `bson:"username_norm"`
	Interests    []string  `bson:"interests"`
	PasswordHash string    `bson:"password_hash"`
	LastActive   time.Time     `bson:"last_active"`
	CreatedAt    time.Time     `bson:"created_at"`
	Profile      *mongoProfile `bson:"profile,omitempty"`
}

type mongoProfile struct {
	DisplayName string    `bson:"display_name"`
	Gender      string    `bson:"gender"`
	Birthday    time.Time `bson:"birthday"`
	Horoscope   string    `bson:"horoscope"`
	Zodiac      string    `bson:"zodiac"`
	Height      float64   `bson:"height"`
	Weight      float64   `bson:"weight"`
	ImageURL    string    `bson:"image_url"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func (m *mongoProfile) profile() *Profile {
	if m == nil {
		return nil
	}
	return &Profile{
		DisplayName: m.DisplayName,
		Gender:      Gender(m.Gender),
		Birthday:    m.Birthday.UTC(),
		Horoscope:   Horoscope(m.Horoscope),
		Zodiac:      Zodiac(m.Zodiac),
		Height:      m.Height,
		Weight:      m.Weight,
		ImageURL:    m.ImageURL,
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
}

func (m mongoAccount) account() Account {
	return Account{
		ID:         m.ID,
		Email:      m.Email,
		Username:   m.Username,
		Interests:  append([]string(nil), m.Interests...),
		LastActive: m.LastActive.UTC(),
		CreatedAt:  m.CreatedAt.UTC(),
		Profile:    m.Profile.profile(),
	}
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore binds a store to db.<collection> (DefaultAccountsCollection when empty).
func NewMongoStore(db *mongo.Database, collection string) (*MongoStore, error) {
	if db == nil {
		return nil, fmt.Errorf("identity: nil mongo database")
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		collection = DefaultAccountsCollection
	}
	return &MongoStore{coll: db.Collection(collection)}, nil
}

// EnsureIndexes creates the unique indexes backing email/username conflicts.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email_norm", Value: 1}},
			Options: options.Index().SetName(mongoIdxEmail).SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "username_norm", Value: 1}},
			Options: options.Index().SetName(mongoIdxUsername).SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("identity: ensure indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.CreateAccount"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	p, err := prepareCreate(op, in)
	if err != nil {
		return Account{}, err
	}

	doc := mongoAccount{
		ID:           p.id,
		Email:        p.email,
		EmailNorm:    p.emailNorm,
		Username:     p.username,
		UsernameNorm: p.usernameNorm,
		Interests:    p.interests,
		PasswordHash: p.passwordHash,
		LastActive:   p.now,
		CreatedAt:    p.now,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return Account{}, ConflictError{Op: op, Field: mongoConflictField(err)}
		}
		return Account{}, fmt.Errorf("%s: %w", op, err)
	}
	return p.account(), nil
}

func (s *MongoStore) GetAuthByIdentifier(ctx context.Context, identifier string) (AccountAuth, error) {
	const op = "identity.GetAuthByIdentifier"

	if err := ctx.Err(); err != nil {
		return AccountAuth{}, err
	}
	key := NormalizeIdentifier(identifier)
	if key == "" {
		return AccountAuth{}, invalid(op, "missing identifier")
	}

	filter := bson.M{"$or": bson.A{
		bson.M{"email_norm": key},
		bson.M{"username_norm": key},
	}}

	var doc mongoAccount
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return AccountAuth{}, NotFoundError{Op: op, Resource: "account"}
		}
		return AccountAuth{}, fmt.Errorf("%s: %w", op, err)
	}
	return AccountAuth{Account: doc.account(), PasswordHash: doc.PasswordHash}, nil
}

func (s *MongoStore) GetByID(ctx context.Context, id string) (Account, error) {
	const op = "identity.GetByID"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	var doc mongoAccount
	err := s.coll.FindOne(ctx, bson.M{"_id": strings.TrimSpace(id)},
		options.FindOne().SetProjection(bson.M{"password_hash": 0}),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Account{}, NotFoundError{Op: op, Resource: "account"}
		}
		return Account{}, fmt.Errorf("%s: %w", op, err)
	}
	return doc.account(), nil
}

func (s *MongoStore) Exists(ctx context.Context, id string) (bool, error) {
	const op = "identity.Exists"

	if err := ctx.Err(); err != nil {
		return false, err
	}

	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": strings.TrimSpace(id)}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n > 0, nil
}

func (s *MongoStore) TouchLastActive(ctx context.Context, id string, at time.Time) error {
	const op = "identity.TouchLastActive"

	if err := ctx.Err(); err != nil {
		return err
	}
	if at.IsZero() {
		at = time.Now()
	}

	res, err := s.coll.UpdateByID(ctx, strings.TrimSpace(id), bson.M{"$set": bson.M{"last_active": at.UTC()}})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return NotFoundError{Op: op, Resource: "account"}
	}
	return nil
}

func (s *MongoStore) UpsertProfile(ctx context.Context, id string, in ProfileInput, mode ProfileMode) (Profile, error) {
	const op = "identity.UpsertProfile"

	if err := ctx.Err(); err != nil {
		return Profile{}, err
	}
	p, err := prepareProfile(op, in)
	if err != nil {
		return Profile{}, err
	}
	id = strings.TrimSpace(id)

	set := bson.M{
		"profile.display_name": p.DisplayName,
		"profile.gender":       string(p.Gender),
		"profile.birthday":     p.Birthday,
		"profile.horoscope":    string(p.Horoscope),
		"profile.zodiac":       string(p.Zodiac),
		"profile.height":       p.Height,
		"profile.weight":       p.Weight,
		"profile.updated_at":   p.UpdatedAt,
	}
	if p.ImageURL != "" || mode == ProfileCreate {
		set["profile.image_url"] = p.ImageURL
	}

	filter := bson.M{"_id": id, "profile": bson.M{"$exists": mode == ProfileUpdate}}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"profile": 1})

	var doc mongoAccount
	err = s.coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&doc)
	if err == nil && doc.Profile != nil {
		return *doc.Profile.profile(), nil
	}
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	ok, err := s.Exists(ctx, id)
	if err != nil {
		return Profile{}, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return Profile{}, NotFoundError{Op: op, Resource: "account"}
	}
	if mode == ProfileCreate {
		return Profile{}, ConflictError{Op: op, Field: "profile"}
	}
	return Profile{}, NotFoundError{Op: op, Resource: "profile"}
}

func (s *MongoStore) UpdateInterests(ctx context.Context, id string, interests []string) ([]string, error) {
	const op = "identity.UpdateInterests"

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	norm, err := normalizeInterests(interests)
	if err != nil {
		return nil, err
	}

	res, err := s.coll.UpdateByID(ctx, strings.TrimSpace(id), bson.M{"$set": bson.M{"interests": norm}})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return nil, NotFoundError{Op: op, Resource: "account"}
	}
	return norm, nil
}

// mongoConflictField maps a duplicate-key error to the logical field via the index name.
func mongoConflictField(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, mongoIdxUsername), strings.Contains(msg, "username_norm"):
		return "username"
	case strings.Contains(msg, mongoIdxEmail), strings.Contains(msg, "email_norm"):
		return "email"
	default:
		return "unique"
	}
}
