package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

type userDocument struct {
	ID           string    `bson:"_id"`
	FirstName    string    `bson:"first_name"`
	LastName     string    `bson:"last_name"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash"`
	Token        *string   `bson:"current_token"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

type mongoRepository struct {
	users *mongo.Collection
}

// NewMongoRepository stores users in coll. The unique email index is created
// by db.Mongo when the connection is opened.
func NewMongoRepository(coll *mongo.Collection) Repository {
	return &mongoRepository{users: coll}
}

func (r *mongoRepository) Create(ctx context.Context, user *User) (uuid.UUID, error) {
	id := user.ID
	if id == uuid.Nil {
		generated, err := uuid.NewV4()
		if err != nil {
			return uuid.Nil, fmt.Errorf("repository: failed to generate user ID: %w", err)
		}
		id = generated
	}

	now := mongoNow()
	doc := toDocument(user)
	doc.ID = id.String()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	if _, err := r.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return uuid.Nil, ErrEmailExists
		}
		return uuid.Nil, fmt.Errorf("repository: failed to insert user: %w", err)
	}

	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now

	return id, nil
}

func (r *mongoRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := r.findOne(ctx, bson.D{{Key: "_id", Value: id.String()}})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to find user by id %s: %w", id, err)
	}

	return user, nil
}

func (r *mongoRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	user, err := r.findOne(ctx, bson.D{{Key: "email", Value: email}})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to find user by email: %w", err)
	}

	return user, nil
}

func (r *mongoRepository) UpdateToken(ctx context.Context, user *User) error {
	now := mongoNow()

	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "current_token", Value: user.Token},
		{Key: "updated_at", Value: now},
	}}}

	res, err := r.users.UpdateOne(ctx, bson.D{{Key: "_id", Value: user.ID.String()}}, update)
	if err != nil {
		return fmt.Errorf("repository: failed to update token for user %s: %w", user.ID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}

	user.UpdatedAt = now

	return nil
}

func (r *mongoRepository) findOne(ctx context.Context, filter bson.D) (*User, error) {
	var doc userDocument
	if err := r.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return fromDocument(doc)
}

func toDocument(user *User) userDocument {
	return userDocument{
		ID:           user.ID.String(),
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		Token:        user.Token,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
}

func fromDocument(doc userDocument) (*User, error) {
	id, err := uuid.FromString(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("repository: malformed user id %q: %w", doc.ID, err)
	}

	user := &User{
		ID:           id,
		FirstName:    doc.FirstName,
		LastName:     doc.LastName,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		CreatedAt:    doc.CreatedAt.UTC(),
		UpdatedAt:    doc.UpdatedAt.UTC(),
	}
	if doc.Token != nil && *doc.Token != "" {
		token := *doc.Token
		user.Token = &token
	}

	return user, nil
}

// mongoNow matches the millisecond precision of BSON dates.
func mongoNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
