package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"studyhub/internal/apperrors"
	"studyhub/internal/models"
)

type UserRepo struct {
	users *mongo.Collection
}

type userDoc struct {
	ID            string    `bson:"_id"`
	CreatedAt     time.Time `bson:"created_at"`
	Email         string    `bson:"email"`
	Name          string    `bson:"name"`
	EmailVerified bool      `bson:"email_verified"`
	PasswordHash  string    `bson:"password_hash"`
}

func (d userDoc) toModel() (models.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return models.User{}, fmt.Errorf("malformed user id %q: %w", d.ID, err)
	}
	return models.User{
		ID:             id,
		CreatedAt:      d.CreatedAt,
		Email:          d.Email,
		Name:           d.Name,
		EmailVerified:  d.EmailVerified,
		HashedPassword: d.PasswordHash,
	}, nil
}

func (r *UserRepo) CreateUser(ctx context.Context, email string, name string, hashedPassword string) (models.User, error) {
	doc := userDoc{
		ID:           uuid.NewString(),
		CreatedAt:    time.Now().Truncate(time.Millisecond),
		Email:        email,
		Name:         name,
		PasswordHash: hashedPassword,
	}

	_, err := r.users.InsertOne(ctx, doc)
	if err != nil {
		if isDuplicateKeyError(err) {
			return models.User{}, apperrors.ErrUserAlreadyExists
		}
		return models.User{}, fmt.Errorf("db error: %w", err)
	}

	return doc.toModel()
}

func (r *UserRepo) GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: userID.String()}})
}

func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

func (r *UserRepo) findOne(ctx context.Context, filter bson.D) (models.User, error) {
	var doc userDoc
	err := r.users.FindOne(ctx, filter).Decode(&doc)

	switch {
	case err == nil:
		return doc.toModel()
	case errors.Is(err, mongo.ErrNoDocuments):
		return models.User{}, apperrors.ErrUserNotFound
	default:
		return models.User{}, fmt.Errorf("db error: %w", err)
	}
}

func (r *UserRepo) UpdatePassword(ctx context.Context, userID uuid.UUID, hashedPassword string) error {
	res, err := r.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: userID.String()}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "password_hash", Value: hashedPassword}}}},
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func (r *UserRepo) MarkEmailVerified(ctx context.Context, userID uuid.UUID) error {
	res, err := r.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: userID.String()}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "email_verified", Value: true}}}},
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}
