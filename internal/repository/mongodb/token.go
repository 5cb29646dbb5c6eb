package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"studyhub/internal/apperrors"
	"studyhub/internal/models"
)

type TokenRepo struct {
	tokens *mongo.Collection
}

type tokenDoc struct {
	ID          string    `bson:"_id"`
	UserID      string    `bson:"user_id"`
	Token       string    `bson:"token"`
	Kind        string    `bson:"kind"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
	ExpiresAt   time.Time `bson:"expires_at"`
	Blacklisted bool      `bson:"blacklisted"`
}

func (d tokenDoc) toModel() (models.Token, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return models.Token{}, fmt.Errorf("malformed token id %q: %w", d.ID, err)
	}
	userID, err := uuid.Parse(d.UserID)
	if err != nil {
		return models.Token{}, fmt.Errorf("malformed token user id %q: %w", d.UserID, err)
	}
	return models.Token{
		ID:          id,
		UserID:      userID,
		Token:       d.Token,
		Kind:        models.TokenKind(d.Kind),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		ExpiresAt:   d.ExpiresAt,
		Blacklisted: d.Blacklisted,
	}, nil
}

func (r *TokenRepo) Save(ctx context.Context, token models.Token) (models.Token, error) {
	doc := tokenDoc{
		ID:          token.ID.String(),
		UserID:      token.UserID.String(),
		Token:       token.Token,
		Kind:        string(token.Kind),
		CreatedAt:   token.CreatedAt,
		UpdatedAt:   token.UpdatedAt,
		ExpiresAt:   token.ExpiresAt,
		Blacklisted: token.Blacklisted,
	}

	_, err := r.tokens.InsertOne(ctx, doc)
	if err != nil {
		return models.Token{}, fmt.Errorf("db error: %w", err)
	}

	return doc.toModel()
}

func (r *TokenRepo) Get(ctx context.Context, tokenString string) (models.Token, error) {
	var doc tokenDoc
	err := r.tokens.FindOne(ctx, bson.D{{Key: "token", Value: tokenString}}).Decode(&doc)

	switch {
	case err == nil:
		return doc.toModel()
	case errors.Is(err, mongo.ErrNoDocuments):
		return models.Token{}, fmt.Errorf("repo error: %w", apperrors.ErrTokenNotFound)
	default:
		return models.Token{}, fmt.Errorf("db error: %w", err)
	}
}

// Consume blacklists the token if not blacklisted yet.
// FindOneAndUpdate with the blacklisted=false filter is atomic on the server,
// so of concurrent callers exactly one gets the document back.
func (r *TokenRepo) Consume(ctx context.Context, tokenString string) (models.Token, error) {
	filter := bson.D{
		{Key: "token", Value: tokenString},
		{Key: "blacklisted", Value: false},
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "blacklisted", Value: true},
		{Key: "updated_at", Value: time.Now()},
	}}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc tokenDoc
	err := r.tokens.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)

	switch {
	case err == nil:
		return doc.toModel()
	case errors.Is(err, mongo.ErrNoDocuments):
		// Lost the race or the token never existed, look it up to tell apart
		if _, getErr := r.Get(ctx, tokenString); getErr == nil {
			return models.Token{}, fmt.Errorf("repo error: %w", apperrors.ErrTokenRevoked)
		}
		return models.Token{}, fmt.Errorf("repo error: %w", apperrors.ErrTokenNotFound)
	default:
		return models.Token{}, fmt.Errorf("db error: %w", err)
	}
}

func (r *TokenRepo) Revoke(ctx context.Context, tokenString string) error {
	_, err := r.tokens.UpdateOne(ctx,
		bson.D{{Key: "token", Value: tokenString}, {Key: "blacklisted", Value: false}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "blacklisted", Value: true},
			{Key: "updated_at", Value: time.Now()},
		}}},
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID, kind models.TokenKind) error {
	_, err := r.tokens.UpdateMany(ctx,
		bson.D{
			{Key: "user_id", Value: userID.String()},
			{Key: "kind", Value: string(kind)},
			{Key: "blacklisted", Value: false},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "blacklisted", Value: true},
			{Key: "updated_at", Value: time.Now()},
		}}},
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
