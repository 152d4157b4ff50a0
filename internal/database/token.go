package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aidimport/internal/model"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TokenDatabase persists the API tokens that gate the import endpoints.
type TokenDatabase interface {
	CreateToken(context.Context, *model.APIToken) error
	VerifyToken(context.Context, string) (*model.APIToken, error)
	ListTokens(context.Context) ([]model.APIToken, error)
	RevokeToken(context.Context, primitive.ObjectID) error
	GetTokenByID(context.Context, primitive.ObjectID) (*model.APIToken, error)
}

func (m *mongoDB) CreateToken(ctx context.Context, token *model.APIToken) error {
	if _, err := m.tokensCol.InsertOne(ctx, token); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			log.Error().Str("name", token.Name).Msg("Duplicate token detected")
			return fmt.Errorf("duplicate token detected")
		}

		log.Error().Err(err).Msg("Failed to create token")
		return err
	}
	return nil
}

// VerifyToken looks up an active token by its hash and records the
// access time. Revoked and expired tokens never match the filter.
func (m *mongoDB) VerifyToken(ctx context.Context, tokenHash string) (*model.APIToken, error) {
	filter := bson.M{
		"token_hash": tokenHash,
		"revoked":    false,
		"$or": []bson.M{
			{"expires_at": bson.M{"$exists": false}},
			{"expires_at": bson.M{"$gt": time.Now()}},
		},
	}

	token, err := m.findToken(ctx, filter)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("invalid or expired token")
		}
		log.Error().Err(err).Msg("Error verifying token")
		return nil, err
	}

	// Best effort; an authenticated request should not fail because
	// the last_used stamp could not be written.
	update := bson.M{"$set": bson.M{"last_used": time.Now()}}
	if _, err := m.tokensCol.UpdateOne(ctx, bson.M{"_id": token.ID}, update); err != nil {
		log.Warn().Err(err).Msg("Error updating token last used time")
	}

	return token, nil
}

func (m *mongoDB) ListTokens(ctx context.Context) ([]model.APIToken, error) {
	findOptions := options.Find().SetSort(bson.M{"created_at": -1})

	cursor, err := m.tokensCol.Find(ctx, bson.M{}, findOptions)
	if err != nil {
		log.Error().Err(err).Msg("Error retrieving tokens")
		return nil, err
	}
	defer cursor.Close(ctx)

	var tokens []model.APIToken
	if err = cursor.All(ctx, &tokens); err != nil {
		log.Error().Err(err).Msg("Error decoding tokens")
		return nil, err
	}

	return tokens, nil
}

func (m *mongoDB) RevokeToken(ctx context.Context, tokenID primitive.ObjectID) error {
	update := bson.M{"$set": bson.M{"revoked": true}}

	if _, err := m.tokensCol.UpdateOne(ctx, bson.M{"_id": tokenID}, update); err != nil {
		log.Error().Err(err).Msg("Error revoking token")
		return err
	}

	return nil
}

func (m *mongoDB) GetTokenByID(ctx context.Context, tokenID primitive.ObjectID) (*model.APIToken, error) {
	token, err := m.findToken(ctx, bson.M{"_id": tokenID})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("token not found")
		}
		log.Error().Err(err).Msg("Error retrieving token")
		return nil, err
	}

	return token, nil
}

func (m *mongoDB) findToken(ctx context.Context, filter bson.M) (*model.APIToken, error) {
	var token model.APIToken
	if err := m.tokensCol.FindOne(ctx, filter).Decode(&token); err != nil {
		return nil, err
	}
	return &token, nil
}
