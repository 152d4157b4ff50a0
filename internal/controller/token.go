package controller

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"aidimport/internal/database"
	"aidimport/internal/model"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Roles accepted by the API. Admin tokens may manage other tokens;
// service tokens may only drive imports and batches.
const (
	RoleAdmin   = "ADMIN"
	RoleService = "SERVICE"
)

// TokenController issues and checks the API tokens that gate import
// and batch operations.
type TokenController interface {
	// GenerateToken mints a token with the given name, role and
	// optional expiry. The plaintext token is returned exactly once.
	GenerateToken(context.Context, string, string, *time.Time) (string, *model.APIToken, error)

	// VerifyToken resolves a plaintext token to its stored record,
	// rejecting revoked and expired tokens.
	VerifyToken(context.Context, string) (*model.APIToken, error)

	ListTokens(context.Context) ([]model.APIToken, error)
	RevokeToken(context.Context, string) error
	GetTokenByID(context.Context, string) (*model.APIToken, error)

	// GenerateInitialAdminToken bootstraps the first admin token so a
	// fresh deployment can reach the token management endpoints.
	GenerateInitialAdminToken(context.Context, string) (string, error)
}

type tokenController struct {
	db database.Database
}

// NewToken creates a token controller backed by the given database.
func NewToken(db database.Database) TokenController {
	return &tokenController{db: db}
}

func (s *tokenController) GenerateToken(ctx context.Context, name string, role string, expiresAt *time.Time) (string, *model.APIToken, error) {
	// Only the sha256 hash is persisted, so a hash collision shows up
	// as a duplicate key. Retry a couple of times before giving up.
	for attempts := 0; attempts < 3; attempts++ {
		rawToken := make([]byte, 32)
		if _, err := rand.Read(rawToken); err != nil {
			return "", nil, fmt.Errorf("failed to generate random token: %w", err)
		}

		tokenString := hex.EncodeToString(rawToken)

		now := time.Now()
		token := &model.APIToken{
			ID:        primitive.NewObjectID(),
			TokenHash: hashToken(tokenString),
			Name:      name,
			Role:      role,
			CreatedAt: now,
			LastUsed:  now,
			Revoked:   false,
		}
		if expiresAt != nil {
			token.ExpiresAt = *expiresAt
		}

		if err := s.db.CreateToken(ctx, token); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				log.Warn().Msg("Token hash collision detected, retrying generation")
				continue
			}
			return "", nil, err
		}

		return tokenString, token, nil
	}

	return "", nil, fmt.Errorf("failed to generate a unique token after multiple attempts")
}

func (s *tokenController) VerifyToken(ctx context.Context, tokenString string) (*model.APIToken, error) {
	return s.db.VerifyToken(ctx, hashToken(tokenString))
}

func (s *tokenController) ListTokens(ctx context.Context) ([]model.APIToken, error) {
	return s.db.ListTokens(ctx)
}

func (s *tokenController) RevokeToken(ctx context.Context, tokenID string) error {
	id, err := primitive.ObjectIDFromHex(tokenID)
	if err != nil {
		return fmt.Errorf("invalid token ID format: %w", err)
	}

	return s.db.RevokeToken(ctx, id)
}

func (s *tokenController) GetTokenByID(ctx context.Context, tokenID string) (*model.APIToken, error) {
	id, err := primitive.ObjectIDFromHex(tokenID)
	if err != nil {
		return nil, fmt.Errorf("invalid token ID format: %w", err)
	}

	return s.db.GetTokenByID(ctx, id)
}

func (s *tokenController) GenerateInitialAdminToken(ctx context.Context, appName string) (string, error) {
	expiresAt := time.Now().AddDate(1, 0, 0)

	tokenString, token, err := s.GenerateToken(ctx, fmt.Sprintf("%s - Admin Token", appName), RoleAdmin, &expiresAt)
	if err != nil {
		return "", fmt.Errorf("failed to generate initial admin token: %w", err)
	}

	log.Info().
		Str("tokenID", token.ID.Hex()).
		Str("name", token.Name).
		Time("expiresAt", token.ExpiresAt).
		Msg("Initial admin token created")

	return tokenString, nil
}

func hashToken(tokenString string) string {
	hasher := sha256.New()
	hasher.Write([]byte(tokenString))
	return hex.EncodeToString(hasher.Sum(nil))
}
