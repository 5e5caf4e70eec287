package controller

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"refinery/internal/database"
	"refinery/internal/model"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// TokenController defines the contract for token operations
type TokenController interface {
	// GenerateToken creates a new token with the specified parameters
	GenerateToken(context.Context, string, string, *time.Time) (string, *model.APIToken, error)

	// VerifyToken checks if a token is valid and returns its details
	VerifyToken(context.Context, string) (*model.APIToken, error)

	// ListTokens retrieves all tokens from the database
	ListTokens(context.Context) ([]model.APIToken, error)

	// RevokeToken disables a token by ID
	RevokeToken(context.Context, string) error

	// GenerateInitialAdminToken creates the first admin token in the system
	GenerateInitialAdminToken(context.Context, string) (string, error)
}

// tokenController handles token operations
type tokenController struct {
	db database.Database
}

func NewToken(db database.Database) TokenController {
	return &tokenController{
		db: db,
	}
}

// GenerateToken creates a new secure token
func (s *tokenController) GenerateToken(ctx context.Context, name string, role string, expiresAt *time.Time) (string, *model.APIToken, error) {
	// Try up to 3 times to generate a unique token
	for attempts := 0; attempts < 3; attempts++ {
		// Generate 32 bytes of random data (will give us 64 hex characters)
		rawToken := make([]byte, 32)
		_, err := rand.Read(rawToken)
		if err != nil {
			return "", nil, fmt.Errorf("failed to generate random token: %w", err)
		}

		tokenString := hex.EncodeToString(rawToken)

		// Hash the token for storage
		hasher := sha256.New()
		hasher.Write([]byte(tokenString))
		tokenHash := hex.EncodeToString(hasher.Sum(nil))

		now := time.Now()
		token := &model.APIToken{
			ID:        primitive.NewObjectID(),
			TokenHash: tokenHash,
			Name:      name,
			Role:      role,
			CreatedAt: now,
			LastUsed:  now,
			Revoked:   false,
		}

		if expiresAt != nil {
			token.ExpiresAt = *expiresAt
		}

		err = s.db.CreateToken(ctx, token)
		if err != nil {
			// If it's a uniqueness error, try again
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

// VerifyToken verifies if a token is valid
func (s *tokenController) VerifyToken(ctx context.Context, tokenString string) (*model.APIToken, error) {
	// Hash the provided token
	hasher := sha256.New()
	hasher.Write([]byte(tokenString))
	tokenHash := hex.EncodeToString(hasher.Sum(nil))

	return s.db.VerifyToken(ctx, tokenHash)
}

// ListTokens lists all tokens
func (s *tokenController) ListTokens(ctx context.Context) ([]model.APIToken, error) {
	return s.db.ListTokens(ctx)
}

// RevokeToken revokes a token by ID
func (s *tokenController) RevokeToken(ctx context.Context, tokenID string) error {
	id, err := primitive.ObjectIDFromHex(tokenID)
	if err != nil {
		return fmt.Errorf("invalid token ID format: %w", err)
	}

	return s.db.RevokeToken(ctx, id)
}

// GenerateInitialAdminToken creates the first admin token in the system.
// This should only be used during system initialization.
func (s *tokenController) GenerateInitialAdminToken(ctx context.Context, appName string) (string, error) {
	// Set expiration for 1 year from now
	expiresAt := time.Now().AddDate(1, 0, 0)

	tokenString, token, err := s.GenerateToken(ctx, fmt.Sprintf("%s - Admin Token", appName), model.RoleAdmin, &expiresAt)
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
