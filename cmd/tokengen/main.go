package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"refinery/internal/config"
	"refinery/internal/model"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	// Configure logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if len(os.Args) < 4 {
		fmt.Println("Usage: tokengen <config_path> <token_name> <expires_in_days>")
		fmt.Println("Example: tokengen config.json \"Initial Admin Token\" 365")
		os.Exit(1)
	}

	configPath := os.Args[1]
	tokenName := os.Args[2]
	expiresInDays, err := strconv.Atoi(os.Args[3])
	if err != nil {
		log.Fatal().Msgf("Invalid expires_in_days value: %v", err)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Msgf("Failed to load configuration: %v", err)
	}

	clientOptions := options.Client().ApplyURI(cfg.MongoDB.URI)
	if cfg.MongoDB.Username != "" {
		clientOptions.SetAuth(options.Credential{
			Username: cfg.MongoDB.Username,
			Password: cfg.MongoDB.Password,
		})
	}

	client, err := mongo.Connect(context.TODO(), clientOptions)
	if err != nil {
		log.Fatal().Msgf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(context.TODO())

	if err := client.Ping(context.TODO(), nil); err != nil {
		log.Fatal().Msgf("Failed to ping MongoDB: %v", err)
	}

	db := client.Database(cfg.MongoDB.DB)
	apiTokensCol := db.Collection("api_tokens")

	// Generate a secure random token
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Fatal().Msgf("Failed to generate random token: %v", err)
	}
	rawToken := hex.EncodeToString(b)

	// Hash the token for storage
	h := sha256.New()
	h.Write([]byte(rawToken))
	tokenHash := hex.EncodeToString(h.Sum(nil))

	token := model.APIToken{
		ID:        primitive.NewObjectID(),
		TokenHash: tokenHash,
		Name:      tokenName,
		Role:      model.RoleAdmin,
		CreatedAt: time.Now(),
		Revoked:   false,
	}

	if expiresInDays > 0 {
		token.ExpiresAt = time.Now().AddDate(0, 0, expiresInDays)
	}

	if _, err := apiTokensCol.InsertOne(context.TODO(), token); err != nil {
		log.Fatal().Msgf("Failed to insert token: %v", err)
	}

	fmt.Println("Admin token created successfully!")
	fmt.Println("Token:", rawToken)
	fmt.Println("IMPORTANT: Save this token securely. It won't be shown again.")
}
