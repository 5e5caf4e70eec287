package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Clinic is a directory record eligible for content rewriting
type Clinic struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title       string             `bson:"title" json:"title"`
	City        string             `bson:"city" json:"city"`
	Specialty   string             `bson:"specialty" json:"specialty"`
	Description string             `bson:"description" json:"description"`
	OptimizedAt *time.Time         `bson:"optimized_at,omitempty" json:"optimizedAt,omitempty"`
	CreatedAt   time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updatedAt"`
}

const (
	RoleAdmin   = "admin"
	RoleService = "service"
)

// APIToken represents a service authentication token
type APIToken struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	TokenHash string             `bson:"token_hash" json:"-"`
	Name      string             `bson:"name" json:"name"`
	Role      string             `bson:"role" json:"role"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	ExpiresAt time.Time          `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
	LastUsed  time.Time          `bson:"last_used,omitempty" json:"last_used,omitempty"`
	Revoked   bool               `bson:"revoked" json:"revoked"`
}
