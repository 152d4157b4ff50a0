package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// APIToken authenticates callers of the import API. The plaintext
// value is never stored; only its sha256 hash is kept, so a leaked
// database dump cannot be replayed against the API.
type APIToken struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	TokenHash string             `bson:"token_hash" json:"-" unique:"true"`
	Name      string             `bson:"name" json:"name" unique:"true"`
	Role      string             `bson:"role" json:"role"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	ExpiresAt time.Time          `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
	LastUsed  time.Time          `bson:"last_used,omitempty" json:"last_used,omitempty"`
	Revoked   bool               `bson:"revoked" json:"revoked"`
}
