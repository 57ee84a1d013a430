package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User represents an account of the hosting server. Uploads, annotations and
// folders are attributed to users.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Login        string             `bson:"login" json:"login"`
	Email        string             `bson:"email" json:"email"`    // Should be unique
	PasswordHash string             `bson:"passwordHash" json:"-"` // Never expose this via JSON
	FirstName    string             `bson:"firstName,omitempty" json:"firstName,omitempty"`
	LastName     string             `bson:"lastName,omitempty" json:"lastName,omitempty"`
	Admin        bool               `bson:"admin" json:"admin"`
	CreatedAt    time.Time          `bson:"created" json:"created"`
	UpdatedAt    time.Time          `bson:"updated" json:"updated"`
}

// IsAdmin reports whether the user bypasses resource access checks.
func (u *User) IsAdmin() bool {
	return u != nil && u.Admin
}
