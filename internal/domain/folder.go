package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AccessLevel mirrors the hosting server's permission ladder.
type AccessLevel int

const (
	AccessNone  AccessLevel = -1
	AccessRead  AccessLevel = 0
	AccessWrite AccessLevel = 1
	AccessAdmin AccessLevel = 2
)

func (l AccessLevel) String() string {
	switch l {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessAdmin:
		return "admin"
	default:
		return "none"
	}
}

// AccessEntry grants a user a level on a folder.
type AccessEntry struct {
	UserID primitive.ObjectID `bson:"id" json:"id"`
	Level  AccessLevel        `bson:"level" json:"level"`
}

// Folder is a container of items. Items inherit the access control list of
// the folder they live in.
type Folder struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	ParentID  primitive.ObjectID `bson:"parentId,omitempty" json:"parentId,omitempty"`
	CreatorID primitive.ObjectID `bson:"creatorId" json:"creatorId"`
	Public    bool               `bson:"public" json:"public"`
	Access    []AccessEntry      `bson:"access,omitempty" json:"access,omitempty"`
	CreatedAt time.Time          `bson:"created" json:"created"`
	UpdatedAt time.Time          `bson:"updated" json:"updated"`
}

// LevelFor returns the effective access level of user on the folder.
func (f *Folder) LevelFor(user *User) AccessLevel {
	if f == nil {
		return AccessNone
	}
	if user.IsAdmin() {
		return AccessAdmin
	}
	level := AccessNone
	if f.Public {
		level = AccessRead
	}
	if user == nil {
		return level
	}
	if f.CreatorID == user.ID {
		return AccessAdmin
	}
	for _, entry := range f.Access {
		if entry.UserID == user.ID && entry.Level > level {
			level = entry.Level
		}
	}
	return level
}

// HasAccess reports whether user holds at least the given level.
func (f *Folder) HasAccess(user *User, level AccessLevel) bool {
	return f.LevelFor(user) >= level
}
