package user

import (
	"time"

	"github.com/trezcool/babillard/core"
)

// User is an entry of the user directory. Accounts and credentials are owned by the auth layer;
// the directory only tells who can receive notifications.
type User struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Role      string    `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
}

func (u User) IsAdmin() bool {
	return u.Role == core.RoleAdmin
}

// NewUser contains information needed to add a User to the directory.
type NewUser struct {
	ID   string `json:"id" validate:"required,max=64"`
	Name string `json:"name" validate:"required,max=200"`
	Role string `json:"role" validate:"required,role"`
}

// AudienceFilter selects the users a notification is delivered to.
type AudienceFilter struct {
	Exclude  []string  // user ids left out (eg. the notification's author)
	JoinedBy time.Time // only users created at or before this time; zero means no bound
}
