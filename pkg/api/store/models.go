package store

import (
	"time"
)

// BuiltinAdminID is the id of the seeded admin account. Ids below 1 are
// reserved: they cannot be renamed, deleted, or deactivated through the
// admin surface.
const BuiltinAdminID = 0

// User is a credential record. A nil PasswordHash means the account is
// deactivated and cannot authenticate; Locked blocks authentication and
// privileged self-service even when a hash is present.
type User struct {
	ID           int       `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash *string   `json:"-"`
	Admin        bool      `gorm:"not null" json:"admin"`
	Locked       bool      `gorm:"not null" json:"locked"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Session is a time-bounded credential. Rows are immutable after insert:
// logout, revocation, and the sweeper delete them, nothing mutates them.
// A session is valid iff Until is strictly in the future; validity is
// derived at read time, never stored.
type Session struct {
	ID        int       `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"uniqueIndex;not null" json:"-"`
	UserID    int       `gorm:"not null" json:"userid"`
	Until     time.Time `gorm:"not null" json:"until"`
	CreatedAt time.Time `json:"created_at"`
}

// Permissions is the execution context resolved from a session key joined
// to its owning user. It lives for a single request and is never persisted.
type Permissions struct {
	Username string `json:"username"`
	UserID   int    `json:"userid"`
	Admin    bool   `json:"admin"`
}

// UserFilter narrows and orders admin user listings. Nil fields are
// ignored.
type UserFilter struct {
	IDLte            *int
	IDMte            *int
	UsernameContains *string
	AdminEq          *bool
	LockedEq         *bool
	OrderBy          string
	Limit            *int
}

// SessionFilter narrows and orders session listings. Nil fields are
// ignored. Expired sessions are always excluded.
type SessionFilter struct {
	IDLte    *int
	IDMte    *int
	UserIDEq *int
	UntilLte *time.Time
	UntilMte *time.Time
	OrderBy  string
	Limit    *int
}

// Recognized ORDER BY clauses per filter. Exposed so the API layer can
// validate order_by query values before they reach the store.
var (
	UserOrders = map[string]string{
		"":              "username ASC",
		"id_asc":        "id ASC",
		"id_desc":       "id DESC",
		"username_asc":  "username ASC",
		"username_desc": "username DESC",
	}

	SessionOrders = map[string]string{
		"":            "until ASC",
		"id_asc":      "id ASC",
		"id_desc":     "id DESC",
		"userid_asc":  "user_id ASC",
		"userid_desc": "user_id DESC",
		"until_asc":   "until ASC",
		"until_desc":  "until DESC",
	}
)
