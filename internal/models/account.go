package models

import "time"

// Account is the stable identity subject that owns a credit ledger and at most
// one active verification session. Accounts are created on first reference and
// never deleted; ledger rows must stay traceable for audit.
type Account struct {
	Sub       string    `json:"sub" db:"sub"` // opaque subject identifier from the auth layer
	Email     string    `json:"email,omitempty" db:"email"`
	Verified  bool      `json:"verified" db:"verified"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Roles recognised by the auth boundary.
const (
	RoleUser    = "careerforge:user"
	RoleManager = "careerforge:manager"
)
