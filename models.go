package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AccountStatus is the single authoritative lifecycle state of an account.
type AccountStatus string

const (
	// StatusCreated is the state right after registration
	StatusCreated AccountStatus = "created"
	// StatusEmailVerified means the user proved control of the email address
	StatusEmailVerified AccountStatus = "email_verified"
	// StatusRegistered is the terminal, fully registered state
	StatusRegistered AccountStatus = "registered"
)

// Account is the account model
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`
	ID            int64         `bun:"id,pk,autoincrement" json:"id"`
	FirstName     string        `bun:"first_name,notnull" json:"first_name"`
	LastName      string        `bun:"last_name,notnull" json:"last_name"`
	Username      string        `bun:"username,notnull,unique" json:"username"`
	Email         string        `bun:"email,notnull,unique" json:"email"`
	OrgName       string        `bun:"org_name" json:"org_name"`
	Mobile        string        `bun:"mobile,nullzero,unique" json:"mobile,omitempty"`
	PasswordHash  string        `bun:"password_hash,notnull" json:"-"`
	Status        AccountStatus `bun:"status,notnull" json:"status"`
	CreatedAt     time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time     `bun:"updated_at,notnull" json:"updated_at"`
}

// EnsureStatus defaults an empty status to StatusCreated.
func (a *Account) EnsureStatus() {
	if a != nil && a.Status == "" {
		a.Status = StatusCreated
	}
}

// EmailVerified reports whether the account proved control of its email.
func (a *Account) EmailVerified() bool {
	if a == nil {
		return false
	}
	return a.Status == StatusEmailVerified || a.Status == StatusRegistered
}

// Registered reports whether the account is fully registered. Registered
// implies EmailVerified.
func (a *Account) Registered() bool {
	if a == nil {
		return false
	}
	return a.Status == StatusRegistered
}

// Verification holds the hashed verification token, or after verification
// the hashed registration key, for one account. It is overwritten on every
// issuance.
type Verification struct {
	bun.BaseModel `bun:"table:verifications,alias:ver"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	AccountID     int64     `bun:"account_id,notnull,unique" json:"account_id"`
	TokenHash     string    `bun:"token_hash,notnull" json:"-"`
	OTPHash       string    `bun:"otp_hash,nullzero" json:"-"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// PasswordReset is one password reset attempt window. Records are never
// deleted; the newest one per email is authoritative.
type PasswordReset struct {
	bun.BaseModel `bun:"table:password_resets,alias:pwdr"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	AccountID     int64     `bun:"account_id,notnull" json:"account_id"`
	Email         string    `bun:"email,notnull" json:"email"`
	TokenHash     string    `bun:"token_hash,notnull" json:"-"`
	Used          bool      `bun:"used,notnull" json:"used"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}

// ResetStatus is the side-effect free classification of a reset token.
// Flags are independent: a used token can also be expired and invalid.
type ResetStatus struct {
	Valid   bool `json:"valid"`
	Used    bool `json:"used"`
	Expired bool `json:"expired"`
	Invalid bool `json:"invalid"`
}

// Err maps the classification to the error a consume attempt fails with,
// checking used, then expired, then token match.
func (s ResetStatus) Err() error {
	switch {
	case s.Used:
		return ErrAlreadyConsumed
	case s.Expired:
		return ErrExpired
	case s.Invalid:
		return ErrInvalidResetToken
	}
	return nil
}
