package accounts

import (
	"context"

	"github.com/google/uuid"
)

// Store persists accounts, their verification records and password
// resets. Absent records surface as ErrNotFound, unique violations as
// ErrConflict.
type Store interface {
	Pinger

	// RunInTx runs fn in a transaction. The Store passed to fn is bound to
	// that transaction; fn returning an error rolls it back.
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error

	CreateAccount(ctx context.Context, account *Account) (*Account, error)
	// GetAccount resolves identifier as a numeric id, then email, then username.
	GetAccount(ctx context.Context, identifier string) (*Account, error)
	GetAccountByID(ctx context.Context, id int64) (*Account, error)
	// UpdateAccount writes the given columns, or every column when none
	// are given. updated_at is always written.
	UpdateAccount(ctx context.Context, account *Account, columns ...string) error
	DeleteAccount(ctx context.Context, id int64) error
	// FindDuplicate is a fast pre-check only, the unique constraints
	// remain the source of truth.
	FindDuplicate(ctx context.Context, email, mobile string) (bool, error)

	GetVerification(ctx context.Context, accountID int64) (*Verification, error)
	UpsertVerification(ctx context.Context, verification *Verification) error

	InsertReset(ctx context.Context, reset *PasswordReset) (*PasswordReset, error)
	GetLatestReset(ctx context.Context, email string) (*PasswordReset, error)
	// MarkResetUsed flips used from false to true. It returns
	// ErrAlreadyConsumed when no unused record matched.
	MarkResetUsed(ctx context.Context, id uuid.UUID) error
}

// AccountWriter is the slice of Store the state machine persists through.
type AccountWriter interface {
	UpdateAccount(ctx context.Context, account *Account, columns ...string) error
}
