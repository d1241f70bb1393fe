package accounts

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeNotFound            = "NOT_FOUND"
	TextCodeConflict            = "ACCOUNT_CONFLICT"
	TextCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	TextCodeInvalidVerification = "INVALID_VERIFICATION"
	TextCodeInvalidResetToken   = "INVALID_RESET_TOKEN"
	TextCodeEmailNotVerified    = "EMAIL_NOT_VERIFIED"
	TextCodeTokenExpired        = "TOKEN_EXPIRED"
	TextCodeTokenAlreadyUsed    = "TOKEN_ALREADY_USED"
	TextCodeStoreUnavailable    = "STORE_UNAVAILABLE"
	TextCodeNotificationFailed  = "NOTIFICATION_FAILED"
	TextCodeInvalidTransition   = "INVALID_ACCOUNT_STATE_TRANSITION"
	TextCodeEmptySecret         = "EMPTY_SECRET"
	TextCodeInvalidPhone        = "INVALID_PHONE_NUMBER"
	TextCodeAdminKeyRequired    = "ADMIN_KEY_REQUIRED"
	TextCodeValidation          = "VALIDATION_FAILED"
)

// ErrNotFound is returned when an account or one of its records is absent.
var ErrNotFound = goerrors.New("record not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrConflict is returned when email, username or mobile is already taken.
var ErrConflict = goerrors.New("an account with this email, username or mobile already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeConflict).
	WithCode(goerrors.CodeConflict)

// ErrInvalidCredentials covers both unknown identifiers and wrong passwords.
var ErrInvalidCredentials = goerrors.New("invalid username or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidVerification covers unknown emails and mismatched verification tokens.
var ErrInvalidVerification = goerrors.New("invalid or unknown verification link", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidVerification).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidResetToken is returned when a reset token does not match the latest request.
var ErrInvalidResetToken = goerrors.New("invalid password reset token", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidResetToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrEmailNotVerified gates login for accounts that never proved their email.
var ErrEmailNotVerified = goerrors.New("email address not verified, please check your email for the verification link", goerrors.CategoryAuthz).
	WithTextCode(TextCodeEmailNotVerified).
	WithCode(goerrors.CodeUnauthorized)

// ErrExpired is returned when a reset token is used after its window closed.
var ErrExpired = goerrors.New("password reset token has expired", goerrors.CategoryValidation).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrAlreadyConsumed is returned when a single-use token is presented again.
var ErrAlreadyConsumed = goerrors.New("password reset token has already been used", goerrors.CategoryConflict).
	WithTextCode(TextCodeTokenAlreadyUsed).
	WithCode(goerrors.CodeNotFound)

// ErrStoreUnavailable is returned when the account store cannot be reached.
var ErrStoreUnavailable = goerrors.New("account store not found", goerrors.CategoryInternal).
	WithTextCode(TextCodeStoreUnavailable).
	WithCode(goerrors.CodeNotFound)

// ErrNotificationFailure marks a failed delivery. It is logged, never returned to callers.
var ErrNotificationFailure = goerrors.New("notification delivery failed", goerrors.CategoryOperation).
	WithTextCode(TextCodeNotificationFailed).
	WithCode(goerrors.CodeInternal)

// ErrEmptySecret is returned when hashing an empty password or token.
var ErrEmptySecret = goerrors.New("secret must not be empty", goerrors.CategoryBadInput).
	WithTextCode(TextCodeEmptySecret).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidPhone is returned when a mobile number cannot be parsed.
var ErrInvalidPhone = goerrors.New("invalid mobile number", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidPhone).
	WithCode(goerrors.CodeBadRequest)

// ErrAdminKeyRequired guards administrative routes.
var ErrAdminKeyRequired = goerrors.New("admin key required", goerrors.CategoryAuth).
	WithTextCode(TextCodeAdminKeyRequired).
	WithCode(goerrors.CodeUnauthorized)

// IsUniqueViolation reports whether err comes from a UNIQUE constraint in
// SQLite or Postgres.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

// IsNoSuchTable reports whether err signals a schema that was never
// migrated, which we treat as an unreachable store.
func IsNoSuchTable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "SQLSTATE 42P01")
}

// validateWithOzzo runs ozzo rules and tags failures as bad requests
// carrying the field map.
func validateWithOzzo(rules func() error, message string) error {
	richErr := goerrors.ValidateWithOzzo(rules, message)
	if richErr == nil {
		return nil
	}
	return richErr.WithTextCode(TextCodeValidation).WithCode(goerrors.CodeBadRequest)
}

// asRichError returns err as a go-errors value, wrapping unknown errors as
// internal failures.
func asRichError(err error, message string) *goerrors.Error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithCode(goerrors.CodeInternal)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || goerrors.IsNotFound(err)
}
