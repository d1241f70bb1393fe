package accounts

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
)

// VerifyEmailMessage carries the parameters of the emailed verification link.
type VerifyEmailMessage struct {
	Email      string `json:"email" query:"email"`
	Token      string `json:"token" query:"token"`
	OnResponse func(resp *VerificationResponse) `json:"-" query:"-"`
}

func (e VerifyEmailMessage) Type() string { return "account.verify_email" }

// Validate will run validation rules
func (e VerifyEmailMessage) Validate() error {
	if err := validateWithOzzo(func() error {
		return validation.ValidateStruct(&e,
			validation.Field(&e.Email, validation.Required, is.Email),
			validation.Field(&e.Token, validation.Required),
		)
	}, "missing or malformed verification parameters"); err != nil {
		return err
	}
	return nil
}

type VerifyEmailHandler struct {
	deps *Dependencies
}

func NewVerifyEmailHandler(deps Dependencies) *VerifyEmailHandler {
	return &VerifyEmailHandler{deps: deps.normalize()}
}

func (h *VerifyEmailHandler) Execute(ctx context.Context, event VerifyEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during email verification")
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyEmailHandler) execute(ctx context.Context, event VerifyEmailMessage) error {
	d := h.deps

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	event.Email = normalizeEmail(event.Email)
	if err := event.Validate(); err != nil {
		return err
	}

	if err := d.Store.Ping(ctx); err != nil {
		return err
	}

	account, err := d.Store.GetAccount(ctx, event.Email)
	if err != nil {
		if isNotFound(err) {
			return ErrInvalidVerification
		}
		return asRichError(err, "failed to retrieve account for verification")
	}

	if account.EmailVerified() {
		resp := d.finishVerification(ctx, account, "", true)
		if event.OnResponse != nil {
			event.OnResponse(resp)
		}
		return nil
	}

	verification, err := d.Store.GetVerification(ctx, account.ID)
	if err != nil {
		if isNotFound(err) {
			return ErrInvalidVerification
		}
		return asRichError(err, "failed to retrieve verification record")
	}

	if !d.Hasher.Verify(event.Token, verification.TokenHash) {
		return ErrInvalidVerification
	}

	key, keyHash, err := d.issueRegistrationKey()
	if err != nil {
		return err
	}

	alreadyVerified, err := d.completeVerification(ctx, account, keyHash, "email_link")
	if err != nil {
		return asRichError(err, "failed to complete email verification")
	}

	resp := d.finishVerification(ctx, account, key, alreadyVerified)
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
