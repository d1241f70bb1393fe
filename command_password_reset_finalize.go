package accounts

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
)

type FinalizePasswordResetMessage struct {
	Email       string `json:"email" form:"email"`
	Token       string `json:"token" form:"token"`
	NewPassword string `json:"new_password" form:"new_password"`
	OnResponse  func(resp *FinalizePasswordResetResponse) `json:"-" form:"-"`
}

func (e FinalizePasswordResetMessage) Type() string { return "account.password_reset.finalize" }

// Validate will run validation rules. minPassword of zero only requires a
// non-empty password.
func (e FinalizePasswordResetMessage) Validate(minPassword int) error {
	if err := validateWithOzzo(func() error {
		return validation.ValidateStruct(&e,
			validation.Field(&e.Email, validation.Required, is.Email),
			validation.Field(&e.Token, validation.Required),
			validation.Field(&e.NewPassword, validation.Required, validation.RuneLength(minPassword, MaxPasswordLength)),
		)
	}, "invalid password reset payload"); err != nil {
		return err
	}
	return nil
}

type FinalizePasswordResetResponse struct {
	AccountID int64 `json:"account_id"`
}

type FinalizePasswordResetHandler struct {
	deps *Dependencies
}

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
func NewFinalizePasswordResetHandler(deps Dependencies) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{deps: deps.normalize()}
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	d := h.deps

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	event.Email = normalizeEmail(event.Email)
	event.Token = strings.TrimSpace(event.Token)
	if err := event.Validate(d.MinPasswordLength); err != nil {
		return err
	}

	if err := d.Store.Ping(ctx); err != nil {
		return err
	}

	email := event.Email

	reset, err := d.Store.GetLatestReset(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return asRichError(err, "could not retrieve password reset request")
	}

	if err := d.classifyReset(reset, event.Token).Err(); err != nil {
		return err
	}

	passwordHash, err := d.Hasher.Hash(event.NewPassword)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
	}

	err = d.Store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		// a newer request supersedes the record we classified
		latest, err := tx.GetLatestReset(ctx, email)
		if err != nil {
			return err
		}
		if latest.ID != reset.ID {
			return ErrInvalidResetToken
		}

		if err := tx.MarkResetUsed(ctx, reset.ID); err != nil {
			return err
		}

		account, err := tx.GetAccountByID(ctx, reset.AccountID)
		if err != nil {
			return err
		}

		account.PasswordHash = passwordHash
		return tx.UpdateAccount(ctx, account, "password_hash")
	})
	if err != nil {
		return asRichError(err, "failed to finalize password reset")
	}

	recordActivity(ctx, d.Activity, d.Logger, d.Clock, ActivityEvent{
		EventType: ActivityEventPasswordResetSuccess,
		Actor:     accountActor(reset.AccountID),
		AccountID: reset.AccountID,
		Metadata: map[string]any{
			"password_reset_id": reset.ID.String(),
		},
	})

	if event.OnResponse != nil {
		event.OnResponse(&FinalizePasswordResetResponse{AccountID: reset.AccountID})
	}

	return nil
}
