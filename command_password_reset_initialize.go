package accounts

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
)

type InitializePasswordResetMessage struct {
	Email      string `json:"email" form:"email"`
	OnResponse func(resp *InitializePasswordResetResponse) `json:"-" form:"-"`
}

func (e InitializePasswordResetMessage) Type() string { return "account.password_reset.request" }

// Validate will run validation rules
func (e InitializePasswordResetMessage) Validate() error {
	if err := validateWithOzzo(func() error {
		return validation.ValidateStruct(&e,
			validation.Field(&e.Email, validation.Required, is.Email),
		)
	}, "invalid password reset request"); err != nil {
		return err
	}
	return nil
}

// InitializePasswordResetResponse never carries the token, it only goes
// out through the notifier.
type InitializePasswordResetResponse struct {
	AccountID int64 `json:"-"`
	Success   bool  `json:"success"`
}

type InitializePasswordResetHandler struct {
	deps *Dependencies
}

func NewInitializePasswordResetHandler(deps Dependencies) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{deps: deps.normalize()}
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
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

	email := event.Email

	account, err := d.Store.GetAccount(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return asRichError(err, "failed to retrieve account for password reset")
	}

	token, err := d.Tokens.Generate(ResetTokenLength)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate password reset token")
	}

	tokenHash, err := d.Hasher.Hash(token)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password reset token")
	}

	reset, err := d.Store.InsertReset(ctx, &PasswordReset{
		AccountID: account.ID,
		Email:     account.Email,
		TokenHash: tokenHash,
		CreatedAt: d.Clock(),
	})
	if err != nil {
		return asRichError(err, "failed to create password reset record")
	}

	recordActivity(ctx, d.Activity, d.Logger, d.Clock, ActivityEvent{
		EventType: ActivityEventPasswordResetRequested,
		Actor:     accountActor(account.ID),
		AccountID: account.ID,
		Metadata: map[string]any{
			"password_reset_id": reset.ID.String(),
		},
	})

	msg, composeErr := d.Composer.PasswordReset(account, token, d.ResetWindow)
	d.deliver(ctx, msg, composeErr)

	if event.OnResponse != nil {
		event.OnResponse(&InitializePasswordResetResponse{
			AccountID: account.ID,
			Success:   true,
		})
	}

	return nil
}
