package accounts

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
)

// CheckPasswordResetMessage probes a reset token without consuming it.
type CheckPasswordResetMessage struct {
	Email      string `json:"email" form:"email"`
	Token      string `json:"token" form:"token"`
	OnResponse func(status ResetStatus) `json:"-" form:"-"`
}

func (e CheckPasswordResetMessage) Type() string { return "account.password_reset.check" }

// Validate will run validation rules
func (e CheckPasswordResetMessage) Validate() error {
	if err := validateWithOzzo(func() error {
		return validation.ValidateStruct(&e,
			validation.Field(&e.Email, validation.Required, is.Email),
			validation.Field(&e.Token, validation.Required),
		)
	}, "invalid reset token check request"); err != nil {
		return err
	}
	return nil
}

type CheckPasswordResetHandler struct {
	deps *Dependencies
}

func NewCheckPasswordResetHandler(deps Dependencies) *CheckPasswordResetHandler {
	return &CheckPasswordResetHandler{deps: deps.normalize()}
}

func (h *CheckPasswordResetHandler) Execute(ctx context.Context, event CheckPasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during reset token check")
	default:
		return h.execute(ctx, event)
	}
}

func (h *CheckPasswordResetHandler) execute(ctx context.Context, event CheckPasswordResetMessage) error {
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

	reset, err := d.Store.GetLatestReset(ctx, event.Email)
	if err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return asRichError(err, "failed to retrieve password reset record")
	}

	status := d.classifyReset(reset, event.Token)
	if event.OnResponse != nil {
		event.OnResponse(status)
	}

	return nil
}
