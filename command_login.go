package accounts

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

// LoginMessage payload
type LoginMessage struct {
	Identifier string `json:"identifier" form:"identifier"`
	Password   string `json:"password" form:"password"`
	OnResponse func(resp *LoginResponse) `json:"-" form:"-"`
}

func (e LoginMessage) Type() string { return "account.login" }

// Validate will run validation rules
func (e LoginMessage) Validate() error {
	if err := validateWithOzzo(func() error {
		return validation.ValidateStruct(&e,
			validation.Field(&e.Identifier, validation.Required, validation.Length(1, 254)),
			validation.Field(&e.Password, validation.Required),
		)
	}, "invalid login request payload"); err != nil {
		return err
	}
	return nil
}

// LoginResponse is a bare success signal, no session is minted.
type LoginResponse struct {
	AccountID int64 `json:"account_id"`
}

type LoginHandler struct {
	deps *Dependencies
}

func NewLoginHandler(deps Dependencies) *LoginHandler {
	return &LoginHandler{deps: deps.normalize()}
}

func (h *LoginHandler) Execute(ctx context.Context, event LoginMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during login")
	default:
		return h.execute(ctx, event)
	}
}

// execute gates in order: account exists, email verified, password
// matches. Unknown accounts and wrong passwords share ErrInvalidCredentials.
func (h *LoginHandler) execute(ctx context.Context, event LoginMessage) error {
	d := h.deps

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	event.Identifier = strings.TrimSpace(event.Identifier)
	if err := event.Validate(); err != nil {
		return err
	}

	if err := d.Store.Ping(ctx); err != nil {
		return err
	}

	account, err := d.Store.GetAccount(ctx, event.Identifier)
	if err != nil {
		if isNotFound(err) {
			h.recordFailure(ctx, 0, "not_found")
			return ErrInvalidCredentials
		}
		return asRichError(err, "failed to retrieve account for login")
	}

	if !account.EmailVerified() {
		h.recordFailure(ctx, account.ID, "email_not_verified")
		return ErrEmailNotVerified
	}

	if !d.Hasher.Verify(event.Password, account.PasswordHash) {
		h.recordFailure(ctx, account.ID, "invalid_password")
		return ErrInvalidCredentials
	}

	recordActivity(ctx, d.Activity, d.Logger, d.Clock, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     accountActor(account.ID),
		AccountID: account.ID,
	})

	if event.OnResponse != nil {
		event.OnResponse(&LoginResponse{AccountID: account.ID})
	}

	return nil
}

func (h *LoginHandler) recordFailure(ctx context.Context, accountID int64, reason string) {
	event := ActivityEvent{
		EventType: ActivityEventLoginFailure,
		AccountID: accountID,
		Metadata:  map[string]any{"reason": reason},
	}
	if accountID != 0 {
		event.Actor = accountActor(accountID)
	}
	recordActivity(ctx, h.deps.Activity, h.deps.Logger, h.deps.Clock, event)
}
