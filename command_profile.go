package accounts

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

// SecretMask replaces secret fields in profile output.
const SecretMask = "********"

// Profile is the non-secret view of an account.
type Profile struct {
	AccountID       int64         `json:"account_id"`
	FirstName       string        `json:"first_name"`
	LastName        string        `json:"last_name"`
	Username        string        `json:"username"`
	Email           string        `json:"email"`
	OrgName         string        `json:"org_name"`
	Mobile          string        `json:"mobile"`
	Status          AccountStatus `json:"status"`
	EmailVerified   bool          `json:"email_verified"`
	Registered      bool          `json:"registered"`
	Password        string        `json:"password"`
	RegistrationKey string        `json:"registration_key"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// NewProfile builds the masked profile of account.
func NewProfile(account *Account) Profile {
	return Profile{
		AccountID:       account.ID,
		FirstName:       account.FirstName,
		LastName:        account.LastName,
		Username:        account.Username,
		Email:           account.Email,
		OrgName:         account.OrgName,
		Mobile:          account.Mobile,
		Status:          account.Status,
		EmailVerified:   account.EmailVerified(),
		Registered:      account.Registered(),
		Password:        SecretMask,
		RegistrationKey: SecretMask,
		CreatedAt:       account.CreatedAt,
		UpdatedAt:       account.UpdatedAt,
	}
}

type GetProfileMessage struct {
	AccountID  int64 `json:"account_id" form:"account_id"`
	OnResponse func(profile Profile) `json:"-" form:"-"`
}

func (e GetProfileMessage) Type() string { return "account.profile" }

// Validate will run validation rules
func (e GetProfileMessage) Validate() error {
	if err := validateWithOzzo(func() error {
		return validation.ValidateStruct(&e,
			validation.Field(&e.AccountID, validation.Required, validation.Min(int64(1))),
		)
	}, "invalid profile request"); err != nil {
		return err
	}
	return nil
}

type GetProfileHandler struct {
	deps *Dependencies
}

func NewGetProfileHandler(deps Dependencies) *GetProfileHandler {
	return &GetProfileHandler{deps: deps.normalize()}
}

func (h *GetProfileHandler) Execute(ctx context.Context, event GetProfileMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during profile lookup")
	default:
		return h.execute(ctx, event)
	}
}

func (h *GetProfileHandler) execute(ctx context.Context, event GetProfileMessage) error {
	d := h.deps

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if err := event.Validate(); err != nil {
		return err
	}

	if err := d.Store.Ping(ctx); err != nil {
		return err
	}

	account, err := d.Store.GetAccountByID(ctx, event.AccountID)
	if err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return asRichError(err, "failed to retrieve account profile")
	}

	if event.OnResponse != nil {
		event.OnResponse(NewProfile(account))
	}

	return nil
}
