package accounts

import (
	"context"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
)

// MaxPasswordLength bounds passwords on registration and reset.
const MaxPasswordLength = 128

type RegisterAccountMessage struct {
	FirstName  string `json:"first_name" form:"first_name"`
	LastName   string `json:"last_name" form:"last_name"`
	Username   string `json:"username" form:"username"`
	Email      string `json:"email" form:"email"`
	OrgName    string `json:"org_name" form:"org_name"`
	Mobile     string `json:"mobile" form:"mobile"`
	Password   string `json:"password" form:"password"`
	OnResponse func(resp *RegisterAccountResponse) `json:"-" form:"-"`
}

func (e RegisterAccountMessage) Type() string { return "account.register" }

// Normalize trims profile fields and lowercases the email.
func (e *RegisterAccountMessage) Normalize() {
	e.FirstName = strings.TrimSpace(e.FirstName)
	e.LastName = strings.TrimSpace(e.LastName)
	e.Username = strings.TrimSpace(e.Username)
	e.Email = normalizeEmail(e.Email)
	e.OrgName = strings.TrimSpace(e.OrgName)
	e.Mobile = strings.TrimSpace(e.Mobile)
}

// Validate will run validation rules. minPassword of zero only requires a
// non-empty password.
func (e RegisterAccountMessage) Validate(minPassword int) error {
	if err := validateWithOzzo(func() error {
		return validation.ValidateStruct(&e,
			validation.Field(&e.FirstName, validation.Length(0, 200)),
			validation.Field(&e.LastName, validation.Length(0, 200)),
			validation.Field(&e.Username, validation.Length(0, 100)),
			validation.Field(&e.Email, validation.Required, validation.Length(3, 254), is.Email),
			validation.Field(&e.OrgName, validation.Length(0, 200)),
			validation.Field(&e.Password, validation.Required, validation.RuneLength(minPassword, MaxPasswordLength)),
		)
	}, "invalid registration request"); err != nil {
		return err
	}
	return nil
}

type RegisterAccountResponse struct {
	AccountID int64         `json:"account_id"`
	Status    AccountStatus `json:"status"`
}

type RegisterAccountHandler struct {
	deps *Dependencies
}

func NewRegisterAccountHandler(deps Dependencies) *RegisterAccountHandler {
	return &RegisterAccountHandler{deps: deps.normalize()}
}

func (h *RegisterAccountHandler) Execute(ctx context.Context, event RegisterAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterAccountHandler) execute(ctx context.Context, event RegisterAccountMessage) error {
	d := h.deps

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	event.Normalize()
	if err := event.Validate(d.MinPasswordLength); err != nil {
		return err
	}

	mobile, err := NormalizeMobile(event.Mobile, d.PhoneRegion)
	if err != nil {
		return err
	}

	if err := d.Store.Ping(ctx); err != nil {
		return err
	}

	email := event.Email

	dup, err := d.Store.FindDuplicate(ctx, email, mobile)
	if err != nil {
		return asRichError(err, "failed to check for existing accounts")
	}
	if dup {
		return ErrConflict
	}

	passwordHash, err := d.Hasher.Hash(event.Password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	token, err := d.Tokens.Generate(VerificationTokenLength)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate verification token")
	}

	otp, err := d.Tokens.GenerateOTP(OTPDigits)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate verification code")
	}

	tokenHash, err := d.Hasher.Hash(token)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash verification token")
	}

	otpHash, err := d.Hasher.Hash(otp)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash verification code")
	}

	account := &Account{
		FirstName:    event.FirstName,
		LastName:     event.LastName,
		Username:     event.Username,
		Email:        email,
		OrgName:      event.OrgName,
		Mobile:       mobile,
		PasswordHash: passwordHash,
		Status:       StatusCreated,
	}

	err = d.Store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		if account.Username == "" {
			username, err := availableUsername(ctx, tx, email)
			if err != nil {
				return err
			}
			account.Username = username
		}

		created, err := tx.CreateAccount(ctx, account)
		if err != nil {
			return err
		}
		account = created

		return tx.UpsertVerification(ctx, &Verification{
			AccountID: account.ID,
			TokenHash: tokenHash,
			OTPHash:   otpHash,
		})
	})
	if err != nil {
		return asRichError(err, "account registration transaction failed")
	}

	d.Logger.Info("registered account %d", account.ID)
	recordActivity(ctx, d.Activity, d.Logger, d.Clock, ActivityEvent{
		EventType: ActivityEventAccountRegistered,
		Actor:     accountActor(account.ID),
		AccountID: account.ID,
		ToStatus:  account.Status,
	})

	msg, composeErr := d.Composer.Verification(account, token, otp)
	d.deliver(ctx, msg, composeErr)

	if event.OnResponse != nil {
		event.OnResponse(&RegisterAccountResponse{
			AccountID: account.ID,
			Status:    account.Status,
		})
	}

	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// maxUsernameAttempts bounds the numeric suffixes tried for a derived username.
const maxUsernameAttempts = 100

// availableUsername derives a username from the email local part, adding a
// numeric suffix when the bare name is taken: alice, alice2, alice3...
func availableUsername(ctx context.Context, tx Store, email string) (string, error) {
	base := email
	if i := strings.Index(email, "@"); i > 0 {
		base = email[:i]
	}

	for n := 1; n <= maxUsernameAttempts; n++ {
		candidate := base
		if n > 1 {
			candidate = base + strconv.Itoa(n)
		}

		_, err := tx.GetAccount(ctx, candidate)
		if isNotFound(err) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
	}

	return "", ErrConflict
}
