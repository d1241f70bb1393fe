package accounts

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
)

// VerifyRegistrationKeyMessage is the legacy verification flow: the key
// from the verification email plus, optionally, the numeric code.
type VerifyRegistrationKeyMessage struct {
	Email           string `json:"email" form:"email"`
	RegistrationKey string `json:"registration_key" form:"registration_key"`
	OTP             string `json:"otp" form:"otp"`
	OnResponse      func(resp *VerificationResponse) `json:"-" form:"-"`
}

func (e VerifyRegistrationKeyMessage) Type() string { return "account.verify_registration_key" }

// Validate will run validation rules. requireOTP makes the code mandatory.
func (e VerifyRegistrationKeyMessage) Validate(requireOTP bool) error {
	otpRules := []validation.Rule{is.Digit, validation.Length(OTPDigits, OTPDigits)}
	if requireOTP {
		otpRules = append([]validation.Rule{validation.Required}, otpRules...)
	}

	if err := validateWithOzzo(func() error {
		return validation.ValidateStruct(&e,
			validation.Field(&e.Email, validation.Required, is.Email),
			validation.Field(&e.RegistrationKey, validation.Required),
			validation.Field(&e.OTP, otpRules...),
		)
	}, "invalid verification request"); err != nil {
		return err
	}
	return nil
}

type VerifyRegistrationKeyHandler struct {
	deps *Dependencies
}

func NewVerifyRegistrationKeyHandler(deps Dependencies) *VerifyRegistrationKeyHandler {
	return &VerifyRegistrationKeyHandler{deps: deps.normalize()}
}

func (h *VerifyRegistrationKeyHandler) Execute(ctx context.Context, event VerifyRegistrationKeyMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during registration key verification")
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyRegistrationKeyHandler) execute(ctx context.Context, event VerifyRegistrationKeyMessage) error {
	d := h.deps

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	event.Email = normalizeEmail(event.Email)
	event.OTP = strings.TrimSpace(event.OTP)
	if err := event.Validate(d.RequireOTP); err != nil {
		return err
	}

	if err := d.Store.Ping(ctx); err != nil {
		return err
	}

	account, err := d.Store.GetAccount(ctx, event.Email)
	if err != nil {
		if isNotFound(err) {
			return ErrNotFound
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
			return ErrNotFound
		}
		return asRichError(err, "failed to retrieve verification record")
	}

	if !d.Hasher.Verify(event.RegistrationKey, verification.TokenHash) {
		return ErrInvalidVerification
	}

	if event.OTP != "" || d.RequireOTP {
		if !d.Hasher.Verify(event.OTP, verification.OTPHash) {
			return ErrInvalidVerification
		}
	}

	key, keyHash, err := d.issueRegistrationKey()
	if err != nil {
		return err
	}

	alreadyVerified, err := d.completeVerification(ctx, account, keyHash, "registration_key")
	if err != nil {
		return asRichError(err, "failed to complete registration key verification")
	}

	resp := d.finishVerification(ctx, account, key, alreadyVerified)
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
