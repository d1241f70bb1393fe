package accounts

import (
	"time"
)

const (
	// DefaultResetWindow is how long a password reset token stays usable.
	DefaultResetWindow = 300 * time.Second
	// DefaultNotifyTimeout bounds a single notification delivery.
	DefaultNotifyTimeout = 10 * time.Second

	commandTimeout = 10 * time.Second
)

// Dependencies are the collaborators shared by every command handler.
type Dependencies struct {
	Store        Store
	Hasher       SecretHasher
	Tokens       TokenGenerator
	Notifier     Notifier
	Composer     MessageComposer
	StateMachine *AccountStateMachine
	Activity     ActivitySink
	Logger       Logger
	Clock        Clock

	ResetWindow   time.Duration
	NotifyTimeout time.Duration
	// RequireOTP makes the OTP mandatory on the registration key flow.
	RequireOTP  bool
	PhoneRegion string
	// MinPasswordLength is enforced on registration and reset. Zero
	// accepts any non-empty password.
	MinPasswordLength int
}

// normalize fills unset collaborators with defaults. Store is required.
func (d Dependencies) normalize() *Dependencies {
	if d.Store == nil {
		panic("accounts: Dependencies.Store is required")
	}
	if d.Hasher == nil {
		d.Hasher = NewBcryptHasher(0)
	}
	if d.Tokens == nil {
		d.Tokens = RandomTokens{}
	}
	if d.Notifier == nil {
		d.Notifier = noopNotifier{}
	}
	if d.Logger == nil {
		d.Logger = defLogger{}
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	d.Activity = normalizeActivitySink(d.Activity)
	if d.StateMachine == nil {
		d.StateMachine = NewAccountStateMachine(
			WithStateMachineClock(d.Clock),
			WithStateMachineActivitySink(d.Activity),
			WithStateMachineLogger(d.Logger),
		)
	}
	if d.ResetWindow <= 0 {
		d.ResetWindow = DefaultResetWindow
	}
	if d.NotifyTimeout <= 0 {
		d.NotifyTimeout = DefaultNotifyTimeout
	}
	if d.PhoneRegion == "" {
		d.PhoneRegion = DefaultPhoneRegion
	}
	return &d
}
