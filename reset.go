package accounts

import (
	"time"
)

// ClassifyReset reports the status flags of token against reset at now.
// The window is a hard cutoff: a token is expired once more than window
// has elapsed since the record was created.
func ClassifyReset(reset *PasswordReset, token string, hasher SecretHasher, now time.Time, window time.Duration) ResetStatus {
	status := ResetStatus{
		Used:    reset.Used,
		Expired: now.Sub(reset.CreatedAt) > window,
		Invalid: !hasher.Verify(token, reset.TokenHash),
	}
	status.Valid = !status.Used && !status.Expired && !status.Invalid
	return status
}

func (d *Dependencies) classifyReset(reset *PasswordReset, token string) ResetStatus {
	return ClassifyReset(reset, token, d.Hasher, d.Clock(), d.ResetWindow)
}
