package accounts

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// VerificationResponse is shared by both verification flows.
type VerificationResponse struct {
	AccountID       int64         `json:"account_id"`
	Status          AccountStatus `json:"status"`
	AlreadyVerified bool          `json:"already_verified"`
}

// issueRegistrationKey generates the key handed out once the email is
// verified and returns it with its digest.
func (d *Dependencies) issueRegistrationKey() (string, string, error) {
	key, err := d.Tokens.Generate(VerificationTokenLength)
	if err != nil {
		return "", "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate registration key")
	}

	keyHash, err := d.Hasher.Hash(key)
	if err != nil {
		return "", "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash registration key")
	}

	return key, keyHash, nil
}

// completeVerification is the single path from created to registered. It
// re-reads the account inside the transaction so concurrent verifications
// flip the status once; the loser reports alreadyVerified.
func (d *Dependencies) completeVerification(ctx context.Context, account *Account, keyHash, via string) (alreadyVerified bool, err error) {
	err = d.Store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		fresh, err := tx.GetAccountByID(ctx, account.ID)
		if err != nil {
			return err
		}

		if fresh.EmailVerified() {
			alreadyVerified = true
			*account = *fresh
			return nil
		}

		if _, err := d.StateMachine.Transition(
			ctx,
			tx,
			accountActor(fresh.ID),
			fresh,
			StatusRegistered,
			WithTransitionReason("email ownership verified"),
			WithTransitionMetadata(map[string]any{"via": via}),
		); err != nil {
			return err
		}

		// the key replaces the verification token, the OTP is spent
		if err := tx.UpsertVerification(ctx, &Verification{
			AccountID: fresh.ID,
			TokenHash: keyHash,
		}); err != nil {
			return err
		}

		*account = *fresh
		return nil
	})

	return alreadyVerified, err
}

// finishVerification delivers the registration key after a successful
// verification and builds the response.
func (d *Dependencies) finishVerification(ctx context.Context, account *Account, key string, alreadyVerified bool) *VerificationResponse {
	resp := &VerificationResponse{
		AccountID:       account.ID,
		Status:          account.Status,
		AlreadyVerified: alreadyVerified,
	}

	if alreadyVerified {
		d.Logger.Debug("account %d already verified", account.ID)
		return resp
	}

	d.Logger.Info("account %d verified", account.ID)
	msg, composeErr := d.Composer.RegistrationKey(account, key)
	d.deliver(ctx, msg, composeErr)

	return resp
}
