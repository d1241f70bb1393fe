package accounts_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	accounts "github.com/versehub/go-accounts"
)

func TestVerifyEmail_RegistersAccount(t *testing.T) {
	f := newFixture()
	id := f.register(t, registerMessage("ruth@example.com"))
	sent := f.outbox.last(t, accounts.MessageVerification, "ruth@example.com")

	var resp *accounts.VerificationResponse
	err := accounts.NewVerifyEmailHandler(f.deps).Execute(context.Background(), accounts.VerifyEmailMessage{
		Email:      "RUTH@example.com",
		Token:      sent.Token,
		OnResponse: func(r *accounts.VerificationResponse) { resp = r },
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, id, resp.AccountID)
	assert.Equal(t, accounts.StatusRegistered, resp.Status)
	assert.False(t, resp.AlreadyVerified)

	account, _ := f.store.account(id)
	assert.True(t, account.EmailVerified())
	assert.True(t, account.Registered())

	key := f.outbox.last(t, accounts.MessageRegistrationKey, "ruth@example.com")
	assert.Len(t, key.Token, accounts.VerificationTokenLength)
	assert.NotEqual(t, sent.Token, key.Token)

	changed := f.activity.ofType(accounts.ActivityEventAccountStatusChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, accounts.StatusCreated, changed[0].FromStatus)
	assert.Equal(t, accounts.StatusRegistered, changed[0].ToStatus)
}

func TestVerifyEmail_Idempotent(t *testing.T) {
	f := newFixture()
	f.register(t, registerMessage("ruth@example.com"))
	f.verify(t, "ruth@example.com")

	var resp *accounts.VerificationResponse
	err := accounts.NewVerifyEmailHandler(f.deps).Execute(context.Background(), accounts.VerifyEmailMessage{
		Email:      "ruth@example.com",
		Token:      "anything-at-all",
		OnResponse: func(r *accounts.VerificationResponse) { resp = r },
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.AlreadyVerified)

	assert.Len(t, f.activity.ofType(accounts.ActivityEventAccountStatusChanged), 1)
	assert.Equal(t, 1, f.outbox.countKind(accounts.MessageRegistrationKey))
}

func TestVerifyEmail_Rejects(t *testing.T) {
	f := newFixture()
	id := f.register(t, registerMessage("ruth@example.com"))
	h := accounts.NewVerifyEmailHandler(f.deps)

	err := h.Execute(context.Background(), accounts.VerifyEmailMessage{Email: "ruth@example.com", Token: "wrong"})
	assert.ErrorIs(t, err, accounts.ErrInvalidVerification)

	err = h.Execute(context.Background(), accounts.VerifyEmailMessage{Email: "naomi@example.com", Token: "wrong"})
	assert.ErrorIs(t, err, accounts.ErrInvalidVerification)

	err = h.Execute(context.Background(), accounts.VerifyEmailMessage{Email: "ruth@example.com"})
	require.Error(t, err)
	assert.True(t, isValidation(t, err))

	account, _ := f.store.account(id)
	assert.Equal(t, accounts.StatusCreated, account.Status)
}

func TestVerifyEmail_ConcurrentFlipsOnce(t *testing.T) {
	f := newFixture()
	id := f.register(t, registerMessage("ruth@example.com"))
	sent := f.outbox.last(t, accounts.MessageVerification, "ruth@example.com")
	h := accounts.NewVerifyEmailHandler(f.deps)

	const n = 5
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		already int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := h.Execute(context.Background(), accounts.VerifyEmailMessage{
				Email: "ruth@example.com",
				Token: sent.Token,
				OnResponse: func(r *accounts.VerificationResponse) {
					mu.Lock()
					defer mu.Unlock()
					if r.AlreadyVerified {
						already++
					}
				},
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, n-1, already)
	assert.Len(t, f.activity.ofType(accounts.ActivityEventAccountStatusChanged), 1)
	assert.Equal(t, 1, f.outbox.countKind(accounts.MessageRegistrationKey))

	account, _ := f.store.account(id)
	assert.Equal(t, accounts.StatusRegistered, account.Status)
}

func TestVerifyRegistrationKey(t *testing.T) {
	t.Run("key and code", func(t *testing.T) {
		f := newFixture()
		id := f.register(t, registerMessage("ruth@example.com"))
		sent := f.outbox.last(t, accounts.MessageVerification, "ruth@example.com")

		var resp *accounts.VerificationResponse
		err := accounts.NewVerifyRegistrationKeyHandler(f.deps).Execute(context.Background(), accounts.VerifyRegistrationKeyMessage{
			Email:           "ruth@example.com",
			RegistrationKey: sent.Token,
			OTP:             sent.OTP,
			OnResponse:      func(r *accounts.VerificationResponse) { resp = r },
		})
		require.NoError(t, err)
		assert.Equal(t, id, resp.AccountID)
		assert.Equal(t, accounts.StatusRegistered, resp.Status)

		changed := f.activity.ofType(accounts.ActivityEventAccountStatusChanged)
		require.Len(t, changed, 1)
		assert.Equal(t, "registration_key", changed[0].Metadata["via"])
	})

	t.Run("key alone when the code is optional", func(t *testing.T) {
		f := newFixture()
		f.register(t, registerMessage("ruth@example.com"))
		sent := f.outbox.last(t, accounts.MessageVerification, "ruth@example.com")

		err := accounts.NewVerifyRegistrationKeyHandler(f.deps).Execute(context.Background(), accounts.VerifyRegistrationKeyMessage{
			Email:           "ruth@example.com",
			RegistrationKey: sent.Token,
		})
		assert.NoError(t, err)
	})

	t.Run("wrong code", func(t *testing.T) {
		f := newFixture()
		id := f.register(t, registerMessage("ruth@example.com"))
		sent := f.outbox.last(t, accounts.MessageVerification, "ruth@example.com")

		wrong := "000000"
		if sent.OTP == wrong {
			wrong = "111111"
		}
		err := accounts.NewVerifyRegistrationKeyHandler(f.deps).Execute(context.Background(), accounts.VerifyRegistrationKeyMessage{
			Email:           "ruth@example.com",
			RegistrationKey: sent.Token,
			OTP:             wrong,
		})
		assert.ErrorIs(t, err, accounts.ErrInvalidVerification)

		account, _ := f.store.account(id)
		assert.Equal(t, accounts.StatusCreated, account.Status)
	})

	t.Run("wrong key", func(t *testing.T) {
		f := newFixture()
		f.register(t, registerMessage("ruth@example.com"))

		err := accounts.NewVerifyRegistrationKeyHandler(f.deps).Execute(context.Background(), accounts.VerifyRegistrationKeyMessage{
			Email:           "ruth@example.com",
			RegistrationKey: "not-the-key",
		})
		assert.ErrorIs(t, err, accounts.ErrInvalidVerification)
	})

	t.Run("code required", func(t *testing.T) {
		f := newFixture()
		f.deps.RequireOTP = true
		f.register(t, registerMessage("ruth@example.com"))
		sent := f.outbox.last(t, accounts.MessageVerification, "ruth@example.com")

		err := accounts.NewVerifyRegistrationKeyHandler(f.deps).Execute(context.Background(), accounts.VerifyRegistrationKeyMessage{
			Email:           "ruth@example.com",
			RegistrationKey: sent.Token,
		})
		require.Error(t, err)
		assert.True(t, isValidation(t, err))
	})

	t.Run("unknown email", func(t *testing.T) {
		f := newFixture()

		err := accounts.NewVerifyRegistrationKeyHandler(f.deps).Execute(context.Background(), accounts.VerifyRegistrationKeyMessage{
			Email:           "naomi@example.com",
			RegistrationKey: "whatever",
		})
		assert.ErrorIs(t, err, accounts.ErrNotFound)
	})
}
