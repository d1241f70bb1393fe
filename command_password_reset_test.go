package accounts_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	accounts "github.com/versehub/go-accounts"
)

// verifiedAccount registers and verifies ruth@example.com.
func verifiedAccount(t *testing.T) (*fixture, int64) {
	t.Helper()
	f := newFixture()
	id := f.register(t, registerMessage("ruth@example.com"))
	f.verify(t, "ruth@example.com")
	return f, id
}

func requestReset(t *testing.T, f *fixture, email string) string {
	t.Helper()
	require.NoError(t, accounts.NewInitializePasswordResetHandler(f.deps).Execute(context.Background(),
		accounts.InitializePasswordResetMessage{Email: email}))
	return f.outbox.last(t, accounts.MessagePasswordReset, email).Token
}

func checkReset(t *testing.T, f *fixture, email, token string) accounts.ResetStatus {
	t.Helper()
	var status accounts.ResetStatus
	require.NoError(t, accounts.NewCheckPasswordResetHandler(f.deps).Execute(context.Background(),
		accounts.CheckPasswordResetMessage{
			Email:      email,
			Token:      token,
			OnResponse: func(s accounts.ResetStatus) { status = s },
		}))
	return status
}

func finalizeReset(f *fixture, email, token, password string) error {
	return accounts.NewFinalizePasswordResetHandler(f.deps).Execute(context.Background(),
		accounts.FinalizePasswordResetMessage{Email: email, Token: token, NewPassword: password})
}

func TestPasswordReset_FullFlow(t *testing.T) {
	f, id := verifiedAccount(t)

	token := requestReset(t, f, "ruth@example.com")
	sent := f.outbox.last(t, accounts.MessagePasswordReset, "ruth@example.com")
	assert.Len(t, token, accounts.ResetTokenLength)
	assert.Contains(t, sent.Link, "https://versehub.test/reset-password?")
	assert.Equal(t, id, sent.AccountID)

	assert.Equal(t, accounts.ResetStatus{Valid: true}, checkReset(t, f, "ruth@example.com", token))
	require.NoError(t, finalizeReset(f, "ruth@example.com", token, "threshing-floor"))

	_, err := login(f, "ruth@example.com", "gleaning-barley")
	assert.ErrorIs(t, err, accounts.ErrInvalidCredentials)
	got, err := login(f, "ruth@example.com", "threshing-floor")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	status := checkReset(t, f, "ruth@example.com", token)
	assert.True(t, status.Used)
	assert.False(t, status.Valid)

	err = finalizeReset(f, "ruth@example.com", token, "another-password")
	assert.ErrorIs(t, err, accounts.ErrAlreadyConsumed)

	assert.Len(t, f.activity.ofType(accounts.ActivityEventPasswordResetRequested), 1)
	assert.Len(t, f.activity.ofType(accounts.ActivityEventPasswordResetSuccess), 1)
}

func TestPasswordReset_Window(t *testing.T) {
	t.Run("inside window", func(t *testing.T) {
		f, _ := verifiedAccount(t)
		token := requestReset(t, f, "ruth@example.com")

		f.clock.Advance(299 * time.Second)
		assert.NoError(t, finalizeReset(f, "ruth@example.com", token, "threshing-floor"))
	})

	t.Run("past window", func(t *testing.T) {
		f, _ := verifiedAccount(t)
		token := requestReset(t, f, "ruth@example.com")

		f.clock.Advance(301 * time.Second)
		status := checkReset(t, f, "ruth@example.com", token)
		assert.True(t, status.Expired)
		assert.False(t, status.Valid)

		err := finalizeReset(f, "ruth@example.com", token, "threshing-floor")
		assert.ErrorIs(t, err, accounts.ErrExpired)
		assert.Equal(t, accounts.TextCodeTokenExpired, textCode(t, err))

		_, err = login(f, "ruth@example.com", "gleaning-barley")
		assert.NoError(t, err, "password unchanged")
	})

	t.Run("configured window", func(t *testing.T) {
		f, _ := verifiedAccount(t)
		f.deps.ResetWindow = time.Hour
		token := requestReset(t, f, "ruth@example.com")

		f.clock.Advance(30 * time.Minute)
		assert.NoError(t, finalizeReset(f, "ruth@example.com", token, "threshing-floor"))
	})
}

func TestPasswordReset_WrongToken(t *testing.T) {
	f, _ := verifiedAccount(t)
	requestReset(t, f, "ruth@example.com")

	status := checkReset(t, f, "ruth@example.com", "not-the-token")
	assert.Equal(t, accounts.ResetStatus{Invalid: true}, status)

	err := finalizeReset(f, "ruth@example.com", "not-the-token", "threshing-floor")
	assert.ErrorIs(t, err, accounts.ErrInvalidResetToken)
}

func TestPasswordReset_NewerRequestSupersedes(t *testing.T) {
	f, _ := verifiedAccount(t)
	first := requestReset(t, f, "ruth@example.com")
	f.clock.Advance(time.Second)
	second := requestReset(t, f, "ruth@example.com")

	assert.True(t, checkReset(t, f, "ruth@example.com", first).Invalid)
	assert.ErrorIs(t, finalizeReset(f, "ruth@example.com", first, "threshing-floor"), accounts.ErrInvalidResetToken)
	assert.NoError(t, finalizeReset(f, "ruth@example.com", second, "threshing-floor"))
}

func TestPasswordReset_UnknownEmail(t *testing.T) {
	f := newFixture()

	err := accounts.NewInitializePasswordResetHandler(f.deps).Execute(context.Background(),
		accounts.InitializePasswordResetMessage{Email: "naomi@example.com"})
	assert.ErrorIs(t, err, accounts.ErrNotFound)

	err = accounts.NewCheckPasswordResetHandler(f.deps).Execute(context.Background(),
		accounts.CheckPasswordResetMessage{Email: "naomi@example.com", Token: "x"})
	assert.ErrorIs(t, err, accounts.ErrNotFound)

	assert.ErrorIs(t, finalizeReset(f, "naomi@example.com", "x", "threshing-floor"), accounts.ErrNotFound)
	assert.Zero(t, f.outbox.countKind(accounts.MessagePasswordReset))
}

func TestPasswordReset_PasswordPolicy(t *testing.T) {
	f, _ := verifiedAccount(t)
	token := requestReset(t, f, "ruth@example.com")

	err := finalizeReset(f, "ruth@example.com", token, "")
	require.Error(t, err)
	assert.True(t, isValidation(t, err))
	assert.True(t, checkReset(t, f, "ruth@example.com", token).Valid, "a rejected attempt does not consume the token")

	f.deps.MinPasswordLength = 8
	err = finalizeReset(f, "ruth@example.com", token, "pw123")
	require.Error(t, err)
	assert.Equal(t, accounts.TextCodeValidation, textCode(t, err))
	assert.True(t, checkReset(t, f, "ruth@example.com", token).Valid)

	f.deps.MinPasswordLength = 0
	require.NoError(t, finalizeReset(f, " RUTH@example.com ", token+" ", "pw123"))
	_, err = login(f, "ruth@example.com", "pw123")
	require.NoError(t, err)
}

func TestPasswordReset_ResponseHidesToken(t *testing.T) {
	f, id := verifiedAccount(t)

	var resp *accounts.InitializePasswordResetResponse
	require.NoError(t, accounts.NewInitializePasswordResetHandler(f.deps).Execute(context.Background(),
		accounts.InitializePasswordResetMessage{
			Email:      "ruth@example.com",
			OnResponse: func(r *accounts.InitializePasswordResetResponse) { resp = r },
		}))
	require.NotNil(t, resp)
	assert.True(t, resp.Success)
	assert.Equal(t, id, resp.AccountID)
}

func TestPasswordReset_ParallelFinalizeOnSQLite(t *testing.T) {
	f := newFixture()
	f.deps.Store = newSQLiteStore(t, accounts.WithStoreClock(f.clock.Now))
	f.register(t, registerMessage("ruth@example.com"))
	f.verify(t, "ruth@example.com")
	token := requestReset(t, f, "ruth@example.com")

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = finalizeReset(f, "ruth@example.com", token, fmt.Sprintf("threshing-floor-%d", i))
		}(i)
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			require.Equal(t, -1, winner, "more than one finalize succeeded")
			winner = i
			continue
		}
		assert.True(t,
			errors.Is(err, accounts.ErrAlreadyConsumed) || errors.Is(err, accounts.ErrInvalidResetToken),
			"unexpected error: %v", err)
	}
	require.NotEqual(t, -1, winner, "no finalize succeeded")

	_, err := login(f, "ruth@example.com", fmt.Sprintf("threshing-floor-%d", winner))
	require.NoError(t, err)
	assert.Len(t, f.activity.ofType(accounts.ActivityEventPasswordResetSuccess), 1)
}
