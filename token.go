package accounts

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	// VerificationTokenLength is used for verification tokens and registration keys.
	VerificationTokenLength = 32
	// ResetTokenLength is used for password reset tokens.
	ResetTokenLength = 48
	// OTPDigits is the length of the numeric code sent with the verification email.
	OTPDigits = 6
)

const (
	alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	digits       = "0123456789"
)

// TokenGenerator produces unpredictable one-time values.
type TokenGenerator interface {
	Generate(length int) (string, error)
	GenerateOTP(length int) (string, error)
}

// RandomTokens draws tokens from crypto/rand.
type RandomTokens struct{}

// Generate returns an alphanumeric token of the requested length.
func (RandomTokens) Generate(length int) (string, error) {
	return randomString(alphanumeric, length)
}

// GenerateOTP returns a numeric code of the requested length.
func (RandomTokens) GenerateOTP(length int) (string, error) {
	return randomString(digits, length)
}

func randomString(alphabet string, length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("token length must be positive, got %d", length)
	}

	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, length)
	for i := range out {
		// rand.Int samples uniformly in [0, max), no modulo bias
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random source: %w", err)
		}
		out[i] = alphabet[n.Int64()]
	}

	return string(out), nil
}
