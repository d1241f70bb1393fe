package accounts

import (
	"golang.org/x/crypto/bcrypt"
)

// SecretHasher hashes passwords and one-time tokens. Digests are salted per
// call, so hashing the same secret twice yields different digests.
type SecretHasher interface {
	Hash(secret string) (string, error)
	Verify(secret, digest string) bool
}

// BcryptHasher is the default SecretHasher.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher returns a hasher with the given cost, falling back to the
// package default when cost is outside the range bcrypt accepts.
func NewBcryptHasher(cost int) BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = passwordHashCost()
	}
	return BcryptHasher{Cost: cost}
}

// Hash will generate a salted digest for secret
func (h BcryptHasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}

	cost := h.Cost
	if cost == 0 {
		cost = passwordHashCost()
	}

	d, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	return string(d), err
}

// Verify compares secret against digest in constant time. Malformed digests
// and empty inputs simply do not match.
func (h BcryptHasher) Verify(secret, digest string) bool {
	if secret == "" || digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}
