// Package auth checks the shared secret guarding the config and asset
// upload endpoints.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
)

const (
	generatedSecretLength = 10
	secretAlphabet        = "abcdefghijklmnopqrstuvwxyz"
)

// Gate compares passwords against a shared secret.
type Gate struct {
	secret    []byte
	generated bool
}

// NewGate returns a Gate for secret. An empty secret is replaced by a random
// one that is never disclosed, which locks every protected endpoint.
func NewGate(secret string) (*Gate, error) {
	if secret != "" {
		return &Gate{secret: []byte(secret)}, nil
	}

	random, err := randomSecret(generatedSecretLength)
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	return &Gate{secret: []byte(random), generated: true}, nil
}

// Generated reports whether the secret was generated at startup.
func (g *Gate) Generated() bool {
	return g.generated
}

// Allow reports whether password matches the secret. The comparison takes
// time independent of where the first mismatch is.
func (g *Gate) Allow(password string) bool {
	return subtle.ConstantTimeCompare([]byte(password), g.secret) == 1
}

func randomSecret(n int) (string, error) {
	out := make([]byte, n)
	limit := big.NewInt(int64(len(secretAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		out[i] = secretAlphabet[idx.Int64()]
	}
	return string(out), nil
}
