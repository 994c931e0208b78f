// Package auth defines the identity boundary for the Ember control plane.
// User authentication itself is an external collaborator; the control plane
// only consumes verified identities through the Verifier interface, so the
// token scheme (JWT, session lookup, SSO) can change without touching any
// allocation logic.
package auth

import "errors"

// ErrInvalidToken indicates a missing, malformed, or unverifiable
// credential. Handlers surface it as a terse 401.
var ErrInvalidToken = errors.New("invalid credential")

// Identity is a verified caller.
type Identity struct {
	UserID string
}

// Verifier resolves a bearer credential to an identity. Implementations
// must treat verification as side-effect free and safe for concurrent use.
type Verifier interface {
	Verify(token string) (*Identity, error)
}

// StaticVerifier is a fixed token-to-user map. Suitable for development
// deployments and tests; production wires a real identity provider here.
type StaticVerifier struct {
	tokens map[string]string
}

// NewStaticVerifier builds a verifier over a fixed token -> user id map.
func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	return &StaticVerifier{tokens: tokens}
}

// Verify implements Verifier.
func (v *StaticVerifier) Verify(token string) (*Identity, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	userID, ok := v.tokens[token]
	if !ok {
		return nil, ErrInvalidToken
	}
	return &Identity{UserID: userID}, nil
}
