// Package security verifies operator access tokens. Operators are the people
// running the setup wizard and the pairing dashboard; end-user traffic on the
// ingestion endpoints is never authenticated this way.
package security

import (
	"errors"
	"time"
)

var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
)

const RoleOperator = "operator"

type OperatorClaims struct {
	OperatorID string
	Role       string
	Exp        time.Time
	Issuer     string
}

type OperatorVerifier interface {
	VerifyOperatorToken(token string) (OperatorClaims, error)
}
