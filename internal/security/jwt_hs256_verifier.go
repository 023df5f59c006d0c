package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type HS256Verifier struct {
	secret []byte
	issuer string
}

// NewHS256Verifier builds a verifier pinned to one issuer. Tokens minted by
// any other party, even with the right secret, are rejected.
func NewHS256Verifier(secret, issuer string) *HS256Verifier {
	return &HS256Verifier{secret: []byte(secret), issuer: issuer}
}

type operatorTokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (v *HS256Verifier) VerifyOperatorToken(token string) (OperatorClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &operatorTokenClaims{}, func(t *jwt.Token) (any, error) {
		// prevent alg confusion
		if t.Method == nil || t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrTokenInvalid
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(v.issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return OperatorClaims{}, ErrTokenExpired
		}
		return OperatorClaims{}, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*operatorTokenClaims)
	if !ok || !parsed.Valid {
		return OperatorClaims{}, ErrTokenInvalid
	}
	if claims.Role != RoleOperator {
		return OperatorClaims{}, ErrTokenInvalid
	}

	exp := time.Time{}
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}

	return OperatorClaims{
		OperatorID: claims.Subject,
		Role:       claims.Role,
		Exp:        exp,
		Issuer:     claims.Issuer,
	}, nil
}
