package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

var (
	ErrMalformedToken = errors.New("invalid token format")
	ErrBadSignature   = errors.New("signature mismatch")
	ErrTokenExpired   = errors.New("token expired")
)

// Claims is the payload carried by access and refresh tokens.
type Claims struct {
	Address string `json:"addr"`
	Version int    `json:"ver"`
	Kind    string `json:"typ"`
	jwt.StandardClaims
}

// SignHS256 creates a compact JWT string using HS256.
func SignHS256(claims Claims, secret []byte) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseAndVerifyHS256 verifies the signature and expiry at now and returns
// the claims. Only HS256 is accepted.
func ParseAndVerifyHS256(token string, secret []byte, now time.Time) (Claims, error) {
	parser := jwt.Parser{
		ValidMethods:         []string{jwt.SigningMethodHS256.Alg()},
		SkipClaimsValidation: true,
	}
	var claims Claims
	_, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorSignatureInvalid != 0 {
			return Claims{}, ErrBadSignature
		}
		return Claims{}, ErrMalformedToken
	}
	if claims.ExpiresAt != 0 && now.Unix() >= claims.ExpiresAt {
		return Claims{}, ErrTokenExpired
	}
	return claims, nil
}
