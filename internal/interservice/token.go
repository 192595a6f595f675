package interservice

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ServiceClaims is the payload minted into the short-lived HS256 token the
// webhook client attaches to outbound subscription-update POSTs (spec §6:
// "JWT secret (for inter-service service tokens)"). This is distinct from
// the HMAC signature on the body (C7): the signature authenticates the
// payload, the service token authenticates the calling process.
type ServiceClaims struct {
	jwt.RegisteredClaims
	Service string `json:"service"`
}

// TokenIssuer mints and verifies inter-service bearer tokens.
type TokenIssuer struct {
	secret  []byte
	ttl     time.Duration
	issuer  string
	service string
}

// NewTokenIssuer builds an issuer for one calling service ("payment-service"
// or "subscription-service").
func NewTokenIssuer(secret string, ttl time.Duration, issuer, service string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, issuer: issuer, service: service}
}

// Mint produces a signed bearer token valid for ttl from now.
func (i *TokenIssuer) Mint(now time.Time) (string, error) {
	claims := ServiceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Service: i.service,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign service token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a bearer token minted by Mint (or by the
// peer service's issuer sharing the same secret).
func (i *TokenIssuer) Verify(tokenString string) (*ServiceClaims, error) {
	claims := &ServiceClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse service token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("service token is not valid")
	}
	return claims, nil
}
