// Package auth issues and validates the bearer tokens the Marketplace
// Service uses to attribute publish/adopt requests to an owner principal.
// Token validation here is for principal extraction only: HTTP request
// authentication is treated as an external collaborator, so this package
// never talks to an identity provider — it just decodes a claim signed
// with a locally-held secret.
package auth

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	jwtSecret []byte
	once      sync.Once
)

func initSecret() {
	once.Do(func() {
		jwtSecret = []byte(os.Getenv("JWT_SECRET"))
		if len(jwtSecret) == 0 {
			jwtSecret = []byte("insecure-development-secret")
		}
	})
}

// Claims carries the owner principal a Marketplace request is attributed
// to, matching Strategy.owner_principal.
type Claims struct {
	Principal string `json:"principal"`
	jwt.RegisteredClaims
}

// GenerateToken issues a short-lived token for principal. Used by tests and
// any out-of-band token issuer sitting in front of this service.
func GenerateToken(principal string) (string, error) {
	initSecret()
	claims := &Claims{
		Principal: principal,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "tradedaemon",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ValidateToken decodes tokenStr and returns its Claims.
func ValidateToken(tokenStr string) (*Claims, error) {
	initSecret()
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("auth: unexpected signing method")
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Principal == "" {
		return nil, errors.New("auth: invalid token")
	}
	return claims, nil
}
