// Package auth implements the connection authenticator as signed JWTs:
// the handshake credential is an HS256 token whose claims carry the
// stable user identity.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ametov/huddle/internal/domain"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the payload stored inside an issued token.
type Claims struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	jwt.RegisteredClaims
}

type JWT struct {
	secret []byte
	ttl    time.Duration
}

func New(secret string, ttl time.Duration) *JWT {
	return &JWT{secret: []byte(secret), ttl: ttl}
}

// IssueToken creates a signed credential for a user.
func (j *JWT) IssueToken(userID domain.UserID, displayName string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:      string(userID),
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "huddle",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// AuthenticateConnection validates the credential and returns the user
// identity it carries. Runs before the session lifecycle: a rejected
// credential means the connection is turned away at the door.
func (j *JWT) AuthenticateConnection(credential string) (domain.UserID, error) {
	token, err := jwt.ParseWithClaims(credential, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return j.secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return "", ErrInvalidToken
	}
	return domain.UserID(claims.UserID), nil
}
