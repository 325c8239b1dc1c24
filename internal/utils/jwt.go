package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MeetingTokenClaims are the claims carried by a meeting access token.
type MeetingTokenClaims struct {
	UID  string `json:"uid"`
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// ValidateMeetingToken validates an HS256 token and returns its claims.
func ValidateMeetingToken(tokenString string, secret []byte) (*MeetingTokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &MeetingTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims := token.Claims.(*MeetingTokenClaims)
	if claims.UID == "" {
		return nil, errors.New("token missing uid claim")
	}
	return claims, nil
}

// GenerateMeetingToken signs a token for uid, valid for 24 hours.
func GenerateMeetingToken(uid string, secret []byte) (string, error) {
	claims := jwt.MapClaims{
		"uid": uid,
		"exp": time.Now().Add(24 * time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// JWTAuthenticator verifies meeting tokens against a shared secret; tests
// substitute fakes.
type JWTAuthenticator struct {
	secret []byte
}

func NewJWTAuthenticator(secret []byte) *JWTAuthenticator {
	return &JWTAuthenticator{secret: secret}
}

// Verify returns the user ID carried by the token.
func (a *JWTAuthenticator) Verify(tokenString string) (string, error) {
	claims, err := ValidateMeetingToken(tokenString, a.secret)
	if err != nil {
		return "", err
	}
	return claims.UID, nil
}
