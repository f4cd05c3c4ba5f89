// ABOUTME: JWT device tokens for authenticating pushes to the remote
// ABOUTME: Uses HS256 signing with a secret shared between device and remote

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// DefaultTokenTTL is how long a minted device token is valid.
const DefaultTokenTTL = 5 * time.Minute

// TokenVerifier defines the interface for token verification
type TokenVerifier interface {
	Verify(tokenString string) (deviceID string, err error)
}

// DeviceTokens signs and verifies HS256 device tokens. The "sub" claim
// carries the device ID.
type DeviceTokens struct {
	secret []byte
	now    func() time.Time
}

// NewDeviceTokens creates a token helper with the given secret
func NewDeviceTokens(secret []byte) *DeviceTokens {
	return &DeviceTokens{secret: secret, now: time.Now}
}

// Generate creates a new JWT for the device with expiration
func (d *DeviceTokens) Generate(deviceID string, expiresIn time.Duration) (string, error) {
	if deviceID == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	now := d.now()
	claims := jwt.MapClaims{
		"sub": deviceID,
		"iat": now.Unix(),
		"exp": now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(d.secret)
}

// Verify validates the token and extracts the device ID from the "sub" claim
func (d *DeviceTokens) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return d.secret, nil
	}, jwt.WithTimeFunc(d.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	return sub, nil
}
