package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidAccessToken is returned when the cloud access token is not a JWT.
var ErrInvalidAccessToken = errors.New("config: access token is not a valid JWT")

// jwtParts is the number of dot-separated segments in a compact JWT.
const jwtParts = 3

// CloudUsername derives the cloud broker username from a vendor access token.
//
// The vendor broker authenticates through an AWS IoT custom authorizer: the
// token segments are converted from base64url to the standard alphabet and
// carried in the username as query parameters, with no password.
//
//	bot?jwt={header}.{claims}&x-amz-customauthorizer-name=''&x-amz-customauthorizer-signature={signature}
func CloudUsername(accessToken string) (string, error) {
	translated := strings.NewReplacer("_", "/", "-", "+").Replace(accessToken)
	parts := strings.Split(translated, ".")
	if len(parts) != jwtParts {
		return "", fmt.Errorf("%w: expected %d segments, got %d", ErrInvalidAccessToken, jwtParts, len(parts))
	}
	for i, part := range parts {
		if part == "" {
			return "", fmt.Errorf("%w: segment %d is empty", ErrInvalidAccessToken, i)
		}
		parts[i] = quote(part)
	}

	return fmt.Sprintf(
		"bot?jwt=%s.%s&x-amz-customauthorizer-name=''&x-amz-customauthorizer-signature=%s",
		parts[0], parts[1], parts[2],
	), nil
}

// TokenExpiry reports the expiry of an access token without verifying its
// signature. The bridge never holds the signing key; the broker verifies.
// A zero time is returned when the token carries no exp claim.
func TokenExpiry(accessToken string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrInvalidAccessToken, err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}

// CloudClientID builds the vendor client id for a brand and account:
// {brand}/USER/{userID}/bot/{uuid}. A fresh uuid is drawn on every call.
func CloudClientID(brand, userID string) string {
	return fmt.Sprintf("%s/USER/%s/bot/%s", brand, userID, uuid.NewString())
}

// CloudCredentials resolves the username and client id for the cloud session.
// Explicit values in the config win over derived ones.
func (c CloudConfig) CloudCredentials() (username, clientID string, err error) {
	username = c.Auth.Username
	if username == "" {
		username, err = CloudUsername(c.AccessToken)
		if err != nil {
			return "", "", err
		}
	}

	clientID = c.Broker.ClientID
	if clientID == "" {
		brand := ""
		if len(c.Brands) > 0 {
			brand = c.Brands[0]
		}
		clientID = CloudClientID(brand, c.UserID)
	}

	return username, clientID, nil
}

// quote percent-encodes s, leaving unreserved characters and '/' intact.
func quote(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if isUnreserved(ch) || ch == '/' {
			b.WriteByte(ch)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[ch>>4])
		b.WriteByte(hex[ch&0x0f])
	}
	return b.String()
}

func isUnreserved(ch byte) bool {
	switch {
	case 'a' <= ch && ch <= 'z', 'A' <= ch && ch <= 'Z', '0' <= ch && ch <= '9':
		return true
	case ch == '-', ch == '.', ch == '_', ch == '~':
		return true
	}
	return false
}
