package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenIssuer     = "skillsync"
	DefaultTokenTTL = 24 * time.Hour
)

var ErrInvalidToken = errors.New("invalid token")

// Claims identify the caller; the subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
}

type Issuer struct {
	secret []byte
	now    func() time.Time
}

func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret), now: time.Now}
}

func (i *Issuer) Issue(userID string, ttl time.Duration) (string, error) {
	parsed, err := uuid.Parse(userID)
	if err != nil {
		return "", fmt.Errorf("user id must be a uuid: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   parsed.String(),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify returns the user id carried by a valid caller token.
func (v *Verifier) Verify(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}

	// Party checks compare ids as strings, so only the canonical form leaves here.
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return "", fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}
	return userID.String(), nil
}
