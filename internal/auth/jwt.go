package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/KevinKickass/OpenLabManager/internal/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "openlabmanager"

// Claims identify a session. The subject is the user id and the JWT id
// names the session for revocation.
type Claims struct {
	UserID int64  `json:"uid"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates session tokens (HS256).
type TokenIssuer struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

func NewTokenIssuer(secretKey string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secretKey: []byte(secretKey), ttl: ttl, now: time.Now}
}

// Issue creates a new session token for user.
func (j *TokenIssuer) Issue(user *types.User) (string, *Claims, error) {
	now := j.now()
	claims := &Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, claims, nil
}

// Parse validates a session token. Expired tokens yield ErrSessionExpired,
// anything else invalid yields ErrSessionNotFound.
func (j *TokenIssuer) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(j.now))

	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, types.NewAuthError(types.ErrSessionExpired)
	}
	if err != nil {
		return nil, types.NewAuthError(types.ErrSessionNotFound)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, types.NewAuthError(types.ErrSessionNotFound)
	}
	return claims, nil
}
