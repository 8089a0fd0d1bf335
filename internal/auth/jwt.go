package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/erazemk/zavod/internal/model"
)

// Claims represents the JWT claims.
type Claims struct {
	UserID      int64  `json:"user_id"`
	InstituteID int64  `json:"institute_id"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

// Actor returns the principal the token was issued to.
func (c *Claims) Actor() model.Actor {
	return model.Actor{
		UserID:      c.UserID,
		InstituteID: c.InstituteID,
		Username:    c.Username,
		Role:        c.Role,
	}
}

// TokenExpiry is the default token lifetime.
const TokenExpiry = 7 * 24 * time.Hour

// GenerateToken creates a new JWT for a user with a unique JTI. A ttl of zero
// uses TokenExpiry.
func GenerateToken(secret string, user *model.User, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = TokenExpiry
	}

	now := time.Now()
	claims := Claims{
		UserID:      user.ID,
		InstituteID: user.InstituteID,
		Username:    user.Username,
		Role:        user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func ValidateToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.UserID == 0 || claims.InstituteID == 0 {
		return nil, fmt.Errorf("token has no subject")
	}

	return claims, nil
}
