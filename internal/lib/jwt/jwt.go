package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const RoleAdmin = "admin"

var ErrForbidden = errors.New("admin role required")

// Claims токен модератора, роль проверяется для админских маршрутов
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

// NewToken подписывает HS256 токен для subject с ролью role
func NewToken(secret, subject, role string, duration time.Duration) (string, error) {
	now := time.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
		},
	})

	return token.SignedString([]byte(secret))
}

// AdminFromToken достает claims из токена, разобранного echo-jwt
func AdminFromToken(token *jwt.Token) (*Claims, error) {
	if token == nil || !token.Valid {
		return nil, ErrForbidden
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !claims.IsAdmin() {
		return nil, ErrForbidden
	}
	return claims, nil
}
