// Package auth turns bearer access tokens into the caller's sync scope.
// Tokens are HS256 JWTs minted by the identity service (or syncadmin token
// for development) and carry the user id, role and team memberships.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token payload: registered claims plus the sync scope.
type Claims struct {
	jwt.RegisteredClaims
	UserID string   `json:"uid"`
	Role   string   `json:"role"`
	Teams  []string `json:"teams,omitempty"`
}

// GenerateToken signs a token for scope valid for validityDuration.
func GenerateToken(scope models.Scope, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   scope.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		UserID: scope.UserID,
		Role:   string(scope.Role),
		Teams:  scope.Teams,
	})

	return token.SignedString(secretKey)
}

// ScopeFromToken validates tokenString and returns the scope it grants.
// Expired tokens yield common.ErrTokenExpired, anything else that fails
// verification common.ErrInvalidToken.
func ScopeFromToken(tokenString string, secretKey []byte) (models.Scope, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.Scope{}, common.ErrTokenExpired
		}
		return models.Scope{}, common.ErrInvalidToken
	}
	if !token.Valid || claims.UserID == "" {
		return models.Scope{}, common.ErrInvalidToken
	}

	role, err := models.ParseRole(claims.Role)
	if err != nil {
		return models.Scope{}, common.ErrInvalidToken
	}

	return models.Scope{UserID: claims.UserID, Role: role, Teams: claims.Teams}, nil
}
