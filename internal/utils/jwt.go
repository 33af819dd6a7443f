// internal/utils/jwt.go
package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/javajoker/creatorshield-backend/internal/models"
)

// JWTClaims are issued by the identity provider. This service only verifies
// them.
type JWTClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

var (
	jwtSecret = []byte("your-secret-key-change-in-production")
	jwtIssuer = "creatorshield"
)

func SetJWTSecret(secret string) {
	jwtSecret = []byte(secret)
}

func SetJWTIssuer(issuer string) {
	if issuer != "" {
		jwtIssuer = issuer
	}
}

// GenerateJWT signs a token for actor. Used by tests and operator tooling.
func GenerateJWT(actor models.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		UserID: actor.ID.String(),
		Role:   string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    jwtIssuer,
			Subject:   actor.ID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

func ValidateJWT(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return jwtSecret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// Actor converts verified claims into the authorization context.
func (c *JWTClaims) Actor() (models.Actor, error) {
	id, err := uuid.Parse(c.UserID)
	if err != nil {
		return models.Actor{}, errors.New("invalid user id in token")
	}
	role := models.Role(c.Role)
	if role != models.RoleCreator && role != models.RoleAdmin {
		return models.Actor{}, errors.New("unknown role in token")
	}
	return models.Actor{ID: id, Role: role}, nil
}
