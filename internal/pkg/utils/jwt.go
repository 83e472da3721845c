package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims 自定义 JWT 载荷，携带操作者身份
type Claims struct {
	ActorID   string `json:"actor_id"`
	ActorType string `json:"actor_type"`
	ClientID  string `json:"client_id,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken 签发 JWT
func GenerateToken(actorID, actorType, clientID, secretKey, issuer string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		ActorID:   actorID,
		ActorType: actorType,
		ClientID:  clientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secretKey))
}

// ParseToken 解析并校验 JWT
func ParseToken(tokenString, secretKey string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secretKey), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
