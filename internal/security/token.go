package security

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const webhookIssuer = "cardamage"

type WebhookClaims struct {
	AssessmentID string `json:"aid,omitempty"`
	jwt.RegisteredClaims
}

// GenerateWebhookToken mints a short-lived bearer token for one outbound
// webhook call.
func GenerateWebhookToken(secret string, assessmentID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := WebhookClaims{
		AssessmentID: assessmentID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    webhookIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

func ParseWebhookToken(tokenStr string, secret string) (*WebhookClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &WebhookClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(webhookIssuer))
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*WebhookClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}
