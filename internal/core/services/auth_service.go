package services

import (
	"fmt"
	"time"

	"meshcall/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
)

// AuthService mints the short-lived resume tokens the rendezvous hands
// out on register. A token lets a reconnecting client keep its assigned
// peer id; join links never carry one.
type AuthService struct {
	secret []byte
	ttl    time.Duration
}

type resumeClaims struct {
	PeerID string `json:"peer_id"`
	jwt.RegisteredClaims
}

func NewAuthService(secret string, ttl time.Duration) *AuthService {
	return &AuthService{secret: []byte(secret), ttl: ttl}
}

func (a *AuthService) IssueResumeToken(peerID domain.PeerID) (string, error) {
	now := time.Now()
	claims := resumeClaims{
		PeerID: string(peerID),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			Issuer:    "meshcall-rendezvous",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *AuthService) ValidateResumeToken(token string) (domain.PeerID, error) {
	parsed, err := jwt.ParseWithClaims(token, &resumeClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid resume token: %w", err)
	}
	claims, ok := parsed.Claims.(*resumeClaims)
	if !ok || claims.PeerID == "" {
		return "", fmt.Errorf("invalid resume token claims")
	}
	return domain.PeerID(claims.PeerID), nil
}
