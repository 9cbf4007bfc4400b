package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/examtrust/examtrust-backend/internal/config"
	"github.com/examtrust/examtrust-backend/internal/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims embeds the identity-context principal into a JWT. Identity itself
// (login, user records) is an external collaborator; this subsystem only
// validates tokens it is handed.
type Claims struct {
	jwt.RegisteredClaims
	Role  model.Role `json:"role"`
	OrgID *uuid.UUID `json:"org_id,omitempty"`
}

// AuthService validates and (for tooling/tests) issues principal tokens.
type AuthService struct {
	cfg *config.Config
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{cfg: cfg}
}

// GenerateToken signs a JWT carrying the principal.
func (s *AuthService) GenerateToken(p model.Principal) (string, error) {
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   p.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		Role:  p.Role,
		OrgID: p.OrgID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

// ValidateToken parses and validates a JWT, returning the principal.
func (s *AuthService) ValidateToken(tokenStr string) (*model.Principal, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("parse subject: %w", err)
	}

	return &model.Principal{
		ID:    userID,
		Role:  claims.Role,
		OrgID: claims.OrgID,
	}, nil
}
