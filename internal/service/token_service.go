package service

import (
	"fmt"
	"time"

	"github.com/fintrack/stockledger/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenService interface {
	GenerateAccessToken(userID uuid.UUID, userName string) (string, error)
}

type tokenService struct {
	cfg config.SecConfig
}

func NewTokenService(cfg config.SecConfig) TokenService {
	return &tokenService{cfg: cfg}
}

func (s *tokenService) GenerateAccessToken(userID uuid.UUID, userName string) (string, error) {
	claims := jwt.MapClaims{
		"sub":  userID.String(),
		"name": userName,
		"exp":  time.Now().Add(s.cfg.AccessTokenTTL).Unix(),
		"iat":  time.Now().Unix(),
	}

	accessToken := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedAccessToken, err := accessToken.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return signedAccessToken, nil
}
