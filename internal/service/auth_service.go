package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/kkkkikiki/coupon-verify/internal/auth"
	"github.com/kkkkikiki/coupon-verify/internal/metrics"
	"github.com/kkkkikiki/coupon-verify/internal/repository"
)

// phonePattern accepts mainland China mobile numbers
var phonePattern = regexp.MustCompile(`^1[3-9]\d{9}$`)

// ValidPhone reports whether s looks like an operator phone number
func ValidPhone(s string) bool {
	return phonePattern.MatchString(s)
}

// LoginResult is returned on successful login
type LoginResult struct {
	Token      string    `json:"token"`
	OperatorID int64     `json:"operatorId"`
	Phone      string    `json:"phone"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Identity is the operator a verified token belongs to
type Identity struct {
	OperatorID int64  `json:"userId"`
	Phone      string `json:"phone"`
}

// AuthService handles authentication operations
type AuthService struct {
	postgres     *sqlx.DB
	operatorRepo *repository.OperatorRepository
	tokens       *auth.TokenManager
	logger       *zap.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(postgres *sqlx.DB, tokens *auth.TokenManager, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		postgres:     postgres,
		operatorRepo: repository.NewOperatorRepository(),
		tokens:       tokens,
		logger:       logger,
	}
}

// Login checks phone and password against the active operators and issues a token
func (s *AuthService) Login(ctx context.Context, phone, password string) (*LoginResult, error) {
	if phone == "" || password == "" {
		metrics.RecordLogin("invalid")
		return nil, validationError("phone and password are required")
	}
	if !ValidPhone(phone) {
		metrics.RecordLogin("invalid")
		return nil, validationError("invalid phone number format")
	}

	operator, err := s.operatorRepo.GetActiveByPhone(ctx, s.postgres, phone)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			metrics.RecordLogin("not_found")
			s.logger.Warn("login attempt for unknown or inactive operator", zap.String("phone", phone))
			return nil, fmt.Errorf("%w: phone not registered or disabled", ErrNotFound)
		}
		return nil, err
	}

	if !auth.CheckPassword(operator.PasswordHash, password) {
		metrics.RecordLogin("invalid_credential")
		s.logger.Warn("login failed with wrong password", zap.String("phone", phone))
		return nil, fmt.Errorf("%w: wrong password", ErrInvalidCredential)
	}

	token, expiresAt, err := s.tokens.GenerateToken(operator.ID, operator.Phone)
	if err != nil {
		s.logger.Error("failed to sign token", zap.Int64("operator_id", operator.ID), zap.Error(err))
		return nil, err
	}

	metrics.RecordLogin("success")
	s.logger.Info("operator logged in",
		zap.Int64("operator_id", operator.ID),
		zap.String("phone", operator.Phone),
	)

	return &LoginResult{
		Token:      token,
		OperatorID: operator.ID,
		Phone:      operator.Phone,
		ExpiresAt:  expiresAt,
	}, nil
}

// Verify checks a token's signature and expiry. No store is consulted.
func (s *AuthService) Verify(token string) (*Identity, error) {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		s.logger.Warn("token rejected", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return &Identity{OperatorID: claims.UserID, Phone: claims.Phone}, nil
}
