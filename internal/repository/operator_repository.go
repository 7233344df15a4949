package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kkkkikiki/coupon-verify/internal/model"
)

// OperatorRepository handles operator (users table) data operations
type OperatorRepository struct{}

// NewOperatorRepository creates a new operator repository
func NewOperatorRepository() *OperatorRepository {
	return &OperatorRepository{}
}

// GetActiveByPhone retrieves an active operator by phone number
func (r *OperatorRepository) GetActiveByPhone(ctx context.Context, db DBExecutor, phone string) (*model.Operator, error) {
	query := `
		SELECT id, phone, password_hash, is_active, created_at, updated_at
		FROM users
		WHERE phone = $1 AND is_active = TRUE
	`

	var operator model.Operator
	if err := db.GetContext(ctx, &operator, query, phone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get operator: %w", err)
	}

	return &operator, nil
}

// ExistsByPhone reports whether any operator, active or not, uses the phone
func (r *OperatorRepository) ExistsByPhone(ctx context.Context, db DBExecutor, phone string) (bool, error) {
	var exists bool
	err := db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE phone = $1)`, phone)
	if err != nil {
		return false, fmt.Errorf("failed to check operator: %w", err)
	}
	return exists, nil
}

// CreateOperator inserts a new operator and sets its ID
func (r *OperatorRepository) CreateOperator(ctx context.Context, db DBExecutor, operator *model.Operator) error {
	query := `
		INSERT INTO users (phone, password_hash, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	now := time.Now().UTC()
	operator.CreatedAt = now
	operator.UpdatedAt = now

	err := db.GetContext(ctx, &operator.ID, query,
		operator.Phone, operator.PasswordHash, operator.IsActive, operator.CreatedAt, operator.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create operator: %w", err)
	}

	return nil
}
