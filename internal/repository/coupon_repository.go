package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kkkkikiki/coupon-verify/internal/model"
)

// ErrCouponAlreadyUsed is returned when the guarded update finds the coupon already used
var ErrCouponAlreadyUsed = errors.New("coupon not found or already used")

// CouponRepository handles coupon data operations
type CouponRepository struct{}

// NewCouponRepository creates a new coupon repository
func NewCouponRepository() *CouponRepository {
	return &CouponRepository{}
}

// FindByCodeAndCompany looks up a coupon by exact code within one company
func (r *CouponRepository) FindByCodeAndCompany(ctx context.Context, db DBExecutor, code string, companyID int64) (*model.Coupon, error) {
	query := `
		SELECT c.id, c.code, c.company_id, c.is_used, c.used_at, c.used_by, c.created_at,
		       comp.name AS company_name
		FROM coupons c
		JOIN companies comp ON c.company_id = comp.id
		WHERE c.code = $1 AND c.company_id = $2
	`

	var coupon model.Coupon
	if err := db.GetContext(ctx, &coupon, query, code, companyID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find coupon: %w", err)
	}

	return &coupon, nil
}

// GetCoupon retrieves a coupon by ID
func (r *CouponRepository) GetCoupon(ctx context.Context, db DBExecutor, id int64) (*model.Coupon, error) {
	query := `
		SELECT c.id, c.code, c.company_id, c.is_used, c.used_at, c.used_by, c.created_at,
		       comp.name AS company_name
		FROM coupons c
		JOIN companies comp ON c.company_id = comp.id
		WHERE c.id = $1
	`

	var coupon model.Coupon
	if err := db.GetContext(ctx, &coupon, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}

	return &coupon, nil
}

// MarkCouponAsUsed flips a coupon from unused to used. The is_used guard makes
// the write a compare-and-swap: a concurrent redeemer that lost the race
// affects zero rows and gets ErrCouponAlreadyUsed.
func (r *CouponRepository) MarkCouponAsUsed(ctx context.Context, db DBExecutor, couponID int64, usedBy string, usedAt time.Time) error {
	query := `
		UPDATE coupons
		SET is_used = TRUE, used_at = $1, used_by = $2
		WHERE id = $3 AND is_used = FALSE
	`

	result, err := db.ExecContext(ctx, query, usedAt, usedBy, couponID)
	if err != nil {
		return fmt.Errorf("failed to mark coupon as used: %w", err)
	}

	// Check if any row was actually updated
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrCouponAlreadyUsed
	}

	return nil
}

// CodeExists reports whether a code is taken by any company
func (r *CouponRepository) CodeExists(ctx context.Context, db DBExecutor, code string) (bool, error) {
	var exists bool
	if err := db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM coupons WHERE code = $1)`, code); err != nil {
		return false, fmt.Errorf("failed to check coupon code: %w", err)
	}
	return exists, nil
}

// CreateCoupons creates unused coupons for a company in batches
func (r *CouponRepository) CreateCoupons(ctx context.Context, db DBExecutor, companyID int64, codes []string) error {
	now := time.Now().UTC()

	// Keep well under the PostgreSQL bind parameter limit
	batchSize := 1000

	for i := 0; i < len(codes); i += batchSize {
		end := i + batchSize
		if end > len(codes) {
			end = len(codes)
		}

		if err := r.insertCouponBatch(ctx, db, companyID, codes[i:end], now); err != nil {
			return fmt.Errorf("failed to insert coupon batch: %w", err)
		}
	}

	return nil
}

// insertCouponBatch inserts a batch of coupons using a single query
func (r *CouponRepository) insertCouponBatch(ctx context.Context, db DBExecutor, companyID int64, codes []string, createdAt time.Time) error {
	if len(codes) == 0 {
		return nil
	}

	valuesClause := make([]string, len(codes))
	args := make([]interface{}, 0, len(codes)*4)

	for i, code := range codes {
		valuesClause[i] = fmt.Sprintf("($%d, $%d, $%d, $%d)",
			i*4+1, i*4+2, i*4+3, i*4+4)
		args = append(args, code, companyID, false, createdAt)
	}

	query := fmt.Sprintf(`
		INSERT INTO coupons (code, company_id, is_used, created_at)
		VALUES %s
	`, strings.Join(valuesClause, ", "))

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to execute batch insert: %w", err)
	}

	return nil
}
