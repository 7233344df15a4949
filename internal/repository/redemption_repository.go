package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kkkkikiki/coupon-verify/internal/model"
)

// RecordFilter narrows a redemption listing. Zero values mean "no filter".
// From is inclusive, To is exclusive.
type RecordFilter struct {
	From      *time.Time
	To        *time.Time
	CompanyID *int64
}

// RedemptionRepository handles the verification_logs table. Rows are only
// ever inserted, never updated or deleted.
type RedemptionRepository struct{}

// NewRedemptionRepository creates a new redemption repository
func NewRedemptionRepository() *RedemptionRepository {
	return &RedemptionRepository{}
}

// CreateLog appends a redemption log entry and sets its ID
func (r *RedemptionRepository) CreateLog(ctx context.Context, db DBExecutor, entry *model.RedemptionLog) error {
	query := `
		INSERT INTO verification_logs (coupon_id, user_phone, verification_time, ip_address)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	err := db.GetContext(ctx, &entry.ID, query,
		entry.CouponID, entry.UserPhone, entry.VerificationTime, entry.IPAddress)
	if err != nil {
		return fmt.Errorf("failed to create redemption log: %w", err)
	}

	return nil
}

// CountRecords counts redemptions matching the filter
func (r *RedemptionRepository) CountRecords(ctx context.Context, db DBExecutor, filter RecordFilter) (int64, error) {
	where, args := filter.whereClause()

	query := `
		SELECT COUNT(*)
		FROM verification_logs vl
		JOIN coupons c ON vl.coupon_id = c.id
		JOIN companies comp ON c.company_id = comp.id
	` + where

	var total int64
	if err := db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count redemption records: %w", err)
	}
	return total, nil
}

// ListRecords returns one page of redemptions matching the filter, newest first
func (r *RedemptionRepository) ListRecords(ctx context.Context, db DBExecutor, filter RecordFilter, limit, offset int) ([]model.RedemptionRecord, error) {
	where, args := filter.whereClause()

	query := fmt.Sprintf(`
		SELECT vl.verification_time, c.code, comp.name AS company_name, vl.user_phone, vl.ip_address
		FROM verification_logs vl
		JOIN coupons c ON vl.coupon_id = c.id
		JOIN companies comp ON c.company_id = comp.id
		%s
		ORDER BY vl.verification_time DESC, vl.id DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	records := []model.RedemptionRecord{}
	if err := db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list redemption records: %w", err)
	}
	return records, nil
}

// whereClause renders the filter with placeholders numbered from $1
func (f RecordFilter) whereClause() (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if f.From != nil {
		args = append(args, *f.From)
		conditions = append(conditions, fmt.Sprintf("vl.verification_time >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, *f.To)
		conditions = append(conditions, fmt.Sprintf("vl.verification_time < $%d", len(args)))
	}
	if f.CompanyID != nil {
		args = append(args, *f.CompanyID)
		conditions = append(conditions, fmt.Sprintf("c.company_id = $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}
