package service

import (
	"context"
	"math"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kkkkikiki/coupon-verify/internal/model"
	"github.com/kkkkikiki/coupon-verify/internal/repository"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// RecordQuery selects a page of redemption records. Date is YYYY-MM-DD.
type RecordQuery struct {
	Date      string
	CompanyID *int64
	Page      int
	Limit     int
}

// Pagination describes where a page sits in the full result
type Pagination struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

// RecordPage is one page of redemption records
type RecordPage struct {
	Records    []model.RedemptionRecord `json:"records"`
	Pagination Pagination               `json:"pagination"`
}

// RecordService is the read-only projection over the redemption log
type RecordService struct {
	postgres       *sqlx.DB
	redemptionRepo *repository.RedemptionRepository
	location       *time.Location
}

// NewRecordService creates a RecordService. Dates are interpreted in loc.
func NewRecordService(postgres *sqlx.DB, loc *time.Location) *RecordService {
	if loc == nil {
		loc = time.UTC
	}
	return &RecordService{
		postgres:       postgres,
		redemptionRepo: repository.NewRedemptionRepository(),
		location:       loc,
	}
}

// ListRedemptions returns redemptions newest first, filtered by calendar day
// and/or company
func (s *RecordService) ListRedemptions(ctx context.Context, q RecordQuery) (*RecordPage, error) {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = DefaultPageSize
	}
	if q.Page < 1 {
		return nil, validationError("page must be at least 1")
	}
	if q.Limit < 1 || q.Limit > MaxPageSize {
		return nil, validationError("limit must be between 1 and %d", MaxPageSize)
	}
	// The offset must stay representable
	if q.Page-1 > math.MaxInt/q.Limit {
		return nil, validationError("page %d is out of range", q.Page)
	}

	filter := repository.RecordFilter{CompanyID: q.CompanyID}
	if q.Date != "" {
		day, err := time.ParseInLocation("2006-01-02", q.Date, s.location)
		if err != nil {
			return nil, validationError("date must be a valid YYYY-MM-DD calendar date")
		}
		from := day.UTC()
		to := day.AddDate(0, 0, 1).UTC()
		filter.From = &from
		filter.To = &to
	}

	total, err := s.redemptionRepo.CountRecords(ctx, s.postgres, filter)
	if err != nil {
		return nil, err
	}

	records := []model.RedemptionRecord{}
	offset := (q.Page - 1) * q.Limit
	if total > int64(offset) {
		records, err = s.redemptionRepo.ListRecords(ctx, s.postgres, filter, q.Limit, offset)
		if err != nil {
			return nil, err
		}
	}

	return &RecordPage{
		Records: records,
		Pagination: Pagination{
			Total:      total,
			Page:       q.Page,
			Limit:      q.Limit,
			TotalPages: totalPages(total, q.Limit),
		},
	}, nil
}

// totalPages is ceil(total/limit)
func totalPages(total int64, limit int) int {
	if limit <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
