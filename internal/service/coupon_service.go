package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/kkkkikiki/coupon-verify/internal/metrics"
	"github.com/kkkkikiki/coupon-verify/internal/model"
	"github.com/kkkkikiki/coupon-verify/internal/repository"
)

const (
	// MaxBatchSize is the largest number of codes one generate call may create
	MaxBatchSize = 100
	// DefaultBatchSize is used when a caller does not say how many codes it wants
	DefaultBatchSize = 10
	// DefaultGenerateMaxAttempts bounds regeneration of a single colliding code
	DefaultGenerateMaxAttempts = 10
)

var tracer = otel.Tracer("github.com/kkkkikiki/coupon-verify/internal/service")

// RedeemRequest identifies the coupon to redeem and who redeems it
type RedeemRequest struct {
	Code          string
	CompanyID     int64
	OperatorPhone string
	SourceIP      string
}

// RedeemResult describes a successful redemption
type RedeemResult struct {
	Code           string    `json:"code"`
	CompanyName    string    `json:"company"`
	RedemptionTime time.Time `json:"redemptionTime"`
}

// couponStore is the part of the coupon repository the service depends on
type couponStore interface {
	FindByCodeAndCompany(ctx context.Context, db repository.DBExecutor, code string, companyID int64) (*model.Coupon, error)
	GetCoupon(ctx context.Context, db repository.DBExecutor, id int64) (*model.Coupon, error)
	MarkCouponAsUsed(ctx context.Context, db repository.DBExecutor, couponID int64, usedBy string, usedAt time.Time) error
	CodeExists(ctx context.Context, db repository.DBExecutor, code string) (bool, error)
	CreateCoupons(ctx context.Context, db repository.DBExecutor, companyID int64, codes []string) error
}

// CouponService implements redemption and batch generation
type CouponService struct {
	postgres       *sqlx.DB
	companyRepo    *repository.CompanyRepository
	couponRepo     couponStore
	redemptionRepo *repository.RedemptionRepository
	generator      *CodeGenerator
	maxAttempts    int
	logger         *zap.Logger
	now            func() time.Time
}

// NewCouponService creates a new CouponService instance
func NewCouponService(postgres *sqlx.DB, generator *CodeGenerator, maxAttempts int, logger *zap.Logger) *CouponService {
	if generator == nil {
		generator = NewCodeGenerator(nil)
	}
	if maxAttempts < 1 {
		maxAttempts = DefaultGenerateMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CouponService{
		postgres:       postgres,
		companyRepo:    repository.NewCompanyRepository(),
		couponRepo:     repository.NewCouponRepository(),
		redemptionRepo: repository.NewRedemptionRepository(),
		generator:      generator,
		maxAttempts:    maxAttempts,
		logger:         logger,
		now:            time.Now,
	}
}

// Redeem marks a coupon used exactly once and appends its redemption log
// entry in the same transaction.
func (s *CouponService) Redeem(ctx context.Context, req RedeemRequest) (*RedeemResult, error) {
	ctx, span := tracer.Start(ctx, "CouponService.Redeem")
	defer span.End()
	span.SetAttributes(
		attribute.String("coupon.code", req.Code),
		attribute.Int64("coupon.company_id", req.CompanyID),
	)

	// Start timing for metrics
	start := time.Now()
	status := "error"

	// Defer metric recording to ensure it's always called
	defer func() {
		metrics.RecordRedeemCouponDuration(status, time.Since(start).Seconds())
	}()

	result, err := s.redeem(ctx, req)
	switch {
	case err == nil:
		status = "success"
	case errors.Is(err, ErrAlreadyUsed):
		status = "already_used"
	case errors.Is(err, ErrNotFound):
		status = "not_found"
	case errors.Is(err, ErrValidation):
		status = "invalid"
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
		return nil, err
	}

	s.logger.Info("coupon redeemed",
		zap.String("code", result.Code),
		zap.Int64("company_id", req.CompanyID),
		zap.String("operator_phone", req.OperatorPhone),
		zap.String("ip", req.SourceIP),
	)
	return result, nil
}

func (s *CouponService) redeem(ctx context.Context, req RedeemRequest) (*RedeemResult, error) {
	if !ValidCode(req.Code) {
		return nil, validationError("coupon code must be 8 uppercase letters or digits")
	}
	if req.CompanyID <= 0 {
		return nil, validationError("company id is required")
	}
	if req.OperatorPhone == "" {
		return nil, validationError("operator phone is required")
	}

	// Start transaction
	tx, err := s.postgres.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	coupon, err := s.couponRepo.FindByCodeAndCompany(ctx, tx, req.Code, req.CompanyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: coupon does not exist or company mismatch", ErrNotFound)
		}
		return nil, err
	}

	if coupon.IsUsed {
		return nil, alreadyUsed(coupon)
	}

	now := s.now().UTC()

	// Guarded flip; losing a concurrent race surfaces as ErrCouponAlreadyUsed
	if err := s.couponRepo.MarkCouponAsUsed(ctx, tx, coupon.ID, req.OperatorPhone, now); err != nil {
		if errors.Is(err, repository.ErrCouponAlreadyUsed) {
			current, getErr := s.couponRepo.GetCoupon(ctx, tx, coupon.ID)
			if getErr != nil {
				return nil, fmt.Errorf("failed to reload coupon: %w", getErr)
			}
			return nil, alreadyUsed(current)
		}
		return nil, err
	}

	entry := &model.RedemptionLog{
		CouponID:         coupon.ID,
		UserPhone:        req.OperatorPhone,
		VerificationTime: now,
		IPAddress:        req.SourceIP,
	}
	if err := s.redemptionRepo.CreateLog(ctx, tx, entry); err != nil {
		return nil, err
	}

	// Commit DB transaction - flag and log entry land together or not at all
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &RedeemResult{
		Code:           coupon.Code,
		CompanyName:    coupon.CompanyName,
		RedemptionTime: now,
	}, nil
}

func alreadyUsed(coupon *model.Coupon) error {
	e := &AlreadyUsedError{Code: coupon.Code}
	if coupon.UsedAt != nil {
		e.UsedAt = coupon.UsedAt.UTC()
	}
	return e
}

// GenerateBatch creates count new unused coupons for a company and returns
// their codes. Every code is unique across all companies.
func (s *CouponService) GenerateBatch(ctx context.Context, companyID int64, count int) ([]string, error) {
	ctx, span := tracer.Start(ctx, "CouponService.GenerateBatch")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("coupon.company_id", companyID),
		attribute.Int("coupon.count", count),
	)

	if count < 1 || count > MaxBatchSize {
		return nil, validationError("count must be between 1 and %d", MaxBatchSize)
	}

	// Start transaction
	tx, err := s.postgres.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.companyRepo.GetCompany(ctx, tx, companyID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, validationError("company %d does not exist", companyID)
		}
		return nil, err
	}

	codes := make([]string, 0, count)
	seen := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		code, err := s.uniqueCode(ctx, tx, seen)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}

	if err := s.couponRepo.CreateCoupons(ctx, tx, companyID, codes); err != nil {
		return nil, fmt.Errorf("failed to store coupons: %w", err)
	}

	// Commit transaction
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	metrics.AddCouponsGenerated(len(codes))
	s.logger.Info("coupons generated",
		zap.Int64("company_id", companyID),
		zap.Int("count", len(codes)),
	)
	return codes, nil
}

// uniqueCode draws codes until one is neither stored nor already in this batch
func (s *CouponService) uniqueCode(ctx context.Context, db repository.DBExecutor, seen map[string]struct{}) (string, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		code, err := s.generator.NewCode()
		if err != nil {
			return "", err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		exists, err := s.couponRepo.CodeExists(ctx, db, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
		s.logger.Debug("coupon code collision", zap.String("code", code), zap.Int("attempt", attempt))
	}
	return "", fmt.Errorf("%w after %d attempts", ErrGenerationExhausted, s.maxAttempts)
}
