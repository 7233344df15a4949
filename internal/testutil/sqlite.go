// Package testutil builds throwaway databases for package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/kkkkikiki/coupon-verify/internal/auth"
	"github.com/kkkkikiki/coupon-verify/internal/config"
	"github.com/kkkkikiki/coupon-verify/internal/database"
	"github.com/kkkkikiki/coupon-verify/internal/model"
	"github.com/kkkkikiki/coupon-verify/internal/repository"
)

const (
	DefaultPhone    = "13800138000"
	DefaultPassword = "123456"
)

// DefaultCompanies are seeded into every database from NewSeededDB, in this order
var DefaultCompanies = []string{"Acme", "Globex", "Initech"}

// NewDB opens an empty in-memory SQLite database with the schema applied.
// A single connection keeps every caller on the same in-memory database and
// serialises transactions.
func NewDB(t testing.TB) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(context.Background(), db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

// NewSeededDB is NewDB plus the default operator and DefaultCompanies
func NewSeededDB(t testing.TB) *sqlx.DB {
	t.Helper()

	db := NewDB(t)
	seed := config.SeedConfig{
		OperatorPhone:    DefaultPhone,
		OperatorPassword: DefaultPassword,
		Companies:        DefaultCompanies,
	}
	if err := database.Seed(context.Background(), db, seed, bcrypt.MinCost, zap.NewNop()); err != nil {
		t.Fatalf("failed to seed: %v", err)
	}
	return db
}

// CompanyID returns the ID of a company by name
func CompanyID(t testing.TB, db *sqlx.DB, name string) int64 {
	t.Helper()

	var id int64
	if err := db.Get(&id, `SELECT id FROM companies WHERE name = $1`, name); err != nil {
		t.Fatalf("company %q not found: %v", name, err)
	}
	return id
}

// CreateCompany inserts a company and returns its ID
func CreateCompany(t testing.TB, db *sqlx.DB, name string, active bool) int64 {
	t.Helper()

	company := &model.Company{Name: name, IsActive: active}
	if err := repository.NewCompanyRepository().CreateCompany(context.Background(), db, company); err != nil {
		t.Fatalf("failed to create company: %v", err)
	}
	return company.ID
}

// CreateOperator inserts an operator with a bcrypt hash of password
func CreateOperator(t testing.TB, db *sqlx.DB, phone, password string, active bool) int64 {
	t.Helper()

	hash, err := auth.HashPassword(password, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	operator := &model.Operator{Phone: phone, PasswordHash: hash, IsActive: active}
	if err := repository.NewOperatorRepository().CreateOperator(context.Background(), db, operator); err != nil {
		t.Fatalf("failed to create operator: %v", err)
	}
	return operator.ID
}

// CreateCoupons inserts unused coupons with fixed codes
func CreateCoupons(t testing.TB, db *sqlx.DB, companyID int64, codes ...string) {
	t.Helper()

	if err := repository.NewCouponRepository().CreateCoupons(context.Background(), db, companyID, codes); err != nil {
		t.Fatalf("failed to create coupons: %v", err)
	}
}

// RedemptionLogs returns every log entry of one coupon, oldest first
func RedemptionLogs(t testing.TB, db *sqlx.DB, couponID int64) []model.RedemptionLog {
	t.Helper()

	logs := []model.RedemptionLog{}
	err := db.Select(&logs, `
		SELECT id, coupon_id, user_phone, verification_time, ip_address
		FROM verification_logs
		WHERE coupon_id = $1
		ORDER BY verification_time ASC, id ASC
	`, couponID)
	if err != nil {
		t.Fatalf("failed to list redemption logs: %v", err)
	}
	return logs
}
