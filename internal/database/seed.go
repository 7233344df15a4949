package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/kkkkikiki/coupon-verify/internal/auth"
	"github.com/kkkkikiki/coupon-verify/internal/config"
	"github.com/kkkkikiki/coupon-verify/internal/model"
	"github.com/kkkkikiki/coupon-verify/internal/repository"
)

// Seed makes sure the configured companies and the default operator exist.
// Existing rows are left untouched, so it is safe to run on every start.
func Seed(ctx context.Context, db *sqlx.DB, seed config.SeedConfig, bcryptCost int, logger *zap.Logger) error {
	companyRepo := repository.NewCompanyRepository()
	operatorRepo := repository.NewOperatorRepository()

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, name := range seed.Companies {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		exists, err := companyRepo.ExistsByName(ctx, tx, name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := companyRepo.CreateCompany(ctx, tx, &model.Company{Name: name, IsActive: true}); err != nil {
			return err
		}
		logger.Info("seeded company", zap.String("name", name))
	}

	if seed.OperatorPhone != "" {
		exists, err := operatorRepo.ExistsByPhone(ctx, tx, seed.OperatorPhone)
		if err != nil {
			return err
		}
		if !exists {
			hash, err := auth.HashPassword(seed.OperatorPassword, bcryptCost)
			if err != nil {
				return err
			}
			operator := &model.Operator{Phone: seed.OperatorPhone, PasswordHash: hash, IsActive: true}
			if err := operatorRepo.CreateOperator(ctx, tx, operator); err != nil {
				return err
			}
			logger.Info("seeded default operator", zap.String("phone", seed.OperatorPhone))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed: %w", err)
	}
	return nil
}
