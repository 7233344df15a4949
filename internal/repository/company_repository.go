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

// likeEscaper makes a search term match literally inside a LIKE pattern
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// CompanyRepository handles company data operations
type CompanyRepository struct{}

// NewCompanyRepository creates a new company repository
func NewCompanyRepository() *CompanyRepository {
	return &CompanyRepository{}
}

// ListActive returns active companies ordered by name. A non-empty search
// restricts the result to names containing it.
func (r *CompanyRepository) ListActive(ctx context.Context, db DBExecutor, search string) ([]model.Company, error) {
	query := `
		SELECT id, name, is_active, created_at
		FROM companies
		WHERE is_active = TRUE
	`
	args := []interface{}{}
	if search != "" {
		query += ` AND name LIKE $1 ESCAPE '\'`
		args = append(args, "%"+likeEscaper.Replace(search)+"%")
	}
	query += ` ORDER BY name`

	companies := []model.Company{}
	if err := db.SelectContext(ctx, &companies, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}

	return companies, nil
}

// GetCompany retrieves a company by ID
func (r *CompanyRepository) GetCompany(ctx context.Context, db DBExecutor, id int64) (*model.Company, error) {
	query := `
		SELECT id, name, is_active, created_at
		FROM companies
		WHERE id = $1
	`

	var company model.Company
	if err := db.GetContext(ctx, &company, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get company: %w", err)
	}

	return &company, nil
}

// ExistsByName reports whether a company with the exact name exists
func (r *CompanyRepository) ExistsByName(ctx context.Context, db DBExecutor, name string) (bool, error) {
	var exists bool
	err := db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM companies WHERE name = $1)`, name)
	if err != nil {
		return false, fmt.Errorf("failed to check company: %w", err)
	}
	return exists, nil
}

// CreateCompany inserts a company and sets its ID
func (r *CompanyRepository) CreateCompany(ctx context.Context, db DBExecutor, company *model.Company) error {
	query := `
		INSERT INTO companies (name, is_active, created_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	company.CreatedAt = time.Now().UTC()

	if err := db.GetContext(ctx, &company.ID, query, company.Name, company.IsActive, company.CreatedAt); err != nil {
		return fmt.Errorf("failed to create company: %w", err)
	}

	return nil
}
