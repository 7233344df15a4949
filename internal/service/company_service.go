package service

import (
	"context"
	"html"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/microcosm-cc/bluemonday"

	"github.com/kkkkikiki/coupon-verify/internal/model"
	"github.com/kkkkikiki/coupon-verify/internal/repository"
)

// CompanyService is the read path over the company directory
type CompanyService struct {
	postgres    *sqlx.DB
	companyRepo *repository.CompanyRepository
	sanitizer   *bluemonday.Policy
}

// NewCompanyService creates a new CompanyService
func NewCompanyService(postgres *sqlx.DB) *CompanyService {
	return &CompanyService{
		postgres:    postgres,
		companyRepo: repository.NewCompanyRepository(),
		sanitizer:   bluemonday.StrictPolicy(),
	}
}

// ListCompanies returns active companies ordered by name, optionally
// restricted to names containing search. Markup is stripped from the term;
// the strict policy also escapes entities, which are turned back into text.
func (s *CompanyService) ListCompanies(ctx context.Context, search string) ([]model.Company, error) {
	search = strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(search)))
	return s.companyRepo.ListActive(ctx, s.postgres, search)
}
