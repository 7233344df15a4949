package service

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kkkkikiki/coupon-verify/internal/testutil"
)

type redemptionFixture struct {
	db     *sqlx.DB
	acme   int64
	globex int64
}

// newRedemptionFixture redeems five coupons at known UTC instants:
//
//	ACME0001 2026-03-10 09:00  Acme
//	ACME0002 2026-03-10 10:00  Acme
//	ACME0003 2026-03-10 11:00  Acme
//	GLBX0001 2026-03-10 17:00  Globex
//	ACME0004 2026-03-11 08:00  Acme
func newRedemptionFixture(t *testing.T) redemptionFixture {
	t.Helper()

	db := testutil.NewSeededDB(t)
	f := redemptionFixture{
		db:     db,
		acme:   testutil.CompanyID(t, db, "Acme"),
		globex: testutil.CompanyID(t, db, "Globex"),
	}
	testutil.CreateCoupons(t, db, f.acme, "ACME0001", "ACME0002", "ACME0003", "ACME0004")
	testutil.CreateCoupons(t, db, f.globex, "GLBX0001")

	svc := NewCouponService(db, nil, 0, zap.NewNop())
	redeem := func(code string, company int64, at time.Time) {
		svc.now = func() time.Time { return at }
		_, err := svc.Redeem(context.Background(), RedeemRequest{
			Code:          code,
			CompanyID:     company,
			OperatorPhone: testutil.DefaultPhone,
			SourceIP:      "192.0.2.1",
		})
		require.NoError(t, err)
	}

	redeem("ACME0001", f.acme, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	redeem("ACME0002", f.acme, time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC))
	redeem("ACME0003", f.acme, time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC))
	redeem("GLBX0001", f.globex, time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC))
	redeem("ACME0004", f.acme, time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC))
	return f
}

func codesOf(page *RecordPage) []string {
	codes := make([]string, 0, len(page.Records))
	for _, r := range page.Records {
		codes = append(codes, r.Code)
	}
	return codes
}

func TestListRedemptions_Pagination(t *testing.T) {
	f := newRedemptionFixture(t)
	svc := NewRecordService(f.db, time.UTC)
	ctx := context.Background()

	page, err := svc.ListRedemptions(ctx, RecordQuery{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"ACME0004", "GLBX0001"}, codesOf(page))
	assert.Equal(t, Pagination{Total: 5, Page: 1, Limit: 2, TotalPages: 3}, page.Pagination)

	page, err = svc.ListRedemptions(ctx, RecordQuery{Page: 3, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"ACME0001"}, codesOf(page))

	page, err = svc.ListRedemptions(ctx, RecordQuery{Page: 10, Limit: 2})
	require.NoError(t, err)
	assert.NotNil(t, page.Records)
	assert.Empty(t, page.Records)
	assert.EqualValues(t, 5, page.Pagination.Total)
}

func TestListRedemptions_Defaults(t *testing.T) {
	f := newRedemptionFixture(t)
	svc := NewRecordService(f.db, nil)

	page, err := svc.ListRedemptions(context.Background(), RecordQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Pagination.Page)
	assert.Equal(t, DefaultPageSize, page.Pagination.Limit)
	assert.Equal(t, 1, page.Pagination.TotalPages)
	assert.Len(t, page.Records, 5)

	first := page.Records[0]
	assert.Equal(t, "ACME0004", first.Code)
	assert.Equal(t, "Acme", first.CompanyName)
	assert.Equal(t, testutil.DefaultPhone, first.UserPhone)
	assert.Equal(t, "192.0.2.1", first.IPAddress)
	assert.True(t, time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC).Equal(first.VerificationTime))
}

func TestListRedemptions_Filters(t *testing.T) {
	f := newRedemptionFixture(t)
	svc := NewRecordService(f.db, time.UTC)

	tests := []struct {
		name    string
		query   RecordQuery
		want    []string
		wantTot int64
	}{
		{"by date", RecordQuery{Date: "2026-03-10"}, []string{"GLBX0001", "ACME0003", "ACME0002", "ACME0001"}, 4},
		{"by company", RecordQuery{CompanyID: &f.globex}, []string{"GLBX0001"}, 1},
		{"by date and company", RecordQuery{Date: "2026-03-10", CompanyID: &f.acme}, []string{"ACME0003", "ACME0002", "ACME0001"}, 3},
		{"day without redemptions", RecordQuery{Date: "2026-03-12"}, []string{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.ListRedemptions(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, codesOf(page))
			assert.Equal(t, tt.wantTot, page.Pagination.Total)
			assert.NotNil(t, page.Records)
		})
	}
}

func TestListRedemptions_DateUsesConfiguredZone(t *testing.T) {
	f := newRedemptionFixture(t)
	svc := NewRecordService(f.db, time.FixedZone("UTC+8", 8*60*60))
	ctx := context.Background()

	// 2026-03-10 in UTC+8 ends at 16:00 UTC, so the Globex redemption falls on the 11th
	page, err := svc.ListRedemptions(ctx, RecordQuery{Date: "2026-03-10"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ACME0003", "ACME0002", "ACME0001"}, codesOf(page))

	page, err = svc.ListRedemptions(ctx, RecordQuery{Date: "2026-03-11"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ACME0004", "GLBX0001"}, codesOf(page))
}

func TestListRedemptions_Validation(t *testing.T) {
	f := newRedemptionFixture(t)
	svc := NewRecordService(f.db, time.UTC)

	for _, q := range []RecordQuery{
		{Page: -1},
		{Limit: -5},
		{Limit: MaxPageSize + 1},
		{Page: math.MaxInt, Limit: DefaultPageSize},
		{Page: math.MaxInt/MaxPageSize + 2, Limit: MaxPageSize},
		{Date: "2026-13-01"},
		{Date: "2026-02-30"},
		{Date: "10/03/2026"},
	} {
		_, err := svc.ListRedemptions(context.Background(), q)
		assert.ErrorIs(t, err, ErrValidation, "%+v", q)
	}
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 0, totalPages(0, 20))
	assert.Equal(t, 1, totalPages(1, 20))
	assert.Equal(t, 1, totalPages(20, 20))
	assert.Equal(t, 2, totalPages(21, 20))
	assert.Equal(t, 0, totalPages(5, 0))
}
