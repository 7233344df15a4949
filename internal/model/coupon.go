package model

import (
	"time"
)

// Operator is a user allowed to log in and redeem coupons
type Operator struct {
	ID           int64     `db:"id" json:"id"`
	Phone        string    `db:"phone" json:"phone"`
	PasswordHash string    `db:"password_hash" json:"-"`
	IsActive     bool      `db:"is_active" json:"isActive"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// Company owns a set of coupons
type Company struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	IsActive  bool      `db:"is_active" json:"isActive"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Coupon represents a single-use code in the database.
// Once IsUsed is true, UsedAt and UsedBy are set and never change.
type Coupon struct {
	ID        int64      `db:"id" json:"id"`
	Code      string     `db:"code" json:"code"`
	CompanyID int64      `db:"company_id" json:"companyId"`
	IsUsed    bool       `db:"is_used" json:"isUsed"`
	UsedAt    *time.Time `db:"used_at" json:"usedAt,omitempty"`
	UsedBy    *string    `db:"used_by" json:"usedBy,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`

	// Populated by joins with companies
	CompanyName string `db:"company_name" json:"companyName,omitempty"`
}

// RedemptionLog is the append-only audit entry written for every redemption
type RedemptionLog struct {
	ID               int64     `db:"id" json:"id"`
	CouponID         int64     `db:"coupon_id" json:"couponId"`
	UserPhone        string    `db:"user_phone" json:"userPhone"`
	VerificationTime time.Time `db:"verification_time" json:"verificationTime"`
	IPAddress        string    `db:"ip_address" json:"ipAddress"`
}

// RedemptionRecord is a redemption log row joined with its coupon and company
type RedemptionRecord struct {
	VerificationTime time.Time `db:"verification_time" json:"verificationTime"`
	Code             string    `db:"code" json:"code"`
	CompanyName      string    `db:"company_name" json:"companyName"`
	UserPhone        string    `db:"user_phone" json:"userPhone"`
	IPAddress        string    `db:"ip_address" json:"ipAddress"`
}
