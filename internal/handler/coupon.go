package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/kkkkikiki/coupon-verify/internal/service"
)

type redeemRequest struct {
	Code      string `json:"code"`
	CompanyID int64  `json:"companyId"`
}

type batchAddRequest struct {
	CompanyID int64 `json:"companyId"`
	Count     *int  `json:"count"`
}

type batchAddResponse struct {
	Codes []string `json:"codes"`
}

// Companies handles GET /api/coupon/companies
func (h *Handler) Companies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.companies.ListCompanies(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSuccess(w, "ok", companies)
}

// Redeem handles POST /api/coupon/redeem and its /api/coupon/verify alias
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Code = strings.TrimSpace(req.Code)
	if !service.ValidCode(req.Code) {
		writeFailure(w, http.StatusBadRequest, "coupon code must be 8 uppercase letters or digits")
		return
	}
	if req.CompanyID <= 0 {
		writeFailure(w, http.StatusBadRequest, "companyId is required")
		return
	}

	identity, _ := IdentityFrom(r.Context())
	result, err := h.coupons.Redeem(r.Context(), service.RedeemRequest{
		Code:          req.Code,
		CompanyID:     req.CompanyID,
		OperatorPhone: identity.Phone,
		SourceIP:      ClientIP(r),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeSuccess(w, "coupon redeemed", result)
}

// Records handles GET /api/coupon/records
func (h *Handler) Records(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := service.RecordQuery{Date: strings.TrimSpace(q.Get("date"))}

	if raw := q.Get("companyId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeFailure(w, http.StatusBadRequest, "companyId must be a positive integer")
			return
		}
		query.CompanyID = &id
	}

	var err error
	if query.Page, err = intParam(q.Get("page")); err != nil {
		writeFailure(w, http.StatusBadRequest, "page must be an integer")
		return
	}
	if query.Limit, err = intParam(q.Get("limit")); err != nil {
		writeFailure(w, http.StatusBadRequest, "limit must be an integer")
		return
	}

	page, err := h.records.ListRedemptions(r.Context(), query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSuccess(w, "ok", page)
}

// BatchAdd handles POST /api/coupon/batch-add
func (h *Handler) BatchAdd(w http.ResponseWriter, r *http.Request) {
	var req batchAddRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return
	}

	count := service.DefaultBatchSize
	if req.Count != nil {
		count = *req.Count
	}

	codes, err := h.coupons.GenerateBatch(r.Context(), req.CompanyID, count)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSuccess(w, "coupons generated", batchAddResponse{Codes: codes})
}

// intParam parses an optional integer query parameter; empty means zero
func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
