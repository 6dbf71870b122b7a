package billing

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/careledger/careledger/internal/platform/apperr"
	"github.com/careledger/careledger/internal/platform/auth"
	"github.com/careledger/careledger/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/bills", h.ListBills)
	api.GET("/bills/revenue", h.RevenueSummary, auth.RequireRole(auth.RoleBilling))
	api.GET("/bills/:id", h.GetBill)
	api.GET("/bills/:id/payments", h.ListPayments)
	api.POST("/bills", h.GenerateBill, auth.RequireRole(auth.RoleBilling))
	api.POST("/bills/:id/payments", h.RecordPayment, auth.RequireRole(auth.RoleBilling))
}

func (h *Handler) GenerateBill(c echo.Context) error {
	var b Bill
	if err := c.Bind(&b); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b.GeneratedBy = auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.GenerateBill(c.Request().Context(), &b); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *Handler) GetBill(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := h.svc.GetBill(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ListBills(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := ListFilter{
		Status:        c.QueryParam("status"),
		InvoiceNumber: c.QueryParam("invoice_number"),
	}
	if raw := c.QueryParam("patient_id"); raw != "" {
		pid, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &pid
	}
	items, total, err := h.svc.ListBills(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) RecordPayment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req struct {
		Amount         float64 `json:"amount"`
		Method         string  `json:"method"`
		Reference      string  `json:"reference"`
		IdempotencyKey string  `json:"idempotency_key"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.Request().Header.Get("Idempotency-Key")
	}
	actor := auth.UserIDFromContext(c.Request().Context())
	b, err := h.svc.RecordPayment(c.Request().Context(), id, req.Amount, req.Method, req.Reference, req.IdempotencyKey, actor)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) ListPayments(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPayments(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) RevenueSummary(c echo.Context) error {
	var from, to time.Time
	if raw := c.QueryParam("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from timestamp")
		}
		from = t
	}
	if raw := c.QueryParam("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to timestamp")
		}
		to = t
	}
	s, err := h.svc.RevenueSummary(c.Request().Context(), from, to)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, s)
}
