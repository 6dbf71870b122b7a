package ward

import (
	"net/http"

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
	api.GET("/wards", h.ListWards)
	api.GET("/wards/:id", h.GetWard)
	api.POST("/wards", h.CreateWard, auth.RequireRole(auth.RoleAdmin))
	api.PUT("/wards/:id", h.UpdateWard, auth.RequireRole(auth.RoleAdmin))

	staff := auth.RequireRole(auth.RoleDoctor, auth.RoleNurse)
	api.GET("/allocations", h.ListAllocations)
	api.GET("/allocations/admitted", h.ListAdmitted)
	api.GET("/allocations/:id", h.GetAllocation)
	api.GET("/allocations/:id/notes", h.GetNotes)
	api.POST("/allocations", h.AdmitPatient, staff)
	api.PUT("/allocations/:id/discharge", h.DischargePatient, staff)
	api.PUT("/allocations/:id/transfer", h.TransferPatient, staff)
	api.POST("/allocations/:id/notes", h.AddDailyNote, staff)
}

func (h *Handler) CreateWard(c echo.Context) error {
	var w Ward
	if err := c.Bind(&w); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateWard(c.Request().Context(), &w); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, w)
}

func (h *Handler) GetWard(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	w, err := h.svc.GetWard(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, w)
}

func (h *Handler) UpdateWard(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var w Ward
	if err := c.Bind(&w); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	w.ID = id
	if err := h.svc.UpdateWard(c.Request().Context(), &w); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, w)
}

func (h *Handler) ListWards(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListWards(c.Request().Context(),
		c.QueryParam("type"), c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) AdmitPatient(c echo.Context) error {
	var req AdmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	alloc, err := h.svc.AdmitPatient(c.Request().Context(), req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, alloc)
}

func (h *Handler) DischargePatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	alloc, err := h.svc.DischargePatient(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, alloc)
}

func (h *Handler) TransferPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req struct {
		ToWardID uuid.UUID `json:"to_ward_id"`
		BedLabel string    `json:"bed_label"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	alloc, err := h.svc.TransferPatient(c.Request().Context(), id, req.ToWardID, req.BedLabel)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, alloc)
}

func (h *Handler) AddDailyNote(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req struct {
		Note string `json:"note"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	recordedBy := auth.UserNameFromContext(c.Request().Context())
	if recordedBy == "" {
		recordedBy = auth.UserIDFromContext(c.Request().Context())
	}
	n, err := h.svc.AddDailyNote(c.Request().Context(), id, req.Note, recordedBy)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, n)
}

func (h *Handler) GetAllocation(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	alloc, err := h.svc.GetAllocation(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, alloc)
}

func (h *Handler) GetNotes(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	notes, err := h.svc.GetNotes(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, notes)
}

func (h *Handler) ListAllocations(c echo.Context) error {
	pg := pagination.FromContext(c)
	var wardID uuid.UUID
	if s := c.QueryParam("ward_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid ward_id")
		}
		wardID = id
	}
	items, total, err := h.svc.ListAllocations(c.Request().Context(),
		wardID, c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListAdmitted(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAdmitted(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
