package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/citasalud/agenda/internal/repository"
	"github.com/citasalud/agenda/internal/scheduling"
)

const dateLayout = "2006-01-02"

// SchedulingHandler exposes the capacity ledger, the distribution
// planner and the redistributor over HTTP.  These endpoints are for
// administrative staff.
type SchedulingHandler struct {
	Ledger  *scheduling.Ledger
	Planner *scheduling.Planner
	Redist  *scheduling.Redistributor
	Store   *repository.Store
	Log     zerolog.Logger
}

func NewSchedulingHandler(l *scheduling.Ledger, p *scheduling.Planner, r *scheduling.Redistributor, s *repository.Store, log zerolog.Logger) *SchedulingHandler {
	return &SchedulingHandler{Ledger: l, Planner: p, Redist: r, Store: s, Log: log}
}

func pathID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

type distributeReq struct {
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	TotalQuota      int    `json:"total_quota"`
	IncludeWeekends bool   `json:"include_weekends"`
}

// Distribute plans a window's per-day quota over a date range,
// replacing any existing plan.
func (h *SchedulingHandler) Distribute(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid availability id"})
	}
	var req distributeReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "start_date must be YYYY-MM-DD"})
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "end_date must be YYYY-MM-DD"})
	}

	plan, err := h.Planner.PlanDistribution(c.Request().Context(), id, start, end, req.TotalQuota, !req.IncludeWeekends)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": plan})
}

// GetDistribution returns the window's current plan in date order.
func (h *SchedulingHandler) GetDistribution(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid availability id"})
	}
	quotas, err := h.Store.DayQuotas(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	type dayResp struct {
		Date     string `json:"date"`
		Quota    int    `json:"quota"`
		Assigned int    `json:"assigned"`
	}
	days := make([]dayResp, 0, len(quotas))
	for _, q := range quotas {
		days = append(days, dayResp{Date: q.Date.Format(dateLayout), Quota: q.Quota, Assigned: q.Assigned})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": days})
}

type redistributeReq struct {
	UntilDate string `json:"until_date"`
}

// Redistribute moves a window's unused past quota into current and
// future days.
func (h *SchedulingHandler) Redistribute(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid availability id"})
	}
	var req redistributeReq
	_ = c.Bind(&req)
	var until *time.Time
	if req.UntilDate != "" {
		t, err := time.Parse(dateLayout, req.UntilDate)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "until_date must be YYYY-MM-DD"})
		}
		until = &t
	}

	result, err := h.Redist.Redistribute(c.Request().Context(), id, until)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": result})
}

// RedistributeAll runs the redistributor over every planned window.
func (h *SchedulingHandler) RedistributeAll(c echo.Context) error {
	var req redistributeReq
	_ = c.Bind(&req)
	var until *time.Time
	if req.UntilDate != "" {
		t, err := time.Parse(dateLayout, req.UntilDate)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "until_date must be YYYY-MM-DD"})
		}
		until = &t
	}

	bulk, err := h.Redist.RedistributeAll(c.Request().Context(), until)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": bulk})
}

// Capacity resyncs the window's counters and reports whether it can
// take another booking.
func (h *SchedulingHandler) Capacity(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid availability id"})
	}
	report, err := h.Ledger.ValidateCapacity(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": report})
}

// Resync recomputes one window's booked count from its appointments.
func (h *SchedulingHandler) Resync(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid availability id"})
	}
	if err := h.Ledger.Resync(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// ResyncAll repairs counter drift across every active window.
func (h *SchedulingHandler) ResyncAll(c echo.Context) error {
	synced, failed, err := h.Ledger.ResyncAll(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    echo.Map{"synced": synced, "failed": failed},
	})
}
