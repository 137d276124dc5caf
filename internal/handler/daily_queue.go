package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/citasalud/agenda/internal/model"
	"github.com/citasalud/agenda/internal/queue"
	"github.com/citasalud/agenda/internal/repository"
	"github.com/citasalud/agenda/internal/scheduling"
	publisher "github.com/citasalud/agenda/internal/service"
)

// QueueHandler exposes same-day assignment and the waiting queue.
type QueueHandler struct {
	Queue  *scheduling.AssignmentQueue
	Store  *repository.Store
	Cal    scheduling.Calendar
	Events *publisher.Publisher
	Log    zerolog.Logger
}

func NewQueueHandler(q *scheduling.AssignmentQueue, s *repository.Store, cal scheduling.Calendar, ev *publisher.Publisher, log zerolog.Logger) *QueueHandler {
	return &QueueHandler{Queue: q, Store: s, Cal: cal, Events: ev, Log: log}
}

type assignReq struct {
	PatientID   uint64  `json:"patient_id"`
	SpecialtyID uint64  `json:"specialty_id"`
	DoctorID    *uint64 `json:"doctor_id"`
	LocationID  *uint64 `json:"location_id"`
	Priority    string  `json:"priority"`
	Notes       string  `json:"notes"`
}

// Assign tries to book the patient for today and enqueues the request
// when no capacity exists.
func (h *QueueHandler) Assign(c echo.Context) error {
	var req assignReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	prio, err := model.ParsePriority(req.Priority)
	if err != nil {
		return respondError(c, err)
	}

	result, err := h.Queue.TryAssignOrQueue(c.Request().Context(), scheduling.AssignmentRequest{
		PatientID:   req.PatientID,
		SpecialtyID: req.SpecialtyID,
		DoctorID:    req.DoctorID,
		LocationID:  req.LocationID,
		Priority:    prio,
		Notes:       req.Notes,
	})
	if err != nil {
		return respondError(c, err)
	}

	if result.Assigned && h.Events != nil {
		h.publishAssigned(queue.AppointmentAssignedEvent{
			AppointmentID: result.AppointmentID,
			PatientID:     req.PatientID,
			WindowID:      result.WindowID,
			SpecialtyID:   req.SpecialtyID,
			Date:          h.Cal.Today().Format(dateLayout),
			Source:        "direct",
			AssignedAt:    time.Now().UTC().Format(time.RFC3339),
		})
	}

	status := http.StatusOK
	if !result.Assigned {
		status = http.StatusAccepted
	}
	return c.JSON(status, echo.Map{"success": true, "data": result})
}

// Process drains the waiting queue against today's remaining capacity.
func (h *QueueHandler) Process(c echo.Context) error {
	batch := 0
	if v := c.QueryParam("batch"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			batch = n
		}
	}
	result, err := h.Queue.ProcessQueue(c.Request().Context(), batch)
	if err != nil {
		return respondError(c, err)
	}

	if h.Events != nil {
		today := h.Cal.Today().Format(dateLayout)
		for _, a := range result.Assignments {
			h.publishAssigned(queue.AppointmentAssignedEvent{
				AppointmentID: a.AppointmentID,
				PatientID:     a.PatientID,
				WindowID:      a.WindowID,
				Date:          today,
				Source:        "queue",
				QueueEntryID:  a.EntryID,
				AssignedAt:    time.Now().UTC().Format(time.RFC3339),
			})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": result})
}

// List returns queue entries, filterable by specialty_id and status.
func (h *QueueHandler) List(c echo.Context) error {
	var filter repository.QueueFilter
	if v := c.QueryParam("specialty_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid specialty_id"})
		}
		filter.SpecialtyID = id
	}
	if v := c.QueryParam("status"); v != "" {
		switch v {
		case "waiting", "assigned", "cancelled":
			filter.Status = v
		default:
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status"})
		}
	}
	entries, err := h.Store.ListQueue(c.Request().Context(), filter)
	if err != nil {
		return respondError(c, err)
	}

	type entryResp struct {
		ID            uint64  `json:"id"`
		PatientID     uint64  `json:"patient_id"`
		SpecialtyID   uint64  `json:"specialty_id"`
		DoctorID      *uint64 `json:"doctor_id,omitempty"`
		LocationID    *uint64 `json:"location_id,omitempty"`
		Priority      string  `json:"priority"`
		Notes         string  `json:"notes,omitempty"`
		Status        string  `json:"status"`
		AppointmentID *uint64 `json:"appointment_id,omitempty"`
		CreatedAt     string  `json:"created_at"`
	}
	out := make([]entryResp, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResp{
			ID:            e.ID,
			PatientID:     e.PatientID,
			SpecialtyID:   e.SpecialtyID,
			DoctorID:      e.DoctorID,
			LocationID:    e.LocationID,
			Priority:      e.Priority.String(),
			Notes:         e.Notes,
			Status:        e.Status.String(),
			AppointmentID: e.AppointmentID,
			CreatedAt:     e.CreatedAt.Format(time.RFC3339),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": out})
}

// Stats returns the waiting-queue overview.
func (h *QueueHandler) Stats(c echo.Context) error {
	stats, err := h.Store.QueueStats(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": stats})
}

// Cancel removes a waiting entry from the queue.
func (h *QueueHandler) Cancel(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid queue entry id"})
	}
	if err := h.Queue.CancelWaitingEntry(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// TodayAvailability lists windows that can still take a booking today.
func (h *QueueHandler) TodayAvailability(c echo.Context) error {
	var specialtyID uint64
	if v := c.QueryParam("specialty_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid specialty_id"})
		}
		specialtyID = id
	}
	slots, err := h.Store.TodayAvailability(c.Request().Context(), h.Cal.Today(), specialtyID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": slots})
}

// publishAssigned pushes the event without blocking the response.
// Publish failures are logged by the publisher and ignored here.
func (h *QueueHandler) publishAssigned(ev queue.AppointmentAssignedEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.Events.PublishAppointmentAssigned(ctx, ev)
	}()
}
