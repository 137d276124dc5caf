package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/citasalud/agenda/internal/model"
	"github.com/citasalud/agenda/internal/repository"
	"github.com/citasalud/agenda/internal/scheduling"
)

// AppointmentHandler books and cancels appointments against a specific
// availability window.  Direct bookings consume window capacity only;
// the per-day quota plan belongs to the same-day assignment flow.
type AppointmentHandler struct {
	Ledger *scheduling.Ledger
	Store  *repository.Store
	Log    zerolog.Logger
}

func NewAppointmentHandler(l *scheduling.Ledger, s *repository.Store, log zerolog.Logger) *AppointmentHandler {
	return &AppointmentHandler{Ledger: l, Store: s, Log: log}
}

type bookReq struct {
	PatientID      uint64 `json:"patient_id"`
	AvailabilityID uint64 `json:"availability_id"`
}

// Book creates an appointment on the given window.  The capacity
// increment and the insert commit together; a full window rejects the
// booking with 409.
func (h *AppointmentHandler) Book(c echo.Context) error {
	var req bookReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.PatientID == 0 || req.AvailabilityID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "patient_id and availability_id required"})
	}

	ctx := c.Request().Context()
	var appt model.Appointment
	err := h.Store.InTx(ctx, func(tx scheduling.Tx) error {
		w, err := tx.WindowForUpdate(ctx, req.AvailabilityID)
		if err != nil {
			return err
		}
		if err := h.Ledger.IncrementTx(ctx, tx, req.AvailabilityID); err != nil {
			return err
		}
		appt = model.Appointment{
			PatientID:      req.PatientID,
			AvailabilityID: req.AvailabilityID,
			Status:         model.AppointmentPending,
			ScheduledAt:    w.Date,
		}
		return tx.CreateAppointment(ctx, &appt)
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"data": echo.Map{
			"appointment_id":  appt.ID,
			"availability_id": appt.AvailabilityID,
			"status":          appt.Status.String(),
		},
	})
}

// Cancel marks an appointment cancelled and releases its slot.  The
// release floors at zero, so a drifted counter never goes negative.
func (h *AppointmentHandler) Cancel(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid appointment id"})
	}

	ctx := c.Request().Context()
	err := h.Store.InTx(ctx, func(tx scheduling.Tx) error {
		appt, err := tx.AppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if appt.Status == model.AppointmentCancelled {
			return scheduling.ErrConflict
		}
		if err := tx.UpdateAppointmentStatus(ctx, id, model.AppointmentCancelled); err != nil {
			return err
		}
		if err := h.Ledger.DecrementTx(ctx, tx, appt.AvailabilityID); err != nil {
			if errors.Is(err, scheduling.ErrNothingToRelease) {
				h.Log.Warn().Uint64("window_id", appt.AvailabilityID).Uint64("appointment_id", id).
					Msg("appointments: cancel on a window with zero booked slots")
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
