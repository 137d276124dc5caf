// Package handler contains the HTTP handlers of the scheduling API.
package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/citasalud/agenda/internal/model"
	"github.com/citasalud/agenda/internal/scheduling"
)

// respondError maps engine sentinels onto HTTP statuses.  Anything
// unrecognized is a 500 with a generic message; details stay in the
// server log.
func respondError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, scheduling.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, scheduling.ErrConflict),
		errors.Is(err, scheduling.ErrCapacityExceeded),
		errors.Is(err, scheduling.ErrNothingToRelease):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, scheduling.ErrValidation),
		errors.Is(err, scheduling.ErrInvalidRange),
		errors.Is(err, scheduling.ErrInvalidQuota),
		errors.Is(err, scheduling.ErrNoValidDays),
		errors.Is(err, model.ErrUnknownPriority):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
