// Package router wires HTTP routes to handlers and middleware.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/citasalud/agenda/internal/handler"
	"github.com/citasalud/agenda/internal/middleware"
	"github.com/citasalud/agenda/internal/model"
)

// RegisterRoutes registers the unauthenticated surface.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the staff auth endpoints.  Register, login,
// refresh and logout live under /v1/auth without a session; /v1/me
// requires a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.RequireRole(model.RoleAdmin, model.RoleStaff))
	auth.GET("/me", a.Me)
}

// RegisterScheduling registers the capacity, planning and
// redistribution endpoints.  Everything here is ADMIN only; capacity
// reads also admit STAFF.
func RegisterScheduling(e *echo.Echo, h *handler.SchedulingHandler, jwtSecret string) {
	admin := e.Group("/v1/availabilities")
	admin.Use(middleware.JWTAuth(jwtSecret))
	admin.Use(middleware.RequireRole(model.RoleAdmin))
	admin.POST("/:id/distribution", h.Distribute)
	admin.POST("/:id/redistribute", h.Redistribute)
	admin.POST("/:id/resync", h.Resync)

	read := e.Group("/v1/availabilities")
	read.Use(middleware.JWTAuth(jwtSecret))
	read.Use(middleware.RequireRole(model.RoleAdmin, model.RoleStaff))
	read.GET("/:id/distribution", h.GetDistribution)
	read.GET("/:id/capacity", h.Capacity)

	bulk := e.Group("/v1")
	bulk.Use(middleware.JWTAuth(jwtSecret))
	bulk.Use(middleware.RequireRole(model.RoleAdmin))
	bulk.POST("/redistribute-all", h.RedistributeAll)
	bulk.POST("/resync-all", h.ResyncAll)
}

// RegisterDailyQueue registers the same-day assignment endpoints for
// booking staff.
func RegisterDailyQueue(e *echo.Echo, h *handler.QueueHandler, jwtSecret string) {
	g := e.Group("/v1/daily-queue")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(model.RoleAdmin, model.RoleStaff))
	g.POST("/assign", h.Assign)
	g.POST("/process", h.Process)
	g.GET("", h.List)
	g.GET("/stats", h.Stats)
	g.GET("/today-availability", h.TodayAvailability)
	g.DELETE("/:id", h.Cancel)
}

// RegisterAppointments registers direct booking and cancellation.
func RegisterAppointments(e *echo.Echo, h *handler.AppointmentHandler, jwtSecret string) {
	g := e.Group("/v1/appointments")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(model.RoleAdmin, model.RoleStaff))
	g.POST("", h.Book)
	g.POST("/:id/cancel", h.Cancel)
}
