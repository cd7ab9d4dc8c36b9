package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/travelhub/booking-backend/internal/middleware"
	"github.com/travelhub/booking-backend/internal/models"
)

// Handlers groups the HTTP handlers mounted under /api/v1
type Handlers struct {
	Auth     *AuthHandler
	Trips    *TripHandler
	Bookings *BookingHandler
	Users    *UserHandler
	Admin    *AdminHandler
}

// RegisterRoutes mounts every API route on v1. requireAuth authenticates the
// caller and authLimit rate limits login and registration.
func RegisterRoutes(v1 *gin.RouterGroup, h Handlers, requireAuth, authLimit gin.HandlerFunc) {
	adminOnly := middleware.RequireRole(models.RoleAdmin)

	auth := v1.Group("/auth")
	{
		auth.POST("/register", authLimit, h.Auth.Register)
		auth.POST("/login", authLimit, h.Auth.Login)
		auth.POST("/refresh", h.Auth.RefreshToken)
		auth.POST("/logout", requireAuth, h.Auth.Logout)
		auth.GET("/me", requireAuth, h.Auth.Me)
	}

	trips := v1.Group("/trips")
	{
		trips.GET("", h.Trips.ListTrips)
		trips.GET("/:id", h.Trips.GetTrip)
		trips.POST("", requireAuth, adminOnly, h.Trips.CreateTrip)
		trips.PUT("/:id", requireAuth, adminOnly, h.Trips.UpdateTrip)
		trips.DELETE("/:id", requireAuth, adminOnly, h.Trips.DeleteTrip)
	}

	bookings := v1.Group("/bookings")
	bookings.Use(requireAuth)
	{
		bookings.POST("", h.Bookings.CreateBooking)
		bookings.GET("/my-bookings", h.Bookings.GetMyBookings)
		bookings.GET("", adminOnly, h.Bookings.GetAllBookings)
		bookings.GET("/:id", h.Bookings.GetBooking)
		bookings.PATCH("/:id/cancel", h.Bookings.CancelBooking)
		bookings.DELETE("/:id", adminOnly, h.Bookings.DeleteBooking)
	}

	users := v1.Group("/users")
	users.Use(requireAuth)
	{
		users.PUT("/profile", h.Users.UpdateProfile)
		users.PUT("/change-password", h.Users.ChangePassword)
		users.GET("", adminOnly, h.Users.ListUsers)
		users.GET("/stats", adminOnly, h.Users.GetStats)
	}

	admin := v1.Group("/admin")
	admin.Use(requireAuth, adminOnly)
	{
		admin.GET("/jobs", h.Admin.GetJobStatus)
		admin.POST("/reconcile", h.Admin.RunReconcile)
	}
}
