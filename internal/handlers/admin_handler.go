package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/travelhub/booking-backend/internal/services"
)

// JobRunner exposes the background jobs to administrators
type JobRunner interface {
	GetJobStatus() map[string]interface{}
	RunReconcileNow(ctx context.Context) (*services.ReconcileReport, error)
}

// AdminHandler handles administrative job requests
type AdminHandler struct {
	jobs   JobRunner
	logger *logrus.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(jobs JobRunner, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{jobs: jobs, logger: logger}
}

// GetJobStatus handles GET /api/v1/admin/jobs
func (h *AdminHandler) GetJobStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.jobs.GetJobStatus())
}

// RunReconcile handles POST /api/v1/admin/reconcile
func (h *AdminHandler) RunReconcile(c *gin.Context) {
	report, err := h.jobs.RunReconcileNow(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.WithField("trips_repaired", report.TripsRepaired).Info("Manual seat reconciliation finished")
	c.JSON(http.StatusOK, gin.H{
		"message": "Seat reconciliation finished",
		"report":  report,
	})
}
