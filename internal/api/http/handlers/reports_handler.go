package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/client-roster/internal/api/dto"
	"github.com/spec-kit/client-roster/internal/auth"
	"github.com/spec-kit/client-roster/internal/service"
)

// ReportsHandler exposes pipeline reports.
type ReportsHandler struct {
	reports *service.ReportService
	now     func() time.Time
}

// NewReportsHandler constructs handler.
func NewReportsHandler(reports *service.ReportService) *ReportsHandler {
	return &ReportsHandler{reports: reports, now: time.Now}
}

// StatusSummary handles GET /reports/status-summary.
func (h *ReportsHandler) StatusSummary(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	report, err := h.reports.StatusSummary(c.UserContext(), actor, h.now())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewStatusReportResponse(report)})
}
