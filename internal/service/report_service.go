package service

import (
	"context"
	"time"

	"github.com/spec-kit/client-roster/internal/domain"
	"github.com/spec-kit/client-roster/internal/repository"
	"github.com/spec-kit/client-roster/internal/roster"
	apperrors "github.com/spec-kit/client-roster/pkg/util/errorutil"
)

// StatusReport summarizes the pipeline.
type StatusReport struct {
	Counts      map[domain.ClientStatus]int
	Total       int
	Escalations roster.EscalationCounts
	GeneratedAt time.Time
}

// ReportService builds pipeline reports.
type ReportService struct {
	clients repository.ClientRepository
}

// NewReportService constructs the service.
func NewReportService(clients repository.ClientRepository) *ReportService {
	return &ReportService{clients: clients}
}

// StatusSummary counts clients per status and classifies the canvas backlog at now.
func (s *ReportService) StatusSummary(ctx context.Context, actor *domain.User, now time.Time) (*StatusReport, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("actor required")
	}
	if !domain.HasReportsAccess(actor.Role) {
		return nil, apperrors.NewForbidden("reports access required")
	}

	counts, err := s.clients.StatusSummary(ctx, nil)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	canvas, err := s.clients.ListByStatus(ctx, domain.StatusCanvas, nil)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	report := &StatusReport{
		Counts:      make(map[domain.ClientStatus]int, len(domain.ClientStatuses)),
		Escalations: roster.Escalations(canvas, now),
		GeneratedAt: now,
	}
	for _, status := range domain.ClientStatuses {
		report.Counts[status] = counts[status]
		report.Total += counts[status]
	}
	return report, nil
}
