package dto

import (
	"time"

	"github.com/spec-kit/client-roster/internal/domain"
	"github.com/spec-kit/client-roster/internal/roster"
	"github.com/spec-kit/client-roster/internal/service"
)

// UserResponse is the wire form of a dashboard user.
type UserResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Role      string  `json:"role"`
	Phone     *string `json:"phone,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	Language  *string `json:"language,omitempty"`
	ManagerID *string `json:"manager_id"`
}

// AssignManagerRequest payload for PUT /users/:id/manager. A null or empty
// manager_id clears the manager.
type AssignManagerRequest struct {
	ManagerID *string `json:"manager_id"`
}

// ChangeRoleRequest payload for PUT /users/:id/role.
type ChangeRoleRequest struct {
	Role string `json:"role"`
}

// NewUserResponse renders u.
func NewUserResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      string(u.Role),
		Phone:     u.Phone,
		AvatarURL: u.AvatarURL,
		Language:  u.Language,
		ManagerID: u.ManagerID,
	}
}

// NewUserResponses renders a list of users.
func NewUserResponses(users []domain.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, NewUserResponse(u))
	}
	return out
}

// StatusReportResponse is the wire form of the status summary.
type StatusReportResponse struct {
	Counts      map[string]int          `json:"counts"`
	Total       int                     `json:"total"`
	Escalations roster.EscalationCounts `json:"canvas_escalations"`
	GeneratedAt time.Time               `json:"generated_at"`
}

// NewStatusReportResponse renders report.
func NewStatusReportResponse(report *service.StatusReport) StatusReportResponse {
	counts := make(map[string]int, len(report.Counts))
	for status, n := range report.Counts {
		counts[string(status)] = n
	}
	return StatusReportResponse{
		Counts:      counts,
		Total:       report.Total,
		Escalations: report.Escalations,
		GeneratedAt: report.GeneratedAt,
	}
}
