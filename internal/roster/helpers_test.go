package roster

import (
	"time"

	"github.com/spec-kit/client-roster/internal/domain"
)

var baseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func client(id, company string, status domain.ClientStatus, updated time.Time) domain.ClientRecord {
	return domain.ClientRecord{
		ID:              id,
		CompanyName:     strPtr(company),
		Status:          status,
		StatusChangedAt: updated,
		CreatedAt:       updated,
		UpdatedAt:       updated,
	}
}
