package roster

import (
	"time"

	"github.com/spec-kit/client-roster/internal/domain"
)

// Row is a client ready for display.
type Row struct {
	Record    domain.ClientRecord
	Owner     ResolvedOwner
	Staleness Classification
	Pending   bool
}

// Rows decorates a page with owner resolution and staleness evaluated at now.
// pending may be nil.
func Rows(page Page, knownUsers []domain.User, actor *domain.User, now time.Time, pending func(id string) bool) []Row {
	out := make([]Row, 0, len(page.Records))
	for _, rec := range page.Records {
		row := Row{
			Record:    rec,
			Owner:     ResolveOwner(rec, knownUsers, actor),
			Staleness: Classify(rec, now),
		}
		if pending != nil {
			row.Pending = pending(rec.ID)
		}
		out = append(out, row)
	}
	return out
}
