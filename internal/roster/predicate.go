package roster

import (
	"strings"
	"time"
	"unicode"

	"github.com/spec-kit/client-roster/internal/domain"
)

// Matches reports whether rec satisfies every filter of d.
func Matches(d Descriptor, rec domain.ClientRecord) bool {
	if d.Status != "" && rec.Status != d.Status {
		return false
	}
	switch {
	case d.Owner == "":
	case d.Owner == OwnerUnassigned:
		if rec.OwnerID != nil {
			return false
		}
	default:
		if rec.OwnerID == nil || *rec.OwnerID != d.Owner {
			return false
		}
	}
	if d.Location != "" && lower(domain.StringValue(rec.Location)) != d.Location {
		return false
	}
	return matchesSearch(d.Search, rec)
}

func matchesSearch(search string, rec domain.ClientRecord) bool {
	if search == "" {
		return true
	}
	for _, field := range []*string{rec.FirstName, rec.LastName, rec.CompanyName, rec.Email} {
		if field != nil && strings.Contains(lower(*field), search) {
			return true
		}
	}
	if rec.Phone != nil {
		if strings.Contains(lower(*rec.Phone), search) {
			return true
		}
		if digits := digitsOnly(search); digits != "" && strings.Contains(digitsOnly(*rec.Phone), digits) {
			return true
		}
	}
	return false
}

// SearchDigits returns the digits of a search term, used for phone matching.
func SearchDigits(search string) string {
	return digitsOnly(search)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Less orders a before b under d's sort. Missing values sort last in both
// directions; ties fall back to ascending id so ordering is total.
func Less(d Descriptor, a, b domain.ClientRecord) bool {
	cmp := compareField(d.SortField, a, b)
	if cmp != 0 {
		if cmp == nullOrder {
			return true
		}
		if cmp == -nullOrder {
			return false
		}
		if d.SortDirection == Ascending {
			return cmp < 0
		}
		return cmp > 0
	}
	return a.ID < b.ID
}

// nullOrder is returned by compareField when exactly one side is missing; it
// bypasses the direction flip.
const nullOrder = 2

func compareField(field SortField, a, b domain.ClientRecord) int {
	switch field {
	case SortCreatedAt:
		return compareTime(a.CreatedAt, b.CreatedAt)
	case SortFirstName:
		return compareText(a.FirstName, b.FirstName)
	case SortLastName:
		return compareText(a.LastName, b.LastName)
	case SortCompanyName:
		return compareText(a.CompanyName, b.CompanyName)
	case SortStatus:
		return strings.Compare(string(a.Status), string(b.Status))
	case SortStatusChangedAt:
		return compareTime(a.StatusChangedAt, b.StatusChangedAt)
	case SortLastContactAt:
		return compareOptionalTime(a.LastContactAt, b.LastContactAt)
	default:
		return compareTime(a.UpdatedAt, b.UpdatedAt)
	}
}

func compareTime(a, b time.Time) int {
	return a.Compare(b)
}

func compareOptionalTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -nullOrder
	case b == nil:
		return nullOrder
	}
	return a.Compare(*b)
}

func compareText(a, b *string) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -nullOrder
	case b == nil:
		return nullOrder
	}
	return strings.Compare(lower(*a), lower(*b))
}
