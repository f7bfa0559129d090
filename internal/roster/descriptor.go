// Package roster holds the client roster engine: query descriptors, the
// optimistic page cache, staleness tiers and owner resolution.
package roster

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/spec-kit/client-roster/internal/domain"
)

// SortField names a sortable client column.
type SortField string

const (
	SortUpdatedAt       SortField = "updated_at"
	SortCreatedAt       SortField = "created_at"
	SortFirstName       SortField = "first_name"
	SortLastName        SortField = "last_name"
	SortCompanyName     SortField = "company_name"
	SortStatus          SortField = "status"
	SortStatusChangedAt SortField = "status_changed_at"
	SortLastContactAt   SortField = "last_contact_at"
)

var sortFields = map[SortField]struct{}{
	SortUpdatedAt:       {},
	SortCreatedAt:       {},
	SortFirstName:       {},
	SortLastName:        {},
	SortCompanyName:     {},
	SortStatus:          {},
	SortStatusChangedAt: {},
	SortLastContactAt:   {},
}

// Valid reports whether f is a sortable column.
func (f SortField) Valid() bool {
	_, ok := sortFields[f]
	return ok
}

// Direction is a sort direction.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// OwnerUnassigned is the owner filter value selecting clients without an owner.
const OwnerUnassigned = "unassigned"

const filterAll = "all"

// DefaultPageSize is used when no or an unsupported page size is requested.
const DefaultPageSize = 25

// PageSizes are the supported page sizes.
var PageSizes = []int{10, 25, 50, 100}

// RawFilters are filter values as typed by the user. Empty or "all" means no constraint.
type RawFilters struct {
	Search   string
	Status   string
	Owner    string
	Location string
}

// SortSpec requests an ordering.
type SortSpec struct {
	Field     SortField
	Direction Direction
}

// PageSpec requests a page window.
type PageSpec struct {
	Number int
	Size   int
}

// Descriptor is the normalized, comparable roster query. Equal descriptors
// address the same cache entry. Zero-valued filter fields mean no constraint.
type Descriptor struct {
	Search        string
	Status        domain.ClientStatus
	Owner         string
	Location      string
	SortField     SortField
	SortDirection Direction
	Page          int
	PageSize      int
}

// Build normalizes user input into a descriptor.
func Build(raw RawFilters, sort SortSpec, page PageSpec) Descriptor {
	d := Descriptor{
		Search:        lower(raw.Search),
		Status:        domain.ClientStatus(normalizeFilter(raw.Status)),
		Owner:         normalizeFilter(raw.Owner),
		Location:      lower(normalizeFilter(raw.Location)),
		SortField:     sort.Field,
		SortDirection: sort.Direction,
		Page:          page.Number,
		PageSize:      page.Size,
	}
	if !d.SortField.Valid() {
		d.SortField = SortUpdatedAt
	}
	if d.SortDirection != Ascending {
		d.SortDirection = Descending
	}
	if d.Page < 1 {
		d.Page = 1
	}
	if !validPageSize(d.PageSize) {
		d.PageSize = DefaultPageSize
	}
	return d
}

// Default returns the descriptor of an untouched roster.
func Default() Descriptor {
	return Build(RawFilters{}, SortSpec{}, PageSpec{})
}

// Offset is the zero-based index of the first row on the page.
func (d Descriptor) Offset() int {
	return (d.Page - 1) * d.PageSize
}

// Limit is the page size.
func (d Descriptor) Limit() int {
	return d.PageSize
}

// HasFilters reports whether any narrowing filter is active.
func (d Descriptor) HasFilters() bool {
	return d.Search != "" || d.Status != "" || d.Owner != "" || d.Location != ""
}

// sameView reports whether a and b differ only in page number.
func sameView(a, b Descriptor) bool {
	a.Page, b.Page = 0, 0
	return a == b
}

func normalizeFilter(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, filterAll) {
		return ""
	}
	return v
}

func validPageSize(size int) bool {
	for _, s := range PageSizes {
		if s == size {
			return true
		}
	}
	return false
}

// lower trims and lower-cases text with Unicode rules that line up with the
// store's LOWER(), so local matching and the server agree ("Straße" stays
// "straße"). A Caser is stateful, so a fresh one is created per call.
func lower(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return cases.Lower(language.Und).String(s)
}
