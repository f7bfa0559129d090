package roster

// Builder tracks the roster controls of one screen and derives descriptors
// from user actions. Any change other than the page number sends the user
// back to page 1.
type Builder struct {
	raw  RawFilters
	sort SortSpec
	page PageSpec
}

// NewBuilder starts from the default roster view.
func NewBuilder() *Builder {
	d := Default()
	return &Builder{
		sort: SortSpec{Field: d.SortField, Direction: d.SortDirection},
		page: PageSpec{Number: d.Page, Size: d.PageSize},
	}
}

// Descriptor returns the current descriptor.
func (b *Builder) Descriptor() Descriptor {
	return Build(b.raw, b.sort, b.page)
}

// SetSearch replaces the search text.
func (b *Builder) SetSearch(text string) Descriptor {
	return b.change(func(nb *Builder) { nb.raw.Search = text })
}

// SetStatus replaces the status filter.
func (b *Builder) SetStatus(status string) Descriptor {
	return b.change(func(nb *Builder) { nb.raw.Status = status })
}

// SetOwner replaces the owner filter.
func (b *Builder) SetOwner(owner string) Descriptor {
	return b.change(func(nb *Builder) { nb.raw.Owner = owner })
}

// SetLocation replaces the location filter.
func (b *Builder) SetLocation(location string) Descriptor {
	return b.change(func(nb *Builder) { nb.raw.Location = location })
}

// ToggleSort flips the direction of the active field or switches to a new
// field sorted descending.
func (b *Builder) ToggleSort(field SortField) Descriptor {
	return b.change(func(nb *Builder) {
		current := nb.Descriptor()
		if current.SortField == field {
			if current.SortDirection == Descending {
				nb.sort.Direction = Ascending
			} else {
				nb.sort.Direction = Descending
			}
			return
		}
		nb.sort = SortSpec{Field: field, Direction: Descending}
	})
}

// SetPageSize changes the page size.
func (b *Builder) SetPageSize(size int) Descriptor {
	return b.change(func(nb *Builder) { nb.page.Size = size })
}

// SetPage moves to page n.
func (b *Builder) SetPage(n int) Descriptor {
	b.page.Number = n
	return b.Descriptor()
}

func (b *Builder) change(mutate func(*Builder)) Descriptor {
	before := b.Descriptor()
	next := *b
	mutate(&next)
	if !sameView(before, next.Descriptor()) {
		next.page.Number = 1
	}
	*b = next
	return b.Descriptor()
}
