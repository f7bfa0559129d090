package roster

import (
	"sync"
	"time"

	"github.com/spec-kit/client-roster/internal/domain"
)

// MutationKind identifies an optimistic mutation.
type MutationKind string

const (
	MutationCreate MutationKind = "create"
	MutationUpdate MutationKind = "update"
	MutationDelete MutationKind = "delete"
)

// Mutation is a locally applied change awaiting backend confirmation. For
// create and update Record holds the full optimistic row; delete only needs
// Record.ID. An update carrying Patch replays only the patched fields, so
// fields refreshed from the server underneath it stay current.
type Mutation struct {
	ID     string
	Kind   MutationKind
	Record domain.ClientRecord
	Patch  *domain.ClientPatch
}

// Outcome is the backend verdict on a mutation.
type Outcome int

const (
	OutcomeConfirmed Outcome = iota
	OutcomeFailed
	OutcomeConflict
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeFailed:
		return "failed"
	case OutcomeConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Page is one fetched roster page.
type Page struct {
	Descriptor Descriptor
	Records    []domain.ClientRecord
	TotalCount int
	FetchedAt  time.Time
}

func (p Page) clone() Page {
	out := p
	out.Records = make([]domain.ClientRecord, len(p.Records))
	for i := range p.Records {
		out.Records[i] = p.Records[i].Clone()
	}
	return out
}

func (p Page) indexOf(id string) int {
	for i := range p.Records {
		if p.Records[i].ID == id {
			return i
		}
	}
	return -1
}

// ChangeEvent is a pushed notification that a client changed server-side.
type ChangeEvent struct {
	ID      string
	Patch   domain.ClientPatch
	Deleted bool
}

type pendingMutation struct {
	mutation  Mutation
	confirmed bool
}

// Cache holds confirmed roster pages keyed by descriptor together with the
// queue of unconfirmed mutations. Visible pages are the confirmed base with
// the queue replayed in issuance order, so rolling a mutation back is
// dropping it from the queue. Cache performs no I/O and is safe for
// concurrent use.
type Cache struct {
	mu      sync.Mutex
	pages   map[Descriptor]Page
	pending []*pendingMutation
	canView func(domain.ClientRecord) bool
}

// NewCache returns an empty cache that admits every record.
func NewCache() *Cache {
	return &Cache{pages: make(map[Descriptor]Page)}
}

// SetVisibility installs the viewer's visibility predicate. Records it
// rejects are dropped wherever the cache places them, exactly like records
// that stop matching the filters. A nil predicate admits everything.
func (c *Cache) SetVisibility(canView func(domain.ClientRecord) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.canView = canView
	for d, page := range c.pages {
		c.pages[d] = c.dropHidden(page.clone())
	}
}

// DropPages forgets every cached page but keeps the pending mutations, which
// replay over whatever is fetched next.
func (c *Cache) DropPages() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages = make(map[Descriptor]Page)
}

// Get returns the visible page for d.
func (c *Cache) Get(d Descriptor) (Page, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	base, ok := c.pages[d]
	if !ok {
		return Page{}, false
	}
	return c.visible(base), true
}

// Put stores a freshly fetched page as the confirmed base for d. Pending
// mutations keep replaying on top of it, so a refresh never clobbers an
// unconfirmed edit.
func (c *Cache) Put(d Descriptor, page Page) {
	page.Descriptor = d
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[d] = c.dropHidden(page.clone())
}

// Descriptors lists the cached descriptors.
func (c *Cache) Descriptors() []Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Descriptor, 0, len(c.pages))
	for d := range c.pages {
		out = append(out, d)
	}
	return out
}

// ApplyOptimistic queues m and makes it visible immediately.
func (c *Cache) ApplyOptimistic(m Mutation) {
	m.Record = m.Record.Clone()
	if m.Patch != nil {
		patch := *m.Patch
		m.Patch = &patch
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, &pendingMutation{mutation: m})
}

// Reconcile settles mutation id. Confirmed mutations fold into the base,
// using server when provided; failed ones are dropped; conflicts drop the
// mutation and evict every page holding the record. Unknown or already
// settled ids are ignored. It reports whether the id was pending.
func (c *Cache) Reconcile(id string, outcome Outcome, server *domain.ClientRecord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := -1
	for i, p := range c.pending {
		if p.mutation.ID == id && !p.confirmed {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	entry := c.pending[idx]
	switch outcome {
	case OutcomeConfirmed:
		if server != nil && entry.mutation.Kind != MutationDelete {
			entry.mutation.Record = server.Clone()
			entry.mutation.Patch = nil
		}
		entry.confirmed = true
	case OutcomeConflict:
		c.remove(idx)
		c.evict(entry.mutation.Record.ID)
	default:
		c.remove(idx)
	}
	c.drain()
	return true
}

// Lookup returns the visible copy of record id from any cached page.
func (c *Cache) Lookup(id string) (domain.ClientRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, base := range c.pages {
		page := c.visible(base)
		if idx := page.indexOf(id); idx >= 0 {
			return page.Records[idx], true
		}
	}
	return domain.ClientRecord{}, false
}

// HasPending reports whether record id has an unconfirmed mutation.
func (c *Cache) HasPending(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pending {
		if p.mutation.Record.ID == id && !p.confirmed {
			return true
		}
	}
	return false
}

// PendingCount returns the number of queued mutations.
func (c *Cache) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Evict drops every cached page that holds record id, forcing a refetch.
func (c *Cache) Evict(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evict(id)
}

// Invalidate drops the page cached for d.
func (c *Cache) Invalidate(d Descriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pages, d)
}

// MergeChange folds a pushed change into the confirmed base of every page
// holding the record. Pending mutations still replay on top. A change stamped
// older than the cached row is ignored.
func (c *Cache) MergeChange(ev ChangeEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for d, page := range c.pages {
		idx := page.indexOf(ev.ID)
		if idx < 0 {
			continue
		}
		current := page.Records[idx]
		if !ev.Deleted && ev.Patch.UpdatedAt != nil && ev.Patch.UpdatedAt.Before(current.UpdatedAt) {
			// late echo of a change the base already moved past
			continue
		}
		page = page.clone()
		if ev.Deleted {
			page = removeAt(page, idx)
		} else {
			at := current.UpdatedAt
			if ev.Patch.UpdatedAt != nil {
				at = *ev.Patch.UpdatedAt
			}
			page = c.replaceOrDrop(d, page, idx, ev.Patch.Apply(current, at))
		}
		c.pages[d] = page
	}
}

// drain folds confirmed mutations into the base in issuance order, stopping
// at the first one still awaiting the backend.
func (c *Cache) drain() {
	for len(c.pending) > 0 && c.pending[0].confirmed {
		m := c.pending[0].mutation
		for d, page := range c.pages {
			c.pages[d] = c.applyMutation(d, page.clone(), m)
		}
		c.pending = c.pending[1:]
	}
}

func (c *Cache) remove(idx int) {
	c.pending = append(c.pending[:idx:idx], c.pending[idx+1:]...)
}

func (c *Cache) evict(id string) {
	for d, page := range c.pages {
		if page.indexOf(id) >= 0 || c.visible(page).indexOf(id) >= 0 {
			delete(c.pages, d)
		}
	}
}

func (c *Cache) visible(base Page) Page {
	page := base.clone()
	for _, p := range c.pending {
		page = c.applyMutation(base.Descriptor, page, p.mutation)
	}
	return page
}

// admits reports whether rec belongs on pages of d for this viewer.
func (c *Cache) admits(d Descriptor, rec domain.ClientRecord) bool {
	return Matches(d, rec) && (c.canView == nil || c.canView(rec))
}

func (c *Cache) dropHidden(page Page) Page {
	if c.canView == nil {
		return page
	}
	for i := len(page.Records) - 1; i >= 0; i-- {
		if !c.canView(page.Records[i]) {
			page = removeAt(page, i)
		}
	}
	return page
}

func (c *Cache) applyMutation(d Descriptor, page Page, m Mutation) Page {
	idx := page.indexOf(m.Record.ID)
	switch m.Kind {
	case MutationCreate:
		if !c.admits(d, m.Record) {
			return page
		}
		if idx >= 0 {
			page.Records[idx] = m.Record.Clone()
			return page
		}
		page.TotalCount++
		return insertSorted(d, page, m.Record.Clone())
	case MutationUpdate:
		if idx < 0 {
			return page
		}
		next := m.Record.Clone()
		if m.Patch != nil {
			next = m.Patch.Apply(page.Records[idx], m.Record.UpdatedAt)
		}
		return c.replaceOrDrop(d, page, idx, next)
	case MutationDelete:
		if idx < 0 {
			return page
		}
		return removeAt(page, idx)
	}
	return page
}

// insertSorted places rec where the sort puts it, keeping the page within its
// size. A row that sorts before
// the first row of a later page, or after the last row of a full page with
// more rows beyond it, belongs to a neighbouring page and is only counted.
func insertSorted(d Descriptor, page Page, rec domain.ClientRecord) Page {
	pos := sortPosition(d, page.Records, rec)
	if pos == 0 && d.Page > 1 && len(page.Records) > 0 {
		return page
	}
	full := len(page.Records) >= d.PageSize
	hasMore := d.Offset()+len(page.Records) < page.TotalCount-1
	if pos == len(page.Records) && full && hasMore {
		return page
	}
	page.Records = insertAt(page.Records, pos, rec)
	if len(page.Records) > d.PageSize {
		// the displaced last row now belongs to the next page
		page.Records = page.Records[:d.PageSize]
	}
	return page
}

func (c *Cache) replaceOrDrop(d Descriptor, page Page, idx int, rec domain.ClientRecord) Page {
	if !c.admits(d, rec) {
		return removeAt(page, idx)
	}
	page.Records = append(page.Records[:idx:idx], page.Records[idx+1:]...)
	pos := sortPosition(d, page.Records, rec)
	page.Records = insertAt(page.Records, pos, rec)
	return page
}

// sortPosition is the index of the first row rec sorts before. Rows are
// scanned linearly so a page ordered by the backend's collation is never
// reshuffled locally.
func sortPosition(d Descriptor, records []domain.ClientRecord, rec domain.ClientRecord) int {
	for i := range records {
		if Less(d, rec, records[i]) {
			return i
		}
	}
	return len(records)
}

func insertAt(records []domain.ClientRecord, pos int, rec domain.ClientRecord) []domain.ClientRecord {
	records = append(records, domain.ClientRecord{})
	copy(records[pos+1:], records[pos:])
	records[pos] = rec
	return records
}

func removeAt(page Page, idx int) Page {
	page.Records = append(page.Records[:idx:idx], page.Records[idx+1:]...)
	page.TotalCount--
	return page
}
