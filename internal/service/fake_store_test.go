package service

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/client-roster/internal/domain"
	"github.com/spec-kit/client-roster/internal/repository"
)

var baseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func fixedClock() time.Time { return baseTime }

type sequence struct {
	mu sync.Mutex
	n  int
}

func (s *sequence) next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return "id-" + strconv.Itoa(s.n)
}

// fakeClients is an in-memory ClientRepository. Gates let tests hold a call
// open to observe the optimistic state.
type fakeClients struct {
	mu      sync.Mutex
	records map[string]domain.ClientRecord
	clock   func() time.Time

	queryGate  func(repository.ClientFilter) <-chan struct{}
	writeGate  chan struct{}
	writeStart chan string
	writeErr   error

	filters []repository.ClientFilter
	writes  []string
}

func newFakeClients(records ...domain.ClientRecord) *fakeClients {
	f := &fakeClients{records: make(map[string]domain.ClientRecord), clock: fixedClock}
	for _, r := range records {
		f.records[r.ID] = r.Clone()
	}
	return f
}

func (f *fakeClients) Query(ctx context.Context, filter repository.ClientFilter) ([]domain.ClientRecord, int, error) {
	f.mu.Lock()
	gate := f.queryGate
	f.filters = append(f.filters, filter)
	f.mu.Unlock()
	if gate != nil {
		if ch := gate(filter); ch != nil {
			select {
			case <-ch:
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	matched := []domain.ClientRecord{}
	for _, r := range f.records {
		if fakeMatches(filter, r) {
			matched = append(matched, r.Clone())
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	total := len(matched)
	start := min(filter.Offset, total)
	end := min(start+filter.Limit, total)
	return matched[start:end], total, nil
}

func fakeMatches(f repository.ClientFilter, r domain.ClientRecord) bool {
	if f.Status != nil && r.Status != *f.Status {
		return false
	}
	if f.Unassigned && r.OwnerID != nil {
		return false
	}
	if f.OwnerID != nil && domain.StringValue(r.OwnerID) != *f.OwnerID {
		return false
	}
	if f.Location != "" && !strings.EqualFold(domain.StringValue(r.Location), f.Location) {
		return false
	}
	if f.VisibleTo != nil {
		id := *f.VisibleTo
		if r.OwnerID != nil && *r.OwnerID != id && domain.StringValue(r.EditedBy) != id {
			return false
		}
	}
	if f.Search != "" {
		hay := strings.ToLower(strings.Join([]string{
			domain.StringValue(r.FirstName),
			domain.StringValue(r.LastName),
			domain.StringValue(r.CompanyName),
			domain.StringValue(r.Email),
			domain.StringValue(r.Phone),
		}, " "))
		if !strings.Contains(hay, strings.ToLower(f.Search)) {
			return false
		}
	}
	return true
}

func (f *fakeClients) begin(ctx context.Context, op string) error {
	f.mu.Lock()
	f.writes = append(f.writes, op)
	gate, started, err := f.writeGate, f.writeStart, f.writeErr
	f.mu.Unlock()
	if started != nil {
		started <- op
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeClients) GetByID(_ context.Context, id string) (*domain.ClientRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := r.Clone()
	return &out, nil
}

func (f *fakeClients) Insert(ctx context.Context, client *domain.ClientRecord) (*domain.ClientRecord, error) {
	if err := f.begin(ctx, "insert:"+client.ID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := client.Clone()
	rec.CreatedAt = f.clock()
	rec.UpdatedAt = f.clock()
	f.records[rec.ID] = rec
	out := rec.Clone()
	return &out, nil
}

func (f *fakeClients) Patch(ctx context.Context, id string, patch domain.ClientPatch) (*domain.ClientRecord, error) {
	if err := f.begin(ctx, "patch:"+id); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.records[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	rec := patch.Apply(current, f.clock())
	f.records[id] = rec
	out := rec.Clone()
	return &out, nil
}

func (f *fakeClients) Remove(ctx context.Context, id string) error {
	if err := f.begin(ctx, "remove:"+id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(f.records, id)
	return nil
}

func (f *fakeClients) StatusSummary(_ context.Context, visibleTo *string) (map[domain.ClientStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[domain.ClientStatus]int{}
	for _, r := range f.records {
		if fakeMatches(repository.ClientFilter{VisibleTo: visibleTo}, r) {
			out[r.Status]++
		}
	}
	return out, nil
}

func (f *fakeClients) ListByStatus(_ context.Context, status domain.ClientStatus, visibleTo *string) ([]domain.ClientRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.ClientRecord{}
	for _, r := range f.records {
		if fakeMatches(repository.ClientFilter{Status: &status, VisibleTo: visibleTo}, r) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (f *fakeClients) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, id)
}

func (f *fakeClients) lastFilter() repository.ClientFilter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filters[len(f.filters)-1]
}

func (f *fakeClients) filtersSeen() []repository.ClientFilter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]repository.ClientFilter(nil), f.filters...)
}

func (f *fakeClients) writeLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

// fakeUsers is an in-memory UserRepository.
type fakeUsers struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newFakeUsers(users ...domain.User) *fakeUsers {
	f := &fakeUsers{users: make(map[string]domain.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func (f *fakeUsers) List(_ context.Context, filter repository.UserFilter) ([]domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.User{}
	for _, u := range f.users {
		if len(filter.IDs) == 0 && filter.ReportsTo == nil {
			out = append(out, u)
			continue
		}
		match := false
		for _, id := range filter.IDs {
			if u.ID == id {
				match = true
			}
		}
		if filter.ReportsTo != nil && domain.StringValue(u.ManagerID) == *filter.ReportsTo {
			match = true
		}
		if match {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeUsers) UpdateManager(_ context.Context, id string, managerID *string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	u.ManagerID = managerID
	f.users[id] = u
	return &u, nil
}

func (f *fakeUsers) UpdateRole(_ context.Context, id string, role domain.Role) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	u.Role = role
	f.users[id] = u
	return &u, nil
}

type countingMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (m *countingMetrics) RecordMutation(kind, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, kind+":"+outcome)
}

func (m *countingMetrics) list() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.outcomes...)
}
