package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/spec-kit/client-roster/internal/auth"
	"github.com/spec-kit/client-roster/internal/domain"
	"github.com/spec-kit/client-roster/internal/events"
	"github.com/spec-kit/client-roster/internal/repository"
	"github.com/spec-kit/client-roster/internal/roster"
	apperrors "github.com/spec-kit/client-roster/pkg/util/errorutil"
)

// MutationRecorder observes mutation outcomes.
type MutationRecorder interface {
	RecordMutation(kind, outcome string)
}

// RosterDependencies bundles collaborators for a roster session.
type RosterDependencies struct {
	ClientRepo      repository.ClientRepository
	Dispatcher      events.Dispatcher
	Queue           *RecordQueue
	Metrics         MutationRecorder
	MutationTimeout time.Duration
	BatchWorkers    int
	Clock           func() time.Time
	NewID           func() string
}

// RosterService is one actor's roster session: it owns the page cache,
// tracks the active descriptor and coordinates optimistic mutations.
type RosterService struct {
	actor      *domain.User
	clients    repository.ClientRepository
	dispatcher events.Dispatcher
	queue      *RecordQueue
	metrics    MutationRecorder
	timeout    time.Duration
	workers    int
	now        func() time.Time
	newID      func() string

	cache   *roster.Cache
	fetches singleflight.Group
	issueMu sync.Mutex

	mu        sync.Mutex
	active    roster.Descriptor
	hasActive bool
}

// ClientDraft is a new client as entered by the actor.
type ClientDraft struct {
	ID            string
	FirstName     string
	LastName      string
	CompanyName   string
	TaxID         string
	Phone         string
	Email         string
	Website       string
	Location      string
	Status        domain.ClientStatus
	LastContactAt *time.Time
	Notes         string
	Reminder      *domain.Reminder
}

// BatchResult is the outcome of one draft in CreateBatch.
type BatchResult struct {
	Index  int
	Record *domain.ClientRecord
	Err    error
}

// NewRosterService builds a session for actor.
func NewRosterService(actor *domain.User, deps RosterDependencies) *RosterService {
	return newRosterService(actor, deps, roster.NewCache())
}

// newRosterService builds a session over cache, which may carry pages and
// pending mutations from an earlier session of the same actor.
func newRosterService(actor *domain.User, deps RosterDependencies, cache *roster.Cache) *RosterService {
	s := &RosterService{
		actor:      actor,
		clients:    deps.ClientRepo,
		dispatcher: deps.Dispatcher,
		queue:      deps.Queue,
		metrics:    deps.Metrics,
		timeout:    deps.MutationTimeout,
		workers:    deps.BatchWorkers,
		now:        deps.Clock,
		newID:      deps.NewID,
		cache:      cache,
		active:     roster.Default(),
	}
	if s.queue == nil {
		s.queue = NewRecordQueue()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.workers <= 0 {
		s.workers = 4
	}
	cache.SetVisibility(s.canView)
	return s
}

// Actor returns the session owner.
func (s *RosterService) Actor() *domain.User {
	return s.actor
}

// Cache exposes the session cache.
func (s *RosterService) Cache() *roster.Cache {
	return s.cache
}

// SetActive marks d as the descriptor on screen. Fetches for any other
// descriptor that complete afterwards are not cached.
func (s *RosterService) SetActive(d roster.Descriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = d
	s.hasActive = true
}

// Active returns the active descriptor.
func (s *RosterService) Active() (roster.Descriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.hasActive
}

// putIfActive caches page only while d is still on screen. The check and the
// write happen under one lock so a concurrent SetActive cannot slip between.
func (s *RosterService) putIfActive(d roster.Descriptor, page roster.Page) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasActive || s.active != d {
		return false
	}
	s.cache.Put(d, page)
	return true
}

func (s *RosterService) canView(rec domain.ClientRecord) bool {
	return auth.CanView(&rec, s.actor)
}

// Fetch makes d active and returns its page, from cache when present.
func (s *RosterService) Fetch(ctx context.Context, d roster.Descriptor) (roster.Page, error) {
	s.SetActive(d)
	if page, ok := s.cache.Get(d); ok {
		return page, nil
	}
	return s.load(ctx, d)
}

// Refresh refetches the active descriptor. Pending mutations keep replaying
// over the new base.
func (s *RosterService) Refresh(ctx context.Context) error {
	d, ok := s.Active()
	if !ok {
		return nil
	}
	_, err := s.load(ctx, d)
	return err
}

func (s *RosterService) load(ctx context.Context, d roster.Descriptor) (roster.Page, error) {
	v, err, _ := s.fetches.Do(fmt.Sprintf("%+v", d), func() (any, error) {
		records, total, err := s.clients.Query(ctx, s.filter(d))
		if err != nil {
			return roster.Page{}, err
		}
		page := roster.Page{Descriptor: d, Records: records, TotalCount: total, FetchedAt: s.now()}
		if !s.putIfActive(d, page) {
			return page, nil
		}
		if visible, ok := s.cache.Get(d); ok {
			return visible, nil
		}
		return page, nil
	})
	if err != nil {
		return roster.Page{}, apperrors.NewTransportError(err, map[string]any{"operation": "query"})
	}
	return v.(roster.Page), nil
}

func (s *RosterService) filter(d roster.Descriptor) repository.ClientFilter {
	f := repository.ClientFilter{
		Search:       d.Search,
		SearchDigits: roster.SearchDigits(d.Search),
		Location:     d.Location,
		SortColumn:   string(d.SortField),
		Descending:   d.SortDirection == roster.Descending,
		Limit:        d.Limit(),
		Offset:       d.Offset(),
	}
	if d.Status != "" {
		status := d.Status
		f.Status = &status
	}
	switch d.Owner {
	case "":
	case roster.OwnerUnassigned:
		f.Unassigned = true
	default:
		owner := d.Owner
		f.OwnerID = &owner
	}
	if s.actor.Role == domain.RoleEmployee {
		id := s.actor.ID
		f.VisibleTo = &id
	}
	return f
}

// Rows decorates page for display, leaving out records the actor may not view.
func (s *RosterService) Rows(page roster.Page, knownUsers []domain.User, now time.Time) []roster.Row {
	visible := page
	visible.Records = make([]domain.ClientRecord, 0, len(page.Records))
	for _, rec := range page.Records {
		if s.canView(rec) {
			visible.Records = append(visible.Records, rec)
		}
	}
	return roster.Rows(visible, knownUsers, s.actor, now, s.cache.HasPending)
}

// ApplyChange merges a pushed change into the cache.
func (s *RosterService) ApplyChange(ev roster.ChangeEvent) {
	s.cache.MergeChange(ev)
}

// Create inserts a client owned by the actor.
func (s *RosterService) Create(ctx context.Context, draft ClientDraft) (*domain.ClientRecord, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}
	now := s.now()
	rec := s.draftRecord(draft, now)
	m := roster.Mutation{ID: s.newID(), Kind: roster.MutationCreate, Record: rec}
	return s.run(ctx, m, func(ctx context.Context) (*domain.ClientRecord, error) {
		return s.clients.Insert(ctx, &rec)
	})
}

// CreateBatch creates every draft and reports a result per item. One failing
// draft does not affect the others.
func (s *RosterService) CreateBatch(ctx context.Context, drafts []ClientDraft) []BatchResult {
	results := make([]BatchResult, len(drafts))
	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, draft := range drafts {
		g.Go(func() error {
			rec, err := s.Create(ctx, draft)
			results[i] = BatchResult{Index: i, Record: rec, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Update patches client id. The actor becomes editor and owner.
func (s *RosterService) Update(ctx context.Context, id string, patch domain.ClientPatch) (*domain.ClientRecord, error) {
	if err := validatePatch(patch); err != nil {
		return nil, err
	}
	target, ok := s.cache.Lookup(id)
	if !ok {
		target = domain.ClientRecord{ID: id}
	}
	if !auth.CanEdit(&target, s.actor) {
		return nil, apperrors.NewForbidden("not allowed to edit this client")
	}

	actorID := s.actor.ID
	patch.EditedBy = &actorID
	patch.OwnerID = &actorID
	patch.UpdatedAt = nil

	now := s.now()
	m := roster.Mutation{
		ID:     s.newID(),
		Kind:   roster.MutationUpdate,
		Record: patch.Apply(target, now),
		Patch:  &patch,
	}
	return s.run(ctx, m, func(ctx context.Context) (*domain.ClientRecord, error) {
		return s.clients.Patch(ctx, id, patch)
	})
}

// Delete removes client id. Confirming with the user is the caller's job.
func (s *RosterService) Delete(ctx context.Context, id string) error {
	target, ok := s.cache.Lookup(id)
	if !ok {
		target = domain.ClientRecord{ID: id}
	}
	if !auth.CanDelete(&target, s.actor) {
		return apperrors.NewForbidden("not allowed to delete this client")
	}
	m := roster.Mutation{ID: s.newID(), Kind: roster.MutationDelete, Record: target}
	_, err := s.run(ctx, m, func(ctx context.Context) (*domain.ClientRecord, error) {
		return nil, s.clients.Remove(ctx, id)
	})
	return err
}

// run applies m optimistically, waits for the record's turn, makes a single
// backend attempt and reconciles the cache with the outcome.
func (s *RosterService) run(ctx context.Context, m roster.Mutation, call func(context.Context) (*domain.ClientRecord, error)) (*domain.ClientRecord, error) {
	s.issueMu.Lock()
	wait, release := s.queue.Enqueue(m.Record.ID)
	s.cache.ApplyOptimistic(m)
	s.issueMu.Unlock()

	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			go func() {
				<-wait
				release()
			}()
			s.settle(m, roster.OutcomeFailed, nil)
			return nil, apperrors.NewTransportError(ctx.Err(), mutationDetails(m))
		}
	}
	defer release()

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	server, err := call(callCtx)
	switch {
	case err == nil:
		s.settle(m, roster.OutcomeConfirmed, server)
		s.publish(ctx, m, server)
		if server == nil && m.Kind != roster.MutationDelete {
			rec := m.Record.Clone()
			return &rec, nil
		}
		return server, nil
	case isConflict(err):
		s.settle(m, roster.OutcomeConflict, nil)
		return nil, apperrors.NewConflict("client was changed or removed by someone else", mutationDetails(m))
	default:
		s.settle(m, roster.OutcomeFailed, nil)
		return nil, apperrors.NewTransportError(err, mutationDetails(m))
	}
}

func (s *RosterService) settle(m roster.Mutation, outcome roster.Outcome, server *domain.ClientRecord) {
	s.cache.Reconcile(m.ID, outcome, server)
	if s.metrics != nil {
		s.metrics.RecordMutation(string(m.Kind), outcome.String())
	}
}

func (s *RosterService) publish(ctx context.Context, m roster.Mutation, server *domain.ClientRecord) {
	if s.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		ClientID:  m.Record.ID,
		Actor:     events.Actor{UserID: s.actor.ID, Role: s.actor.Role},
		Timestamp: s.now(),
	}
	switch m.Kind {
	case roster.MutationCreate:
		event.Type = events.EventClientCreated
	case roster.MutationUpdate:
		event.Type = events.EventClientUpdated
	case roster.MutationDelete:
		event.Type = events.EventClientDeleted
	}
	if m.Kind != roster.MutationDelete {
		rec := m.Record
		if server != nil {
			rec = *server
		}
		event.Payload = events.ClientChangedPayload{Record: rec.Clone()}
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func (s *RosterService) draftRecord(draft ClientDraft, now time.Time) domain.ClientRecord {
	id := draft.ID
	if id == "" {
		id = s.newID()
	}
	status := draft.Status
	if status == "" {
		status = domain.StatusCanvas
	}
	owner := s.actor.ID
	rec := domain.ClientRecord{
		ID:              id,
		FirstName:       domain.OptionalText(draft.FirstName),
		LastName:        domain.OptionalText(draft.LastName),
		CompanyName:     domain.OptionalText(draft.CompanyName),
		TaxID:           domain.OptionalText(draft.TaxID),
		Phone:           domain.OptionalText(draft.Phone),
		Email:           domain.OptionalText(draft.Email),
		Website:         domain.OptionalText(draft.Website),
		Location:        domain.OptionalText(draft.Location),
		Status:          status,
		StatusChangedAt: now,
		LastContactAt:   draft.LastContactAt,
		OwnerID:         &owner,
		Notes:           draft.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if draft.Reminder != nil {
		r := *draft.Reminder
		rec.Reminder = &r
	}
	return rec
}

func validateDraft(draft ClientDraft) error {
	if strings.TrimSpace(draft.CompanyName) == "" {
		return apperrors.NewValidationError("company name is required", map[string]any{"field": "company_name"})
	}
	if draft.Status != "" && !draft.Status.Valid() {
		return apperrors.NewValidationError("unknown status", map[string]any{"field": "status", "value": draft.Status})
	}
	return validateReminder(draft.Reminder)
}

func validatePatch(patch domain.ClientPatch) error {
	if patch.CompanyName != nil && strings.TrimSpace(*patch.CompanyName) == "" {
		return apperrors.NewValidationError("company name is required", map[string]any{"field": "company_name"})
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return apperrors.NewValidationError("unknown status", map[string]any{"field": "status", "value": *patch.Status})
	}
	return validateReminder(patch.Reminder)
}

func validateReminder(r *domain.Reminder) error {
	if r != nil && r.Enabled && r.Date == nil {
		return apperrors.NewValidationError("reminder date is required when the reminder is enabled", map[string]any{"field": "reminder.date"})
	}
	return nil
}

func mutationDetails(m roster.Mutation) map[string]any {
	return map[string]any{"client_id": m.Record.ID, "mutation_id": m.ID, "kind": string(m.Kind)}
}

// isConflict reports errors meaning the record is gone or already exists.
func isConflict(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
