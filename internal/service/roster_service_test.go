package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/client-roster/internal/auth"
	"github.com/spec-kit/client-roster/internal/domain"
	"github.com/spec-kit/client-roster/internal/events"
	"github.com/spec-kit/client-roster/internal/repository"
	"github.com/spec-kit/client-roster/internal/roster"
	apperrors "github.com/spec-kit/client-roster/pkg/util/errorutil"
)

const day = 24 * time.Hour

type mutationResult struct {
	rec *domain.ClientRecord
	err error
}

func newSession(actor *domain.User, store *fakeClients, metrics *countingMetrics) *RosterService {
	seq := &sequence{}
	deps := RosterDependencies{
		ClientRepo: store,
		Clock:      fixedClock,
		NewID:      seq.next,
	}
	if metrics != nil {
		deps.Metrics = metrics
	}
	return NewRosterService(actor, deps)
}

func unownedCanvas(id string) domain.ClientRecord {
	return domain.ClientRecord{
		ID:              id,
		CompanyName:     strPtr("Acme " + id),
		Status:          domain.StatusCanvas,
		StatusChangedAt: baseTime.Add(-6 * day),
		CreatedAt:       baseTime.Add(-6 * day),
		UpdatedAt:       baseTime.Add(-time.Hour),
	}
}

func visibleRecord(t *testing.T, svc *RosterService, d roster.Descriptor, id string) (domain.ClientRecord, bool) {
	t.Helper()
	page, ok := svc.Cache().Get(d)
	require.True(t, ok, "page should be cached")
	for _, r := range page.Records {
		if r.ID == id {
			return r, true
		}
	}
	return domain.ClientRecord{}, false
}

func TestEmployeeClaimsUnownedCanvasLead(t *testing.T) {
	ctx := context.Background()
	employee := &domain.User{ID: "42", Role: domain.RoleEmployee}
	store := newFakeClients(unownedCanvas("r1"))
	svc := newSession(employee, store, nil)
	d := roster.Default()

	page, err := svc.Fetch(ctx, d)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.True(t, auth.CanView(&page.Records[0], employee))
	assert.Equal(t, roster.TierUrgent, roster.Classify(page.Records[0], baseTime).Tier)

	store.writeGate = make(chan struct{})
	store.writeStart = make(chan string, 1)
	done := make(chan mutationResult, 1)
	sale := domain.StatusSale
	go func() {
		rec, err := svc.Update(ctx, "r1", domain.ClientPatch{Status: &sale})
		done <- mutationResult{rec, err}
	}()
	<-store.writeStart

	optimistic, ok := visibleRecord(t, svc, d, "r1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusSale, optimistic.Status)
	assert.Equal(t, "42", domain.StringValue(optimistic.OwnerID))
	assert.Equal(t, "42", domain.StringValue(optimistic.EditedBy))
	assert.Equal(t, roster.TierNone, roster.Classify(optimistic, baseTime).Tier)

	close(store.writeGate)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "42", domain.StringValue(res.rec.OwnerID))

	confirmed, ok := visibleRecord(t, svc, d, "r1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusSale, confirmed.Status)
	assert.Equal(t, "42", domain.StringValue(confirmed.OwnerID))
	assert.Equal(t, "42", domain.StringValue(confirmed.EditedBy))
	assert.Zero(t, svc.Cache().PendingCount())
}

func TestFailedUpdateRevertsCache(t *testing.T) {
	ctx := context.Background()
	employee := &domain.User{ID: "42", Role: domain.RoleEmployee}
	store := newFakeClients(unownedCanvas("r1"))
	metrics := &countingMetrics{}
	svc := newSession(employee, store, metrics)
	d := roster.Default()

	before, err := svc.Fetch(ctx, d)
	require.NoError(t, err)

	store.writeGate = make(chan struct{})
	store.writeStart = make(chan string, 1)
	store.writeErr = errors.New("connection reset")
	done := make(chan mutationResult, 1)
	sale := domain.StatusSale
	go func() {
		rec, err := svc.Update(ctx, "r1", domain.ClientPatch{Status: &sale})
		done <- mutationResult{rec, err}
	}()
	<-store.writeStart

	optimistic, _ := visibleRecord(t, svc, d, "r1")
	assert.Equal(t, domain.StatusSale, optimistic.Status)

	close(store.writeGate)
	res := <-done
	require.Error(t, res.err)
	assert.True(t, apperrors.HasCode(res.err, apperrors.CodeTransport))

	after, ok := svc.Cache().Get(d)
	require.True(t, ok)
	assert.Equal(t, before, after)
	reverted := after.Records[0]
	assert.Equal(t, domain.StatusCanvas, reverted.Status)
	assert.Nil(t, reverted.OwnerID)
	assert.Nil(t, reverted.EditedBy)
	assert.Equal(t, []string{"update:failed"}, metrics.list())
}

func TestUpdateReassignsOwnership(t *testing.T) {
	ctx := context.Background()
	rec := unownedCanvas("r1")
	rec.OwnerID = strPtr("7")
	rec.EditedBy = strPtr("7")
	store := newFakeClients(rec)
	manager := &domain.User{ID: "9", Role: domain.RoleManager}
	svc := newSession(manager, store, nil)
	d := roster.Default()
	_, err := svc.Fetch(ctx, d)
	require.NoError(t, err)

	got, err := svc.Update(ctx, "r1", domain.ClientPatch{Notes: strPtr("called back")})
	require.NoError(t, err)
	assert.Equal(t, "9", domain.StringValue(got.OwnerID))
	assert.Equal(t, "9", domain.StringValue(got.EditedBy))

	cached, ok := visibleRecord(t, svc, d, "r1")
	require.True(t, ok)
	assert.Equal(t, "9", domain.StringValue(cached.OwnerID))
	assert.Equal(t, "called back", cached.Notes)
}

func TestUpdateIgnoresCallerSuppliedOwner(t *testing.T) {
	store := newFakeClients(unownedCanvas("r1"))
	svc := newSession(&domain.User{ID: "9", Role: domain.RoleAdmin}, store, nil)

	got, err := svc.Update(context.Background(), "r1", domain.ClientPatch{OwnerID: strPtr("someone-else")})
	require.NoError(t, err)
	assert.Equal(t, "9", domain.StringValue(got.OwnerID))
}

func TestUpdateOfVanishedRecordEvictsPage(t *testing.T) {
	ctx := context.Background()
	store := newFakeClients(unownedCanvas("r1"), unownedCanvas("r2"))
	svc := newSession(&domain.User{ID: "9", Role: domain.RoleManager}, store, nil)
	d := roster.Default()
	_, err := svc.Fetch(ctx, d)
	require.NoError(t, err)

	store.remove("r1")
	_, err = svc.Update(ctx, "r1", domain.ClientPatch{Notes: strPtr("x")})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	_, ok := svc.Cache().Get(d)
	assert.False(t, ok, "conflicting page should be evicted")

	page, err := svc.Fetch(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalCount)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	store := newFakeClients()
	svc := newSession(&domain.User{ID: "42", Role: domain.RoleEmployee}, store, nil)

	_, err := svc.Create(ctx, ClientDraft{FirstName: "Jan"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = svc.Create(ctx, ClientDraft{CompanyName: "Acme", Reminder: &domain.Reminder{Enabled: true, Note: "call"}})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = svc.Create(ctx, ClientDraft{CompanyName: "Acme", Status: "lost"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = svc.Update(ctx, "r1", domain.ClientPatch{CompanyName: strPtr("  ")})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = svc.Update(ctx, "r1", domain.ClientPatch{Reminder: &domain.Reminder{Enabled: true}})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	assert.Empty(t, store.writeLog())
	assert.Zero(t, svc.Cache().PendingCount())
}

func TestCreateCountsOnceAcrossConfirmAndRefresh(t *testing.T) {
	ctx := context.Background()
	store := newFakeClients(unownedCanvas("r1"), unownedCanvas("r2"))
	actor := &domain.User{ID: "42", Role: domain.RoleEmployee}
	svc := newSession(actor, store, nil)
	d := roster.Default()
	_, err := svc.Fetch(ctx, d)
	require.NoError(t, err)

	store.writeGate = make(chan struct{})
	store.writeStart = make(chan string, 1)
	done := make(chan mutationResult, 1)
	go func() {
		rec, err := svc.Create(ctx, ClientDraft{CompanyName: "Nowa Firma", Reminder: &domain.Reminder{Enabled: false}})
		done <- mutationResult{rec, err}
	}()
	<-store.writeStart

	pending, _ := svc.Cache().Get(d)
	assert.Equal(t, 3, pending.TotalCount)

	close(store.writeGate)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "42", domain.StringValue(res.rec.OwnerID))
	assert.Equal(t, domain.StatusCanvas, res.rec.Status)

	confirmed, _ := svc.Cache().Get(d)
	assert.Equal(t, 3, confirmed.TotalCount)
	assert.Len(t, confirmed.Records, 3)

	require.NoError(t, svc.Refresh(ctx))
	refreshed, _ := svc.Cache().Get(d)
	assert.Equal(t, 3, refreshed.TotalCount)
	assert.Len(t, refreshed.Records, 3)
}

func TestDeleteRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	store := newFakeClients(unownedCanvas("r1"), unownedCanvas("r2"))
	svc := newSession(&domain.User{ID: "1", Role: domain.RoleChief}, store, nil)
	d := roster.Default()
	before, err := svc.Fetch(ctx, d)
	require.NoError(t, err)

	store.writeErr = errors.New("timeout")
	err = svc.Delete(ctx, "r1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTransport))
	after, _ := svc.Cache().Get(d)
	assert.Equal(t, before, after)

	store.writeErr = nil
	require.NoError(t, svc.Delete(ctx, "r1"))
	after, _ = svc.Cache().Get(d)
	assert.Equal(t, 1, after.TotalCount)
	_, found := visibleRecord(t, svc, d, "r1")
	assert.False(t, found)
}

func TestMutationTimeoutRollsBack(t *testing.T) {
	store := newFakeClients(unownedCanvas("r1"))
	store.writeGate = make(chan struct{})
	svc := NewRosterService(&domain.User{ID: "9", Role: domain.RoleAdmin}, RosterDependencies{
		ClientRepo:      store,
		Clock:           fixedClock,
		MutationTimeout: 20 * time.Millisecond,
	})
	d := roster.Default()
	_, err := svc.Fetch(context.Background(), d)
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), "r1", domain.ClientPatch{Notes: strPtr("late")})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTransport))

	rec, _ := visibleRecord(t, svc, d, "r1")
	assert.Empty(t, rec.Notes)
	assert.Zero(t, svc.Cache().PendingCount())
}

func TestSameRecordMutationsRunInIssueOrder(t *testing.T) {
	ctx := context.Background()
	store := newFakeClients(unownedCanvas("r1"))
	svc := newSession(&domain.User{ID: "9", Role: domain.RoleAdmin}, store, nil)
	d := roster.Default()
	_, err := svc.Fetch(ctx, d)
	require.NoError(t, err)

	store.writeGate = make(chan struct{})
	store.writeStart = make(chan string, 2)
	first := make(chan mutationResult, 1)
	second := make(chan mutationResult, 1)
	sale := domain.StatusSale
	go func() {
		rec, err := svc.Update(ctx, "r1", domain.ClientPatch{Status: &sale})
		first <- mutationResult{rec, err}
	}()
	<-store.writeStart
	go func() {
		rec, err := svc.Update(ctx, "r1", domain.ClientPatch{Notes: strPtr("second")})
		second <- mutationResult{rec, err}
	}()
	require.Eventually(t, func() bool { return svc.Cache().PendingCount() == 2 }, time.Second, time.Millisecond)
	assert.Len(t, store.writeLog(), 1, "second mutation must wait for the first")

	visible, _ := visibleRecord(t, svc, d, "r1")
	assert.Equal(t, domain.StatusSale, visible.Status)
	assert.Equal(t, "second", visible.Notes)

	close(store.writeGate)
	require.NoError(t, (<-first).err)
	require.NoError(t, (<-second).err)
	assert.Equal(t, []string{"patch:r1", "patch:r1"}, store.writeLog())

	final, _ := visibleRecord(t, svc, d, "r1")
	assert.Equal(t, domain.StatusSale, final.Status)
	assert.Equal(t, "second", final.Notes)
	assert.Zero(t, svc.Cache().PendingCount())
}

func TestStaleFetchIsDiscarded(t *testing.T) {
	ctx := context.Background()
	sold := unownedCanvas("s1")
	sold.Status = domain.StatusSale
	store := newFakeClients(unownedCanvas("c1"), sold)
	svc := newSession(&domain.User{ID: "9", Role: domain.RoleManager}, store, nil)

	canvasView := roster.Build(roster.RawFilters{Status: "canvas"}, roster.SortSpec{}, roster.PageSpec{})
	saleView := roster.Build(roster.RawFilters{Status: "sale"}, roster.SortSpec{}, roster.PageSpec{})

	gate := make(chan struct{})
	store.queryGate = func(f repository.ClientFilter) <-chan struct{} {
		if f.Status != nil && *f.Status == domain.StatusCanvas {
			return gate
		}
		return nil
	}

	stale := make(chan error, 1)
	go func() {
		_, err := svc.Fetch(ctx, canvasView)
		stale <- err
	}()
	require.Eventually(t, func() bool { return len(store.filtersSeen()) == 1 }, time.Second, time.Millisecond)

	page, err := svc.Fetch(ctx, saleView)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)

	close(gate)
	require.NoError(t, <-stale)

	_, ok := svc.Cache().Get(canvasView)
	assert.False(t, ok, "result for an inactive descriptor must not be cached")
	current, ok := svc.Cache().Get(saleView)
	require.True(t, ok)
	assert.Equal(t, "s1", current.Records[0].ID)
	active, _ := svc.Active()
	assert.Equal(t, saleView, active)
}

func TestFetchScopesEmployeesAndOwnerFilter(t *testing.T) {
	ctx := context.Background()
	store := newFakeClients()

	employee := newSession(&domain.User{ID: "42", Role: domain.RoleEmployee}, store, nil)
	_, err := employee.Fetch(ctx, roster.Build(roster.RawFilters{Owner: "unassigned", Search: "  555 12 "}, roster.SortSpec{}, roster.PageSpec{}))
	require.NoError(t, err)
	f := store.lastFilter()
	require.NotNil(t, f.VisibleTo)
	assert.Equal(t, "42", *f.VisibleTo)
	assert.True(t, f.Unassigned)
	assert.Equal(t, "55512", f.SearchDigits)

	manager := newSession(&domain.User{ID: "9", Role: domain.RoleJuniorManager}, store, nil)
	_, err = manager.Fetch(ctx, roster.Build(roster.RawFilters{Owner: "42"}, roster.SortSpec{Field: roster.SortCompanyName, Direction: roster.Ascending}, roster.PageSpec{Number: 2, Size: 10}))
	require.NoError(t, err)
	f = store.lastFilter()
	assert.Nil(t, f.VisibleTo)
	require.NotNil(t, f.OwnerID)
	assert.Equal(t, "42", *f.OwnerID)
	assert.Equal(t, "company_name", f.SortColumn)
	assert.False(t, f.Descending)
	assert.Equal(t, 10, f.Limit)
	assert.Equal(t, 10, f.Offset)
}

func TestCreateBatchReportsPerItem(t *testing.T) {
	store := newFakeClients()
	svc := newSession(&domain.User{ID: "42", Role: domain.RoleEmployee}, store, nil)

	results := svc.CreateBatch(context.Background(), []ClientDraft{
		{CompanyName: "Alpha"},
		{FirstName: "no company"},
		{CompanyName: "Gamma"},
	})
	require.Len(t, results, 3)
	for i, res := range results {
		assert.Equal(t, i, res.Index)
	}
	assert.NoError(t, results[0].Err)
	assert.True(t, apperrors.HasCode(results[1].Err, apperrors.CodeValidation))
	assert.Nil(t, results[1].Record)
	assert.NoError(t, results[2].Err)
	assert.Len(t, store.writeLog(), 2)
}

func TestConfirmedMutationsPublishEvents(t *testing.T) {
	ctx := context.Background()
	dispatcher := events.NewInMemoryDispatcher(nil)
	var got []events.Event
	for _, et := range events.ClientEventTypes {
		dispatcher.Subscribe(et, func(_ context.Context, e events.Event) error {
			got = append(got, e)
			return nil
		})
	}
	store := newFakeClients(unownedCanvas("r1"))
	svc := NewRosterService(&domain.User{ID: "9", Role: domain.RoleAdmin}, RosterDependencies{
		ClientRepo: store,
		Dispatcher: dispatcher,
		Clock:      fixedClock,
	})

	_, err := svc.Update(ctx, "r1", domain.ClientPatch{Notes: strPtr("n")})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, "r1"))
	store.writeErr = errors.New("down")
	_, err = svc.Create(ctx, ClientDraft{CompanyName: "x"})
	require.Error(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, events.EventClientUpdated, got[0].Type)
	assert.Equal(t, "r1", got[0].ClientID)
	payload, ok := got[0].Payload.(events.ClientChangedPayload)
	require.True(t, ok)
	assert.Equal(t, "9", domain.StringValue(payload.Record.OwnerID))
	assert.Equal(t, events.EventClientDeleted, got[1].Type)
	assert.Nil(t, got[1].Payload)
}

func TestRowsMarkPendingAndResolveOwners(t *testing.T) {
	ctx := context.Background()
	owned := unownedCanvas("r2")
	owned.OwnerID = strPtr("7")
	store := newFakeClients(unownedCanvas("r1"), owned)
	actor := &domain.User{ID: "9", Role: domain.RoleAdmin}
	svc := newSession(actor, store, nil)
	page, err := svc.Fetch(ctx, roster.Default())
	require.NoError(t, err)

	rows := svc.Rows(page, nil, baseTime)
	require.Len(t, rows, 2)
	kinds := map[string]roster.OwnerKind{}
	for _, r := range rows {
		kinds[r.Record.ID] = r.Owner.Kind
		assert.False(t, r.Pending)
		assert.Equal(t, roster.TierUrgent, r.Staleness.Tier)
	}
	assert.Equal(t, roster.OwnerUnowned, kinds["r1"])
	assert.Equal(t, roster.OwnerInvisible, kinds["r2"])
}

func TestEmployeeLosesRecordClaimedElsewhere(t *testing.T) {
	ctx := context.Background()
	employee := &domain.User{ID: "42", Role: domain.RoleEmployee}
	store := newFakeClients(unownedCanvas("r1"), unownedCanvas("r2"))
	svc := newSession(employee, store, nil)
	d := roster.Default()

	page, err := svc.Fetch(ctx, d)
	require.NoError(t, err)
	require.Equal(t, 2, page.TotalCount)

	svc.ApplyChange(roster.ChangeEvent{ID: "r1", Patch: domain.ClientPatch{OwnerID: strPtr("77"), EditedBy: strPtr("77")}})

	page, err = svc.Fetch(ctx, d)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "r2", page.Records[0].ID)
	assert.Equal(t, 1, page.TotalCount)
	assert.Len(t, store.filtersSeen(), 1, "second fetch should be served from cache")
}

func TestRowsLeaveOutRecordsTheActorCannotView(t *testing.T) {
	employee := &domain.User{ID: "42", Role: domain.RoleEmployee}
	svc := newSession(employee, newFakeClients(), nil)

	foreign := unownedCanvas("r2")
	foreign.OwnerID = strPtr("77")
	mine := unownedCanvas("r3")
	mine.OwnerID = strPtr("42")
	page := roster.Page{Records: []domain.ClientRecord{unownedCanvas("r1"), foreign, mine}, TotalCount: 3}

	rows := svc.Rows(page, nil, baseTime)
	got := []string{}
	for _, r := range rows {
		got = append(got, r.Record.ID)
	}
	assert.Equal(t, []string{"r1", "r3"}, got)

	admin := newSession(&domain.User{ID: "1", Role: domain.RoleAdmin}, newFakeClients(), nil)
	assert.Len(t, admin.Rows(page, nil, baseTime), 3)
}

func TestPageIsCachedOnlyWhileActive(t *testing.T) {
	svc := newSession(&domain.User{ID: "9", Role: domain.RoleManager}, newFakeClients(), nil)
	canvasView := roster.Build(roster.RawFilters{Status: "canvas"}, roster.SortSpec{}, roster.PageSpec{})
	saleView := roster.Build(roster.RawFilters{Status: "sale"}, roster.SortSpec{}, roster.PageSpec{})
	page := roster.Page{Records: []domain.ClientRecord{unownedCanvas("c1")}, TotalCount: 1}

	svc.SetActive(saleView)
	assert.False(t, svc.putIfActive(canvasView, page))
	_, ok := svc.Cache().Get(canvasView)
	assert.False(t, ok)

	svc.SetActive(canvasView)
	assert.True(t, svc.putIfActive(canvasView, page))
	_, ok = svc.Cache().Get(canvasView)
	assert.True(t, ok)
}
