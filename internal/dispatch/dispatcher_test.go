package dispatch

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hookd/internal/catalog"
	"github.com/mattjoyce/hookd/internal/hook"
	"github.com/mattjoyce/hookd/internal/log"
	"github.com/mattjoyce/hookd/internal/registry"
	"github.com/mattjoyce/hookd/internal/registry/mocks"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR") // Suppress logs in tests
	os.Exit(m.Run())
}

// recorder registers handlers that append their ID to ran when they run.
type recorder struct {
	cat *catalog.Catalog
	ran []string
}

func newRecorder() *recorder {
	return &recorder{cat: catalog.New()}
}

func (r *recorder) add(t *testing.T, id string, kinds hook.KindSet, err error) {
	t.Helper()
	require.NoError(t, r.cat.Register(id, func() hook.Handler {
		return hook.Func(kinds, func(ctx context.Context, ev *hook.Event) error {
			r.ran = append(r.ran, id)
			return err
		})
	}))
}

type memJournal struct {
	entries []JournalEntry
	err     error
}

func (j *memJournal) Record(_ context.Context, e JournalEntry) error {
	j.entries = append(j.entries, e)
	return j.err
}

func TestDispatchOrderScenario(t *testing.T) {
	rec := newRecorder()
	rec.add(t, "ValidateTotals", hook.On(hook.BeforeCreate), nil)
	rec.add(t, "ApplyDiscount", hook.On(hook.BeforeCreate), nil)

	src := registry.StaticSource{
		{Entity: "Order", Context: hook.BeforeCreate, Order: 10, HandlerID: "ValidateTotals"},
		{Entity: "Order", Context: hook.BeforeCreate, Order: 20, HandlerID: "ApplyDiscount"},
	}

	err := New(src, rec.cat).Dispatch(context.Background(), "Order", hook.BeforeCreate, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ValidateTotals", "ApplyDiscount"}, rec.ran)
}

func TestDispatchRunsInExecutionOrder(t *testing.T) {
	rec := newRecorder()
	for _, id := range []string{"three", "one", "two"} {
		rec.add(t, id, hook.On(hook.AfterUpdate), nil)
	}
	src := registry.StaticSource{
		{Entity: "Invoice", Context: hook.AfterUpdate, Order: 3, HandlerID: "three"},
		{Entity: "Invoice", Context: hook.AfterUpdate, Order: 1, HandlerID: "one"},
		{Entity: "Invoice", Context: hook.AfterUpdate, Order: 2, HandlerID: "two"},
	}

	require.NoError(t, New(src, rec.cat).Dispatch(context.Background(), "Invoice", hook.AfterUpdate, nil))
	assert.Equal(t, []string{"one", "two", "three"}, rec.ran)
}

func TestDispatchTiesKeepRegistrationOrder(t *testing.T) {
	rec := newRecorder()
	for _, id := range []string{"first", "second", "early"} {
		rec.add(t, id, hook.On(hook.AfterCreate), nil)
	}
	src := registry.StaticSource{
		{Entity: "Invoice", Context: hook.AfterCreate, Order: 5, HandlerID: "first"},
		{Entity: "Invoice", Context: hook.AfterCreate, Order: 5, HandlerID: "second"},
		{Entity: "Invoice", Context: hook.AfterCreate, Order: 1, HandlerID: "early"},
	}

	require.NoError(t, New(src, rec.cat).Dispatch(context.Background(), "Invoice", hook.AfterCreate, nil))
	assert.Equal(t, []string{"early", "first", "second"}, rec.ran)
}

func TestDispatchUnknownEntity(t *testing.T) {
	rec := newRecorder()
	src := registry.StaticSource{
		{Entity: "Order", Context: hook.BeforeCreate, Order: 1, HandlerID: "x"},
	}
	d := New(src, rec.cat)

	for _, kind := range hook.Kinds() {
		err := d.Dispatch(context.Background(), "Shipment", kind, nil)
		assert.ErrorIs(t, err, hook.ErrNoHandlersRegistered, kind.String())
	}
	assert.Empty(t, rec.ran)
}

func TestDispatchUnusedContextIsNoop(t *testing.T) {
	rec := newRecorder()
	rec.add(t, "ValidateTotals", hook.On(hook.BeforeCreate), nil)
	src := registry.StaticSource{
		{Entity: "Order", Context: hook.BeforeCreate, Order: 1, HandlerID: "ValidateTotals"},
	}

	uow := New(src, rec.cat).Begin()
	require.NoError(t, uow.Dispatch(context.Background(), "Order", hook.AfterRestore, nil))
	assert.Empty(t, rec.ran)
	assert.Empty(t, uow.History())
}

func TestDispatchUnsupportedContextAborts(t *testing.T) {
	rec := newRecorder()
	rec.add(t, "ok", hook.On(hook.BeforeUpdate), nil)
	// Declared for after_update but registered under before_update.
	rec.add(t, "skewed", hook.On(hook.AfterUpdate), nil)
	rec.add(t, "never", hook.On(hook.BeforeUpdate), nil)

	src := registry.StaticSource{
		{Entity: "Order", Context: hook.BeforeUpdate, Order: 1, HandlerID: "ok"},
		{Entity: "Order", Context: hook.BeforeUpdate, Order: 2, HandlerID: "skewed"},
		{Entity: "Order", Context: hook.BeforeUpdate, Order: 3, HandlerID: "never"},
	}

	err := New(src, rec.cat).Dispatch(context.Background(), "Order", hook.BeforeUpdate, nil)
	assert.ErrorIs(t, err, hook.ErrUnsupportedContext)
	assert.Contains(t, err.Error(), `"skewed"`)
	assert.Contains(t, err.Error(), "before_update")
	assert.Equal(t, []string{"ok"}, rec.ran)
}

func TestDispatchHandlerNotFoundAborts(t *testing.T) {
	rec := newRecorder()
	rec.add(t, "later", hook.On(hook.AfterDelete), nil)

	src := registry.StaticSource{
		{Entity: "Order", Context: hook.AfterDelete, Order: 1, HandlerID: "Typo"},
		{Entity: "Order", Context: hook.AfterDelete, Order: 2, HandlerID: "later"},
	}

	err := New(src, rec.cat).Dispatch(context.Background(), "Order", hook.AfterDelete, nil)
	assert.ErrorIs(t, err, hook.ErrHandlerNotFound)
	assert.Empty(t, rec.ran)
}

func TestDispatchHandlerErrorPropagatesUnchanged(t *testing.T) {
	boom := errors.New("totals do not match")
	rec := newRecorder()
	rec.add(t, "ValidateTotals", hook.On(hook.BeforeCreate), boom)
	rec.add(t, "ApplyDiscount", hook.On(hook.BeforeCreate), nil)

	src := registry.StaticSource{
		{Entity: "Order", Context: hook.BeforeCreate, Order: 10, HandlerID: "ValidateTotals"},
		{Entity: "Order", Context: hook.BeforeCreate, Order: 20, HandlerID: "ApplyDiscount"},
	}

	uow := New(src, rec.cat).Begin()
	err := uow.Dispatch(context.Background(), "Order", hook.BeforeCreate, nil)
	assert.True(t, err == boom, "handler error must not be wrapped, got %v", err)
	assert.Equal(t, []string{"ValidateTotals"}, rec.ran)

	history := uow.History()
	require.Len(t, history, 1)
	assert.Equal(t, boom, history[0].Err)
}

func TestDispatchInvalidKind(t *testing.T) {
	d := New(registry.StaticSource{}, catalog.New())
	err := d.Dispatch(context.Background(), "Order", hook.Kind(0), nil)
	assert.ErrorIs(t, err, hook.ErrInvalidContext)
}

func TestDispatchSharesEventAcrossHandlers(t *testing.T) {
	cat := catalog.New()
	require.NoError(t, cat.Register("stamp", func() hook.Handler {
		return hook.Func(hook.On(hook.BeforeCreate), func(ctx context.Context, ev *hook.Event) error {
			for _, r := range ev.Records {
				r["stamped"] = true
			}
			return nil
		})
	}))
	var seen []any
	var uowID string
	require.NoError(t, cat.Register("read", func() hook.Handler {
		return hook.Func(hook.On(hook.BeforeCreate), func(ctx context.Context, ev *hook.Event) error {
			uowID = ev.UnitOfWork
			for _, r := range ev.Records {
				seen = append(seen, r["stamped"])
			}
			return nil
		})
	}))

	src := registry.StaticSource{
		{Entity: "Order", Context: hook.BeforeCreate, Order: 1, HandlerID: "stamp"},
		{Entity: "Order", Context: hook.BeforeCreate, Order: 2, HandlerID: "read"},
	}
	records := []hook.Record{{"id": 1}, {"id": 2}}

	uow := New(src, cat).Begin()
	require.NoError(t, uow.Dispatch(context.Background(), "Order", hook.BeforeCreate, records))
	assert.Equal(t, []any{true, true}, seen)
	assert.Equal(t, true, records[0]["stamped"])
	assert.Equal(t, uow.ID(), uowID)
}

func TestCacheBuildsOncePerEntity(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	src := mocks.NewMockSource(ctrl)
	src.EXPECT().Registrations(gomock.Any(), "Order").Return([]registry.Registration{
		{Entity: "Order", Context: hook.BeforeCreate, Order: 1, HandlerID: "a"},
	}, nil).Times(1)
	src.EXPECT().Registrations(gomock.Any(), "Account").Return([]registry.Registration{
		{Entity: "Account", Context: hook.AfterCreate, Order: 1, HandlerID: "a"},
	}, nil).Times(1)

	rec := newRecorder()
	rec.add(t, "a", hook.On(hook.BeforeCreate, hook.AfterCreate), nil)

	uow := New(src, rec.cat).Begin()
	ctx := context.Background()

	first, err := uow.Cache().Registry(ctx, "Order")
	require.NoError(t, err)
	second, err := uow.Cache().Registry(ctx, "Order")
	require.NoError(t, err)
	assert.Same(t, first, second)

	for i := 0; i < 3; i++ {
		require.NoError(t, uow.Dispatch(ctx, "Order", hook.BeforeCreate, nil))
		require.NoError(t, uow.Dispatch(ctx, "Account", hook.AfterCreate, nil))
		require.NoError(t, uow.Dispatch(ctx, "Order", hook.AfterDelete, nil))
	}
	assert.Equal(t, 2, uow.Cache().Len())
	assert.Len(t, rec.ran, 6)
}

func TestCacheNormalisesEntityName(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	src := mocks.NewMockSource(ctrl)
	src.EXPECT().Registrations(gomock.Any(), "Order").Return([]registry.Registration{
		{Entity: "Order", Context: hook.BeforeCreate, Order: 1, HandlerID: "a"},
	}, nil).Times(1)

	var seen []string
	cat := catalog.New()
	cat.MustRegister("a", func() hook.Handler {
		return hook.Func(hook.On(hook.BeforeCreate), func(_ context.Context, ev *hook.Event) error {
			seen = append(seen, ev.Entity)
			return nil
		})
	})
	journal := &memJournal{}
	uow := New(src, cat, WithJournal(journal)).Begin()
	ctx := context.Background()

	plain, err := uow.Cache().Registry(ctx, "Order")
	require.NoError(t, err)
	padded, err := uow.Cache().Registry(ctx, " Order\t")
	require.NoError(t, err)
	assert.Same(t, plain, padded)
	assert.Equal(t, 1, uow.Cache().Len())

	require.NoError(t, uow.Dispatch(ctx, "  Order ", hook.BeforeCreate, nil))
	assert.Equal(t, []string{"Order"}, seen)
	require.Len(t, journal.entries, 1)
	assert.Equal(t, "Order", journal.entries[0].Entity)
	assert.Equal(t, "Order", uow.History()[0].Entity)
}

func TestCacheIsScopedToUnitOfWork(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	src := mocks.NewMockSource(ctrl)
	src.EXPECT().Registrations(gomock.Any(), "Order").Return([]registry.Registration{
		{Entity: "Order", Context: hook.BeforeCreate, Order: 1, HandlerID: "a"},
	}, nil).Times(2)

	rec := newRecorder()
	rec.add(t, "a", hook.On(hook.BeforeCreate), nil)
	d := New(src, rec.cat)

	a, b := d.Begin(), d.Begin()
	assert.NotEqual(t, a.ID(), b.ID())
	require.NoError(t, a.Dispatch(context.Background(), "Order", hook.BeforeCreate, nil))
	require.NoError(t, b.Dispatch(context.Background(), "Order", hook.BeforeCreate, nil))
}

func TestCacheReset(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	src := mocks.NewMockSource(ctrl)
	src.EXPECT().Registrations(gomock.Any(), "Order").Return([]registry.Registration{
		{Entity: "Order", Context: hook.BeforeCreate, Order: 1, HandlerID: "a"},
	}, nil).Times(2)

	c := NewCache(src)
	first, err := c.Registry(context.Background(), "Order")
	require.NoError(t, err)

	c.Reset()
	assert.Equal(t, 0, c.Len())

	second, err := c.Registry(context.Background(), "Order")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestCacheDoesNotKeepFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	src := mocks.NewMockSource(ctrl)
	src.EXPECT().Registrations(gomock.Any(), "Ghost").Return(nil, nil).Times(2)

	c := NewCache(src)
	for i := 0; i < 2; i++ {
		_, err := c.Registry(context.Background(), "Ghost")
		assert.ErrorIs(t, err, hook.ErrNoHandlersRegistered)
	}
	assert.Equal(t, 0, c.Len())
}

func TestJournalRecordsEachStep(t *testing.T) {
	boom := errors.New("boom")
	rec := newRecorder()
	rec.add(t, "ok", hook.On(hook.AfterCreate), nil)
	rec.add(t, "fails", hook.On(hook.AfterCreate), boom)

	src := registry.StaticSource{
		{Entity: "Order", Context: hook.AfterCreate, Order: 1, HandlerID: "ok"},
		{Entity: "Order", Context: hook.AfterCreate, Order: 2, HandlerID: "fails"},
		{Entity: "Order", Context: hook.BeforeCreate, Order: 1, HandlerID: "missing"},
	}

	j := &memJournal{}
	uow := New(src, rec.cat, WithJournal(j)).Begin()

	assert.Equal(t, boom, uow.Dispatch(context.Background(), "Order", hook.AfterCreate, nil))
	assert.ErrorIs(t, uow.Dispatch(context.Background(), "Order", hook.BeforeCreate, nil), hook.ErrHandlerNotFound)

	require.Len(t, j.entries, 3)
	assert.Equal(t, StatusSucceeded, j.entries[0].Status)
	assert.Equal(t, "ok", j.entries[0].HandlerID)
	assert.Equal(t, StatusFailed, j.entries[1].Status)
	assert.Equal(t, 1, j.entries[1].Position)
	assert.Equal(t, "boom", j.entries[1].Error)
	assert.Equal(t, StatusRejected, j.entries[2].Status)
	assert.Equal(t, hook.BeforeCreate, j.entries[2].Context)
	for _, e := range j.entries {
		assert.Equal(t, uow.ID(), e.UnitOfWork)
		assert.False(t, e.CompletedAt.Before(e.StartedAt))
	}
}

func TestJournalFailureDoesNotFailDispatch(t *testing.T) {
	rec := newRecorder()
	rec.add(t, "ok", hook.On(hook.AfterCreate), nil)
	src := registry.StaticSource{
		{Entity: "Order", Context: hook.AfterCreate, Order: 1, HandlerID: "ok"},
	}

	j := &memJournal{err: errors.New("disk full")}
	err := New(src, rec.cat, WithJournal(j)).Dispatch(context.Background(), "Order", hook.AfterCreate, nil)
	assert.NoError(t, err)
	assert.Len(t, j.entries, 1)
}

func TestCheck(t *testing.T) {
	h := hook.Func(hook.On(hook.BeforeCreate), nil)

	assert.NoError(t, Check(h, "h", hook.BeforeCreate))
	err := Check(h, "h", hook.AfterCreate)
	assert.ErrorIs(t, err, hook.ErrUnsupportedContext)
	assert.Contains(t, err.Error(), "after_create")
}
