package dispatch

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// ==========================
// Test Helper Functions
// ==========================

var (
	sportID  = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	moviesID = uuid.MustParse("00000000-0000-0000-0000-00000000000c")

	joshID     = uuid.MustParse("10000000-0000-0000-0000-000000000002")
	harrisonID = uuid.MustParse("10000000-0000-0000-0000-000000000001")
	danID      = uuid.MustParse("10000000-0000-0000-0000-000000000003")

	joshSMSID      = uuid.MustParse("20000000-0000-0000-0000-000000000001")
	harrisonMailID = uuid.MustParse("20000000-0000-0000-0000-000000000002")
	harrisonSMSID  = uuid.MustParse("20000000-0000-0000-0000-000000000003")
)

type fakeFinder struct {
	categories map[uuid.UUID]models.Category
	users      []models.User
	err        error
}

func (f *fakeFinder) FindCategory(_ context.Context, id uuid.UUID) (models.Category, error) {
	if f.err != nil {
		return models.Category{}, f.err
	}
	c, ok := f.categories[id]
	if !ok {
		return models.Category{}, errors.NewNotFoundError("category", id.String())
	}
	return c, nil
}

func (f *fakeFinder) FindUsersSubscribedTo(_ context.Context, categoryID uuid.UUID) ([]models.User, error) {
	var out []models.User
	for _, u := range f.users {
		if u.IsSubscribedTo(categoryID) {
			out = append(out, u)
		}
	}
	return out, nil
}

type fakeAppender struct {
	mu      sync.Mutex
	batches [][]models.DeliveryLog
	err     error
}

func (a *fakeAppender) AppendDeliveryLogs(_ context.Context, batch []models.DeliveryLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.batches = append(a.batches, append([]models.DeliveryLog(nil), batch...))
	return nil
}

func (a *fakeAppender) rows() []models.DeliveryLog {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []models.DeliveryLog
	for _, b := range a.batches {
		out = append(out, b...)
	}
	return out
}

type recordingSink struct {
	batches int
	rows    int
	err     error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Consume(_ context.Context, batch []models.DeliveryLog) error {
	s.batches++
	s.rows += len(batch)
	return s.err
}

type recordingObserver struct {
	reports []*Report
}

func (o *recordingObserver) ObserveDispatch(_ context.Context, r *Report) {
	o.reports = append(o.reports, r)
}

func sportFixture() *fakeFinder {
	return &fakeFinder{
		categories: map[uuid.UUID]models.Category{
			sportID:  {ID: sportID, Name: "Sport", Description: "Sport news"},
			moviesID: {ID: moviesID, Name: "Movies", Description: "Movie news"},
		},
		users: []models.User{
			{
				ID: harrisonID, Name: "Harrison", Email: "harrison@example.com", PhoneNumber: "454545",
				Categories: []uuid.UUID{sportID, moviesID},
				Channels: []models.Channel{
					models.NewSMSChannel(harrisonSMSID, "SMS", "454545"),
					models.NewEmailChannel(harrisonMailID, "E-Mail", "harrison@example.com"),
				},
			},
			{
				ID: danID, Name: "Dan", Email: "dan@example.com",
				Categories: nil,
				Channels:   nil,
			},
			{
				ID: joshID, Name: "Josh", Email: "josh@example.com", PhoneNumber: "454545",
				Categories: []uuid.UUID{sportID},
				Channels:   []models.Channel{models.NewSMSChannel(joshSMSID, "SMS", "454545")},
			},
		},
	}
}

func sportMessage() models.Message {
	return models.Message{
		ID:       uuid.MustParse("30000000-0000-0000-0000-000000000001"),
		Body:     "Final score 2-1",
		Category: models.Category{ID: sportID, Name: "Sport"},
	}
}

type harness struct {
	orchestrator *Orchestrator
	appender     *fakeAppender
	sink         *recordingSink
	observer     *recordingObserver
}

func newHarness(t *testing.T, finder SubscriberFinder, notifiers map[models.ChannelKind]Notifier, timeout time.Duration) *harness {
	t.Helper()
	log := logger.NewTestLogger(t)
	if notifiers == nil {
		notifiers = DefaultNotifiers(NotifierOptions{Logger: log})
	}
	h := &harness{
		appender: &fakeAppender{},
		sink:     &recordingSink{},
		observer: &recordingObserver{},
	}
	h.orchestrator = NewOrchestrator(OrchestratorOptions{
		Resolver:    NewResolver(finder, log),
		Dispatcher:  NewDispatcher(notifiers, timeout, log),
		Recorder:    NewRecorder(h.appender, log, h.sink),
		MaxParallel: 2,
		Observers:   []ReportObserver{h.observer},
		Logger:      log,
	})
	return h
}

func states(r *Report) []State {
	out := []State{StateResolving}
	for _, tr := range r.Transitions {
		out = append(out, tr.To)
	}
	return out
}

// ==========================
// Orchestrator Tests
// ==========================

func TestDispatch_SportScenario(t *testing.T) {
	h := newHarness(t, sportFixture(), nil, time.Second)
	msg := sportMessage()

	report, err := h.orchestrator.Dispatch(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, StateDone, report.State)
	assert.Equal(t, 3, report.Targets)
	assert.Equal(t, 3, report.Delivered)
	assert.Empty(t, report.Skipped)
	assert.NoError(t, report.SkipErrors())

	rows := h.appender.rows()
	require.Len(t, rows, 3)
	assert.Len(t, h.appender.batches, 1, "logs must be written in one batch")

	assert.Equal(t, harrisonID, rows[0].UserID)
	assert.Equal(t, harrisonMailID, rows[0].ChannelID)
	assert.Equal(t, models.ChannelKindEmail, rows[0].ChannelKind)
	assert.Equal(t, "Notified to harrison@example.com by E-Mail, message: Final score 2-1", rows[0].Detail)

	assert.Equal(t, harrisonID, rows[1].UserID)
	assert.Equal(t, harrisonSMSID, rows[1].ChannelID)

	assert.Equal(t, joshID, rows[2].UserID)
	assert.Equal(t, models.ChannelKindSMS, rows[2].ChannelKind)
	assert.Equal(t, "Notified to josh@example.com by SMS, message: Final score 2-1", rows[2].Detail)

	for _, row := range rows {
		assert.Equal(t, msg.ID, row.MessageID)
		assert.NotEqual(t, uuid.Nil, row.ID)
		assert.False(t, row.Time.IsZero())
	}

	assert.Equal(t, 1, h.sink.batches)
	assert.Equal(t, 3, h.sink.rows)
	require.Len(t, h.observer.reports, 1)
	assert.Same(t, report, h.observer.reports[0])
}

func TestDispatch_IsDeterministic(t *testing.T) {
	var first []models.DeliveryLog
	for i := 0; i < 5; i++ {
		h := newHarness(t, sportFixture(), nil, time.Second)
		_, err := h.orchestrator.Dispatch(context.Background(), sportMessage())
		require.NoError(t, err)

		rows := h.appender.rows()
		if first == nil {
			first = rows
			continue
		}
		require.Len(t, rows, len(first))
		for j := range rows {
			assert.Equal(t, first[j].UserID, rows[j].UserID)
			assert.Equal(t, first[j].ChannelID, rows[j].ChannelID)
			assert.Equal(t, first[j].Detail, rows[j].Detail)
		}
	}
}

func TestDispatch_StateTransitions(t *testing.T) {
	h := newHarness(t, sportFixture(), nil, time.Second)

	report, err := h.orchestrator.Dispatch(context.Background(), sportMessage())
	require.NoError(t, err)

	assert.Equal(t, []State{StateResolving, StateDelivering, StateLogging, StateDone}, states(report))
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
}

func TestDispatch_NoSubscribers(t *testing.T) {
	finder := sportFixture()
	h := newHarness(t, finder, nil, time.Second)
	msg := sportMessage()
	msg.Category = models.Category{ID: moviesID}
	finder.users = finder.users[1:] // drop Harrison

	report, err := h.orchestrator.Dispatch(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, StateDone, report.State)
	assert.Zero(t, report.Targets)
	assert.Empty(t, h.appender.batches, "empty batch must not reach storage")
	assert.Zero(t, h.sink.batches)
}

func TestDispatch_MissingCategory(t *testing.T) {
	h := newHarness(t, sportFixture(), nil, time.Second)
	msg := sportMessage()
	msg.Category = models.Category{ID: uuid.New()}

	report, err := h.orchestrator.Dispatch(context.Background(), msg)
	require.Error(t, err)

	assert.True(t, stderrors.Is(err, ErrNotFound))
	assert.Equal(t, StateFailed, report.State)
	assert.Equal(t, []State{StateResolving, StateFailed}, states(report))
	assert.Empty(t, h.appender.rows())
	require.Len(t, h.observer.reports, 1)
}

func TestDispatch_LookupFailure(t *testing.T) {
	finder := sportFixture()
	finder.err = stderrors.New("connection refused")
	h := newHarness(t, finder, nil, time.Second)

	report, err := h.orchestrator.Dispatch(context.Background(), sportMessage())
	require.Error(t, err)

	assert.Equal(t, errors.ErrCodeSubscriberLookupFailed, errors.CodeOf(err))
	assert.Equal(t, StateFailed, report.State)
}

func TestDispatch_StorageFailure(t *testing.T) {
	h := newHarness(t, sportFixture(), nil, time.Second)
	h.appender.err = stderrors.New("disk full")

	report, err := h.orchestrator.Dispatch(context.Background(), sportMessage())
	require.Error(t, err)

	assert.True(t, stderrors.Is(err, ErrStorage))
	assert.Equal(t, StateFailed, report.State)
	assert.Equal(t, []State{StateResolving, StateDelivering, StateLogging, StateFailed}, states(report))
	assert.Equal(t, 3, report.Delivered)
	assert.Empty(t, report.Logs)
	assert.Zero(t, h.sink.batches, "sinks only see committed batches")

	summary := report.Summary()
	assert.Equal(t, "FAILED", summary["dispatchState"])
	assert.Equal(t, string(errors.ErrCodeStorage), summary["dispatchErrorCode"])
}

func TestDispatch_UnsupportedKindSkipsTarget(t *testing.T) {
	log := logger.NewTestLogger(t)
	notifiers := DefaultNotifiers(NotifierOptions{Logger: log})
	delete(notifiers, models.ChannelKindEmail)
	h := newHarness(t, sportFixture(), notifiers, time.Second)

	report, err := h.orchestrator.Dispatch(context.Background(), sportMessage())
	require.NoError(t, err)

	assert.Equal(t, StateDone, report.State)
	assert.Equal(t, 2, report.Delivered)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, harrisonMailID, report.Skipped[0].ChannelID)
	assert.Equal(t, errors.ErrCodeUnsupportedChannelKind, report.Skipped[0].Code)
	assert.True(t, stderrors.Is(report.SkipErrors(), ErrUnsupportedChannelKind))
	assert.Len(t, h.appender.rows(), 2)
}

func TestDispatch_TimeoutSkipsTarget(t *testing.T) {
	log := logger.NewTestLogger(t)
	notifiers := DefaultNotifiers(NotifierOptions{Logger: log})
	notifiers[models.ChannelKindEmail] = NotifierFunc(func(ctx context.Context, _ models.User, _ models.Channel, _ models.Message) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	h := newHarness(t, sportFixture(), notifiers, 20*time.Millisecond)

	report, err := h.orchestrator.Dispatch(context.Background(), sportMessage())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Delivered)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, errors.ErrCodeDeliveryTimeout, report.Skipped[0].Code)
	assert.True(t, stderrors.Is(report.SkipErrors(), ErrDeliveryTimeout))
}

func TestDispatch_FailedSendSkipsOnlyThatTarget(t *testing.T) {
	log := logger.NewTestLogger(t)
	notifiers := DefaultNotifiers(NotifierOptions{Logger: log})
	notifiers[models.ChannelKindSMS] = NotifierFunc(func(_ context.Context, u models.User, _ models.Channel, _ models.Message) (string, error) {
		if u.ID == joshID {
			return "", stderrors.New("gateway rejected")
		}
		return "SMS", nil
	})
	h := newHarness(t, sportFixture(), notifiers, time.Second)

	report, err := h.orchestrator.Dispatch(context.Background(), sportMessage())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Delivered)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, joshID, report.Skipped[0].UserID)
	assert.Equal(t, errors.ErrCodeDeliveryFailed, report.Skipped[0].Code)
	for _, row := range h.appender.rows() {
		assert.Equal(t, harrisonID, row.UserID)
	}
}

func TestDispatch_BoundedParallelism(t *testing.T) {
	var inFlight, peak int32
	slow := NotifierFunc(func(_ context.Context, _ models.User, _ models.Channel, _ models.Message) (string, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return "ok", nil
	})
	finder := sportFixture()
	for i := 0; i < 6; i++ {
		finder.users = append(finder.users, models.User{
			ID:         uuid.New(),
			Email:      "extra@example.com",
			Categories: []uuid.UUID{sportID},
			Channels:   []models.Channel{models.NewSMSChannel(uuid.New(), "SMS", "1234")},
		})
	}
	notifiers := map[models.ChannelKind]Notifier{
		models.ChannelKindSMS:   slow,
		models.ChannelKindEmail: slow,
	}
	h := newHarness(t, finder, notifiers, time.Second)

	report, err := h.orchestrator.Dispatch(context.Background(), sportMessage())
	require.NoError(t, err)

	assert.Equal(t, 9, report.Delivered)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestOnMessageCreated_SwallowsFailure(t *testing.T) {
	h := newHarness(t, sportFixture(), nil, time.Second)
	h.appender.err = stderrors.New("down")

	h.orchestrator.OnMessageCreated(context.Background(), sportMessage())

	require.Len(t, h.observer.reports, 1)
	assert.Equal(t, StateFailed, h.observer.reports[0].State)
}

// ==========================
// Resolver Tests
// ==========================

func TestResolve_CollapsesDuplicates(t *testing.T) {
	finder := sportFixture()
	josh := finder.users[2]
	josh.Channels = append(josh.Channels, josh.Channels[0])
	finder.users = append(finder.users, josh)

	targets, err := NewResolver(finder, logger.NewNoOpLogger()).Resolve(context.Background(), sportMessage())
	require.NoError(t, err)

	require.Len(t, targets, 3)
	assert.Equal(t, harrisonID, targets[0].User.ID)
	assert.Equal(t, harrisonID, targets[1].User.ID)
	assert.Equal(t, joshID, targets[2].User.ID)
}

// ==========================
// Notifier Tests
// ==========================

func TestPushNotifier_WithoutToken(t *testing.T) {
	n := NewPushNotifier(NotifierOptions{Logger: logger.NewTestLogger(t)})
	ch := models.NewPushChannel(uuid.New(), "Phone", "")

	target, err := n.Notify(context.Background(), models.User{ID: danID}, ch, sportMessage())
	require.NoError(t, err)
	assert.Equal(t, "Push Notification to unregistered device", target)
}

func TestDispatch_PushWithoutTokenIsLogged(t *testing.T) {
	finder := sportFixture()
	finder.users[1].Categories = []uuid.UUID{sportID}
	finder.users[1].Channels = []models.Channel{models.NewPushChannel(uuid.MustParse("20000000-0000-0000-0000-000000000009"), "Phone", "")}
	h := newHarness(t, finder, nil, time.Second)

	report, err := h.orchestrator.Dispatch(context.Background(), sportMessage())
	require.NoError(t, err)

	assert.Equal(t, 4, report.Delivered)
	var push []models.DeliveryLog
	for _, row := range h.appender.rows() {
		if row.ChannelKind == models.ChannelKindPush {
			push = append(push, row)
		}
	}
	require.Len(t, push, 1)
	assert.Equal(t, "Notified to dan@example.com by Push Notification, message: Final score 2-1", push[0].Detail)
}

func TestSMSNotifier_FallsBackToUserPhone(t *testing.T) {
	n := NewSMSNotifier(NotifierOptions{Logger: logger.NewNoOpLogger()})
	ch := models.NewSMSChannel(uuid.New(), "SMS", "")

	target, err := n.Notify(context.Background(), models.User{PhoneNumber: "454545"}, ch, sportMessage())
	require.NoError(t, err)
	assert.Equal(t, "SMS to 454545", target)

	target, err = n.Notify(context.Background(), models.User{}, ch, sportMessage())
	require.NoError(t, err)
	assert.Equal(t, "SMS to unregistered number", target)
}

func TestEmailNotifier_WithoutAnyAddress(t *testing.T) {
	n := NewEmailNotifier(NotifierOptions{Logger: logger.NewNoOpLogger()})
	ch := models.NewEmailChannel(uuid.New(), "Work", "")

	target, err := n.Notify(context.Background(), models.User{}, ch, sportMessage())
	require.NoError(t, err)
	assert.Equal(t, "E-Mail to unregistered address", target)
}

func TestDispatch_ChannelsWithoutAddressAreLogged(t *testing.T) {
	finder := sportFixture()
	finder.users[1].Categories = []uuid.UUID{sportID}
	finder.users[1].PhoneNumber = ""
	finder.users[1].Email = ""
	finder.users[1].Channels = []models.Channel{
		models.NewSMSChannel(uuid.MustParse("20000000-0000-0000-0000-00000000000a"), "Phone", ""),
		models.NewEmailChannel(uuid.MustParse("20000000-0000-0000-0000-00000000000b"), "Mail", ""),
	}
	h := newHarness(t, finder, nil, time.Second)

	report, err := h.orchestrator.Dispatch(context.Background(), sportMessage())
	require.NoError(t, err)

	assert.Equal(t, report.Targets, report.Delivered)
	assert.Empty(t, report.Skipped)
	assert.Len(t, h.appender.rows(), 5)
}

func TestEmailNotifier_PrefersChannelAddress(t *testing.T) {
	n := NewEmailNotifier(NotifierOptions{Logger: logger.NewNoOpLogger(), RedactAddresses: true})
	ch := models.NewEmailChannel(uuid.New(), "Work", "work@example.com")

	target, err := n.Notify(context.Background(), models.User{Email: "home@example.com"}, ch, sportMessage())
	require.NoError(t, err)
	assert.Equal(t, "E-Mail to work@example.com", target)
}

func TestDeliver_RedactsNotifiedUserLine(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := logger.NewZapAdapter(zap.New(core))
	d := NewDispatcher(DefaultNotifiers(NotifierOptions{Logger: log, RedactAddresses: true}), time.Second, log).
		WithRedaction(true)

	user := models.User{ID: joshID, Email: "josh@mal.com", PhoneNumber: "454545"}
	out := d.Deliver(context.Background(), user, models.NewSMSChannel(joshSMSID, "SMS", "454545"), sportMessage())
	require.True(t, out.Delivered)
	assert.Equal(t, "Notified to josh@mal.com by SMS, message: Final score 2-1", out.Log.Detail)

	lines := logs.FilterMessage("notified user").All()
	require.Len(t, lines, 1)
	fields := lines[0].ContextMap()
	assert.Equal(t, "j***@mal.com", fields["email"])
	assert.NotContains(t, fields, "message")
	assert.NotContains(t, fmt.Sprint(logs.All()), "josh@mal.com")
}

func TestRedact(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"harrison@x.com", "h*******@x.com"},
		{"454545", "****45"},
		{"ab", "**"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Redact(tt.in), tt.in)
	}
}

// ==========================
// Recorder and State Tests
// ==========================

func TestRecorder_SinkFailureDoesNotFailPersist(t *testing.T) {
	appender := &fakeAppender{}
	sink := &recordingSink{err: stderrors.New("index unavailable")}
	r := NewRecorder(appender, logger.NewTestLogger(t), sink)

	err := r.Persist(context.Background(), []models.DeliveryLog{{ID: uuid.New()}})
	require.NoError(t, err)
	assert.Len(t, appender.rows(), 1)
	assert.Equal(t, 1, sink.batches)
}

func TestRecorder_KeepsStorageError(t *testing.T) {
	orig := errors.NewStorageError(stderrors.New("tx aborted"))
	r := NewRecorder(&fakeAppender{err: orig}, logger.NewNoOpLogger())

	err := r.Persist(context.Background(), []models.DeliveryLog{{ID: uuid.New()}})
	assert.Same(t, orig, err)
}

func TestStateMachine_RejectsIllegalTransition(t *testing.T) {
	sm := newStateMachine(time.Now)
	assert.Error(t, sm.advance(StateLogging))
	require.NoError(t, sm.advance(StateDelivering))

	sm.fail()
	assert.Equal(t, StateFailed, sm.current)
	assert.True(t, sm.current.Terminal())

	sm.fail()
	assert.Len(t, sm.transitions, 2)
}

// ==========================
// Event Publishing Tests
// ==========================

type fakePublisher struct {
	subjects []string
	attrs    []map[string]string
	err      error
}

func (p *fakePublisher) PublishJSON(_ context.Context, subject string, _ interface{}, attrs map[string]string) (string, error) {
	p.subjects = append(p.subjects, subject)
	p.attrs = append(p.attrs, attrs)
	return "evt-1", p.err
}

func TestReportPublisher(t *testing.T) {
	pub := &fakePublisher{}
	rp := NewReportPublisher(pub, logger.NewTestLogger(t))

	rp.ObserveDispatch(context.Background(), &Report{MessageID: uuid.New(), State: StateDone})
	require.Len(t, pub.attrs, 1)
	assert.Equal(t, "dispatch.DONE", pub.attrs[0]["event"])

	pub.err = stderrors.New("throttled")
	rp.ObserveDispatch(context.Background(), &Report{MessageID: uuid.New(), State: StateFailed})
	assert.Len(t, pub.subjects, 2)
}
