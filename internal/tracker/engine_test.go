package tracker_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	infralogger "github.com/tesobe-kodeaffe/clickcounter-backend/infrastructure/logger"
	infraredis "github.com/tesobe-kodeaffe/clickcounter-backend/infrastructure/redis"
	"github.com/tesobe-kodeaffe/clickcounter-backend/infrastructure/retry"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/codec"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/domain"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/metrics"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/storage"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/tracker"
)

func testAccounting(t *testing.T) domain.Accounting {
	t.Helper()

	acct, err := domain.NewAccounting("0.001", "5000")
	require.NoError(t, err)
	return acct
}

func testConfig(t *testing.T) tracker.Config {
	t.Helper()

	return tracker.Config{
		Accounting: testAccounting(t),
		Retry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
		},
		StorageTimeout: time.Second,
	}
}

type fixture struct {
	engine  *tracker.Engine
	store   *storage.MemoryRecordStore
	visits  *storage.MemoryVisitLog
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	f := fixture{
		store:   storage.NewMemoryRecordStore(),
		visits:  storage.NewMemoryVisitLog(0),
		metrics: metrics.New(),
	}
	f.engine = tracker.NewEngine(f.store, f.visits, testConfig(t), infralogger.NewNop(),
		tracker.WithMetrics(f.metrics))
	return f
}

func credited(name string) tracker.Click {
	return tracker.Click{Domain: name, FirstVisit: true, Source: tracker.SourceInside}
}

func TestEngine_CreateAndSerialize(t *testing.T) {
	t.Helper()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.MergeFragment(ctx, "foobar", []byte(`"foo":"bar"`))
	require.NoError(t, err)

	rec, err := f.engine.Get(ctx, "foobar")
	require.NoError(t, err)
	assert.Equal(t, `{"foo":"bar", "clickcount":0, "money":0.0, "status":0.0}`,
		codec.Serialize(rec, f.engine.Accounting()))
}

func TestEngine_MergeKeepsOrderAndIgnoresReserved(t *testing.T) {
	t.Helper()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.MergeFragment(ctx, "foobar", []byte(`{"a":1,"b":2}`))
	require.NoError(t, err)
	_, err = f.engine.MergeFragment(ctx, "foobar", []byte(`"b":3,"c":[1, 2],"ClickCount":99,"money":5`))
	require.NoError(t, err)

	rec, err := f.engine.Get(ctx, "foobar")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1, "b":3, "c":[1,2], "clickcount":0, "money":0.0, "status":0.0}`,
		codec.Serialize(rec, f.engine.Accounting()))
}

func TestEngine_MalformedFragmentCreatesNothing(t *testing.T) {
	t.Helper()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.MergeFragment(ctx, "foobar", []byte(`"foo":`))
	require.ErrorIs(t, err, domain.ErrMalformedPatch)

	_, err = f.engine.Get(ctx, "foobar")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEngine_Delete(t *testing.T) {
	t.Helper()

	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.Delete(ctx, "foobar"))

	_, err := f.engine.CreateOrMerge(ctx, "foobar", domain.NewFields())
	require.NoError(t, err)
	require.NoError(t, f.engine.Delete(ctx, "foobar"))

	_, err = f.engine.Get(ctx, "foobar")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEngine_AccountClick(t *testing.T) {
	t.Helper()

	tests := []struct {
		name      string
		click     tracker.Click
		wantCount int64
		wantBody  string
	}{
		{
			name:      "first visit from inside is credited",
			click:     credited("foobar"),
			wantCount: 1,
			wantBody:  `{ "clickcount":1, "money":0.001, "status":0.0000002}`,
		},
		{
			name:      "repeat visit is not credited",
			click:     tracker.Click{Domain: "foobar", FirstVisit: false, Source: tracker.SourceInside},
			wantCount: 0,
			wantBody:  `{ "clickcount":0, "money":0.0, "status":0.0}`,
		},
		{
			name:      "outside source is not credited",
			click:     tracker.Click{Domain: "foobar", FirstVisit: true, Source: "outside"},
			wantCount: 0,
			wantBody:  `{ "clickcount":0, "money":0.0, "status":0.0}`,
		},
		{
			name:      "source match is case sensitive",
			click:     tracker.Click{Domain: "foobar", FirstVisit: true, Source: "Inside"},
			wantCount: 0,
			wantBody:  `{ "clickcount":0, "money":0.0, "status":0.0}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			_, err := f.engine.CreateOrMerge(ctx, "foobar", domain.NewFields())
			require.NoError(t, err)

			tracked, err := f.engine.AccountClick(ctx, tt.click)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCount, tracked.ClickCount)
			assert.Equal(t, tt.wantBody, codec.SerializeStandardFields(tracked))

			rec, err := f.engine.Get(ctx, "foobar")
			require.NoError(t, err)
			assert.Equal(t, tt.wantCount, rec.ClickCount)
			assert.Len(t, f.visits.Events("foobar"), 1)
		})
	}
}

func TestEngine_AccountClickUnknownDomain(t *testing.T) {
	t.Helper()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.AccountClick(ctx, credited("nobody.example"))
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.engine.Get(ctx, "nobody.example")
	require.ErrorIs(t, err, domain.ErrNotFound, "a click must never create a record")

	// The visit is logged even though the domain is unknown.
	assert.Len(t, f.visits.Events("nobody.example"), 1)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.ClicksTotal.WithLabelValues(metrics.ClickNotFound)), 0)
}

func TestEngine_AccountClickPreservesCustomFields(t *testing.T) {
	t.Helper()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.MergeFragment(ctx, "foobar", []byte(`"foo":"bar"`))
	require.NoError(t, err)
	_, err = f.engine.AccountClick(ctx, credited("foobar"))
	require.NoError(t, err)

	rec, err := f.engine.Get(ctx, "foobar")
	require.NoError(t, err)
	assert.Equal(t, `{"foo":"bar", "clickcount":1, "money":0.001, "status":0.0000002}`,
		codec.Serialize(rec, f.engine.Accounting()))
}

func TestEngine_StatusStaysExact(t *testing.T) {
	t.Helper()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.CreateOrMerge(ctx, "foobar", domain.NewFields())
	require.NoError(t, err)

	var tracked domain.Tracked
	for range 1000 {
		tracked, err = f.engine.AccountClick(ctx, credited("foobar"))
		require.NoError(t, err)
	}

	assert.Equal(t, `{ "clickcount":1000, "money":1.0, "status":0.0002}`, codec.SerializeStandardFields(tracked))
}

func TestEngine_VisitEventFields(t *testing.T) {
	t.Helper()

	store := storage.NewMemoryRecordStore()
	visits := storage.NewMemoryVisitLog(0)
	stamp := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	engine := tracker.NewEngine(store, visits, testConfig(t), infralogger.NewNop(),
		tracker.WithClock(func() time.Time { return stamp }),
		tracker.WithDeviceClassifier(staticClassifier(domain.DeviceMobile)),
	)
	ctx := context.Background()
	_, err := engine.CreateOrMerge(ctx, "foobar", domain.NewFields())
	require.NoError(t, err)

	ref := "https://example.org/"
	_, err = engine.AccountClick(ctx, tracker.Click{
		Domain:        "foobar",
		RemoteAddress: "10.0.0.1",
		UserAgent:     "phone",
		Referrer:      &ref,
	})
	require.NoError(t, err)
	_, err = engine.AccountClick(ctx, tracker.Click{Domain: "foobar", IsBot: true})
	require.NoError(t, err)

	events := visits.Events("foobar")
	require.Len(t, events, 2)
	assert.Equal(t, "10.0.0.1", events[0].RemoteAddress)
	assert.Equal(t, "phone", events[0].UserAgent)
	assert.Equal(t, &ref, events[0].Referrer)
	assert.Equal(t, domain.DeviceMobile, events[0].DeviceType)
	assert.Equal(t, stamp, events[0].Timestamp)
	assert.NotEqual(t, events[0].ID, events[1].ID)
	assert.Nil(t, events[1].Referrer)
	assert.True(t, events[1].IsBot)
	assert.Equal(t, domain.DeviceBot, events[1].DeviceType)
}

func TestEngine_ConcurrentCreditedClicks(t *testing.T) {
	t.Helper()

	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.MergeFragment(ctx, "foobar", []byte(`"foo":"bar"`))
	require.NoError(t, err)

	const clicks = 500
	var wg sync.WaitGroup
	for range clicks {
		wg.Go(func() {
			_, clickErr := f.engine.AccountClick(ctx, credited("foobar"))
			assert.NoError(t, clickErr)
		})
	}
	// Config merges interleave with clicks without losing either.
	for i := range 20 {
		wg.Go(func() {
			body, _ := json.Marshal(map[string]int{"k": i})
			_, mergeErr := f.engine.MergeFragment(ctx, "foobar", body)
			assert.NoError(t, mergeErr)
		})
	}
	wg.Wait()

	rec, err := f.engine.Get(ctx, "foobar")
	require.NoError(t, err)
	assert.Equal(t, int64(clicks), rec.ClickCount)
	assert.Equal(t, "0.5", rec.Money.String())
	_, ok := rec.Custom.Get("foo")
	assert.True(t, ok)
	assert.Len(t, f.visits.Events("foobar"), clicks)
}

func TestEngine_RetriesTransientStoreErrors(t *testing.T) {
	t.Helper()

	inner := storage.NewMemoryRecordStore()
	flaky := &flakyStore{RecordStore: inner, failures: 2, err: domain.ErrConflict}
	m := metrics.New()
	engine := tracker.NewEngine(flaky, nil, testConfig(t), infralogger.NewNop(), tracker.WithMetrics(m))
	ctx := context.Background()

	_, err := inner.Update(ctx, "foobar", true, func(*domain.DomainRecord) error { return nil })
	require.NoError(t, err)

	tracked, err := engine.AccountClick(ctx, credited("foobar"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), tracked.ClickCount)
	assert.InDelta(t, 2, testutil.ToFloat64(m.StoreRetries), 0)
}

func TestEngine_RetryExhaustion(t *testing.T) {
	t.Helper()

	tests := []struct {
		name    string
		failure error
	}{
		{name: "conflict", failure: domain.ErrConflict},
		{name: "unavailable", failure: domain.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := storage.NewMemoryRecordStore()
			flaky := &flakyStore{RecordStore: inner, failures: 100, err: tt.failure}
			m := metrics.New()
			engine := tracker.NewEngine(flaky, nil, testConfig(t), infralogger.NewNop(), tracker.WithMetrics(m))
			ctx := context.Background()

			_, err := inner.Update(ctx, "foobar", true, func(*domain.DomainRecord) error { return nil })
			require.NoError(t, err)

			_, err = engine.AccountClick(ctx, credited("foobar"))
			require.ErrorIs(t, err, tt.failure)
			require.ErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
			assert.Equal(t, int32(3), flaky.calls.Load())
			assert.InDelta(t, 1, testutil.ToFloat64(m.StoreExhausted), 0)
			assert.InDelta(t, 1, testutil.ToFloat64(m.ClicksTotal.WithLabelValues(metrics.ClickError)), 0)

			rec, err := inner.Get(ctx, "foobar")
			require.NoError(t, err)
			assert.Equal(t, int64(0), rec.ClickCount, "failed credit must not change state")
		})
	}
}

func TestEngine_NotFoundIsNotRetried(t *testing.T) {
	t.Helper()

	flaky := &flakyStore{RecordStore: storage.NewMemoryRecordStore()}
	engine := tracker.NewEngine(flaky, nil, testConfig(t), infralogger.NewNop())

	_, err := engine.AccountClick(context.Background(), credited("foobar"))
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, int32(1), flaky.calls.Load())
}

// flakyStore fails the first failures updates with err.
type flakyStore struct {
	storage.RecordStore
	failures int32
	err      error
	calls    atomic.Int32
}

func (s *flakyStore) Update(
	ctx context.Context,
	name string,
	create bool,
	mutate storage.Mutation,
) (*domain.DomainRecord, error) {
	if s.calls.Add(1) <= s.failures {
		return nil, errors.Join(s.err, errors.New("injected"))
	}
	return s.RecordStore.Update(ctx, name, create, mutate)
}

type staticClassifier string

func (c staticClassifier) DeviceType(string) string { return string(c) }

func TestEngine_LostCommitIsNotRetried(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("foobar").
		WillReturnRows(sqlmock.NewRows([]string{"name", "click_count", "money", "custom_fields", "created_at", "updated_at"}).
			AddRow("foobar", 0, "0", []byte(`{}`), now, now))
	mock.ExpectExec("UPDATE domains").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(&net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")})

	m := metrics.New()
	engine := tracker.NewEngine(storage.NewPostgresRecordStore(db), storage.NewMemoryVisitLog(0),
		testConfig(t), infralogger.NewNop(), tracker.WithMetrics(m))

	_, err = engine.AccountClick(context.Background(), credited("foobar"))
	require.ErrorIs(t, err, domain.ErrOutcomeUnknown)
	assert.False(t, domain.IsTransient(err))

	// The click ran exactly one transaction.
	require.NoError(t, mock.ExpectationsWereMet())
	assert.InDelta(t, 0, testutil.ToFloat64(m.StoreRetries), 0)
}

func TestEngine_RedisConcurrentCreditsWithDefaultRetry(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := infraredis.NewClient(infraredis.Config{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	engine := tracker.NewEngine(storage.NewRedisRecordStore(client, ""), storage.NewMemoryVisitLog(0),
		tracker.Config{Accounting: testAccounting(t)}, infralogger.NewNop())
	ctx := context.Background()

	_, err = engine.MergeFragment(ctx, "foobar", []byte(`"foo":"bar"`))
	require.NoError(t, err)

	const clicks = 100
	var failed atomic.Int64
	var wg sync.WaitGroup
	for range clicks {
		wg.Go(func() {
			if _, clickErr := engine.AccountClick(ctx, credited("foobar")); clickErr != nil {
				failed.Add(1)
			}
		})
	}
	wg.Wait()

	assert.Zero(t, failed.Load())
	rec, err := engine.Get(ctx, "foobar")
	require.NoError(t, err)
	assert.Equal(t, `{"foo":"bar", "clickcount":100, "money":0.1, "status":0.00002}`,
		codec.Serialize(rec, engine.Accounting()))
}
