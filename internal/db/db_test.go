package db_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/placefeed/internal/db"
	"github.com/thebtf/placefeed/internal/db/dbtest"
)

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\% \_x\\`, db.EscapeLike(`100% _x\`))
	assert.Equal(t, `%ann%`, db.Contains("ann"))
	assert.Equal(t, `%a\_b%`, db.Contains("a_b"))
}

func TestQueryString(t *testing.T) {
	q := db.Query{
		Table:   "posts",
		Filters: []db.Filter{db.In("author_id", []string{"u1"}), db.Eq("place_id", "pl1")},
		Order:   &db.Order{Column: "created_at", Desc: true},
		Limit:   10,
	}
	assert.Equal(t, "posts author_id.in place_id.eq order=created_at.desc limit=10", q.String())
	assert.Equal(t, "places order=name.asc", db.Query{Table: "places", Order: &db.Order{Column: "name"}}.String())
}

func TestStoreError(t *testing.T) {
	assert.Equal(t, "permission denied", (&db.StoreError{Message: "permission denied"}).Error())
	assert.Equal(t, "permission denied (42501)", (&db.StoreError{Code: "42501", Message: "permission denied"}).Error())
}

func TestUnavailable(t *testing.T) {
	assert.NoError(t, db.Unavailable(nil))

	cause := errors.New("dial tcp: connection refused")
	err := db.Unavailable(cause)
	assert.True(t, db.IsUnavailable(err))
	assert.ErrorIs(t, err, cause)
	assert.False(t, db.IsUnavailable(cause))
}

func breakerConfig() db.BreakerConfig {
	cfg := db.DefaultBreakerConfig("test")
	cfg.MinRequests = 3
	cfg.FailureThreshold = 1
	cfg.Timeout = time.Hour
	return cfg
}

func TestBreaker_TripsOnUnavailable(t *testing.T) {
	store := dbtest.New()
	store.FailOn("places", db.Unavailable(errors.New("connection refused")))
	b := db.NewBreaker(store, breakerConfig())

	var rows []map[string]any
	for i := 0; i < 3; i++ {
		err := b.Select(context.Background(), db.Query{Table: "places"}, &rows)
		require.True(t, db.IsUnavailable(err))
	}
	assert.Equal(t, "open", b.State())

	err := b.Select(context.Background(), db.Query{Table: "places"}, &rows)
	assert.True(t, db.IsUnavailable(err))
	assert.Equal(t, 3, store.CallCount("places"), "open breaker must not reach the store")
}

func TestBreaker_StoreErrorsDoNotTrip(t *testing.T) {
	store := dbtest.New()
	store.FailOn("places", &db.StoreError{Code: "42703", Message: "column does not exist"})
	b := db.NewBreaker(store, breakerConfig())

	var rows []map[string]any
	for i := 0; i < 5; i++ {
		err := b.Select(context.Background(), db.Query{Table: "places"}, &rows)
		var storeErr *db.StoreError
		require.ErrorAs(t, err, &storeErr)
	}
	assert.Equal(t, "closed", b.State())
	assert.Equal(t, 5, store.CallCount("places"))
}

func TestBreaker_Ping(t *testing.T) {
	store := dbtest.New()
	b := db.NewBreaker(store, breakerConfig())
	require.NoError(t, b.Ping(context.Background()))

	store.FailPing(db.Unavailable(errors.New("down")))
	assert.True(t, db.IsUnavailable(b.Ping(context.Background())))
}

// blockingClient blocks every call until its context ends.
type blockingClient struct{}

func (blockingClient) Select(ctx context.Context, _ db.Query, _ any) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingClient) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestInstrument_TimeoutIsUnavailable(t *testing.T) {
	c := db.Instrument(blockingClient{}, 10*time.Millisecond)

	var rows []map[string]any
	err := c.Select(context.Background(), db.Query{Table: "posts"}, &rows)
	assert.True(t, db.IsUnavailable(err))
	assert.ErrorIs(t, c.Ping(context.Background()), context.DeadlineExceeded)
}

func TestInstrument_PassesThrough(t *testing.T) {
	store := dbtest.New()
	store.Seed("places", []map[string]any{{"id": "pl1", "name": "Cafe Uno"}})
	c := db.Instrument(store, 0)

	var rows []map[string]any
	require.NoError(t, c.Select(context.Background(), db.Query{Table: "places"}, &rows))
	assert.Len(t, rows, 1)

	store.FailOn("places", &db.StoreError{Message: "boom"})
	err := c.Select(context.Background(), db.Query{Table: "places"}, &rows)
	var storeErr *db.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.False(t, db.IsUnavailable(err))
}
