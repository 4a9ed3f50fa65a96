package tools

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/placefeed/internal/db"
	"github.com/thebtf/placefeed/internal/db/dbtest"
	"github.com/thebtf/placefeed/internal/mcp"
	"github.com/thebtf/placefeed/pkg/models"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func at(hours int) time.Time { return base.Add(time.Duration(hours) * time.Hour) }

type fixture struct {
	srv   *mcp.Server
	store *dbtest.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := dbtest.New()

	store.Seed(models.ProfilesTable, []models.Profile{
		{ID: "u1", Username: "ann", DisplayName: strPtr("Ann Lee"), UpdatedAt: base},
		{ID: "u2", Username: "bob", DisplayName: strPtr("Bobby"), UpdatedAt: base},
		{ID: "u3", Username: "jo", DisplayName: strPtr("Joanna"), UpdatedAt: base},
		{ID: "u4", Username: "annabel", UpdatedAt: base},
		{ID: "u5", Username: "carl", DisplayName: strPtr("Carl"), UpdatedAt: base},
	})
	store.Seed(models.PlacesTable, []models.Place{
		{ID: "pl1", Name: "Cafe Uno", GenreTags: models.StringList{"cafe"}, UpdatedAt: base},
		{ID: "pl2", Name: "100% Ramen", UpdatedAt: base},
		{ID: "pl3", Name: "1000 Noodles", UpdatedAt: base},
	})
	store.Seed(models.PostsTable, []models.Post{
		{ID: "p1", AuthorID: "u1", PlaceID: strPtr("pl1"), Content: strPtr("flat white"), CreatedAt: at(1)},
		{ID: "p2", AuthorID: "u2", PlaceID: strPtr("pl2"), CreatedAt: at(2)},
		{ID: "p3", AuthorID: "u1", CreatedAt: at(3)},
		{ID: "p4", AuthorID: "u3", PlaceID: strPtr("ghost"), PlaceName: strPtr("Closed Bar"), CreatedAt: at(4)},
		{ID: "p5", AuthorID: "u5", PlaceID: strPtr("pl1"), CreatedAt: at(5)},
	})
	store.Seed(models.FollowsTable, []models.FollowEdge{
		{FollowerID: "u1", FolloweeID: "u2", Status: models.FollowAccepted, CreatedAt: at(0)},
		{FollowerID: "u1", FolloweeID: "u3", Status: models.FollowPending, CreatedAt: at(0)},
		{FollowerID: "u5", FolloweeID: "u1", Status: models.FollowAccepted, CreatedAt: at(1)},
		{FollowerID: "u2", FolloweeID: "u1", Status: models.FollowAccepted, CreatedAt: at(2)},
		{FollowerID: "u4", FolloweeID: "u1", Status: models.FollowRejected, CreatedAt: at(3)},
	})

	srv := mcp.NewServer("placefeed", "test")
	require.NoError(t, Register(srv, store))
	return &fixture{srv: srv, store: store}
}

func (f *fixture) call(t *testing.T, tool, args string) *mcp.CallToolResult {
	t.Helper()
	res, err := f.srv.Dispatch(context.Background(), tool, json.RawMessage(args))
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	require.Equal(t, "text", res.Content[0].Type)
	return res
}

type itemOf[T any] struct {
	Data *T `json:"data"`
}

type listOf[T any] struct {
	Data  []T `json:"data"`
	Count int `json:"count"`
}

func decode[T any](t *testing.T, res *mcp.CallToolResult) T {
	t.Helper()
	require.False(t, res.IsError, res.Content[0].Text)
	var out T
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &out))
	return out
}

func postIDs(posts []models.EnrichedPost) []string {
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{name: "missing", raw: `{}`, want: 10},
		{name: "null", raw: `{"limit":null}`, want: 10},
		{name: "negative", raw: `{"limit":-3}`, want: 10},
		{name: "zero", raw: `{"limit":0}`, want: 10},
		{name: "string", raw: `{"limit":"5"}`, want: 10},
		{name: "bool", raw: `{"limit":true}`, want: 10},
		{name: "object", raw: `{"limit":{"n":5}}`, want: 10},
		{name: "below one", raw: `{"limit":0.5}`, want: 1},
		{name: "one", raw: `{"limit":1}`, want: 1},
		{name: "fractional", raw: `{"limit":7.9}`, want: 7},
		{name: "max", raw: `{"limit":20}`, want: 20},
		{name: "above max", raw: `{"limit":21}`, want: 20},
		{name: "huge", raw: `{"limit":1e9}`, want: 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p limitParams
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &p))
			assert.Equal(t, tt.want, p.Limit.Int())
		})
	}

	assert.Equal(t, DefaultLimit, ClampLimit(math.Inf(1), true))
	assert.Equal(t, DefaultLimit, ClampLimit(math.NaN(), true))
	assert.Equal(t, DefaultLimit, ClampLimit(15, false))
}

func TestRegister_Catalogue(t *testing.T) {
	f := newFixture(t)

	names := make([]string, 0)
	for _, tool := range f.srv.Registry().List() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{
		"ping", "places_get", "places_search", "profiles_get", "profiles_search",
		"posts_recent", "posts_get", "posts_by_place", "follows_followers", "follows_following", "feed_home",
	}, names)

	assert.ErrorIs(t, Register(f.srv, f.store), mcp.ErrDuplicateTool)
}

func TestPing(t *testing.T) {
	f := newFixture(t)
	body := decode[map[string]any](t, f.call(t, "ping", `{}`))
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "placefeed", body["server"])
	assert.NotEmpty(t, body["time"])
	assert.Empty(t, f.store.Calls())
}

func TestPlacesGet(t *testing.T) {
	f := newFixture(t)

	found := decode[itemOf[models.Place]](t, f.call(t, "places_get", `{"id":"pl1"}`))
	require.NotNil(t, found.Data)
	assert.Equal(t, "Cafe Uno", found.Data.Name)
	assert.Equal(t, models.StringList{"cafe"}, found.Data.GenreTags)

	res := f.call(t, "places_get", `{"id":"nope"}`)
	assert.False(t, res.IsError)
	body := decode[map[string]any](t, res)
	assert.Contains(t, body, "data")
	assert.Nil(t, body["data"])
}

func TestPlacesSearch_EscapesWildcards(t *testing.T) {
	f := newFixture(t)

	got := decode[listOf[models.Place]](t, f.call(t, "places_search", `{"query":" 100% "}`))
	require.Equal(t, 1, got.Count)
	assert.Equal(t, "pl2", got.Data[0].ID)

	got = decode[listOf[models.Place]](t, f.call(t, "places_search", `{"query":"n"}`))
	require.Equal(t, 3, got.Count)
	assert.Equal(t, []string{"100% Ramen", "1000 Noodles", "Cafe Uno"},
		[]string{got.Data[0].Name, got.Data[1].Name, got.Data[2].Name})

	q := f.store.Calls()[1]
	assert.Equal(t, db.OpILike, q.Filters[0].Op)
	assert.Equal(t, "%n%", q.Filters[0].Value)
	assert.Equal(t, DefaultLimit, q.Limit)
}

func TestSearch_EmptyQueryIsInvalid(t *testing.T) {
	f := newFixture(t)
	for _, tool := range []string{"places_search", "profiles_search"} {
		_, err := f.srv.Dispatch(context.Background(), tool, json.RawMessage(`{"query":"   "}`))
		var ve *mcp.ValidationError
		require.True(t, errors.As(err, &ve), tool)
		assert.Equal(t, "query", ve.Field)
	}
	assert.Empty(t, f.store.Calls())
}

func TestProfilesGet(t *testing.T) {
	f := newFixture(t)

	byID := decode[itemOf[models.Profile]](t, f.call(t, "profiles_get", `{"id":"u2"}`))
	require.NotNil(t, byID.Data)
	assert.Equal(t, "bob", byID.Data.Username)

	byName := decode[itemOf[models.Profile]](t, f.call(t, "profiles_get", `{"username":"ANN"}`))
	require.NotNil(t, byName.Data)
	assert.Equal(t, "u1", byName.Data.ID, "username match is exact, not a prefix of annabel")

	wildcard := decode[map[string]any](t, f.call(t, "profiles_get", `{"username":"an_"}`))
	assert.Nil(t, wildcard["data"])

	for _, args := range []string{`{}`, `{"id":"u1","username":"ann"}`} {
		_, err := f.srv.Dispatch(context.Background(), "profiles_get", json.RawMessage(args))
		var ve *mcp.ValidationError
		assert.True(t, errors.As(err, &ve), args)
	}
}

func TestProfilesSearch_UsernameMatchesRankFirst(t *testing.T) {
	f := newFixture(t)

	got := decode[listOf[models.Profile]](t, f.call(t, "profiles_search", `{"query":"ann","limit":5}`))
	ids := make([]string, 0, len(got.Data))
	for _, p := range got.Data {
		ids = append(ids, p.ID)
	}
	// u1 matches both predicates and appears once, ahead of the display-name-only u3.
	assert.Equal(t, []string{"u1", "u4", "u3"}, ids)
	assert.Equal(t, 3, got.Count)
	assert.Equal(t, 2, f.store.CallCount(models.ProfilesTable))

	for _, q := range f.store.Calls() {
		assert.Equal(t, 5, q.Limit)
	}

	truncated := decode[listOf[models.Profile]](t, f.call(t, "profiles_search", `{"query":"ann","limit":2}`))
	require.Len(t, truncated.Data, 2)
	assert.Equal(t, "u1", truncated.Data[0].ID)
	assert.Equal(t, "u4", truncated.Data[1].ID)
}

func TestMergeProfiles(t *testing.T) {
	a := models.Profile{ID: "a"}
	b := models.Profile{ID: "b"}
	c := models.Profile{ID: "c"}

	assert.Equal(t, []models.Profile{a, b, c}, mergeProfiles(5, []models.Profile{a, b}, []models.Profile{b, a, c}))
	assert.Equal(t, []models.Profile{b, a}, mergeProfiles(2, []models.Profile{b}, []models.Profile{b, a, c}))
	assert.Empty(t, mergeProfiles(3, nil, nil))
}

func TestPostsRecent_BatchesEnrichment(t *testing.T) {
	f := newFixture(t)

	got := decode[listOf[models.EnrichedPost]](t, f.call(t, "posts_recent", `{"limit":3}`))
	assert.Equal(t, []string{"p5", "p4", "p3"}, postIDs(got.Data))

	assert.Equal(t, 1, f.store.CallCount(models.PostsTable))
	assert.Equal(t, 1, f.store.CallCount(models.ProfilesTable))
	assert.Equal(t, 1, f.store.CallCount(models.PlacesTable))

	require.NotNil(t, got.Data[0].Author)
	assert.Equal(t, "carl", got.Data[0].Author.Username)
	assert.Equal(t, "Cafe Uno", got.Data[0].Place.Name)
	assert.Nil(t, got.Data[1].Place, "dangling place reference")
	assert.Nil(t, got.Data[2].Place, "no place reference")
}

func TestPostsGet(t *testing.T) {
	f := newFixture(t)

	got := decode[itemOf[models.EnrichedPost]](t, f.call(t, "posts_get", `{"id":"p4"}`))
	require.NotNil(t, got.Data)
	assert.Nil(t, got.Data.Place)
	assert.Equal(t, "jo", got.Data.Author.Username)
	assert.Equal(t, "Closed Bar", *got.Data.PlaceName)
	assert.Equal(t, "ghost", *got.Data.PlaceID)
	assert.True(t, at(4).Equal(got.Data.CreatedAt))

	f.store.ResetCalls()
	missing := decode[map[string]any](t, f.call(t, "posts_get", `{"id":"p404"}`))
	assert.Nil(t, missing["data"])
	assert.Equal(t, 0, f.store.CallCount(models.ProfilesTable))
}

func TestPostsByPlace(t *testing.T) {
	f := newFixture(t)

	got := decode[listOf[models.EnrichedPost]](t, f.call(t, "posts_by_place", `{"place_id":"pl1"}`))
	assert.Equal(t, []string{"p5", "p1"}, postIDs(got.Data))
	for _, p := range got.Data {
		assert.Equal(t, "Cafe Uno", p.Place.Name)
	}
	assert.Equal(t, 1, f.store.CallCount(models.PlacesTable))
}

func TestFollows_OnlyAccepted(t *testing.T) {
	f := newFixture(t)

	followers := decode[listOf[models.FollowerEdge]](t, f.call(t, "follows_followers", `{"user_id":"u1"}`))
	require.Len(t, followers.Data, 2)
	assert.Equal(t, "u2", followers.Data[0].FollowerID)
	assert.Equal(t, "bob", followers.Data[0].Follower.Username)
	assert.Equal(t, "u5", followers.Data[1].FollowerID)
	assert.Equal(t, "carl", followers.Data[1].Follower.Username)

	following := decode[listOf[models.FolloweeEdge]](t, f.call(t, "follows_following", `{"user_id":"u1"}`))
	require.Len(t, following.Data, 1)
	assert.Equal(t, "u2", following.Data[0].FolloweeID)
	assert.Equal(t, "bob", following.Data[0].Followee.Username)
	assert.Equal(t, models.FollowAccepted, following.Data[0].Status)
}

func TestFeedHome(t *testing.T) {
	f := newFixture(t)

	got := decode[listOf[models.EnrichedPost]](t, f.call(t, "feed_home", `{"user_id":"u1"}`))
	assert.Equal(t, []string{"p3", "p2", "p1"}, postIDs(got.Data), "pending follow of u3 is ignored")

	var postQueries []db.Query
	for _, q := range f.store.Calls() {
		if q.Table == models.PostsTable {
			postQueries = append(postQueries, q)
		}
	}
	require.Len(t, postQueries, 1)
	assert.Equal(t, []string{"u1", "u2"}, postQueries[0].Filters[0].Value)

	limited := decode[listOf[models.EnrichedPost]](t, f.call(t, "feed_home", `{"user_id":"u1","limit":2}`))
	assert.Equal(t, []string{"p3", "p2"}, postIDs(limited.Data))
}

func TestFeedHome_NoFollowees(t *testing.T) {
	f := newFixture(t)

	got := decode[listOf[models.EnrichedPost]](t, f.call(t, "feed_home", `{"user_id":"u3"}`))
	assert.Equal(t, []string{"p4"}, postIDs(got.Data))

	empty := decode[listOf[models.EnrichedPost]](t, f.call(t, "feed_home", `{"user_id":"u4"}`))
	assert.Empty(t, empty.Data)
	assert.Equal(t, 0, empty.Count)
}

func TestFeedAuthors(t *testing.T) {
	assert.Equal(t, []string{"u", "a", "b"}, feedAuthors("u", []string{"a", "u", "", "b", "a"}))

	many := make([]string, 0, 300)
	for i := 0; i < 300; i++ {
		many = append(many, string(rune('A'+i%26))+string(rune('a'+i/26)))
	}
	authors := feedAuthors("me", many)
	assert.Len(t, authors, maxFeedAuthors)
	assert.Equal(t, "me", authors[0])
}

func TestStoreFailures(t *testing.T) {
	f := newFixture(t)
	f.store.FailOn(models.PlacesTable, &db.StoreError{Code: "42501", Message: "permission denied for table places"})

	for _, call := range []struct{ tool, args string }{
		{"places_search", `{"query":"cafe"}`},
		{"posts_recent", `{}`},
	} {
		res := f.call(t, call.tool, call.args)
		assert.True(t, res.IsError, call.tool)
		assert.Equal(t, "Error: permission denied for table places", res.Content[0].Text)
	}

	f.store.FailOn(models.PostsTable, db.Unavailable(errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")))
	_, err := f.srv.Dispatch(context.Background(), "posts_recent", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.True(t, db.IsUnavailable(err))
}

func TestStoreFailures_RedactCredentials(t *testing.T) {
	f := newFixture(t)
	f.store.FailOn(models.PlacesTable, &db.StoreError{Message: "could not reach postgres://app:hunter2@db:5432/placefeed"})

	res := f.call(t, "places_get", `{"id":"pl1"}`)
	assert.True(t, res.IsError)
	assert.Equal(t, "Error: could not reach postgres://app:[REDACTED]@db:5432/placefeed", res.Content[0].Text)
}
