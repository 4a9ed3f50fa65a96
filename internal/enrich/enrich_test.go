package enrich

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/placefeed/internal/db"
	"github.com/thebtf/placefeed/internal/db/dbtest"
	"github.com/thebtf/placefeed/pkg/models"
)

func strPtr(s string) *string { return &s }

var (
	profileSource = Source[models.Profile]{
		Table:   models.ProfilesTable,
		Key:     "id",
		Columns: models.ProfileColumns,
		KeyOf:   func(p *models.Profile) string { return p.ID },
	}
	placeSource = Source[models.Place]{
		Table:   models.PlacesTable,
		Key:     "id",
		Columns: models.PlaceColumns,
		KeyOf:   func(p *models.Place) string { return p.ID },
	}
	authorRel = BelongsTo("author", profileSource,
		func(p *models.EnrichedPost) *string { return &p.AuthorID },
		func(p *models.EnrichedPost, v *models.Profile) { p.Author = v })
	placeRel = BelongsTo("place", placeSource,
		func(p *models.EnrichedPost) *string { return p.PlaceID },
		func(p *models.EnrichedPost, v *models.Place) { p.Place = v })
)

func seededStore() *dbtest.Store {
	store := dbtest.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.Seed(models.ProfilesTable, []models.Profile{
		{ID: "u1", Username: "ann", UpdatedAt: now},
		{ID: "u2", Username: "bob", UpdatedAt: now},
	})
	store.Seed(models.PlacesTable, []models.Place{
		{ID: "pl1", Name: "Cafe Uno", UpdatedAt: now},
	})
	return store
}

func TestKeys_DeduplicatesAndSkipsEmpty(t *testing.T) {
	posts := []models.EnrichedPost{
		{Post: models.Post{ID: "a", PlaceID: strPtr("pl1")}},
		{Post: models.Post{ID: "b"}},
		{Post: models.Post{ID: "c", PlaceID: strPtr("")}},
		{Post: models.Post{ID: "d", PlaceID: strPtr("pl2")}},
		{Post: models.Post{ID: "e", PlaceID: strPtr("pl1")}},
	}

	keys := Keys(posts, func(p *models.EnrichedPost) *string { return p.PlaceID })
	assert.Equal(t, []string{"pl1", "pl2"}, keys)
}

func TestEnrich_OneFetchPerRelation(t *testing.T) {
	store := seededStore()
	posts := models.NewEnrichedPosts([]models.Post{
		{ID: "p1", AuthorID: "u1", PlaceID: strPtr("pl1")},
		{ID: "p2", AuthorID: "u1", PlaceID: strPtr("pl1")},
		{ID: "p3", AuthorID: "u2"},
		{ID: "p4", AuthorID: "u1", PlaceID: strPtr("pl1")},
	})

	out, err := Enrich(context.Background(), store, posts, authorRel, placeRel)
	require.NoError(t, err)

	assert.Equal(t, 1, store.CallCount(models.ProfilesTable))
	assert.Equal(t, 1, store.CallCount(models.PlacesTable))

	for _, q := range store.Calls() {
		require.Len(t, q.Filters, 1)
		assert.Equal(t, db.OpIn, q.Filters[0].Op)
		values := q.Filters[0].Value.([]string)
		switch q.Table {
		case models.ProfilesTable:
			assert.Equal(t, []string{"u1", "u2"}, values)
		case models.PlacesTable:
			assert.Equal(t, []string{"pl1"}, values)
		}
	}

	require.Len(t, out, 4)
	assert.Equal(t, []string{"p1", "p2", "p3", "p4"}, []string{out[0].ID, out[1].ID, out[2].ID, out[3].ID})
	assert.Equal(t, "ann", out[0].Author.Username)
	assert.Equal(t, "bob", out[2].Author.Username)
	assert.Equal(t, "Cafe Uno", out[1].Place.Name)
	assert.Nil(t, out[2].Place)
}

func TestEnrich_MissingTargetIsNil(t *testing.T) {
	store := seededStore()
	source := models.Post{
		ID:         "p1",
		AuthorID:   "u1",
		PlaceID:    strPtr("gone"),
		Content:    strPtr("great ramen"),
		PlaceName:  strPtr("Ghost Bar"),
		ImageURLs:  models.StringList{"a.jpg", "b.jpg"},
		PriceRange: strPtr("$$"),
	}

	out, err := Enrich(context.Background(), store, models.NewEnrichedPosts([]models.Post{source}), authorRel, placeRel)
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Nil(t, out[0].Place)
	assert.NotNil(t, out[0].Author)
	assert.Equal(t, source, out[0].Post)
}

func TestEnrich_NoKeysNoFetch(t *testing.T) {
	store := seededStore()
	posts := models.NewEnrichedPosts([]models.Post{{ID: "p1", AuthorID: "u1"}})

	out, err := Enrich(context.Background(), store, posts, placeRel)
	require.NoError(t, err)
	assert.Nil(t, out[0].Place)
	assert.Empty(t, store.Calls())
}

func TestEnrich_EmptyInput(t *testing.T) {
	store := seededStore()

	out, err := Enrich(context.Background(), store, []models.EnrichedPost{}, authorRel, placeRel)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, store.Calls())
}

func TestEnrich_DoesNotMutateInput(t *testing.T) {
	store := seededStore()
	posts := models.NewEnrichedPosts([]models.Post{{ID: "p1", AuthorID: "u1"}})

	out, err := Enrich(context.Background(), store, posts, authorRel)
	require.NoError(t, err)
	assert.NotNil(t, out[0].Author)
	assert.Nil(t, posts[0].Author)
}

func TestEnrich_FetchFailurePropagates(t *testing.T) {
	store := seededStore()
	storeErr := &db.StoreError{Code: "42501", Message: "permission denied for table places"}
	store.FailOn(models.PlacesTable, storeErr)

	posts := models.NewEnrichedPosts([]models.Post{{ID: "p1", AuthorID: "u1", PlaceID: strPtr("pl1")}})
	out, err := Enrich(context.Background(), store, posts, authorRel, placeRel)

	require.Error(t, err)
	assert.Nil(t, out)

	var target *db.StoreError
	require.True(t, errors.As(err, &target))
	assert.Equal(t, "42501", target.Code)
	assert.Contains(t, err.Error(), "enrich place")
}

func TestLookup_EmptyIDsSkipsStore(t *testing.T) {
	store := seededStore()

	found, err := Lookup(context.Background(), store, profileSource, nil)
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.Empty(t, store.Calls())
}
