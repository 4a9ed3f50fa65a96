package tools

import (
	"github.com/thebtf/placefeed/internal/enrich"
	"github.com/thebtf/placefeed/pkg/models"
)

var (
	profiles = enrich.Source[models.Profile]{
		Table:   models.ProfilesTable,
		Key:     "id",
		Columns: models.ProfileColumns,
		KeyOf:   func(p *models.Profile) string { return p.ID },
	}
	places = enrich.Source[models.Place]{
		Table:   models.PlacesTable,
		Key:     "id",
		Columns: models.PlaceColumns,
		KeyOf:   func(p *models.Place) string { return p.ID },
	}
)

var (
	postAuthor = enrich.BelongsTo("author", profiles,
		func(p *models.EnrichedPost) *string { return &p.AuthorID },
		func(p *models.EnrichedPost, v *models.Profile) { p.Author = v })
	postPlace = enrich.BelongsTo("place", places,
		func(p *models.EnrichedPost) *string { return p.PlaceID },
		func(p *models.EnrichedPost, v *models.Place) { p.Place = v })

	edgeFollower = enrich.BelongsTo("follower", profiles,
		func(e *models.FollowerEdge) *string { return &e.FollowerID },
		func(e *models.FollowerEdge, v *models.Profile) { e.Follower = v })
	edgeFollowee = enrich.BelongsTo("followee", profiles,
		func(e *models.FolloweeEdge) *string { return &e.FolloweeID },
		func(e *models.FolloweeEdge, v *models.Profile) { e.Followee = v })
)
