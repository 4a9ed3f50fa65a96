package tools

import (
	"context"

	"github.com/thebtf/placefeed/internal/db"
	"github.com/thebtf/placefeed/internal/enrich"
	"github.com/thebtf/placefeed/internal/mcp"
	"github.com/thebtf/placefeed/pkg/models"
)

var newestFirst = &db.Order{Column: "created_at", Desc: true}

// loadPosts runs q against posts and attaches author and place.
func (s *Service) loadPosts(ctx context.Context, q db.Query) ([]models.EnrichedPost, error) {
	q.Table = models.PostsTable
	q.Columns = models.PostColumns

	var rows []models.Post
	if err := s.store.Select(ctx, q, &rows); err != nil {
		return nil, err
	}
	return enrich.Enrich(ctx, s.store, models.NewEnrichedPosts(rows), postAuthor, postPlace)
}

func (s *Service) recentPosts(ctx context.Context, p limitParams) (*mcp.CallToolResult, error) {
	posts, err := s.loadPosts(ctx, db.Query{Order: newestFirst, Limit: p.Limit.Int()})
	if err != nil {
		return failure("posts_recent", err)
	}
	return listResult(posts)
}

func (s *Service) getPost(ctx context.Context, p idParams) (*mcp.CallToolResult, error) {
	posts, err := s.loadPosts(ctx, db.Query{
		Filters: []db.Filter{db.Eq("id", p.ID.String())},
		Limit:   1,
	})
	if err != nil {
		return failure("posts_get", err)
	}
	return itemResult(first(posts))
}

func (s *Service) postsByPlace(ctx context.Context, p placePostsParams) (*mcp.CallToolResult, error) {
	posts, err := s.loadPosts(ctx, db.Query{
		Filters: []db.Filter{db.Eq("place_id", p.PlaceID.String())},
		Order:   newestFirst,
		Limit:   p.Limit.Int(),
	})
	if err != nil {
		return failure("posts_by_place", err)
	}
	return listResult(posts)
}
