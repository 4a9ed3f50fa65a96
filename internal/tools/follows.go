package tools

import (
	"context"

	"github.com/thebtf/placefeed/internal/db"
	"github.com/thebtf/placefeed/internal/enrich"
	"github.com/thebtf/placefeed/internal/mcp"
	"github.com/thebtf/placefeed/pkg/models"
)

// acceptedEdges loads accepted edges where column equals userID, newest first.
// Pending and rejected requests never leave this function.
func (s *Service) acceptedEdges(ctx context.Context, column, userID string, limit int) ([]models.FollowEdge, error) {
	var edges []models.FollowEdge
	err := s.store.Select(ctx, db.Query{
		Table:   models.FollowsTable,
		Columns: models.FollowColumns,
		Filters: []db.Filter{
			db.Eq(column, userID),
			db.Eq("status", string(models.FollowAccepted)),
		},
		Order: newestFirst,
		Limit: limit,
	}, &edges)
	return edges, err
}

func (s *Service) followers(ctx context.Context, p userParams) (*mcp.CallToolResult, error) {
	edges, err := s.acceptedEdges(ctx, "followee_id", p.UserID.String(), p.Limit.Int())
	if err != nil {
		return failure("follows_followers", err)
	}

	rows := make([]models.FollowerEdge, len(edges))
	for i := range edges {
		rows[i] = models.FollowerEdge{FollowEdge: edges[i]}
	}
	rows, err = enrich.Enrich(ctx, s.store, rows, edgeFollower)
	if err != nil {
		return failure("follows_followers", err)
	}
	return listResult(rows)
}

func (s *Service) following(ctx context.Context, p userParams) (*mcp.CallToolResult, error) {
	edges, err := s.acceptedEdges(ctx, "follower_id", p.UserID.String(), p.Limit.Int())
	if err != nil {
		return failure("follows_following", err)
	}

	rows := make([]models.FolloweeEdge, len(edges))
	for i := range edges {
		rows[i] = models.FolloweeEdge{FollowEdge: edges[i]}
	}
	rows, err = enrich.Enrich(ctx, s.store, rows, edgeFollowee)
	if err != nil {
		return failure("follows_following", err)
	}
	return listResult(rows)
}
