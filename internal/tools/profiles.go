package tools

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/thebtf/placefeed/internal/db"
	"github.com/thebtf/placefeed/internal/mcp"
	"github.com/thebtf/placefeed/pkg/models"
)

func (s *Service) getProfile(ctx context.Context, p profileGetParams) (*mcp.CallToolResult, error) {
	filter := db.Eq("id", p.ID.String())
	if p.Username != "" {
		// ILIKE without wildcards is a case-insensitive exact match.
		filter = db.ILike("username", db.EscapeLike(p.Username.String()))
	}

	var rows []models.Profile
	err := s.store.Select(ctx, db.Query{
		Table:   models.ProfilesTable,
		Columns: models.ProfileColumns,
		Filters: []db.Filter{filter},
		Limit:   1,
	}, &rows)
	if err != nil {
		return failure("profiles_get", err)
	}
	return itemResult(first(rows))
}

func (s *Service) searchProfiles(ctx context.Context, p searchParams) (*mcp.CallToolResult, error) {
	limit := p.Limit.Int()
	pattern := db.Contains(p.Query.String())

	var byUsername, byDisplayName []models.Profile
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.store.Select(gctx, profileMatch("username", pattern, limit), &byUsername)
	})
	g.Go(func() error {
		return s.store.Select(gctx, profileMatch("display_name", pattern, limit), &byDisplayName)
	})
	if err := g.Wait(); err != nil {
		return failure("profiles_search", err)
	}

	return listResult(mergeProfiles(limit, byUsername, byDisplayName))
}

func profileMatch(column, pattern string, limit int) db.Query {
	return db.Query{
		Table:   models.ProfilesTable,
		Columns: models.ProfileColumns,
		Filters: []db.Filter{db.ILike(column, pattern)},
		Order:   &db.Order{Column: "username"},
		Limit:   limit,
	}
}

// mergeProfiles concatenates lists in order, keeps the first occurrence of
// each id and stops at limit. Earlier lists therefore take precedence.
func mergeProfiles(limit int, lists ...[]models.Profile) []models.Profile {
	seen := make(map[string]struct{}, limit)
	merged := make([]models.Profile, 0, limit)
	for _, list := range lists {
		for _, profile := range list {
			if len(merged) == limit {
				return merged
			}
			if _, dup := seen[profile.ID]; dup {
				continue
			}
			seen[profile.ID] = struct{}{}
			merged = append(merged, profile)
		}
	}
	return merged
}
