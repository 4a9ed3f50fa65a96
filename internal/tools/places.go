package tools

import (
	"context"

	"github.com/thebtf/placefeed/internal/db"
	"github.com/thebtf/placefeed/internal/mcp"
	"github.com/thebtf/placefeed/pkg/models"
)

func (s *Service) getPlace(ctx context.Context, p idParams) (*mcp.CallToolResult, error) {
	var rows []models.Place
	err := s.store.Select(ctx, db.Query{
		Table:   models.PlacesTable,
		Columns: models.PlaceColumns,
		Filters: []db.Filter{db.Eq("id", p.ID.String())},
		Limit:   1,
	}, &rows)
	if err != nil {
		return failure("places_get", err)
	}
	return itemResult(first(rows))
}

func (s *Service) searchPlaces(ctx context.Context, p searchParams) (*mcp.CallToolResult, error) {
	var rows []models.Place
	err := s.store.Select(ctx, db.Query{
		Table:   models.PlacesTable,
		Columns: models.PlaceColumns,
		Filters: []db.Filter{db.ILike("name", db.Contains(p.Query.String()))},
		Order:   &db.Order{Column: "name"},
		Limit:   p.Limit.Int(),
	}, &rows)
	if err != nil {
		return failure("places_search", err)
	}
	return listResult(rows)
}
