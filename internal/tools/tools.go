// Package tools implements the placefeed MCP tool catalogue on top of a
// db.Client.
package tools

import (
	"context"
	"errors"
	"time"

	"github.com/thebtf/placefeed/internal/db"
	"github.com/thebtf/placefeed/internal/mcp"
)

// Service holds the dependencies shared by every tool handler.
type Service struct {
	store db.Client
	now   func() time.Time
	name  string
}

// Register adds the whole catalogue to srv, reading from store.
func Register(srv *mcp.Server, store db.Client) error {
	s := &Service{store: store, now: time.Now, name: srv.Name()}
	return errors.Join(
		mcp.AddTool(srv, "ping", "Check that the gateway is up.",
			objectSchema(map[string]any{}), s.ping),

		mcp.AddTool(srv, "places_get", "Get a place by id. Returns data: null when it does not exist.",
			objectSchema(map[string]any{"id": stringProp("Place id")}, "id"), s.getPlace),
		mcp.AddTool(srv, "places_search", "Search places by name (case-insensitive, partial match).",
			objectSchema(map[string]any{"query": stringProp("Text to look for in the place name"), "limit": limitProp}, "query"), s.searchPlaces),

		mcp.AddTool(srv, "profiles_get", "Get a profile by id or by username (exactly one).",
			objectSchema(map[string]any{"id": stringProp("Profile id"), "username": stringProp("Username, matched case-insensitively")}), s.getProfile),
		mcp.AddTool(srv, "profiles_search", "Search profiles by username and display name. Username matches rank first.",
			objectSchema(map[string]any{"query": stringProp("Text to look for"), "limit": limitProp}, "query"), s.searchProfiles),

		mcp.AddTool(srv, "posts_recent", "List the newest posts with author and place attached.",
			objectSchema(map[string]any{"limit": limitProp}), s.recentPosts),
		mcp.AddTool(srv, "posts_get", "Get a post by id with author and place attached.",
			objectSchema(map[string]any{"id": stringProp("Post id")}, "id"), s.getPost),
		mcp.AddTool(srv, "posts_by_place", "List the newest posts at a place.",
			objectSchema(map[string]any{"place_id": stringProp("Place id"), "limit": limitProp}, "place_id"), s.postsByPlace),

		mcp.AddTool(srv, "follows_followers", "List accepted followers of a user, newest first.",
			objectSchema(map[string]any{"user_id": stringProp("Profile id"), "limit": limitProp}, "user_id"), s.followers),
		mcp.AddTool(srv, "follows_following", "List accepted follows of a user, newest first.",
			objectSchema(map[string]any{"user_id": stringProp("Profile id"), "limit": limitProp}, "user_id"), s.following),

		mcp.AddTool(srv, "feed_home", "Home feed: the user's own posts and those of everyone they follow, newest first.",
			objectSchema(map[string]any{"user_id": stringProp("Profile id"), "limit": limitProp}, "user_id"), s.homeFeed),
	)
}

func (s *Service) ping(_ context.Context, _ emptyParams) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{
		"ok":     true,
		"server": s.name,
		"time":   s.now().UTC().Format(time.RFC3339),
	})
}
