package tools

import (
	"context"

	"github.com/thebtf/placefeed/internal/db"
	"github.com/thebtf/placefeed/internal/mcp"
)

// Feed fan-out bounds.
const (
	maxFeedEdges   = 200
	maxFeedAuthors = 200
)

// homeFeed expands the user's accepted follows into an author set and then
// fetches their posts with a single filtered select.
func (s *Service) homeFeed(ctx context.Context, p userParams) (*mcp.CallToolResult, error) {
	userID := p.UserID.String()

	edges, err := s.acceptedEdges(ctx, "follower_id", userID, maxFeedEdges)
	if err != nil {
		return failure("feed_home", err)
	}

	followees := make([]string, 0, len(edges))
	for _, e := range edges {
		followees = append(followees, e.FolloweeID)
	}

	posts, err := s.loadPosts(ctx, db.Query{
		Filters: []db.Filter{db.In("author_id", feedAuthors(userID, followees))},
		Order:   newestFirst,
		Limit:   p.Limit.Int(),
	})
	if err != nil {
		return failure("feed_home", err)
	}
	return listResult(posts)
}

// feedAuthors returns userID followed by the distinct non-empty followees,
// capped at maxFeedAuthors.
func feedAuthors(userID string, followees []string) []string {
	authors := make([]string, 0, min(len(followees)+1, maxFeedAuthors))
	seen := make(map[string]struct{}, len(followees)+1)
	for _, id := range append([]string{userID}, followees...) {
		if len(authors) == maxFeedAuthors {
			break
		}
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		authors = append(authors, id)
	}
	return authors
}
