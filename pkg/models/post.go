// Package models contains domain models for placefeed.
package models

import "time"

// PostsTable is the store table holding posts.
const PostsTable = "posts"

// PostColumns is the projection used whenever a post is returned to a caller.
var PostColumns = []string{
	"id", "author_id", "content", "created_at", "image_urls", "place_name", "place_address",
	"place_id", "image_variants", "recommend_score", "price", "price_range",
}

// Post is a user post, optionally pinned to a place.
// PlaceName and PlaceAddress are denormalized copies kept by the writer.
type Post struct {
	CreatedAt      time.Time  `gorm:"column:created_at" json:"created_at"`
	Content        *string    `gorm:"column:content" json:"content"`
	PlaceName      *string    `gorm:"column:place_name" json:"place_name"`
	PlaceAddress   *string    `gorm:"column:place_address" json:"place_address"`
	PlaceID        *string    `gorm:"column:place_id" json:"place_id"`
	RecommendScore *float64   `gorm:"column:recommend_score" json:"recommend_score"`
	Price          *float64   `gorm:"column:price" json:"price"`
	PriceRange     *string    `gorm:"column:price_range" json:"price_range"`
	ImageVariants  JSONMap    `gorm:"column:image_variants" json:"image_variants"`
	ID             string     `gorm:"column:id" json:"id"`
	AuthorID       string     `gorm:"column:author_id" json:"author_id"`
	ImageURLs      StringList `gorm:"column:image_urls" json:"image_urls"`
}

// EnrichedPost is a post with its author and place attached.
// Both are nil when the referenced row does not exist.
type EnrichedPost struct {
	Post
	Author *Profile `json:"author"`
	Place  *Place   `json:"place"`
}

// NewEnrichedPosts wraps posts for enrichment, keeping their order.
func NewEnrichedPosts(posts []Post) []EnrichedPost {
	out := make([]EnrichedPost, len(posts))
	for i := range posts {
		out[i] = EnrichedPost{Post: posts[i]}
	}
	return out
}
