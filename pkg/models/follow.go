// Package models contains domain models for placefeed.
package models

import "time"

// FollowsTable is the store table holding follow edges.
const FollowsTable = "follows"

// FollowColumns is the projection used for follow edges.
var FollowColumns = []string{"follower_id", "followee_id", "status", "request_read", "created_at"}

// FollowStatus is the state of a follow request.
type FollowStatus string

const (
	// FollowPending is a request the followee has not answered yet.
	FollowPending FollowStatus = "pending"
	// FollowAccepted is the only status visible to follower, following and feed derivations.
	FollowAccepted FollowStatus = "accepted"
	// FollowRejected is a declined request.
	FollowRejected FollowStatus = "rejected"
)

// FollowEdge is a directed follow relation keyed by (FollowerID, FolloweeID).
type FollowEdge struct {
	CreatedAt   time.Time    `gorm:"column:created_at" json:"created_at"`
	FollowerID  string       `gorm:"column:follower_id" json:"follower_id"`
	FolloweeID  string       `gorm:"column:followee_id" json:"followee_id"`
	Status      FollowStatus `gorm:"column:status" json:"status"`
	RequestRead bool         `gorm:"column:request_read" json:"request_read"`
}

// FollowerEdge is an edge with the follower's profile attached.
type FollowerEdge struct {
	FollowEdge
	Follower *Profile `json:"follower"`
}

// FolloweeEdge is an edge with the followee's profile attached.
type FolloweeEdge struct {
	FollowEdge
	Followee *Profile `json:"followee"`
}
