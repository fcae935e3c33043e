package models

// FollowEdge is the directed "follows" relationship. Unfollow removes the
// edge; re-following recreates it, there are no tombstones.
type FollowEdge struct {
	FollowerID string `json:"follower_id"`
	FolloweeID string `json:"followee_id"`
}
