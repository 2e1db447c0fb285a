package models

import "time"

type GroupMember struct {
	UserID string `bson:"user" json:"user"`
	Role   string `bson:"role" json:"role"`
}

type Group struct {
	ID      string        `bson:"_id,omitempty" json:"id"`
	Name    string        `bson:"name" json:"name"`
	OwnerID string        `bson:"owner" json:"owner"`
	Members []GroupMember `bson:"members" json:"members"`
}

// Event is the subset of the event document the realtime layer needs:
// the owning group for membership checks.
type Event struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	GroupID   string    `bson:"group" json:"group"`
	CreatorID string    `bson:"creator" json:"creator"`
	Title     string    `bson:"title" json:"title"`
	Status    string    `bson:"status" json:"status"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
