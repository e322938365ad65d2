package domain

import "time"

// Member is one user's membership in one group: the group is the partition
// dimension of the directory, the user the item dimension within it. A user
// appears once per group at most.
type Member struct {
	GroupName    string    `json:"groupName"`
	UserID       string    `json:"userId"`
	Language     string    `json:"language"`
	ConnectionID string    `json:"connectionId"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
