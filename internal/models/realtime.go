package models

import "time"

// UserStatus is the presence answer given to clients, both over REST and in
// reply to a live status query.
type UserStatus struct {
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen"`
}

// UserProfile is the public view of a user used by presence lookups.
type UserProfile struct {
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	LastSeen *time.Time `json:"lastSeen"`
	IsOnline bool       `json:"isOnline"`
}
