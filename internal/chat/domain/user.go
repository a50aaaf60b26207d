package domain

import "time"

// UserSummary sidebar entry
type UserSummary struct {
	ID            string     `json:"id"`
	FullName      string     `json:"fullName"`
	ProfilePic    string     `json:"profilePic"`
	Bio           string     `json:"bio"`
	LastMessageAt *time.Time `json:"lastMessageAt"`
}

// Sidebar users list plus unseen badges keyed by user id
type Sidebar struct {
	Users          []UserSummary  `json:"users"`
	UnseenMessages map[string]int `json:"unseenMessages"`
}
