package models

import "time"

// Conversation is the read-only summary consumed to refresh the sidebar list
// after a submission. History itself is owned by the backend.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
}
