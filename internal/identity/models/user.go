package models

import "github.com/google/uuid"

// UserSummary is the display projection of a user fetched from the external
// identity service.
type UserSummary struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email,omitempty"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	Placeholder bool      `json:"placeholder,omitempty"`
}

// PlaceholderUser stands in when a lookup fails or the user is unknown.
// Identity failures degrade, they never abort the calling operation.
func PlaceholderUser(id uuid.UUID) UserSummary {
	return UserSummary{
		ID:          id,
		DisplayName: "Unknown User",
		Placeholder: true,
	}
}
