package domain

import (
	"time"
)

// Profile is the server-owned view of the authenticated user.
type Profile struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	AvatarURL   string `json:"avatar_url"`
}

// CachedProfile is the last downloaded profile snapshot. It is overwritten
// wholesale on every successful profile download, never partially updated.
type CachedProfile struct {
	Profile   Profile   `json:"profile"`
	FetchedAt time.Time `json:"fetched_at"`
}
