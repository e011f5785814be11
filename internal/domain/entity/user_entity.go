package entity

import (
	"time"
)

// User is the sole aggregate of this service.
//
// Email is stored in normalized form and is unique across all users; the
// users_email_key index is the source of truth under concurrent writes.
// AvatarKey keeps the object-storage key next to the public URL so an old
// avatar can be deleted without re-parsing the URL.
type User struct {
	ID        int64
	Name      string
	Email     string
	AvatarURL string
	AvatarKey string
	CreatedAt time.Time
}
