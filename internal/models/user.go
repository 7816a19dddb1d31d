package models

import "time"

// User represents a registered owner of shortened URLs.
type User struct {
	// ID is the unique identifier for the user record.
	ID int64
	// Username is the unique handle the user registered with.
	Username string
	// DisplayName is an optional human-readable name.
	DisplayName *string
	// APIKey is the opaque credential used to authenticate requests.
	// It is issued once at registration and never changes.
	APIKey string
	// CreatedAt is the timestamp indicating when the user was registered.
	CreatedAt time.Time
}
