package models

import "time"

// URL represents a shortened URL and its associated metadata.
type URL struct {
	// ID is the unique identifier for the shortened URL record.
	ID int64
	// ShortCode is the short code or key associated with the original URL.
	ShortCode string
	// OriginalURL is the original, full-length URL that the short code points to.
	OriginalURL string
	// UserID is the identifier of the owning user. It is nil for legacy
	// records created before ownership was introduced.
	UserID *int64
	// ClickCount tracks the number of times the shortened URL has been resolved.
	ClickCount int64
	// LastAccessedAt is the timestamp of the most recent resolution.
	// It is nil until the URL is resolved for the first time.
	LastAccessedAt *time.Time
	// IsDeleted marks the URL as deactivated. Deactivated URLs are kept in
	// storage but excluded from resolution and analytics.
	IsDeleted bool
	// DeletedAt is the timestamp indicating when the URL was deactivated.
	DeletedAt *time.Time
	// CreatedAt is the timestamp indicating when the shortened URL was created.
	CreatedAt time.Time
}

// TargetGroup aggregates the active short codes pointing at the same
// original URL.
type TargetGroup struct {
	OriginalURL string
	LinksCount  int64
	ShortCodes  []string
}
