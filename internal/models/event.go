package models

import "time"

// URLCreatedEvent is emitted when a URL is shortened. It is delivered to
// live stream subscribers only and is never persisted.
type URLCreatedEvent struct {
	ShortCode   string    `json:"short_code"`
	OriginalURL string    `json:"url"`
	CreatedAt   time.Time `json:"created_at"`
}
