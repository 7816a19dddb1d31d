package database

import "errors"

var (
	// ErrShortCodeExists is returned when an attempt is made to create
	// a new shortened URL with a short code that already exists.
	ErrShortCodeExists = errors.New("short code exists")
	// ErrURLNotFound is returned when an attempt is made to retrieve
	// a URL using a short code that doesn't exist or was deactivated.
	ErrURLNotFound = errors.New("url not found")
	// ErrUsernameExists is returned when an attempt is made to register
	// a user with a username that is already taken.
	ErrUsernameExists = errors.New("username exists")
	// ErrUserNotFound is returned when no user matches the given API key.
	ErrUserNotFound = errors.New("user not found")
)
