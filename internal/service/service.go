package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/okhomenko/shortline/internal/database"
	"github.com/okhomenko/shortline/internal/models"
	"github.com/okhomenko/shortline/internal/shortcode"
)

var (
	// ErrMaxRetriesExceeded is returned when the maximum number of retries
	// for generating a unique short code is exceeded.
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded for generating short code")
	// ErrInvalidURL is returned when the original URL is empty or lacks a
	// scheme or host.
	ErrInvalidURL = errors.New("invalid original url")
	// ErrUnauthorized is returned when the API key is missing or doesn't
	// match any registered user.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when the authenticated user doesn't own the URL.
	ErrForbidden = errors.New("forbidden")
)

// rankedListLimit caps the number of rows returned by the analytics views.
const rankedListLimit = 10

// URLRepository defines the interface for working with URLs at the business logic layer.
type URLRepository interface {
	// Create inserts a new shortened URL owned by the given user.
	// Returns database.ErrShortCodeExists if the code is already taken.
	Create(ctx context.Context, shortCode, originalURL string, userID int64) (*models.URL, error)

	// Resolve retrieves an active URL by its short code and counts the
	// access in the same operation.
	Resolve(ctx context.Context, shortCode string) (*models.URL, error)

	// GetByShortCode retrieves an active URL without counting an access.
	GetByShortCode(ctx context.Context, shortCode string) (*models.URL, error)

	// UpdateTarget rewrites the original URL for a given short code.
	UpdateTarget(ctx context.Context, shortCode, originalURL string) (*models.URL, error)

	// SoftDelete deactivates a URL by its short code.
	SoftDelete(ctx context.Context, shortCode string) error

	// Latest returns active URLs ordered by creation time, newest first.
	Latest(ctx context.Context, limit int) ([]models.URL, error)

	// Popular returns active URLs ordered by click count, then by most
	// recent access, URLs never accessed last.
	Popular(ctx context.Context, limit int) ([]models.URL, error)

	// MostShortened returns targets ranked by how many active short codes
	// point at them.
	MostShortened(ctx context.Context, limit int) ([]models.TargetGroup, error)
}

// UserRepository defines the interface for working with users at the business logic layer.
type UserRepository interface {
	// Create inserts a new user record.
	// Returns database.ErrUsernameExists if the username is taken.
	Create(ctx context.Context, username string, displayName *string, apiKey string) (*models.User, error)

	// GetByAPIKey retrieves a user by its API key.
	GetByAPIKey(ctx context.Context, apiKey string) (*models.User, error)
}

// EventPublisher delivers URL creation events to live subscribers.
type EventPublisher interface {
	Publish(e models.URLCreatedEvent)
}

// URLService provides methods to manage URL shortening operations.
// Mutations authenticate the caller through the user repository and publish
// creation events to the event bus after the row is committed.
type URLService struct {
	urlRepo         URLRepository
	userRepo        UserRepository
	events          EventPublisher
	shortCodeLength int
}

// NewURLService creates a new instance of URLService with the provided
// repositories, event publisher and short code length.
func NewURLService(urlRepo URLRepository, userRepo UserRepository, events EventPublisher, shortCodeLength int) *URLService {
	return &URLService{
		urlRepo:         urlRepo,
		userRepo:        userRepo,
		events:          events,
		shortCodeLength: shortCodeLength,
	}
}

// ShortenURL generates a short code for the provided original URL and stores
// it in the repository as a URL owned by the authenticated user. Code
// collisions are retried with a fresh code up to a maximum number of
// attempts. The creation event is published only after the row is committed.
func (s *URLService) ShortenURL(ctx context.Context, originalURL, apiKey string) (*models.URL, error) {
	const op = "service.URLService.ShortenURL"
	const maxRetries = 5

	user, err := s.authenticate(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := validateOriginalURL(originalURL); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for i := 0; i < maxRetries; i++ {
		code, err := shortcode.Generate(s.shortCodeLength)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		u, err := s.urlRepo.Create(ctx, code, originalURL, user.ID)
		if err != nil {
			if errors.Is(err, database.ErrShortCodeExists) {
				continue
			}

			return nil, fmt.Errorf("%s: failed to shorten url: %w", op, err)
		}

		s.events.Publish(models.URLCreatedEvent{
			ShortCode:   u.ShortCode,
			OriginalURL: u.OriginalURL,
			CreatedAt:   u.CreatedAt,
		})

		return u, nil
	}

	return nil, fmt.Errorf("%s: %w", op, ErrMaxRetriesExceeded)
}

// ResolveShortCode retrieves the original URL associated with the provided
// short code and records the access. Deactivated and unknown codes are
// indistinguishable to the caller.
func (s *URLService) ResolveShortCode(ctx context.Context, shortCode string) (*models.URL, error) {
	const op = "service.URLService.ResolveShortCode"

	u, err := s.urlRepo.Resolve(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to resolve short code: %w", op, err)
	}

	return u, nil
}

// ModifyURL rewrites the original URL linked to the given short code. The
// short code, owner and click statistics are unaffected. Only the owner may
// modify a URL.
func (s *URLService) ModifyURL(ctx context.Context, shortCode, originalURL, apiKey string) (*models.URL, error) {
	const op = "service.URLService.ModifyURL"

	if _, err := s.authorizeOwner(ctx, shortCode, apiKey); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := validateOriginalURL(originalURL); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	u, err := s.urlRepo.UpdateTarget(ctx, shortCode, originalURL)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to modify url: %w", op, err)
	}

	return u, nil
}

// DeactivateURL soft-deletes the URL associated with the provided short
// code. The row stays in storage but is excluded from resolution and
// analytics. Only the owner may deactivate a URL; deactivating an already
// deactivated code reports not found.
func (s *URLService) DeactivateURL(ctx context.Context, shortCode, apiKey string) error {
	const op = "service.URLService.DeactivateURL"

	if _, err := s.authorizeOwner(ctx, shortCode, apiKey); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.urlRepo.SoftDelete(ctx, shortCode); err != nil {
		return fmt.Errorf("%s: failed to deactivate url: %w", op, err)
	}

	return nil
}

// GetURLStats retrieves the URL associated with the provided short code
// without counting an access.
func (s *URLService) GetURLStats(ctx context.Context, shortCode string) (*models.URL, error) {
	const op = "service.URLService.GetURLStats"

	u, err := s.urlRepo.GetByShortCode(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get url stats: %w", op, err)
	}

	return u, nil
}

// LatestURLs returns the most recently created active URLs.
func (s *URLService) LatestURLs(ctx context.Context) ([]models.URL, error) {
	const op = "service.URLService.LatestURLs"

	urls, err := s.urlRepo.Latest(ctx, rankedListLimit)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get latest urls: %w", op, err)
	}

	return urls, nil
}

// PopularURLs returns active URLs ranked by click count.
func (s *URLService) PopularURLs(ctx context.Context) ([]models.URL, error) {
	const op = "service.URLService.PopularURLs"

	urls, err := s.urlRepo.Popular(ctx, rankedListLimit)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get popular urls: %w", op, err)
	}

	return urls, nil
}

// MostShortenedTargets returns targets ranked by the number of active short
// codes pointing at them.
func (s *URLService) MostShortenedTargets(ctx context.Context) ([]models.TargetGroup, error) {
	const op = "service.URLService.MostShortenedTargets"

	groups, err := s.urlRepo.MostShortened(ctx, rankedListLimit)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get most shortened targets: %w", op, err)
	}

	return groups, nil
}

// authenticate resolves the API key to a user. A missing or unknown key is
// an authorization failure, not a storage error.
func (s *URLService) authenticate(ctx context.Context, apiKey string) (*models.User, error) {
	if apiKey == "" {
		return nil, ErrUnauthorized
	}

	user, err := s.userRepo.GetByAPIKey(ctx, apiKey)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, ErrUnauthorized
		}

		return nil, err
	}

	return user, nil
}

// authorizeOwner authenticates the caller and checks that it owns the URL.
// Legacy URLs without an owner cannot be mutated through the API.
func (s *URLService) authorizeOwner(ctx context.Context, shortCode, apiKey string) (*models.URL, error) {
	user, err := s.authenticate(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	u, err := s.urlRepo.GetByShortCode(ctx, shortCode)
	if err != nil {
		return nil, err
	}

	if u.UserID == nil || *u.UserID != user.ID {
		return nil, ErrForbidden
	}

	return u, nil
}

// validateOriginalURL checks the structural validity of the target: it must
// be non-empty and carry both a scheme and a host. No reachability check is
// performed.
func validateOriginalURL(originalURL string) error {
	if strings.TrimSpace(originalURL) == "" {
		return ErrInvalidURL
	}

	u, err := url.Parse(originalURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ErrInvalidURL
	}

	return nil
}
