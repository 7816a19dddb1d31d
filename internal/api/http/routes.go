package http

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"
	"github.com/okhomenko/shortline/internal/event"
	"github.com/okhomenko/shortline/internal/models"
)

// URLService defines the interface for the core URL shortening business logic.
type URLService interface {
	// ShortenURL creates a shortened version of the provided original URL,
	// owned by the user the API key resolves to.
	ShortenURL(ctx context.Context, originalURL, apiKey string) (*models.URL, error)

	// ResolveShortCode retrieves the original URL for a given short code
	// and counts the access.
	ResolveShortCode(ctx context.Context, shortCode string) (*models.URL, error)

	// ModifyURL updates the original URL linked to the provided short code.
	// Only the owner may modify a URL.
	ModifyURL(ctx context.Context, shortCode, originalURL, apiKey string) (*models.URL, error)

	// DeactivateURL disables the URL, making it no longer functional.
	// Only the owner may deactivate a URL.
	DeactivateURL(ctx context.Context, shortCode, apiKey string) error

	// GetURLStats retrieves the statistics of the URL associated with the
	// short code without counting an access.
	GetURLStats(ctx context.Context, shortCode string) (*models.URL, error)

	// LatestURLs returns the most recently created active URLs.
	LatestURLs(ctx context.Context) ([]models.URL, error)

	// PopularURLs returns active URLs ranked by click count.
	PopularURLs(ctx context.Context) ([]models.URL, error)

	// MostShortenedTargets returns targets ranked by the number of active
	// short codes pointing at them.
	MostShortenedTargets(ctx context.Context) ([]models.TargetGroup, error)
}

// UserService defines the interface for user registration.
type UserService interface {
	// Register creates a user and issues its API key.
	Register(ctx context.Context, username string, displayName *string) (*models.User, error)
}

// EventSource hands out live subscriptions to URL creation events.
type EventSource interface {
	Subscribe() *event.Subscription
}

// RouterConfig carries the handler settings that come from configuration.
type RouterConfig struct {
	// BaseURL is the public prefix short links are built from.
	BaseURL string
	// HeartbeatInterval is how often an idle event stream emits a keep-alive.
	HeartbeatInterval time.Duration
}

// apiKeyHeader is the request header carrying the caller's credential.
const apiKeyHeader = "X-API-Key"

// NewRouter initializes and returns a new HTTP router with all routes and middleware configured.
func NewRouter(logger *httplog.Logger, urlSvc URLService, userSvc UserService, events EventSource, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"POST", "GET", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept", apiKeyHeader},
		AllowCredentials: false,
		MaxAge:           84600,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger, []string{"/api/v1/events"}))
	r.Use(middleware.Recoverer)

	r.Get("/r/{shortCode}", handleRedirect(urlSvc))

	r.Route("/api/v1", func(r chi.Router) {
		validate := getValidate()

		r.Get("/ping", handlePing)

		r.Post("/users", handleRegisterUser(userSvc, validate))

		r.Route("/shorten", func(r chi.Router) {
			r.Post("/", handleShortenURL(urlSvc, validate, cfg.BaseURL))

			r.Route("/{shortCode}", func(r chi.Router) {
				r.Get("/", handleResolveShortCode(urlSvc))
				r.Put("/", handleModifyURL(urlSvc, validate))
				r.Delete("/", handleDeactivateURL(urlSvc))
				r.Get("/stats", handleGetURLStats(urlSvc))
			})
		})

		r.Route("/links", func(r chi.Router) {
			r.Get("/latest", handleLatestURLs(urlSvc))
			r.Get("/popular", handlePopularURLs(urlSvc))
			r.Get("/top-shortened", handleMostShortenedTargets(urlSvc))
		})

		r.Get("/events", handleStreamEvents(events, cfg.HeartbeatInterval))
	})

	return r
}

// getValidate initializes a new validator instance for validating incoming request payloads.
// It customizes tag name extraction from struct fields to match JSON tags.
func getValidate() *validator.Validate {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return validate
}
