package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/okhomenko/shortline/internal/database"
	"github.com/okhomenko/shortline/internal/models"
	"github.com/okhomenko/shortline/internal/service"
	"github.com/okhomenko/shortline/pkg/response"
)

// handlePing handles health check requests to ensure the server is running.
func handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "pong")
}

// urlRequest represents the request payload for creating or updating a shortened URL.
type urlRequest struct {
	URL string `json:"url" validate:"required,url"`
}

// urlResponse represents the response payload for a shortened URL operation.
type urlResponse struct {
	ShortCode  string     `json:"short_code"`
	URL        string     `json:"url"`
	ShortURL   string     `json:"short_url,omitempty"`
	ClickCount *int64     `json:"click_count,omitempty"`
	LastAccess *time.Time `json:"last_accessed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// toURLResponse converts a URL model from the business layer into a response payload.
func toURLResponse(url *models.URL) urlResponse {
	return urlResponse{
		ShortCode: url.ShortCode,
		URL:       url.OriginalURL,
		CreatedAt: url.CreatedAt,
	}
}

// toURLStatsResponse converts a URL model including its click statistics.
func toURLStatsResponse(url *models.URL) urlResponse {
	resp := toURLResponse(url)
	resp.ClickCount = &url.ClickCount
	resp.LastAccess = url.LastAccessedAt
	return resp
}

// userRequest represents the request payload for registering a user.
type userRequest struct {
	Username    string  `json:"username" validate:"required,max=64"`
	DisplayName *string `json:"display_name" validate:"omitempty,max=128"`
}

// userResponse represents the response payload for a registered user.
// The API key appears here once and cannot be recovered later.
type userResponse struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	DisplayName *string   `json:"display_name,omitempty"`
	APIKey      string    `json:"api_key"`
	CreatedAt   time.Time `json:"created_at"`
}

// targetGroupResponse represents one row of the most-shortened ranking.
type targetGroupResponse struct {
	URL        string   `json:"url"`
	LinksCount int64    `json:"links_count"`
	ShortCodes []string `json:"short_codes"`
}

// decodeBody decodes the JSON request body into v, writing the error
// response itself. It reports whether decoding succeeded.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		if errors.Is(err, io.EOF) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.EmptyRequestBodyResponse)
			return false
		}

		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.BadRequestResponse)
		return false
	}

	return true
}

// handleRegisterUser handles POST requests to register a user and issue its API key.
func handleRegisterUser(svc UserService, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleRegisterUser"
	const successMsg = "The user has been registered successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		var req userRequest

		if !decodeBody(w, r, &req) {
			return
		}

		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationErrorResponse(err))
			return
		}

		user, err := svc.Register(r.Context(), req.Username, req.DisplayName)
		if err != nil {
			if errors.Is(err, database.ErrUsernameExists) {
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, response.UsernameTakenResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.SuccessResponse(successMsg, userResponse{
			ID:          user.ID,
			Username:    user.Username,
			DisplayName: user.DisplayName,
			APIKey:      user.APIKey,
			CreatedAt:   user.CreatedAt,
		}))
	}
}

// handleShortenURL handles POST requests to shorten a URL.
//
// The request must carry a valid API key and a structurally valid URL. The
// handler calls the URL shortening service and returns the generated short
// code with relevant metadata.
func handleShortenURL(svc URLService, validate *validator.Validate, baseURL string) http.HandlerFunc {
	const op = "api.http.handleShortenURL"
	const successMsg = "The URL has been shortened successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		var req urlRequest

		if !decodeBody(w, r, &req) {
			return
		}

		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationErrorResponse(err))
			return
		}

		url, err := svc.ShortenURL(r.Context(), req.URL, r.Header.Get(apiKeyHeader))
		if err != nil {
			switch {
			case errors.Is(err, service.ErrUnauthorized):
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.UnauthorizedResponse)
			case errors.Is(err, service.ErrInvalidURL):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.InvalidURLResponse)
			default:
				httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.ServerErrorResponse)
			}
			return
		}

		data := toURLResponse(url)
		data.ShortURL = fmt.Sprintf("%s/r/%s", baseURL, url.ShortCode)

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.SuccessResponse(successMsg, data))
	}
}

// handleResolveShortCode handles GET requests to resolve a short code into the original URL.
//
// Resolution counts as a click. Deactivated and unknown codes both yield 404.
func handleResolveShortCode(svc URLService) http.HandlerFunc {
	const op = "api.http.handleResolveShortCode"
	const successMsg = "The short code was successfully resolved."

	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")

		url, err := svc.ResolveShortCode(r.Context(), shortCode)
		if err != nil {
			if errors.Is(err, database.ErrURLNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toURLResponse(url)))
	}
}

// handleRedirect handles the browser-facing short link: it resolves the
// code and issues an HTTP redirect to the original URL.
func handleRedirect(svc URLService) http.HandlerFunc {
	const op = "api.http.handleRedirect"

	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")

		url, err := svc.ResolveShortCode(r.Context(), shortCode)
		if err != nil {
			if errors.Is(err, database.ErrURLNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		http.Redirect(w, r, url.OriginalURL, http.StatusFound)
	}
}

// handleModifyURL handles PUT requests to modify an existing URL.
//
// The request must contain a valid new URL and the owner's API key. The
// short code, owner and click statistics are unaffected.
func handleModifyURL(svc URLService, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleModifyURL"
	const successMsg = "The URL was successfully modified."

	return func(w http.ResponseWriter, r *http.Request) {
		var req urlRequest

		if !decodeBody(w, r, &req) {
			return
		}

		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationErrorResponse(err))
			return
		}

		shortCode := chi.URLParam(r, "shortCode")

		url, err := svc.ModifyURL(r.Context(), shortCode, req.URL, r.Header.Get(apiKeyHeader))
		if err != nil {
			writeMutationError(w, r, op, err)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toURLResponse(url)))
	}
}

// handleDeactivateURL handles DELETE requests to deactivate the URL.
//
// Once deactivated, the URL will no longer be functional. Deactivating an
// already deactivated code yields 404.
func handleDeactivateURL(svc URLService) http.HandlerFunc {
	const op = "api.http.handleDeactivateURL"
	const successMsg = "The URL was successfully deactivated."

	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")

		err := svc.DeactivateURL(r.Context(), shortCode, r.Header.Get(apiKeyHeader))
		if err != nil {
			writeMutationError(w, r, op, err)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg))
	}
}

// writeMutationError maps the mutation error taxonomy onto HTTP statuses.
func writeMutationError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.UnauthorizedResponse)
	case errors.Is(err, service.ErrForbidden):
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, response.ForbiddenResponse)
	case errors.Is(err, database.ErrURLNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.ResourceNotFoundResponse)
	case errors.Is(err, service.ErrInvalidURL):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.InvalidURLResponse)
	default:
		httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.ServerErrorResponse)
	}
}

// handleGetURLStats handles GET requests to retrieve usage statistics for a shortened URL.
//
// Unlike resolution, fetching statistics doesn't count as a click.
func handleGetURLStats(svc URLService) http.HandlerFunc {
	const op = "api.http.handleGetURLStats"
	const successMsg = "The URL statistics retrieved successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")

		url, err := svc.GetURLStats(r.Context(), shortCode)
		if err != nil {
			if errors.Is(err, database.ErrURLNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toURLStatsResponse(url)))
	}
}

// handleLatestURLs handles GET requests for the most recently created URLs.
func handleLatestURLs(svc URLService) http.HandlerFunc {
	const op = "api.http.handleLatestURLs"
	const successMsg = "The latest URLs retrieved successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		urls, err := svc.LatestURLs(r.Context())
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toURLResponses(urls)))
	}
}

// handlePopularURLs handles GET requests for URLs ranked by click count.
func handlePopularURLs(svc URLService) http.HandlerFunc {
	const op = "api.http.handlePopularURLs"
	const successMsg = "The popular URLs retrieved successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		urls, err := svc.PopularURLs(r.Context())
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		data := make([]urlResponse, 0, len(urls))
		for i := range urls {
			data = append(data, toURLStatsResponse(&urls[i]))
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, data))
	}
}

// handleMostShortenedTargets handles GET requests for targets ranked by the
// number of short codes pointing at them.
func handleMostShortenedTargets(svc URLService) http.HandlerFunc {
	const op = "api.http.handleMostShortenedTargets"
	const successMsg = "The most shortened targets retrieved successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		groups, err := svc.MostShortenedTargets(r.Context())
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		data := make([]targetGroupResponse, 0, len(groups))
		for _, g := range groups {
			data = append(data, targetGroupResponse{
				URL:        g.OriginalURL,
				LinksCount: g.LinksCount,
				ShortCodes: g.ShortCodes,
			})
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, data))
	}
}

func toURLResponses(urls []models.URL) []urlResponse {
	data := make([]urlResponse, 0, len(urls))
	for i := range urls {
		data = append(data, toURLResponse(&urls[i]))
	}
	return data
}
