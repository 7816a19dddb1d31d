package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/go-chi/httplog/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/okhomenko/shortline/internal/database"
	"github.com/okhomenko/shortline/internal/event"
	"github.com/okhomenko/shortline/internal/models"
	"github.com/okhomenko/shortline/internal/service"
	"github.com/okhomenko/shortline/pkg/response"
)

const (
	testBaseURL   = "http://localhost:8080"
	testAPIKey    = "apikeyapikeyapikeyapikeyapikey12"
	testHeartbeat = 50 * time.Millisecond
)

type MockURLService struct {
	mock.Mock
}

func (s *MockURLService) ShortenURL(ctx context.Context, originalURL, apiKey string) (*models.URL, error) {
	args := s.Called(ctx, originalURL, apiKey)
	url, _ := args.Get(0).(*models.URL)
	return url, args.Error(1)
}

func (s *MockURLService) ResolveShortCode(ctx context.Context, shortCode string) (*models.URL, error) {
	args := s.Called(ctx, shortCode)
	url, _ := args.Get(0).(*models.URL)
	return url, args.Error(1)
}

func (s *MockURLService) ModifyURL(ctx context.Context, shortCode, originalURL, apiKey string) (*models.URL, error) {
	args := s.Called(ctx, shortCode, originalURL, apiKey)
	url, _ := args.Get(0).(*models.URL)
	return url, args.Error(1)
}

func (s *MockURLService) DeactivateURL(ctx context.Context, shortCode, apiKey string) error {
	args := s.Called(ctx, shortCode, apiKey)
	return args.Error(0)
}

func (s *MockURLService) GetURLStats(ctx context.Context, shortCode string) (*models.URL, error) {
	args := s.Called(ctx, shortCode)
	url, _ := args.Get(0).(*models.URL)
	return url, args.Error(1)
}

func (s *MockURLService) LatestURLs(ctx context.Context) ([]models.URL, error) {
	args := s.Called(ctx)
	urls, _ := args.Get(0).([]models.URL)
	return urls, args.Error(1)
}

func (s *MockURLService) PopularURLs(ctx context.Context) ([]models.URL, error) {
	args := s.Called(ctx)
	urls, _ := args.Get(0).([]models.URL)
	return urls, args.Error(1)
}

func (s *MockURLService) MostShortenedTargets(ctx context.Context) ([]models.TargetGroup, error) {
	args := s.Called(ctx)
	groups, _ := args.Get(0).([]models.TargetGroup)
	return groups, args.Error(1)
}

type MockUserService struct {
	mock.Mock
}

func (s *MockUserService) Register(ctx context.Context, username string, displayName *string) (*models.User, error) {
	args := s.Called(ctx, username, displayName)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

type HandlersTestSuite struct {
	suite.Suite
	logger      *httplog.Logger
	urlSvcMock  *MockURLService
	userSvcMock *MockUserService
	bus         *event.Bus
	server      *httptest.Server
	e           *httpexpect.Expect
}

func (suite *HandlersTestSuite) SetupSuite() {
	suite.logger = httplog.NewLogger("", httplog.Options{Writer: io.Discard})
}

func (suite *HandlersTestSuite) SetupSubTest() {
	suite.urlSvcMock = new(MockURLService)
	suite.userSvcMock = new(MockUserService)
	suite.bus = event.NewBus(event.DefaultBufferSize)

	router := NewRouter(suite.logger, suite.urlSvcMock, suite.userSvcMock, suite.bus, RouterConfig{
		BaseURL:           testBaseURL,
		HeartbeatInterval: testHeartbeat,
	})

	suite.server = httptest.NewServer(router)
	suite.e = httpexpect.Default(suite.T(), suite.server.URL)
}

func (suite *HandlersTestSuite) TearDownSubTest() {
	suite.urlSvcMock.AssertExpectations(suite.T())
	suite.userSvcMock.AssertExpectations(suite.T())
	suite.server.Close()
}

func (suite *HandlersTestSuite) TestPing() {
	const path = "/api/v1/ping"

	suite.Run("success", func() {
		suite.e.GET(path).
			Expect().
			Status(http.StatusOK).
			Text().IsEqual("pong\n")
	})
}

func (suite *HandlersTestSuite) TestRegisterUser() {
	const path = "/api/v1/users"

	suite.Run("empty request body", func() {
		suite.e.POST(path).
			Expect().
			Status(http.StatusBadRequest).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.EmptyRequestBodyResponse.Message)
	})

	suite.Run("validation error", func() {
		suite.e.POST(path).
			WithJSON(map[string]string{
				"display_name": "The Gopher",
			}).
			Expect().
			Status(http.StatusBadRequest).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			ContainsKey("message").
			ContainsKey("details")
	})

	suite.Run("username taken", func() {
		suite.userSvcMock.
			On("Register", mock.Anything, "gopher", (*string)(nil)).
			Times(1).
			Return(nil, database.ErrUsernameExists)

		suite.e.POST(path).
			WithJSON(map[string]string{
				"username": "gopher",
			}).
			Expect().
			Status(http.StatusConflict).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.UsernameTakenResponse.Message)

		suite.userSvcMock.AssertNumberOfCalls(suite.T(), "Register", 1)
	})

	suite.Run("success", func() {
		suite.userSvcMock.
			On("Register", mock.Anything, "gopher", (*string)(nil)).
			Times(1).
			Return(&models.User{
				ID:       1,
				Username: "gopher",
				APIKey:   testAPIKey,
			}, nil)

		suite.e.POST(path).
			WithJSON(map[string]string{
				"username": "gopher",
			}).
			Expect().
			Status(http.StatusCreated).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusSuccess).
			ContainsKey("message").
			Value("data").Object().
			HasValue("username", "gopher").
			HasValue("api_key", testAPIKey)

		suite.userSvcMock.AssertNumberOfCalls(suite.T(), "Register", 1)
	})
}

func (suite *HandlersTestSuite) TestShortenURL() {
	const path = "/api/v1/shorten"

	suite.Run("empty request body", func() {
		suite.e.POST(path).
			Expect().
			Status(http.StatusBadRequest).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.EmptyRequestBodyResponse.Message)
	})

	suite.Run("invalid request body", func() {
		suite.e.POST(path).
			WithJSON("invalid body").
			Expect().
			Status(http.StatusBadRequest).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.BadRequestResponse.Message)
	})

	suite.Run("validation error", func() {
		suite.e.POST(path).
			WithJSON(map[string]string{
				"url": "invalid url",
			}).
			Expect().
			Status(http.StatusBadRequest).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			ContainsKey("message").
			ContainsKey("details")
	})

	suite.Run("missing api key", func() {
		suite.urlSvcMock.
			On("ShortenURL", mock.Anything, "https://example.com", "").
			Times(1).
			Return(nil, service.ErrUnauthorized)

		suite.e.POST(path).
			WithJSON(map[string]string{
				"url": "https://example.com",
			}).
			Expect().
			Status(http.StatusUnauthorized).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.UnauthorizedResponse.Message)

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "ShortenURL", 1)
	})

	suite.Run("invalid target", func() {
		suite.urlSvcMock.
			On("ShortenURL", mock.Anything, "https://example.com", testAPIKey).
			Times(1).
			Return(nil, service.ErrInvalidURL)

		suite.e.POST(path).
			WithHeader(apiKeyHeader, testAPIKey).
			WithJSON(map[string]string{
				"url": "https://example.com",
			}).
			Expect().
			Status(http.StatusBadRequest).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.InvalidURLResponse.Message)

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "ShortenURL", 1)
	})

	suite.Run("server error", func() {
		suite.urlSvcMock.
			On("ShortenURL", mock.Anything, "https://example.com", testAPIKey).
			Times(1).
			Return(nil, errors.New("unknown error"))

		suite.e.POST(path).
			WithHeader(apiKeyHeader, testAPIKey).
			WithJSON(map[string]string{
				"url": "https://example.com",
			}).
			Expect().
			Status(http.StatusInternalServerError).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ServerErrorResponse.Message)

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "ShortenURL", 1)
	})

	suite.Run("success", func() {
		suite.urlSvcMock.
			On("ShortenURL", mock.Anything, "https://example.com", testAPIKey).
			Times(1).
			Return(&models.URL{
				ShortCode:   "abc123",
				OriginalURL: "https://example.com",
			}, nil)

		suite.e.POST(path).
			WithHeader(apiKeyHeader, testAPIKey).
			WithJSON(map[string]string{
				"url": "https://example.com",
			}).
			Expect().
			Status(http.StatusCreated).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusSuccess).
			ContainsKey("message").
			Value("data").Object().
			HasValue("short_code", "abc123").
			HasValue("url", "https://example.com").
			HasValue("short_url", testBaseURL+"/r/abc123")

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "ShortenURL", 1)
	})
}

func (suite *HandlersTestSuite) TestResolveShortCode() {
	const path = "/api/v1/shorten/%s"

	suite.Run("not found", func() {
		suite.urlSvcMock.
			On("ResolveShortCode", mock.Anything, "abc123").
			Times(1).
			Return(nil, database.ErrURLNotFound)

		suite.e.GET(fmt.Sprintf(path, "abc123")).
			Expect().
			Status(http.StatusNotFound).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ResourceNotFoundResponse.Message)

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "ResolveShortCode", 1)
	})

	suite.Run("server error", func() {
		suite.urlSvcMock.
			On("ResolveShortCode", mock.Anything, "abc123").
			Times(1).
			Return(nil, errors.New("unknown error"))

		suite.e.GET(fmt.Sprintf(path, "abc123")).
			Expect().
			Status(http.StatusInternalServerError).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ServerErrorResponse.Message)

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "ResolveShortCode", 1)
	})

	suite.Run("success", func() {
		suite.urlSvcMock.
			On("ResolveShortCode", mock.Anything, "abc123").
			Times(1).
			Return(&models.URL{
				ShortCode:   "abc123",
				OriginalURL: "https://example.com",
				ClickCount:  1,
			}, nil)

		suite.e.GET(fmt.Sprintf(path, "abc123")).
			Expect().
			Status(http.StatusOK).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusSuccess).
			ContainsKey("message").
			Value("data").Object().
			HasValue("short_code", "abc123").
			HasValue("url", "https://example.com").
			NotContainsKey("click_count")

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "ResolveShortCode", 1)
	})
}

func (suite *HandlersTestSuite) TestRedirect() {
	const path = "/r/%s"

	suite.Run("not found", func() {
		suite.urlSvcMock.
			On("ResolveShortCode", mock.Anything, "abc123").
			Times(1).
			Return(nil, database.ErrURLNotFound)

		suite.e.GET(fmt.Sprintf(path, "abc123")).
			Expect().
			Status(http.StatusNotFound).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ResourceNotFoundResponse.Message)

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "ResolveShortCode", 1)
	})

	suite.Run("redirects to the original url", func() {
		suite.urlSvcMock.
			On("ResolveShortCode", mock.Anything, "abc123").
			Times(1).
			Return(&models.URL{
				ShortCode:   "abc123",
				OriginalURL: "https://example.com",
			}, nil)

		suite.e.GET(fmt.Sprintf(path, "abc123")).
			WithRedirectPolicy(httpexpect.DontFollowRedirects).
			Expect().
			Status(http.StatusFound).
			Header("Location").IsEqual("https://example.com")

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "ResolveShortCode", 1)
	})
}

func (suite *HandlersTestSuite) TestModifyURL() {
	const path = "/api/v1/shorten/%s"

	suite.Run("empty request body", func() {
		suite.e.PUT(fmt.Sprintf(path, "abc123")).
			Expect().
			Status(http.StatusBadRequest).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.EmptyRequestBodyResponse.Message)
	})

	suite.Run("validation error", func() {
		suite.e.PUT(fmt.Sprintf(path, "abc123")).
			WithJSON(map[string]string{
				"url": "invalid url",
			}).
			Expect().
			Status(http.StatusBadRequest).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			ContainsKey("message").
			ContainsKey("details")
	})

	suite.Run("missing api key", func() {
		suite.urlSvcMock.
			On("ModifyURL", mock.Anything, "abc123", "https://new-example.com", "").
			Times(1).
			Return(nil, service.ErrUnauthorized)

		suite.e.PUT(fmt.Sprintf(path, "abc123")).
			WithJSON(map[string]string{
				"url": "https://new-example.com",
			}).
			Expect().
			Status(http.StatusUnauthorized).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.UnauthorizedResponse.Message)

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "ModifyURL", 1)
	})

	suite.Run("not the owner", func() {
		suite.urlSvcMock.
			On("ModifyURL", mock.Anything, "abc123", "https://new-example.com", testAPIKey).
			Times(1).
			Return(nil, service.ErrForbidden)

		suite.e.PUT(fmt.Sprintf(path, "abc123")).
			WithHeader(apiKeyHeader, testAPIKey).
			WithJSON(map[string]string{
				"url": "https://new-example.com",
			}).
			Expect().
			Status(http.StatusForbidden).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ForbiddenResponse.Message)

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "ModifyURL", 1)
	})

	suite.Run("not found", func() {
		suite.urlSvcMock.
			On("ModifyURL", mock.Anything, "abc123", "https://new-example.com", testAPIKey).
			Times(1).
			Return(nil, database.ErrURLNotFound)

		suite.e.PUT(fmt.Sprintf(path, "abc123")).
			WithHeader(apiKeyHeader, testAPIKey).
			WithJSON(map[string]string{
				"url": "https://new-example.com",
			}).
			Expect().
			Status(http.StatusNotFound).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ResourceNotFoundResponse.Message)

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "ModifyURL", 1)
	})

	suite.Run("success", func() {
		suite.urlSvcMock.
			On("ModifyURL", mock.Anything, "abc123", "https://new-example.com", testAPIKey).
			Times(1).
			Return(&models.URL{
				ShortCode:   "abc123",
				OriginalURL: "https://new-example.com",
			}, nil)

		suite.e.PUT(fmt.Sprintf(path, "abc123")).
			WithHeader(apiKeyHeader, testAPIKey).
			WithJSON(map[string]string{
				"url": "https://new-example.com",
			}).
			Expect().
			Status(http.StatusOK).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusSuccess).
			ContainsKey("message").
			Value("data").Object().
			HasValue("short_code", "abc123").
			HasValue("url", "https://new-example.com")

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "ModifyURL", 1)
	})
}

func (suite *HandlersTestSuite) TestDeactivateURL() {
	const path = "/api/v1/shorten/%s"

	suite.Run("missing api key", func() {
		suite.urlSvcMock.
			On("DeactivateURL", mock.Anything, "abc123", "").
			Times(1).
			Return(service.ErrUnauthorized)

		suite.e.DELETE(fmt.Sprintf(path, "abc123")).
			Expect().
			Status(http.StatusUnauthorized).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.UnauthorizedResponse.Message)

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "DeactivateURL", 1)
	})

	suite.Run("not the owner", func() {
		suite.urlSvcMock.
			On("DeactivateURL", mock.Anything, "abc123", testAPIKey).
			Times(1).
			Return(service.ErrForbidden)

		suite.e.DELETE(fmt.Sprintf(path, "abc123")).
			WithHeader(apiKeyHeader, testAPIKey).
			Expect().
			Status(http.StatusForbidden).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ForbiddenResponse.Message)

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "DeactivateURL", 1)
	})

	suite.Run("not found", func() {
		suite.urlSvcMock.
			On("DeactivateURL", mock.Anything, "abc123", testAPIKey).
			Times(1).
			Return(database.ErrURLNotFound)

		suite.e.DELETE(fmt.Sprintf(path, "abc123")).
			WithHeader(apiKeyHeader, testAPIKey).
			Expect().
			Status(http.StatusNotFound).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ResourceNotFoundResponse.Message)

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "DeactivateURL", 1)
	})

	suite.Run("success", func() {
		suite.urlSvcMock.
			On("DeactivateURL", mock.Anything, "abc123", testAPIKey).
			Times(1).
			Return(nil)

		suite.e.DELETE(fmt.Sprintf(path, "abc123")).
			WithHeader(apiKeyHeader, testAPIKey).
			Expect().
			Status(http.StatusOK).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusSuccess).
			ContainsKey("message")

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "DeactivateURL", 1)
	})
}

func (suite *HandlersTestSuite) TestGetURLStats() {
	const path = "/api/v1/shorten/%s/stats"

	suite.Run("not found", func() {
		suite.urlSvcMock.
			On("GetURLStats", mock.Anything, "abc123").
			Times(1).
			Return(nil, database.ErrURLNotFound)

		suite.e.GET(fmt.Sprintf(path, "abc123")).
			Expect().
			Status(http.StatusNotFound).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ResourceNotFoundResponse.Message)

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "GetURLStats", 1)
	})

	suite.Run("success", func() {
		suite.urlSvcMock.
			On("GetURLStats", mock.Anything, "abc123").
			Times(1).
			Return(&models.URL{
				ShortCode:   "abc123",
				OriginalURL: "https://example.com",
				ClickCount:  1,
			}, nil)

		suite.e.GET(fmt.Sprintf(path, "abc123")).
			Expect().
			Status(http.StatusOK).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusSuccess).
			ContainsKey("message").
			Value("data").Object().
			HasValue("short_code", "abc123").
			HasValue("url", "https://example.com").
			HasValue("click_count", int64(1))

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "GetURLStats", 1)
	})
}

func (suite *HandlersTestSuite) TestLinkRankings() {
	suite.Run("latest", func() {
		suite.urlSvcMock.
			On("LatestURLs", mock.Anything).
			Times(1).
			Return([]models.URL{
				{ShortCode: "code2", OriginalURL: "https://example.com"},
				{ShortCode: "code1", OriginalURL: "https://example.com"},
			}, nil)

		data := suite.e.GET("/api/v1/links/latest").
			Expect().
			Status(http.StatusOK).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusSuccess).
			Value("data").Array()

		data.Length().IsEqual(2)
		data.Value(0).Object().HasValue("short_code", "code2")
		data.Value(1).Object().HasValue("short_code", "code1")

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "LatestURLs", 1)
	})

	suite.Run("popular includes click stats", func() {
		suite.urlSvcMock.
			On("PopularURLs", mock.Anything).
			Times(1).
			Return([]models.URL{
				{ShortCode: "code1", OriginalURL: "https://example.com", ClickCount: 3},
			}, nil)

		data := suite.e.GET("/api/v1/links/popular").
			Expect().
			Status(http.StatusOK).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusSuccess).
			Value("data").Array()

		data.Length().IsEqual(1)
		data.Value(0).Object().
			HasValue("short_code", "code1").
			HasValue("click_count", int64(3))

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "PopularURLs", 1)
	})

	suite.Run("top shortened", func() {
		suite.urlSvcMock.
			On("MostShortenedTargets", mock.Anything).
			Times(1).
			Return([]models.TargetGroup{
				{
					OriginalURL: "https://example.com",
					LinksCount:  2,
					ShortCodes:  []string{"code1", "code2"},
				},
			}, nil)

		data := suite.e.GET("/api/v1/links/top-shortened").
			Expect().
			Status(http.StatusOK).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusSuccess).
			Value("data").Array()

		data.Length().IsEqual(1)
		data.Value(0).Object().
			HasValue("url", "https://example.com").
			HasValue("links_count", int64(2)).
			HasValue("short_codes", []string{"code1", "code2"})

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "MostShortenedTargets", 1)
	})

	suite.Run("server error", func() {
		suite.urlSvcMock.
			On("LatestURLs", mock.Anything).
			Times(1).
			Return(nil, errors.New("unknown error"))

		suite.e.GET("/api/v1/links/latest").
			Expect().
			Status(http.StatusInternalServerError).
			HasContentType("application/json").
			JSON().Object().
			HasValue("status", response.StatusError).
			HasValue("message", response.ServerErrorResponse.Message)

		suite.urlSvcMock.AssertNumberOfCalls(suite.T(), "LatestURLs", 1)
	})
}

func (suite *HandlersTestSuite) openEventStream(ctx context.Context) *http.Response {
	suite.T().Helper()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, suite.server.URL+"/api/v1/events", nil)
	suite.Require().NoError(err)

	resp, err := suite.server.Client().Do(req)
	suite.Require().NoError(err)

	return resp
}

func (suite *HandlersTestSuite) TestStreamEvents() {
	suite.Run("delivers creation events", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		resp := suite.openEventStream(ctx)
		defer resp.Body.Close()

		suite.Equal(http.StatusOK, resp.StatusCode)
		suite.Equal("text/event-stream", resp.Header.Get("Content-Type"))

		suite.Require().Eventually(func() bool {
			return suite.bus.Subscribers() == 1
		}, time.Second, 10*time.Millisecond)

		suite.bus.Publish(models.URLCreatedEvent{
			ShortCode:   "abc123",
			OriginalURL: "https://example.com",
			CreatedAt:   time.Now(),
		})

		scanner := bufio.NewScanner(resp.Body)
		var eventName, data string
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				eventName = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			}
			if data != "" {
				break
			}
		}

		suite.Equal("url_created", eventName)
		suite.Require().NotEmpty(data)

		var e models.URLCreatedEvent
		suite.Require().NoError(json.Unmarshal([]byte(data), &e))
		suite.Equal("abc123", e.ShortCode)
		suite.Equal("https://example.com", e.OriginalURL)
	})

	suite.Run("emits heartbeats while idle", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		resp := suite.openEventStream(ctx)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		var heartbeat string
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				heartbeat = line
				break
			}
		}

		suite.Equal(": keep-alive", heartbeat)
	})

	suite.Run("doesn't replay events for late subscribers", func() {
		suite.bus.Publish(models.URLCreatedEvent{
			ShortCode:   "abc123",
			OriginalURL: "https://example.com",
			CreatedAt:   time.Now(),
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		resp := suite.openEventStream(ctx)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		var first string
		for scanner.Scan() {
			if line := scanner.Text(); line != "" {
				first = line
				break
			}
		}

		suite.Equal(": keep-alive", first)
	})

	suite.Run("unregisters the subscriber on disconnect", func() {
		ctx, cancel := context.WithCancel(context.Background())

		resp := suite.openEventStream(ctx)

		suite.Require().Eventually(func() bool {
			return suite.bus.Subscribers() == 1
		}, time.Second, 10*time.Millisecond)

		cancel()
		resp.Body.Close()

		suite.Require().Eventually(func() bool {
			return suite.bus.Subscribers() == 0
		}, time.Second, 10*time.Millisecond)
	})
}

func TestAPI(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}
