package service

import (
	"context"
	"fmt"

	"github.com/okhomenko/shortline/internal/models"
	"github.com/okhomenko/shortline/internal/shortcode"
)

// UserService registers users and issues their API keys.
type UserService struct {
	userRepo UserRepository
}

func NewUserService(userRepo UserRepository) *UserService {
	return &UserService{
		userRepo: userRepo,
	}
}

// Register creates a user with a freshly generated API key. The key is
// returned once in the created user; it cannot be recovered later.
func (s *UserService) Register(ctx context.Context, username string, displayName *string) (*models.User, error) {
	const op = "service.UserService.Register"

	apiKey, err := shortcode.GenerateAPIKey()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.userRepo.Create(ctx, username, displayName, apiKey)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to register user: %w", op, err)
	}

	return user, nil
}
