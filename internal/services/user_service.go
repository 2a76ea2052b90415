package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"task-notify/internal/auth"
	"task-notify/internal/models"
	"task-notify/internal/repositories"
	"task-notify/pkg/logger"
)

var (
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRequest     = errors.New("invalid request")
)

type UserService struct {
	repo     *repositories.UserRepository
	tokens   *auth.TokenManager
	logger   *logger.Logger
	hashCost int
}

func NewUserService(repo *repositories.UserRepository, tokens *auth.TokenManager, log *logger.Logger) *UserService {
	return &UserService{
		repo:     repo,
		tokens:   tokens,
		logger:   log,
		hashCost: auth.DefaultHashCost,
	}
}

// WithHashCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func (s *UserService) WithHashCost(cost int) *UserService {
	s.hashCost = cost
	return s
}

// Register creates a user. Password policy violations are returned as *auth.PasswordError.
func (s *UserService) Register(ctx context.Context, req *models.RegisterRequest) (*models.UserResponse, error) {
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return nil, ErrInvalidRequest
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		return nil, err
	}

	hashed, err := auth.HashPassword(req.Password, s.hashCost)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Name:     req.Name,
		Email:    req.Email,
		Password: hashed,
	}
	if err := s.repo.Create(ctx, &user); err != nil {
		if errors.Is(err, repositories.ErrEmailExists) {
			s.logger.Info("Registration rejected: email already exists", "email", req.Email)
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("User registered", "userID", user.ID, "email", user.Email)
	resp := user.ToResponse()
	return &resp, nil
}

func (s *UserService) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := auth.CheckPassword(user.Password, req.Password); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &models.LoginResponse{
		Token: token,
		User:  user.ToResponse(),
	}, nil
}
