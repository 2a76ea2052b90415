package handlers

import (
	"errors"
	"net/http"

	"task-notify/internal/auth"
	"task-notify/internal/models"
	"task-notify/internal/services"
	"task-notify/pkg/logger"
	"task-notify/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	userService *services.UserService
	logger      *logger.Logger
}

func NewAuthHandler(userService *services.UserService, log *logger.Logger) *AuthHandler {
	return &AuthHandler{userService: userService, logger: log}
}

// Register godoc
// @Summary Register a new user
// @Description Register a new user with name, email and a password that satisfies the password policy
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.RegisterRequest true "User registration data"
// @Success 201 {object} response.Envelope{data=models.UserResponse} "User created"
// @Failure 400 {object} response.Envelope "Incomplete data, weak password or email taken"
// @Failure 500 {object} response.Envelope "Internal server error"
// @Router /register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.AuthIncompleteData)
		return
	}

	user, err := h.userService.Register(c.Request.Context(), &req)
	if err != nil {
		var pwErr *auth.PasswordError
		switch {
		case errors.As(err, &pwErr):
			response.FailMessage(c, http.StatusBadRequest, pwErr.Message)
		case errors.Is(err, services.ErrInvalidRequest):
			response.Fail(c, http.StatusBadRequest, response.AuthIncompleteData)
		case errors.Is(err, services.ErrUserAlreadyExists):
			response.Fail(c, http.StatusBadRequest, response.AuthEmailTaken)
		default:
			h.logger.Error("Register failed", "email", req.Email, "error", err)
			response.Fail(c, http.StatusInternalServerError, response.ErrCodeInternal)
		}
		return
	}

	response.Success(c, http.StatusCreated, response.AuthRegisterSuccess, user)
}

// Login godoc
// @Summary User login
// @Description Authenticate with email and password and receive a 24h bearer token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "User login credentials"
// @Success 200 {object} response.Envelope{data=models.LoginResponse} "Login successful"
// @Failure 401 {object} response.Envelope "Invalid credentials"
// @Failure 500 {object} response.Envelope "Internal server error"
// @Router /login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusUnauthorized, response.AuthLoginFailed)
		return
	}

	loginResponse, err := h.userService.Login(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			response.Fail(c, http.StatusUnauthorized, response.AuthLoginFailed)
			return
		}
		h.logger.Error("Login failed", "email", req.Email, "error", err)
		response.Fail(c, http.StatusInternalServerError, response.ErrCodeInternal)
		return
	}

	response.Success(c, http.StatusOK, response.AuthLoginSuccess, loginResponse)
}
