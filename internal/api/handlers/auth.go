package handlers

import (
	"errors"
	"net/http"

	"garage-backend/internal/api/middleware"
	"garage-backend/internal/repository"
	"garage-backend/internal/services"
	"garage-backend/pkg/logger"
	"garage-backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService *services.AuthService
	userService *services.UserService
	log         *logger.Logger
}

func NewAuthHandler(authService *services.AuthService, userService *services.UserService, log *logger.Logger) *AuthHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &AuthHandler{
		authService: authService,
		userService: userService,
		log:         log.WithField("handler", "auth"),
	}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.authService.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, err, "create account")
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Account created", resp)
}

// Login answers every failure with the same message.
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Invalid credentials", nil)
		return
	}

	resp, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, err, "sign in")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Signed in", resp)
}

// Logout revokes the presented token. A token that is already invalid is
// treated as signed out.
func (h *AuthHandler) Logout(c *gin.Context) {
	token := middleware.BearerToken(c.GetHeader("Authorization"))
	if token == "" {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Authorization header required", nil)
		return
	}

	if err := h.authService.Logout(c.Request.Context(), token); err != nil && !errors.Is(err, services.ErrUnauthenticated) {
		respondError(c, h.log, err, "sign out")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Signed out", nil)
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	token, err := h.authService.Refresh(c.Request.Context(), middleware.TokenFrom(c))
	if err != nil {
		respondError(c, h.log, err, "refresh token")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Token refreshed", gin.H{"token": token})
}

func (h *AuthHandler) Profile(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	user, err := h.authService.Profile(c.Request.Context(), a)
	if err != nil {
		respondError(c, h.log, err, "load profile")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Profile retrieved", user)
}

func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var update repository.ProfileUpdate
	if !bindJSON(c, &update) {
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), a, update)
	if err != nil {
		respondError(c, h.log, err, "update profile")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Profile updated", user)
}
