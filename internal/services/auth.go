package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"garage-backend/internal/maintenance"
	"garage-backend/internal/models"
	"garage-backend/internal/repository"
	"garage-backend/pkg/jwt"
	"garage-backend/pkg/logger"

	"golang.org/x/crypto/bcrypt"
)

type AuthService struct {
	userRepo    repository.UserRepository
	jwtUtil     *jwt.JWTUtil
	revocations jwt.RevocationStore
	log         *logger.Logger
}

func NewAuthService(userRepo repository.UserRepository, jwtUtil *jwt.JWTUtil, revocations jwt.RevocationStore, log *logger.Logger) *AuthService {
	if log == nil {
		log = logger.Discard()
	}
	if revocations == nil {
		revocations = jwt.NewMemoryRevocationStore()
	}
	return &AuthService{
		userRepo:    userRepo,
		jwtUtil:     jwtUtil,
		revocations: revocations,
		log:         log.WithField("service", "auth"),
	}
}

type RegisterRequest struct {
	Email       string      `json:"email" validate:"required,email"`
	Password    string      `json:"password" validate:"required,min=6"`
	FirstName   string      `json:"firstName" validate:"required,notblank,max=50"`
	LastName    string      `json:"lastName" validate:"required,notblank,max=50"`
	PhoneNumber string      `json:"phoneNumber,omitempty" validate:"omitempty,max=30"`
	Address     string      `json:"address,omitempty" validate:"omitempty,max=200"`
	Role        models.Role `json:"role" validate:"omitempty,oneof=user mechanic"`
	GarageName  string      `json:"garageName,omitempty" validate:"required_if=Role mechanic,max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	User        *models.AuthUser `json:"user"`
	Token       string           `json:"token"`
	ExpiresAt   time.Time        `json:"expiresAt"`
	LandingPath string           `json:"landingPath"`
}

// Register creates the identity and its profile in one write and signs the
// new user in. Role defaults to owner.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*LoginResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Role == "" {
		req.Role = models.RoleUser
	}
	if errs := validateStruct(req); len(errs) > 0 {
		return nil, errs
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:       req.Email,
		Password:    string(hash),
		Role:        req.Role,
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		PhoneNumber: req.PhoneNumber,
		Address:     req.Address,
	}
	if req.Role == models.RoleMechanic {
		user.GarageName = strings.TrimSpace(req.GarageName)
	}

	created, err := s.userRepo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, maintenance.ValidationErrors{{Field: "email", Message: "email is already registered"}}
		}
		s.log.WithError(err).Error("Failed to create user")
		return nil, saveError("account", err)
	}

	s.log.WithUserID(created.ID.Hex()).WithField("role", created.Role).Info("User registered")
	return s.issue(created)
}

// Login checks the credentials. Every failure returns ErrInvalidCredentials;
// the real reason is only logged.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	log := s.log.WithField("email", email)

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		log.WithError(err).Warn("Login failed: user lookup")
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		log.Warn("Login failed: password mismatch")
		return nil, ErrInvalidCredentials
	}

	if err := s.userRepo.TouchLastLogin(ctx, user.ID.Hex()); err != nil {
		log.WithError(err).Warn("Failed to record last login")
	}
	return s.issue(user)
}

func (s *AuthService) issue(user *models.User) (*LoginResponse, error) {
	token, err := s.jwtUtil.GenerateToken(user.ID.Hex(), user.Email, string(user.Role))
	if err != nil {
		s.log.WithUserID(user.ID.Hex()).WithError(err).Error("Failed to sign token")
		return nil, err
	}
	return &LoginResponse{
		User:        user.ToAuthUser(),
		Token:       token,
		ExpiresAt:   time.Now().Add(s.jwtUtil.Expiry()),
		LandingPath: user.Role.LandingPath(),
	}, nil
}

// Authenticate resolves a bearer token to the caller. Revoked tokens and
// tokens of deleted users are rejected.
func (s *AuthService) Authenticate(ctx context.Context, token string) (Actor, *jwt.Claims, error) {
	claims, err := s.jwtUtil.ValidateToken(token)
	if err != nil {
		return Actor{}, nil, ErrUnauthenticated
	}

	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		s.log.WithError(err).Warn("Revocation check failed; accepting token")
	}
	if revoked {
		return Actor{}, nil, ErrUnauthenticated
	}

	role := models.Role(claims.Role)
	if !role.IsValid() {
		return Actor{}, nil, ErrUnauthenticated
	}
	return Actor{UserID: claims.UserID, Role: role}, claims, nil
}

// Logout revokes the token until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := s.jwtUtil.ValidateToken(token)
	if err != nil {
		return ErrUnauthenticated
	}
	until := time.Now().Add(s.jwtUtil.Expiry())
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	if err := s.revocations.Revoke(ctx, claims.ID, until); err != nil {
		s.log.WithUserID(claims.UserID).WithError(err).Error("Failed to revoke token")
		return err
	}
	s.log.WithUserID(claims.UserID).Info("User signed out")
	return nil
}

// Refresh reissues a token close to expiry. The user must still exist.
func (s *AuthService) Refresh(ctx context.Context, token string) (string, error) {
	actor, _, err := s.Authenticate(ctx, token)
	if err != nil {
		return "", err
	}
	if _, err := s.userRepo.FindByID(ctx, actor.UserID); err != nil {
		return "", ErrUnauthenticated
	}
	return s.jwtUtil.RefreshToken(token)
}

func (s *AuthService) Profile(ctx context.Context, actor Actor) (*models.AuthUser, error) {
	user, err := s.userRepo.FindByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	return user.ToAuthUser(), nil
}
