// Package accounts serves registration, login and token refresh. A successful register or
// login returns a bearer token that every other /api route requires.
package accounts

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/task-manager/task-manager/internal/api/apierror"
	"github.com/task-manager/task-manager/internal/auth"
	"github.com/task-manager/task-manager/internal/config"
	"github.com/task-manager/task-manager/internal/db/models"
	"github.com/task-manager/task-manager/internal/db/repositories"
	"github.com/task-manager/task-manager/internal/middleware"
	"github.com/task-manager/task-manager/internal/telemetry"
)

// RegisterRequest creates an organization and its first user
type RegisterRequest struct {
	Email            string      `json:"email" binding:"required,email,max=255"`
	Password         string      `json:"password" binding:"required,min=6,max=72"`
	FirstName        string      `json:"firstName" binding:"required,max=100"`
	LastName         string      `json:"lastName" binding:"required,max=100"`
	OrganizationName string      `json:"organizationName" binding:"required,max=255"`
	Role             models.Role `json:"role" binding:"required,userrole"`
}

// LoginRequest exchanges credentials for a token
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is returned by register and login
type TokenResponse struct {
	AccessToken string       `json:"access_token"`
	User        *models.User `json:"user"`
}

// Handlers serves /api/auth
type Handlers struct {
	cfg   config.AuthConfig
	store Store
}

// NewHandlers creates account handlers
func NewHandlers(cfg config.AuthConfig, store Store) *Handlers {
	return &Handlers{cfg: cfg, store: store}
}

// RegisterRoutes mounts the public routes on public and the token routes on authed
func (h *Handlers) RegisterRoutes(public, authed *gin.RouterGroup) {
	public.POST("/auth/register", h.RegisterHandler())
	public.POST("/auth/login", h.LoginHandler())
	authed.GET("/auth/me", h.MeHandler())
	authed.POST("/auth/refresh", h.RefreshHandler())
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func countAttempt(op, result string) {
	telemetry.AuthAttemptsTotal.WithLabelValues(op, result).Inc()
}

// @Summary      Register
// @Description  Create a new root organization together with its first user.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  RegisterRequest  true  "Registration"
// @Success      201  {object}  TokenResponse
// @Failure      400  {object}  map[string]interface{}  "Validation failed"
// @Failure      403  {object}  map[string]interface{}  "Registration disabled"
// @Failure      409  {object}  map[string]interface{}  "Email already registered"
// @Router       /api/auth/register [post]
// RegisterHandler creates an organization and user, then signs the user in
// POST /api/auth/register
func (h *Handlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.cfg.AllowRegistration {
			countAttempt("register", "disabled")
			c.JSON(http.StatusForbidden, gin.H{"error": "Registration is disabled"})
			return
		}

		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierror.BindError(c, err)
			return
		}
		ctx := c.Request.Context()
		email := normalizeEmail(req.Email)

		existing, err := h.store.GetUserByEmail(ctx, email)
		if err != nil {
			countAttempt("register", "error")
			apierror.Write(c, err)
			return
		}
		if existing != nil {
			countAttempt("register", "conflict")
			c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
			return
		}

		hash, err := auth.HashPassword(req.Password, h.cfg.BcryptCost)
		if err != nil {
			countAttempt("register", "error")
			apierror.Write(c, err)
			return
		}

		org := &models.Organization{Name: strings.TrimSpace(req.OrganizationName)}
		user := &models.User{
			Email:        email,
			PasswordHash: hash,
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			Role:         req.Role,
		}
		if err := h.store.Register(ctx, org, user); err != nil {
			if errors.Is(err, repositories.ErrDuplicateEmail) {
				countAttempt("register", "conflict")
				c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
				return
			}
			countAttempt("register", "error")
			apierror.Write(c, err)
			return
		}

		token, err := auth.GenerateJWT(user, h.cfg.TokenTTL)
		if err != nil {
			countAttempt("register", "error")
			apierror.Write(c, err)
			return
		}

		countAttempt("register", "success")
		slog.InfoContext(ctx, "user registered", "user_id", user.ID, "organization_id", org.ID, "role", user.Role)
		c.JSON(http.StatusCreated, TokenResponse{AccessToken: token, User: user})
	}
}

// @Summary      Login
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  LoginRequest  true  "Credentials"
// @Success      200  {object}  TokenResponse
// @Failure      401  {object}  map[string]interface{}  "Invalid credentials"
// @Router       /api/auth/login [post]
// LoginHandler verifies credentials and issues a token
// POST /api/auth/login
func (h *Handlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierror.BindError(c, err)
			return
		}
		ctx := c.Request.Context()

		user, err := h.store.GetUserByEmail(ctx, normalizeEmail(req.Email))
		if err != nil {
			countAttempt("login", "error")
			apierror.Write(c, err)
			return
		}
		// Unknown email and wrong password get the same answer.
		if user == nil || auth.CheckPassword(user.PasswordHash, req.Password) != nil {
			countAttempt("login", "invalid_credentials")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}

		token, err := auth.GenerateJWT(user, h.cfg.TokenTTL)
		if err != nil {
			countAttempt("login", "error")
			apierror.Write(c, err)
			return
		}

		countAttempt("login", "success")
		c.JSON(http.StatusOK, TokenResponse{AccessToken: token, User: user})
	}
}

// @Summary      Current user
// @Tags         Authentication
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "user: models.User, organization: models.Organization"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/auth/me [get]
// MeHandler returns the authenticated user and their organization
// GET /api/auth/me
func (h *Handlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.UserFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		org, err := h.store.GetOrganizationByID(c.Request.Context(), user.OrganizationID)
		if err != nil {
			apierror.Write(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"user":         user,
			"organization": org,
		})
	}
}

// @Summary      Refresh token
// @Tags         Authentication
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "access_token"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/auth/refresh [post]
// RefreshHandler issues a fresh token carrying the user's current role
// POST /api/auth/refresh
func (h *Handlers) RefreshHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.UserFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		token, err := auth.GenerateJWT(user, h.cfg.TokenTTL)
		if err != nil {
			apierror.Write(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"access_token": token})
	}
}
