package users

import (
	"errors"
	"net/http"

	"github.com/appforge/appforge/internal/auth"
	"github.com/gin-gonic/gin"
)

// RegisterRequest is the registration payload. Validation runs before any
// persistence attempt.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// LoginRequest carries form-encoded credentials per the OAuth2 password flow.
type LoginRequest struct {
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
}

// TokenResponse is the token issuance response body.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// RegisterHandler handles POST /api/v1/users/. Returns 201 with the new
// user (never the password hash), 409 on duplicate email, 422 on
// validation failure.
func RegisterHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
			return
		}

		user, err := svc.Register(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, ErrEmailTaken) {
				c.JSON(http.StatusConflict, gin.H{"detail": "Email already registered"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
			return
		}

		c.JSON(http.StatusCreated, user)
	}
}

// LoginHandler handles POST /api/v1/auth/token. Credentials arrive
// form-encoded; on success a signed bearer token is issued with the user's
// email as subject. All authentication failures produce the same 401.
func LoginHandler(svc *Service, tm *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBind(&req); err != nil {
			loginFailed(c)
			return
		}

		user, err := svc.Authenticate(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			if errors.Is(err, ErrInvalidCredentials) {
				loginFailed(c)
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
			return
		}

		token, err := tm.Issue(user.Email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
			return
		}

		c.JSON(http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
	}
}

func loginFailed(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	c.JSON(http.StatusUnauthorized, gin.H{"detail": "Incorrect username or password"})
}

// MeHandler handles GET /api/v1/users/me, returning the caller's profile.
func MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := auth.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "Could not validate credentials"})
			return
		}
		c.JSON(http.StatusOK, user)
	}
}
