package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/appforge/appforge/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const currentUserKey = "current_user"

// RequireUser is a middleware that resolves the caller from a bearer token.
// A missing, malformed, badly signed or expired token yields 401 with a
// generic message; a valid token whose subject no longer exists yields 404.
// Token validity and identity existence are different failure classes.
func RequireUser(tm *TokenManager, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			unauthorized(c)
			return
		}

		subject, err := tm.Verify(parts[1])
		if err != nil {
			unauthorized(c)
			return
		}

		var user models.User
		if err := db.WithContext(c.Request.Context()).Where("email = ?", subject).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"detail": "User not found"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
			return
		}

		c.Set(currentUserKey, &user)
		c.Next()
	}
}

func unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Could not validate credentials"})
}

// CurrentUser returns the authenticated user set by RequireUser.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, exists := c.Get(currentUserKey)
	if !exists {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}
