// internal/middleware/auth.go
package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/classroom-app/classroom-backend/internal/i18n"
	"github.com/classroom-app/classroom-backend/internal/models"
	"github.com/classroom-app/classroom-backend/internal/services"
	"github.com/classroom-app/classroom-backend/internal/utils"
)

// Authenticator resolves an access token to its user and session.
type Authenticator interface {
	Authenticate(accessToken string) (*models.User, *models.Session, error)
}

// Auth builds the authentication middlewares around one Authenticator.
type Auth struct {
	authenticator Authenticator
	cookieName    string
}

func NewAuth(authenticator Authenticator, cookieName string) *Auth {
	return &Auth{
		authenticator: authenticator,
		cookieName:    cookieName,
	}
}

func (a *Auth) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := utils.GetLangFromContext(c)

		token, ok := a.extractToken(c)
		if !ok {
			utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthRequired))
			c.Abort()
			return
		}

		user, session, err := a.authenticator.Authenticate(token)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrAccountSuspended):
				utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthSuspended))
			case errors.Is(err, services.ErrSessionInvalid):
				utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthSessionRevoked))
			default:
				utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthInvalidToken))
			}
			c.Abort()
			return
		}

		setIdentity(c, user, session)
		c.Next()
	}
}

// OptionalAuth attaches the caller's identity when a valid token is present
// and lets anonymous requests through untouched.
func (a *Auth) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := a.extractToken(c)
		if !ok {
			c.Next()
			return
		}

		user, session, err := a.authenticator.Authenticate(token)
		if err != nil {
			c.Next()
			return
		}

		setIdentity(c, user, session)
		c.Next()
	}
}

func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := utils.GetUserRoleFromContext(c)
		if !exists || role != string(models.UserRoleAdmin) {
			utils.ForbiddenResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyAccessDenied))
			c.Abort()
			return
		}
		c.Next()
	}
}

// extractToken prefers "Authorization: Bearer <token>" and falls back to the
// session cookie.
func (a *Auth) extractToken(c *gin.Context) (string, bool) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}

	if a.cookieName != "" {
		if cookie, err := c.Cookie(a.cookieName); err == nil && cookie != "" {
			return cookie, true
		}
	}
	return "", false
}

func setIdentity(c *gin.Context, user *models.User, session *models.Session) {
	c.Set(utils.ContextUserID, user.ID)
	c.Set(utils.ContextUserRole, string(user.Role))
	c.Set(utils.ContextSessionID, session.ID)
}
