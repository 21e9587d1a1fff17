// internal/handlers/auth.go
package handlers

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/classroom-app/classroom-backend/internal/config"
	"github.com/classroom-app/classroom-backend/internal/i18n"
	"github.com/classroom-app/classroom-backend/internal/services"
	"github.com/classroom-app/classroom-backend/internal/utils"
)

type AuthHandler struct {
	authService  *services.AuthService
	oauthService *services.OAuthService
	config       *config.Config
}

func NewAuthHandler(authService *services.AuthService, oauthService *services.OAuthService, config *config.Config) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		oauthService: oauthService,
		config:       config,
	}
}

// POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.RegisterRequest
	if !bindAndValidate(c, &req) {
		return
	}

	authResponse, err := h.authService.Register(&req, clientInfo(c))
	if err != nil {
		respondError(c, err)
		return
	}

	h.setSessionCookie(c, authResponse)
	utils.CreatedResponse(c, gin.H{
		"message":       i18n.T(lang, i18n.KeyAuthRegisterSuccess),
		"user":          authResponse.User,
		"token":         authResponse.AccessToken,
		"refresh_token": authResponse.RefreshToken,
		"token_type":    authResponse.TokenType,
		"expires_in":    authResponse.ExpiresIn,
	})
}

// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.LoginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	authResponse, err := h.authService.Login(&req, clientInfo(c))
	if err != nil {
		respondError(c, err)
		return
	}

	h.setSessionCookie(c, authResponse)
	utils.SuccessResponse(c, gin.H{
		"message":       i18n.T(lang, i18n.KeyAuthLoginSuccess),
		"user":          authResponse.User,
		"token":         authResponse.AccessToken,
		"refresh_token": authResponse.RefreshToken,
		"token_type":    authResponse.TokenType,
		"expires_in":    authResponse.ExpiresIn,
	})
}

// POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	sessionID, ok := utils.GetSessionIDFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	if err := h.authService.Logout(sessionID); err != nil {
		respondError(c, err)
		return
	}

	h.clearSessionCookie(c)
	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyAuthLogoutSuccess),
	})
}

// POST /auth/refresh
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req services.RefreshRequest
	if !bindAndValidate(c, &req) {
		return
	}

	authResponse, err := h.authService.Refresh(req.RefreshToken)
	if err != nil {
		respondError(c, err)
		return
	}

	h.setSessionCookie(c, authResponse)
	utils.SuccessResponse(c, gin.H{
		"user":          authResponse.User,
		"token":         authResponse.AccessToken,
		"refresh_token": authResponse.RefreshToken,
		"token_type":    authResponse.TokenType,
		"expires_in":    authResponse.ExpiresIn,
	})
}

// GET /auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	user, err := h.authService.GetUserByID(userID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, user)
}

// GET /auth/oauth/:provider
func (h *AuthHandler) OAuthAuthorize(c *gin.Context) {
	provider, err := h.oauthService.ParseProvider(c.Param("provider"))
	if err != nil {
		respondError(c, err)
		return
	}

	authURL, err := h.oauthService.AuthorizeURL(provider, c.Query("redirect"))
	if err != nil {
		respondError(c, err)
		return
	}

	if c.Query("mode") == "json" {
		utils.SuccessResponse(c, gin.H{"url": authURL})
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// GET /auth/oauth/:provider/callback
func (h *AuthHandler) OAuthCallback(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	provider, err := h.oauthService.ParseProvider(c.Param("provider"))
	if err != nil {
		respondError(c, err)
		return
	}

	var req services.OAuthCallbackRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyAuthOAuthFailed), err.Error())
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	result, err := h.oauthService.Callback(c.Request.Context(), provider, &req, clientInfo(c))
	if err != nil {
		respondError(c, err)
		return
	}

	h.setSessionCookie(c, result.AuthResponse)

	if c.Query("mode") == "json" {
		utils.SuccessResponse(c, gin.H{
			"message":       i18n.T(lang, i18n.KeyAuthLoginSuccess),
			"user":          result.User,
			"token":         result.AccessToken,
			"refresh_token": result.RefreshToken,
			"token_type":    result.TokenType,
			"expires_in":    result.ExpiresIn,
			"created":       result.Created,
			"redirect":      result.Redirect,
		})
		return
	}

	target := h.config.Frontend.BaseURL + "/"
	if result.Redirect != "" {
		target = h.config.Frontend.BaseURL + result.Redirect
	}
	if _, err := url.Parse(target); err != nil {
		target = h.config.Frontend.BaseURL + "/"
	}
	c.Redirect(http.StatusFound, target)
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, auth *services.AuthResponse) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.config.JWT.CookieName, auth.AccessToken, auth.ExpiresIn, "/", "", h.config.JWT.CookieSecure, true)
}

func (h *AuthHandler) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.config.JWT.CookieName, "", -1, "/", "", h.config.JWT.CookieSecure, true)
}

func clientInfo(c *gin.Context) services.ClientInfo {
	return services.ClientInfo{
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	}
}
