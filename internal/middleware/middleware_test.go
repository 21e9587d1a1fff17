package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/classroom-app/classroom-backend/internal/i18n"
	"github.com/classroom-app/classroom-backend/internal/models"
	"github.com/classroom-app/classroom-backend/internal/services"
	"github.com/classroom-app/classroom-backend/internal/testutil"
	"github.com/classroom-app/classroom-backend/internal/utils"
)

func init() {
	if err := i18n.Initialize("ko"); err != nil {
		panic(err)
	}
}

type fakeAuthenticator struct {
	users map[string]*models.User
	err   error
}

func (f *fakeAuthenticator) Authenticate(token string) (*models.User, *models.Session, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	user, ok := f.users[token]
	if !ok {
		return nil, nil, services.ErrUnauthorized
	}
	return user, &models.Session{BaseModel: models.BaseModel{ID: uuid.New()}, UserID: user.ID}, nil
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp utils.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func newAuthRouter(authenticator Authenticator) *gin.Engine {
	auth := NewAuth(authenticator, "classroom_token")

	r := gin.New()
	r.Use(I18nMiddleware())
	r.GET("/me", auth.AuthRequired(), func(c *gin.Context) {
		id, _ := utils.GetUserIDFromContext(c)
		c.String(http.StatusOK, id.String())
	})
	r.GET("/admin", auth.AuthRequired(), AdminRequired(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/catalog", auth.OptionalAuth(), func(c *gin.Context) {
		_, ok := utils.GetUserIDFromContext(c)
		if ok {
			c.String(http.StatusOK, "member")
			return
		}
		c.String(http.StatusOK, "guest")
	})
	return r
}

func TestAuthRequired(t *testing.T) {
	student := &models.User{BaseModel: models.BaseModel{ID: uuid.New()}, Role: models.UserRoleUser}
	router := newAuthRouter(&fakeAuthenticator{users: map[string]*models.User{"good": student}})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, utils.CodeUnauthorized, errorCode(t, w))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Token good")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, student.ID.String(), w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: "classroom_token", Value: "good"})
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRequiredSuspended(t *testing.T) {
	router := newAuthRouter(&fakeAuthenticator{err: services.ErrAccountSuspended})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer anything")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, utils.CodeUnauthorized, errorCode(t, w))
}

func TestAdminRequired(t *testing.T) {
	student := &models.User{BaseModel: models.BaseModel{ID: uuid.New()}, Role: models.UserRoleUser}
	admin := &models.User{BaseModel: models.BaseModel{ID: uuid.New()}, Role: models.UserRoleAdmin}
	router := newAuthRouter(&fakeAuthenticator{users: map[string]*models.User{"student": student, "admin": admin}})

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer student")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, utils.CodeForbidden, errorCode(t, w))

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer admin")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestOptionalAuth(t *testing.T) {
	student := &models.User{BaseModel: models.BaseModel{ID: uuid.New()}, Role: models.UserRoleUser}
	router := newAuthRouter(&fakeAuthenticator{users: map[string]*models.User{"good": student}})

	for token, want := range map[string]string{"": "guest", "bad": "guest", "good": "member"} {
		req := httptest.NewRequest(http.MethodGet, "/catalog", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, want, w.Body.String(), "token %q", token)
	}
}

func TestI18nMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(I18nMiddleware())
	r.GET("/lang", func(c *gin.Context) {
		c.String(http.StatusOK, utils.GetLangFromContext(c))
	})

	cases := []struct {
		name   string
		query  string
		header string
		want   string
	}{
		{"default", "", "", "ko"},
		{"header", "", "en-US,en;q=0.9", "en"},
		{"unsupported header", "", "fr-FR,fr;q=0.9", "ko"},
		{"header fallback to later tag", "", "fr-FR,en;q=0.8", "en"},
		{"query wins", "?lang=ko", "en-US", "ko"},
		{"unknown query", "?lang=xx", "en-US", "ko"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/lang"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Accept-Language", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Body.String())
		})
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(rate.Limit(0.001), 2)

	r := gin.New()
	r.Use(limiter.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuditLogMiddleware(t *testing.T) {
	db := testutil.NewDB(t)
	adminID := uuid.New()
	courseID := uuid.New()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(utils.ContextUserID, adminID)
		c.Next()
	})
	r.Use(AuditLogMiddleware(db))
	r.PUT("/api/v1/admin/courses/:id", func(c *gin.Context) {
		var body map[string]interface{}
		require.NoError(t, c.ShouldBindJSON(&body))
		assert.Equal(t, "secret-value", body["password"])
		c.Status(http.StatusOK)
	})
	r.GET("/api/v1/admin/courses", func(c *gin.Context) { c.Status(http.StatusOK) })

	body := `{"title":"Go","password":"secret-value"}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/courses/"+courseID.String(), strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/admin/courses", nil))

	var logs []models.AuditLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)

	entry := logs[0]
	assert.Equal(t, "PUT /api/v1/admin/courses/:id", entry.Action)
	assert.Equal(t, "courses", entry.ResourceType)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, courseID, *entry.ResourceID)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, adminID, *entry.UserID)
	assert.Equal(t, "[REDACTED]", entry.NewValues["password"])
	assert.Equal(t, "Go", entry.NewValues["title"])
}

func TestExtractResourceType(t *testing.T) {
	assert.Equal(t, "lessons", extractResourceType("/api/v1/admin/lessons/reorder"))
	assert.Equal(t, "webhooks", extractResourceType("/api/v1/webhooks"))
	assert.Equal(t, "unknown", extractResourceType("/"))
}
