package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/classroom-app/classroom-backend/internal/i18n"
	"github.com/classroom-app/classroom-backend/internal/middleware"
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

func newRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	db := testutil.NewDB(t)
	cfg := testutil.Config(t)
	svc, err := services.NewContainer(db, cfg)
	require.NoError(t, err)
	return Initialize(db, cfg, svc, middleware.DefaultRateLimiters()), db
}

func do(router *gin.Engine, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, router *gin.Engine, email string) string {
	t.Helper()
	w := do(router, http.MethodPost, "/api/v1/auth/login", `{"email":"`+email+`","password":"`+testutil.TestPassword+`"}`, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp utils.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	token, _ := resp.Data.(map[string]interface{})["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestHealth(t *testing.T) {
	router, _ := newRouter(t)

	w := do(router, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestUnknownRoute(t *testing.T) {
	router, _ := newRouter(t)

	w := do(router, http.MethodGet, "/api/v1/nowhere", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStorefrontIsPublic(t *testing.T) {
	router, db := newRouter(t)
	testutil.CreateCourse(t, db, "go-basics", 30000)

	w := do(router, http.MethodGet, "/api/v1/courses", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go-basics")

	w = do(router, http.MethodGet, "/api/v1/courses/go-basics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthenticatedRoutes(t *testing.T) {
	router, db := newRouter(t)
	testutil.CreateUser(t, db, "student@example.com")

	assert.Equal(t, http.StatusUnauthorized, do(router, http.MethodGet, "/api/v1/auth/me", "", "").Code)

	token := login(t, router, "student@example.com")
	w := do(router, http.MethodGet, "/api/v1/auth/me", "", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "student@example.com")

	assert.Equal(t, http.StatusForbidden, do(router, http.MethodGet, "/api/v1/admin/users", "", token).Code)
}

func TestAdminMutationIsAudited(t *testing.T) {
	router, db := newRouter(t)
	admin := testutil.CreateAdmin(t, db, "admin@example.com")
	token := login(t, router, "admin@example.com")

	w := do(router, http.MethodPost, "/api/v1/admin/courses", `{"title":"Go 동시성","price":45000,"access_days":90}`, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var logs []models.AuditLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "POST /api/v1/admin/courses", logs[0].Action)
	require.NotNil(t, logs[0].UserID)
	assert.Equal(t, admin.ID, *logs[0].UserID)
}
