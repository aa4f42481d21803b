package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"service-marketplace-server/config"
	"service-marketplace-server/database"
	"service-marketplace-server/models"
	"service-marketplace-server/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newJWTService(t *testing.T) (*services.JWTService, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return services.NewJWTService(db, config.JWTConfig{Secret: "mw-secret", AccessTTLMinutes: 5, RefreshTTLHours: 1}, nil, log), db
}

func perform(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	jwtService, db := newJWTService(t)
	staff := &models.User{Email: "a@example.com", Username: "a", FirstName: "A", LastName: "B", PasswordHash: "x", IsStaff: true, IsActive: true}
	plain := &models.User{Email: "b@example.com", Username: "b", FirstName: "A", LastName: "B", PasswordHash: "x", IsActive: true}
	require.NoError(t, db.Create(staff).Error)
	require.NoError(t, db.Create(plain).Error)

	staffPair, err := jwtService.GenerateTokenPair(context.Background(), staff, services.DeviceInfo{})
	require.NoError(t, err)
	plainPair, err := jwtService.GenerateTokenPair(context.Background(), plain, services.DeviceInfo{})
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", AuthMiddleware(jwtService), func(c *gin.Context) {
		c.String(http.StatusOK, "%d", CurrentUser(c).ID)
	})
	r.GET("/admin", AuthMiddleware(jwtService), AdminMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/maybe", OptionalAuthMiddleware(jwtService), func(c *gin.Context) {
		if CurrentUser(c) == nil {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, "known")
	})

	request := func(path, auth string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		return perform(r, req)
	}

	assert.Equal(t, http.StatusUnauthorized, request("/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, request("/me", "Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, request("/me", "Bearer garbage").Code)

	w := request("/me", "Bearer "+plainPair.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusForbidden, request("/admin", "Bearer "+plainPair.AccessToken).Code)
	assert.Equal(t, http.StatusNoContent, request("/admin", "Bearer "+staffPair.AccessToken).Code)

	assert.Equal(t, "anonymous", request("/maybe", "").Body.String())
	assert.Equal(t, "anonymous", request("/maybe", "Bearer garbage").Body.String())
	assert.Equal(t, "known", request("/maybe", "Bearer "+plainPair.AccessToken).Body.String())

	require.NoError(t, db.Model(&models.User{}).Where("id = ?", plain.ID).Update("is_active", false).Error)
	assert.Equal(t, http.StatusUnauthorized, request("/me", "Bearer "+plainPair.AccessToken).Code)
}

func TestAuthRateLimit(t *testing.T) {
	rl := NewRateLimiter()
	r := gin.New()
	r.POST("/login", AuthRateLimitMiddleware(rl), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		w := perform(r, httptest.NewRequest(http.MethodPost, "/login", nil))
		require.Equal(t, http.StatusOK, w.Code, "attempt %d", i+1)
	}
	w := perform(r, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, 1, rl.Len())

	assert.Zero(t, rl.Cleanup(time.Hour))
	assert.Equal(t, 1, rl.Cleanup(-time.Second))
	assert.Zero(t, rl.Len())
}

func TestInputValidation(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeadersMiddleware(), InputValidationMiddleware(16))
	r.POST("/echo", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"a":1}`))
	req.Header.Set("Content-Type", "application/json")
	w := perform(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))

	req = httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("plain"))
	req.Header.Set("Content-Type", "text/plain")
	assert.Equal(t, http.StatusUnsupportedMediaType, perform(r, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(strings.Repeat("x", 17)))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusRequestEntityTooLarge, perform(r, req).Code)

	assert.Equal(t, http.StatusOK, perform(r, httptest.NewRequest(http.MethodPost, "/echo", nil)).Code)
}
