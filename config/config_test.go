package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("VERIFY_ALWAYS_MARKS_PROFILE_COMPLETE", "")
	t.Setenv("MAX_UPLOAD_SIZE_MB", "")
	t.Setenv("GIN_MODE", "")
	t.Setenv("STORAGE_DRIVER", "")
	Load()

	assert.Equal(t, "8080", AppConfig.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, AppConfig.Server.AllowedOrigins)
	assert.True(t, AppConfig.Features.VerifyAlwaysMarksProfileComplete)
	assert.Equal(t, int64(5<<20), AppConfig.Storage.MaxUploadSize)
	assert.Equal(t, "memory", AppConfig.Storage.Driver)
	assert.NoError(t, AppConfig.Validate())
}

func TestReleaseModeStorage(t *testing.T) {
	t.Setenv("GIN_MODE", "release")
	t.Setenv("STORAGE_DRIVER", "")
	Load()
	assert.Equal(t, "cloudinary", AppConfig.Storage.Driver)
	assert.NoError(t, AppConfig.Validate())

	t.Setenv("STORAGE_DRIVER", "memory")
	Load()
	assert.Error(t, AppConfig.Validate())

	t.Setenv("GIN_MODE", "debug")
	Load()
	assert.NoError(t, AppConfig.Validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("VERIFY_ALWAYS_MARKS_PROFILE_COMPLETE", "false")
	t.Setenv("JWT_ACCESS_TTL_MINUTES", "5")
	t.Setenv("DB_MAX_OPEN_CONNS", "not-a-number")
	t.Setenv("DB_URL", "postgres://u:p@db/market")
	Load()

	assert.Equal(t, []string{"https://a.example", "https://b.example"}, AppConfig.Server.AllowedOrigins)
	assert.False(t, AppConfig.Features.VerifyAlwaysMarksProfileComplete)
	assert.Equal(t, 5*time.Minute, AppConfig.JWT.AccessTTL())
	assert.Equal(t, 100, AppConfig.Database.MaxOpenConns)
	assert.Equal(t, "postgres://u:p@db/market", AppConfig.Database.DSN())
}

func TestDSNFromParts(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: "5432", User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=n sslmode=disable", d.DSN())
}
