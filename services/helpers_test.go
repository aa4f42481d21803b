package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"service-marketplace-server/config"
	"service-marketplace-server/database"
	"service-marketplace-server/metrics"
	"service-marketplace-server/models"
	"service-marketplace-server/storage"
	"service-marketplace-server/utils"
)

const testPassword = "s3cure-pass"

type sentReset struct {
	userID uint
	token  string
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []sentReset
}

func (n *captureNotifier) SendPasswordReset(ctx context.Context, user *models.User, token string, expiresAt time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentReset{userID: user.ID, token: token})
	return nil
}

func (n *captureNotifier) last(t *testing.T) sentReset {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent, "no reset token was sent")
	return n.sent[len(n.sent)-1]
}

type testEnv struct {
	db           *gorm.DB
	store        *storage.MemoryStore
	denylist     *MemoryDenylist
	registry     *prometheus.Registry
	metrics      *metrics.Metrics
	notifier     *captureNotifier
	jwt          *JWTService
	identity     *IdentityService
	verification *VerificationService
	requests     *ProviderRequestService
	catalog      *CatalogService
	contracts    *ContractService
	dashboard    *DashboardService
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	env := &testEnv{
		db:       db,
		store:    storage.NewMemoryStore("/uploads"),
		denylist: NewMemoryDenylist(),
		registry: reg,
		metrics:  m,
		notifier: &captureNotifier{},
	}
	env.jwt = NewJWTService(db, config.JWTConfig{
		Secret:           "test-secret",
		AccessTTLMinutes: 15,
		RefreshTTLHours:  24,
	}, env.denylist, log)
	env.identity = NewIdentityService(db, env.jwt, env.notifier, log, m)
	env.verification = NewVerificationService(db, env.store, log, m, VerificationOptions{
		AlwaysMarkProfileComplete: true,
		MaxUploadSize:             1 << 20,
	})
	env.requests = NewProviderRequestService(db, log, m)
	env.catalog = NewCatalogService(db, env.store, log, m, 1<<20)
	env.contracts = NewContractService(db, log, m)
	env.dashboard = NewDashboardService(db)
	return env
}

var (
	userSeq      int
	passwordOnce sync.Once
	passwordHash string
)

// createUser inserts a user directly, all sharing one bcrypt hash of testPassword
func (e *testEnv) createUser(t *testing.T, role models.UserRole, mutate ...func(*models.User)) *models.User {
	t.Helper()
	passwordOnce.Do(func() {
		var err error
		passwordHash, err = utils.HashPassword(testPassword)
		require.NoError(t, err)
	})
	userSeq++
	u := &models.User{
		Email:        fmt.Sprintf("user%d@example.com", userSeq),
		Username:     fmt.Sprintf("user%d", userSeq),
		FirstName:    "Test",
		LastName:     "User",
		PasswordHash: passwordHash,
		Role:         role,
		IsActive:     true,
	}
	for _, fn := range mutate {
		fn(u)
	}
	require.NoError(t, e.db.Create(u).Error)
	return u
}

func (e *testEnv) createAdmin(t *testing.T) *models.User {
	return e.createUser(t, models.RoleCommon, func(u *models.User) { u.IsStaff = true })
}

func (e *testEnv) createCategory(t *testing.T, name string) *models.ServiceCategory {
	t.Helper()
	c := &models.ServiceCategory{Name: name, Description: name + " services"}
	require.NoError(t, e.db.Create(c).Error)
	return c
}

// createActiveService creates a listing through the service and approves it
func (e *testEnv) createActiveService(t *testing.T, provider *models.User, category *models.ServiceCategory, title string, price float64) *models.Service {
	t.Helper()
	svc, err := e.catalog.CreateService(context.Background(), provider, ServiceInput{
		CategoryID:    category.ID,
		Title:         title,
		Description:   title + " description",
		Price:         price,
		PriceType:     "fixed",
		Location:      "Downtown",
		City:          "Lima",
		State:         "Lima",
		Country:       "Peru",
		AvailableDays: []string{"monday", "friday"},
	})
	require.NoError(t, err)
	require.NoError(t, e.db.Model(&models.Service{}).Where("id = ?", svc.ID).Update("status", models.ServiceStatusActive).Error)
	svc.Status = models.ServiceStatusActive
	return svc
}

func (e *testEnv) reload(t *testing.T, u *models.User) *models.User {
	t.Helper()
	var fresh models.User
	require.NoError(t, e.db.First(&fresh, u.ID).Error)
	return &fresh
}

func pdfFile(name string) *storage.File {
	body := []byte("%PDF-1.4 test")
	return &storage.File{Name: name, ContentType: "application/pdf", Size: int64(len(body)), Reader: bytes.NewReader(body)}
}

func pngFile(name string) *storage.File {
	body := []byte("\x89PNG\r\n\x1a\n")
	return &storage.File{Name: name, ContentType: "image/png", Size: int64(len(body)), Reader: bytes.NewReader(body)}
}

func validProfileInput(idNumber string) ProviderProfileInput {
	return ProviderProfileInput{
		IdentificationType:       "dni",
		IdentificationNumber:     idNumber,
		PhoneNumber:              "+51 999-888-777",
		Address:                  "Av. Siempre Viva 742",
		City:                     "Lima",
		State:                    "Lima",
		Country:                  "Peru",
		CertificationDescription: "Licensed electrician",
		YearsOfExperience:        5,
	}
}

func requireKind(t *testing.T, err error, k Kind) *Error {
	t.Helper()
	require.Error(t, err)
	var se *Error
	require.ErrorAs(t, err, &se)
	require.Equal(t, k, se.Kind, "unexpected error: %v", err)
	return se
}
