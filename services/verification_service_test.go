package services

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"service-marketplace-server/models"
	"service-marketplace-server/storage"
)

func createProfile(t *testing.T, env *testEnv, provider *models.User, idNumber string) *models.ProviderProfile {
	t.Helper()
	profile, err := env.verification.CreateProfile(context.Background(), provider, validProfileInput(idNumber), pdfFile("cert.pdf"))
	require.NoError(t, err)
	return profile
}

func TestCreateProfile(t *testing.T) {
	ctx := context.Background()

	t.Run("stores the certification and marks the profile complete", func(t *testing.T) {
		env := newTestEnv(t)
		provider := env.createUser(t, models.RoleProvider)

		profile := createProfile(t, env, provider, "12345678")
		assert.Equal(t, models.IdentificationDNI, profile.IdentificationType)
		assert.False(t, profile.IsVerified)
		assert.True(t, strings.HasPrefix(profile.CertificationKey, "certifications/"))
		assert.True(t, strings.HasSuffix(profile.CertificationKey, ".pdf"))
		assert.Equal(t, "/uploads/"+profile.CertificationKey, profile.CertificationURL)
		assert.True(t, env.store.Has(profile.CertificationKey))
		assert.True(t, env.reload(t, provider).ProfileComplete)
		assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Uploads.WithLabelValues("certification")))

		_, err := env.verification.CreateProfile(ctx, provider, validProfileInput("87654321"), pdfFile("cert.pdf"))
		requireKind(t, err, KindConflict)
	})

	t.Run("only providers may register a profile", func(t *testing.T) {
		env := newTestEnv(t)
		common := env.createUser(t, models.RoleCommon)
		_, err := env.verification.CreateProfile(ctx, common, validProfileInput("12345678"), pdfFile("cert.pdf"))
		requireKind(t, err, KindForbidden)
	})

	t.Run("identification numbers are unique", func(t *testing.T) {
		env := newTestEnv(t)
		createProfile(t, env, env.createUser(t, models.RoleProvider), "12345678")

		other := env.createUser(t, models.RoleProvider)
		_, err := env.verification.CreateProfile(ctx, other, validProfileInput("12345678"), pdfFile("cert.pdf"))
		se := requireKind(t, err, KindValidation)
		assert.Equal(t, "identification_number", se.Field)
		assert.Equal(t, 1, env.store.Len())
	})

	invalid := []struct {
		name   string
		mutate func(*ProviderProfileInput)
		file   *storage.File
		field  string
	}{
		{"unknown document type", func(in *ProviderProfileInput) { in.IdentificationType = "license" }, pdfFile("c.pdf"), "identification_type"},
		{"identification too long", func(in *ProviderProfileInput) { in.IdentificationNumber = strings.Repeat("9", 21) }, pdfFile("c.pdf"), "identification_number"},
		{"phone with letters", func(in *ProviderProfileInput) { in.PhoneNumber = "call me" }, pdfFile("c.pdf"), "phone_number"},
		{"phone too long", func(in *ProviderProfileInput) { in.PhoneNumber = "+51 999 888 777 66" }, pdfFile("c.pdf"), "phone_number"},
		{"missing city", func(in *ProviderProfileInput) { in.City = " " }, pdfFile("c.pdf"), "city"},
		{"negative experience", func(in *ProviderProfileInput) { in.YearsOfExperience = -1 }, pdfFile("c.pdf"), "years_of_experience"},
		{"missing file", func(in *ProviderProfileInput) {}, nil, "certification_file"},
		{"text file", func(in *ProviderProfileInput) {}, &storage.File{Name: "c.txt", ContentType: "text/plain", Size: 3, Reader: strings.NewReader("abc")}, "certification_file"},
		{"file too large", func(in *ProviderProfileInput) {}, &storage.File{Name: "c.pdf", ContentType: "application/pdf", Size: 2 << 20, Reader: strings.NewReader("x")}, "certification_file"},
	}
	for _, tc := range invalid {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			provider := env.createUser(t, models.RoleProvider)
			in := validProfileInput("12345678")
			tc.mutate(&in)

			_, err := env.verification.CreateProfile(ctx, provider, in, tc.file)
			se := requireKind(t, err, KindValidation)
			assert.Equal(t, tc.field, se.Field)
			assert.Zero(t, env.store.Len())
			assert.False(t, env.reload(t, provider).ProfileComplete)
		})
	}
}

func TestUpdateOwnProfile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	provider := env.createUser(t, models.RoleProvider)
	profile := createProfile(t, env, provider, "12345678")
	createProfile(t, env, env.createUser(t, models.RoleProvider), "55555555")

	city := "Arequipa"
	years := 7
	updated, err := env.verification.UpdateOwnProfile(ctx, provider, ProviderProfilePatch{City: &city, YearsOfExperience: &years}, pngFile("new.png"))
	require.NoError(t, err)
	assert.Equal(t, "Arequipa", updated.City)
	assert.Equal(t, uint(7), updated.YearsOfExperience)
	assert.Equal(t, "image/png", updated.CertificationContentType)
	assert.NotEqual(t, profile.CertificationKey, updated.CertificationKey)
	assert.False(t, env.store.Has(profile.CertificationKey))
	assert.True(t, env.store.Has(updated.CertificationKey))

	taken := "55555555"
	_, err = env.verification.UpdateOwnProfile(ctx, provider, ProviderProfilePatch{IdentificationNumber: &taken}, nil)
	se := requireKind(t, err, KindValidation)
	assert.Equal(t, "identification_number", se.Field)

	// unchanged number is not a collision with itself
	same := "12345678"
	_, err = env.verification.UpdateOwnProfile(ctx, provider, ProviderProfilePatch{IdentificationNumber: &same}, nil)
	require.NoError(t, err)

	_, err = env.verification.UpdateOwnProfile(ctx, env.createUser(t, models.RoleProvider), ProviderProfilePatch{City: &city}, nil)
	requireKind(t, err, KindNotFound)
}

func TestSetVerification(t *testing.T) {
	ctx := context.Background()

	t.Run("approval records the reviewer and rejection clears it", func(t *testing.T) {
		env := newTestEnv(t)
		admin := env.createAdmin(t)
		provider := env.createUser(t, models.RoleProvider)
		createProfile(t, env, provider, "12345678")

		profile, err := env.verification.SetVerification(ctx, admin, provider.ID, true, " documents ok ")
		require.NoError(t, err)
		assert.True(t, profile.IsVerified)
		assert.Equal(t, "documents ok", profile.AdminNotes)
		require.NotNil(t, profile.VerifiedByID)
		assert.Equal(t, admin.ID, *profile.VerifiedByID)
		assert.NotNil(t, profile.VerifiedAt)
		require.NotNil(t, profile.User)
		assert.Equal(t, provider.ID, profile.User.ID)

		profile, err = env.verification.SetVerification(ctx, admin, provider.ID, false, "expired license")
		require.NoError(t, err)
		assert.False(t, profile.IsVerified)
		assert.Nil(t, profile.VerifiedByID)
		assert.Nil(t, profile.VerifiedAt)
		assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Verifications.WithLabelValues("false")))
	})

	t.Run("targets must be providers with a profile", func(t *testing.T) {
		env := newTestEnv(t)
		admin := env.createAdmin(t)
		common := env.createUser(t, models.RoleCommon)
		bare := env.createUser(t, models.RoleProvider)

		_, err := env.verification.SetVerification(ctx, admin, common.ID, true, "")
		requireKind(t, err, KindNotFound)
		_, err = env.verification.SetVerification(ctx, admin, bare.ID, true, "")
		requireKind(t, err, KindNotFound)
		_, err = env.verification.SetVerification(ctx, common, bare.ID, true, "")
		requireKind(t, err, KindForbidden)
	})

	t.Run("profile completeness follows the decision when the flag is off", func(t *testing.T) {
		env := newTestEnv(t)
		env.verification.alwaysMarkComplete = false
		admin := env.createAdmin(t)
		provider := env.createUser(t, models.RoleProvider)
		createProfile(t, env, provider, "12345678")
		require.NoError(t, env.db.Model(&models.User{}).Where("id = ?", provider.ID).Update("profile_complete", false).Error)

		_, err := env.verification.SetVerification(ctx, admin, provider.ID, false, "missing stamp")
		require.NoError(t, err)
		assert.False(t, env.reload(t, provider).ProfileComplete)

		_, err = env.verification.SetVerification(ctx, admin, provider.ID, true, "")
		require.NoError(t, err)
		assert.True(t, env.reload(t, provider).ProfileComplete)
	})

	t.Run("profile completeness is always set when the flag is on", func(t *testing.T) {
		env := newTestEnv(t)
		admin := env.createAdmin(t)
		provider := env.createUser(t, models.RoleProvider)
		createProfile(t, env, provider, "12345678")
		require.NoError(t, env.db.Model(&models.User{}).Where("id = ?", provider.ID).Update("profile_complete", false).Error)

		_, err := env.verification.SetVerification(ctx, admin, provider.ID, false, "missing stamp")
		require.NoError(t, err)
		assert.True(t, env.reload(t, provider).ProfileComplete)
	})
}

func TestAdminListProviders(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	admin := env.createAdmin(t)
	verified := env.createUser(t, models.RoleProvider)
	createProfile(t, env, verified, "11111111")
	createProfile(t, env, env.createUser(t, models.RoleProvider), "22222222")
	_, err := env.verification.SetVerification(ctx, admin, verified.ID, true, "")
	require.NoError(t, err)

	all, total, err := env.verification.AdminListProviders(ctx, admin, nil, Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, all, 2)

	yes := true
	only, total, err := env.verification.AdminListProviders(ctx, admin, &yes, Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, only, 1)
	assert.Equal(t, verified.ID, only[0].UserID)
	require.NotNil(t, only[0].User)

	got, err := env.verification.AdminGetProvider(ctx, admin, verified.ID)
	require.NoError(t, err)
	assert.True(t, got.IsVerified)

	_, _, err = env.verification.AdminListProviders(ctx, verified, nil, Page{})
	requireKind(t, err, KindForbidden)
}
