package services

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"service-marketplace-server/models"
)

func TestSubmitProviderRequest(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.createUser(t, models.RoleCommon)

	_, err := env.requests.Submit(ctx, user, "   ")
	se := requireKind(t, err, KindValidation)
	assert.Equal(t, "request_reason", se.Field)

	req, err := env.requests.Submit(ctx, user, "I am a licensed plumber")
	require.NoError(t, err)
	assert.Equal(t, models.ProviderRequestPending, req.Status)
	assert.Equal(t, user.ID, req.UserID)

	_, err = env.requests.Submit(ctx, user, "again")
	requireKind(t, err, KindConflict)

	provider := env.createUser(t, models.RoleProvider)
	_, err = env.requests.Submit(ctx, provider, "more please")
	requireKind(t, err, KindConflict)

	mine, err := env.requests.ListMine(ctx, user)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, req.ID, mine[0].ID)
}

func TestPendingRequestIndex(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, models.RoleCommon)

	require.NoError(t, env.db.Create(&models.ProviderRequest{UserID: user.ID, Status: models.ProviderRequestPending, Reason: "one"}).Error)
	err := env.db.Create(&models.ProviderRequest{UserID: user.ID, Status: models.ProviderRequestPending, Reason: "two"}).Error
	assert.True(t, isDuplicateKey(err), "expected a unique violation, got %v", err)

	require.NoError(t, env.db.Create(&models.ProviderRequest{UserID: user.ID, Status: models.ProviderRequestRejected, Reason: "old"}).Error)
}

func TestReviewProviderRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("approval promotes the user and writes the audit entry", func(t *testing.T) {
		env := newTestEnv(t)
		admin := env.createAdmin(t)
		user := env.createUser(t, models.RoleCommon)
		req, err := env.requests.Submit(ctx, user, "ten years of carpentry")
		require.NoError(t, err)

		reviewed, err := env.requests.Review(ctx, admin, req.ID, "APPROVED", "welcome")
		require.NoError(t, err)
		assert.Equal(t, models.ProviderRequestApproved, reviewed.Status)
		assert.NotNil(t, reviewed.ReviewedAt)
		require.NotNil(t, reviewed.ReviewedByID)
		assert.Equal(t, admin.ID, *reviewed.ReviewedByID)
		assert.Equal(t, models.RoleProvider, env.reload(t, user).Role)

		var entry models.UserRoleChangeLog
		require.NoError(t, env.db.Where("user_id = ?", user.ID).First(&entry).Error)
		assert.Equal(t, models.RoleCommon, entry.PreviousRole)
		assert.Equal(t, models.RoleProvider, entry.NewRole)
		assert.Contains(t, entry.Reason, "approved")
		assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.RoleChanges.WithLabelValues("provider_request", "provider")))

		_, err = env.requests.Review(ctx, admin, req.ID, "rejected", "changed my mind")
		requireKind(t, err, KindConflict)

		_, err = env.requests.Submit(ctx, env.reload(t, user), "once more")
		requireKind(t, err, KindConflict)
	})

	t.Run("rejection keeps the role and needs a response", func(t *testing.T) {
		env := newTestEnv(t)
		admin := env.createAdmin(t)
		user := env.createUser(t, models.RoleCommon)
		req, err := env.requests.Submit(ctx, user, "please")
		require.NoError(t, err)

		_, err = env.requests.Review(ctx, admin, req.ID, "rejected", "")
		se := requireKind(t, err, KindValidation)
		assert.Equal(t, "admin_response", se.Field)

		reviewed, err := env.requests.Review(ctx, admin, req.ID, "rejected", "missing documents")
		require.NoError(t, err)
		assert.Equal(t, "missing documents", reviewed.AdminResponse)
		assert.Equal(t, models.RoleCommon, env.reload(t, user).Role)

		var count int64
		require.NoError(t, env.db.Model(&models.UserRoleChangeLog{}).Count(&count).Error)
		assert.Zero(t, count)

		_, err = env.requests.Submit(ctx, user, "second attempt")
		require.NoError(t, err)
	})

	t.Run("preconditions", func(t *testing.T) {
		env := newTestEnv(t)
		admin := env.createAdmin(t)
		user := env.createUser(t, models.RoleCommon)
		req, err := env.requests.Submit(ctx, user, "please")
		require.NoError(t, err)

		_, err = env.requests.Review(ctx, user, req.ID, "approved", "")
		requireKind(t, err, KindForbidden)
		_, err = env.requests.Review(ctx, admin, req.ID, "maybe", "")
		se := requireKind(t, err, KindValidation)
		assert.Equal(t, "status", se.Field)
		_, err = env.requests.Review(ctx, admin, 9999, "approved", "")
		requireKind(t, err, KindNotFound)
	})
}

func TestListProviderRequests(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	admin := env.createAdmin(t)

	var ids []uint
	for i := 0; i < 3; i++ {
		req, err := env.requests.Submit(ctx, env.createUser(t, models.RoleCommon), "reason")
		require.NoError(t, err)
		ids = append(ids, req.ID)
	}
	_, err := env.requests.Review(ctx, admin, ids[0], "rejected", "no")
	require.NoError(t, err)

	pending, total, err := env.requests.List(ctx, admin, "pending", Page{Page: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, pending, 1)
	require.NotNil(t, pending[0].User)

	got, err := env.requests.Get(ctx, admin, ids[0])
	require.NoError(t, err)
	assert.Equal(t, models.ProviderRequestRejected, got.Status)
	require.NotNil(t, got.ReviewedBy)
	assert.Equal(t, admin.ID, got.ReviewedBy.ID)

	_, err = env.requests.Get(ctx, admin, 9999)
	requireKind(t, err, KindNotFound)
}
