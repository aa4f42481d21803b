package services

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"service-marketplace-server/models"
)

func createContract(t *testing.T, env *testEnv, client *models.User, svc *models.Service) *models.ServiceContract {
	t.Helper()
	contract, err := env.contracts.Create(context.Background(), client, ContractInput{
		ServiceID:   svc.ID,
		Description: "Kitchen sink leaks",
		Location:    "Calle 1 #23",
		StartDate:   time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)
	return contract
}

type contractFixture struct {
	env      *testEnv
	client   *models.User
	provider *models.User
	stranger *models.User
	service  *models.Service
}

func newContractFixture(t *testing.T) *contractFixture {
	env := newTestEnv(t)
	provider := env.createUser(t, models.RoleProvider)
	return &contractFixture{
		env:      env,
		client:   env.createUser(t, models.RoleCommon),
		provider: provider,
		stranger: env.createUser(t, models.RoleCommon),
		service:  env.createActiveService(t, provider, env.createCategory(t, "Plumbing"), "Fix sink", 50),
	}
}

func TestCreateContract(t *testing.T) {
	ctx := context.Background()
	f := newContractFixture(t)

	contract := createContract(t, f.env, f.client, f.service)
	assert.Equal(t, models.ContractPending, contract.Status)
	assert.Equal(t, f.client.ID, contract.ClientID)
	assert.Equal(t, f.provider.ID, contract.ProviderID)
	require.NotNil(t, contract.Service)
	assert.Equal(t, "Fix sink", contract.Service.Title)

	valid := func() ContractInput {
		return ContractInput{ServiceID: f.service.ID, Description: "d", Location: "l", StartDate: time.Now()}
	}

	_, err := f.env.contracts.Create(ctx, f.provider, valid())
	se := requireKind(t, err, KindValidation)
	assert.Equal(t, "service_id", se.Field)

	in := valid()
	in.Location = " "
	_, err = f.env.contracts.Create(ctx, f.client, in)
	se = requireKind(t, err, KindValidation)
	assert.Equal(t, "location", se.Field)

	in = valid()
	in.StartDate = time.Time{}
	_, err = f.env.contracts.Create(ctx, f.client, in)
	se = requireKind(t, err, KindValidation)
	assert.Equal(t, "start_date", se.Field)

	in = valid()
	before := in.StartDate.Add(-time.Hour)
	in.EndDate = &before
	_, err = f.env.contracts.Create(ctx, f.client, in)
	se = requireKind(t, err, KindValidation)
	assert.Equal(t, "end_date", se.Field)

	pending, err := f.env.catalog.CreateService(ctx, f.provider, ServiceInput{
		CategoryID: f.service.CategoryID, Title: "Not approved", Description: "d", Price: 1, PriceType: "fixed",
	})
	require.NoError(t, err)
	in = valid()
	in.ServiceID = pending.ID
	_, err = f.env.contracts.Create(ctx, f.client, in)
	requireKind(t, err, KindValidation)
}

func TestContractLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newContractFixture(t)
	c := createContract(t, f.env, f.client, f.service)

	_, err := f.env.contracts.Accept(ctx, f.client, c.ID)
	requireKind(t, err, KindNotFound)
	_, err = f.env.contracts.Start(ctx, f.provider, c.ID)
	requireKind(t, err, KindConflict)

	accepted, err := f.env.contracts.Accept(ctx, f.provider, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContractAccepted, accepted.Status)

	_, err = f.env.contracts.Accept(ctx, f.provider, c.ID)
	requireKind(t, err, KindNotFound)
	_, err = f.env.contracts.Complete(ctx, f.client, c.ID)
	requireKind(t, err, KindConflict)
	_, err = f.env.contracts.Start(ctx, f.client, c.ID)
	requireKind(t, err, KindForbidden)

	started, err := f.env.contracts.Start(ctx, f.provider, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContractInProgress, started.Status)

	_, err = f.env.contracts.Cancel(ctx, f.client, c.ID, "too slow")
	requireKind(t, err, KindForbidden)

	completed, err := f.env.contracts.Complete(ctx, f.client, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContractCompleted, completed.Status)

	for name, run := range map[string]func() error{
		"accept": func() error { _, err := f.env.contracts.Accept(ctx, f.provider, c.ID); return err },
		"start":  func() error { _, err := f.env.contracts.Start(ctx, f.provider, c.ID); return err },
		"cancel": func() error { _, err := f.env.contracts.Cancel(ctx, f.provider, c.ID, "x"); return err },
	} {
		assert.Error(t, run(), "%s on a completed contract", name)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(f.env.metrics.ContractTransitions.WithLabelValues("completed")))
}

func TestRejectContract(t *testing.T) {
	ctx := context.Background()
	f := newContractFixture(t)
	c := createContract(t, f.env, f.client, f.service)

	_, err := f.env.contracts.Reject(ctx, f.provider, c.ID, "  ")
	se := requireKind(t, err, KindValidation)
	assert.Equal(t, "rejection_reason", se.Field)

	rejected, err := f.env.contracts.Reject(ctx, f.provider, c.ID, "fully booked")
	require.NoError(t, err)
	assert.Equal(t, models.ContractRejected, rejected.Status)
	assert.Equal(t, "fully booked", rejected.RejectionReason)

	_, err = f.env.contracts.Cancel(ctx, f.client, c.ID, "never mind")
	requireKind(t, err, KindConflict)
}

func TestCancelContract(t *testing.T) {
	ctx := context.Background()

	t.Run("client cancels a pending contract", func(t *testing.T) {
		f := newContractFixture(t)
		c := createContract(t, f.env, f.client, f.service)

		_, err := f.env.contracts.Cancel(ctx, f.client, c.ID, "")
		se := requireKind(t, err, KindValidation)
		assert.Equal(t, "cancellation_reason", se.Field)

		cancelled, err := f.env.contracts.Cancel(ctx, f.client, c.ID, "found someone else")
		require.NoError(t, err)
		assert.Equal(t, models.ContractCancelled, cancelled.Status)
		assert.Equal(t, "found someone else", cancelled.CancellationReason)
		require.NotNil(t, cancelled.CancelledByID)
		assert.Equal(t, f.client.ID, *cancelled.CancelledByID)
	})

	t.Run("provider cancels work in progress", func(t *testing.T) {
		f := newContractFixture(t)
		c := createContract(t, f.env, f.client, f.service)
		_, err := f.env.contracts.Accept(ctx, f.provider, c.ID)
		require.NoError(t, err)
		_, err = f.env.contracts.Start(ctx, f.provider, c.ID)
		require.NoError(t, err)

		cancelled, err := f.env.contracts.Cancel(ctx, f.provider, c.ID, "missing parts")
		require.NoError(t, err)
		assert.Equal(t, models.ContractCancelled, cancelled.Status)
	})
}

func TestContractsAreInvisibleToThirdParties(t *testing.T) {
	ctx := context.Background()
	f := newContractFixture(t)
	c := createContract(t, f.env, f.client, f.service)

	_, err := f.env.contracts.Get(ctx, f.stranger, c.ID)
	requireKind(t, err, KindNotFound)
	_, err = f.env.contracts.Cancel(ctx, f.stranger, c.ID, "prank")
	requireKind(t, err, KindNotFound)
	desc := "hijacked"
	_, err = f.env.contracts.Update(ctx, f.stranger, c.ID, ContractPatch{Description: &desc})
	requireKind(t, err, KindNotFound)

	list, total, err := f.env.contracts.List(ctx, f.stranger, "", Page{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)

	for _, party := range []*models.User{f.client, f.provider} {
		list, total, err = f.env.contracts.List(ctx, party, "pending", Page{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, list, 1)
		assert.Equal(t, c.ID, list[0].ID)
	}

	_, _, err = f.env.contracts.List(ctx, f.client, "lost", Page{})
	requireKind(t, err, KindValidation)
}

func TestUpdateContract(t *testing.T) {
	ctx := context.Background()
	f := newContractFixture(t)
	c := createContract(t, f.env, f.client, f.service)

	location := "Calle 9"
	end := c.StartDate.Add(48 * time.Hour)
	updated, err := f.env.contracts.Update(ctx, f.client, c.ID, ContractPatch{Location: &location, EndDate: &end})
	require.NoError(t, err)
	assert.Equal(t, "Calle 9", updated.Location)
	require.NotNil(t, updated.EndDate)

	_, err = f.env.contracts.Accept(ctx, f.provider, c.ID)
	require.NoError(t, err)
	_, err = f.env.contracts.Update(ctx, f.client, c.ID, ContractPatch{Location: &location})
	requireKind(t, err, KindConflict)
}

func TestReviewContract(t *testing.T) {
	ctx := context.Background()
	f := newContractFixture(t)
	c := createContract(t, f.env, f.client, f.service)

	_, err := f.env.contracts.Review(ctx, f.client, c.ID, 5, "great")
	requireKind(t, err, KindConflict)

	_, err = f.env.contracts.Accept(ctx, f.provider, c.ID)
	require.NoError(t, err)
	_, err = f.env.contracts.Start(ctx, f.provider, c.ID)
	require.NoError(t, err)
	_, err = f.env.contracts.Complete(ctx, f.provider, c.ID)
	require.NoError(t, err)

	_, err = f.env.contracts.Review(ctx, f.client, c.ID, 6, "off the scale")
	se := requireKind(t, err, KindValidation)
	assert.Equal(t, "rating", se.Field)

	reviewed, err := f.env.contracts.Review(ctx, f.client, c.ID, 5, " great work ")
	require.NoError(t, err)
	require.NotNil(t, reviewed.ClientRating)
	assert.Equal(t, 5, *reviewed.ClientRating)
	assert.Equal(t, "great work", reviewed.ClientReview)
	assert.Nil(t, reviewed.ProviderRating)

	_, err = f.env.contracts.Review(ctx, f.client, c.ID, 4, "changed my mind")
	requireKind(t, err, KindConflict)

	reviewed, err = f.env.contracts.Review(ctx, f.provider, c.ID, 4, "punctual client")
	require.NoError(t, err)
	require.NotNil(t, reviewed.ProviderRating)
	assert.Equal(t, 4, *reviewed.ProviderRating)
	assert.Equal(t, 5, *reviewed.ClientRating)

	_, err = f.env.contracts.Review(ctx, f.stranger, c.ID, 1, "spam")
	requireKind(t, err, KindNotFound)
}
